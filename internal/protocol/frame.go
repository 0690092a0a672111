// internal/protocol/frame.go
package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"

	"gnss-configurator/internal/model"
)

// Frame delimiters and offsets
const (
	FrameSTX    byte = 0x02
	FrameETX    byte = 0x03
	FrameStatus byte = 0x00

	headerSize  = 4
	trailerSize = 2
	lengthIndex = 3
)

// filePrefix is the single-page transmission block (transmission number, page
// index, max page index) followed by the file control information (format
// version 3, all device types, apply immediately, keep unlisted settings)
var filePrefix = []byte{0x00, 0x00, 0x00, 0x03, 0x00, 0x01, 0x00}

var (
	ErrMissingValue  = errors.New("field has neither a value nor a default")
	ErrFrameTooLarge = errors.New("frame payload exceeds a single page")
	ErrInvalidFrame  = errors.New("invalid frame")
)

// Frame is an encoded record ready to be written to the channel
type Frame []byte

// Hex returns the frame as space separated byte pairs
func (f Frame) Hex() string {
	return HexDump(f)
}

// CommandCode returns the packet type byte of the frame
func (f Frame) CommandCode() byte {
	if len(f) <= 2 {
		return 0
	}
	return f[2]
}

// EncodeItem encodes one normalized field value. Numbers are big-endian,
// strings UTF-8 and arrays raw bytes.
func EncodeItem(value any, kind model.Kind) ([]byte, error) {
	switch kind {
	case model.KindChar:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("encode %s: unexpected value type %T", kind, value)
		}
		return []byte(s), nil

	case model.KindByte:
		n, ok := value.(int64)
		if !ok || n < 0 || n > math.MaxUint8 {
			return nil, fmt.Errorf("encode %s: invalid value %v", kind, value)
		}
		return []byte{byte(n)}, nil

	case model.KindShort:
		n, ok := value.(int64)
		if !ok || n < math.MinInt16 || n > math.MaxInt16 {
			return nil, fmt.Errorf("encode %s: invalid value %v", kind, value)
		}
		return binary.BigEndian.AppendUint16(nil, uint16(int16(n))), nil

	case model.KindInteger:
		n, ok := value.(int64)
		if !ok || n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("encode %s: invalid value %v", kind, value)
		}
		return binary.BigEndian.AppendUint32(nil, uint32(int32(n))), nil

	case model.KindFloat:
		x, ok := value.(float64)
		if !ok {
			return nil, fmt.Errorf("encode %s: unexpected value type %T", kind, value)
		}
		return binary.BigEndian.AppendUint32(nil, math.Float32bits(float32(x))), nil

	case model.KindDouble:
		x, ok := value.(float64)
		if !ok {
			return nil, fmt.Errorf("encode %s: unexpected value type %T", kind, value)
		}
		return binary.BigEndian.AppendUint64(nil, math.Float64bits(x)), nil

	case model.KindArray:
		b, ok := value.([]byte)
		if !ok {
			return nil, fmt.Errorf("encode %s: unexpected value type %T", kind, value)
		}
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil

	default:
		return nil, fmt.Errorf("encode: unknown kind %q", string(kind))
	}
}

// FrameBuilder turns ready record instances into wire frames
type FrameBuilder struct{}

// NewFrameBuilder creates a frame builder
func NewFrameBuilder() *FrameBuilder {
	return &FrameBuilder{}
}

// EncodeRecord serializes a record instance. Fields are written in record
// order using the assigned value, else the default.
func (b *FrameBuilder) EncodeRecord(rec *model.Record) (Frame, error) {
	frame := make([]byte, 0, headerSize+len(filePrefix)+2+rec.TotalWidth+trailerSize)
	frame = append(frame, FrameSTX, FrameStatus, rec.CommandCode, 0x00)

	if rec.IsFileConfiguration() {
		if rec.RecordType == nil {
			return nil, fmt.Errorf("record %s: file configuration record without type", rec.Name)
		}
		if rec.TotalWidth > math.MaxUint8 {
			return nil, fmt.Errorf("record %s: width %d: %w", rec.Name, rec.TotalWidth, ErrFrameTooLarge)
		}
		frame = append(frame, filePrefix...)
		frame = append(frame, *rec.RecordType, byte(rec.TotalWidth))
	}

	for _, f := range rec.Fields {
		value, ok := f.Effective()
		if !ok {
			return nil, fmt.Errorf("record %s field %s: %w", rec.Name, f.Name, ErrMissingValue)
		}

		// fixed length strings are left justified and space padded
		if f.Kind == model.KindChar {
			if s, isString := value.(string); isString && len(s) < f.Width {
				value = s + strings.Repeat(" ", f.Width-len(s))
			}
		}

		enc, err := EncodeItem(value, f.Kind)
		if err != nil {
			return nil, fmt.Errorf("record %s field %s: %w", rec.Name, f.Name, err)
		}
		frame = append(frame, enc...)
	}

	length := len(frame) - headerSize
	if length > math.MaxUint8 {
		return nil, fmt.Errorf("record %s: length %d: %w", rec.Name, length, ErrFrameTooLarge)
	}
	frame[lengthIndex] = byte(length)

	frame = append(frame, Checksum(frame), FrameETX)
	return Frame(frame), nil
}

// Checksum returns the sum of every byte after STX, modulo 256
func Checksum(frame []byte) byte {
	var sum byte
	for _, b := range frame[1:] {
		sum += b
	}
	return sum
}

// VerifyFrame checks delimiters, length and checksum of an encoded frame
func VerifyFrame(frame []byte) error {
	if len(frame) < headerSize+trailerSize {
		return fmt.Errorf("%w: %d bytes", ErrInvalidFrame, len(frame))
	}
	if frame[0] != FrameSTX {
		return fmt.Errorf("%w: missing STX", ErrInvalidFrame)
	}
	if frame[len(frame)-1] != FrameETX {
		return fmt.Errorf("%w: missing ETX", ErrInvalidFrame)
	}

	body := frame[:len(frame)-trailerSize]
	if want := len(body) - headerSize; int(frame[lengthIndex]) != want {
		return fmt.Errorf("%w: length byte %d, want %d", ErrInvalidFrame, frame[lengthIndex], want)
	}
	if want := Checksum(body); frame[len(frame)-2] != want {
		return fmt.Errorf("%w: checksum %02x, want %02x", ErrInvalidFrame, frame[len(frame)-2], want)
	}
	return nil
}

// HexDump formats bytes as lower case hex pairs separated by spaces
func HexDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	s := hex.EncodeToString(data)
	var sb strings.Builder
	sb.Grow(len(s) + len(data) - 1)
	for i := 0; i < len(s); i += 2 {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(s[i : i+2])
	}
	return sb.String()
}
