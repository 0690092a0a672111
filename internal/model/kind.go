// internal/model/kind.go
package model

import "fmt"

// Kind represents the wire data type of a record field
type Kind string

const (
	KindChar    Kind = "char"
	KindByte    Kind = "byte"
	KindShort   Kind = "short"
	KindInteger Kind = "integer"
	KindFloat   Kind = "float"
	KindDouble  Kind = "double"
	KindArray   Kind = "array"
)

var kindTable = map[string]Kind{
	"char":    KindChar,
	"byte":    KindByte,
	"short":   KindShort,
	"integer": KindInteger,
	"float":   KindFloat,
	"double":  KindDouble,
	"array":   KindArray,
}

// ParseKind resolves a schema data type name. Unknown names report false.
func ParseKind(text string) (Kind, bool) {
	k, ok := kindTable[text]
	return k, ok
}

// IsDiscrete reports whether values of the kind are integers
func (k Kind) IsDiscrete() bool {
	switch k {
	case KindByte, KindShort, KindInteger:
		return true
	case KindChar, KindFloat, KindDouble, KindArray:
		return false
	default:
		return false
	}
}

// IsReal reports whether values of the kind are floating point numbers
func (k Kind) IsReal() bool {
	switch k {
	case KindFloat, KindDouble:
		return true
	case KindChar, KindByte, KindShort, KindInteger, KindArray:
		return false
	default:
		return false
	}
}

// EncodedSize returns the fixed byte size of a numeric kind. Char and array
// fields take their size from the declared field width.
func (k Kind) EncodedSize(width int) (int, error) {
	switch k {
	case KindByte:
		return 1, nil
	case KindShort:
		return 2, nil
	case KindInteger, KindFloat:
		return 4, nil
	case KindDouble:
		return 8, nil
	case KindChar, KindArray:
		return width, nil
	default:
		return 0, fmt.Errorf("unknown kind %q", string(k))
	}
}
