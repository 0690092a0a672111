// Package schema loads the declarative field layout of the receiver records.
//
// A loaded Schema is read-only. Every lookup returns a deep copy of the stored
// template so callers may assign field values without corrupting it.
package schema

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"gnss-configurator/internal/model"
)

// ErrStructure marks a malformed schema document
var ErrStructure = errors.New("schema: invalid structure")

// StructureError reports the first structurally invalid record of a schema
type StructureError struct {
	Record string
	Field  string
	Reason string
	Err    error
}

func (e *StructureError) Error() string {
	switch {
	case e.Record == "":
		return fmt.Sprintf("schema: %s", e.Reason)
	case e.Field == "":
		return fmt.Sprintf("schema: record=%s: %s", e.Record, e.Reason)
	default:
		return fmt.Sprintf("schema: record=%s field=%s: %s", e.Record, e.Field, e.Reason)
	}
}

func (e *StructureError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrStructure
}

type recordDescriptor struct {
	CommandCode *int               `yaml:"commandCode"`
	Name        *string            `yaml:"name"`
	Type        *int               `yaml:"type"`
	Items       *[]fieldDescriptor `yaml:"item"`
}

type fieldDescriptor struct {
	Name         *string               `yaml:"name"`
	DataType     *string               `yaml:"dataType"`
	Position     *int                  `yaml:"position"`
	Width        *int                  `yaml:"width"`
	Description  *string               `yaml:"description"`
	DefaultValue any                   `yaml:"defaultValue"`
	Policy       *string               `yaml:"policy"`
	Constraint   *string               `yaml:"constraint"`
	MinValue     *float64              `yaml:"minValue"`
	MaxValue     *float64              `yaml:"maxValue"`
	Map          *[]mapEntryDescriptor `yaml:"map"`
}

type mapEntryDescriptor struct {
	Value *int64  `yaml:"value"`
	Tag   *string `yaml:"tag"`
}

// Schema maps record names and types to record templates
type Schema struct {
	records []*model.Record
	byName  map[string]*model.Record
}

// LoadFile reads a schema document (JSON or YAML) from disk
func LoadFile(path string) (*Schema, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open schema file: %w", err)
	}
	defer f.Close()

	s, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema %s: %w", path, err)
	}
	return s, nil
}

// Load parses a list of record descriptors. The first invalid record aborts
// the whole load.
func Load(r io.Reader) (*Schema, error) {
	var descs []recordDescriptor
	if err := yaml.NewDecoder(r).Decode(&descs); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &StructureError{Reason: "empty document"}
		}
		return nil, &StructureError{Reason: fmt.Sprintf("malformed document: %v", err)}
	}

	s := &Schema{byName: make(map[string]*model.Record, len(descs))}
	for i, d := range descs {
		rec, err := buildRecord(i, d)
		if err != nil {
			return nil, err
		}
		if _, dup := s.byName[rec.Name]; dup {
			return nil, &StructureError{Record: rec.Name, Reason: "duplicate record name"}
		}
		s.records = append(s.records, rec)
		s.byName[rec.Name] = rec
	}

	return s, nil
}

func buildRecord(index int, d recordDescriptor) (*model.Record, error) {
	if d.Name == nil || *d.Name == "" {
		return nil, &StructureError{Reason: fmt.Sprintf("record #%d: missing name", index)}
	}
	name := *d.Name

	if d.CommandCode == nil {
		return nil, &StructureError{Record: name, Reason: "missing commandCode"}
	}
	if *d.CommandCode < 0 || *d.CommandCode > math.MaxUint8 {
		return nil, &StructureError{Record: name, Reason: fmt.Sprintf("commandCode %d out of byte range", *d.CommandCode)}
	}

	var recordType *byte
	if d.Type != nil {
		if *d.Type < 0 || *d.Type > math.MaxUint8 {
			return nil, &StructureError{Record: name, Reason: fmt.Sprintf("type %d out of byte range", *d.Type)}
		}
		t := byte(*d.Type)
		recordType = &t
	}

	if d.Items == nil {
		return nil, &StructureError{Record: name, Reason: "missing item list"}
	}

	fields := make([]*model.Field, 0, len(*d.Items))
	for _, fd := range *d.Items {
		f, err := buildField(name, fd)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}

	// position is the authoritative order; ties keep declaration order
	sort.SliceStable(fields, func(i, j int) bool {
		return fields[i].Position < fields[j].Position
	})

	rec := model.NewRecord(byte(*d.CommandCode), name, recordType)
	for _, f := range fields {
		rec.AddField(f)
	}
	return rec, nil
}

func buildField(record string, d fieldDescriptor) (*model.Field, error) {
	if d.Name == nil || *d.Name == "" {
		return nil, &StructureError{Record: record, Reason: "item without name"}
	}
	name := *d.Name
	fail := func(format string, args ...any) error {
		return &StructureError{Record: record, Field: name, Reason: fmt.Sprintf(format, args...)}
	}

	if d.DataType == nil {
		return nil, fail("missing dataType")
	}
	kind, ok := model.ParseKind(*d.DataType)
	if !ok {
		return nil, &StructureError{
			Record: record,
			Field:  name,
			Reason: fmt.Sprintf("unknown dataType %q", *d.DataType),
			Err:    model.ErrTypeMismatch,
		}
	}
	if d.Position == nil {
		return nil, fail("missing position")
	}
	if d.Width == nil {
		return nil, fail("missing width")
	}
	if d.Description == nil {
		return nil, fail("missing description")
	}

	size, err := kind.EncodedSize(*d.Width)
	if err != nil {
		return nil, fail("%v", err)
	}
	if *d.Width <= 0 || size != *d.Width {
		return nil, fail("width %d does not match %s encoding", *d.Width, kind)
	}

	f := &model.Field{
		Name:        name,
		Kind:        kind,
		Position:    *d.Position,
		Width:       *d.Width,
		Description: *d.Description,
	}

	if d.Policy != nil {
		f.Policy = model.Policy(*d.Policy)
	}

	if d.Constraint != nil {
		if ck, ok := model.ParseConstraintKind(*d.Constraint); ok {
			c, err := buildConstraint(ck, kind, d)
			if err != nil {
				return nil, fail("%v", err)
			}
			f.Constraint = c
		}
	}

	if err := f.SetDefault(d.DefaultValue); err != nil {
		return nil, fail("invalid defaultValue: %v", err)
	}

	return f, nil
}

func buildConstraint(ck model.ConstraintKind, kind model.Kind, d fieldDescriptor) (model.Constraint, error) {
	switch ck {
	case model.ConstraintFixed:
		return model.FixedConstraint(), nil
	case model.ConstraintRange:
		if d.MinValue == nil || d.MaxValue == nil {
			return model.Constraint{}, fmt.Errorf("range constraint requires minValue and maxValue")
		}
		if *d.MinValue > *d.MaxValue {
			return model.Constraint{}, fmt.Errorf("range minValue %v above maxValue %v", *d.MinValue, *d.MaxValue)
		}
		return model.NewRangeConstraint(*d.MinValue, *d.MaxValue), nil
	case model.ConstraintMap:
		if d.Map == nil {
			return model.Constraint{}, fmt.Errorf("map constraint requires a map")
		}
		if !kind.IsDiscrete() && kind != model.KindArray {
			return model.Constraint{}, fmt.Errorf("map constraint on %s field", kind)
		}
		entries := make([]model.MapEntry, 0, len(*d.Map))
		for i, e := range *d.Map {
			if e.Value == nil {
				return model.Constraint{}, fmt.Errorf("map entry #%d without value", i)
			}
			entry := model.MapEntry{Value: *e.Value}
			if e.Tag != nil {
				entry.Tag = *e.Tag
				entry.HasTag = true
			}
			entries = append(entries, entry)
		}
		return model.NewMapConstraint(entries...), nil
	case model.ConstraintNone:
		return model.Constraint{}, nil
	default:
		return model.Constraint{}, fmt.Errorf("unknown constraint %q", string(ck))
	}
}

// GetByName returns a copy of the record template with the given name
func (s *Schema) GetByName(name string) (*model.Record, bool) {
	r, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// GetByType returns a copy of the first record template with the given record type
func (s *Schema) GetByType(recordType byte) (*model.Record, bool) {
	for _, r := range s.records {
		if r.RecordType != nil && *r.RecordType == recordType {
			return r.Clone(), true
		}
	}
	return nil, false
}

// GetByCommandCode returns a copy of the first record template sent with the command code
func (s *Schema) GetByCommandCode(code byte) (*model.Record, bool) {
	for _, r := range s.records {
		if r.CommandCode == code {
			return r.Clone(), true
		}
	}
	return nil, false
}

// Records returns copies of all templates in declaration order
func (s *Schema) Records() []*model.Record {
	out := make([]*model.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	return out
}

// Len returns the number of record templates
func (s *Schema) Len() int {
	return len(s.records)
}
