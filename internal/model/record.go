// internal/model/record.go
package model

// CommandFileConfiguration is the command code of application file records,
// which carry the multi-page and file control prefix on the wire.
const CommandFileConfiguration byte = 0x64

// Record is a record definition owned by the schema, or a cloned instance
// whose fields carry configured values.
type Record struct {
	CommandCode byte     `json:"command_code"`
	Name        string   `json:"name"`
	RecordType  *byte    `json:"record_type,omitempty"`
	Fields      []*Field `json:"fields"`
	TotalWidth  int      `json:"total_width"`
}

// NewRecord creates an empty record definition
func NewRecord(commandCode byte, name string, recordType *byte) *Record {
	r := &Record{
		CommandCode: commandCode,
		Name:        name,
	}
	if recordType != nil {
		t := *recordType
		r.RecordType = &t
	}
	return r
}

// AddField appends a field and accounts its width
func (r *Record) AddField(f *Field) {
	r.Fields = append(r.Fields, f)
	r.TotalWidth += f.Width
}

// FieldByName returns the field with the given name
func (r *Record) FieldByName(name string) (*Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// MissingMandatory lists mandatory fields that have neither a value nor a default
func (r *Record) MissingMandatory() []string {
	var missing []string
	for _, f := range r.Fields {
		if f.Policy == PolicyMandatory && !f.HasValue() && !f.HasDefault() {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// CheckSanity reports whether every mandatory field can be encoded
func (r *Record) CheckSanity() bool {
	return len(r.MissingMandatory()) == 0
}

// IsFileConfiguration reports whether the record is sent as an application file
func (r *Record) IsFileConfiguration() bool {
	return r.CommandCode == CommandFileConfiguration
}

// Clone returns a deep copy; mutating the copy never affects the receiver
func (r *Record) Clone() *Record {
	out := NewRecord(r.CommandCode, r.Name, r.RecordType)
	out.Fields = make([]*Field, 0, len(r.Fields))
	for _, f := range r.Fields {
		out.Fields = append(out.Fields, f.Clone())
	}
	out.TotalWidth = r.TotalWidth
	return out
}
