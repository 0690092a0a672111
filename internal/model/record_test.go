package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func positionRecord() *Record {
	recordType := byte(3)
	r := NewRecord(CommandFileConfiguration, "POSITION", &recordType)
	r.AddField(modeField())
	r.AddField(&Field{
		Name:       "OFFSET",
		Kind:       KindFloat,
		Width:      4,
		Default:    0.0,
		Constraint: NewRangeConstraint(-10, 10),
	})
	return r
}

func TestRecordTotalWidth(t *testing.T) {
	r := positionRecord()
	require.Equal(t, 5, r.TotalWidth)
	require.True(t, r.IsFileConfiguration())
}

func TestRecordSanity(t *testing.T) {
	r := positionRecord()
	require.False(t, r.CheckSanity())
	require.Equal(t, []string{"MODE"}, r.MissingMandatory())

	mode, ok := r.FieldByName("MODE")
	require.True(t, ok)
	require.NoError(t, mode.Assign("mobile"))
	require.True(t, r.CheckSanity())
}

func TestRecordSanityDefaultExempt(t *testing.T) {
	r := NewRecord(0x10, "RATE", nil)
	r.AddField(&Field{Name: "HZ", Kind: KindByte, Width: 1, Policy: PolicyMandatory, Default: int64(1)})
	require.True(t, r.CheckSanity())
}

func TestRecordCloneIsIndependent(t *testing.T) {
	r := positionRecord()
	r.AddField(&Field{Name: "MASK", Kind: KindArray, Width: 2, Default: []byte{1, 2}})

	c := r.Clone()
	mode, _ := c.FieldByName("MODE")
	require.NoError(t, mode.Assign(1))
	mode.Constraint.Entries[0].Tag = "changed"
	*c.RecordType = 9
	mask, _ := c.FieldByName("MASK")
	mask.Default.([]byte)[0] = 99

	orig, _ := r.FieldByName("MODE")
	require.False(t, orig.HasValue())
	require.Equal(t, "static", orig.Constraint.Entries[0].Tag)
	require.Equal(t, byte(3), *r.RecordType)
	origMask, _ := r.FieldByName("MASK")
	require.Equal(t, []byte{1, 2}, origMask.Default)
	require.Equal(t, r.TotalWidth, c.TotalWidth)
}

func TestFieldByNameMissing(t *testing.T) {
	_, ok := positionRecord().FieldByName("NOPE")
	require.False(t, ok)
}
