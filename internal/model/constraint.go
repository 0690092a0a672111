// internal/model/constraint.go
package model

// ConstraintKind represents the validation rule attached to a field
type ConstraintKind string

const (
	ConstraintNone  ConstraintKind = ""
	ConstraintFixed ConstraintKind = "fixed"
	ConstraintRange ConstraintKind = "range"
	ConstraintMap   ConstraintKind = "map"
)

var constraintTable = map[string]ConstraintKind{
	"fixed": ConstraintFixed,
	"range": ConstraintRange,
	"map":   ConstraintMap,
}

// ParseConstraintKind resolves a schema constraint name. Unknown names
// report false so callers can treat the field as unconstrained.
func ParseConstraintKind(text string) (ConstraintKind, bool) {
	c, ok := constraintTable[text]
	return c, ok
}

// MapEntry is one allowed value of a map constraint, optionally selectable by tag
type MapEntry struct {
	Value  int64  `json:"value"`
	Tag    string `json:"tag,omitempty"`
	HasTag bool   `json:"-"`
}

// Constraint is a tagged variant: only the members of the active Kind are meaningful
type Constraint struct {
	Kind    ConstraintKind `json:"kind,omitempty"`
	Min     float64        `json:"min,omitempty"`
	Max     float64        `json:"max,omitempty"`
	Entries []MapEntry     `json:"entries,omitempty"`
}

// NewRangeConstraint creates an inclusive numeric range constraint
func NewRangeConstraint(min, max float64) Constraint {
	return Constraint{Kind: ConstraintRange, Min: min, Max: max}
}

// NewMapConstraint creates an enumerated map constraint
func NewMapConstraint(entries ...MapEntry) Constraint {
	return Constraint{Kind: ConstraintMap, Entries: entries}
}

// FixedConstraint forbids any configured value
func FixedConstraint() Constraint {
	return Constraint{Kind: ConstraintFixed}
}

// InRange reports min <= v <= max
func (c Constraint) InRange(v float64) bool {
	return v >= c.Min && v <= c.Max
}

// HasValue reports whether an entry carries the value
func (c Constraint) HasValue(v int64) bool {
	for _, e := range c.Entries {
		if e.Value == v {
			return true
		}
	}
	return false
}

// LookupTag returns the value of the entry tagged with tag
func (c Constraint) LookupTag(tag string) (int64, bool) {
	for _, e := range c.Entries {
		if e.HasTag && e.Tag == tag {
			return e.Value, true
		}
	}
	return 0, false
}

func (c Constraint) clone() Constraint {
	out := c
	if c.Entries != nil {
		out.Entries = make([]MapEntry, len(c.Entries))
		copy(out.Entries, c.Entries)
	}
	return out
}
