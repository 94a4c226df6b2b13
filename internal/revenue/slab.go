package revenue

import (
	"errors"
	"fmt"
	"strings"
)

// Crore is the number of minor currency units in one crore.
const Crore = 10_000_000

var (
	// ErrEmptyTable indicates a slab table without tiers.
	ErrEmptyTable = errors.New("revenue: slab table has no tiers")
	// ErrUnknownTable indicates an unregistered table name.
	ErrUnknownTable = errors.New("revenue: unknown slab table")
)

// Slab is one revenue tier expressed in crores. A nil Max marks the open top tier.
type Slab struct {
	Min  float64  `json:"min"`
	Max  *float64 `json:"max"`
	Rate float64  `json:"rate"`
}

// Open reports whether the slab has no upper bound.
func (s Slab) Open() bool {
	return s.Max == nil
}

func (s Slab) width(amt float64) float64 {
	if s.Max == nil {
		return amt - s.Min
	}
	return *s.Max - s.Min
}

// contains uses (Min, Max] so boundary amounts stay in the lower tier.
func (s Slab) contains(amt float64) bool {
	return amt > s.Min && (s.Max == nil || amt <= *s.Max)
}

// Table is an immutable ordered list of slabs.
type Table struct {
	name  string
	slabs []Slab
}

// NewTable validates and freezes the slab list.
func NewTable(name string, slabs []Slab) (Table, error) {
	if len(slabs) == 0 {
		return Table{}, ErrEmptyTable
	}
	if slabs[0].Min != 0 {
		return Table{}, fmt.Errorf("revenue: table %s must start at 0, got %v", name, slabs[0].Min)
	}
	frozen := make([]Slab, len(slabs))
	for i, s := range slabs {
		if s.Rate < 0 {
			return Table{}, fmt.Errorf("revenue: table %s slab %d has negative rate", name, i)
		}
		last := i == len(slabs)-1
		switch {
		case s.Max == nil && !last:
			return Table{}, fmt.Errorf("revenue: table %s slab %d is open but not last", name, i)
		case s.Max != nil && *s.Max <= s.Min:
			return Table{}, fmt.Errorf("revenue: table %s slab %d has max <= min", name, i)
		case s.Max != nil && !last && *s.Max != slabs[i+1].Min:
			return Table{}, fmt.Errorf("revenue: table %s slab %d is not contiguous with slab %d", name, i, i+1)
		}
		frozen[i] = s
		if s.Max != nil {
			upper := *s.Max
			frozen[i].Max = &upper
		}
	}
	return Table{name: name, slabs: frozen}, nil
}

// MustTable panics when the slab list is invalid. Intended for package-level tables.
func MustTable(name string, slabs []Slab) Table {
	t, err := NewTable(name, slabs)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the registered table name.
func (t Table) Name() string {
	return t.name
}

// Slabs returns a copy of the tiers.
func (t Table) Slabs() []Slab {
	out := make([]Slab, len(t.slabs))
	for i, s := range t.slabs {
		out[i] = s
		if s.Max != nil {
			out[i].Max = upTo(*s.Max)
		}
	}
	return out
}

func upTo(v float64) *float64 {
	return &v
}

var (
	// V2 is the current tariff.
	V2 = MustTable("v2", []Slab{
		{Min: 0, Max: upTo(5), Rate: 1.75},
		{Min: 5, Max: upTo(8), Rate: 1.65},
		{Min: 8, Max: upTo(11), Rate: 1.55},
		{Min: 11, Max: upTo(14), Rate: 1.45},
		{Min: 14, Max: upTo(17), Rate: 1.35},
		{Min: 17, Max: upTo(20), Rate: 1.25},
		{Min: 20, Rate: 1.15},
	})
	// V1 is the legacy tariff kept for recomputing historical periods.
	V1 = MustTable("v1", []Slab{
		{Min: 0, Max: upTo(5), Rate: 1.75},
		{Min: 5, Max: upTo(8), Rate: 1.69},
		{Min: 8, Max: upTo(11), Rate: 1.57},
		{Min: 11, Max: upTo(14), Rate: 1.47},
		{Min: 14, Max: upTo(17), Rate: 1.39},
		{Min: 17, Rate: 1.39},
	})

	// DefaultTable backs the package-level helpers.
	DefaultTable = V2
)

// LookupTable resolves a table by name; empty selects DefaultTable.
func LookupTable(name string) (Table, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return DefaultTable, nil
	case V2.name:
		return V2, nil
	case V1.name:
		return V1, nil
	}
	return Table{}, fmt.Errorf("%w: %q", ErrUnknownTable, name)
}
