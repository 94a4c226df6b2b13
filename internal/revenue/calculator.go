package revenue

import (
	"fmt"
	"math"
	"strings"
)

// Mode selects how gross sale maps to revenue.
type Mode string

const (
	// ModeMarginal charges each slab portion at its own rate.
	ModeMarginal Mode = "marginal"
	// ModeFlat charges the whole amount at the rate of its bracket.
	ModeFlat Mode = "flat"
)

// ParseMode accepts "marginal" or "flat"; empty defaults to marginal.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeMarginal:
		return ModeMarginal, nil
	case ModeFlat:
		return ModeFlat, nil
	}
	return "", fmt.Errorf("revenue: unknown mode %q", raw)
}

// Result carries both revenue figures for one gross amount.
type Result struct {
	Marginal float64 `json:"marginal"`
	Flat     float64 `json:"flat"`
}

// Portion is the share of a gross amount falling inside one slab.
type Portion struct {
	Slab    Slab
	Amount  float64 // crores
	Rate    float64
	Revenue float64 // minor units
}

func chargeable(gross float64) bool {
	return gross > 0 && !math.IsNaN(gross) && !math.IsInf(gross, 0)
}

// Marginal computes tiered revenue for a gross amount in minor units.
func (t Table) Marginal(gross float64) float64 {
	var total float64
	for _, p := range t.Breakdown(gross) {
		total += p.Revenue
	}
	return total
}

// Flat charges the whole gross at the rate of the bracket containing it.
func (t Table) Flat(gross float64) float64 {
	if !chargeable(gross) || len(t.slabs) == 0 {
		return 0
	}
	amt := gross / Crore
	for _, s := range t.slabs {
		if s.contains(amt) {
			return gross * s.Rate / 100
		}
	}
	return gross * t.slabs[len(t.slabs)-1].Rate / 100
}

// Compute returns marginal and flat revenue together.
func (t Table) Compute(gross float64) Result {
	return Result{Marginal: t.Marginal(gross), Flat: t.Flat(gross)}
}

// Revenue dispatches on mode.
func (t Table) Revenue(gross float64, mode Mode) float64 {
	if mode == ModeFlat {
		return t.Flat(gross)
	}
	return t.Marginal(gross)
}

// Breakdown walks the slabs in order and returns the non-empty portions.
func (t Table) Breakdown(gross float64) []Portion {
	if !chargeable(gross) {
		return nil
	}
	amt := gross / Crore
	var out []Portion
	for _, s := range t.slabs {
		if amt <= s.Min {
			break
		}
		portion := math.Min(amt-s.Min, s.width(amt))
		if portion <= 0 {
			continue
		}
		out = append(out, Portion{
			Slab:    s,
			Amount:  portion,
			Rate:    s.Rate,
			Revenue: portion * s.Rate / 100 * Crore,
		})
	}
	return out
}

// Marginal uses DefaultTable.
func Marginal(gross float64) float64 { return DefaultTable.Marginal(gross) }

// Flat uses DefaultTable.
func Flat(gross float64) float64 { return DefaultTable.Flat(gross) }
