package analytics

import (
	"slices"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
)

// evolution band outside which a pharmacy is treated as an outlier
var (
	evolutionFloor   = decimal.NewFromInt(-100)
	evolutionCeiling = decimal.NewFromInt(100)
)

// SafeRatio returns a/b, or 0 when b is 0
func SafeRatio(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.Div(b)
}

// EvolutionPct returns ((current - previous) / previous) * 100, or 0 when previous is 0
func EvolutionPct(current, previous decimal.Decimal) decimal.Decimal {
	return SafeRatio(current.Sub(previous), previous).Mul(hundred)
}

// MarginRate returns (margin / salesHT) * 100, or 0 when salesHT is 0
func MarginRate(marginHT, salesHT decimal.Decimal) decimal.Decimal {
	return SafeRatio(marginHT, salesHT).Mul(hundred)
}

// MarketSharePct returns (value / total) * 100, or 0 when total is 0
func MarketSharePct(value, total decimal.Decimal) decimal.Decimal {
	return SafeRatio(value, total).Mul(hundred)
}

// PriceGapPct returns how far the selection price sits above (or below) the
// market price, in percent. Without a market split there is no external
// reference and the gap is 0.
func PriceGapPct(mode QueryMode, selection, market decimal.Decimal) decimal.Decimal {
	if !mode.HasMarketSplit() {
		return decimal.Zero
	}
	return EvolutionPct(selection, market)
}

// ExcludingTax converts a tax-inclusive amount to tax-exclusive with a VAT percentage
func ExcludingTax(ttc, tvaPct decimal.Decimal) decimal.Decimal {
	return SafeRatio(ttc, decimal.NewFromInt(1).Add(tvaPct.Div(hundred)))
}

// PeriodPair is an entity's value over the current and comparison periods
type PeriodPair struct {
	Current  decimal.Decimal
	Previous decimal.Decimal
}

// RelativeEvolution is the result of the median normalization for one entity
type RelativeEvolution struct {
	Evolution decimal.Decimal
	// Relative is nil for entities without a usable baseline or outside [-100, 100]
	Relative *decimal.Decimal
}

// MedianRelativeEvolutions computes each entity's evolution and its distance
// to the median evolution. Only entities with a non-zero previous value and an
// evolution within [-100, 100] take part in the median and get a relative score.
func MedianRelativeEvolutions(pairs []PeriodPair) ([]RelativeEvolution, *decimal.Decimal) {
	out := make([]RelativeEvolution, len(pairs))
	valid := make([]bool, len(pairs))
	var sample []decimal.Decimal
	for i, p := range pairs {
		evo := EvolutionPct(p.Current, p.Previous)
		out[i].Evolution = evo
		if p.Previous.IsZero() || evo.LessThan(evolutionFloor) || evo.GreaterThan(evolutionCeiling) {
			continue
		}
		valid[i] = true
		sample = append(sample, evo)
	}
	median, ok := Median(sample)
	if !ok {
		return out, nil
	}
	for i := range out {
		if !valid[i] {
			continue
		}
		rel := out[i].Evolution.Sub(median)
		out[i].Relative = &rel
	}
	return out, &median
}

// Median returns the median of values; the mean of the two middle values for even counts
func Median(values []decimal.Decimal) (decimal.Decimal, bool) {
	if len(values) == 0 {
		return decimal.Zero, false
	}
	sorted := slices.Clone(values)
	slices.SortFunc(sorted, func(a, b decimal.Decimal) int { return a.Cmp(b) })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], true
	}
	return sorted[mid-1].Add(sorted[mid]).Div(two), true
}

// Round2 rounds to 2 decimals for the response boundary
func Round2(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// Round2Ptr rounds an optional value; nil stays nil
func Round2Ptr(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	v := Round2(*d)
	return &v
}
