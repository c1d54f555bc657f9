package analytics

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestZeroDenominators(t *testing.T) {
	assert.True(t, SafeRatio(d(10), decimal.Zero).IsZero())
	assert.True(t, EvolutionPct(d(10), decimal.Zero).IsZero())
	assert.True(t, MarginRate(d(3), decimal.Zero).IsZero())
	assert.True(t, MarketSharePct(d(3), decimal.Zero).IsZero())
	assert.True(t, PriceGapPct(ModeUserScoped, d(5), decimal.Zero).IsZero())
	assert.Equal(t, 0.0, Round2(EvolutionPct(decimal.Zero, decimal.Zero)))
}

func TestCalculator(t *testing.T) {
	tests := []struct {
		name string
		got  decimal.Decimal
		want float64
	}{
		{"ratio", SafeRatio(d(1), d(3)), 0.33},
		{"evolution up", EvolutionPct(d(150), d(100)), 50},
		{"evolution down", EvolutionPct(d(75), d(100)), -25},
		{"margin rate", MarginRate(d(25), d(80)), 31.25},
		{"market share", MarketSharePct(d(20), d(80)), 25},
		{"price gap above market", PriceGapPct(ModeAdminWithSelection, d(11), d(10)), 10},
		{"price gap below market", PriceGapPct(ModeUserScoped, d(9), d(10)), -10},
		{"excluding tax", ExcludingTax(d(12), d(20)), 10},
		{"excluding tax at 2.1%", ExcludingTax(d(10.21), d(2.1)), 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Round2(tt.got))
		})
	}
}

func TestPriceGapWithoutSelectionIsZero(t *testing.T) {
	assert.True(t, PriceGapPct(ModeAdminWithoutSelection, d(12.5), d(9.99)).IsZero())
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.24, Round2(d(1.235)))
	assert.Equal(t, -1.24, Round2(d(-1.235)))
	assert.Nil(t, Round2Ptr(nil))
	v := d(3.14159)
	assert.Equal(t, 3.14, *Round2Ptr(&v))
}

func TestMedian(t *testing.T) {
	_, ok := Median(nil)
	assert.False(t, ok)

	m, ok := Median([]decimal.Decimal{d(30), d(10), d(20)})
	require.True(t, ok)
	assert.True(t, m.Equal(d(20)))

	m, ok = Median([]decimal.Decimal{d(40), d(10), d(20), d(30)})
	require.True(t, ok)
	assert.True(t, m.Equal(d(25)))
}

func TestMedianRelativeEvolutions(t *testing.T) {
	t.Run("outlier excluded from median and score", func(t *testing.T) {
		// evolutions -150, 10, 20, 30
		pairs := []PeriodPair{
			{Current: d(-50), Previous: d(100)},
			{Current: d(110), Previous: d(100)},
			{Current: d(120), Previous: d(100)},
			{Current: d(130), Previous: d(100)},
		}
		out, median := MedianRelativeEvolutions(pairs)
		require.NotNil(t, median)
		assert.Equal(t, 20.0, Round2(*median))

		require.Len(t, out, 4)
		assert.Equal(t, -150.0, Round2(out[0].Evolution))
		assert.Nil(t, out[0].Relative)
		assert.Equal(t, -10.0, *Round2Ptr(out[1].Relative))
		assert.Equal(t, 0.0, *Round2Ptr(out[2].Relative))
		assert.Equal(t, 10.0, *Round2Ptr(out[3].Relative))
	})

	t.Run("zero baseline has no relative score", func(t *testing.T) {
		out, median := MedianRelativeEvolutions([]PeriodPair{
			{Current: d(500), Previous: decimal.Zero},
			{Current: d(90), Previous: d(100)},
		})
		require.NotNil(t, median)
		assert.Equal(t, -10.0, Round2(*median))
		assert.True(t, out[0].Evolution.IsZero())
		assert.Nil(t, out[0].Relative)
		assert.Equal(t, 0.0, *Round2Ptr(out[1].Relative))
	})

	t.Run("bounds are inclusive", func(t *testing.T) {
		out, _ := MedianRelativeEvolutions([]PeriodPair{
			{Current: d(200), Previous: d(100)},
			{Current: decimal.Zero, Previous: d(100)},
		})
		assert.NotNil(t, out[0].Relative)
		assert.NotNil(t, out[1].Relative)
	})

	t.Run("no valid sample", func(t *testing.T) {
		out, median := MedianRelativeEvolutions([]PeriodPair{{Current: d(1), Previous: decimal.Zero}})
		assert.Nil(t, median)
		assert.Nil(t, out[0].Relative)
	})
}
