package sizing

import (
	"testing"

	"order-executor/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeQuantity(t *testing.T) {
	tests := []struct {
		name    string
		capital float64
		price   float64
		want    int
	}{
		{"exact", 10000, 100, 100},
		{"floors", 10000, 333, 30},
		{"below one share", 50, 100, 0},
		{"zero price", 1000, 0, 0},
		{"negative capital", -10, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeQuantity(tt.capital, tt.price))
		})
	}
}

func TestComputeThresholds(t *testing.T) {
	sl, tg := ComputeThresholds(100, 0.5, 1.0)
	assert.Equal(t, 99.5, sl)
	assert.Equal(t, 101.0, tg)

	sl, tg = ComputeThresholds(100, 1.0, 1.0)
	assert.Equal(t, 99.0, sl)
	assert.Equal(t, 101.0, tg)

	// 1234.567 * 0.98 = 1209.87566
	sl, tg = ComputeThresholds(1234.567, 2, 3)
	assert.Equal(t, 1209.88, sl)
	assert.Equal(t, 1271.6, tg)
}

func TestComputeThresholds_Ordering(t *testing.T) {
	entries := []float64{9.99, 100, 487.35, 2999.95, 15000}
	pcts := []float64{0.1, 0.5, 1, 2.5, 10, 50}
	for _, e := range entries {
		for _, p := range pcts {
			sl, tg := ComputeThresholds(e, p, p)
			assert.Less(t, sl, e, "entry=%v pct=%v", e, p)
			assert.Greater(t, tg, e, "entry=%v pct=%v", e, p)
		}
	}
}

func TestComputePnL(t *testing.T) {
	pnl, pct := ComputePnL(100, 99.4, 100)
	assert.Equal(t, -60.0, pnl)
	assert.Equal(t, -0.6, pct)

	pnl, pct = ComputePnL(100, 101, 100)
	assert.Equal(t, 100.0, pnl)
	assert.Equal(t, 1.0, pct)

	for _, e := range []float64{0.05, 1, 99.95, 1234.5} {
		pnl, pct = ComputePnL(e, e, 37)
		assert.Zero(t, pnl)
		assert.Zero(t, pct)
	}
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 100.0, Round2(99.995))
	assert.Equal(t, -1.24, Round2(-1.235))
	assert.Equal(t, 12.3, Round2(12.3))
}

func TestParsePercent(t *testing.T) {
	valid := map[string]float64{
		"1":        1,
		"1.5%":     1.5,
		" 2 % ":    2,
		"0":        0,
		"100%":     100,
		"\t0.25\n": 0.25,
	}
	for in, want := range valid {
		got, err := ParsePercent(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "%", "-1", "-0.5%", "100.01", "abc", "NaN", "1.2.3%"} {
		_, err := ParsePercent(in)
		require.Error(t, err, in)
		assert.ErrorIs(t, err, types.ErrValidation, in)
	}
}

func TestFormatProjection(t *testing.T) {
	msg := FormatProjection(100, 99.5, 101, 100)
	assert.Contains(t, msg, "Loss on SL: -50.00 (-0.50%)")
	assert.Contains(t, msg, "Profit on target: 100.00 (1.00%)")
}
