package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPercentRoundsHalfUp(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		pct    int64
		want   int64
	}{
		{"exact", 10000, 10, 1000},
		{"half rounds up", 101, 50, 51},
		{"below half rounds down", 33, 10, 3},
		{"above half rounds up", 37, 10, 4},
		{"zero percent", 10000, 0, 0},
		{"full percent", 10000, 100, 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromCents(tt.amount).ApplyPercent(tt.pct)
			assert.Equal(t, tt.want, got.Cents())
		})
	}
}

func TestApplyRateRoundsOnce(t *testing.T) {
	rate := decimal.RequireFromString("0.03")

	assert.Equal(t, int64(300), FromCents(10000).ApplyRate(rate).Cents())
	// 999 * 0.03 = 29.97 -> 30, a single rounding step.
	assert.Equal(t, int64(30), FromCents(999).ApplyRate(rate).Cents())
	// 50 * 0.03 = 1.5 -> 2 on the half boundary.
	assert.Equal(t, int64(2), FromCents(50).ApplyRate(rate).Cents())
}

func TestArithmetic(t *testing.T) {
	m := FromCents(250)
	assert.Equal(t, int64(750), m.MulInt(3).Cents())
	assert.Equal(t, int64(300), m.Add(FromCents(50)).Cents())
	assert.Equal(t, int64(200), m.Sub(FromCents(50)).Cents())
	assert.True(t, FromCents(-1).IsNegative())
	assert.False(t, Zero.IsNegative())
}

func TestString(t *testing.T) {
	assert.Equal(t, "103.00", FromCents(10300).String())
	assert.Equal(t, "0.05", FromCents(5).String())
	assert.Equal(t, "0.00", Zero.String())
}

func TestParse(t *testing.T) {
	m, err := Parse("103.00")
	require.NoError(t, err)
	assert.Equal(t, int64(10300), m.Cents())

	m, err = Parse("0.05")
	require.NoError(t, err)
	assert.Equal(t, int64(5), m.Cents())

	_, err = Parse("1.005")
	assert.Error(t, err)

	_, err = Parse("not-a-number")
	assert.Error(t, err)
}
