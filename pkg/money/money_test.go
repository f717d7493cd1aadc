package money

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDisplay(t *testing.T) {
	cases := map[string]Amount{
		"৳1,200.50":   120050,
		"৳1,200":      120000,
		"  1200  ":    120000,
		"BDT 999.999": 100000,
		"0.005":       1,
		"":            0,
		"N/A":         0,
		"1.2.3":       0,
		"1.200.50":    0,
		"Free":        0,
		// beyond the int64 range of minor units
		"৳92233720368547758.08": 0,
		"৳99999999999999999999": 0,
		"৳92233720368547758.07": Amount(math.MaxInt64),
	}
	for raw, want := range cases {
		assert.Equal(t, want, ParseDisplay(raw), raw)
	}
}

func TestPercent(t *testing.T) {
	assert.Equal(t, FromMajor(100), FromMajor(1000).Percent(decimal.NewFromInt(10)))
	assert.Equal(t, Amount(3333), FromMajor(333).Percent(decimal.RequireFromString("10.009")))
	// 12.5% of 0.01 rounds half-up from 0.00125 to 0.00
	assert.Equal(t, Zero, Amount(1).Percent(decimal.RequireFromString("12.5")))
	// 15% of 0.10 is exactly 0.015 and rounds up to 0.02
	assert.Equal(t, Amount(2), Amount(10).Percent(decimal.NewFromInt(15)))
}

func TestNonNegative(t *testing.T) {
	assert.Equal(t, Zero, FromMajor(5).Sub(FromMajor(7)).NonNegative())
	assert.Equal(t, FromMajor(2), FromMajor(7).Sub(FromMajor(5)).NonNegative())
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "1200.50", Amount(120050).String())
	assert.Equal(t, "৳1,200.50", Amount(120050).Display())
	assert.Equal(t, "৳1,234,567.00", FromMajor(1234567).Display())
	assert.Equal(t, "৳0.05", Amount(5).Display())
}

func TestScan(t *testing.T) {
	var a Amount
	assert.NoError(t, a.Scan(int64(4200)))
	assert.Equal(t, Amount(4200), a)
	assert.NoError(t, a.Scan([]byte("990")))
	assert.Equal(t, Amount(990), a)
	assert.NoError(t, a.Scan(nil))
	assert.Equal(t, Zero, a)
	assert.Error(t, a.Scan("oops"))
}

func TestParsePrice(t *testing.T) {
	a, err := ParsePrice("৳1,200.50")
	require.NoError(t, err)
	assert.Equal(t, Amount(120050), a)

	a, err = ParsePrice("TBA")
	require.NoError(t, err)
	assert.Equal(t, Zero, a)

	_, err = ParsePrice("-৳500")
	assert.ErrorIs(t, err, ErrNegative)
	_, err = ParsePrice("৳ -500")
	assert.ErrorIs(t, err, ErrNegative)

	_, err = ParsePrice("৳92233720368547758.08")
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestFromDecimalSaturates(t *testing.T) {
	assert.Equal(t, Amount(math.MaxInt64), FromDecimal(decimal.RequireFromString("1e30")))
	assert.Equal(t, Amount(math.MinInt64), FromDecimal(decimal.RequireFromString("-1e30")))
}

func TestUnmarshalJSON(t *testing.T) {
	var payload struct {
		Fee      Amount `json:"fee"`
		Discount Amount `json:"discount"`
		Label    Amount `json:"label"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"fee": 1200.5, "discount": "-500", "label": "৳1,000"}`), &payload))
	assert.Equal(t, Amount(120050), payload.Fee)
	assert.Equal(t, Amount(-50000), payload.Discount)
	assert.Equal(t, FromMajor(1000), payload.Label)

	var a Amount
	assert.ErrorIs(t, a.UnmarshalJSON([]byte(`"৳99999999999999999999"`)), ErrOutOfRange)
	assert.ErrorIs(t, a.UnmarshalJSON([]byte(`99999999999999999999`)), ErrOutOfRange)
	assert.NoError(t, a.UnmarshalJSON([]byte(`null`)))
	assert.Equal(t, Zero, a)
}
