// Package money models currency as an exact count of minor units (paisa for BDT).
package money

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnits is the number of decimal places kept for every amount.
const MinorUnits = 2

// Amount is a currency value in minor units.
type Amount int64

// Zero is the empty amount.
const Zero Amount = 0

var (
	// ErrOutOfRange is returned when a value does not fit in an Amount.
	ErrOutOfRange = errors.New("amount out of range")
	// ErrNegative is returned when a price label carries a minus sign.
	ErrNegative = errors.New("amount is negative")

	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// FromMajor converts a whole currency value (e.g. 1200 taka) to an Amount.
func FromMajor(major int64) Amount {
	return Amount(major * 100)
}

// FromDecimal rounds d half-up to the minor unit. Values outside the Amount range saturate.
func FromDecimal(d decimal.Decimal) Amount {
	a, err := fromDecimal(d)
	if err != nil {
		if d.Sign() < 0 {
			return Amount(math.MinInt64)
		}
		return Amount(math.MaxInt64)
	}
	return a
}

func fromDecimal(d decimal.Decimal) (Amount, error) {
	minor := d.Shift(MinorUnits).Round(0)
	if minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		return Zero, ErrOutOfRange
	}
	return Amount(minor.IntPart()), nil
}

// ParseDisplay extracts an amount from a display string such as "৳1,200.50". Every character
// that is not a digit or a dot is dropped first; anything that still fails to parse is zero, and
// so is a value too large for an Amount. "1.200.50" has two dots and is zero, not 1.20.
func ParseDisplay(raw string) Amount {
	a, _, err := parseLabel(raw)
	if err != nil {
		return Zero
	}
	return a
}

// ParsePrice reads a price label the way ParseDisplay does but reports labels that cannot be a
// price: a minus sign before the first digit gives ErrNegative, an oversized value ErrOutOfRange.
func ParsePrice(raw string) (Amount, error) {
	a, negative, err := parseLabel(raw)
	if err != nil {
		return Zero, err
	}
	if negative && a != Zero {
		return Zero, ErrNegative
	}
	return a, nil
}

// parseLabel returns the unsigned value of raw and whether a minus sign preceded its first digit.
func parseLabel(raw string) (Amount, bool, error) {
	var b strings.Builder
	negative := false
	for _, r := range raw {
		switch {
		case (r >= '0' && r <= '9') || r == '.':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			negative = true
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return Zero, negative, nil
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return Zero, negative, nil
	}
	a, err := fromDecimal(d)
	if err != nil {
		return Zero, negative, err
	}
	return a, negative, nil
}

// Decimal returns the amount in major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -MinorUnits)
}

// Percent returns pct percent of a, rounded half-up to the minor unit.
func (a Amount) Percent(pct decimal.Decimal) Amount {
	return FromDecimal(a.Decimal().Mul(pct).Div(decimal.NewFromInt(100)))
}

// Sub subtracts b from a.
func (a Amount) Sub(b Amount) Amount {
	return a - b
}

// NonNegative clamps negative amounts to zero.
func (a Amount) NonNegative() Amount {
	if a < 0 {
		return Zero
	}
	return a
}

// IsPositive reports whether a is greater than zero.
func (a Amount) IsPositive() bool {
	return a > 0
}

// String renders the amount in major units with two decimals, e.g. "1200.50".
func (a Amount) String() string {
	return a.Decimal().StringFixed(MinorUnits)
}

// Display renders the amount with the taka sign and thousands separators, e.g. "৳1,200.50".
func (a Amount) Display() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	major := v / 100
	minor := v % 100
	digits := fmt.Sprintf("%d", major)
	var grouped strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}
	return fmt.Sprintf("%s৳%s.%02d", sign, grouped.String(), minor)
}

// Value implements driver.Valuer.
func (a Amount) Value() (driver.Value, error) {
	return int64(a), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*a = Zero
	case int64:
		*a = Amount(v)
	case []byte:
		d, err := decimal.NewFromString(string(v))
		if err != nil {
			return fmt.Errorf("scan amount: %w", err)
		}
		*a = Amount(d.IntPart())
	default:
		return fmt.Errorf("scan amount: unsupported type %T", src)
	}
	return nil
}

// MarshalJSON renders the amount as a JSON number in major units.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a JSON number in major units or a display string such as "৳1,200".
// A leading minus sign in the string form is kept.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == "" {
		*a = Zero
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		v, negative, err := parseLabel(strings.Trim(raw, `"`))
		if err != nil {
			return fmt.Errorf("decode amount: %w", err)
		}
		if negative {
			v = -v
		}
		*a = v
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("decode amount: %w", err)
	}
	v, err := fromDecimal(d)
	if err != nil {
		return fmt.Errorf("decode amount: %w", err)
	}
	*a = v
	return nil
}
