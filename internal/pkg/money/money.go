package money

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// Amount is a decimal value used wherever a number is shown to a person or
// billed, so float noise never leaks into rounded output.
type Amount struct {
	value apd.Decimal
}

func arith() *apd.Context {
	ctx := apd.BaseContext.WithPrecision(34)
	ctx.Rounding = apd.RoundHalfUp
	return ctx
}

func New(s string) (Amount, error) {
	var d apd.Decimal
	if _, _, err := d.SetString(s); err != nil {
		return Amount{}, fmt.Errorf("invalid decimal: %w", err)
	}
	return Amount{value: d}, nil
}

// FromFloat converts f using its shortest decimal representation.
func FromFloat(f float64) Amount {
	var d apd.Decimal
	if _, err := d.SetFloat64(f); err != nil {
		return Amount{}
	}
	return Amount{value: d}
}

func (a Amount) Add(other Amount) Amount {
	var result apd.Decimal
	_, _ = arith().Add(&result, &a.value, &other.value)
	return Amount{value: result}
}

func (a Amount) Sub(other Amount) Amount {
	var result apd.Decimal
	_, _ = arith().Sub(&result, &a.value, &other.value)
	return Amount{value: result}
}

func (a Amount) Mul(other Amount) Amount {
	var result apd.Decimal
	_, _ = arith().Mul(&result, &a.value, &other.value)
	return Amount{value: result}
}

// Round rounds half up to the given number of decimal places.
func (a Amount) Round(places int32) Amount {
	var result apd.Decimal
	_, _ = arith().Quantize(&result, &a.value, -places)
	return Amount{value: result}
}

func (a Amount) IsZero() bool {
	return a.value.IsZero()
}

func (a Amount) Cmp(other Amount) int {
	return a.value.Cmp(&other.value)
}

func (a Amount) Float64() float64 {
	f, _ := a.value.Float64()
	return f
}

func (a Amount) String() string {
	return a.value.Text('f')
}

// Format rounds f to places and renders it in plain notation.
func Format(f float64, places int32) string {
	return FromFloat(f).Round(places).String()
}

func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}
