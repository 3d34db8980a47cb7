package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	tests := map[string]struct {
		in     float64
		places int32
		want   string
	}{
		"half up":      {in: 1.005, places: 2, want: "1.01"},
		"float noise":  {in: 0.1 + 0.2, places: 2, want: "0.30"},
		"zero padded":  {in: 0, places: 3, want: "0.000"},
		"whole number": {in: 12, places: 2, want: "12.00"},
		"kwh":          {in: 3.14159, places: 3, want: "3.142"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.in, tt.places))
		})
	}
}

func TestArithmetic(t *testing.T) {
	price, err := New("0.32")
	require.NoError(t, err)
	vat, err := New("1.19")
	require.NoError(t, err)

	gross := FromFloat(10).Mul(price).Mul(vat).Round(2)
	assert.Equal(t, "3.81", gross.String())
	assert.Equal(t, "0.61", gross.Sub(FromFloat(3.2)).String())
	assert.Equal(t, 1, gross.Cmp(price))
	assert.InDelta(t, 3.81, gross.Float64(), 1e-12)

	_, err = New("abc")
	assert.Error(t, err)
}
