package money

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToCents(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"50", 5000},
		{"50.00", 5000},
		{"0.1", 10},
		{"19.99", 1999},
		{"0.005", 1},
		{"0.004", 0},
		{"1.015", 102},
		{"1234567.89", 123456789},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, ToCents(decimal.RequireFromString(tc.in)))
		})
	}
}

func TestFromCents(t *testing.T) {
	assert.Equal(t, "50.00", FromCents(5000).StringFixed(2))
	assert.Equal(t, "0.07", FromCents(7).StringFixed(2))
	assert.True(t, FromCents(1999).Equal(decimal.RequireFromString("19.99")))
}

func TestParseCents(t *testing.T) {
	c, err := ParseCents(" 50.00 ")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), c)

	_, err = ParseCents("-1")
	assert.ErrorIs(t, err, ErrNegative)

	_, err = ParseCents("1.001")
	assert.ErrorIs(t, err, ErrPrecision)

	_, err = ParseCents("abc")
	assert.Error(t, err)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "$100.00 MXN", Format(10000, "mxn"))
	assert.Equal(t, "$0.05 USD", Format(5, "usd"))
}

func TestCheckedArithmetic(t *testing.T) {
	v, ok := MulCents(5000, 2)
	assert.True(t, ok)
	assert.Equal(t, int64(10000), v)

	_, ok = MulCents(math.MaxInt64/2+1, 2)
	assert.False(t, ok)

	_, ok = MulCents(-1, 2)
	assert.False(t, ok)

	v, ok = AddCents(10000, 1)
	assert.True(t, ok)
	assert.Equal(t, int64(10001), v)

	_, ok = AddCents(math.MaxInt64, 1)
	assert.False(t, ok)
}

func TestIntegerSumHasNoDrift(t *testing.T) {
	// 0.1 + 0.2 style drift must not appear once prices are in cents.
	var total int64
	for i := 0; i < 1000; i++ {
		line, ok := MulCents(ToCents(decimal.RequireFromString("0.10")), 3)
		require.True(t, ok)
		total, ok = AddCents(total, line)
		require.True(t, ok)
	}
	assert.Equal(t, int64(30000), total)
}
