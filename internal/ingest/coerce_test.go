package ingest

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCoerceNumber(t *testing.T) {
	cases := []struct {
		in   any
		want float64
	}{
		{"₹1,000", 1000},
		{"(500)", -500},
		{"(₹500)", -500},
		{"₹(500)", -500},
		{"Rs.(1,000)", -1000},
		{"(Rs. 1,000)", -1000},
		{"$ (25)", -25},
		{"(25) INR", -25},
		{" 1,23,456.50 ", 123456.5},
		{"$ 42", 42},
		{"Rs. 250", 250},
		{"INR 75", 75},
		{"100 units", 100},
		{"-12.5", -12.5},
		{12.0, 12},
		{int64(7), 7},
		{true, 1},
		{false, 0},
	}
	for _, tc := range cases {
		got, err := CoerceNumber(tc.in)
		require.NoError(t, err, "input %v", tc.in)
		require.InDelta(t, tc.want, got, 1e-9, "input %v", tc.in)
	}
}

func TestCoerceNumberNoValue(t *testing.T) {
	for _, in := range []any{nil, "", "  ", "-", "NA", "n/a", "N/A", "#N/A", "#REF!", math.NaN()} {
		_, err := CoerceNumber(in)
		require.ErrorIs(t, err, ErrNoValue, "input %v", in)
	}
}

func TestCoerceNumberUnreadable(t *testing.T) {
	for _, in := range []any{"abc", "n.a.", struct{}{}} {
		_, err := CoerceNumber(in)
		var ce *CoercionError
		require.ErrorAs(t, err, &ce, "input %v", in)
	}
}

func TestCoerceDateDayFirst(t *testing.T) {
	got, err := CoerceDate("19-10-2024")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, time.October, 19, 0, 0, 0, 0, time.UTC), got)

	got, err = CoerceDate("05/01/2024")
	require.NoError(t, err)
	require.Equal(t, time.January, got.Month())
	require.Equal(t, 5, got.Day())

	_, err = CoerceDate("31-02-2024")
	var ce *CoercionError
	require.ErrorAs(t, err, &ce)
}

func TestCoerceDateSerial(t *testing.T) {
	got, err := CoerceDate(45584.0)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, time.October, 19, 0, 0, 0, 0, time.UTC), got)

	got, err = CoerceDate(45584.5)
	require.NoError(t, err)
	require.Equal(t, 12, got.Hour())

	got, err = CoerceDate(1)
	require.NoError(t, err)
	require.Equal(t, time.Date(1899, time.December, 31, 0, 0, 0, 0, time.UTC), got)

	_, err = CoerceDate(1e12)
	require.Error(t, err)
}

func TestCoerceDateGenericAndBlank(t *testing.T) {
	got, err := CoerceDate("2024-03-15")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), got)

	in := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	got, err = CoerceDate(in)
	require.NoError(t, err)
	require.Equal(t, in, got)

	for _, blank := range []any{nil, "", "   ", time.Time{}} {
		_, err := CoerceDate(blank)
		require.ErrorIs(t, err, ErrNoValue)
	}

	_, err = CoerceDate("not a date")
	require.Error(t, err)
	require.False(t, NoValue(err))
}

func TestIsBlankRow(t *testing.T) {
	require.True(t, IsBlankRow(map[string]any{"a": nil, "b": "", "c": "  ", "d": math.NaN()}))
	require.True(t, IsBlankRow(map[string]any{}))
	require.False(t, IsBlankRow(map[string]any{"a": nil, "b": 0.0}))
	require.False(t, IsBlankRow(map[string]any{"a": "x"}))
}

func TestNormalizeColumnName(t *testing.T) {
	require.Equal(t, "invoice_no.", NormalizeColumnName("  Invoice   No. "))
	require.Equal(t, "stn_no./invoice_no.", NormalizeColumnName("STN No./Invoice No."))
	require.Equal(t, "invoice_gross_total_value", NormalizeColumnName("INVOICE GROSS TOTAL VALUE"))
}
