package ingest

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/cast"
)

var (
	currencyWord  = regexp.MustCompile(`(?i)^(rs\.?|inr)|(rs\.?|inr)$`)
	embeddedFloat = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	dayFirstDate  = regexp.MustCompile(`^(\d{1,2})[-/](\d{1,2})[-/](\d{4})$`)

	// Spreadsheet day zero; serial 1 is 1899-12-31.
	serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)
)

const (
	msPerDay = 86_400_000
	// Serial bounds for years 0001 through 9999.
	minSerial = -693_593
	maxSerial = 2_958_465
)

// CoerceNumber reads a spreadsheet cell as a float. Blank, NA and error cells
// yield ErrNoValue; unreadable text yields a *CoercionError.
func CoerceNumber(v any) (float64, error) {
	switch val := v.(type) {
	case nil:
		return 0, ErrNoValue
	case string:
		return coerceNumberString(val)
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	case float64:
		return finite(val, v)
	case float32:
		return finite(float64(val), v)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, &CoercionError{Kind: "number", Value: v}
	}
	return finite(f, v)
}

func finite(f float64, raw any) (float64, error) {
	switch {
	case math.IsNaN(f):
		return 0, ErrNoValue
	case math.IsInf(f, 0):
		return 0, &CoercionError{Kind: "number", Value: raw}
	}
	return f, nil
}

func coerceNumberString(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "", "-", "na", "n/a":
		return 0, ErrNoValue
	}
	if strings.HasPrefix(s, "#") {
		return 0, ErrNoValue
	}

	s = strings.Map(func(r rune) rune {
		switch {
		case r == ',' || unicode.IsSpace(r):
			return -1
		case r == '₹' || r == '$' || r == '€' || r == '£' || r == '¥':
			return -1
		}
		return r
	}, s)
	s = currencyWord.ReplaceAllString(s, "")

	// Accounting negatives may carry the currency inside or outside the parentheses.
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = currencyWord.ReplaceAllString(strings.TrimSuffix(strings.TrimPrefix(s, "("), ")"), "")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		m := embeddedFloat.FindString(s)
		if m == "" {
			return 0, &CoercionError{Kind: "number", Value: raw}
		}
		if f, err = strconv.ParseFloat(m, 64); err != nil {
			return 0, &CoercionError{Kind: "number", Value: raw}
		}
	}
	if negative {
		f = -math.Abs(f)
	}
	return f, nil
}

// CoerceDate reads a spreadsheet cell as a UTC instant. Numbers are serial
// dates; strings are tried as DD-MM-YYYY / DD/MM/YYYY first.
func CoerceDate(v any) (time.Time, error) {
	switch val := v.(type) {
	case nil:
		return time.Time{}, ErrNoValue
	case time.Time:
		if val.IsZero() {
			return time.Time{}, ErrNoValue
		}
		return val.UTC(), nil
	case *time.Time:
		if val == nil {
			return time.Time{}, ErrNoValue
		}
		return CoerceDate(*val)
	case string:
		return coerceDateString(val)
	case bool:
		return time.Time{}, &CoercionError{Kind: "date", Value: v}
	}
	serial, err := cast.ToFloat64E(v)
	if err != nil {
		return time.Time{}, &CoercionError{Kind: "date", Value: v}
	}
	return FromSerial(serial)
}

// FromSerial converts a spreadsheet serial day number to UTC.
func FromSerial(serial float64) (time.Time, error) {
	if math.IsNaN(serial) || math.IsInf(serial, 0) || serial < minSerial || serial > maxSerial {
		return time.Time{}, &CoercionError{Kind: "date", Value: serial}
	}
	days := math.Floor(serial)
	ms := int64(math.Round((serial - days) * msPerDay))
	return serialEpoch.AddDate(0, 0, int(days)).Add(time.Duration(ms) * time.Millisecond), nil
}

func coerceDateString(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, ErrNoValue
	}
	if m := dayFirstDate.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if t.Day() != day || int(t.Month()) != month {
			return time.Time{}, &CoercionError{Kind: "date", Value: raw}
		}
		return t, nil
	}
	t, err := cast.ToTimeInDefaultLocationE(s, time.UTC)
	if err != nil {
		return time.Time{}, &CoercionError{Kind: "date", Value: raw}
	}
	return t.UTC(), nil
}

// IsBlankRow reports whether every cell is nil, empty, whitespace or NaN.
func IsBlankRow(row map[string]any) bool {
	for _, v := range row {
		if !isBlank(v) {
			return false
		}
	}
	return true
}

func isBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case float64:
		return math.IsNaN(val)
	case float32:
		return math.IsNaN(float64(val))
	}
	return false
}

// NoValue reports whether err marks an absent cell.
func NoValue(err error) bool {
	return errors.Is(err, ErrNoValue)
}
