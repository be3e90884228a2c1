package fundboard

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount wraps decimal.Decimal for NAV and growth figures.
// JSON output is a plain number; input accepts numbers, quoted numbers and
// percent strings such as "1.23%".
type Amount struct {
	decimal.Decimal
}

// MarshalJSON outputs as a JSON number (not a string).
func (a Amount) MarshalJSON() ([]byte, error) {
	f, _ := a.Round(4).Float64()
	return []byte(strconv.FormatFloat(f, 'f', -1, 64)), nil
}

// UnmarshalJSON accepts JSON numbers, quoted strings, null and "---".
func (a *Amount) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		a.Decimal = decimal.Zero
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		s, err := strconv.Unquote(string(trimmed))
		if err != nil {
			return err
		}
		d, ok := parseDecimalText(s)
		if !ok {
			a.Decimal = decimal.Zero
			return nil
		}
		a.Decimal = d
		return nil
	}
	return a.Decimal.UnmarshalJSON(trimmed)
}

// String renders the exact decimal text used in prompts.
func (a Amount) String() string {
	return a.Decimal.String()
}

// NewAmount creates an Amount from a float64.
func NewAmount(f float64) Amount {
	return Amount{decimal.NewFromFloat(f)}
}

// ParseAmount parses text like "1.2345" or "-0.52%".
func ParseAmount(s string) (Amount, bool) {
	d, ok := parseDecimalText(s)
	return Amount{d}, ok
}

func parseDecimalText(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" || s == placeholder {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
