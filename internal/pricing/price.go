// Package pricing contains parsing and totalling logic for cart amounts.
package pricing

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Parse extracts a price from a display string such as "₹550.00".
// Every character except digits and the decimal point is stripped before
// parsing; anything that still does not parse yields 0.
func Parse(value string) float64 {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, value)

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Amount is a price taken from JSON that may arrive as a number or as a
// display string. Unparseable values decode to 0 rather than erroring.
type Amount float64

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*a = Amount(num)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = Amount(Parse(s))
		return nil
	}

	*a = 0
	return nil
}

// Value returns the amount as a plain float64.
func (a Amount) Value() float64 { return float64(a) }

// CoerceQuantity turns a client-supplied quantity into a positive integer.
// Zero, negative and absent quantities all count as 1.
func CoerceQuantity(q float64) int {
	n := int(q)
	if n <= 0 {
		return 1
	}
	return n
}

// ToPaise converts rupees to minor currency units.
func ToPaise(rupees float64) int64 {
	return int64(math.Round(rupees * 100))
}

// NormalizeTotal picks the total to charge: the client-declared total when it
// is a finite positive number, otherwise the calculated one.
func NormalizeTotal(declared, calculated float64) float64 {
	if !math.IsNaN(declared) && !math.IsInf(declared, 0) && declared > 0 {
		return declared
	}
	return calculated
}
