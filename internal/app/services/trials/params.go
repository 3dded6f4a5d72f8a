package trials

import (
	"math"
	"strconv"
	"strings"

	apperrors "github.com/R3E-Network/voice_metrics/internal/errors"
)

const (
	// DefaultRange is the window applied when a range parameter is absent.
	DefaultRange = 20
	// DefaultPageSize is the listing page size when limit is absent.
	DefaultPageSize = 20

	// Unbounded disables the result limit of a windowed query.
	Unbounded = 0

	allPeople = "all"
)

// ParseRange interprets a range-like query parameter. present reports whether
// the parameter was supplied at all. The result is a positive limit or
// Unbounded.
func ParseRange(raw string, present bool) int {
	if !present {
		return DefaultRange
	}
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, allPeople) {
		return Unbounded
	}
	n, ok := integerPrefix(raw)
	if !ok || n <= 0 {
		return Unbounded
	}
	return n
}

// integerPrefix parses a leading optionally signed run of decimal digits, so
// "15abc" yields 15.
func integerPrefix(s string) (int, bool) {
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		// overflow: clamp to the largest window
		if s[0] == '-' {
			return 0, true
		}
		return math.MaxInt32, true
	}
	return n, true
}

// CoercePerson renders a listing person filter the way numeric identifiers
// are stored, so "01" and "1.0" both select person "1". A blank value selects
// person "0"; values that are not numbers become "NaN" and select nothing.
func CoercePerson(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "0"
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return formatNumber(f)
		}
		return "NaN"
	}
	return formatNumber(f)
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		// drops the sign of negative zero
		return "0"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// IsAllPeople reports whether person selects every trial.
func IsAllPeople(person string) bool {
	return strings.EqualFold(person, allPeople)
}

// ParsePositive parses a page or limit parameter. An empty value yields def.
func ParsePositive(name, raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Query(name+" must be a positive integer", err)
	}
	if n < 1 {
		return 0, apperrors.Query(name+" must be a positive integer", nil)
	}
	return n, nil
}
