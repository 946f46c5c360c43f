// Package price normalizes locale-formatted price text into numeric values.
// Turkish pages mix "1.234,56" and "1,234.56" style formatting, frequently
// with currency suffixes attached.
package price

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

const (
	// MinPrice and MaxPrice bound plausible product prices. Values outside
	// this range are rejected, which keeps page chrome such as review
	// scores from being mistaken for a price.
	MinPrice = 0.01
	MaxPrice = 1_000_000
)

var ErrInvalidPrice = errors.New("invalid price text")

var (
	currencyRe = regexp.MustCompile(`(?i)(TL|₺)`)
	nonPriceRe = regexp.MustCompile(`[^\d.,]`)
)

// Parse converts price text such as "1.234,56 TL" into a numeric value.
// Pure function, no I/O.
func Parse(text string) (float64, error) {
	cleaned := currencyRe.ReplaceAllString(text, "")
	cleaned = nonPriceRe.ReplaceAllString(cleaned, "")
	if cleaned == "" {
		return 0, ErrInvalidPrice
	}

	normalized := normalizeSeparators(cleaned)
	value, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, ErrInvalidPrice
	}
	if err := Validate(value); err != nil {
		return 0, err
	}
	return value, nil
}

// Validate reports whether a numeric value is a plausible product price.
func Validate(value float64) error {
	if value < MinPrice || value > MaxPrice {
		return ErrInvalidPrice
	}
	return nil
}

// normalizeSeparators rewrites a digits-and-separators string into standard
// decimal notation. When both "." and "," appear, the rightmost one is the
// decimal point and the other is a thousands separator, whichever symbol
// plays which role. A lone separator followed by one or two digits is a
// decimal point; otherwise it separates thousands.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		sep := lastDot
		if lastComma > lastDot {
			sep = lastComma
		}
		return splitAt(s, sep)
	case lastComma >= 0:
		return normalizeSingle(s, ",", lastComma)
	case lastDot >= 0:
		return normalizeSingle(s, ".", lastDot)
	default:
		return s
	}
}

func normalizeSingle(s, sep string, last int) string {
	decimals := len(s) - last - 1
	if strings.Count(s, sep) == 1 && decimals >= 1 && decimals <= 2 {
		return splitAt(s, last)
	}
	return strings.ReplaceAll(s, sep, "")
}

func splitAt(s string, sep int) string {
	intPart := stripSeparators(s[:sep])
	decPart := stripSeparators(s[sep+1:])
	if decPart == "" {
		return intPart
	}
	return intPart + "." + decPart
}

func stripSeparators(s string) string {
	s = strings.ReplaceAll(s, ".", "")
	return strings.ReplaceAll(s, ",", "")
}
