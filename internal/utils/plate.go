package utils

import (
	"errors"
	"strings"
)

var ErrInvalidPlateFormat = errors.New("invalid plate format")

const (
	minPlateLen = 2
	maxPlateLen = 12
)

// NormalizePlate strips whitespace and separators, uppercases the rest and
// keeps only A-Z and 0-9. The result is the comparison key used everywhere a
// plate is matched. Normalizing an already normalized plate is a no-op.
func NormalizePlate(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToUpper(raw) {
		switch {
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidatePlate normalizes raw and checks it against the plate policy.
// Returns the normalized key or ErrInvalidPlateFormat.
func ValidatePlate(raw string) (string, error) {
	normalized := NormalizePlate(raw)
	if len(normalized) < minPlateLen || len(normalized) > maxPlateLen {
		return "", ErrInvalidPlateFormat
	}
	return normalized, nil
}
