/**
 * @description
 * This package is the single canonicalization point for phone numbers. Every
 * call site that needs an identity key (registration, login, payment
 * initiation) must go through Normalize; divergent per-handler formatting is a
 * known duplicate-account hazard and is deliberately impossible here.
 *
 * Two canonical forms exist:
 *   - Normalize: internal identity key `+254[17]XXXXXXXX` (13 characters).
 *   - FormatForProvider: the M-Pesa wire form `254XXXXXXXXX` (12 digits).
 * They are different representations of the same subscriber and must not be
 * mixed up: the identity key carries a `+`, the provider form never does.
 */

package phone

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidFormat is the only failure Normalize and FormatForProvider return.
var ErrInvalidFormat = errors.New("invalid phone number format")

// canonicalPattern validates the Kenyan identity key: +254, a 7 or 1 trunk
// digit, then eight more digits.
var canonicalPattern = regexp.MustCompile(`^\+254[17]\d{8}$`)

// Normalize converts raw user input into the canonical identity key.
// Accepted input shapes: `07XXXXXXXX`, `01XXXXXXXX`, `7XXXXXXXX`, `1XXXXXXXX`
// and `+2547XXXXXXXX`/`+2541XXXXXXXX`, with any spaces or dashes mixed in.
// Normalize is idempotent: feeding it its own output returns the same key.
func Normalize(raw string) (string, error) {
	cleaned := stripFormatting(raw)
	if cleaned == "" {
		return "", ErrInvalidFormat
	}

	switch {
	case strings.HasPrefix(cleaned, "0"):
		cleaned = "+254" + cleaned[1:]
	case strings.HasPrefix(cleaned, "7"), strings.HasPrefix(cleaned, "1"):
		cleaned = "+254" + cleaned
	case strings.HasPrefix(cleaned, "+254"):
		// already carries the country prefix
	default:
		return "", ErrInvalidFormat
	}

	if !canonicalPattern.MatchString(cleaned) {
		return "", ErrInvalidFormat
	}
	return cleaned, nil
}

// FormatForProvider converts raw input into the 12-digit `254XXXXXXXXX` form
// the payment provider requires. This is intentionally separate from Normalize:
// the provider rejects a leading `+`.
func FormatForProvider(raw string) (string, error) {
	cleaned := strings.TrimPrefix(stripFormatting(raw), "+")
	if cleaned == "" {
		return "", ErrInvalidFormat
	}

	switch {
	case strings.HasPrefix(cleaned, "0"):
		cleaned = "254" + cleaned[1:]
	case strings.HasPrefix(cleaned, "7"), strings.HasPrefix(cleaned, "1"):
		cleaned = "254" + cleaned
	}

	if len(cleaned) != 12 || !strings.HasPrefix(cleaned, "254") {
		return "", ErrInvalidFormat
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return "", ErrInvalidFormat
		}
	}
	return cleaned, nil
}

// stripFormatting removes whitespace and punctuation, keeping digits and a
// single leading plus sign.
func stripFormatting(raw string) string {
	trimmed := strings.TrimSpace(raw)
	var b strings.Builder
	for i, r := range trimmed {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
