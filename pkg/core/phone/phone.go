// Package phone turns user-entered phone numbers into the canonical key used for storage and lookup.
package phone

import (
	"fmt"
	"strings"
)

// DefaultCountryCode replaces a leading trunk 0.
const DefaultCountryCode = "+62"

// Normalizer converts raw input into a canonical phone key.
// Normalization is purely syntactic: it never checks length or whether the number is dialable.
type Normalizer struct {
	CountryCode string
}

// NewNormalizer returns a Normalizer for the given country calling code ("+62" style).
func NewNormalizer(countryCode string) (*Normalizer, error) {
	if err := ValidateCountryCode(countryCode); err != nil {
		return nil, err
	}
	return &Normalizer{CountryCode: countryCode}, nil
}

// ValidateCountryCode reports whether code is a '+' followed by at least one digit.
func ValidateCountryCode(code string) error {
	if len(code) < 2 || code[0] != '+' {
		return fmt.Errorf("country code %q must start with '+' followed by digits", code)
	}
	for i := 1; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return fmt.Errorf("country code %q must start with '+' followed by digits", code)
		}
	}
	return nil
}

// Normalize keeps digits and a leading '+', then rewrites a leading 0 to the country code.
// It returns "" when the input holds no digits; callers must treat that as an invalid phone.
func (n *Normalizer) Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	hasDigit := false
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		switch {
		case ch >= '0' && ch <= '9':
			b.WriteByte(ch)
			hasDigit = true
		case ch == '+' && b.Len() == 0:
			b.WriteByte(ch)
		}
	}
	if !hasDigit {
		return ""
	}

	s := b.String()
	if s[0] == '0' {
		cc := n.CountryCode
		if cc == "" {
			cc = DefaultCountryCode
		}
		s = cc + s[1:]
	}
	return s
}

var defaultNormalizer = &Normalizer{CountryCode: DefaultCountryCode}

// Normalize normalizes raw with the default country code.
func Normalize(raw string) string {
	return defaultNormalizer.Normalize(raw)
}
