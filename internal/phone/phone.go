// Package phone converts free-form phone strings into the transport's
// addressing format.
package phone

import "strings"

const (
	DefaultCountryCode = "62"
	DefaultTrunkPrefix = "0"

	// DefaultSuffix is the fixed string appended to the digits to form the
	// transport's recipient address.
	DefaultSuffix = "@s.whatsapp.net"
)

// Normalizer rewrites raw phone input into a transport address.
// The zero value is not usable; call New.
type Normalizer struct {
	countryCode string
	trunkPrefix string
	suffix      string
}

func New(countryCode, trunkPrefix, suffix string) Normalizer {
	if strings.TrimSpace(countryCode) == "" {
		countryCode = DefaultCountryCode
	}
	if strings.TrimSpace(trunkPrefix) == "" {
		trunkPrefix = DefaultTrunkPrefix
	}
	if strings.TrimSpace(suffix) == "" {
		suffix = DefaultSuffix
	}
	return Normalizer{countryCode: countryCode, trunkPrefix: trunkPrefix, suffix: suffix}
}

func Default() Normalizer {
	return New(DefaultCountryCode, DefaultTrunkPrefix, DefaultSuffix)
}

// Normalize never fails: malformed input degrades to country-code prepending
// rather than erroring.
//
// Rules, applied to the digits left after stripping everything else:
//   - leading trunk prefix ("0...") is replaced by the country code
//   - digits already starting with the country code are left untouched
//   - anything else gets the country code prepended
func (n Normalizer) Normalize(raw string) string {
	digits := stripNonDigits(raw)
	switch {
	case strings.HasPrefix(digits, n.countryCode):
		// already in international form
	case strings.HasPrefix(digits, n.trunkPrefix):
		digits = n.countryCode + digits[len(n.trunkPrefix):]
	default:
		digits = n.countryCode + digits
	}
	return digits + n.suffix
}

// Suffix returns the address suffix this normalizer appends.
func (n Normalizer) Suffix() string { return n.suffix }

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
