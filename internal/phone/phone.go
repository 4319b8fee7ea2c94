// Package phone canonicalizes free-form phone numbers into a single
// comparable "+<countrycode><national>" representation.
package phone

import "strings"

// Normalizer holds the dialing-plan parameters for one home country.
type Normalizer struct {
	// CountryCode is the home country calling code without the plus, e.g. "44".
	CountryCode string
	// TrunkPrefix is the national dialing prefix, e.g. "0".
	TrunkPrefix string
	// NationalMin and NationalMax bound the national significant number
	// length (digits after the trunk prefix is removed).
	NationalMin int
	NationalMax int
	// MinFullLength is the smallest digit count that is plausibly a full
	// international number; shorter unrecognized inputs are left as bare
	// digits so they never match a real record.
	MinFullLength int
}

// DefaultUK returns the +44 dialing plan. UK national significant numbers
// are 9 or 10 digits.
func DefaultUK() *Normalizer {
	return &Normalizer{
		CountryCode:   "44",
		TrunkPrefix:   "0",
		NationalMin:   9,
		NationalMax:   10,
		MinFullLength: 11,
	}
}

// Normalize canonicalizes raw into "+<countrycode><national>" form.
//
// Rules, in order:
//  1. Strip everything except digits and a leading plus.
//  2. Already international ("+..."): return unchanged.
//  3. Trunk-prefixed national number ("0...") of plausible length: swap the
//     trunk prefix for "+<countrycode>".
//  4. Country code without the plus ("44...") of plausible length: prepend "+".
//  5. At least MinFullLength digits: assume a full number, prepend "+".
//  6. Anything else is returned as bare digits. Bare digits compare equal to
//     nothing canonical, so unrecognizable input can never produce a false
//     match downstream.
//
// Normalize is idempotent: canonical output passes through rule 2 unchanged.
func (n *Normalizer) Normalize(raw string) string {
	cleaned := clean(raw)
	if cleaned == "" {
		return ""
	}

	if strings.HasPrefix(cleaned, "+") {
		return cleaned
	}

	if strings.HasPrefix(cleaned, n.TrunkPrefix) {
		national := cleaned[len(n.TrunkPrefix):]
		if len(national) >= n.NationalMin && len(national) <= n.NationalMax {
			return "+" + n.CountryCode + national
		}
	}

	if strings.HasPrefix(cleaned, n.CountryCode) {
		national := cleaned[len(n.CountryCode):]
		if len(national) >= n.NationalMin && len(national) <= n.NationalMax {
			return "+" + cleaned
		}
	}

	if len(cleaned) >= n.MinFullLength {
		return "+" + cleaned
	}

	return cleaned
}

// SameCaller reports whether two canonical numbers identify the same caller:
// identical and non-empty canonical strings that made it past rule 6.
func SameCaller(a, b string) bool {
	return a != "" && a == b && strings.HasPrefix(a, "+")
}

// clean keeps digits and a leading plus, dropping spaces, punctuation and
// formatting characters.
func clean(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && b.Len() == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
