package booking

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Names normalizes CS/marketing names and recognizes promotional aliases.
type Names struct {
	// Exact maps a whole lowercased name to its canonical form.
	Exact map[string]string
	// Contains maps a lowercased fragment to a canonical form; any name
	// containing the fragment collapses to it.
	Contains map[string]string
	// PromoAliases mark zero-commission promotional bookings.
	PromoAliases []string
}

// DefaultNames returns the alias table used when config has none.
func DefaultNames() Names {
	return Names{
		Exact:        map[string]string{"apk": "APK", "kr": "KR"},
		Contains:     map[string]string{"amel": "Amel"},
		PromoAliases: []string{"apk"},
	}
}

// NewNames builds a table from configured aliases; an entirely empty
// configuration falls back to DefaultNames.
func NewNames(exact, contains map[string]string, promo []string) Names {
	if len(exact) == 0 && len(contains) == 0 && len(promo) == 0 {
		return DefaultNames()
	}
	n := Names{
		Exact:        make(map[string]string, len(exact)),
		Contains:     make(map[string]string, len(contains)),
		PromoAliases: promo,
	}
	for k, v := range exact {
		n.Exact[strings.ToLower(k)] = v
	}
	for k, v := range contains {
		n.Contains[strings.ToLower(k)] = v
	}
	return n
}

// Normalize case-folds and alias-collapses a CS name.
// "dreamy" -> "Dreamy", "AMELIA" -> "Amel", "apk" -> "APK".
func (n Names) Normalize(name string) string {
	s := strings.ToLower(strings.Join(strings.Fields(name), " "))
	if s == "" {
		return ""
	}
	if canon, ok := n.Exact[s]; ok {
		return canon
	}
	for _, frag := range sortedKeys(n.Contains) {
		if strings.Contains(s, frag) {
			return n.Contains[frag]
		}
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

// IsPromotional reports whether the CS name or the payment text carries a
// promotional alias, case-insensitively.
func (n Names) IsPromotional(csName, paymentDetail string) bool {
	cs := strings.ToLower(csName)
	detail := strings.ToLower(paymentDetail)
	for _, alias := range n.PromoAliases {
		a := strings.ToLower(strings.TrimSpace(alias))
		if a == "" {
			continue
		}
		if strings.Contains(cs, a) || strings.Contains(detail, a) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Longer fragments first so "amelia" wins over "amel" if both are configured.
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}
