package commands

import (
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/warp/booking-engine/generic"
)

// ApartmentResolver maps what an owner types to a configured apartment.
type ApartmentResolver struct {
	Apartments []string
	Keywords   map[string]string
}

// Resolve tries, in order: exact name, keyword, unique-first substring, then
// the closest name by edit distance. Returns ErrUnknownApartment otherwise.
func (r ApartmentResolver) Resolve(query string) (string, error) {
	q := strings.ToLower(strings.Join(strings.Fields(query), " "))
	if q == "" {
		return "", generic.ErrUnknownApartment
	}

	for _, a := range r.Apartments {
		if strings.EqualFold(a, q) {
			return a, nil
		}
	}
	if a, ok := r.Keywords[strings.ReplaceAll(q, " ", "")]; ok {
		return a, nil
	}
	if a, ok := r.Keywords[q]; ok {
		return a, nil
	}
	for _, a := range r.Apartments {
		if strings.Contains(strings.ToLower(a), q) {
			return a, nil
		}
	}

	best, bestScore := "", 1.0
	for _, a := range r.Apartments {
		if s := fuzzyScore(q, strings.ToLower(a)); s < bestScore {
			best, bestScore = a, s
		}
	}
	if best != "" && bestScore < 0.4 {
		return best, nil
	}
	return "", generic.ErrUnknownApartment
}

// fuzzyScore is the normalized edit distance of q to the whole name or its
// closest word, whichever is smaller. 0 is identical.
func fuzzyScore(q, name string) float64 {
	score := normalizedDistance(q, name)
	for _, w := range strings.Fields(name) {
		if s := normalizedDistance(q, w); s < score {
			score = s
		}
	}
	return score
}

func normalizedDistance(a, b string) float64 {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	return float64(levenshtein.ComputeDistance(a, b)) / float64(longest)
}
