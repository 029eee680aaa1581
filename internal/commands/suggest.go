package commands

import (
	"sort"
	"strings"
)

// maxSuggestionDistance is the largest edit distance still worth suggesting.
const maxSuggestionDistance = 3

// maxSuggestions caps how many candidates Suggest returns.
const maxSuggestions = 3

// categoryOrder ranks the well-known categories for suggestion tie-breaks.
var categoryOrder = []string{"system", "auth", "session", "navigation", "tools", "config", "debug"}

func categoryRank(category string) int {
	for i, c := range categoryOrder {
		if c == category {
			return i
		}
	}
	return len(categoryOrder)
}

// Suggest returns up to three canonical command names closest to the unknown
// input. Both canonical names and aliases are considered; a prefix
// relationship in either direction caps the distance at 1. Ties break by
// distance, then category order, then lexicographically.
func Suggest(registry *Registry, input string) []string {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return nil
	}

	type candidate struct {
		name     string
		distance int
		rank     int
	}

	best := make(map[string]candidate)
	for name, canonical := range registry.NamesAndAliases() {
		d := Levenshtein(input, name)
		if strings.HasPrefix(name, input) || strings.HasPrefix(input, name) {
			if d > 1 {
				d = 1
			}
		}
		if d > maxSuggestionDistance {
			continue
		}
		rank := len(categoryOrder)
		if sig, ok := registry.Get(canonical); ok {
			rank = categoryRank(sig.Category)
		}
		if prev, ok := best[canonical]; !ok || d < prev.distance {
			best[canonical] = candidate{name: canonical, distance: d, rank: rank}
		}
	}

	candidates := make([]candidate, 0, len(best))
	for _, c := range best {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		if candidates[i].rank != candidates[j].rank {
			return candidates[i].rank < candidates[j].rank
		}
		return candidates[i].name < candidates[j].name
	})

	names := make([]string, 0, maxSuggestions)
	for _, c := range candidates {
		names = append(names, c.name)
		if len(names) == maxSuggestions {
			break
		}
	}
	return names
}

// Levenshtein computes the case-insensitive edit distance between two strings
// with the classic dynamic-programming matrix.
func Levenshtein(a, b string) int {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
