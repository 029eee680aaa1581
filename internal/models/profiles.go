package models

import (
	"strings"
	"sync"
)

// Profile is a set of context-usage thresholds, expressed as fractions of the
// usable token budget.
type Profile struct {
	Name string

	// AutoCondense is the usage ratio at which background summarization kicks in.
	AutoCondense float64

	// Warning, Critical and Overflow are the state classification bounds.
	Warning  float64
	Critical float64
	Overflow float64
}

// Builtin threshold profiles.
var (
	ProfileConservative = Profile{Name: "conservative", AutoCondense: 0.75, Warning: 0.70, Critical: 0.80, Overflow: 0.90}
	ProfileBalanced     = Profile{Name: "balanced", AutoCondense: 0.80, Warning: 0.75, Critical: 0.85, Overflow: 0.95}
	ProfileAggressive   = Profile{Name: "aggressive", AutoCondense: 0.85, Warning: 0.85, Critical: 0.92, Overflow: 0.97}
)

// ProfileByName resolves a profile name; unknown names get balanced.
func ProfileByName(name string) Profile {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "conservative":
		return ProfileConservative
	case "aggressive":
		return ProfileAggressive
	default:
		return ProfileBalanced
	}
}

// profileRegistry maps model-name patterns to profiles. Open registry: callers
// can add entries at startup; unknown models get balanced.
type profileRegistry struct {
	mu      sync.RWMutex
	entries []profileEntry
}

type profileEntry struct {
	pattern string
	profile Profile
}

var profiles = &profileRegistry{}

// RegisterProfile maps a model-name pattern (wildcard * allowed) to a profile.
func RegisterProfile(pattern string, profile Profile) {
	profiles.mu.Lock()
	defer profiles.mu.Unlock()
	profiles.entries = append(profiles.entries, profileEntry{
		pattern: strings.ToLower(strings.TrimSpace(pattern)),
		profile: profile,
	})
}

// ProfileFor returns the threshold profile for a model id. First matching
// registration wins; unregistered models get balanced.
func ProfileFor(modelID string) Profile {
	modelID = strings.ToLower(strings.TrimSpace(modelID))

	profiles.mu.RLock()
	defer profiles.mu.RUnlock()

	for _, entry := range profiles.entries {
		if WildcardMatch(entry.pattern, modelID) {
			return entry.profile
		}
	}
	return ProfileBalanced
}

// WildcardMatch matches a value against a pattern with * wildcards.
func WildcardMatch(pattern, value string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return pattern == value
	}
	parts := strings.Split(pattern, "*")
	idx := 0
	if parts[0] != "" {
		if !strings.HasPrefix(value, parts[0]) {
			return false
		}
		idx = len(parts[0])
	}
	for i := 1; i < len(parts)-1; i++ {
		part := parts[i]
		if part == "" {
			continue
		}
		pos := strings.Index(value[idx:], part)
		if pos < 0 {
			return false
		}
		idx += pos + len(part)
	}
	last := parts[len(parts)-1]
	if last != "" && !strings.HasSuffix(value, last) {
		return false
	}
	return true
}
