package commands

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// ConflictError is returned when two commands of the same kind priority claim
// one name.
type ConflictError struct {
	Name     string
	Existing Kind
	Incoming Kind
	Priority int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("command %q: conflicting registrations %s and %s at priority %d",
		e.Name, e.Existing, e.Incoming, e.Priority)
}

type registryEntry struct {
	signature *Signature
	priority  int
}

// Registry stores command signatures keyed by name, with alias and category
// indexes. Same-name registrations resolve by kind priority: the lower
// priority number wins regardless of insertion order.
//
// The registry is read-mostly: registrations should happen before the session
// starts serving; lookups are safe for concurrent use.
type Registry struct {
	entries    map[string]*registryEntry
	aliases    map[string]string   // alias -> canonical name
	categories map[string][]string // category -> canonical names
	logger     *slog.Logger
	mu         sync.RWMutex
}

// NewRegistry creates a new command registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries:    make(map[string]*registryEntry),
		aliases:    make(map[string]string),
		categories: make(map[string][]string),
		logger:     logger.With("component", "commands"),
	}
}

// Register adds a command signature. An existing lower-priority-number entry
// silently wins over the incoming one; an incoming lower-priority-number entry
// replaces the existing one; equal priorities are a conflict error.
func (r *Registry) Register(sig *Signature) error {
	if sig == nil {
		return fmt.Errorf("signature is nil")
	}
	name := strings.ToLower(strings.TrimSpace(sig.Name))
	if name == "" {
		return fmt.Errorf("command name is required")
	}
	if sig.Handler == nil {
		return fmt.Errorf("command %q: handler is required", name)
	}
	priority := KindPriority(sig.Kind)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[name]; ok {
		switch {
		case existing.priority == priority:
			return &ConflictError{
				Name:     name,
				Existing: existing.signature.Kind,
				Incoming: sig.Kind,
				Priority: priority,
			}
		case existing.priority < priority:
			// Existing entry outranks the incoming one.
			r.logger.Debug("ignoring lower-priority registration",
				"name", name, "kind", sig.Kind, "existing_kind", existing.signature.Kind)
			return nil
		default:
			r.removeLocked(name, existing.signature)
		}
	}

	r.entries[name] = &registryEntry{signature: sig, priority: priority}

	for _, alias := range sig.Aliases {
		aliasLower := strings.ToLower(strings.TrimSpace(alias))
		if aliasLower == "" || aliasLower == name {
			continue
		}
		if _, exists := r.entries[aliasLower]; exists {
			r.logger.Warn("alias conflicts with command", "alias", aliasLower, "command", name)
			continue
		}
		if _, exists := r.aliases[aliasLower]; exists {
			r.logger.Warn("alias already registered", "alias", aliasLower, "command", name)
			continue
		}
		r.aliases[aliasLower] = name
	}

	category := sig.Category
	if category == "" {
		category = "general"
	}
	r.categories[category] = append(r.categories[category], name)

	r.logger.Debug("registered command",
		"name", name, "kind", sig.Kind, "category", category, "aliases", sig.Aliases)
	return nil
}

// Unregister removes a command by canonical name.
func (r *Registry) Unregister(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[name]
	if !ok {
		return false
	}
	r.removeLocked(name, entry.signature)
	r.logger.Debug("unregistered command", "name", name)
	return true
}

func (r *Registry) removeLocked(name string, sig *Signature) {
	for _, alias := range sig.Aliases {
		aliasLower := strings.ToLower(alias)
		if r.aliases[aliasLower] == name {
			delete(r.aliases, aliasLower)
		}
	}
	category := sig.Category
	if category == "" {
		category = "general"
	}
	names := r.categories[category]
	for i, n := range names {
		if n == name {
			r.categories[category] = append(names[:i], names[i+1:]...)
			break
		}
	}
	delete(r.entries, name)
}

// Get retrieves a command by name or alias.
func (r *Registry) Get(name string) (*Signature, bool) {
	name = strings.ToLower(strings.TrimSpace(name))

	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, ok := r.entries[name]; ok {
		return entry.signature, true
	}
	if canonical, ok := r.aliases[name]; ok {
		if entry, ok := r.entries[canonical]; ok {
			return entry.signature, true
		}
	}
	return nil, false
}

// List returns all registered signatures sorted by name.
func (r *Registry) List() []*Signature {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sigs := make([]*Signature, 0, len(r.entries))
	for _, entry := range r.entries {
		sigs = append(sigs, entry.signature)
	}
	sort.Slice(sigs, func(i, j int) bool { return sigs[i].Name < sigs[j].Name })
	return sigs
}

// ListVisible returns commands that should be shown in help.
func (r *Registry) ListVisible() []*Signature {
	all := r.List()
	visible := make([]*Signature, 0, len(all))
	for _, sig := range all {
		if !sig.Hidden {
			visible = append(visible, sig)
		}
	}
	return visible
}

// Search performs a case-insensitive substring match over canonical names.
func (r *Registry) Search(query string) []*Signature {
	query = strings.ToLower(strings.TrimSpace(query))

	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []*Signature
	for name, entry := range r.entries {
		if strings.Contains(name, query) {
			matches = append(matches, entry.signature)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Name < matches[j].Name })
	return matches
}

// GetByCategory returns the signatures registered under a category, sorted by
// name.
func (r *Registry) GetByCategory(category string) []*Signature {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.categories[category]
	sigs := make([]*Signature, 0, len(names))
	for _, name := range names {
		if entry, ok := r.entries[name]; ok {
			sigs = append(sigs, entry.signature)
		}
	}
	sort.Slice(sigs, func(i, j int) bool { return sigs[i].Name < sigs[j].Name })
	return sigs
}

// Names returns all canonical command names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NamesAndAliases returns canonical names plus aliases, each alias mapped to
// its canonical name. Used by the suggestion engine.
func (r *Registry) NamesAndAliases() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.entries)+len(r.aliases))
	for name := range r.entries {
		out[name] = name
	}
	for alias, canonical := range r.aliases {
		out[alias] = canonical
	}
	return out
}
