package providers

import (
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
)

// Constructor builds a processor from startup settings.
type Constructor func(Settings, ...Option) (Processor, error)

type registration struct {
	name        string
	displayName string
	construct   Constructor
}

// Registry maps processor identifiers to constructors. Lookups are
// case-insensitive and accept the legacy dotted class paths as aliases.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registration
	aliases map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]registration),
		aliases: make(map[string]string),
	}
}

// DefaultRegistry knows every built-in processor.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(PaystackName, "Paystack", func(s Settings, opts ...Option) (Processor, error) {
		return NewPaystackProcessor(s, opts...)
	}, "payments.paystack.PaystackProcessor")
	r.Register(CredoName, "Credo", func(s Settings, opts ...Option) (Processor, error) {
		return NewCredoProcessor(s, opts...)
	}, "payments.credo.CredoProcessor")
	r.Register(MockName, "Mock", newMockFromSettings)
	return r
}

// Register adds a constructor under name and any aliases. Registering the
// same name twice replaces the earlier entry.
func (r *Registry) Register(name, displayName string, c Constructor, aliases ...string) {
	key := normalizeKey(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = registration{name: key, displayName: displayName, construct: c}
	for _, a := range aliases {
		r.aliases[normalizeKey(a)] = key
	}
}

// New resolves identifier and builds the processor. Unknown identifiers wrap
// ErrUnknownProcessor and missing credentials wrap ErrMissingCredential.
func (r *Registry) New(identifier string, s Settings, opts ...Option) (Processor, error) {
	key := normalizeKey(identifier)
	r.mu.RLock()
	if target, ok := r.aliases[key]; ok {
		key = target
	}
	entry, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)",
			domainErrors.ErrUnknownProcessor, identifier, strings.Join(r.Names(), ", "))
	}

	p, err := entry.construct(s, opts...)
	if err != nil {
		return nil, fmt.Errorf("configure %s processor: %w", entry.name, err)
	}
	return p, nil
}

// Supported returns registry key to display name.
func (r *Registry) Supported() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.entries))
	for k, e := range r.entries {
		out[k] = e.displayName
	}
	return out
}

// Names returns the sorted registry keys.
func (r *Registry) Names() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.entries))
	for k := range maps.Keys(r.entries) {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
