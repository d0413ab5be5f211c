package annotate

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry errors.
var (
	ErrUnknownAnnotator   = errors.New("unknown annotator")
	ErrDuplicateAnnotator = errors.New("annotator already registered")
)

// Factory builds an annotator from its string options.
type Factory func(options map[string]string) (Annotator, error)

// Entry describes a registered annotator.
type Entry struct {
	Name        string
	Description string
	factory     Factory
}

// Registry maps annotator names to factories. Workers look annotators up by
// name because only the name and options cross the process boundary.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds a factory under name.
func (r *Registry) Register(name, description string, f Factory) error {
	if name == "" || f == nil {
		return errors.New("annotator name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAnnotator, name)
	}
	r.entries[name] = Entry{Name: name, Description: description, factory: f}
	return nil
}

// MustRegister is Register for package initialization; it panics on error.
func (r *Registry) MustRegister(name, description string, f Factory) {
	if err := r.Register(name, description, f); err != nil {
		panic(err)
	}
}

// New builds the annotator registered under name.
func (r *Registry) New(name string, options map[string]string) (Annotator, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAnnotator, name)
	}
	a, err := e.factory(options)
	if err != nil {
		return nil, fmt.Errorf("creating annotator %s: %w", name, err)
	}
	return a, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Entries returns all registered annotators sorted by name.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

//nolint:gochecknoglobals // process-wide registry shared by the CLI and the worker entrypoint
var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the registry holding the built-in annotators.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
		registerBuiltins(defaultRegistry)
	})
	return defaultRegistry
}
