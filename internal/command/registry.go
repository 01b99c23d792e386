package command

import (
	"context"
	"fmt"
	"sort"
)

// TimeoutClass groups commands by how long the analyzer may reasonably take.
type TimeoutClass int

const (
	// ClassNavigation covers point queries: definitions, references,
	// symbols, cached diagnostics.
	ClassNavigation TimeoutClass = iota
	// ClassRefactor covers commands that compute workspace edits.
	ClassRefactor
	// ClassProject covers whole-project work such as cargo invocations.
	ClassProject
)

// Descriptor is one registered command: its argument contract, timeout
// class, and implementation.
type Descriptor struct {
	// Name is the externally visible command name.
	Name string

	// Schema validates arguments before any session traffic.
	Schema Schema

	// Class selects the timeout applied to analyzer requests.
	Class TimeoutClass

	// Local marks commands that do not need an initialized analyzer up
	// front (manifest analysis, cargo runs, dependency suggestions).
	Local bool

	// Run executes the command. It is called with the session lock held
	// and arguments already validated.
	Run func(ctx context.Context, exec *Execution) (*Result, error)
}

// Registry holds the command table. It is populated once at startup and
// read-only afterwards, so lookups need no locking.
type Registry struct {
	commands map[string]*Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]*Descriptor)}
}

// Register adds a command. Registering a name twice fails fast: a collision
// is a programming error that must surface at startup, not at dispatch.
func (r *Registry) Register(d *Descriptor) error {
	if d == nil || d.Name == "" {
		return fmt.Errorf("descriptor must have a name")
	}
	if d.Run == nil {
		return fmt.Errorf("command %s has no implementation", d.Name)
	}
	if _, exists := r.commands[d.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, d.Name)
	}
	r.commands[d.Name] = d
	return nil
}

// mustRegister panics on registration failure; used for the built-in table
// where a duplicate means a bug.
func (r *Registry) mustRegister(d *Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Get looks up a command by name.
func (r *Registry) Get(name string) (*Descriptor, error) {
	d, ok := r.commands[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return d, nil
}

// Names returns all registered command names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewDefaultRegistry returns a registry with the full built-in command set.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	registerNavigation(r)
	registerDiagnostics(r)
	registerRefactor(r)
	registerGenerate(r)
	registerProject(r)
	return r
}
