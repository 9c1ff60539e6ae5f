package tool

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/docsmesh/core"
	"github.com/hupe1980/docsmesh/internal/util"
)

// ErrSealed is returned when registering into a sealed registry.
var ErrSealed = errors.New("tool registry is sealed")

// Registry maps tool names to tools. Tools are registered during startup;
// after Seal the registry is read-only and lookups take no lock.
type Registry struct {
	mu     sync.Mutex
	tools  map[string]Tool
	sealed atomic.Bool
}

// NewRegistry creates a registry holding the given tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: map[string]Tool{}}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds t. Duplicate or empty names are rejected.
func (r *Registry) Register(t Tool) error {
	if t == nil || t.Name() == "" {
		return errors.New("tool must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed.Load() {
		return fmt.Errorf("%w: cannot register %q", ErrSealed, t.Name())
	}
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// MustRegister is Register that panics on error. Intended for static wiring.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Seal freezes the registry.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed.Store(true)
	r.mu.Unlock()
}

func (r *Registry) get(name string) (Tool, bool) {
	if r.sealed.Load() {
		t, ok := r.tools[name]
		return t, ok
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tools[name]
	return t, ok
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, error) {
	t, ok := r.get(name)
	if !ok {
		return nil, &ToolError{Tool: name, Message: "tool is not registered", Code: CodeUnknownTool}
	}
	return t, nil
}

// Validate checks input against the schema of the named tool. Violations are
// reported as a *ToolError wrapping util.ValidationErrors.
func (r *Registry) Validate(name string, input map[string]any) error {
	t, err := r.Lookup(name)
	if err != nil {
		return err
	}
	if input == nil {
		input = map[string]any{}
	}
	if err := util.ValidateParameters(input, t.Parameters()); err != nil {
		return &ToolError{Tool: name, Message: err.Error(), Code: CodeValidationError, Details: err}
	}
	return nil
}

// Names returns the registered tool names in order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tools)
}

// Definitions returns the declarations of all tools in name order.
func (r *Registry) Definitions() []Definition {
	names := r.Names()
	defs := make([]Definition, 0, len(names))
	for _, n := range names {
		t, _ := r.get(n)
		defs = append(defs, DefinitionOf(t))
	}
	return defs
}

// IsUnknownTool reports whether err stems from a lookup miss.
func IsUnknownTool(err error) bool { return errors.Is(err, core.ErrUnknownTool) }
