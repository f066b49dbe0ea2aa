package adapter

import "fmt"

// Factory constructs a fresh CandleAdapter instance. Registered per exchange
// name. Every exchange adapter implements at least CandleAdapter; callers
// that need live streaming type-assert the returned value to StreamAdapter
// and treat a failed assertion as "this exchange has no level-2 feed wired"
// rather than an error — capability is discovered per instance instead of
// forcing every adapter to satisfy the full Adapter interface.
type Factory func() CandleAdapter

// Registry is a name-keyed table of adapter factories. Exchanges without a
// working implementation are simply absent from the registry rather than
// registered as a stub that errors on call.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name, overwriting any existing entry.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// New constructs a new CandleAdapter instance for name.
func (r *Registry) New(name string) (CandleAdapter, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("adapter: no factory registered for %q", name)
	}
	return f(), nil
}

// Names lists every registered exchange name.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}
