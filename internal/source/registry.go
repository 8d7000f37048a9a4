package source

import (
	"github.com/rotisserie/eris"

	"github.com/oakmont-research/signal-cli/internal/config"
)

// Registry maps source names to their implementations.
type Registry struct {
	sources map[string]Source
	order   []string // insertion order for deterministic iteration
}

// NewRegistry creates a registry populated with all ingestion sources.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{
		sources: make(map[string]Source),
	}

	r.Register(&FRED{cfg: cfg})
	r.Register(&TWSEMargin{cfg: cfg})
	r.Register(&JPXValuation{cfg: cfg})
	r.Register(&PriceVol{cfg: cfg})

	return r
}

// Register adds a source to the registry.
func (r *Registry) Register(s Source) {
	name := s.Name()
	r.sources[name] = s
	r.order = append(r.order, name)
}

// Get returns a source by name.
func (r *Registry) Get(name string) (Source, error) {
	s, ok := r.sources[name]
	if !ok {
		return nil, eris.Errorf("source: unknown source %q", name)
	}
	return s, nil
}

// Select returns the named sources, or all sources when names is empty,
// in registration order.
func (r *Registry) Select(names []string) ([]Source, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	var result []Source
	for _, name := range names {
		s, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, nil
}

// All returns all sources in registration order.
func (r *Registry) All() []Source {
	result := make([]Source, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.sources[name])
	}
	return result
}

// AllNames returns all registered source names in registration order.
func (r *Registry) AllNames() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
