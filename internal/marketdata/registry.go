package marketdata

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"merlin/internal/interfaces"
)

var ErrUnknownExchange = errors.New("unknown exchange")

// Registry maps exchange names to candle sources. It is filled once at
// startup and only read afterwards.
type Registry struct {
	sources map[string]interfaces.CandleSource
}

func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]interfaces.CandleSource)}
}

// Register binds a source to one or more exchange names.
func (r *Registry) Register(src interfaces.CandleSource, exchanges ...string) {
	for _, ex := range exchanges {
		r.sources[strings.ToLower(ex)] = src
	}
}

func (r *Registry) Lookup(exchange string) (interfaces.CandleSource, error) {
	src, ok := r.sources[strings.ToLower(exchange)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %s)", ErrUnknownExchange, exchange, strings.Join(r.Exchanges(), ", "))
	}
	return src, nil
}

func (r *Registry) Exchanges() []string {
	out := make([]string, 0, len(r.sources))
	for ex := range r.sources {
		out = append(out, ex)
	}
	sort.Strings(out)
	return out
}
