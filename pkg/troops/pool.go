package troops

import (
	"context"
	"fmt"
	"sort"
)

// Source reads unit counts from the game: units at home and units owned in total.
type Source interface {
	Units(ctx context.Context) (home Composition, total Composition, err error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Composition, Composition, error)

func (f SourceFunc) Units(ctx context.Context) (Composition, Composition, error) {
	return f(ctx)
}

// Pool is an Inventory backed by a Source. Deductions are applied locally so
// later decisions in the same cycle see what is left without a round trip.
type Pool struct {
	source Source
	home   Composition
	total  Composition
}

// NewPool creates a pool. Initial counts may be nil; the first Refresh fills them.
func NewPool(source Source, home, total Composition) *Pool {
	p := &Pool{source: source, home: Composition{}, total: Composition{}}
	for u, n := range home {
		p.home[u] = n
	}
	for u, n := range total {
		p.total[u] = n
	}
	return p
}

func (p *Pool) Counts() Composition {
	out := Composition{}
	for u, n := range p.home {
		if n > 0 {
			out[u] = n
		}
	}
	return out
}

func (p *Pool) Available(unit string) int {
	return p.home[unit]
}

func (p *Pool) Total(unit string) int {
	if t, ok := p.total[unit]; ok && t >= p.home[unit] {
		return t
	}
	return p.home[unit]
}

func (p *Pool) Missing(c Composition) string {
	units := make([]string, 0, len(c))
	for u := range c {
		units = append(units, u)
	}
	sort.Strings(units)
	for _, u := range units {
		if c[u] > p.home[u] {
			return fmt.Sprintf("%s (%d/%d)", u, p.home[u], c[u])
		}
	}
	return ""
}

func (p *Pool) Deduct(c Composition) {
	for u, n := range c {
		left := p.home[u] - n
		if left < 0 {
			left = 0
		}
		p.home[u] = left
	}
}

func (p *Pool) Refresh(ctx context.Context) error {
	if p.source == nil {
		return nil
	}
	home, total, err := p.source.Units(ctx)
	if err != nil {
		return fmt.Errorf("refreshing troops: %w", err)
	}
	p.home = Composition{}
	for u, n := range home {
		p.home[u] = n
	}
	p.total = Composition{}
	for u, n := range total {
		p.total[u] = n
	}
	return nil
}
