// Package priority picks the discovery candidates worth farming before all others.
package priority

import (
	"context"

	"github.com/tribalfarm/tfarm/pkg/reports"
	"github.com/tribalfarm/tfarm/pkg/world"
)

// Classifier returns the subset of candidates that should be handled first.
// Implementations keep the input order and return each target at most once.
type Classifier interface {
	Classify(ctx context.Context, candidates []world.Candidate) ([]world.Candidate, error)
}

// Reports asks the report subsystem for its priority set.
type Reports struct {
	Subsystem reports.Subsystem
}

func (r Reports) Classify(ctx context.Context, candidates []world.Candidate) ([]world.Candidate, error) {
	if r.Subsystem == nil || len(candidates) == 0 {
		return nil, nil
	}
	out, err := r.Subsystem.PriorityTargets(ctx, candidates)
	if err != nil {
		return nil, err
	}
	return restrict(candidates, out), nil
}

// Chain returns the union of several classifiers, in candidate order.
type Chain []Classifier

func (c Chain) Classify(ctx context.Context, candidates []world.Candidate) ([]world.Candidate, error) {
	var all []world.Candidate
	for _, cl := range c {
		if cl == nil {
			continue
		}
		out, err := cl.Classify(ctx, candidates)
		if err != nil {
			return nil, err
		}
		all = append(all, out...)
	}
	return restrict(candidates, all), nil
}

// restrict returns the members of picked that appear in candidates, ordered
// as in candidates and without duplicates.
func restrict(candidates, picked []world.Candidate) []world.Candidate {
	if len(picked) == 0 {
		return nil
	}
	want := make(map[string]bool, len(picked))
	for _, p := range picked {
		want[p.Target.ID] = true
	}
	out := make([]world.Candidate, 0, len(want))
	for _, c := range candidates {
		if want[c.Target.ID] {
			out = append(out, c)
			delete(want, c.Target.ID)
		}
	}
	return out
}
