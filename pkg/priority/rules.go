package priority

import (
	"context"
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/tribalfarm/tfarm/pkg/reports"
	"github.com/tribalfarm/tfarm/pkg/world"
)

// Env is the environment rule expressions are evaluated against.
type Env struct {
	ID            string
	Points        int
	Distance      float64
	Owned         bool
	Tribe         string
	HasReport     bool
	Kind          string
	LootTotal     int
	Defenders     string
	LastReportAge float64 // seconds; 0 without a report
}

// Rules marks a candidate as priority when any expression evaluates to true.
//
//	LootTotal > 3000 && Defenders == "none"
//	Distance < 3 && !Owned
type Rules struct {
	reports  reports.Subsystem
	programs []*vm.Program
	sources  []string
	now      func() time.Time
}

// NewRules compiles every expression once. sub may be nil, in which case the
// report fields stay zero.
func NewRules(sub reports.Subsystem, exprs []string) (*Rules, error) {
	r := &Rules{reports: sub, now: time.Now}
	for _, src := range exprs {
		prog, err := expr.Compile(src, expr.Env(Env{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compile priority rule %q: %w", src, err)
		}
		r.programs = append(r.programs, prog)
		r.sources = append(r.sources, src)
	}
	return r, nil
}

func (r *Rules) env(ctx context.Context, c world.Candidate) (Env, error) {
	env := Env{
		ID:       c.Target.ID,
		Points:   c.Target.Points,
		Distance: c.Distance,
		Owned:    c.Target.Ownership() != world.Unowned,
		Tribe:    c.Target.Tribe,
	}
	if r.reports == nil {
		return env, nil
	}
	last, err := r.reports.MostRecentReport(ctx, c.Target.ID)
	if err != nil {
		return env, err
	}
	if last != nil {
		env.HasReport = true
		env.Kind = string(last.Kind)
		env.LootTotal = last.LootTotal()
		env.Defenders = last.Defenders.String()
		env.LastReportAge = r.now().Sub(last.When).Seconds()
	}
	return env, nil
}

func (r *Rules) Classify(ctx context.Context, candidates []world.Candidate) ([]world.Candidate, error) {
	if len(r.programs) == 0 {
		return nil, nil
	}
	var out []world.Candidate
	for _, c := range candidates {
		env, err := r.env(ctx, c)
		if err != nil {
			return nil, err
		}
		for i, prog := range r.programs {
			result, err := vm.Run(prog, env)
			if err != nil {
				return nil, fmt.Errorf("priority rule %q on %s: %w", r.sources[i], c.Target.ID, err)
			}
			if ok, _ := result.(bool); ok {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}
