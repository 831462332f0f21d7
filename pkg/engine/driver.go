package engine

import (
	"context"
	"fmt"
	"math/rand"
)

// Task is one unit of per-round work, typically one home village's cycle.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Driver runs a fixed task list in a shuffled order each round so that the
// request pattern differs between rounds.
type Driver struct {
	tasks []Task
	rng   *rand.Rand
	log   Logger
}

// NewDriver creates a driver. The seed makes the order reproducible.
func NewDriver(seed int64, log Logger, tasks ...Task) *Driver {
	if log == nil {
		log = nopLogger{}
	}
	return &Driver{tasks: tasks, rng: rand.New(rand.NewSource(seed)), log: log}
}

// order returns a shuffled copy of the task list.
func (d *Driver) order() []Task {
	out := make([]Task, len(d.tasks))
	copy(out, d.tasks)
	d.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// RunRound runs every task once. A failing task does not stop the others;
// all errors are returned.
func (d *Driver) RunRound(ctx context.Context) []error {
	var errs []error
	for _, t := range d.order() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			return errs
		}
		d.log.Debugf("Running task %s", t.Name)
		if err := t.Run(ctx); err != nil {
			d.log.Errorf("Task %s failed: %v", t.Name, err)
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
		}
	}
	return errs
}
