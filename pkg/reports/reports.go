package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/tribalfarm/tfarm/pkg/world"
)

// Kind is the type of command a report was produced for.
type Kind string

const (
	KindScout  Kind = "scout"
	KindAttack Kind = "attack"
)

// Defenders is the defender-presence verdict of a report.
type Defenders int

const (
	DefendersUnknown Defenders = iota
	DefendersNone
	DefendersPresent
)

func (d Defenders) String() string {
	switch d {
	case DefendersNone:
		return "none"
	case DefendersPresent:
		return "present"
	default:
		return "unknown"
	}
}

// ParseDefenders accepts the textual forms produced by String.
func ParseDefenders(s string) (Defenders, error) {
	switch s {
	case "none", "safe":
		return DefendersNone, nil
	case "present", "unsafe":
		return DefendersPresent, nil
	case "unknown", "":
		return DefendersUnknown, nil
	}
	return DefendersUnknown, fmt.Errorf("unknown defender verdict %q", s)
}

// SafetyStatus is the live answer to "may this target be attacked".
type SafetyStatus int

const (
	StatusUnavailable SafetyStatus = iota
	StatusUnsafe
	StatusSafe
)

func (s SafetyStatus) String() string {
	switch s {
	case StatusSafe:
		return "safe"
	case StatusUnsafe:
		return "unsafe"
	default:
		return "unavailable"
	}
}

// Report is a reconnaissance or battle outcome for a target.
type Report struct {
	TargetID  string
	Kind      Kind
	When      time.Time
	Loot      map[string]int // resources still in the target after the command
	Defenders Defenders
}

// LootTotal sums the residual resources over all resource types.
func (r *Report) LootTotal() int {
	if r == nil {
		return 0
	}
	total := 0
	for _, n := range r.Loot {
		total += n
	}
	return total
}

// Status derives the safety status this report alone implies.
func (r *Report) Status() SafetyStatus {
	if r == nil {
		return StatusUnavailable
	}
	switch r.Defenders {
	case DefendersNone:
		return StatusSafe
	case DefendersPresent:
		return StatusUnsafe
	}
	return StatusUnavailable
}

// Subsystem is the read side of the report manager.
type Subsystem interface {
	SafetyStatus(ctx context.Context, targetID string) (SafetyStatus, error)
	// MostRecentReport returns nil, nil when no report exists for the target.
	MostRecentReport(ctx context.Context, targetID string) (*Report, error)
	// PriorityTargets returns the subset of candidates worth farming first,
	// in the order given.
	PriorityTargets(ctx context.Context, candidates []world.Candidate) ([]world.Candidate, error)
}
