package safety

import (
	"context"
	"fmt"

	"github.com/tribalfarm/tfarm/pkg/cache"
	"github.com/tribalfarm/tfarm/pkg/reports"
)

// Action is what was just sent to a target.
type Action struct {
	Kind        reports.Kind
	Safe        bool
	Scouted     bool
	HighProfile bool
	LowProfile  bool
}

// Record writes the post-action entry for a target. LastAttack never moves
// backwards.
func (m *Machine) Record(ctx context.Context, targetID string, a Action) (cache.Entry, error) {
	prev, err := m.Entry(ctx, targetID)
	if err != nil {
		return cache.Entry{}, err
	}
	e := cache.Entry{
		LastAttack:  m.now().Unix(),
		Safe:        a.Safe,
		Scouted:     a.Scouted,
		HighProfile: a.HighProfile,
		LowProfile:  a.LowProfile,
	}
	if prev != nil && prev.LastAttack > e.LastAttack {
		e.LastAttack = prev.LastAttack
	}
	if err := m.store.Put(ctx, targetID, e); err != nil {
		return cache.Entry{}, fmt.Errorf("writing cache for %s: %w", targetID, err)
	}
	return e, nil
}

// RecordScout stores a dispatched scout. The target stays unsafe until the
// report confirms it.
func (m *Machine) RecordScout(ctx context.Context, targetID string) (cache.Entry, error) {
	prev, err := m.Entry(ctx, targetID)
	if err != nil {
		return cache.Entry{}, err
	}
	a := Action{Kind: reports.KindScout, Scouted: true}
	if prev != nil {
		a.HighProfile = prev.HighProfile
		a.LowProfile = prev.LowProfile
	}
	return m.Record(ctx, targetID, a)
}

// RecordAttack stores a dispatched attack decided by v. A blind attack leaves
// the target unsafe so it is confirmed before the next one.
func (m *Machine) RecordAttack(ctx context.Context, targetID string, v Verdict) (cache.Entry, error) {
	a := Action{Kind: reports.KindAttack, Safe: !v.Blind}
	if v.Entry != nil {
		a.Scouted = v.Entry.Scouted
		a.HighProfile = v.Entry.HighProfile
		a.LowProfile = v.Entry.LowProfile
	}
	if v.Status == reports.StatusSafe {
		a.Scouted = true
	}
	return m.Record(ctx, targetID, a)
}
