package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tribalfarm/tfarm/pkg/reports"
	"github.com/tribalfarm/tfarm/pkg/world"
)

var _ reports.Subsystem = (*DB)(nil)

// AddReport stores a report. Reports are written by whatever ingests the
// in-game report pages; tfarm itself only reads them back.
func (d *DB) AddReport(ctx context.Context, r reports.Report) error {
	if r.TargetID == "" {
		return errors.New("report without target")
	}
	if r.Kind != reports.KindScout && r.Kind != reports.KindAttack {
		return fmt.Errorf("unknown report kind %q", r.Kind)
	}
	var loot interface{}
	if len(r.Loot) > 0 {
		raw, err := json.Marshal(r.Loot)
		if err != nil {
			return err
		}
		loot = string(raw)
	}
	_, err := d.sql.ExecContext(ctx, `INSERT INTO reports(target_id, kind, occurred_at, defenders, loot) VALUES(?,?,?,?,?)`,
		r.TargetID, string(r.Kind), r.When.Unix(), int(r.Defenders), loot)
	return err
}

// MostRecentReport returns the newest report for the target, or nil when there is none.
func (d *DB) MostRecentReport(ctx context.Context, targetID string) (*reports.Report, error) {
	var (
		kind      string
		when      int64
		defenders int
		loot      sql.NullString
	)
	err := d.sql.QueryRowContext(ctx, "SELECT kind, occurred_at, defenders, loot FROM reports WHERE target_id = ? ORDER BY occurred_at DESC, id DESC LIMIT 1", targetID).
		Scan(&kind, &when, &defenders, &loot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading last report for %s: %w", targetID, err)
	}
	r := &reports.Report{
		TargetID:  targetID,
		Kind:      reports.Kind(kind),
		When:      time.Unix(when, 0),
		Defenders: reports.Defenders(defenders),
	}
	if loot.Valid && loot.String != "" {
		if err := json.Unmarshal([]byte(loot.String), &r.Loot); err != nil {
			return nil, fmt.Errorf("decoding loot of report for %s: %w", targetID, err)
		}
	}
	return r, nil
}

// SafetyStatus derives the status from the newest report only.
func (d *DB) SafetyStatus(ctx context.Context, targetID string) (reports.SafetyStatus, error) {
	r, err := d.MostRecentReport(ctx, targetID)
	if err != nil {
		return reports.StatusUnavailable, err
	}
	return r.Status(), nil
}

// PriorityTargets keeps the candidates whose newest report saw no defenders
// and at least PriorityLoot resources left behind.
func (d *DB) PriorityTargets(ctx context.Context, candidates []world.Candidate) ([]world.Candidate, error) {
	threshold := d.PriorityLoot
	if threshold <= 0 {
		threshold = DefaultPriorityLoot
	}
	var out []world.Candidate
	for _, c := range candidates {
		r, err := d.MostRecentReport(ctx, c.Target.ID)
		if err != nil {
			return nil, err
		}
		if r == nil || r.Defenders != reports.DefendersNone {
			continue
		}
		if r.LootTotal() >= threshold {
			out = append(out, c)
		}
	}
	return out, nil
}
