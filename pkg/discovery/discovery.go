// Package discovery turns a world snapshot into the ordered list of farm
// candidates for one home village.
package discovery

import (
	"sort"
	"time"

	"github.com/tribalfarm/tfarm/pkg/world"
)

// Reason records why a target was left out of the last discovery pass.
type Reason string

const (
	ReasonPlayerOwned  Reason = "player-owned"
	ReasonQuietHours   Reason = "quiet-hours"
	ReasonTribe        Reason = "tribe"
	ReasonPointsRange  Reason = "points-range"
	ReasonHigherPoints Reason = "higher-points"
	ReasonTooFar       Reason = "too-far"
	ReasonUnengageable Reason = "unengageable"
)

// DefaultQuietHours are the local hours during which player-owned targets are
// left alone even when allow-listed.
var DefaultQuietHours = []int{23, 0, 1, 2, 3, 4, 5, 6, 7}

// Bounds are the tunables of the discovery filters.
type Bounds struct {
	MinPoints          int
	MaxPoints          int
	Radius             float64
	AttackHigherPoints bool
	// ExtraFarm lists player-owned or tribe villages that may be farmed anyway.
	ExtraFarm  []string
	QuietHours []int
}

// Logger abstracts logging so callers can plug in logrus or anything else
// with the same method set.
type Logger interface {
	Infof(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Option configures a Discovery.
type Option func(*Discovery)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l Logger) Option {
	return func(d *Discovery) {
		if l != nil {
			d.log = l
		}
	}
}

// WithClock replaces time.Now, used for the quiet-hours check.
func WithClock(now func() time.Time) Option {
	return func(d *Discovery) {
		if now != nil {
			d.now = now
		}
	}
}

// Discovery filters and orders targets. It keeps the ignore set and the
// unengageable set for the lifetime of the process. Not safe for concurrent
// use; each home owns its own instance.
type Discovery struct {
	bounds       Bounds
	extra        map[string]bool
	quiet        map[int]bool
	ignored      IgnoreSet
	unengageable map[string]bool
	log          Logger
	now          func() time.Time
}

// New creates a Discovery with the given bounds.
func New(b Bounds, opts ...Option) *Discovery {
	d := &Discovery{
		bounds:       b,
		extra:        make(map[string]bool, len(b.ExtraFarm)),
		quiet:        make(map[int]bool),
		ignored:      IgnoreSet{},
		unengageable: make(map[string]bool),
		log:          nopLogger{},
		now:          time.Now,
	}
	for _, id := range b.ExtraFarm {
		d.extra[id] = true
	}
	hours := b.QuietHours
	if hours == nil {
		hours = DefaultQuietHours
	}
	for _, h := range hours {
		d.quiet[h] = true
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover applies the filters in order and returns the surviving targets
// sorted by ascending distance, ties broken by target id.
func (d *Discovery) Discover(snap *world.Snapshot) []world.Candidate {
	if snap == nil {
		return nil
	}
	hour := d.now().Hour()
	out := make([]world.Candidate, 0, len(snap.Targets))
	for id, t := range snap.Targets {
		dist := snap.DistanceTo(t.Location)
		if reason, skip := d.filter(snap.Home, t, dist, hour); skip {
			d.ignore(id, reason, t, dist)
			continue
		}
		if _, was := d.ignored[id]; was {
			d.log.Debugf("Removed %s from farm ignore list", id)
			delete(d.ignored, id)
		}
		out = append(out, world.Candidate{Target: t, Distance: dist})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Target.ID < out[j].Target.ID
	})
	d.log.Infof("Farm targets: %d Ignored targets: %d", len(out), len(d.ignored))
	return out
}

func (d *Discovery) filter(home, t world.Target, dist float64, hour int) (Reason, bool) {
	allowed := d.extra[t.ID]
	own := t.Ownership()

	if own == world.PlayerOwned {
		if !allowed {
			return ReasonPlayerOwned, true
		}
		if d.quiet[hour] {
			return ReasonQuietHours, true
		}
	}
	if own == world.Stronghold || (t.Tribe != "" && !allowed) {
		return ReasonTribe, true
	}
	if t.Points < d.bounds.MinPoints || (d.bounds.MaxPoints > 0 && t.Points > d.bounds.MaxPoints) {
		return ReasonPointsRange, true
	}
	if home.Points > 0 && t.Points >= home.Points && !d.bounds.AttackHigherPoints {
		return ReasonHigherPoints, true
	}
	if dist > d.bounds.Radius {
		return ReasonTooFar, true
	}
	if d.unengageable[t.ID] {
		return ReasonUnengageable, true
	}
	return "", false
}

func (d *Discovery) ignore(id string, reason Reason, t world.Target, dist float64) {
	if prev, ok := d.ignored[id]; ok && prev == reason {
		return
	}
	switch reason {
	case ReasonPointsRange:
		d.log.Debugf("Ignoring village %s because points %d are outside %d-%d", id, t.Points, d.bounds.MinPoints, d.bounds.MaxPoints)
	case ReasonTooFar:
		d.log.Debugf("Ignoring village %s because it is too far away: distance is %.2f, max is %.2f", id, dist, d.bounds.Radius)
	default:
		d.log.Debugf("Ignoring village %s: %s", id, reason)
	}
	d.ignored[id] = reason
}

// MarkUnengageable excludes a target until the process restarts. Used when
// the game refuses commands against it.
func (d *Discovery) MarkUnengageable(id string) {
	d.unengageable[id] = true
}

// Ignored returns a copy of the current ignore set.
func (d *Discovery) Ignored() IgnoreSet {
	out := make(IgnoreSet, len(d.ignored))
	for id, r := range d.ignored {
		out[id] = r
	}
	return out
}
