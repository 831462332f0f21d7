// Package cooldown decides how long a target must rest between attacks.
package cooldown

import (
	"time"

	"github.com/tribalfarm/tfarm/pkg/cache"
	"github.com/tribalfarm/tfarm/pkg/reports"
)

const (
	DefaultInterval       = 1200 * time.Second
	DefaultHighInterval   = 1800 * time.Second
	DefaultLowInterval    = 7200 * time.Second
	DefaultCeiling        = 24 * time.Hour
	DefaultDrainThreshold = 100
)

// Config holds the re-attack intervals. Zero fields take the defaults.
type Config struct {
	Default time.Duration
	High    time.Duration
	Low     time.Duration
	Ceiling time.Duration
	// DrainThreshold is the residual loot above which a target is drained faster.
	DrainThreshold int
}

func (c Config) withDefaults() Config {
	if c.Default <= 0 {
		c.Default = DefaultInterval
	}
	if c.High <= 0 {
		c.High = DefaultHighInterval
	}
	if c.Low <= 0 {
		c.Low = DefaultLowInterval
	}
	if c.Ceiling <= 0 {
		c.Ceiling = DefaultCeiling
	}
	if c.DrainThreshold <= 0 {
		c.DrainThreshold = DefaultDrainThreshold
	}
	return c
}

// Policy computes re-attack intervals.
type Policy struct {
	cfg Config
}

func New(cfg Config) *Policy {
	return &Policy{cfg: cfg.withDefaults()}
}

// Config returns the effective configuration.
func (p *Policy) Config() Config {
	return p.cfg
}

// Base returns the profile interval for an entry. HighProfile wins over LowProfile.
func (p *Policy) Base(e cache.Entry) time.Duration {
	switch {
	case e.HighProfile:
		return p.cfg.High
	case e.LowProfile:
		return p.cfg.Low
	}
	return p.cfg.Default
}

// Interval returns how long after the last attack the target may be hit
// again. last may be nil.
func (p *Policy) Interval(e cache.Entry, last *reports.Report) time.Duration {
	d := p.Base(e)
	if last != nil {
		switch loot := last.LootTotal(); {
		case loot > p.cfg.DrainThreshold:
			if half := p.cfg.High / 2; half < d {
				d = half
			}
		case loot == 0:
			d = d * 3 / 2
		}
	}
	d = d.Truncate(time.Second)
	if d < 0 {
		d = 0
	}
	if d > p.cfg.Ceiling {
		d = p.cfg.Ceiling
	}
	return d
}

// Ready reports whether the target has rested long enough at now.
func (p *Policy) Ready(e cache.Entry, last *reports.Report, now time.Time) bool {
	return !now.Before(e.LastAttackTime().Add(p.Interval(e, last)))
}
