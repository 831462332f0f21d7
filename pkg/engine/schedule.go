package engine

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultJitterMin = 20 * time.Second
	DefaultJitterMax = 120 * time.Second
)

// Schedule decides how long the bot sleeps between rounds.
type Schedule struct {
	// StartHour and EndHour bound the active period: StartHour <= hour < EndHour.
	// A StartHour greater than EndHour wraps past midnight.
	StartHour int
	EndHour   int

	ActiveDelay   time.Duration
	InactiveDelay time.Duration
	// InactiveStillActive keeps farming outside the active hours with InactiveDelay.
	InactiveStillActive bool

	JitterMin time.Duration
	JitterMax time.Duration

	rng *rand.Rand
}

// ParseActiveHours parses "6-23".
func ParseActiveHours(s string) (start, end int, err error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("active hours %q: want start-end", s)
	}
	start, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("active hours %q: %w", s, err)
	}
	end, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("active hours %q: %w", s, err)
	}
	if start < 0 || start > 24 || end < 0 || end > 24 {
		return 0, 0, fmt.Errorf("active hours %q out of range", s)
	}
	return start, end, nil
}

// Seed makes the jitter reproducible.
func (s *Schedule) Seed(seed int64) {
	s.rng = rand.New(rand.NewSource(seed))
}

// Active reports whether t falls in the active hours.
func (s *Schedule) Active(t time.Time) bool {
	h := t.Hour()
	if s.StartHour <= s.EndHour {
		return h >= s.StartHour && h < s.EndHour
	}
	return h >= s.StartHour || h < s.EndHour
}

// ShouldRun reports whether a round should farm at t.
func (s *Schedule) ShouldRun(t time.Time) bool {
	return s.Active(t) || s.InactiveStillActive
}

// Next returns the sleep before the next round, jitter included.
func (s *Schedule) Next(t time.Time) time.Duration {
	var d time.Duration
	if s.Active(t) {
		d = s.ActiveDelay
	} else if s.InactiveStillActive {
		d = s.InactiveDelay
	}
	return d + s.jitter()
}

func (s *Schedule) jitter() time.Duration {
	lo, hi := s.JitterMin, s.JitterMax
	if lo <= 0 && hi <= 0 {
		lo, hi = DefaultJitterMin, DefaultJitterMax
	}
	if hi <= lo {
		return lo
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return lo + time.Duration(s.rng.Int63n(int64(hi-lo)+1))
}
