package cooldown

import (
	"testing"
	"time"

	"github.com/tribalfarm/tfarm/pkg/cache"
	"github.com/tribalfarm/tfarm/pkg/reports"
)

func report(loot int) *reports.Report {
	return &reports.Report{Kind: reports.KindAttack, Defenders: reports.DefendersNone, Loot: map[string]int{"wood": loot}}
}

func TestInterval(t *testing.T) {
	p := New(Config{})

	cases := []struct {
		name  string
		entry cache.Entry
		last  *reports.Report
		want  time.Duration
	}{
		{"default no report", cache.Entry{}, nil, 1200 * time.Second},
		{"high profile", cache.Entry{HighProfile: true}, nil, 1800 * time.Second},
		{"low profile", cache.Entry{LowProfile: true}, nil, 7200 * time.Second},
		{"high wins over low", cache.Entry{HighProfile: true, LowProfile: true}, nil, 1800 * time.Second},
		{"drain default", cache.Entry{}, report(500), 900 * time.Second},
		{"drain low profile", cache.Entry{LowProfile: true}, report(500), 900 * time.Second},
		{"small loot keeps base", cache.Entry{}, report(100), 1200 * time.Second},
		{"exhausted backs off", cache.Entry{}, report(0), 1800 * time.Second},
		{"exhausted low profile", cache.Entry{LowProfile: true}, report(0), 10800 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.Interval(tc.entry, tc.last); got != tc.want {
				t.Fatalf("want %v, got %v", tc.want, got)
			}
		})
	}
}

func TestIntervalCeiling(t *testing.T) {
	p := New(Config{Low: 20 * time.Hour, Ceiling: 24 * time.Hour})
	if got := p.Interval(cache.Entry{LowProfile: true}, report(0)); got != 24*time.Hour {
		t.Fatalf("expected ceiling, got %v", got)
	}
}

func TestIntervalMonotonicInLoot(t *testing.T) {
	p := New(Config{})
	for _, e := range []cache.Entry{{}, {HighProfile: true}, {LowProfile: true}} {
		prev := p.Interval(e, report(0))
		for loot := 1; loot <= 5000; loot += 37 {
			got := p.Interval(e, report(loot))
			if got > prev {
				t.Fatalf("interval grew with loot for %+v: %v -> %v at loot %d", e, prev, got, loot)
			}
			if got < 0 || got > DefaultCeiling {
				t.Fatalf("interval %v out of range", got)
			}
			prev = got
		}
	}
}

func TestReady(t *testing.T) {
	p := New(Config{})
	now := time.Unix(1700000000, 0)
	e := cache.Entry{LastAttack: now.Add(-10 * time.Minute).Unix(), Safe: true, Scouted: true}
	if p.Ready(e, nil, now) {
		t.Fatal("expected cooling down after 10 minutes")
	}
	if !p.Ready(e, nil, now.Add(10*time.Minute)) {
		t.Fatal("expected ready after 20 minutes")
	}
}
