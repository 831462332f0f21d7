package cmd

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tribalfarm/tfarm/pkg/cache"
	"github.com/tribalfarm/tfarm/pkg/config"
	"github.com/tribalfarm/tfarm/pkg/engine"
	"github.com/tribalfarm/tfarm/pkg/storage"
)

func TestCycleLog(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "tfarm.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	start := time.Unix(1700000000, 0)
	out := engine.Outcome{Attacked: 3, Scouted: 1, Blind: 1, Started: start, Finished: start.Add(42 * time.Second)}
	if err := (cycleLog{db: db}).LogCycle(context.Background(), "100", out); err != nil {
		t.Fatalf("LogCycle: %v", err)
	}
	cycles, err := db.ListCycles(context.Background(), "100", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(cycles) != 1 || cycles[0].Attacked != 3 || cycles[0].Blind != 1 || cycles[0].Finished.Sub(cycles[0].Started) != 42*time.Second {
		t.Fatalf("unexpected cycles %+v", cycles)
	}
}

func TestJournalDir(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  config.Storage
		want string
	}{
		{"relative to database", config.Storage{Database: filepath.Join(dir, "tfarm.db"), Journal: "journal"}, filepath.Join(dir, "journal")},
		{"absolute", config.Storage{Database: filepath.Join(dir, "tfarm.db"), Journal: "/var/lib/tfarm/journal"}, "/var/lib/tfarm/journal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := journalDir(&config.Config{Storage: tt.cfg})
			if got != tt.want {
				t.Fatalf("journalDir = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCacheFormatting(t *testing.T) {
	if formatUnix(0) != "never" {
		t.Fatal("zero time should read never")
	}
	if p := profile(cache.Entry{HighProfile: true, LowProfile: true}); p != "high" {
		t.Fatalf("high profile wins, got %s", p)
	}
	if p := profile(cache.Entry{}); p != "default" {
		t.Fatalf("got %s", p)
	}
}
