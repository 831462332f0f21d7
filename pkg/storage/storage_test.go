package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tribalfarm/tfarm/pkg/cache"
	"github.com/tribalfarm/tfarm/pkg/reports"
	"github.com/tribalfarm/tfarm/pkg/world"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "tfarm.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if _, err := db.Get(ctx, "555"); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	want := cache.Entry{LastAttack: 1700000123, Safe: false, Scouted: true, HighProfile: false, LowProfile: true}
	if err := db.Put(ctx, "555", want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := db.Get(ctx, "555")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch.\nwant: %+v\ngot:  %+v", want, got)
	}

	if err := db.Put(ctx, "556", cache.Entry{LastAttack: 5}); err != nil {
		t.Fatal(err)
	}
	if err := db.Put(ctx, "600", cache.Entry{LastAttack: 6}); err != nil {
		t.Fatal(err)
	}
	listed, err := db.List(ctx, "55")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 entries with prefix 55, got %v", listed)
	}
	n, err := db.CacheSize(ctx)
	if err != nil || n != 3 {
		t.Fatalf("expected 3 cached targets, got %d (%v)", n, err)
	}
}

func TestCacheCorruptRow(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	if _, err := db.sql.ExecContext(ctx, "INSERT INTO attack_cache(key, data) VALUES('bad', '{\"scout\": 1')"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Get(ctx, "bad"); !errors.Is(err, cache.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	all, err := db.List(ctx, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("corrupt rows must not be listed, got %v", all)
	}
}

func TestReports(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	base := time.Unix(1700000000, 0)

	status, err := db.SafetyStatus(ctx, "42")
	if err != nil || status != reports.StatusUnavailable {
		t.Fatalf("expected unavailable without reports, got %v (%v)", status, err)
	}
	if r, err := db.MostRecentReport(ctx, "42"); r != nil || err != nil {
		t.Fatalf("expected no report, got %+v (%v)", r, err)
	}

	if err := db.AddReport(ctx, reports.Report{TargetID: "42", Kind: reports.KindScout, When: base, Defenders: reports.DefendersPresent}); err != nil {
		t.Fatalf("AddReport: %v", err)
	}
	if err := db.AddReport(ctx, reports.Report{TargetID: "42", Kind: reports.KindAttack, When: base.Add(time.Hour), Defenders: reports.DefendersNone, Loot: map[string]int{"wood": 700, "stone": 400}}); err != nil {
		t.Fatalf("AddReport: %v", err)
	}

	r, err := db.MostRecentReport(ctx, "42")
	if err != nil {
		t.Fatalf("MostRecentReport: %v", err)
	}
	if r.Kind != reports.KindAttack || !r.When.Equal(base.Add(time.Hour)) || r.LootTotal() != 1100 {
		t.Fatalf("unexpected report: %+v", r)
	}
	if status, _ := db.SafetyStatus(ctx, "42"); status != reports.StatusSafe {
		t.Fatalf("expected safe, got %v", status)
	}

	if err := db.AddReport(ctx, reports.Report{TargetID: "42", Kind: "support", When: base}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestPriorityTargets(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	db.PriorityLoot = 500
	now := time.Unix(1700000000, 0)

	add := func(id string, d reports.Defenders, loot int) {
		t.Helper()
		if err := db.AddReport(ctx, reports.Report{TargetID: id, Kind: reports.KindAttack, When: now, Defenders: d, Loot: map[string]int{"iron": loot}}); err != nil {
			t.Fatal(err)
		}
	}
	add("rich", reports.DefendersNone, 900)
	add("poor", reports.DefendersNone, 20)
	add("guarded", reports.DefendersPresent, 5000)
	add("rich2", reports.DefendersNone, 500)

	cands := []world.Candidate{
		{Target: world.Target{ID: "rich2"}, Distance: 1},
		{Target: world.Target{ID: "poor"}, Distance: 2},
		{Target: world.Target{ID: "guarded"}, Distance: 3},
		{Target: world.Target{ID: "unknown"}, Distance: 4},
		{Target: world.Target{ID: "rich"}, Distance: 5},
	}
	got, err := db.PriorityTargets(ctx, cands)
	if err != nil {
		t.Fatalf("PriorityTargets: %v", err)
	}
	if len(got) != 2 || got[0].Target.ID != "rich2" || got[1].Target.ID != "rich" {
		t.Fatalf("unexpected priority targets: %+v", got)
	}
}

func TestCycles(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	start := time.Unix(1700000000, 0)

	if err := db.LogCycle(ctx, Cycle{}); err == nil {
		t.Fatal("expected error for cycle without home")
	}
	for i := 0; i < 3; i++ {
		c := Cycle{Home: "1", Started: start.Add(time.Duration(i) * time.Hour), Finished: start.Add(time.Duration(i)*time.Hour + time.Minute), Attacked: 2, Scouted: 1, Vetoed: i}
		if err := db.LogCycle(ctx, c); err != nil {
			t.Fatalf("LogCycle: %v", err)
		}
	}
	if err := db.LogCycle(ctx, Cycle{Home: "2", Started: start, Finished: start, Aborted: true, Reason: "no troops"}); err != nil {
		t.Fatal(err)
	}

	cycles, err := db.ListCycles(ctx, "1", 2)
	if err != nil {
		t.Fatalf("ListCycles: %v", err)
	}
	if len(cycles) != 2 || cycles[0].Vetoed != 2 || !cycles[0].Started.Equal(start.Add(2*time.Hour)) {
		t.Fatalf("unexpected cycles: %+v", cycles)
	}

	all, _ := db.ListCycles(ctx, "", 0)
	if len(all) != 4 {
		t.Fatalf("expected 4 cycles, got %d", len(all))
	}

	stats, err := db.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected stats for 2 homes, got %+v", stats)
	}
	if stats[0].Home != "1" || stats[0].Cycles != 3 || stats[0].Attacked != 6 || stats[0].Vetoed != 3 {
		t.Fatalf("unexpected stats for home 1: %+v", stats[0])
	}
	if stats[1].Home != "2" || stats[1].Cycles != 1 {
		t.Fatalf("unexpected stats for home 2: %+v", stats[1])
	}
}
