package troops

import (
	"context"
	"errors"
	"testing"
)

func TestCompositionKeyIsOrderIndependent(t *testing.T) {
	a := Composition{"light": 5, "spy": 1}
	b := Composition{"spy": 1, "light": 5}
	if a.Key() != b.Key() {
		t.Fatalf("expected equal keys, got %q and %q", a.Key(), b.Key())
	}
	if a.Key() != "light=5,spy=1" {
		t.Fatalf("unexpected key %q", a.Key())
	}
}

func TestPoolMissingAndDeduct(t *testing.T) {
	p := NewPool(nil, Composition{"light": 12, "spy": 3}, nil)
	if m := p.Missing(Composition{"light": 10}); m != "" {
		t.Fatalf("expected nothing missing, got %q", m)
	}
	if m := p.Missing(Composition{"light": 10, "axe": 5}); m != "axe (0/5)" {
		t.Fatalf("unexpected missing %q", m)
	}
	p.Deduct(Composition{"light": 10})
	if p.Available("light") != 2 {
		t.Fatalf("expected 2 light left, got %d", p.Available("light"))
	}
	if Has(p, Composition{"light": 10}) {
		t.Fatal("expected template to be infeasible after deduction")
	}
	p.Deduct(Composition{"spy": 10})
	if p.Available("spy") != 0 {
		t.Fatalf("deduction must not go negative, got %d", p.Available("spy"))
	}
	if _, ok := p.Counts()["spy"]; ok {
		t.Fatal("units at zero must not be reported in Counts")
	}
}

func TestPoolTotalFallsBackToHome(t *testing.T) {
	p := NewPool(nil, Composition{"spy": 10}, Composition{"spy": 24})
	if p.Total("spy") != 24 {
		t.Fatalf("expected total 24, got %d", p.Total("spy"))
	}
	q := NewPool(nil, Composition{"spy": 10}, nil)
	if q.Total("spy") != 10 {
		t.Fatalf("expected total to fall back to home count, got %d", q.Total("spy"))
	}
}

func TestPoolRefresh(t *testing.T) {
	calls := 0
	src := SourceFunc(func(ctx context.Context) (Composition, Composition, error) {
		calls++
		return Composition{"axe": 50}, Composition{"axe": 80}, nil
	})
	p := NewPool(src, nil, nil)
	if !p.Counts().Empty() {
		t.Fatal("expected empty pool before refresh")
	}
	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 || p.Available("axe") != 50 || p.Total("axe") != 80 {
		t.Fatalf("unexpected pool state after refresh: calls=%d counts=%v", calls, p.Counts())
	}

	boom := errors.New("boom")
	failing := NewPool(SourceFunc(func(ctx context.Context) (Composition, Composition, error) {
		return nil, nil, boom
	}), Composition{"axe": 1}, nil)
	if err := failing.Refresh(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped source error, got %v", err)
	}
	if failing.Available("axe") != 1 {
		t.Fatal("failed refresh must keep previous counts")
	}
}
