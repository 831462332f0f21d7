package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/tribalfarm/tfarm/pkg/cache"
	"github.com/tribalfarm/tfarm/pkg/cooldown"
	"github.com/tribalfarm/tfarm/pkg/discovery"
	"github.com/tribalfarm/tfarm/pkg/engine"
	"github.com/tribalfarm/tfarm/pkg/reports"
	"github.com/tribalfarm/tfarm/pkg/safety"
	"github.com/tribalfarm/tfarm/pkg/troops"
	"github.com/tribalfarm/tfarm/pkg/world"
)

// printer is a Transport that only prints what it would send.
type printer struct{}

func (printer) DispatchAttack(ctx context.Context, o engine.AttackOrder) (engine.AttackResult, error) {
	fmt.Println("attack", o.TargetID, o.Location, o.Units)
	return engine.AttackResult{Dispatched: true, Duration: 10 * time.Minute}, nil
}

func (printer) DispatchScout(ctx context.Context, o engine.ScoutOrder) (bool, error) {
	fmt.Println("scout ", o.TargetID, o.Location, o.Units)
	return true, nil
}

// noReports answers as if no report was ever received.
type noReports struct{}

func (noReports) SafetyStatus(ctx context.Context, id string) (reports.SafetyStatus, error) {
	return reports.StatusUnavailable, nil
}

func (noReports) MostRecentReport(ctx context.Context, id string) (*reports.Report, error) {
	return nil, nil
}

func (noReports) PriorityTargets(ctx context.Context, c []world.Candidate) ([]world.Candidate, error) {
	return nil, nil
}

func main() {
	// Usage: go run . -world world.json -home 12345

	worldFlag := flag.String("world", "", "World dump (JSON)")
	homeFlag := flag.String("home", "", "Home village id")
	spiesFlag := flag.Int("spies", 20, "Scouts at home")
	lightFlag := flag.Int("light", 50, "Light cavalry at home")
	flag.Parse()

	if *worldFlag == "" || *homeFlag == "" {
		fmt.Println("Both -world and -home are required.")
		return
	}

	ctx := context.Background()
	snap, err := world.FileProvider{Path: *worldFlag}.Snapshot(ctx, *homeFlag)
	if err != nil {
		fmt.Println(err)
		return
	}

	store := cache.NewMemory()
	counts := troops.Composition{"spy": *spiesFlag, "light": *lightFlag}
	orch := engine.New(engine.Deps{
		Home:      *homeFlag,
		Discovery: discovery.New(discovery.Bounds{MinPoints: 24, MaxPoints: 1080, Radius: 50}),
		Safety:    safety.New(safety.DefaultConfig(), store, noReports{}, cooldown.New(cooldown.Config{}), nil),
		Inventory: troops.NewPool(nil, counts, counts),
		Transport: printer{},
	}, engine.Config{
		Templates:    []troops.Composition{{"light": 5}},
		ScoutEnabled: true,
	})

	out, err := orch.RunCycle(ctx, snap, engine.Conditions{})
	if err != nil {
		fmt.Println(err)
	}
	fmt.Println(out)
}
