// Package engine runs farming cycles for one home village: it takes the
// discovered candidates, asks the safety machine about each, and dispatches
// attacks and scouts through a Transport.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tribalfarm/tfarm/pkg/discovery"
	"github.com/tribalfarm/tfarm/pkg/priority"
	"github.com/tribalfarm/tfarm/pkg/reports"
	"github.com/tribalfarm/tfarm/pkg/safety"
	"github.com/tribalfarm/tfarm/pkg/troops"
	"github.com/tribalfarm/tfarm/pkg/world"
)

// ErrNoTroops is returned when the home village has no units even after a refresh.
var ErrNoTroops = errors.New("no troops in village")

const (
	DefaultMaxFarms  = 15
	DefaultScoutUnit = "spy"
	DefaultScoutSize = 5
	DefaultSweepAge  = 12 * time.Hour
)

// AttackOrder is one farm command.
type AttackOrder struct {
	TargetID string
	Location world.Coord
	Units    troops.Composition
	// AbortIf is called by the transport once the travel time is known and
	// before the command is confirmed. Returning true cancels the command.
	AbortIf func(travel time.Duration) bool
}

// AttackResult is what the transport reports back.
type AttackResult struct {
	Duration   time.Duration
	Dispatched bool
	Vetoed     bool
}

// ScoutOrder is one reconnaissance command.
type ScoutOrder struct {
	TargetID string
	Location world.Coord
	Units    troops.Composition
}

// Transport sends commands to the game.
type Transport interface {
	DispatchAttack(ctx context.Context, o AttackOrder) (AttackResult, error)
	DispatchScout(ctx context.Context, o ScoutOrder) (bool, error)
}

// CycleLog persists cycle outcomes.
type CycleLog interface {
	LogCycle(ctx context.Context, home string, o Outcome) error
}

// Journal records every command sent.
type Journal interface {
	Write(v interface{}) error
}

// Event is one journal line.
type Event struct {
	Time     time.Time          `json:"time"`
	Home     string             `json:"home"`
	Target   string             `json:"target"`
	Action   string             `json:"action"`
	Units    troops.Composition `json:"units,omitempty"`
	Travel   float64            `json:"travel_seconds,omitempty"`
	Blind    bool               `json:"blind,omitempty"`
	Priority bool               `json:"priority,omitempty"`
}

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// nopLogger silently discards all messages.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Deps are the collaborators of an Orchestrator. Classifier, Reports,
// CycleLog, Journal and Log are optional.
type Deps struct {
	Home       string
	Discovery  *discovery.Discovery
	Classifier priority.Classifier
	Safety     *safety.Machine
	Reports    reports.Subsystem
	Inventory  troops.Inventory
	Transport  Transport
	CycleLog   CycleLog
	Journal    Journal
	Log        Logger
	Clock      func() time.Time
}

// Config holds the per-home farming settings.
type Config struct {
	MaxFarms int
	// Templates are tried in order. With a single template, running out of
	// units ends farming for the cycle.
	Templates    []troops.Composition
	ScoutUnit    string
	ScoutSize    int
	ScoutEnabled bool
	ForcedPeace  []PeaceWindow
	// SweepAge is how recently a target must have been engaged to be left
	// out of the scout sweep.
	SweepAge time.Duration
}

// Conditions are the per-cycle global gates.
type Conditions struct {
	ResourcesFull bool
	UnderAttack   bool
}

// Outcome summarises one cycle.
type Outcome struct {
	Attacked int
	Scouted  int
	Skipped  int
	Vetoed   int
	Failed   int
	Blind    int
	Aborted  bool
	Reason   string
	Started  time.Time
	Finished time.Time
}

func (o Outcome) String() string {
	s := fmt.Sprintf("attacked=%d scouted=%d skipped=%d vetoed=%d failed=%d blind=%d", o.Attacked, o.Scouted, o.Skipped, o.Vetoed, o.Failed, o.Blind)
	if o.Reason != "" {
		s += " reason=" + o.Reason
	}
	return s
}

// Orchestrator drives farming cycles for one home village.
type Orchestrator struct {
	deps Deps
	cfg  Config
	log  Logger
	now  func() time.Time
}

func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.MaxFarms <= 0 {
		cfg.MaxFarms = DefaultMaxFarms
	}
	if cfg.ScoutUnit == "" {
		cfg.ScoutUnit = DefaultScoutUnit
	}
	if cfg.ScoutSize <= 0 {
		cfg.ScoutSize = DefaultScoutSize
	}
	if cfg.SweepAge <= 0 {
		cfg.SweepAge = DefaultSweepAge
	}
	o := &Orchestrator{deps: deps, cfg: cfg, log: deps.Log, now: deps.Clock}
	if o.log == nil {
		o.log = nopLogger{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// cycle carries the mutable state of one RunCycle call.
type cycle struct {
	*Orchestrator
	ctx        context.Context
	snap       *world.Snapshot
	out        *Outcome
	acted      map[string]bool
	infeasible map[string]bool
	priority   map[string]bool
	boundary   time.Time
	hasBound   bool
}

// RunCycle runs one farming cycle. Store failures abort the cycle and are
// returned; transport failures are counted and skipped.
func (o *Orchestrator) RunCycle(ctx context.Context, snap *world.Snapshot, cond Conditions) (out Outcome, err error) {
	out.Started = o.now()
	defer func() {
		out.Finished = o.now()
		o.log.Infof("Cycle for %s done: %s", o.deps.Home, out)
		if o.deps.CycleLog != nil {
			if lerr := o.deps.CycleLog.LogCycle(ctx, o.deps.Home, out); lerr != nil {
				o.log.Warnf("Could not log cycle for %s: %v", o.deps.Home, lerr)
			}
		}
	}()

	if w, ok := ActivePeace(o.cfg.ForcedPeace, out.Started); ok {
		o.log.Debugf("Currently in a forced peace time until %s! No attacks will be sent.", w.End.Format(time.RFC3339))
		out.Reason = "forced peace"
		return out, nil
	}
	if cond.ResourcesFull {
		o.log.Warnf("Resources full for village %s! Not sending out farming units", o.deps.Home)
		out.Reason = "resources full"
		return out, nil
	}
	if cond.UnderAttack {
		o.log.Warnf("Village %s is under attack, holding troops at home", o.deps.Home)
		out.Reason = "under attack"
		return out, nil
	}

	inv := o.deps.Inventory
	if inv.Counts().Empty() {
		if rerr := inv.Refresh(ctx); rerr != nil {
			o.log.Warnf("Could not refresh troops of %s: %v", o.deps.Home, rerr)
		}
		if inv.Counts().Empty() {
			o.log.Warnf("No troops in village %s at all!", o.deps.Home)
			out.Aborted = true
			out.Reason = ErrNoTroops.Error()
			return out, ErrNoTroops
		}
	}

	c := &cycle{
		Orchestrator: o,
		ctx:          ctx,
		snap:         snap,
		out:          &out,
		acted:        map[string]bool{},
		infeasible:   map[string]bool{},
		priority:     map[string]bool{},
	}
	c.boundary, c.hasBound = NextPeace(o.cfg.ForcedPeace, out.Started)
	if c.hasBound {
		o.log.Infof("Forced peace time coming up at %s", c.boundary.Format(time.RFC3339))
	}

	candidates := o.deps.Discovery.Discover(snap)
	var prio []world.Candidate
	if o.deps.Classifier != nil {
		prio, err = o.deps.Classifier.Classify(ctx, candidates)
		if err != nil {
			o.log.Warnf("Priority classification failed for %s: %v", o.deps.Home, err)
			prio, err = nil, nil
		}
	}
	if len(prio) > 0 {
		o.log.Infof("Found %d priority targets", len(prio))
	}
	for _, p := range prio {
		c.priority[p.Target.ID] = true
	}

	if err := c.farm(prio, candidates); err != nil {
		out.Aborted = true
		out.Reason = err.Error()
		return out, err
	}
	if err := c.sweep(candidates); err != nil {
		out.Aborted = true
		out.Reason = err.Error()
		return out, err
	}
	return out, nil
}

func head(c []world.Candidate, n int) []world.Candidate {
	if len(c) > n {
		return c[:n]
	}
	return c
}

// farm walks priority targets, then the rest.
func (c *cycle) farm(prio, candidates []world.Candidate) error {
	for _, t := range head(prio, c.cfg.MaxFarms) {
		stop, err := c.target(t, true)
		if err != nil || stop {
			return err
		}
	}
	for _, t := range head(candidates, c.cfg.MaxFarms) {
		if c.priority[t.Target.ID] {
			continue
		}
		stop, err := c.target(t, false)
		if err != nil || stop {
			return err
		}
	}
	return nil
}

// template picks the first template the home can field. stop is set when
// nothing can be fielded for the rest of the cycle.
func (c *cycle) template() (tpl troops.Composition, stop bool) {
	inv := c.deps.Inventory
	if len(c.cfg.Templates) == 1 {
		tpl = c.cfg.Templates[0]
		if missing := inv.Missing(tpl); missing != "" {
			c.log.Debugf("Not sending additional farm because not enough units: %s", missing)
			return nil, true
		}
		return tpl, false
	}
	for _, t := range c.cfg.Templates {
		key := t.Key()
		if c.infeasible[key] {
			continue
		}
		if missing := inv.Missing(t); missing != "" {
			c.log.Debugf("Template %s no longer possible: %s", t, missing)
			c.infeasible[key] = true
			continue
		}
		return t, false
	}
	return nil, true
}

func (c *cycle) target(t world.Candidate, isPriority bool) (stop bool, err error) {
	id := t.Target.ID
	if c.acted[id] {
		return false, nil
	}
	tpl, stop := c.template()
	if stop {
		return true, nil
	}

	v, err := c.deps.Safety.Evaluate(c.ctx, id, safety.Options{Priority: isPriority}, c)
	if err != nil {
		return false, fmt.Errorf("evaluating %s: %w", id, err)
	}
	switch v.Kind {
	case safety.ScoutDispatched:
		return false, nil
	case safety.Skip:
		c.out.Skipped++
		c.log.Debugf("Skipping %s (%s): %s", id, v.State, v.Reason)
		return false, nil
	}
	return false, c.attack(t, tpl, v, isPriority)
}

func (c *cycle) attack(t world.Candidate, tpl troops.Composition, v safety.Verdict, isPriority bool) error {
	id := t.Target.ID
	order := AttackOrder{
		TargetID: id,
		Location: t.Target.Location,
		Units:    tpl.Clone(),
		AbortIf: func(travel time.Duration) bool {
			return c.hasBound && c.now().Add(travel).After(c.boundary)
		},
	}
	res, err := c.deps.Transport.DispatchAttack(c.ctx, order)
	if err != nil {
		c.out.Failed++
		c.log.Errorf("Attack %s -> %s failed: %v", c.deps.Home, t.Target.Location, err)
		return nil
	}
	if res.Vetoed {
		c.out.Vetoed++
		c.acted[id] = true
		c.log.Infof("Attack on %s would arrive after the forced peace timer, not sending attack!", t.Target.Location)
		c.journal(Event{Target: id, Action: "vetoed", Units: tpl, Travel: res.Duration.Seconds(), Priority: isPriority})
		return nil
	}
	if !res.Dispatched {
		c.out.Skipped++
		c.log.Debugf("Ignoring target %s because unable to attack", id)
		c.deps.Discovery.MarkUnengageable(id)
		return nil
	}

	c.deps.Inventory.Deduct(tpl)
	c.acted[id] = true
	c.out.Attacked++
	if v.Blind {
		c.out.Blind++
	}
	c.log.Infof("Attacking %s -> %s (%s) duration %.1f h", c.deps.Home, t.Target.Location, tpl, res.Duration.Hours())
	c.journal(Event{Target: id, Action: "attack", Units: tpl, Travel: res.Duration.Seconds(), Blind: v.Blind, Priority: isPriority})
	if _, err := c.deps.Safety.RecordAttack(c.ctx, id, v); err != nil {
		return err
	}
	return nil
}

// CanScout reports whether enough scouts are home for one more scout command.
func (c *cycle) CanScout() bool {
	return c.cfg.ScoutEnabled && c.deps.Inventory.Available(c.cfg.ScoutUnit) >= c.cfg.ScoutSize
}

// Scout dispatches a scout. Transport failures are counted and reported as
// not dispatched.
func (c *cycle) Scout(ctx context.Context, targetID string) (bool, error) {
	if !c.CanScout() {
		return false, nil
	}
	t, ok := c.snap.Targets[targetID]
	if !ok {
		return false, nil
	}
	units := troops.Composition{c.cfg.ScoutUnit: c.cfg.ScoutSize}
	sent, err := c.deps.Transport.DispatchScout(ctx, ScoutOrder{TargetID: targetID, Location: t.Location, Units: units})
	if err != nil {
		c.out.Failed++
		c.log.Errorf("Scout %s -> %s failed: %v", c.deps.Home, t.Location, err)
		return false, nil
	}
	if !sent {
		return false, nil
	}
	c.deps.Inventory.Deduct(units)
	c.acted[targetID] = true
	c.out.Scouted++
	c.log.Infof("Scouting %s -> %s", c.deps.Home, t.Location)
	c.journal(Event{Target: targetID, Action: "scout", Units: units})
	if _, err := c.deps.Safety.RecordScout(ctx, targetID); err != nil {
		return true, err
	}
	return true, nil
}

// sweep spends spare scouts on targets nobody looked at recently.
func (c *cycle) sweep(candidates []world.Candidate) error {
	if !c.cfg.ScoutEnabled {
		return nil
	}
	inv := c.deps.Inventory
	unit := c.cfg.ScoutUnit
	budget := inv.Total(unit) / 2
	if inv.Available(unit) < budget {
		c.log.Debugf("We have %d scouts. Not enough to scout out farms...", inv.Available(unit))
		return nil
	}
	floor := budget
	if c.cfg.ScoutSize > floor {
		floor = c.cfg.ScoutSize
	}
	now := c.now()
	for _, t := range head(candidates, c.cfg.MaxFarms) {
		if inv.Available(unit) < floor {
			c.log.Debugf("Not enough scouts left to scout with. Keeping %d in village.", inv.Available(unit))
			return nil
		}
		id := t.Target.ID
		if c.acted[id] {
			continue
		}
		recent, err := c.recentlyEngaged(id, now)
		if err != nil {
			return err
		}
		if recent {
			continue
		}
		sent, err := c.Scout(c.ctx, id)
		if err != nil {
			return err
		}
		if !sent {
			return nil
		}
	}
	return nil
}

func (c *cycle) recentlyEngaged(id string, now time.Time) (bool, error) {
	if c.deps.Reports != nil {
		last, err := c.deps.Reports.MostRecentReport(c.ctx, id)
		if err != nil {
			return false, fmt.Errorf("last report of %s: %w", id, err)
		}
		if last != nil && now.Sub(last.When) < c.cfg.SweepAge {
			return true, nil
		}
	}
	entry, err := c.deps.Safety.Entry(c.ctx, id)
	if err != nil {
		return false, err
	}
	return entry != nil && entry.Age(now) < c.cfg.SweepAge, nil
}

func (c *cycle) journal(e Event) {
	if c.deps.Journal == nil {
		return
	}
	e.Time = c.now()
	e.Home = c.deps.Home
	if err := c.deps.Journal.Write(e); err != nil {
		c.log.Warnf("Could not write journal: %v", err)
	}
}
