// Package safety decides, per target and per cycle, whether to attack, scout
// or leave a target alone. It is the only writer of cache entries.
package safety

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tribalfarm/tfarm/pkg/cache"
	"github.com/tribalfarm/tfarm/pkg/cooldown"
	"github.com/tribalfarm/tfarm/pkg/reports"
)

// State is the derived safety state of a target. It is never stored.
type State int

const (
	Unseen State = iota
	ScoutNeeded
	ConfirmedSafe
	ConfirmedUnsafe
	CoolingDown
)

func (s State) String() string {
	switch s {
	case ScoutNeeded:
		return "SCOUT_NEEDED"
	case ConfirmedSafe:
		return "CONFIRMED_SAFE"
	case ConfirmedUnsafe:
		return "CONFIRMED_UNSAFE"
	case CoolingDown:
		return "COOLING_DOWN"
	default:
		return "UNSEEN"
	}
}

// VerdictKind is what the caller should do with the target this cycle.
type VerdictKind int

const (
	Skip VerdictKind = iota
	Proceed
	ScoutDispatched
)

func (k VerdictKind) String() string {
	switch k {
	case Proceed:
		return "proceed"
	case ScoutDispatched:
		return "scout"
	default:
		return "skip"
	}
}

// Verdict is the outcome of Evaluate.
type Verdict struct {
	Kind  VerdictKind
	State State
	// Entry is the cache entry the decision was based on, nil when unseen.
	Entry *cache.Entry
	// Blind is set when the attack goes ahead without any safety evidence.
	Blind bool
	// Status is the live status consulted, StatusUnavailable when none was.
	Status reports.SafetyStatus
	Reason string
}

// Config holds the machine thresholds. Zero durations take the defaults.
type Config struct {
	// StaleAfter is the age after which a target is re-scouted before anything else.
	StaleAfter time.Duration
	// PriorityUrgency is the age after which a priority target is attacked
	// without further checks.
	PriorityUrgency time.Duration
	// LowWait is the low-profile interval; unsafe targets older than twice
	// this are re-scouted. Defaults to the cooldown policy's Low interval.
	LowWait time.Duration
	// AllowBlind lets unverified targets be attacked when no scouts are home.
	AllowBlind bool
}

const (
	DefaultStaleAfter      = 12 * time.Hour
	DefaultPriorityUrgency = 20 * time.Minute
)

// DefaultConfig returns the stock thresholds with blind attacks allowed.
func DefaultConfig() Config {
	return Config{
		StaleAfter:      DefaultStaleAfter,
		PriorityUrgency: DefaultPriorityUrgency,
		LowWait:         cooldown.DefaultLowInterval,
		AllowBlind:      true,
	}
}

// Options are per-call flags.
type Options struct {
	Priority bool
	// Clear re-checks an entry even when it is marked safe.
	Clear bool
}

// Scouter dispatches scouts on behalf of the machine.
type Scouter interface {
	CanScout() bool
	// Scout returns whether a scout left. Errors are fatal for the cycle;
	// transport failures should be reported as (false, nil).
	Scout(ctx context.Context, targetID string) (bool, error)
}

// Logger abstracts logging so callers can use logrus or anything with the
// same method set.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Machine evaluates and records target safety.
type Machine struct {
	cfg     Config
	store   cache.Store
	reports reports.Subsystem
	policy  *cooldown.Policy
	log     Logger
	now     func() time.Time
}

// New creates a machine. log may be nil.
func New(cfg Config, store cache.Store, sub reports.Subsystem, policy *cooldown.Policy, log Logger) *Machine {
	if policy == nil {
		policy = cooldown.New(cooldown.Config{})
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.PriorityUrgency <= 0 {
		cfg.PriorityUrgency = DefaultPriorityUrgency
	}
	if cfg.LowWait <= 0 {
		cfg.LowWait = policy.Config().Low
	}
	if log == nil {
		log = nopLogger{}
	}
	return &Machine{cfg: cfg, store: store, reports: sub, policy: policy, log: log, now: time.Now}
}

// SetClock replaces time.Now.
func (m *Machine) SetClock(now func() time.Time) {
	m.now = now
}

// Entry loads the cache entry for a target. A missing or corrupt entry is
// returned as nil without error.
func (m *Machine) Entry(ctx context.Context, targetID string) (*cache.Entry, error) {
	e, err := m.store.Get(ctx, targetID)
	switch {
	case err == nil:
		return &e, nil
	case errors.Is(err, cache.ErrNotFound):
		return nil, nil
	case errors.Is(err, cache.ErrCorrupt):
		m.log.Warnf("Cache entry for %s is corrupt, treating target as unseen", targetID)
		return nil, nil
	}
	return nil, fmt.Errorf("reading cache for %s: %w", targetID, err)
}

func (m *Machine) status(ctx context.Context, targetID string) (reports.SafetyStatus, error) {
	if m.reports == nil {
		return reports.StatusUnavailable, nil
	}
	s, err := m.reports.SafetyStatus(ctx, targetID)
	if err != nil {
		return reports.StatusUnavailable, fmt.Errorf("safety status of %s: %w", targetID, err)
	}
	return s, nil
}

func (m *Machine) lastReport(ctx context.Context, targetID string) (*reports.Report, error) {
	if m.reports == nil {
		return nil, nil
	}
	r, err := m.reports.MostRecentReport(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("last report of %s: %w", targetID, err)
	}
	return r, nil
}

func (m *Machine) scout(ctx context.Context, s Scouter, targetID string, v Verdict) (Verdict, error) {
	ok, err := s.Scout(ctx, targetID)
	if err != nil {
		return Verdict{}, err
	}
	v.State = ScoutNeeded
	if ok {
		v.Kind = ScoutDispatched
		return v, nil
	}
	v.Kind = Skip
	v.Reason = "scout not dispatched: " + v.Reason
	return v, nil
}

func canScout(s Scouter) bool {
	return s != nil && s.CanScout()
}

// Evaluate decides what to do with one target. Store and report errors are
// returned and should end the cycle.
func (m *Machine) Evaluate(ctx context.Context, targetID string, opts Options, s Scouter) (Verdict, error) {
	entry, err := m.Entry(ctx, targetID)
	if err != nil {
		return Verdict{}, err
	}
	now := m.now()

	if entry != nil && entry.Age(now) > m.cfg.StaleAfter && canScout(s) {
		m.log.Debugf("Attacked long ago (%s), trying scout attack on %s", entry.LastAttackTime().Format(time.RFC3339), targetID)
		ok, err := s.Scout(ctx, targetID)
		if err != nil {
			return Verdict{}, err
		}
		if ok {
			return Verdict{Kind: ScoutDispatched, State: ScoutNeeded, Entry: entry, Reason: "stale entry"}, nil
		}
	}

	if opts.Priority && entry != nil && entry.Age(now) > m.cfg.PriorityUrgency {
		m.log.Debugf("Priority target %s last attacked %s, sending again", targetID, entry.LastAttackTime().Format(time.RFC3339))
		v := Verdict{Kind: Proceed, State: ConfirmedSafe, Entry: entry, Reason: "priority"}
		if entry.Safe && entry.Scouted {
			return v, nil
		}
		st, err := m.status(ctx, targetID)
		if err != nil {
			return Verdict{}, err
		}
		if st == reports.StatusSafe {
			v.Status = st
			return v, nil
		}
		// Unverified priority attacks go out blind so the entry stays unsafe.
		v.Blind = true
		v.State = ScoutNeeded
		if entry.Scouted {
			v.State = ConfirmedUnsafe
		}
		v.Reason = "priority, unverified"
		m.log.Warnf("Priority target %s is not verified safe, attacking blind", targetID)
		return v, nil
	}

	if entry == nil {
		return m.evaluateUnseen(ctx, targetID, s)
	}

	if !entry.Safe || opts.Clear {
		return m.evaluateUnsafe(ctx, targetID, entry, s, now)
	}

	v := Verdict{Entry: entry, State: ConfirmedSafe}
	if !entry.Scouted {
		if canScout(s) {
			v.Reason = "safe but never scouted"
			return m.scout(ctx, s, targetID, v)
		}
		status, err := m.status(ctx, targetID)
		if err != nil {
			return Verdict{}, err
		}
		v.Status = status
		switch {
		case status == reports.StatusSafe:
		case m.cfg.AllowBlind:
			m.log.Warnf("%s is unverified and scouting is not possible, going in blind", targetID)
			v.Blind = true
		default:
			return Verdict{Kind: Skip, State: ScoutNeeded, Entry: entry, Status: status, Reason: "unverified and no scouts"}, nil
		}
	}

	last, err := m.lastReport(ctx, targetID)
	if err != nil {
		return Verdict{}, err
	}
	interval := m.policy.Interval(*entry, last)
	if now.Before(entry.LastAttackTime().Add(interval)) {
		m.log.Debugf("%s will be ignored because of previous attack (%d sec delay between attacks)", targetID, int(interval/time.Second))
		v.Kind = Skip
		v.State = CoolingDown
		v.Blind = false
		v.Reason = fmt.Sprintf("cooling down for %s", interval)
		return v, nil
	}
	v.Kind = Proceed
	return v, nil
}

func (m *Machine) evaluateUnseen(ctx context.Context, targetID string, s Scouter) (Verdict, error) {
	status, err := m.status(ctx, targetID)
	if err != nil {
		return Verdict{}, err
	}
	v := Verdict{State: Unseen, Status: status}
	switch status {
	case reports.StatusSafe:
		v.Kind = Proceed
		v.Reason = "report certified safe"
		return v, nil
	case reports.StatusUnsafe:
		if canScout(s) {
			v.Reason = "report noted defenders"
			return m.scout(ctx, s, targetID, v)
		}
		v.Reason = "report noted defenders and no scouts"
		return v, nil
	}
	if canScout(s) {
		v.Reason = "new target"
		return m.scout(ctx, s, targetID, v)
	}
	if m.cfg.AllowBlind {
		m.log.Warnf("%s will be attacked but scouting is not possible (yet), going in blind!", targetID)
		v.Kind = Proceed
		v.Blind = true
		v.Reason = "blind"
		return v, nil
	}
	v.Reason = "unverified and no scouts"
	return v, nil
}

func (m *Machine) evaluateUnsafe(ctx context.Context, targetID string, entry *cache.Entry, s Scouter, now time.Time) (Verdict, error) {
	v := Verdict{Entry: entry, State: ScoutNeeded}
	if !entry.Scouted {
		if canScout(s) {
			v.Reason = "unsafe and never scouted"
			return m.scout(ctx, s, targetID, v)
		}
		m.log.Debugf("%s will be ignored for attack because unsafe, set safe:true to override", targetID)
		v.Reason = "unsafe and no scouts"
		return v, nil
	}

	status, err := m.status(ctx, targetID)
	if err != nil {
		return Verdict{}, err
	}
	if status != reports.StatusUnavailable {
		// A report older than our own last command says nothing about it.
		last, err := m.lastReport(ctx, targetID)
		if err != nil {
			return Verdict{}, err
		}
		if last != nil && last.When.Before(entry.LastAttackTime()) {
			status = reports.StatusUnavailable
		}
	}
	v.Status = status

	switch status {
	case reports.StatusSafe:
		m.log.Infof("%s: scout report noted no enemy units, attacking", targetID)
		v.Kind = Proceed
		v.State = ConfirmedSafe
		v.Reason = "scout report safe"
		return v, nil
	case reports.StatusUnsafe:
		v.State = ConfirmedUnsafe
		if entry.Age(now) > 2*m.cfg.LowWait && canScout(s) {
			m.log.Infof("%s: old scout report found (%s), re-scouting", targetID, entry.LastAttackTime().Format(time.RFC3339))
			v.Reason = "old unsafe report"
			out, err := m.scout(ctx, s, targetID, v)
			out.State = ConfirmedUnsafe
			return out, err
		}
		m.log.Infof("%s: scout report noted enemy units, ignoring", targetID)
		v.Reason = "defenders present"
		return v, nil
	}
	m.log.Infof("Checking %s: scout report not yet available", targetID)
	v.Reason = "scout report pending"
	return v, nil
}

// Inspect derives the state of a target without side effects.
func (m *Machine) Inspect(ctx context.Context, targetID string) (State, *cache.Entry, error) {
	entry, err := m.Entry(ctx, targetID)
	if err != nil || entry == nil {
		return Unseen, nil, err
	}
	if !entry.Safe {
		if !entry.Scouted {
			return ScoutNeeded, entry, nil
		}
		status, err := m.status(ctx, targetID)
		if err != nil {
			return Unseen, entry, err
		}
		switch status {
		case reports.StatusUnsafe:
			return ConfirmedUnsafe, entry, nil
		case reports.StatusSafe:
			return ConfirmedSafe, entry, nil
		}
		return ScoutNeeded, entry, nil
	}
	if !entry.Scouted {
		return ScoutNeeded, entry, nil
	}
	last, err := m.lastReport(ctx, targetID)
	if err != nil {
		return Unseen, entry, err
	}
	if !m.policy.Ready(*entry, last, m.now()) {
		return CoolingDown, entry, nil
	}
	return ConfirmedSafe, entry, nil
}
