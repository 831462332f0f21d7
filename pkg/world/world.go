package world

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Ownership classifies who holds a village.
type Ownership int

const (
	Unowned Ownership = iota
	PlayerOwned
	Stronghold
)

func (o Ownership) String() string {
	switch o {
	case PlayerOwned:
		return "player"
	case Stronghold:
		return "stronghold"
	default:
		return "barbarian"
	}
}

// Coord is a position on the world grid.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c Coord) String() string {
	return fmt.Sprintf("%d|%d", c.X, c.Y)
}

// Target is a single village as seen in the world snapshot.
type Target struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Location Coord  `json:"location"`
	Owner    string `json:"owner"`
	Points   int    `json:"points"`
	Tribe    string `json:"tribe,omitempty"`
	Bonus    string `json:"bonus,omitempty"`
}

// Ownership derives the ownership class of the target. Strongholds win over
// player ownership since they are never farmable.
func (t Target) Ownership() Ownership {
	if strings.Contains(t.Bonus, "stronghold") {
		return Stronghold
	}
	if t.Owner != "" && t.Owner != "0" {
		return PlayerOwned
	}
	return Unowned
}

// Candidate is a target that survived discovery, paired with its distance
// from the home village.
type Candidate struct {
	Target   Target
	Distance float64
}

// Distance returns the grid distance between two coordinates.
func Distance(a, b Coord) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}

// Snapshot is the immutable view of the world used for one cycle.
type Snapshot struct {
	Home    Target
	Targets map[string]Target
}

// NewSnapshot builds a snapshot, dropping the home village from the target set.
func NewSnapshot(home Target, targets []Target) *Snapshot {
	s := &Snapshot{Home: home, Targets: make(map[string]Target, len(targets))}
	for _, t := range targets {
		if t.ID == home.ID {
			if s.Home.Points == 0 {
				s.Home = t
			}
			continue
		}
		s.Targets[t.ID] = t
	}
	return s
}

// DistanceTo returns the distance from home to loc.
func (s *Snapshot) DistanceTo(loc Coord) float64 {
	return Distance(s.Home.Location, loc)
}

// Provider supplies world snapshots for a given home village.
type Provider interface {
	Snapshot(ctx context.Context, homeID string) (*Snapshot, error)
}
