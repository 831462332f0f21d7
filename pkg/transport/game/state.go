package game

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/tidwall/gjson"

	"github.com/tribalfarm/tfarm/pkg/engine"
)

var gameDataRe = regexp.MustCompile(`(?s)TribalWars\.updateGameData\((\{.*?\})\);`)

// State is the part of the game data embedded in every page that the farm
// loop cares about.
type State struct {
	Wood, Stone, Iron int
	StorageMax        int
	Points            int
	Incomings         int
}

// ResourcesFull reports whether all three resources hit the storage cap.
func (s State) ResourcesFull() bool {
	if s.StorageMax <= 0 {
		return false
	}
	return s.Wood >= s.StorageMax && s.Stone >= s.StorageMax && s.Iron >= s.StorageMax
}

// Conditions converts the state into the cycle gates.
func (s State) Conditions() engine.Conditions {
	return engine.Conditions{ResourcesFull: s.ResourcesFull(), UnderAttack: s.Incomings > 0}
}

// ParseState extracts the game data object from a page body.
func ParseState(body string) (State, error) {
	m := gameDataRe.FindStringSubmatch(body)
	if m == nil || !gjson.Valid(m[1]) {
		return State{}, fmt.Errorf("no game data on page")
	}
	data := gjson.Parse(m[1])
	return State{
		Wood:       int(data.Get("village.wood").Int()),
		Stone:      int(data.Get("village.stone").Int()),
		Iron:       int(data.Get("village.iron").Int()),
		StorageMax: int(data.Get("village.storage_max").Int()),
		Points:     int(data.Get("village.points").Int()),
		Incomings:  int(data.Get("player.incomings").Int()),
	}, nil
}

// State reads the overview screen of the home village.
func (h *Home) State(ctx context.Context) (State, error) {
	q := gameURL(h.ID, map[string]string{"screen": "overview"})
	res, _, err := h.c.do(ctx, http.MethodGet, h.c.url("game.php", q), nil, modePage)
	if err != nil {
		return State{}, fmt.Errorf("reading village state: %w", err)
	}
	return ParseState(res.BodyString)
}
