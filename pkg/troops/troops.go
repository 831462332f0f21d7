package troops

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInsufficient is returned when a composition cannot be fielded from the
// units currently at home.
var ErrInsufficient = errors.New("insufficient troops")

// Composition maps a unit type to a count.
type Composition map[string]int

// Key returns a stable identity for the composition, used to remember which
// templates were already proven infeasible in a cycle.
func (c Composition) Key() string {
	units := make([]string, 0, len(c))
	for u := range c {
		units = append(units, u)
	}
	sort.Strings(units)
	parts := make([]string, 0, len(units))
	for _, u := range units {
		parts = append(parts, fmt.Sprintf("%s=%d", u, c[u]))
	}
	return strings.Join(parts, ",")
}

func (c Composition) String() string {
	return "{" + c.Key() + "}"
}

// Clone returns a copy of the composition.
func (c Composition) Clone() Composition {
	out := make(Composition, len(c))
	for u, n := range c {
		out[u] = n
	}
	return out
}

// Empty reports whether the composition holds no units at all.
func (c Composition) Empty() bool {
	for _, n := range c {
		if n > 0 {
			return false
		}
	}
	return true
}

// Inventory is the live view of the troops of one home village.
type Inventory interface {
	// Counts returns the units currently at home.
	Counts() Composition
	// Available returns the number of units of one type at home.
	Available(unit string) int
	// Total returns the number of units of one type owned by the village,
	// including those away on commands.
	Total(unit string) int
	// Missing describes the first unit type short for the composition, or
	// returns "" when everything is at home.
	Missing(c Composition) string
	// Deduct removes a dispatched composition from the home counts.
	Deduct(c Composition)
	// Refresh re-reads the counts from the game.
	Refresh(ctx context.Context) error
}

// Has reports whether inv can field c right now.
func Has(inv Inventory, c Composition) bool {
	return inv.Missing(c) == ""
}
