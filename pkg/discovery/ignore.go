package discovery

import "sort"

// IgnoreSet maps a target id to the reason it was last filtered out.
// Membership is informational; a target that passes every filter again is
// removed on the next pass.
type IgnoreSet map[string]Reason

// IDs returns the ignored ids in sorted order.
func (s IgnoreSet) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns how many targets are ignored for each reason.
func (s IgnoreSet) Count() map[Reason]int {
	out := make(map[Reason]int)
	for _, r := range s {
		out[r]++
	}
	return out
}
