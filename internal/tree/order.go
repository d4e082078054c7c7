package tree

import (
	"fmt"
	"sort"
)

// insertAt returns ids with id spliced in at index. Indexes past the end
// append.
func insertAt(ids []string, id string, index int) []string {
	if index < 0 {
		index = 0
	}
	if index > len(ids) {
		index = len(ids)
	}
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids[:index]...)
	out = append(out, id)
	return append(out, ids[index:]...)
}

func prepend(ids []string, id string) []string {
	return insertAt(ids, id, 0)
}

// without drops every occurrence of id.
func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

func sameOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Reorder merges a client-submitted order into the authoritative one.
//
// Each id is keyed by its index in submitted when present there, otherwise by
// its index in the current order, and the current order is stable-sorted by
// that key. Ids only the client knows about are ignored, so the result is
// always a permutation of authoritative. The pass is repeated until the order
// no longer changes, which makes a repeated submission a no-op. The number of
// passes is capped at len(authoritative)+1; a run that reaches the cap returns
// the order produced by the last pass.
func Reorder(authoritative, submitted []string) ([]string, error) {
	submittedRank := make(map[string]int, len(submitted))
	for i, id := range submitted {
		if _, seen := submittedRank[id]; !seen {
			submittedRank[id] = i
		}
	}

	current := append([]string(nil), authoritative...)
	for pass := 0; pass <= len(current); pass++ {
		next, err := reorderPass(current, submittedRank)
		if err != nil {
			return nil, err
		}
		if sameOrder(next, current) {
			return next, nil
		}
		current = next
	}
	return current, nil
}

func reorderPass(order []string, submittedRank map[string]int) ([]string, error) {
	fallbackRank := make(map[string]int, len(order))
	for i, id := range order {
		if _, seen := fallbackRank[id]; !seen {
			fallbackRank[id] = i
		}
	}

	keys := make([]int, len(order))
	for i, id := range order {
		if rank, ok := submittedRank[id]; ok {
			keys[i] = rank
			continue
		}
		rank, ok := fallbackRank[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no rank", ErrInvalidReference, id)
		}
		keys[i] = rank
	}

	idx := make([]int, len(order))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return keys[idx[a]] < keys[idx[b]]
	})

	out := make([]string, len(order))
	for i, j := range idx {
		out[i] = order[j]
	}
	return out, nil
}

// paginate slices ids to [cursor, cursor+limit). next is nil on the last page.
func paginate(ids []string, limit, cursor int) (page []string, next *int) {
	if cursor >= len(ids) {
		return []string{}, nil
	}
	if limit >= len(ids)-cursor {
		return ids[cursor:], nil
	}
	end := cursor + limit
	return ids[cursor:end], &end
}
