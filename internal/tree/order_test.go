package tree

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReorderStaleSubsetKeepsUnseenItemsInPlace(t *testing.T) {
	got, err := Reorder([]string{"A", "B", "C", "D"}, []string{"C", "A"})
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A", "B", "D"}, got)
}

func TestReorderFullPermutation(t *testing.T) {
	got, err := Reorder([]string{"A", "B", "C"}, []string{"C", "B", "A"})
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B", "A"}, got)
}

func TestReorderIgnoresUnknownAndDuplicateIDs(t *testing.T) {
	got, err := Reorder([]string{"A", "B"}, []string{"X", "B", "A"})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, got)

	got, err = Reorder([]string{"A", "B", "C"}, []string{"C", "A", "C"})
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A", "B"}, got)
}

func TestReorderEmptySubmissionIsNoop(t *testing.T) {
	got, err := Reorder([]string{"A", "B", "C"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, got)

	got, err = Reorder([]string{}, []string{"A"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReorderSettlesWhenFallbackRanksShift(t *testing.T) {
	submitted := []string{"E", "D"}
	first, err := Reorder([]string{"A", "B", "C", "D", "E"}, submitted)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "E", "D", "B", "C"}, first)

	second, err := Reorder(first, submitted)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestReorderProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		authoritative := randomIDs(rng, rng.Intn(12), "n")
		submitted := randomSubmission(rng, authoritative)

		got, err := Reorder(authoritative, submitted)
		require.NoError(t, err)

		assert.Equal(t, sorted(authoritative), sorted(got), "case %d: not a permutation of %v (submitted %v)", i, authoritative, submitted)

		again, err := Reorder(got, submitted)
		require.NoError(t, err)
		assert.Equal(t, got, again, "case %d: repeat submission changed order", i)

		assertRelativeOrder(t, got, submittedKnown(submitted, authoritative))
		assertRelativeOrder(t, got, unsubmitted(authoritative, submitted))
	}
}

func randomIDs(rng *rand.Rand, n int, prefix string) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	rng.Shuffle(len(ids), func(a, b int) { ids[a], ids[b] = ids[b], ids[a] })
	return ids
}

// randomSubmission picks a shuffled subset of ids plus a few ids the server
// has never seen.
func randomSubmission(rng *rand.Rand, ids []string) []string {
	var out []string
	for _, id := range ids {
		if rng.Intn(2) == 0 {
			out = append(out, id)
		}
	}
	out = append(out, randomIDs(rng, rng.Intn(3), "ghost")...)
	rng.Shuffle(len(out), func(a, b int) { out[a], out[b] = out[b], out[a] })
	return out
}

func submittedKnown(submitted, authoritative []string) []string {
	var out []string
	for _, id := range submitted {
		if contains(authoritative, id) && !contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func unsubmitted(authoritative, submitted []string) []string {
	var out []string
	for _, id := range authoritative {
		if !contains(submitted, id) {
			out = append(out, id)
		}
	}
	return out
}

func assertRelativeOrder(t *testing.T, got, want []string) {
	t.Helper()
	pos := map[string]int{}
	for i, id := range got {
		pos[id] = i
	}
	for i := 1; i < len(want); i++ {
		assert.Less(t, pos[want[i-1]], pos[want[i]], "%s should come before %s in %v", want[i-1], want[i], got)
	}
}

func sorted(ids []string) []string {
	out := append([]string{}, ids...)
	sort.Strings(out)
	return out
}

func TestInsertAt(t *testing.T) {
	base := []string{"A", "B", "C"}
	assert.Equal(t, []string{"A", "B", "N", "C"}, insertAt(base, "N", 2))
	assert.Equal(t, []string{"N", "A", "B", "C"}, insertAt(base, "N", 0))
	assert.Equal(t, []string{"A", "B", "C", "N"}, insertAt(base, "N", 9))
	assert.Equal(t, []string{"A", "B", "C"}, base, "input must not be mutated")
}

func TestWithout(t *testing.T) {
	assert.Equal(t, []string{"Y"}, without([]string{"X", "Y"}, "X"))
	assert.Equal(t, []string{"X", "Y"}, without([]string{"X", "Y"}, "Z"))
	assert.Equal(t, []string{"Y", "X"}, prepend([]string{"X"}, "Y"))
}

func TestPaginate(t *testing.T) {
	ids := []string{"A", "B", "C", "D", "E"}

	page, next := paginate(ids, 2, 0)
	assert.Equal(t, []string{"A", "B"}, page)
	require.NotNil(t, next)
	assert.Equal(t, 2, *next)

	page, next = paginate(ids, 2, 2)
	assert.Equal(t, []string{"C", "D"}, page)
	require.NotNil(t, next)
	assert.Equal(t, 4, *next)

	page, next = paginate(ids, 2, 4)
	assert.Equal(t, []string{"E"}, page)
	assert.Nil(t, next)

	page, next = paginate(ids, 5, 0)
	assert.Len(t, page, 5)
	assert.Nil(t, next)

	page, next = paginate(ids, 2, 10)
	assert.Empty(t, page)
	assert.Nil(t, next)
}

func TestPaginateHugeLimitDoesNotOverflow(t *testing.T) {
	ids := []string{"A", "B", "C"}

	page, next := paginate(ids, math.MaxInt, 1)
	assert.Equal(t, []string{"B", "C"}, page)
	assert.Nil(t, next)

	page, next = paginate(ids, math.MaxInt, 0)
	assert.Equal(t, ids, page)
	assert.Nil(t, next)
}
