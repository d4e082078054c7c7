package search

import (
	"context"
	"encoding/json"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prioritylist/api/internal/store"
	"prioritylist/api/internal/store/storetest"
)

func seed(t *testing.T, s *store.Store, nodes ...store.Node) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, func(tx *store.Tx) error {
		for _, n := range nodes {
			if err := tx.InsertNode(ctx, n); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestSQLSearchIsOwnerScoped(t *testing.T) {
	s := storetest.New(t)
	url := "https://go.dev/doc"
	seed(t, s,
		store.Node{ID: "a1", OwnerID: "alice", Name: "Learn Go", Note: "generics chapter"},
		store.Node{ID: "a2", OwnerID: "alice", Name: "Reading", URL: &url},
		store.Node{ID: "a3", OwnerID: "alice", Name: "groceries"},
		store.Node{ID: "b1", OwnerID: "bob", Name: "Go to the gym"},
		store.Node{ID: "a4", OwnerID: "alice", Name: "Completed go items", Type: store.NodeTypeCompleted},
	)

	searcher := NewSQL(s.DB(), store.SQLite)
	results, total, err := searcher.Search(context.Background(), Query{OwnerID: "alice", Text: "GO"})
	require.NoError(t, err)

	ids := []string{}
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"a1", "a2"}, ids)
	assert.Equal(t, 2, total)
}

func TestSQLSearchEscapesWildcards(t *testing.T) {
	s := storetest.New(t)
	seed(t, s,
		store.Node{ID: "a1", OwnerID: "alice", Name: "100% done"},
		store.Node{ID: "a2", OwnerID: "alice", Name: "100 things"},
	)

	results, total, err := NewSQL(s.DB(), store.SQLite).Search(context.Background(), Query{OwnerID: "alice", Text: "100%"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a1", results[0].ID)
	assert.Equal(t, 1, total)
}

func TestSQLSearchPaginates(t *testing.T) {
	s := storetest.New(t)
	for _, id := range []string{"n1", "n2", "n3"} {
		seed(t, s, store.Node{ID: id, OwnerID: "alice", Name: "task " + id})
	}

	results, total, err := NewSQL(s.DB(), store.SQLite).Search(context.Background(), Query{OwnerID: "alice", Text: "task", Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 3, total)
}

func TestSQLSearchEmptyQuery(t *testing.T) {
	s := storetest.New(t)
	results, total, err := NewSQL(s.DB(), store.SQLite).Search(context.Background(), Query{OwnerID: "alice", Text: "  "})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, total)
}

func TestLoadAllRecordsSkipsCompletedLists(t *testing.T) {
	s := storetest.New(t)
	seed(t, s,
		store.Node{ID: "a1", OwnerID: "alice", Name: "item"},
		store.Node{ID: "c1", OwnerID: "alice", Name: "Completed", Type: store.NodeTypeCompleted},
	)

	records, err := NewSQL(s.DB(), store.SQLite).LoadAllRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a1", records[0].ID)
}

func TestServiceFallsBackToSQLWithoutMeili(t *testing.T) {
	s := storetest.New(t)
	seed(t, s, store.Node{ID: "a1", OwnerID: "alice", Name: "plan trip"})

	svc := NewService(nil, NewSQL(s.DB(), store.SQLite), nil)
	resp := svc.Search(context.Background(), Query{OwnerID: "alice", Text: "trip"})
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "trip", resp.Query)

	resp = svc.Search(context.Background(), Query{OwnerID: "alice", Text: "nothing"})
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)

	svc.IndexNode(NodeRecord{ID: "a1"})
	svc.DeleteNode("a1")
}

func TestHitToResult(t *testing.T) {
	raw := func(v any) json.RawMessage {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		return b
	}
	hit := meili.Hit{
		"id":         raw("n1"),
		"name":       raw("Read"),
		"note":       raw("a long note"),
		"url":        raw("https://example.com"),
		"_formatted": raw(map[string]string{"note": "a <mark>long</mark> note"}),
	}

	r := hitToResult(hit)
	assert.Equal(t, "n1", r.ID)
	assert.Equal(t, "Read", r.Name)
	assert.Equal(t, "a <mark>long</mark> note", r.Snippet)
	require.NotNil(t, r.URL)
	assert.Equal(t, "https://example.com", *r.URL)

	assert.Equal(t, `ownerId = "alice"`, ownerFilter("alice"))
}
