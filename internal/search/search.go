package search

import "context"

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Snippet string  `json:"snippet"`
	URL     *string `json:"url,omitempty"`
}

// Query describes a search request. OwnerID is mandatory; results never
// cross owners.
type Query struct {
	OwnerID string
	Text    string
	Limit   int
	Offset  int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// NodeRecord is the data we index for a node. Completed-list containers are
// never indexed.
type NodeRecord struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
	Name    string `json:"name"`
	Note    string `json:"note"`
	URL     string `json:"url"`
}

const defaultLimit = 20

func normalize(q Query) Query {
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}
