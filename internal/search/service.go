package search

import (
	"context"

	"prioritylist/api/internal/logger"
)

// Service tries Meilisearch first and falls back to SQL.
type Service struct {
	meili *Meili
	sql   *SQL
	log   *logger.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, sql *SQL, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{meili: meili, sql: sql, log: log}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.Warn("meilisearch error, falling back to sql", "error", err)
	}

	results, total, err := s.sql.Search(ctx, q)
	if err != nil {
		s.log.Error("sql search failed", "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexNode pushes a node to Meilisearch without waiting for it.
func (s *Service) IndexNode(record NodeRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexNodes([]NodeRecord{record}); err != nil {
			s.log.Warn("index node failed", "node_id", record.ID, "error", err)
		}
	}()
}

// DeleteNode removes a node from the index without waiting for it.
func (s *Service) DeleteNode(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteNode(id); err != nil {
			s.log.Warn("delete node from index failed", "node_id", id, "error", err)
		}
	}()
}

// ReindexAll reads every node from the database and pushes it to Meilisearch.
func (s *Service) ReindexAll(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.sql == nil {
		return
	}
	records, err := s.sql.LoadAllRecords(ctx)
	if err != nil {
		s.log.Error("reindex load failed", "error", err)
		return
	}
	if err := s.meili.IndexNodes(records); err != nil {
		s.log.Error("reindex nodes failed", "count", len(records), "error", err)
		return
	}
	s.log.Info("search index rebuilt", "count", len(records))
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
