package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"prioritylist/api/internal/store"
)

// SQL implements Searcher directly against the nodes table. Postgres uses
// full-text search; SQLite falls back to LIKE matching.
type SQL struct {
	db      *sql.DB
	dialect store.Dialect
}

func NewSQL(db *sql.DB, dialect store.Dialect) *SQL {
	return &SQL{db: db, dialect: dialect}
}

// Healthy always returns true; if the database is down the whole app is down.
func (s *SQL) Healthy() bool {
	return true
}

const pgDocument = `to_tsvector('simple', name || ' ' || note || ' ' || coalesce(url, ''))`

func (s *SQL) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || q.OwnerID == "" {
		return nil, 0, nil
	}
	q = normalize(q)

	var countSQL, dataSQL string
	var args []any
	if s.dialect == store.Postgres {
		where := `owner_id = ? AND node_type = 'default' AND ` + pgDocument + ` @@ plainto_tsquery('simple', ?)`
		args = []any{q.OwnerID, q.Text}
		countSQL = `SELECT COUNT(*) FROM nodes WHERE ` + where
		dataSQL = fmt.Sprintf(`SELECT id, name, url,
				ts_headline('simple', note, plainto_tsquery('simple', ?), 'MaxFragments=1,MaxWords=30')
			FROM nodes
			WHERE %s
			ORDER BY ts_rank(%s, plainto_tsquery('simple', ?)) DESC, created_at DESC
			LIMIT %d OFFSET %d`, where, pgDocument, q.Limit, q.Offset)
	} else {
		pattern := "%" + escapeLike(strings.ToLower(q.Text)) + "%"
		where := `owner_id = ? AND node_type = 'default' AND (
			LOWER(name) LIKE ? ESCAPE '\' OR LOWER(note) LIKE ? ESCAPE '\' OR LOWER(COALESCE(url, '')) LIKE ? ESCAPE '\')`
		args = []any{q.OwnerID, pattern, pattern, pattern}
		countSQL = `SELECT COUNT(*) FROM nodes WHERE ` + where
		dataSQL = fmt.Sprintf(`SELECT id, name, url, note
			FROM nodes
			WHERE %s
			ORDER BY created_at DESC, id
			LIMIT %d OFFSET %d`, where, q.Limit, q.Offset)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, s.dialect.Rebind(countSQL), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("search count: %w", err)
	}

	dataArgs := args
	if s.dialect == store.Postgres {
		dataArgs = []any{q.Text, q.OwnerID, q.Text, q.Text}
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(dataSQL), dataArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r   Result
			url sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Name, &url, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("search scan: %w", err)
		}
		if url.Valid {
			r.URL = &url.String
		}
		r.Snippet = clip(r.Snippet, 160)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every indexable node for a full reindex.
func (s *SQL) LoadAllRecords(ctx context.Context) ([]NodeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, note, COALESCE(url, '')
		FROM nodes
		WHERE node_type = 'default'
	`)
	if err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}
	defer rows.Close()

	records := make([]NodeRecord, 0)
	for rows.Next() {
		var r NodeRecord
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Name, &r.Note, &r.URL); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func clip(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "…"
}
