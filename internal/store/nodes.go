package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const nodeColumns = `id, owner_id, name, note, url, url_preview_image_url, url_preview_description,
	children_ids, completed_node_id, node_type, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (Node, error) {
	var (
		node        Node
		url         sql.NullString
		previewImg  sql.NullString
		previewDesc sql.NullString
		children    string
		completed   sql.NullString
		nodeType    string
	)
	if err := row.Scan(&node.ID, &node.OwnerID, &node.Name, &node.Note, &url, &previewImg, &previewDesc,
		&children, &completed, &nodeType, &node.CreatedAt); err != nil {
		return Node{}, err
	}
	ids, err := decodeChildren(children)
	if err != nil {
		return Node{}, fmt.Errorf("node %s: %w", node.ID, err)
	}
	node.ChildrenIDs = ids
	node.URL = nullableString(url)
	node.URLPreviewImageURL = nullableString(previewImg)
	node.URLPreviewDescription = nullableString(previewDesc)
	node.CompletedNodeID = nullableString(completed)
	node.Type = NodeType(nodeType)
	return node, nil
}

func decodeChildren(raw string) ([]string, error) {
	ids := []string{}
	if raw == "" {
		return ids, nil
	}
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("decode children_ids: %w", err)
	}
	return ids, nil
}

func encodeChildren(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode children_ids: %w", err)
	}
	return string(raw), nil
}

func nullableString(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

// GetNode loads one node owned by ownerID. With forUpdate the row stays locked
// until the transaction ends.
func (t *Tx) GetNode(ctx context.Context, ownerID, id string, forUpdate bool) (Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE id = ? AND owner_id = ?`
	if forUpdate {
		query += t.dialect.lockClause()
	}
	node, err := scanNode(t.queryRow(ctx, query, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return Node{}, ErrNotFound
	}
	if err != nil {
		return Node{}, fmt.Errorf("get node: %w", err)
	}
	return node, nil
}

// GetNodes resolves the given ids, silently skipping ids that do not exist or
// belong to another owner. Result order is unspecified.
func (t *Tx) GetNodes(ctx context.Context, ownerID string, ids []string) ([]Node, error) {
	if len(ids) == 0 {
		return []Node{}, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, ownerID)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := t.query(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE owner_id = ? AND id IN (`+placeholders(len(ids))+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("get nodes: %w", err)
	}
	defer rows.Close()

	nodes := make([]Node, 0, len(ids))
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

func (t *Tx) InsertNode(ctx context.Context, node Node) error {
	children, err := encodeChildren(node.ChildrenIDs)
	if err != nil {
		return err
	}
	if node.Type == "" {
		node.Type = NodeTypeDefault
	}
	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now().UTC()
	}
	_, err = t.exec(ctx, `
		INSERT INTO nodes (id, owner_id, name, note, url, url_preview_image_url, url_preview_description,
			children_ids, completed_node_id, node_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, node.ID, node.OwnerID, node.Name, node.Note, node.URL, node.URLPreviewImageURL, node.URLPreviewDescription,
		children, node.CompletedNodeID, string(node.Type), node.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert node: %w", err)
	}
	return nil
}

// UpdateNodeContent rewrites the user-editable fields. It reports whether a
// row owned by node.OwnerID matched.
func (t *Tx) UpdateNodeContent(ctx context.Context, node Node) (bool, error) {
	res, err := t.exec(ctx, `
		UPDATE nodes
		SET name = ?, note = ?, url = ?, url_preview_image_url = ?, url_preview_description = ?
		WHERE id = ? AND owner_id = ?
	`, node.Name, node.Note, node.URL, node.URLPreviewImageURL, node.URLPreviewDescription, node.ID, node.OwnerID)
	if err != nil {
		return false, fmt.Errorf("update node: %w", err)
	}
	return affected(res)
}

func (t *Tx) SetChildren(ctx context.Context, ownerID, id string, children []string) error {
	raw, err := encodeChildren(children)
	if err != nil {
		return err
	}
	res, err := t.exec(ctx, `UPDATE nodes SET children_ids = ? WHERE id = ? AND owner_id = ?`, raw, id, ownerID)
	if err != nil {
		return fmt.Errorf("set children: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// SetCompletedNode links a bucket to its parent. It only succeeds while the
// parent has no bucket yet.
func (t *Tx) SetCompletedNode(ctx context.Context, ownerID, id, completedID string) (bool, error) {
	res, err := t.exec(ctx, `
		UPDATE nodes SET completed_node_id = ?
		WHERE id = ? AND owner_id = ? AND completed_node_id IS NULL
	`, completedID, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("set completed node: %w", err)
	}
	return affected(res)
}

func (t *Tx) DeleteNode(ctx context.Context, ownerID, id string) (bool, error) {
	res, err := t.exec(ctx, `DELETE FROM nodes WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("delete node: %w", err)
	}
	return affected(res)
}

func (t *Tx) GetRootNodeID(ctx context.Context, ownerID string) (string, error) {
	var nodeID string
	err := t.queryRow(ctx, `SELECT node_id FROM root_nodes WHERE owner_id = ?`, ownerID).Scan(&nodeID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get root node: %w", err)
	}
	return nodeID, nil
}

// InsertRootNode records nodeID as the owner's root. It reports false when
// another transaction already claimed the mapping.
func (t *Tx) InsertRootNode(ctx context.Context, ownerID, nodeID string) (bool, error) {
	res, err := t.exec(ctx, `INSERT INTO root_nodes (owner_id, node_id) VALUES (?, ?) ON CONFLICT DO NOTHING`, ownerID, nodeID)
	if err != nil {
		return false, fmt.Errorf("insert root node: %w", err)
	}
	return affected(res)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
