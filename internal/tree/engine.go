// Package tree maintains each node's ordered list of children.
//
// Every mutation runs in one store transaction: the parent row is read with a
// row lock, its children slice is recomputed in memory and the whole slice is
// written back.
package tree

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"prioritylist/api/internal/logger"
	"prioritylist/api/internal/store"
)

type (
	Node     = store.Node
	NodeType = store.NodeType
)

const (
	DefaultListLimit  = 100
	MaxListLimit      = 1000
	CompletedNodeName = "Completed"
	DefaultRootName   = "My List"

	rootAttempts = 3
)

// Caller identifies who an operation runs on behalf of.
type Caller struct {
	OwnerID string
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(*store.Tx) error) error
}

type Options struct {
	DefaultListLimit int
	NewID            func() string
}

type Engine struct {
	db    txRunner
	log   *logger.Logger
	limit int
	newID func() string
}

func New(db txRunner, log *logger.Logger, opts Options) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	if opts.DefaultListLimit <= 0 {
		opts.DefaultListLimit = DefaultListLimit
	}
	if opts.DefaultListLimit > MaxListLimit {
		opts.DefaultListLimit = MaxListLimit
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Engine{db: db, log: log, limit: opts.DefaultListLimit, newID: opts.NewID}
}

type CreateInput struct {
	Name                  string
	Note                  string
	ParentID              string
	Index                 *int
	URL                   *string
	URLPreviewImageURL    *string
	URLPreviewDescription *string
}

type UpdateInput struct {
	ID                    string
	Name                  string
	Note                  string
	URL                   *string
	URLPreviewImageURL    *string
	URLPreviewDescription *string
}

// Page is one slice of a parent's children.
type Page struct {
	Children   []Node
	NextCursor *int
}

func checkCaller(caller Caller) error {
	if strings.TrimSpace(caller.OwnerID) == "" {
		return ErrNoCaller
	}
	return nil
}

func requireID(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalid(field, "is required")
	}
	return nil
}

func requireName(name string) error {
	if strings.TrimSpace(name) == "" {
		return invalid("name", "is required")
	}
	return nil
}

// linkFields drops preview data that has no link to describe.
func linkFields(url, image, description *string) (*string, *string, *string) {
	if url == nil || strings.TrimSpace(*url) == "" {
		return nil, nil, nil
	}
	return url, image, description
}

func (e *Engine) loadParent(ctx context.Context, tx *store.Tx, caller Caller, parentID string) (Node, error) {
	parent, err := tx.GetNode(ctx, caller.OwnerID, parentID, true)
	if errors.Is(err, store.ErrNotFound) {
		return Node{}, fmt.Errorf("parent %s: %w", parentID, ErrNotFound)
	}
	return parent, err
}

// Create stores a new node and, when ParentID is set, splices it into the
// parent's children at Index or at the front.
func (e *Engine) Create(ctx context.Context, caller Caller, in CreateInput) (Node, error) {
	if err := checkCaller(caller); err != nil {
		return Node{}, err
	}
	if err := requireName(in.Name); err != nil {
		return Node{}, err
	}
	if in.Index != nil && *in.Index < 0 {
		return Node{}, invalid("idx", "must not be negative")
	}

	url, image, description := linkFields(in.URL, in.URLPreviewImageURL, in.URLPreviewDescription)
	node := Node{
		ID:                    e.newID(),
		OwnerID:               caller.OwnerID,
		Name:                  in.Name,
		Note:                  in.Note,
		URL:                   url,
		URLPreviewImageURL:    image,
		URLPreviewDescription: description,
		ChildrenIDs:           []string{},
		Type:                  store.NodeTypeDefault,
	}

	err := e.db.WithTx(ctx, func(tx *store.Tx) error {
		var parent Node
		if in.ParentID != "" {
			var err error
			if parent, err = e.loadParent(ctx, tx, caller, in.ParentID); err != nil {
				return err
			}
			if parent.IsBucket() {
				return invalid("parentId", "completed lists only receive completed items")
			}
		}

		if err := tx.InsertNode(ctx, node); err != nil {
			return err
		}
		if in.ParentID == "" {
			return nil
		}

		index := 0
		if in.Index != nil {
			index = *in.Index
		}
		return tx.SetChildren(ctx, caller.OwnerID, parent.ID, insertAt(parent.ChildrenIDs, node.ID, index))
	})
	if err != nil {
		return Node{}, err
	}
	return node, nil
}

// Update rewrites a node's editable fields.
func (e *Engine) Update(ctx context.Context, caller Caller, in UpdateInput) (Node, error) {
	if err := checkCaller(caller); err != nil {
		return Node{}, err
	}
	if err := requireID("id", in.ID); err != nil {
		return Node{}, err
	}
	if err := requireName(in.Name); err != nil {
		return Node{}, err
	}

	url, image, description := linkFields(in.URL, in.URLPreviewImageURL, in.URLPreviewDescription)
	var updated Node
	err := e.db.WithTx(ctx, func(tx *store.Tx) error {
		ok, err := tx.UpdateNodeContent(ctx, Node{
			ID:                    in.ID,
			OwnerID:               caller.OwnerID,
			Name:                  in.Name,
			Note:                  in.Note,
			URL:                   url,
			URLPreviewImageURL:    image,
			URLPreviewDescription: description,
		})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("node %s: %w", in.ID, ErrNotFound)
		}
		updated, err = tx.GetNode(ctx, caller.OwnerID, in.ID, false)
		return err
	})
	if err != nil {
		return Node{}, err
	}
	return updated, nil
}

// Get returns the node or nil when the caller has no such node.
func (e *Engine) Get(ctx context.Context, caller Caller, id string) (*Node, error) {
	if err := checkCaller(caller); err != nil {
		return nil, err
	}
	if err := requireID("id", id); err != nil {
		return nil, err
	}

	var found *Node
	err := e.db.WithTx(ctx, func(tx *store.Tx) error {
		node, err := tx.GetNode(ctx, caller.OwnerID, id, false)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = &node
		return nil
	})
	return found, err
}

// Delete removes the child row and drops it from the parent's children.
// Descendants of the deleted node are left in place.
func (e *Engine) Delete(ctx context.Context, caller Caller, parentID, id string) error {
	if err := checkPair(caller, parentID, id); err != nil {
		return err
	}

	return e.db.WithTx(ctx, func(tx *store.Tx) error {
		parent, err := e.loadParent(ctx, tx, caller, parentID)
		if err != nil {
			return err
		}
		if parent.CompletedNodeID != nil && *parent.CompletedNodeID == id {
			return invalid("id", "the completed list cannot be deleted")
		}
		child, err := tx.GetNode(ctx, caller.OwnerID, id, false)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err == nil && child.IsBucket() {
			return invalid("id", "a completed list is removed only with its parent")
		}

		deleted, err := tx.DeleteNode(ctx, caller.OwnerID, id)
		if err != nil {
			return err
		}
		if !deleted {
			e.log.Debug("delete of missing node", "owner_id", caller.OwnerID, "parent_id", parentID, "node_id", id)
		}

		children := without(parent.ChildrenIDs, id)
		if sameOrder(children, parent.ChildrenIDs) {
			return nil
		}
		return tx.SetChildren(ctx, caller.OwnerID, parentID, children)
	})
}

// Complete moves id from the parent's children to the front of the parent's
// completed list, creating that list on first use.
func (e *Engine) Complete(ctx context.Context, caller Caller, parentID, id string) error {
	if err := checkPair(caller, parentID, id); err != nil {
		return err
	}

	return e.db.WithTx(ctx, func(tx *store.Tx) error {
		parent, err := e.loadParent(ctx, tx, caller, parentID)
		if err != nil {
			return err
		}
		if parent.IsBucket() {
			return invalid("parentId", "items in a completed list are already complete")
		}
		if parent.CompletedNodeID != nil && *parent.CompletedNodeID == id {
			return invalid("id", "the completed list cannot be completed")
		}
		child, err := tx.GetNode(ctx, caller.OwnerID, id, false)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("node %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if child.IsBucket() {
			return invalid("id", "a completed list cannot be completed")
		}

		bucketID, err := e.ensureBucket(ctx, tx, caller, parent)
		if err != nil {
			return err
		}
		bucket, err := tx.GetNode(ctx, caller.OwnerID, bucketID, true)
		if errors.Is(err, store.ErrNotFound) || (err == nil && !bucket.IsBucket()) {
			e.log.Error("completed list does not resolve", "owner_id", caller.OwnerID, "parent_id", parentID, "bucket_id", bucketID)
			return fmt.Errorf("%w: completed list %s of %s", ErrInvalidReference, bucketID, parentID)
		}
		if err != nil {
			return err
		}

		if err := tx.SetChildren(ctx, caller.OwnerID, parentID, without(parent.ChildrenIDs, id)); err != nil {
			return err
		}
		return tx.SetChildren(ctx, caller.OwnerID, bucketID, prepend(without(bucket.ChildrenIDs, id), id))
	})
}

func (e *Engine) ensureBucket(ctx context.Context, tx *store.Tx, caller Caller, parent Node) (string, error) {
	if parent.CompletedNodeID != nil {
		return *parent.CompletedNodeID, nil
	}

	bucket := Node{
		ID:          e.newID(),
		OwnerID:     caller.OwnerID,
		Name:        CompletedNodeName,
		ChildrenIDs: []string{},
		Type:        store.NodeTypeCompleted,
	}
	if err := tx.InsertNode(ctx, bucket); err != nil {
		return "", err
	}
	linked, err := tx.SetCompletedNode(ctx, caller.OwnerID, parent.ID, bucket.ID)
	if err != nil {
		return "", err
	}
	if !linked {
		e.log.Error("completed list already linked", "owner_id", caller.OwnerID, "parent_id", parent.ID)
		return "", fmt.Errorf("%w: completed list of %s changed concurrently", ErrInvalidReference, parent.ID)
	}
	e.log.Debug("completed list created", "owner_id", caller.OwnerID, "parent_id", parent.ID, "bucket_id", bucket.ID)
	return bucket.ID, nil
}

// ReorderChildren merges submitted into the parent's current order and
// returns the stored result.
func (e *Engine) ReorderChildren(ctx context.Context, caller Caller, parentID string, submitted []string) ([]string, error) {
	if err := checkCaller(caller); err != nil {
		return nil, err
	}
	if err := requireID("parentId", parentID); err != nil {
		return nil, err
	}

	var ordered []string
	err := e.db.WithTx(ctx, func(tx *store.Tx) error {
		parent, err := e.loadParent(ctx, tx, caller, parentID)
		if err != nil {
			return err
		}
		if parent.IsBucket() {
			return invalid("parentId", "completed lists keep most recent first")
		}

		ordered, err = Reorder(parent.ChildrenIDs, submitted)
		if err != nil {
			e.log.Error("reorder found inconsistent children", "owner_id", caller.OwnerID, "parent_id", parentID, "error", err)
			return err
		}
		if sameOrder(ordered, parent.ChildrenIDs) {
			return nil
		}
		return tx.SetChildren(ctx, caller.OwnerID, parentID, ordered)
	})
	if err != nil {
		return nil, err
	}
	return ordered, nil
}

// ListChildren returns one page of the parent's children in stored order.
// A child id that no longer resolves fails the whole page.
func (e *Engine) ListChildren(ctx context.Context, caller Caller, parentID string, limit, cursor *int) (Page, error) {
	if err := checkCaller(caller); err != nil {
		return Page{}, err
	}
	if err := requireID("parentId", parentID); err != nil {
		return Page{}, err
	}
	pageLimit, offset := e.limit, 0
	if limit != nil {
		if *limit < 1 {
			return Page{}, invalid("limit", "must be at least 1")
		}
		if *limit > MaxListLimit {
			return Page{}, invalid("limit", fmt.Sprintf("must be at most %d", MaxListLimit))
		}
		pageLimit = *limit
	}
	if cursor != nil {
		if *cursor < 0 {
			return Page{}, invalid("cursor", "must not be negative")
		}
		offset = *cursor
	}

	var page Page
	err := e.db.WithTx(ctx, func(tx *store.Tx) error {
		parent, err := tx.GetNode(ctx, caller.OwnerID, parentID, false)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("parent %s: %w", parentID, ErrNotFound)
		}
		if err != nil {
			return err
		}

		ids, next := paginate(parent.ChildrenIDs, pageLimit, offset)
		children, err := e.resolve(ctx, tx, caller, parentID, ids)
		if err != nil {
			return err
		}
		page = Page{Children: children, NextCursor: next}
		return nil
	})
	return page, err
}

// resolve loads ids and returns them in the same order.
func (e *Engine) resolve(ctx context.Context, tx *store.Tx, caller Caller, parentID string, ids []string) ([]Node, error) {
	if len(ids) == 0 {
		return []Node{}, nil
	}
	rows, err := tx.GetNodes(ctx, caller.OwnerID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Node, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	out := make([]Node, 0, len(ids))
	for _, id := range ids {
		node, ok := byID[id]
		if !ok {
			e.log.Error("dangling child reference", "owner_id", caller.OwnerID, "parent_id", parentID, "child_id", id)
			return nil, fmt.Errorf("%w: %s in %s", ErrInvalidReference, id, parentID)
		}
		out = append(out, node)
	}
	return out, nil
}

var errRootTaken = errors.New("root node claimed concurrently")

// GetOrCreateRoot returns the caller's root node, creating it on first use.
// When two first requests race, the loser retries and returns the winner's
// root.
func (e *Engine) GetOrCreateRoot(ctx context.Context, caller Caller, name string) (Node, error) {
	if err := checkCaller(caller); err != nil {
		return Node{}, err
	}
	if strings.TrimSpace(name) == "" {
		name = DefaultRootName
	}

	var lastErr error
	for attempt := 0; attempt < rootAttempts; attempt++ {
		var root Node
		err := e.db.WithTx(ctx, func(tx *store.Tx) error {
			existing, err := e.rootInTx(ctx, tx, caller)
			if err != nil {
				return err
			}
			if existing != nil {
				root = *existing
				return nil
			}

			root = Node{
				ID:          e.newID(),
				OwnerID:     caller.OwnerID,
				Name:        name,
				ChildrenIDs: []string{},
				Type:        store.NodeTypeDefault,
			}
			if err := tx.InsertNode(ctx, root); err != nil {
				return err
			}
			won, err := tx.InsertRootNode(ctx, caller.OwnerID, root.ID)
			if err != nil {
				return err
			}
			if !won {
				return errRootTaken
			}
			e.log.Info("root node created", "owner_id", caller.OwnerID, "node_id", root.ID)
			return nil
		})
		if err == nil {
			return root, nil
		}
		if !errors.Is(err, errRootTaken) {
			return Node{}, err
		}
		lastErr = err
		e.log.Debug("root node race lost, retrying", "owner_id", caller.OwnerID, "attempt", attempt+1)
	}
	return Node{}, fmt.Errorf("get or create root: %w", lastErr)
}

// GetRoot returns the caller's root node, or nil before it has been created.
func (e *Engine) GetRoot(ctx context.Context, caller Caller) (*Node, error) {
	if err := checkCaller(caller); err != nil {
		return nil, err
	}
	var root *Node
	err := e.db.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		root, err = e.rootInTx(ctx, tx, caller)
		return err
	})
	return root, err
}

func (e *Engine) rootInTx(ctx context.Context, tx *store.Tx, caller Caller) (*Node, error) {
	rootID, err := tx.GetRootNodeID(ctx, caller.OwnerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	node, err := tx.GetNode(ctx, caller.OwnerID, rootID, false)
	if errors.Is(err, store.ErrNotFound) {
		e.log.Error("root mapping points at missing node", "owner_id", caller.OwnerID, "node_id", rootID)
		return nil, fmt.Errorf("%w: root %s", ErrInvalidReference, rootID)
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func checkPair(caller Caller, parentID, id string) error {
	if err := checkCaller(caller); err != nil {
		return err
	}
	if err := requireID("parentId", parentID); err != nil {
		return err
	}
	if err := requireID("id", id); err != nil {
		return err
	}
	if parentID == id {
		return invalid("id", "must differ from parentId")
	}
	return nil
}
