package tree

import (
	"context"
	"errors"
	"fmt"

	"prioritylist/api/internal/store"
)

const (
	DefaultSubtreeDepth = 3
	MaxSubtreeDepth     = 10
)

// Subtree is a node with its children resolved down to a fixed depth.
type Subtree struct {
	Node
	Children  []Subtree
	Completed []Node
	Depth     int
}

// Subtree loads id and its descendants, depth levels deep. Each level's
// completed list is attached without its own descendants.
func (e *Engine) Subtree(ctx context.Context, caller Caller, id string, depth int) (Subtree, error) {
	if err := checkCaller(caller); err != nil {
		return Subtree{}, err
	}
	if err := requireID("id", id); err != nil {
		return Subtree{}, err
	}
	if depth <= 0 {
		depth = DefaultSubtreeDepth
	}
	if depth > MaxSubtreeDepth {
		return Subtree{}, invalid("depth", fmt.Sprintf("must be at most %d", MaxSubtreeDepth))
	}

	var out Subtree
	err := e.db.WithTx(ctx, func(tx *store.Tx) error {
		root, err := tx.GetNode(ctx, caller.OwnerID, id, false)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("node %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		out, err = e.expand(ctx, tx, caller, root, 0, depth)
		return err
	})
	return out, err
}

func (e *Engine) expand(ctx context.Context, tx *store.Tx, caller Caller, node Node, level, depth int) (Subtree, error) {
	st := Subtree{Node: node, Depth: level}
	if level >= depth {
		return st, nil
	}

	children, err := e.resolve(ctx, tx, caller, node.ID, node.ChildrenIDs)
	if err != nil {
		return Subtree{}, err
	}
	for _, child := range children {
		sub, err := e.expand(ctx, tx, caller, child, level+1, depth)
		if err != nil {
			return Subtree{}, err
		}
		st.Children = append(st.Children, sub)
	}

	if node.CompletedNodeID != nil {
		bucket, err := tx.GetNode(ctx, caller.OwnerID, *node.CompletedNodeID, false)
		if errors.Is(err, store.ErrNotFound) {
			return Subtree{}, fmt.Errorf("%w: completed list %s of %s", ErrInvalidReference, *node.CompletedNodeID, node.ID)
		}
		if err != nil {
			return Subtree{}, err
		}
		if st.Completed, err = e.resolve(ctx, tx, caller, bucket.ID, bucket.ChildrenIDs); err != nil {
			return Subtree{}, err
		}
	}
	return st, nil
}
