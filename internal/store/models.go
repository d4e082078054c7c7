package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a row does not exist for the given owner.
var ErrNotFound = errors.New("store: not found")

type NodeType string

const (
	NodeTypeDefault   NodeType = "default"
	NodeTypeCompleted NodeType = "completed"
)

type Node struct {
	ID                    string
	OwnerID               string
	Name                  string
	Note                  string
	URL                   *string
	URLPreviewImageURL    *string
	URLPreviewDescription *string
	ChildrenIDs           []string
	CompletedNodeID       *string
	Type                  NodeType
	CreatedAt             time.Time
}

// IsBucket reports whether the node is a completed-items container.
func (n Node) IsBucket() bool {
	return n.Type == NodeTypeCompleted
}

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// RefreshSession is the Postgres/SQLite fallback record for a refresh token.
type RefreshSession struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	RevokedAt *time.Time
}
