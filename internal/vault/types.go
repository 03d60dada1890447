package vault

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("document not found")

// Document is one entry in the knowledge vault. Tier controls visibility:
// documents above tier 0 are hidden unless the caller's session has
// privilege mode enabled.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tier      int       `json:"tier"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats summarizes the vault for the stats tool.
type Stats struct {
	Documents  int `json:"documents"`
	Restricted int `json:"restricted"`
}

// Store is the document collaborator consumed by tool handlers. Queries carry
// the caller's maximum visible tier; implementations must never return a
// document above it.
type Store interface {
	Search(ctx context.Context, query string, maxTier, limit int) ([]Document, error)
	Get(ctx context.Context, id string, maxTier int) (Document, error)
	List(ctx context.Context, maxTier, limit int) ([]Document, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}
