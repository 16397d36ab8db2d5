// Package docstore persists line-addressed text documents owned by users.
package docstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrAccessDenied is returned when a user addresses a document owned
	// by someone else.
	ErrAccessDenied = errors.New("document belongs to another user")
)

// Document is a stored document. Revision increases on every content write.
type Document struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Revision  int       `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the document persistence interface. ReadContent and
// WriteContent satisfy docagent.DocumentStore.
type Store interface {
	Create(ctx context.Context, doc Document) (*Document, error)
	Get(ctx context.Context, documentID, userID string) (*Document, error)
	List(ctx context.Context, userID string) ([]Document, error)
	ReadContent(ctx context.Context, documentID, userID string) (string, error)
	WriteContent(ctx context.Context, documentID, userID, content string) error
	Close() error
}
