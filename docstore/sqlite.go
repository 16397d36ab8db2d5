package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		revision INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id, updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Create inserts a new document. An empty ID is replaced with a UUID.
func (s *SQLiteStore) Create(ctx context.Context, doc Document) (*Document, error) {
	if doc.OwnerID == "" {
		return nil, errors.New("document owner is required")
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now()
	doc.CreatedAt, doc.UpdatedAt = now, now
	doc.Revision = 1

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, owner_id, title, content, revision, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.OwnerID, doc.Title, doc.Content, doc.Revision, now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	return &doc, nil
}

// Get returns the document if userID owns it.
func (s *SQLiteStore) Get(ctx context.Context, documentID, userID string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, content, revision, created_at, updated_at
		FROM documents WHERE id = ?`, documentID)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document row: %w", err)
	}
	if doc.OwnerID != userID {
		return nil, ErrAccessDenied
	}
	return doc, nil
}

// List returns the user's documents, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context, userID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, content, revision, created_at, updated_at
		FROM documents WHERE owner_id = ? ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// ReadContent returns the document's content.
func (s *SQLiteStore) ReadContent(ctx context.Context, documentID, userID string) (string, error) {
	doc, err := s.Get(ctx, documentID, userID)
	if err != nil {
		return "", err
	}
	return doc.Content, nil
}

// WriteContent replaces the document's content and bumps its revision.
func (s *SQLiteStore) WriteContent(ctx context.Context, documentID, userID, content string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET content = ?, revision = revision + 1, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		content, time.Now().UnixNano(), documentID, userID)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if n == 0 {
		// Distinguish a missing document from one owned by another user.
		if _, err := s.Get(ctx, documentID, userID); err != nil {
			return err
		}
		return ErrNotFound
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var createdAt, updatedAt int64
	if err := row.Scan(&doc.ID, &doc.OwnerID, &doc.Title, &doc.Content, &doc.Revision, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	doc.CreatedAt = time.Unix(0, createdAt)
	doc.UpdatedAt = time.Unix(0, updatedAt)
	return &doc, nil
}
