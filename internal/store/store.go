package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"offerline/internal/ids"
)

var ErrNotFound = errors.New("not found")

// Revision is one immutable version of an entity. The first revision of an
// entity has RootID == ID; every later revision carries the root id directly,
// so resolving any revision to its original is a single lookup.
type Revision struct {
	ID        string `json:"id"`
	RootID    string `json:"root_id"`
	Kind      string `json:"kind"`
	Content   string `json:"content_json"`
	AuthorID  string `json:"author_id"`
	CreatedAt string `json:"created_at" format:"date-time"`
	Deleted   bool   `json:"deleted"`
}

// Decode unmarshals the revision content into v.
func (r Revision) Decode(v any) error {
	if err := json.Unmarshal([]byte(r.Content), v); err != nil {
		return &SerializationError{Kind: r.Kind, Err: err}
	}
	return nil
}

// SerializationError reports content that does not decode to the expected shape.
type SerializationError struct {
	Kind string
	Err  error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("decode %s content: %v", e.Kind, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// Edge is a typed, optionally tagged pointer between two store addresses.
// Addresses are revision ids, agent ids, or bucket keys.
type Edge struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Type      string `json:"type"`
	Tag       string `json:"tag,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// EdgeTypeBucket marks membership of an entity in a named path bucket.
const EdgeTypeBucket = "bucket"

// Store is the versioned-entity store plus tagged-edge index backing every
// coordinator operation. Writes accept an optional *sql.Tx so multi-step
// operations commit atomically.
type Store struct {
	DB    *sql.DB
	NewID func() string
	Now   func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{DB: db, NewID: ids.New, Now: time.Now}
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) q(tx *sql.Tx) dbtx {
	if tx != nil {
		return tx
	}
	return s.DB
}

func (s *Store) now() string {
	if s.Now != nil {
		return s.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

func (s *Store) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return ids.New()
}

// Create appends the root revision of a new entity.
func (s *Store) Create(ctx context.Context, tx *sql.Tx, kind string, content any, authorID string) (Revision, error) {
	data, err := json.Marshal(content)
	if err != nil {
		return Revision{}, fmt.Errorf("marshal %s content: %w", kind, err)
	}
	rev := Revision{
		ID:        s.newID(),
		Kind:      kind,
		Content:   string(data),
		AuthorID:  authorID,
		CreatedAt: s.now(),
	}
	rev.RootID = rev.ID
	_, err = s.q(tx).ExecContext(ctx, `INSERT INTO revisions(id,root_id,kind,content_json,author_id,created_at,deleted) VALUES (?,?,?,?,?,?,0)`,
		rev.ID, rev.RootID, rev.Kind, rev.Content, rev.AuthorID, rev.CreatedAt)
	if err != nil {
		return Revision{}, err
	}
	return rev, nil
}

func scanRevision(row *sql.Row) (Revision, error) {
	var r Revision
	var deleted int
	err := row.Scan(&r.ID, &r.RootID, &r.Kind, &r.Content, &r.AuthorID, &r.CreatedAt, &deleted)
	if err == sql.ErrNoRows {
		return r, ErrNotFound
	}
	r.Deleted = deleted != 0
	return r, err
}

// Get returns a revision by id, including tombstoned ones.
func (s *Store) Get(ctx context.Context, tx *sql.Tx, id string) (Revision, error) {
	return scanRevision(s.q(tx).QueryRowContext(ctx,
		`SELECT id,root_id,kind,content_json,author_id,created_at,deleted FROM revisions WHERE id=?`, id))
}

// Update appends a new revision superseding priorID. The new revision keeps
// the original root id, so the chain never needs walking.
func (s *Store) Update(ctx context.Context, tx *sql.Tx, priorID string, content any, authorID string) (Revision, error) {
	prior, err := s.Get(ctx, tx, priorID)
	if err != nil {
		return Revision{}, err
	}
	if prior.Deleted {
		return Revision{}, ErrNotFound
	}
	data, err := json.Marshal(content)
	if err != nil {
		return Revision{}, fmt.Errorf("marshal %s content: %w", prior.Kind, err)
	}
	rev := Revision{
		ID:        s.newID(),
		RootID:    prior.RootID,
		Kind:      prior.Kind,
		Content:   string(data),
		AuthorID:  authorID,
		CreatedAt: s.now(),
	}
	_, err = s.q(tx).ExecContext(ctx, `INSERT INTO revisions(id,root_id,kind,content_json,author_id,created_at,deleted) VALUES (?,?,?,?,?,?,0)`,
		rev.ID, rev.RootID, rev.Kind, rev.Content, rev.AuthorID, rev.CreatedAt)
	if err != nil {
		return Revision{}, err
	}
	return rev, nil
}

// ResolveOriginal maps any revision id to the entity's original identity.
// Idempotent: resolving an original id returns it unchanged.
func (s *Store) ResolveOriginal(ctx context.Context, tx *sql.Tx, id string) (string, error) {
	var root string
	err := s.q(tx).QueryRowContext(ctx, `SELECT root_id FROM revisions WHERE id=?`, id).Scan(&root)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return root, nil
}

// Latest returns the most recent live revision of an entity. Revision ids are
// ULIDs, so lexicographic order matches creation order.
func (s *Store) Latest(ctx context.Context, tx *sql.Tx, originalID string) (Revision, error) {
	return scanRevision(s.q(tx).QueryRowContext(ctx,
		`SELECT id,root_id,kind,content_json,author_id,created_at,deleted FROM revisions WHERE root_id=? AND deleted=0 ORDER BY id DESC LIMIT 1`, originalID))
}

// Revisions returns the full revision chain of an entity, oldest first.
func (s *Store) Revisions(ctx context.Context, tx *sql.Tx, originalID string) ([]Revision, error) {
	rows, err := s.q(tx).QueryContext(ctx,
		`SELECT id,root_id,kind,content_json,author_id,created_at,deleted FROM revisions WHERE root_id=? ORDER BY id ASC`, originalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Revision
	for rows.Next() {
		var r Revision
		var deleted int
		if err := rows.Scan(&r.ID, &r.RootID, &r.Kind, &r.Content, &r.AuthorID, &r.CreatedAt, &deleted); err != nil {
			return nil, err
		}
		r.Deleted = deleted != 0
		res = append(res, r)
	}
	return res, rows.Err()
}

// Purge hard-deletes an entity: tombstones every revision and removes every
// edge touching its original id. Distinct from an archival status flip.
func (s *Store) Purge(ctx context.Context, tx *sql.Tx, originalID string) error {
	res, err := s.q(tx).ExecContext(ctx, `UPDATE revisions SET deleted=1 WHERE root_id=?`, originalID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	_, err = s.q(tx).ExecContext(ctx, `DELETE FROM edges WHERE from_addr=? OR to_addr=?`, originalID, originalID)
	return err
}
