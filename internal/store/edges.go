package store

import (
	"context"
	"database/sql"
)

// CreateEdge adds a typed pointer between two addresses.
func (s *Store) CreateEdge(ctx context.Context, tx *sql.Tx, from, to, edgeType, tag string) (Edge, error) {
	e := Edge{
		ID:        s.newID(),
		From:      from,
		To:        to,
		Type:      edgeType,
		Tag:       tag,
		CreatedAt: s.now(),
	}
	_, err := s.q(tx).ExecContext(ctx, `INSERT INTO edges(id,from_addr,to_addr,edge_type,tag,created_at) VALUES (?,?,?,?,?,?)`,
		e.ID, e.From, e.To, e.Type, e.Tag, e.CreatedAt)
	if err != nil {
		return Edge{}, err
	}
	return e, nil
}

func (s *Store) queryEdges(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]Edge, error) {
	rows, err := s.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.ID, &e.From, &e.To, &e.Type, &e.Tag, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// Edges returns all edges of a type leaving from.
func (s *Store) Edges(ctx context.Context, tx *sql.Tx, from, edgeType string) ([]Edge, error) {
	return s.queryEdges(ctx, tx,
		`SELECT id,from_addr,to_addr,edge_type,tag,created_at FROM edges WHERE from_addr=? AND edge_type=? ORDER BY id ASC`, from, edgeType)
}

// EdgesTagged filters edges leaving from by exact tag.
func (s *Store) EdgesTagged(ctx context.Context, tx *sql.Tx, from, edgeType, tag string) ([]Edge, error) {
	return s.queryEdges(ctx, tx,
		`SELECT id,from_addr,to_addr,edge_type,tag,created_at FROM edges WHERE from_addr=? AND edge_type=? AND tag=? ORDER BY id ASC`, from, edgeType, tag)
}

// EdgesTo returns all edges of a type arriving at to.
func (s *Store) EdgesTo(ctx context.Context, tx *sql.Tx, to, edgeType string) ([]Edge, error) {
	return s.queryEdges(ctx, tx,
		`SELECT id,from_addr,to_addr,edge_type,tag,created_at FROM edges WHERE to_addr=? AND edge_type=? ORDER BY id ASC`, to, edgeType)
}

// DeleteEdge removes a single edge by id.
func (s *Store) DeleteEdge(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := s.q(tx).ExecContext(ctx, `DELETE FROM edges WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteEdges removes every edge of a type between from and to.
func (s *Store) DeleteEdges(ctx context.Context, tx *sql.Tx, from, to, edgeType string) error {
	_, err := s.q(tx).ExecContext(ctx, `DELETE FROM edges WHERE from_addr=? AND to_addr=? AND edge_type=?`, from, to, edgeType)
	return err
}

// AddToBucket records entity membership in a named path bucket
// (e.g. "users.status.accepted"). Duplicate memberships are not created.
func (s *Store) AddToBucket(ctx context.Context, tx *sql.Tx, bucket, entityID string) error {
	in, err := s.InBucket(ctx, tx, bucket, entityID)
	if err != nil {
		return err
	}
	if in {
		return nil
	}
	_, err = s.CreateEdge(ctx, tx, bucket, entityID, EdgeTypeBucket, "")
	return err
}

// RemoveFromBucket drops entity membership from a bucket. Removing a
// non-member is a no-op.
func (s *Store) RemoveFromBucket(ctx context.Context, tx *sql.Tx, bucket, entityID string) error {
	return s.DeleteEdges(ctx, tx, bucket, entityID, EdgeTypeBucket)
}

// BucketMembers lists entity ids in a bucket in insertion order.
func (s *Store) BucketMembers(ctx context.Context, tx *sql.Tx, bucket string) ([]string, error) {
	edges, err := s.Edges(ctx, tx, bucket, EdgeTypeBucket)
	if err != nil {
		return nil, err
	}
	members := make([]string, 0, len(edges))
	for _, e := range edges {
		members = append(members, e.To)
	}
	return members, nil
}

// InBucket reports bucket membership.
func (s *Store) InBucket(ctx context.Context, tx *sql.Tx, bucket, entityID string) (bool, error) {
	row := s.q(tx).QueryRowContext(ctx, `SELECT 1 FROM edges WHERE from_addr=? AND to_addr=? AND edge_type=? LIMIT 1`,
		bucket, entityID, EdgeTypeBucket)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}
