package store_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"offerline/internal/db"
	"offerline/internal/domain"
	"offerline/internal/migrate"
	"offerline/internal/store"
)

func newStore(t *testing.T) (*sql.DB, *store.Store) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn, store.New(conn)
}

type note struct {
	Text string `json:"text"`
}

func TestRevisionChain(t *testing.T) {
	_, st := newStore(t)
	ctx := context.Background()

	first, err := st.Create(ctx, nil, domain.KindRequest, note{Text: "v1"}, "agent-a")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.RootID != first.ID {
		t.Fatalf("first revision root = %q, want its own id %q", first.RootID, first.ID)
	}

	second, err := st.Update(ctx, nil, first.ID, note{Text: "v2"}, "agent-b")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	third, err := st.Update(ctx, nil, second.ID, note{Text: "v3"}, "agent-a")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if second.RootID != first.ID || third.RootID != first.ID {
		t.Fatalf("later revisions must carry the original id")
	}

	latest, err := st.Latest(ctx, nil, first.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	var n note
	if err := latest.Decode(&n); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n.Text != "v3" {
		t.Fatalf("latest content = %q, want v3", n.Text)
	}

	revs, err := st.Revisions(ctx, nil, first.ID)
	if err != nil {
		t.Fatalf("revisions: %v", err)
	}
	if len(revs) != 3 {
		t.Fatalf("got %d revisions, want 3", len(revs))
	}
	if revs[0].ID != first.ID || revs[2].ID != third.ID {
		t.Fatalf("revisions not oldest first")
	}
}

func TestResolveOriginalIdempotent(t *testing.T) {
	_, st := newStore(t)
	ctx := context.Background()

	first, err := st.Create(ctx, nil, domain.KindOffer, note{Text: "v1"}, "agent-a")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := st.Update(ctx, nil, first.ID, note{Text: "v2"}, "agent-a")
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	for _, id := range []string{first.ID, second.ID} {
		got, err := st.ResolveOriginal(ctx, nil, id)
		if err != nil {
			t.Fatalf("resolve %s: %v", id, err)
		}
		if got != first.ID {
			t.Fatalf("resolve(%s) = %q, want %q", id, got, first.ID)
		}
	}
	if _, err := st.ResolveOriginal(ctx, nil, "no-such-id"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("resolve unknown id: got %v, want ErrNotFound", err)
	}
}

func TestUpdateDeletedEntityFails(t *testing.T) {
	_, st := newStore(t)
	ctx := context.Background()

	rev, err := st.Create(ctx, nil, domain.KindRequest, note{Text: "v1"}, "agent-a")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.Purge(ctx, nil, rev.ID); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := st.Update(ctx, nil, rev.ID, note{Text: "v2"}, "agent-a"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("update after purge: got %v, want ErrNotFound", err)
	}
	if _, err := st.Latest(ctx, nil, rev.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("latest after purge: got %v, want ErrNotFound", err)
	}
}

func TestPurgeRemovesEdges(t *testing.T) {
	_, st := newStore(t)
	ctx := context.Background()

	rev, err := st.Create(ctx, nil, domain.KindRequest, note{Text: "v1"}, "agent-a")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.CreateEdge(ctx, nil, rev.ID, "target", "links-to", ""); err != nil {
		t.Fatalf("create edge: %v", err)
	}
	if _, err := st.CreateEdge(ctx, nil, "source", rev.ID, "links-to", ""); err != nil {
		t.Fatalf("create edge: %v", err)
	}
	if err := st.Purge(ctx, nil, rev.ID); err != nil {
		t.Fatalf("purge: %v", err)
	}
	out, err := st.Edges(ctx, nil, rev.ID, "links-to")
	if err != nil {
		t.Fatalf("edges: %v", err)
	}
	in, err := st.EdgesTo(ctx, nil, rev.ID, "links-to")
	if err != nil {
		t.Fatalf("edges to: %v", err)
	}
	if len(out) != 0 || len(in) != 0 {
		t.Fatalf("purge left %d outgoing and %d incoming edges", len(out), len(in))
	}
	if err := st.Purge(ctx, nil, "no-such-id"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("purge unknown id: got %v, want ErrNotFound", err)
	}
}

func TestTaggedEdges(t *testing.T) {
	_, st := newStore(t)
	ctx := context.Background()

	if _, err := st.CreateEdge(ctx, nil, "req", "st-1", "service-type", "tag.web"); err != nil {
		t.Fatalf("create edge: %v", err)
	}
	if _, err := st.CreateEdge(ctx, nil, "req", "st-2", "service-type", "tag.garden"); err != nil {
		t.Fatalf("create edge: %v", err)
	}

	all, err := st.Edges(ctx, nil, "req", "service-type")
	if err != nil {
		t.Fatalf("edges: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d edges, want 2", len(all))
	}

	tagged, err := st.EdgesTagged(ctx, nil, "req", "service-type", "tag.web")
	if err != nil {
		t.Fatalf("edges tagged: %v", err)
	}
	if len(tagged) != 1 || tagged[0].To != "st-1" {
		t.Fatalf("tag filter returned %+v", tagged)
	}

	if err := st.DeleteEdges(ctx, nil, "req", "st-1", "service-type"); err != nil {
		t.Fatalf("delete edges: %v", err)
	}
	remaining, err := st.Edges(ctx, nil, "req", "service-type")
	if err != nil {
		t.Fatalf("edges: %v", err)
	}
	if len(remaining) != 1 || remaining[0].To != "st-2" {
		t.Fatalf("after delete got %+v", remaining)
	}
}

func TestBucketMembership(t *testing.T) {
	_, st := newStore(t)
	ctx := context.Background()
	bucket := "users.status.accepted"

	if err := st.AddToBucket(ctx, nil, bucket, "u-1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	// Re-adding must not create a duplicate.
	if err := st.AddToBucket(ctx, nil, bucket, "u-1"); err != nil {
		t.Fatalf("add again: %v", err)
	}
	if err := st.AddToBucket(ctx, nil, bucket, "u-2"); err != nil {
		t.Fatalf("add: %v", err)
	}

	members, err := st.BucketMembers(ctx, nil, bucket)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 2 || members[0] != "u-1" || members[1] != "u-2" {
		t.Fatalf("members = %v", members)
	}

	if err := st.RemoveFromBucket(ctx, nil, bucket, "u-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	// Removing a non-member is a no-op.
	if err := st.RemoveFromBucket(ctx, nil, bucket, "u-1"); err != nil {
		t.Fatalf("remove again: %v", err)
	}
	in, err := st.InBucket(ctx, nil, bucket, "u-2")
	if err != nil {
		t.Fatalf("in bucket: %v", err)
	}
	if !in {
		t.Fatalf("u-2 should still be a member")
	}
}
