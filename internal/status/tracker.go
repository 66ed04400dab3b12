package status

import (
	"context"
	"database/sql"
	"time"

	"offerline/internal/admin"
	"offerline/internal/config"
	"offerline/internal/domain"
	"offerline/internal/events"
	"offerline/internal/store"
)

// EdgeTypeCurrentStatus points an entity's original id at the current status
// revision. Exactly one such edge exists per tracked entity.
const EdgeTypeCurrentStatus = "current_status"

// StatusBucket is the registry of all status-tracked entities of a kind.
func StatusBucket(kind string) string { return kind + ".status" }

// AcceptedBucket indexes the accepted entities of a kind.
func AcceptedBucket(kind string) string { return kind + ".status.accepted" }

// Tracker runs the shared lifecycle workflow for every status-tracked kind.
type Tracker struct {
	DB     *sql.DB
	Store  *store.Store
	Admin  *admin.Service
	Config *config.Config
	Events events.Writer
	Now    func() time.Time
}

func (t *Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// CreateTx bootstraps a pending status for a freshly created entity and
// registers it in the kind's status bucket. Called inside the creating
// operation's transaction.
func (t *Tracker) CreateTx(ctx context.Context, tx *sql.Tx, kind, entityID, actorID string) (store.Revision, error) {
	original, err := t.Store.ResolveOriginal(ctx, tx, entityID)
	if err != nil {
		return store.Revision{}, err
	}
	existing, err := t.Store.Edges(ctx, tx, original, EdgeTypeCurrentStatus)
	if err != nil {
		return store.Revision{}, err
	}
	if len(existing) > 0 {
		return store.Revision{}, AlreadyStatusError{Kind: kind, EntityID: original}
	}
	rev, err := t.Store.Create(ctx, tx, domain.KindStatus, NewPending(), actorID)
	if err != nil {
		return store.Revision{}, err
	}
	if _, err := t.Store.CreateEdge(ctx, tx, original, rev.ID, EdgeTypeCurrentStatus, ""); err != nil {
		return store.Revision{}, err
	}
	if err := t.Store.AddToBucket(ctx, tx, StatusBucket(kind), original); err != nil {
		return store.Revision{}, err
	}
	return rev, nil
}

// UpdateRequest carries one status transition.
type UpdateRequest struct {
	Kind     string
	EntityID string
	New      Status
	// ExpectedRevision, when set, must match the current status revision id
	// or the transition is refused with RevisionConflictError.
	ExpectedRevision string
	ActorID          string
}

// Update transitions an entity's status. Administrator-only; the bucket swap,
// edge swap and revision append commit atomically.
func (t *Tracker) Update(ctx context.Context, req UpdateRequest) (store.Revision, error) {
	tx, err := t.DB.BeginTx(ctx, nil)
	if err != nil {
		return store.Revision{}, err
	}
	defer tx.Rollback()

	ok, err := t.Admin.IsAgentAdministrator(ctx, tx, req.ActorID)
	if err != nil {
		return store.Revision{}, err
	}
	if !ok {
		return store.Revision{}, admin.UnauthorizedError{Action: "update " + req.Kind + " status"}
	}
	rev, err := t.updateTx(ctx, tx, req)
	if err != nil {
		return store.Revision{}, err
	}
	if err := tx.Commit(); err != nil {
		return store.Revision{}, err
	}
	return rev, nil
}

// UpdateTx applies a transition inside an enclosing transaction with the
// caller's own authorization already settled.
func (t *Tracker) UpdateTx(ctx context.Context, tx *sql.Tx, req UpdateRequest) (store.Revision, error) {
	return t.updateTx(ctx, tx, req)
}

func (t *Tracker) updateTx(ctx context.Context, tx *sql.Tx, req UpdateRequest) (store.Revision, error) {
	original, err := t.Store.ResolveOriginal(ctx, tx, req.EntityID)
	if err != nil {
		return store.Revision{}, err
	}
	current, currentRev, err := t.latestTx(ctx, tx, req.Kind, original)
	if err != nil {
		return store.Revision{}, err
	}
	if req.ExpectedRevision != "" && req.ExpectedRevision != currentRev.ID {
		return store.Revision{}, RevisionConflictError{Expected: req.ExpectedRevision, Actual: currentRev.ID}
	}
	if err := ValidateTransition(current.StatusType, req.New.StatusType); err != nil {
		return store.Revision{}, err
	}
	rev, err := t.Store.Update(ctx, tx, currentRev.ID, req.New, req.ActorID)
	if err != nil {
		return store.Revision{}, err
	}
	edges, err := t.Store.Edges(ctx, tx, original, EdgeTypeCurrentStatus)
	if err != nil {
		return store.Revision{}, err
	}
	for _, e := range edges {
		if err := t.Store.DeleteEdge(ctx, tx, e.ID); err != nil {
			return store.Revision{}, err
		}
	}
	if _, err := t.Store.CreateEdge(ctx, tx, original, rev.ID, EdgeTypeCurrentStatus, ""); err != nil {
		return store.Revision{}, err
	}
	// The accepted index is rebuilt for this entity on every transition:
	// remove unconditionally, re-add only when the new state is accepted.
	if err := t.Store.RemoveFromBucket(ctx, tx, AcceptedBucket(req.Kind), original); err != nil {
		return store.Revision{}, err
	}
	if req.New.IsAccepted() {
		if err := t.Store.AddToBucket(ctx, tx, AcceptedBucket(req.Kind), original); err != nil {
			return store.Revision{}, err
		}
	}
	err = t.Events.Append(ctx, tx, "status.updated", req.Kind, original, req.ActorID, events.EventPayload{
		"from":        current.StatusType,
		"to":          req.New.StatusType,
		"revision_id": rev.ID,
	})
	if err != nil {
		return store.Revision{}, err
	}
	return rev, nil
}

// SuspendTemporarily suspends an entity for a number of days from now.
func (t *Tracker) SuspendTemporarily(ctx context.Context, kind, entityID, reason string, days int, expectedRevision, actorID string) (store.Revision, error) {
	if days <= 0 {
		return store.Revision{}, DurationInDaysNotProvidedError{}
	}
	until := t.now().AddDate(0, 0, days)
	return t.Update(ctx, UpdateRequest{
		Kind:             kind,
		EntityID:         entityID,
		New:              NewSuspended(reason, &until),
		ExpectedRevision: expectedRevision,
		ActorID:          actorID,
	})
}

// SuspendIndefinitely suspends an entity with no end date.
func (t *Tracker) SuspendIndefinitely(ctx context.Context, kind, entityID, reason, expectedRevision, actorID string) (store.Revision, error) {
	return t.Update(ctx, UpdateRequest{
		Kind:             kind,
		EntityID:         entityID,
		New:              NewSuspended(reason, nil),
		ExpectedRevision: expectedRevision,
		ActorID:          actorID,
	})
}

// Unsuspend restores a suspended entity to accepted.
func (t *Tracker) Unsuspend(ctx context.Context, kind, entityID, expectedRevision, actorID string) (store.Revision, error) {
	return t.Update(ctx, UpdateRequest{
		Kind:             kind,
		EntityID:         entityID,
		New:              NewAccepted(),
		ExpectedRevision: expectedRevision,
		ActorID:          actorID,
	})
}

// UnsuspendIfTimePassed lifts a temporary suspension whose end date has
// passed. Returns true when the entity was restored.
func (t *Tracker) UnsuspendIfTimePassed(ctx context.Context, kind, entityID, actorID string) (bool, error) {
	tx, err := t.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	original, err := t.Store.ResolveOriginal(ctx, tx, entityID)
	if err != nil {
		return false, err
	}
	current, currentRev, err := t.latestTx(ctx, tx, kind, original)
	if err != nil {
		return false, err
	}
	if !current.SuspensionExpired(t.now()) {
		return false, nil
	}
	_, err = t.updateTx(ctx, tx, UpdateRequest{
		Kind:             kind,
		EntityID:         original,
		New:              NewAccepted(),
		ExpectedRevision: currentRev.ID,
		ActorID:          actorID,
	})
	if err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// Latest returns the entity's current status and the revision carrying it.
func (t *Tracker) Latest(ctx context.Context, kind, entityID string) (Status, store.Revision, error) {
	original, err := t.Store.ResolveOriginal(ctx, nil, entityID)
	if err != nil {
		return Status{}, store.Revision{}, err
	}
	return t.latestTx(ctx, nil, kind, original)
}

func (t *Tracker) latestTx(ctx context.Context, tx *sql.Tx, kind, original string) (Status, store.Revision, error) {
	edges, err := t.Store.Edges(ctx, tx, original, EdgeTypeCurrentStatus)
	if err != nil {
		return Status{}, store.Revision{}, err
	}
	if len(edges) == 0 {
		return Status{}, store.Revision{}, store.ErrNotFound
	}
	if len(edges) > 1 {
		return Status{}, store.Revision{}, InvariantViolationError{Kind: kind, EntityID: original, Edges: len(edges)}
	}
	rev, err := t.Store.Get(ctx, tx, edges[0].To)
	if err != nil {
		return Status{}, store.Revision{}, err
	}
	var st Status
	if err := rev.Decode(&st); err != nil {
		return Status{}, store.Revision{}, err
	}
	return st, rev, nil
}

// History returns every status revision of an entity, oldest first.
func (t *Tracker) History(ctx context.Context, entityID string) ([]store.Revision, error) {
	original, err := t.Store.ResolveOriginal(ctx, nil, entityID)
	if err != nil {
		return nil, err
	}
	edges, err := t.Store.Edges(ctx, nil, original, EdgeTypeCurrentStatus)
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return nil, store.ErrNotFound
	}
	statusOriginal, err := t.Store.ResolveOriginal(ctx, nil, edges[0].To)
	if err != nil {
		return nil, err
	}
	return t.Store.Revisions(ctx, nil, statusOriginal)
}

// Accepted lists the original ids of a kind's accepted entities.
func (t *Tracker) Accepted(ctx context.Context, tx *sql.Tx, kind string) ([]string, error) {
	return t.Store.BucketMembers(ctx, tx, AcceptedBucket(kind))
}

// IsAccepted reports accepted-bucket membership for one entity.
func (t *Tracker) IsAccepted(ctx context.Context, tx *sql.Tx, kind, entityID string) (bool, error) {
	original, err := t.Store.ResolveOriginal(ctx, tx, entityID)
	if err != nil {
		return false, err
	}
	return t.Store.InBucket(ctx, tx, AcceptedBucket(kind), original)
}

// All lists every status-tracked entity of a kind, whatever its state.
func (t *Tracker) All(ctx context.Context, tx *sql.Tx, kind string) ([]string, error) {
	return t.Store.BucketMembers(ctx, tx, StatusBucket(kind))
}
