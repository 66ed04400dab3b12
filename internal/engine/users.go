package engine

import (
	"context"
	"database/sql"
	"fmt"

	"offerline/internal/domain"
	"offerline/internal/events"
	"offerline/internal/status"
	"offerline/internal/store"
)

// UserAlreadyExistsError indicates the agent already created its user.
type UserAlreadyExistsError struct {
	AgentID string
}

func (e UserAlreadyExistsError) Error() string {
	return fmt.Sprintf("agent %s already has a user", e.AgentID)
}

// UserRecord pairs a decoded user with its latest revision.
type UserRecord struct {
	User     domain.User
	Revision store.Revision
}

// CreateUser registers the calling agent's single user entity, pending
// administrator acceptance.
func (e *Engine) CreateUser(ctx context.Context, user domain.User, agentID string) (UserRecord, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return UserRecord{}, err
	}
	defer tx.Rollback()

	existing, err := e.Store.Edges(ctx, tx, agentID, EdgeTypeMyUser)
	if err != nil {
		return UserRecord{}, err
	}
	if len(existing) > 0 {
		return UserRecord{}, UserAlreadyExistsError{AgentID: agentID}
	}
	rev, err := e.Store.Create(ctx, tx, domain.KindUser, user, agentID)
	if err != nil {
		return UserRecord{}, err
	}
	if _, err := e.Store.CreateEdge(ctx, tx, agentID, rev.ID, EdgeTypeMyUser, ""); err != nil {
		return UserRecord{}, err
	}
	if _, err := e.Store.CreateEdge(ctx, tx, rev.ID, agentID, EdgeTypeUserAgent, ""); err != nil {
		return UserRecord{}, err
	}
	if _, err := e.Status.CreateTx(ctx, tx, domain.KindUser, rev.ID, agentID); err != nil {
		return UserRecord{}, err
	}
	err = e.Events.Append(ctx, tx, "user.created", domain.KindUser, rev.ID, agentID, events.EventPayload{"name": user.Name})
	if err != nil {
		return UserRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return UserRecord{}, err
	}
	return UserRecord{User: user, Revision: rev}, nil
}

// GetLatestUser returns the current revision of a user by any revision id.
func (e *Engine) GetLatestUser(ctx context.Context, id string) (UserRecord, error) {
	var user domain.User
	rev, err := latestAs(ctx, nil, e.Store, id, &user)
	if err != nil {
		return UserRecord{}, err
	}
	return UserRecord{User: user, Revision: rev}, nil
}

// UpdateUser supersedes a user's profile. Author or administrator only.
func (e *Engine) UpdateUser(ctx context.Context, id string, user domain.User, agentID string) (UserRecord, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return UserRecord{}, err
	}
	defer tx.Rollback()

	if err := e.authorizeMutation(ctx, tx, "update user", id, "", agentID); err != nil {
		return UserRecord{}, err
	}
	original, err := e.Store.ResolveOriginal(ctx, tx, id)
	if err != nil {
		return UserRecord{}, err
	}
	latest, err := e.Store.Latest(ctx, tx, original)
	if err != nil {
		return UserRecord{}, err
	}
	rev, err := e.Store.Update(ctx, tx, latest.ID, user, agentID)
	if err != nil {
		return UserRecord{}, err
	}
	err = e.Events.Append(ctx, tx, "user.updated", domain.KindUser, original, agentID, nil)
	if err != nil {
		return UserRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return UserRecord{}, err
	}
	return UserRecord{User: user, Revision: rev}, nil
}

// UserForAgent returns the user created by an agent, or ErrNotFound.
func (e *Engine) UserForAgent(ctx context.Context, agentID string) (UserRecord, error) {
	id, err := e.userIDForAgent(ctx, nil, agentID)
	if err != nil {
		return UserRecord{}, err
	}
	if id == "" {
		return UserRecord{}, store.ErrNotFound
	}
	return e.GetLatestUser(ctx, id)
}

// UserIDForAgentTx resolves the caller's user original id inside an
// enclosing transaction; empty when the agent has no user yet.
func (e *Engine) UserIDForAgentTx(ctx context.Context, tx *sql.Tx, agentID string) (string, error) {
	return e.userIDForAgent(ctx, tx, agentID)
}

func (e *Engine) userIDForAgent(ctx context.Context, tx *sql.Tx, agentID string) (string, error) {
	edges, err := e.Store.Edges(ctx, tx, agentID, EdgeTypeMyUser)
	if err != nil {
		return "", err
	}
	if len(edges) == 0 {
		return "", nil
	}
	return e.Store.ResolveOriginal(ctx, tx, edges[0].To)
}

// AgentsForUser lists the agent keys bound to a user entity.
func (e *Engine) AgentsForUser(ctx context.Context, userID string) ([]string, error) {
	original, err := e.Store.ResolveOriginal(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	edges, err := e.Store.Edges(ctx, nil, original, EdgeTypeUserAgent)
	if err != nil {
		return nil, err
	}
	agents := make([]string, 0, len(edges))
	for _, edge := range edges {
		agents = append(agents, edge.To)
	}
	return agents, nil
}

// ListUsers returns every status-tracked user, whatever its state.
func (e *Engine) ListUsers(ctx context.Context) ([]UserRecord, error) {
	ids, err := e.Status.All(ctx, nil, domain.KindUser)
	if err != nil {
		return nil, err
	}
	return e.userRecords(ctx, ids)
}

// AcceptedUsers returns the users currently in the accepted bucket.
func (e *Engine) AcceptedUsers(ctx context.Context) ([]UserRecord, error) {
	ids, err := e.Status.Accepted(ctx, nil, domain.KindUser)
	if err != nil {
		return nil, err
	}
	return e.userRecords(ctx, ids)
}

func (e *Engine) userRecords(ctx context.Context, ids []string) ([]UserRecord, error) {
	res := make([]UserRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := e.GetLatestUser(ctx, id)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, nil
}

// UserStatus returns the user's current lifecycle status.
func (e *Engine) UserStatus(ctx context.Context, id string) (status.Status, store.Revision, error) {
	return e.Status.Latest(ctx, domain.KindUser, id)
}
