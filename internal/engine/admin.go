package engine

import (
	"context"
	"database/sql"

	"offerline/internal/admin"
	"offerline/internal/domain"
)

// BootstrapAdministrator registers the first administrator. Once any
// administrator exists, further registration goes through AddAdministrator.
func (e *Engine) BootstrapAdministrator(ctx context.Context, userID, agentID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	existing, err := e.Admin.Administrators(ctx, tx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return admin.UnauthorizedError{Action: "bootstrap administrator"}
	}
	user, err := e.Store.ResolveOriginal(ctx, tx, userID)
	if err != nil {
		return err
	}
	agents, err := e.agentsForUserTx(ctx, tx, user)
	if err != nil {
		return err
	}
	if err := e.Admin.RegisterAdministrator(ctx, tx, user, agents); err != nil {
		return err
	}
	err = e.Events.Append(ctx, tx, "admin.registered", domain.KindUser, user, agentID, nil)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// AddAdministrator registers another administrator. Caller must be one.
func (e *Engine) AddAdministrator(ctx context.Context, userID, agentID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	user, err := e.Store.ResolveOriginal(ctx, tx, userID)
	if err != nil {
		return err
	}
	agents, err := e.agentsForUserTx(ctx, tx, user)
	if err != nil {
		return err
	}
	if err := e.Admin.AddAdministrator(ctx, tx, agentID, user, agents); err != nil {
		return err
	}
	err = e.Events.Append(ctx, tx, "admin.added", domain.KindUser, user, agentID, nil)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveAdministrator drops a user from the registry; the last one stays.
func (e *Engine) RemoveAdministrator(ctx context.Context, userID, agentID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	user, err := e.Store.ResolveOriginal(ctx, tx, userID)
	if err != nil {
		return err
	}
	agents, err := e.agentsForUserTx(ctx, tx, user)
	if err != nil {
		return err
	}
	if err := e.Admin.RemoveAdministrator(ctx, tx, agentID, user, agents); err != nil {
		return err
	}
	err = e.Events.Append(ctx, tx, "admin.removed", domain.KindUser, user, agentID, nil)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// ListAdministrators returns administrator user records.
func (e *Engine) ListAdministrators(ctx context.Context) ([]UserRecord, error) {
	ids, err := e.Admin.Administrators(ctx, nil)
	if err != nil {
		return nil, err
	}
	return e.userRecords(ctx, ids)
}

// IsAgentAdministrator reports whether the agent belongs to an administrator.
func (e *Engine) IsAgentAdministrator(ctx context.Context, agentID string) (bool, error) {
	return e.Admin.IsAgentAdministrator(ctx, nil, agentID)
}

func (e *Engine) agentsForUserTx(ctx context.Context, tx *sql.Tx, user string) ([]string, error) {
	edges, err := e.Store.Edges(ctx, tx, user, EdgeTypeUserAgent)
	if err != nil {
		return nil, err
	}
	agents := make([]string, 0, len(edges))
	for _, edge := range edges {
		agents = append(agents, edge.To)
	}
	return agents, nil
}
