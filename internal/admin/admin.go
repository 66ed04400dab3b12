package admin

import (
	"context"
	"database/sql"
	"fmt"

	"offerline/internal/config"
	"offerline/internal/store"
)

// Bucket of administrator user ids; agents carry an edge to it.
const (
	AdministratorsBucket  = "users.administrators"
	EdgeTypeAdministrator = "administrator"
)

// UnauthorizedError indicates the caller failed the admin or author check.
type UnauthorizedError struct {
	Action string
}

func (e UnauthorizedError) Error() string {
	if e.Action == "" {
		return "unauthorized"
	}
	return fmt.Sprintf("unauthorized: %s", e.Action)
}

// AlreadyAdminError indicates a duplicate administrator registration.
type AlreadyAdminError struct {
	UserID string
}

func (e AlreadyAdminError) Error() string {
	return fmt.Sprintf("user %s is already an administrator", e.UserID)
}

// LastAdminError guards against removing the final administrator.
type LastAdminError struct{}

func (e LastAdminError) Error() string { return "cannot remove last administrator" }

// Service maintains the administrator registry and the shared authorization
// policy every mutating operation goes through.
type Service struct {
	Store  *store.Store
	Config *config.Config

	// OrganizationCoordinators resolves coordinator user ids of an
	// organization; wired by the engine to avoid a package cycle.
	OrganizationCoordinators func(ctx context.Context, tx *sql.Tx, orgID string) ([]string, error)
	// UserForAgent resolves the caller's user entity, if any.
	UserForAgent func(ctx context.Context, tx *sql.Tx, agentID string) (string, error)
}

// RegisterAdministrator adds a user (and its agents) to the registry without
// an authorization check; used for bootstrap.
func (s *Service) RegisterAdministrator(ctx context.Context, tx *sql.Tx, userID string, agentIDs []string) error {
	original, err := s.Store.ResolveOriginal(ctx, tx, userID)
	if err != nil {
		return err
	}
	in, err := s.Store.InBucket(ctx, tx, AdministratorsBucket, original)
	if err != nil {
		return err
	}
	if in {
		return AlreadyAdminError{UserID: original}
	}
	if err := s.Store.AddToBucket(ctx, tx, AdministratorsBucket, original); err != nil {
		return err
	}
	for _, agent := range agentIDs {
		if _, err := s.Store.CreateEdge(ctx, tx, agent, AdministratorsBucket, EdgeTypeAdministrator, ""); err != nil {
			return err
		}
	}
	return nil
}

// AddAdministrator registers a new administrator; caller must already be one.
func (s *Service) AddAdministrator(ctx context.Context, tx *sql.Tx, callerAgent, userID string, agentIDs []string) error {
	ok, err := s.IsAgentAdministrator(ctx, tx, callerAgent)
	if err != nil {
		return err
	}
	if !ok {
		return UnauthorizedError{Action: "add administrator"}
	}
	return s.RegisterAdministrator(ctx, tx, userID, agentIDs)
}

// RemoveAdministrator drops a user (and its agents) from the registry.
func (s *Service) RemoveAdministrator(ctx context.Context, tx *sql.Tx, callerAgent, userID string, agentIDs []string) error {
	ok, err := s.IsAgentAdministrator(ctx, tx, callerAgent)
	if err != nil {
		return err
	}
	if !ok {
		return UnauthorizedError{Action: "remove administrator"}
	}
	admins, err := s.Administrators(ctx, tx)
	if err != nil {
		return err
	}
	if len(admins) == 1 {
		return LastAdminError{}
	}
	original, err := s.Store.ResolveOriginal(ctx, tx, userID)
	if err != nil {
		return err
	}
	if err := s.Store.RemoveFromBucket(ctx, tx, AdministratorsBucket, original); err != nil {
		return err
	}
	for _, agent := range agentIDs {
		if err := s.Store.DeleteEdges(ctx, tx, agent, AdministratorsBucket, EdgeTypeAdministrator); err != nil {
			return err
		}
	}
	return nil
}

// Administrators lists administrator user ids.
func (s *Service) Administrators(ctx context.Context, tx *sql.Tx) ([]string, error) {
	return s.Store.BucketMembers(ctx, tx, AdministratorsBucket)
}

// IsUserAdministrator reports registry membership for a user entity.
func (s *Service) IsUserAdministrator(ctx context.Context, tx *sql.Tx, userID string) (bool, error) {
	original, err := s.Store.ResolveOriginal(ctx, tx, userID)
	if err != nil {
		return false, err
	}
	return s.Store.InBucket(ctx, tx, AdministratorsBucket, original)
}

// IsAgentAdministrator reports whether an agent key belongs to any
// administrator user.
func (s *Service) IsAgentAdministrator(ctx context.Context, tx *sql.Tx, agentID string) (bool, error) {
	edges, err := s.Store.Edges(ctx, tx, agentID, EdgeTypeAdministrator)
	if err != nil {
		return false, err
	}
	return len(edges) > 0, nil
}

// CanMutate is the single author-or-administrator policy. For records owned
// by an organization, "author" follows the configured authorship policy:
// either the original creator alone or any coordinator of the organization.
func (s *Service) CanMutate(ctx context.Context, tx *sql.Tx, entityID, orgID, agentID string) (bool, error) {
	isAdmin, err := s.IsAgentAdministrator(ctx, tx, agentID)
	if err != nil {
		return false, err
	}
	if isAdmin {
		return true, nil
	}
	original, err := s.Store.ResolveOriginal(ctx, tx, entityID)
	if err != nil {
		return false, err
	}
	rev, err := s.Store.Get(ctx, tx, original)
	if err != nil {
		return false, err
	}
	if rev.AuthorID == agentID {
		return true, nil
	}
	if orgID == "" || s.Config == nil || s.Config.Authorship.Organizations != config.AuthorshipCoordinators {
		return false, nil
	}
	if s.OrganizationCoordinators == nil || s.UserForAgent == nil {
		return false, nil
	}
	callerUser, err := s.UserForAgent(ctx, tx, agentID)
	if err != nil || callerUser == "" {
		return false, err
	}
	coordinators, err := s.OrganizationCoordinators(ctx, tx, orgID)
	if err != nil {
		return false, err
	}
	for _, c := range coordinators {
		if c == callerUser {
			return true, nil
		}
	}
	return false, nil
}
