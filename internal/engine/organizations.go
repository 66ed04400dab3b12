package engine

import (
	"context"
	"database/sql"
	"fmt"

	"offerline/internal/admin"
	"offerline/internal/config"
	"offerline/internal/domain"
	"offerline/internal/events"
	"offerline/internal/status"
	"offerline/internal/store"
)

type AlreadyMemberError struct{ UserID string }

func (e AlreadyMemberError) Error() string {
	return fmt.Sprintf("user %s is already a member", e.UserID)
}

type AlreadyCoordinatorError struct{ UserID string }

func (e AlreadyCoordinatorError) Error() string {
	return fmt.Sprintf("user %s is already a coordinator", e.UserID)
}

type NotMemberError struct{ UserID string }

func (e NotMemberError) Error() string {
	return fmt.Sprintf("user %s is not a member", e.UserID)
}

type NotCoordinatorError struct{ UserID string }

func (e NotCoordinatorError) Error() string {
	return fmt.Sprintf("user %s is not a coordinator", e.UserID)
}

type LastMemberError struct{}

func (e LastMemberError) Error() string { return "cannot remove the last member" }

type LastCoordinatorError struct{}

func (e LastCoordinatorError) Error() string { return "cannot remove the last coordinator" }

// OrganizationRecord pairs a decoded organization with its latest revision.
type OrganizationRecord struct {
	Organization domain.Organization
	Revision     store.Revision
}

// CreateOrganization creates a pending organization whose creating user is its
// first member and coordinator. The caller must be an accepted user.
func (e *Engine) CreateOrganization(ctx context.Context, org domain.Organization, agentID string) (OrganizationRecord, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return OrganizationRecord{}, err
	}
	defer tx.Rollback()

	userID, err := e.RequireAcceptedUser(ctx, tx, "create organization", agentID)
	if err != nil {
		return OrganizationRecord{}, err
	}
	rev, err := e.Store.Create(ctx, tx, domain.KindOrganization, org, agentID)
	if err != nil {
		return OrganizationRecord{}, err
	}
	if _, err := e.Status.CreateTx(ctx, tx, domain.KindOrganization, rev.ID, agentID); err != nil {
		return OrganizationRecord{}, err
	}
	if userID != "" {
		if _, err := e.Store.CreateEdge(ctx, tx, rev.ID, userID, EdgeTypeMember, ""); err != nil {
			return OrganizationRecord{}, err
		}
		if _, err := e.Store.CreateEdge(ctx, tx, rev.ID, userID, EdgeTypeCoordinator, ""); err != nil {
			return OrganizationRecord{}, err
		}
	}
	err = e.Events.Append(ctx, tx, "organization.created", domain.KindOrganization, rev.ID, agentID, events.EventPayload{"name": org.Name})
	if err != nil {
		return OrganizationRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return OrganizationRecord{}, err
	}
	return OrganizationRecord{Organization: org, Revision: rev}, nil
}

// GetLatestOrganization returns the current revision of an organization.
func (e *Engine) GetLatestOrganization(ctx context.Context, id string) (OrganizationRecord, error) {
	var org domain.Organization
	rev, err := latestAs(ctx, nil, e.Store, id, &org)
	if err != nil {
		return OrganizationRecord{}, err
	}
	return OrganizationRecord{Organization: org, Revision: rev}, nil
}

// UpdateOrganization supersedes an organization. Coordinator or administrator only.
func (e *Engine) UpdateOrganization(ctx context.Context, id string, org domain.Organization, agentID string) (OrganizationRecord, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return OrganizationRecord{}, err
	}
	defer tx.Rollback()

	original, err := e.Store.ResolveOriginal(ctx, tx, id)
	if err != nil {
		return OrganizationRecord{}, err
	}
	if err := e.requireCoordinatorOrAdmin(ctx, tx, "update organization", original, agentID); err != nil {
		return OrganizationRecord{}, err
	}
	latest, err := e.Store.Latest(ctx, tx, original)
	if err != nil {
		return OrganizationRecord{}, err
	}
	rev, err := e.Store.Update(ctx, tx, latest.ID, org, agentID)
	if err != nil {
		return OrganizationRecord{}, err
	}
	err = e.Events.Append(ctx, tx, "organization.updated", domain.KindOrganization, original, agentID, nil)
	if err != nil {
		return OrganizationRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return OrganizationRecord{}, err
	}
	return OrganizationRecord{Organization: org, Revision: rev}, nil
}

// DeleteOrganization removes an organization per the configured deletion
// policy. Coordinator or administrator only.
func (e *Engine) DeleteOrganization(ctx context.Context, id, agentID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	original, err := e.Store.ResolveOriginal(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := e.requireCoordinatorOrAdmin(ctx, tx, "delete organization", original, agentID); err != nil {
		return err
	}
	if err := e.deleteEntityTx(ctx, tx, domain.KindOrganization, original, agentID); err != nil {
		return err
	}
	return tx.Commit()
}

// deleteEntityTx applies the per-kind deletion policy: archive flips the
// status, purge tombstones the chain and drops all edges and bucket entries.
func (e *Engine) deleteEntityTx(ctx context.Context, tx *sql.Tx, kind, original, agentID string) error {
	policy := e.Config.DeletionPolicy(kind)
	if policy == config.DeletionArchive {
		_, err := e.Status.UpdateTx(ctx, tx, status.UpdateRequest{
			Kind:     kind,
			EntityID: original,
			New:      status.NewArchived(),
			ActorID:  agentID,
		})
		return err
	}
	if err := e.Store.RemoveFromBucket(ctx, tx, status.StatusBucket(kind), original); err != nil {
		return err
	}
	if err := e.Store.RemoveFromBucket(ctx, tx, status.AcceptedBucket(kind), original); err != nil {
		return err
	}
	if err := e.Store.Purge(ctx, tx, original); err != nil {
		return err
	}
	return e.Events.Append(ctx, tx, kind+".deleted", kind, original, agentID, nil)
}

// requireCoordinatorOrAdmin admits coordinators of the organization and
// administrators.
func (e *Engine) requireCoordinatorOrAdmin(ctx context.Context, tx *sql.Tx, action, orgID, agentID string) error {
	if ok, err := e.Admin.IsAgentAdministrator(ctx, tx, agentID); err != nil {
		return err
	} else if ok {
		return nil
	}
	userID, err := e.userIDForAgent(ctx, tx, agentID)
	if err != nil {
		return err
	}
	if userID != "" {
		if ok, err := e.isCoordinator(ctx, tx, orgID, userID); err != nil {
			return err
		} else if ok {
			return nil
		}
	}
	return admin.UnauthorizedError{Action: action}
}

func (e *Engine) isMember(ctx context.Context, tx *sql.Tx, orgID, userID string) (bool, error) {
	edges, err := e.Store.Edges(ctx, tx, orgID, EdgeTypeMember)
	if err != nil {
		return false, err
	}
	for _, edge := range edges {
		if edge.To == userID {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) isCoordinator(ctx context.Context, tx *sql.Tx, orgID, userID string) (bool, error) {
	edges, err := e.Store.Edges(ctx, tx, orgID, EdgeTypeCoordinator)
	if err != nil {
		return false, err
	}
	for _, edge := range edges {
		if edge.To == userID {
			return true, nil
		}
	}
	return false, nil
}

// coordinatorIDs backs the admin authorizer's organization hook.
func (e *Engine) coordinatorIDs(ctx context.Context, tx *sql.Tx, orgID string) ([]string, error) {
	original, err := e.Store.ResolveOriginal(ctx, tx, orgID)
	if err != nil {
		return nil, err
	}
	edges, err := e.Store.Edges(ctx, tx, original, EdgeTypeCoordinator)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(edges))
	for _, edge := range edges {
		ids = append(ids, edge.To)
	}
	return ids, nil
}

// AddMember adds a user to an organization. Coordinator or administrator only.
func (e *Engine) AddMember(ctx context.Context, orgID, userID, agentID string) error {
	return e.memberOp(ctx, orgID, userID, agentID, "organization.member_added", func(ctx context.Context, tx *sql.Tx, org, user string) error {
		in, err := e.isMember(ctx, tx, org, user)
		if err != nil {
			return err
		}
		if in {
			return AlreadyMemberError{UserID: user}
		}
		_, err = e.Store.CreateEdge(ctx, tx, org, user, EdgeTypeMember, "")
		return err
	})
}

// RemoveMember removes a user from an organization, dropping any coordinator
// role with it. The last member cannot be removed.
func (e *Engine) RemoveMember(ctx context.Context, orgID, userID, agentID string) error {
	return e.memberOp(ctx, orgID, userID, agentID, "organization.member_removed", func(ctx context.Context, tx *sql.Tx, org, user string) error {
		return e.removeMemberTx(ctx, tx, org, user)
	})
}

func (e *Engine) removeMemberTx(ctx context.Context, tx *sql.Tx, org, user string) error {
	in, err := e.isMember(ctx, tx, org, user)
	if err != nil {
		return err
	}
	if !in {
		return NotMemberError{UserID: user}
	}
	members, err := e.Store.Edges(ctx, tx, org, EdgeTypeMember)
	if err != nil {
		return err
	}
	if len(members) == 1 {
		return LastMemberError{}
	}
	coordinator, err := e.isCoordinator(ctx, tx, org, user)
	if err != nil {
		return err
	}
	if coordinator {
		coordinators, err := e.Store.Edges(ctx, tx, org, EdgeTypeCoordinator)
		if err != nil {
			return err
		}
		if len(coordinators) == 1 {
			return LastCoordinatorError{}
		}
		if err := e.Store.DeleteEdges(ctx, tx, org, user, EdgeTypeCoordinator); err != nil {
			return err
		}
	}
	return e.Store.DeleteEdges(ctx, tx, org, user, EdgeTypeMember)
}

// AddCoordinator promotes a member to coordinator.
func (e *Engine) AddCoordinator(ctx context.Context, orgID, userID, agentID string) error {
	return e.memberOp(ctx, orgID, userID, agentID, "organization.coordinator_added", func(ctx context.Context, tx *sql.Tx, org, user string) error {
		member, err := e.isMember(ctx, tx, org, user)
		if err != nil {
			return err
		}
		if !member {
			return NotMemberError{UserID: user}
		}
		coordinator, err := e.isCoordinator(ctx, tx, org, user)
		if err != nil {
			return err
		}
		if coordinator {
			return AlreadyCoordinatorError{UserID: user}
		}
		_, err = e.Store.CreateEdge(ctx, tx, org, user, EdgeTypeCoordinator, "")
		return err
	})
}

// RemoveCoordinator demotes a coordinator to plain member. The last
// coordinator cannot be removed.
func (e *Engine) RemoveCoordinator(ctx context.Context, orgID, userID, agentID string) error {
	return e.memberOp(ctx, orgID, userID, agentID, "organization.coordinator_removed", func(ctx context.Context, tx *sql.Tx, org, user string) error {
		coordinator, err := e.isCoordinator(ctx, tx, org, user)
		if err != nil {
			return err
		}
		if !coordinator {
			return NotCoordinatorError{UserID: user}
		}
		coordinators, err := e.Store.Edges(ctx, tx, org, EdgeTypeCoordinator)
		if err != nil {
			return err
		}
		if len(coordinators) == 1 {
			return LastCoordinatorError{}
		}
		return e.Store.DeleteEdges(ctx, tx, org, user, EdgeTypeCoordinator)
	})
}

// memberOp wraps a membership mutation in authorization, transaction and event.
func (e *Engine) memberOp(ctx context.Context, orgID, userID, agentID, eventType string, op func(ctx context.Context, tx *sql.Tx, org, user string) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	org, err := e.Store.ResolveOriginal(ctx, tx, orgID)
	if err != nil {
		return err
	}
	user, err := e.Store.ResolveOriginal(ctx, tx, userID)
	if err != nil {
		return err
	}
	if err := e.requireCoordinatorOrAdmin(ctx, tx, eventType, org, agentID); err != nil {
		return err
	}
	if err := op(ctx, tx, org, user); err != nil {
		return err
	}
	err = e.Events.Append(ctx, tx, eventType, domain.KindOrganization, org, agentID, events.EventPayload{"user_id": user})
	if err != nil {
		return err
	}
	return tx.Commit()
}

// LeaveOrganization removes the caller's own user from an organization.
func (e *Engine) LeaveOrganization(ctx context.Context, orgID, agentID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	org, err := e.Store.ResolveOriginal(ctx, tx, orgID)
	if err != nil {
		return err
	}
	userID, err := e.userIDForAgent(ctx, tx, agentID)
	if err != nil {
		return err
	}
	if userID == "" {
		return NotMemberError{UserID: agentID}
	}
	if err := e.removeMemberTx(ctx, tx, org, userID); err != nil {
		return err
	}
	err = e.Events.Append(ctx, tx, "organization.member_left", domain.KindOrganization, org, agentID, events.EventPayload{"user_id": userID})
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Members lists the user ids of an organization's members.
func (e *Engine) Members(ctx context.Context, orgID string) ([]string, error) {
	return e.membershipList(ctx, orgID, EdgeTypeMember)
}

// Coordinators lists the user ids of an organization's coordinators.
func (e *Engine) Coordinators(ctx context.Context, orgID string) ([]string, error) {
	return e.membershipList(ctx, orgID, EdgeTypeCoordinator)
}

func (e *Engine) membershipList(ctx context.Context, orgID, edgeType string) ([]string, error) {
	original, err := e.Store.ResolveOriginal(ctx, nil, orgID)
	if err != nil {
		return nil, err
	}
	edges, err := e.Store.Edges(ctx, nil, original, edgeType)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(edges))
	for _, edge := range edges {
		ids = append(ids, edge.To)
	}
	return ids, nil
}

// OrganizationsForUser lists organizations the user belongs to.
func (e *Engine) OrganizationsForUser(ctx context.Context, userID string) ([]string, error) {
	original, err := e.Store.ResolveOriginal(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	edges, err := e.Store.EdgesTo(ctx, nil, original, EdgeTypeMember)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(edges))
	for _, edge := range edges {
		ids = append(ids, edge.From)
	}
	return ids, nil
}

// ListOrganizations returns every status-tracked organization.
func (e *Engine) ListOrganizations(ctx context.Context) ([]OrganizationRecord, error) {
	ids, err := e.Status.All(ctx, nil, domain.KindOrganization)
	if err != nil {
		return nil, err
	}
	return e.organizationRecords(ctx, ids)
}

// AcceptedOrganizations returns the organizations in the accepted bucket.
func (e *Engine) AcceptedOrganizations(ctx context.Context) ([]OrganizationRecord, error) {
	ids, err := e.Status.Accepted(ctx, nil, domain.KindOrganization)
	if err != nil {
		return nil, err
	}
	return e.organizationRecords(ctx, ids)
}

func (e *Engine) organizationRecords(ctx context.Context, ids []string) ([]OrganizationRecord, error) {
	res := make([]OrganizationRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := e.GetLatestOrganization(ctx, id)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, nil
}

// IsOrganizationAccepted reports accepted-bucket membership.
func (e *Engine) IsOrganizationAccepted(ctx context.Context, id string) (bool, error) {
	return e.Status.IsAccepted(ctx, nil, domain.KindOrganization, id)
}
