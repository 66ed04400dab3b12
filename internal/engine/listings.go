package engine

import (
	"context"
	"database/sql"
	"fmt"

	"offerline/internal/domain"
	"offerline/internal/events"
	"offerline/internal/status"
)

// LinkTargetNotAcceptedError refuses links to entities that are not accepted.
type LinkTargetNotAcceptedError struct {
	Kind string
	ID   string
}

func (e LinkTargetNotAcceptedError) Error() string {
	return fmt.Sprintf("%s %s is not accepted", e.Kind, e.ID)
}

// createListing is the shared create path for requests and offers: author
// check, owner edges, eager pending status, initial links.
func (e *Engine) createListing(ctx context.Context, kind string, content any, orgID string, serviceTypeIDs, mediumIDs []string, agentID string) (string, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	userID, err := e.RequireAcceptedUser(ctx, tx, "create "+kind, agentID)
	if err != nil {
		return "", err
	}
	if orgID != "" {
		orgID, err = e.Store.ResolveOriginal(ctx, tx, orgID)
		if err != nil {
			return "", err
		}
		if err := e.requireCoordinatorOrAdmin(ctx, tx, "create "+kind+" for organization", orgID, agentID); err != nil {
			return "", err
		}
	}
	rev, err := e.Store.Create(ctx, tx, kind, content, agentID)
	if err != nil {
		return "", err
	}
	if userID != "" {
		if _, err := e.Store.CreateEdge(ctx, tx, rev.ID, userID, EdgeTypeOwner, ""); err != nil {
			return "", err
		}
	}
	if orgID != "" {
		if _, err := e.Store.CreateEdge(ctx, tx, rev.ID, orgID, EdgeTypeOwner, "organization"); err != nil {
			return "", err
		}
	}
	if _, err := e.Status.CreateTx(ctx, tx, kind, rev.ID, agentID); err != nil {
		return "", err
	}
	if err := e.reconcileLinksTx(ctx, tx, rev.ID, EdgeTypeServiceType, domain.KindServiceType, serviceTypeIDs); err != nil {
		return "", err
	}
	if err := e.reconcileLinksTx(ctx, tx, rev.ID, EdgeTypeMedium, domain.KindMediumOfExchange, mediumIDs); err != nil {
		return "", err
	}
	if err := e.Events.Append(ctx, tx, kind+".created", kind, rev.ID, agentID, nil); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return rev.ID, nil
}

// reconcileLinksTx replaces the outgoing links of one edge type with the
// given accepted targets: remove everything, then re-link.
func (e *Engine) reconcileLinksTx(ctx context.Context, tx *sql.Tx, entityID, edgeType, targetKind string, targetIDs []string) error {
	original, err := e.Store.ResolveOriginal(ctx, tx, entityID)
	if err != nil {
		return err
	}
	existing, err := e.Store.Edges(ctx, tx, original, edgeType)
	if err != nil {
		return err
	}
	for _, edge := range existing {
		if err := e.Store.DeleteEdge(ctx, tx, edge.ID); err != nil {
			return err
		}
	}
	seen := make(map[string]bool, len(targetIDs))
	for _, id := range targetIDs {
		target, err := e.Store.ResolveOriginal(ctx, tx, id)
		if err != nil {
			return err
		}
		if seen[target] {
			continue
		}
		seen[target] = true
		accepted, err := e.Store.InBucket(ctx, tx, status.AcceptedBucket(targetKind), target)
		if err != nil {
			return err
		}
		if !accepted {
			return LinkTargetNotAcceptedError{Kind: targetKind, ID: target}
		}
		if _, err := e.Store.CreateEdge(ctx, tx, original, target, edgeType, ""); err != nil {
			return err
		}
	}
	return nil
}

// updateListing supersedes a request or offer. Author or administrator only;
// organization-owned listings follow the authorship policy.
func (e *Engine) updateListing(ctx context.Context, kind, id string, content any, agentID string) (string, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	original, err := e.Store.ResolveOriginal(ctx, tx, id)
	if err != nil {
		return "", err
	}
	orgID, err := e.listingOrganization(ctx, tx, original)
	if err != nil {
		return "", err
	}
	if err := e.authorizeMutation(ctx, tx, "update "+kind, original, orgID, agentID); err != nil {
		return "", err
	}
	latest, err := e.Store.Latest(ctx, tx, original)
	if err != nil {
		return "", err
	}
	rev, err := e.Store.Update(ctx, tx, latest.ID, content, agentID)
	if err != nil {
		return "", err
	}
	if err := e.Events.Append(ctx, tx, kind+".updated", kind, original, agentID, nil); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return rev.ID, nil
}

// deleteListing removes a request or offer per the configured policy.
func (e *Engine) deleteListing(ctx context.Context, kind, id, agentID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	original, err := e.Store.ResolveOriginal(ctx, tx, id)
	if err != nil {
		return err
	}
	orgID, err := e.listingOrganization(ctx, tx, original)
	if err != nil {
		return err
	}
	if err := e.authorizeMutation(ctx, tx, "delete "+kind, original, orgID, agentID); err != nil {
		return err
	}
	if err := e.deleteEntityTx(ctx, tx, kind, original, agentID); err != nil {
		return err
	}
	return tx.Commit()
}

// updateListingLinks is the authorized wrapper around reconcileLinksTx.
func (e *Engine) updateListingLinks(ctx context.Context, kind, id, edgeType, targetKind string, targetIDs []string, agentID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	original, err := e.Store.ResolveOriginal(ctx, tx, id)
	if err != nil {
		return err
	}
	orgID, err := e.listingOrganization(ctx, tx, original)
	if err != nil {
		return err
	}
	if err := e.authorizeMutation(ctx, tx, "update "+kind+" links", original, orgID, agentID); err != nil {
		return err
	}
	if err := e.reconcileLinksTx(ctx, tx, original, edgeType, targetKind, targetIDs); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, kind+".links_updated", kind, original, agentID, events.EventPayload{"edge_type": edgeType}); err != nil {
		return err
	}
	return tx.Commit()
}

// listingOrganization returns the owning organization's id, if any.
func (e *Engine) listingOrganization(ctx context.Context, tx *sql.Tx, original string) (string, error) {
	edges, err := e.Store.EdgesTagged(ctx, tx, original, EdgeTypeOwner, "organization")
	if err != nil {
		return "", err
	}
	if len(edges) == 0 {
		return "", nil
	}
	return edges[0].To, nil
}

// listingsOwnedBy lists ids of one kind owned by a user or organization.
func (e *Engine) listingsOwnedBy(ctx context.Context, ownerID, kind string) ([]string, error) {
	original, err := e.Store.ResolveOriginal(ctx, nil, ownerID)
	if err != nil {
		return nil, err
	}
	edges, err := e.Store.EdgesTo(ctx, nil, original, EdgeTypeOwner)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, edge := range edges {
		rev, err := e.Store.Get(ctx, nil, edge.From)
		if err != nil {
			return nil, err
		}
		if rev.Kind == kind && !rev.Deleted {
			ids = append(ids, edge.From)
		}
	}
	return ids, nil
}
