package engine

import (
	"context"
	"database/sql"

	"offerline/internal/domain"
	"offerline/internal/events"
	"offerline/internal/status"
	"offerline/internal/store"
)

// MediumRecord pairs a decoded medium of exchange with its latest revision.
type MediumRecord struct {
	Medium   domain.MediumOfExchange
	Revision store.Revision
}

// SuggestMedium lets any accepted user propose a medium of exchange; it
// starts pending.
func (e *Engine) SuggestMedium(ctx context.Context, m domain.MediumOfExchange, agentID string) (MediumRecord, error) {
	return e.createMedium(ctx, m, agentID, false)
}

// CreateMedium is the administrator path: the medium is accepted immediately.
func (e *Engine) CreateMedium(ctx context.Context, m domain.MediumOfExchange, agentID string) (MediumRecord, error) {
	return e.createMedium(ctx, m, agentID, true)
}

func (e *Engine) createMedium(ctx context.Context, m domain.MediumOfExchange, agentID string, asAdmin bool) (MediumRecord, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return MediumRecord{}, err
	}
	defer tx.Rollback()

	if asAdmin {
		if err := e.requireAdmin(ctx, tx, "create medium of exchange", agentID); err != nil {
			return MediumRecord{}, err
		}
	} else {
		if _, err := e.RequireAcceptedUser(ctx, tx, "suggest medium of exchange", agentID); err != nil {
			return MediumRecord{}, err
		}
	}
	rev, err := e.Store.Create(ctx, tx, domain.KindMediumOfExchange, m, agentID)
	if err != nil {
		return MediumRecord{}, err
	}
	if _, err := e.Status.CreateTx(ctx, tx, domain.KindMediumOfExchange, rev.ID, agentID); err != nil {
		return MediumRecord{}, err
	}
	if asAdmin {
		_, err = e.Status.UpdateTx(ctx, tx, status.UpdateRequest{
			Kind:     domain.KindMediumOfExchange,
			EntityID: rev.ID,
			New:      status.NewAccepted(),
			ActorID:  agentID,
		})
		if err != nil {
			return MediumRecord{}, err
		}
	}
	err = e.Events.Append(ctx, tx, "medium.created", domain.KindMediumOfExchange, rev.ID, agentID, events.EventPayload{"code": m.Code})
	if err != nil {
		return MediumRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return MediumRecord{}, err
	}
	return MediumRecord{Medium: m, Revision: rev}, nil
}

// GetLatestMedium returns the current revision of a medium of exchange.
func (e *Engine) GetLatestMedium(ctx context.Context, id string) (MediumRecord, error) {
	var m domain.MediumOfExchange
	rev, err := latestAs(ctx, nil, e.Store, id, &m)
	if err != nil {
		return MediumRecord{}, err
	}
	return MediumRecord{Medium: m, Revision: rev}, nil
}

// UpdateMedium supersedes a medium of exchange. Administrator only.
func (e *Engine) UpdateMedium(ctx context.Context, id string, m domain.MediumOfExchange, agentID string) (MediumRecord, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return MediumRecord{}, err
	}
	defer tx.Rollback()

	if err := e.requireAdmin(ctx, tx, "update medium of exchange", agentID); err != nil {
		return MediumRecord{}, err
	}
	original, err := e.Store.ResolveOriginal(ctx, tx, id)
	if err != nil {
		return MediumRecord{}, err
	}
	latest, err := e.Store.Latest(ctx, tx, original)
	if err != nil {
		return MediumRecord{}, err
	}
	rev, err := e.Store.Update(ctx, tx, latest.ID, m, agentID)
	if err != nil {
		return MediumRecord{}, err
	}
	err = e.Events.Append(ctx, tx, "medium.updated", domain.KindMediumOfExchange, original, agentID, nil)
	if err != nil {
		return MediumRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return MediumRecord{}, err
	}
	return MediumRecord{Medium: m, Revision: rev}, nil
}

// DeleteMedium removes a medium of exchange per policy. Administrator only.
func (e *Engine) DeleteMedium(ctx context.Context, id, agentID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.requireAdmin(ctx, tx, "delete medium of exchange", agentID); err != nil {
		return err
	}
	original, err := e.Store.ResolveOriginal(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := e.deleteEntityTx(ctx, tx, domain.KindMediumOfExchange, original, agentID); err != nil {
		return err
	}
	return tx.Commit()
}

// ApproveMedium accepts a suggested medium of exchange.
func (e *Engine) ApproveMedium(ctx context.Context, id, agentID string) error {
	_, err := e.Status.Update(ctx, status.UpdateRequest{
		Kind:     domain.KindMediumOfExchange,
		EntityID: id,
		New:      status.NewAccepted(),
		ActorID:  agentID,
	})
	return err
}

// RejectMedium rejects a suggested medium of exchange.
func (e *Engine) RejectMedium(ctx context.Context, id, reason, agentID string) error {
	_, err := e.Status.Update(ctx, status.UpdateRequest{
		Kind:     domain.KindMediumOfExchange,
		EntityID: id,
		New:      status.NewRejected(reason),
		ActorID:  agentID,
	})
	return err
}

// ListMediums returns every status-tracked medium of exchange.
func (e *Engine) ListMediums(ctx context.Context) ([]MediumRecord, error) {
	ids, err := e.Status.All(ctx, nil, domain.KindMediumOfExchange)
	if err != nil {
		return nil, err
	}
	return e.mediumRecords(ctx, ids)
}

// PendingMediums returns suggested mediums awaiting review.
func (e *Engine) PendingMediums(ctx context.Context) ([]MediumRecord, error) {
	return e.mediumsWithStatus(ctx, status.Pending)
}

// ApprovedMediums returns the accepted mediums of exchange.
func (e *Engine) ApprovedMediums(ctx context.Context) ([]MediumRecord, error) {
	ids, err := e.Status.Accepted(ctx, nil, domain.KindMediumOfExchange)
	if err != nil {
		return nil, err
	}
	return e.mediumRecords(ctx, ids)
}

// RejectedMediums returns the rejected mediums of exchange.
func (e *Engine) RejectedMediums(ctx context.Context) ([]MediumRecord, error) {
	return e.mediumsWithStatus(ctx, status.Rejected)
}

func (e *Engine) mediumsWithStatus(ctx context.Context, statusType string) ([]MediumRecord, error) {
	all, err := e.Status.All(ctx, nil, domain.KindMediumOfExchange)
	if err != nil {
		return nil, err
	}
	var res []MediumRecord
	for _, id := range all {
		st, _, err := e.Status.Latest(ctx, domain.KindMediumOfExchange, id)
		if err != nil {
			return nil, err
		}
		if st.StatusType != statusType {
			continue
		}
		rec, err := e.GetLatestMedium(ctx, id)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, nil
}

// IsMediumApproved reports accepted-bucket membership.
func (e *Engine) IsMediumApproved(ctx context.Context, id string) (bool, error) {
	return e.Status.IsAccepted(ctx, nil, domain.KindMediumOfExchange, id)
}

func (e *Engine) mediumRecords(ctx context.Context, ids []string) ([]MediumRecord, error) {
	res := make([]MediumRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := e.GetLatestMedium(ctx, id)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, nil
}

// RequestsForMedium lists request ids linked to a medium of exchange.
func (e *Engine) RequestsForMedium(ctx context.Context, id string) ([]string, error) {
	return e.linkedFrom(ctx, id, EdgeTypeMedium, domain.KindRequest)
}

// OffersForMedium lists offer ids linked to a medium of exchange.
func (e *Engine) OffersForMedium(ctx context.Context, id string) ([]string, error) {
	return e.linkedFrom(ctx, id, EdgeTypeMedium, domain.KindOffer)
}

// MediumsForEntity lists medium ids linked from a request or offer.
func (e *Engine) MediumsForEntity(ctx context.Context, entityID string) ([]string, error) {
	return e.linkTargets(ctx, nil, entityID, EdgeTypeMedium)
}

func (e *Engine) linkTargets(ctx context.Context, tx *sql.Tx, entityID, edgeType string) ([]string, error) {
	original, err := e.Store.ResolveOriginal(ctx, tx, entityID)
	if err != nil {
		return nil, err
	}
	edges, err := e.Store.Edges(ctx, tx, original, edgeType)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(edges))
	for _, edge := range edges {
		ids = append(ids, edge.To)
	}
	return ids, nil
}
