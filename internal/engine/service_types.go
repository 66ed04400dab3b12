package engine

import (
	"context"
	"database/sql"

	"offerline/internal/domain"
	"offerline/internal/events"
	"offerline/internal/status"
	"offerline/internal/store"
)

// Tag buckets. Each tag owns a bucket of service types; the registry bucket
// records every tag ever indexed so listing tags never scans entities.
const AllTagsBucket = "service_types.all_tags"

func tagBucket(tag string) string { return "service_types.tags." + tag }

// ServiceTypeRecord pairs a decoded service type with its latest revision.
type ServiceTypeRecord struct {
	ServiceType domain.ServiceType
	Revision    store.Revision
}

// SuggestServiceType lets any accepted user propose a service type; it starts
// pending and waits for administrator approval.
func (e *Engine) SuggestServiceType(ctx context.Context, st domain.ServiceType, agentID string) (ServiceTypeRecord, error) {
	return e.createServiceType(ctx, st, agentID, false)
}

// CreateServiceType is the administrator path: the service type is accepted
// immediately.
func (e *Engine) CreateServiceType(ctx context.Context, st domain.ServiceType, agentID string) (ServiceTypeRecord, error) {
	return e.createServiceType(ctx, st, agentID, true)
}

func (e *Engine) createServiceType(ctx context.Context, st domain.ServiceType, agentID string, asAdmin bool) (ServiceTypeRecord, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ServiceTypeRecord{}, err
	}
	defer tx.Rollback()

	if asAdmin {
		if err := e.requireAdmin(ctx, tx, "create service type", agentID); err != nil {
			return ServiceTypeRecord{}, err
		}
	} else {
		if _, err := e.RequireAcceptedUser(ctx, tx, "suggest service type", agentID); err != nil {
			return ServiceTypeRecord{}, err
		}
	}
	rev, err := e.Store.Create(ctx, tx, domain.KindServiceType, st, agentID)
	if err != nil {
		return ServiceTypeRecord{}, err
	}
	if _, err := e.Status.CreateTx(ctx, tx, domain.KindServiceType, rev.ID, agentID); err != nil {
		return ServiceTypeRecord{}, err
	}
	if asAdmin {
		_, err = e.Status.UpdateTx(ctx, tx, status.UpdateRequest{
			Kind:     domain.KindServiceType,
			EntityID: rev.ID,
			New:      status.NewAccepted(),
			ActorID:  agentID,
		})
		if err != nil {
			return ServiceTypeRecord{}, err
		}
	}
	if err := e.indexTags(ctx, tx, rev.ID, nil, st.Tags); err != nil {
		return ServiceTypeRecord{}, err
	}
	err = e.Events.Append(ctx, tx, "service_type.created", domain.KindServiceType, rev.ID, agentID, events.EventPayload{"name": st.Name})
	if err != nil {
		return ServiceTypeRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return ServiceTypeRecord{}, err
	}
	return ServiceTypeRecord{ServiceType: st, Revision: rev}, nil
}

// indexTags reconciles the tag buckets of a service type: membership is
// dropped for tags no longer present and added for new ones. A tag is added
// to the registry only when not already there.
func (e *Engine) indexTags(ctx context.Context, tx *sql.Tx, entityID string, prev, next []string) error {
	keep := make(map[string]bool, len(next))
	for _, tag := range next {
		keep[tag] = true
	}
	for _, tag := range prev {
		if keep[tag] {
			continue
		}
		if err := e.Store.RemoveFromBucket(ctx, tx, tagBucket(tag), entityID); err != nil {
			return err
		}
	}
	for _, tag := range next {
		if tag == "" {
			continue
		}
		registered, err := e.Store.InBucket(ctx, tx, AllTagsBucket, tag)
		if err != nil {
			return err
		}
		if !registered {
			if err := e.Store.AddToBucket(ctx, tx, AllTagsBucket, tag); err != nil {
				return err
			}
		}
		if err := e.Store.AddToBucket(ctx, tx, tagBucket(tag), entityID); err != nil {
			return err
		}
	}
	return nil
}

// GetLatestServiceType returns the current revision of a service type.
func (e *Engine) GetLatestServiceType(ctx context.Context, id string) (ServiceTypeRecord, error) {
	var st domain.ServiceType
	rev, err := latestAs(ctx, nil, e.Store, id, &st)
	if err != nil {
		return ServiceTypeRecord{}, err
	}
	return ServiceTypeRecord{ServiceType: st, Revision: rev}, nil
}

// UpdateServiceType supersedes a service type and reconciles its tag index.
// Administrator only.
func (e *Engine) UpdateServiceType(ctx context.Context, id string, st domain.ServiceType, agentID string) (ServiceTypeRecord, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ServiceTypeRecord{}, err
	}
	defer tx.Rollback()

	if err := e.requireAdmin(ctx, tx, "update service type", agentID); err != nil {
		return ServiceTypeRecord{}, err
	}
	original, err := e.Store.ResolveOriginal(ctx, tx, id)
	if err != nil {
		return ServiceTypeRecord{}, err
	}
	latest, err := e.Store.Latest(ctx, tx, original)
	if err != nil {
		return ServiceTypeRecord{}, err
	}
	var prior domain.ServiceType
	if err := latest.Decode(&prior); err != nil {
		return ServiceTypeRecord{}, err
	}
	rev, err := e.Store.Update(ctx, tx, latest.ID, st, agentID)
	if err != nil {
		return ServiceTypeRecord{}, err
	}
	if err := e.indexTags(ctx, tx, original, prior.Tags, st.Tags); err != nil {
		return ServiceTypeRecord{}, err
	}
	err = e.Events.Append(ctx, tx, "service_type.updated", domain.KindServiceType, original, agentID, nil)
	if err != nil {
		return ServiceTypeRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return ServiceTypeRecord{}, err
	}
	return ServiceTypeRecord{ServiceType: st, Revision: rev}, nil
}

// DeleteServiceType removes a service type and its tag index entries.
// Administrator only.
func (e *Engine) DeleteServiceType(ctx context.Context, id, agentID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.requireAdmin(ctx, tx, "delete service type", agentID); err != nil {
		return err
	}
	original, err := e.Store.ResolveOriginal(ctx, tx, id)
	if err != nil {
		return err
	}
	latest, err := e.Store.Latest(ctx, tx, original)
	if err != nil {
		return err
	}
	var st domain.ServiceType
	if err := latest.Decode(&st); err != nil {
		return err
	}
	if err := e.indexTags(ctx, tx, original, st.Tags, nil); err != nil {
		return err
	}
	if err := e.deleteEntityTx(ctx, tx, domain.KindServiceType, original, agentID); err != nil {
		return err
	}
	return tx.Commit()
}

// ApproveServiceType accepts a pending service type.
func (e *Engine) ApproveServiceType(ctx context.Context, id, agentID string) error {
	_, err := e.Status.Update(ctx, status.UpdateRequest{
		Kind:     domain.KindServiceType,
		EntityID: id,
		New:      status.NewAccepted(),
		ActorID:  agentID,
	})
	return err
}

// RejectServiceType rejects a pending service type.
func (e *Engine) RejectServiceType(ctx context.Context, id, reason, agentID string) error {
	_, err := e.Status.Update(ctx, status.UpdateRequest{
		Kind:     domain.KindServiceType,
		EntityID: id,
		New:      status.NewRejected(reason),
		ActorID:  agentID,
	})
	return err
}

// ListServiceTypes returns every status-tracked service type.
func (e *Engine) ListServiceTypes(ctx context.Context) ([]ServiceTypeRecord, error) {
	ids, err := e.Status.All(ctx, nil, domain.KindServiceType)
	if err != nil {
		return nil, err
	}
	return e.serviceTypeRecords(ctx, ids)
}

// AcceptedServiceTypes returns the approved service types.
func (e *Engine) AcceptedServiceTypes(ctx context.Context) ([]ServiceTypeRecord, error) {
	ids, err := e.Status.Accepted(ctx, nil, domain.KindServiceType)
	if err != nil {
		return nil, err
	}
	return e.serviceTypeRecords(ctx, ids)
}

// ServiceTypesByTag returns the service types indexed under a tag.
func (e *Engine) ServiceTypesByTag(ctx context.Context, tag string) ([]ServiceTypeRecord, error) {
	ids, err := e.Store.BucketMembers(ctx, nil, tagBucket(tag))
	if err != nil {
		return nil, err
	}
	return e.serviceTypeRecords(ctx, ids)
}

// AllTags lists every tag in the registry.
func (e *Engine) AllTags(ctx context.Context) ([]string, error) {
	return e.Store.BucketMembers(ctx, nil, AllTagsBucket)
}

func (e *Engine) serviceTypeRecords(ctx context.Context, ids []string) ([]ServiceTypeRecord, error) {
	res := make([]ServiceTypeRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := e.GetLatestServiceType(ctx, id)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, nil
}

// RequestsForServiceType lists request ids linked to a service type.
func (e *Engine) RequestsForServiceType(ctx context.Context, id string) ([]string, error) {
	return e.linkedFrom(ctx, id, EdgeTypeServiceType, domain.KindRequest)
}

// OffersForServiceType lists offer ids linked to a service type.
func (e *Engine) OffersForServiceType(ctx context.Context, id string) ([]string, error) {
	return e.linkedFrom(ctx, id, EdgeTypeServiceType, domain.KindOffer)
}

// linkedFrom walks reverse edges of a type and keeps sources of one kind.
func (e *Engine) linkedFrom(ctx context.Context, id, edgeType, kind string) ([]string, error) {
	original, err := e.Store.ResolveOriginal(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	edges, err := e.Store.EdgesTo(ctx, nil, original, edgeType)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, edge := range edges {
		rev, err := e.Store.Get(ctx, nil, edge.From)
		if err != nil {
			if err == store.ErrNotFound {
				continue
			}
			return nil, err
		}
		if rev.Kind == kind && !rev.Deleted {
			ids = append(ids, edge.From)
		}
	}
	return ids, nil
}
