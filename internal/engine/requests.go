package engine

import (
	"context"

	"offerline/internal/domain"
	"offerline/internal/store"
)

// RequestRecord pairs a decoded request with its latest revision.
type RequestRecord struct {
	Request  domain.Request
	Revision store.Revision
}

// RequestCreateOptions carries a new request and its initial links.
type RequestCreateOptions struct {
	Request        domain.Request
	ServiceTypeIDs []string
	MediumIDs      []string
	ActorID        string
}

// CreateRequest publishes a request owned by the calling user or, when
// Request.OrganizationID is set, by that organization.
func (e *Engine) CreateRequest(ctx context.Context, opts RequestCreateOptions) (RequestRecord, error) {
	id, err := e.createListing(ctx, domain.KindRequest, opts.Request, opts.Request.OrganizationID, opts.ServiceTypeIDs, opts.MediumIDs, opts.ActorID)
	if err != nil {
		return RequestRecord{}, err
	}
	return e.GetLatestRequest(ctx, id)
}

// GetLatestRequest returns the current revision of a request.
func (e *Engine) GetLatestRequest(ctx context.Context, id string) (RequestRecord, error) {
	var req domain.Request
	rev, err := latestAs(ctx, nil, e.Store, id, &req)
	if err != nil {
		return RequestRecord{}, err
	}
	return RequestRecord{Request: req, Revision: rev}, nil
}

// UpdateRequest supersedes a request. Author or administrator only.
func (e *Engine) UpdateRequest(ctx context.Context, id string, req domain.Request, agentID string) (RequestRecord, error) {
	revID, err := e.updateListing(ctx, domain.KindRequest, id, req, agentID)
	if err != nil {
		return RequestRecord{}, err
	}
	return e.GetLatestRequest(ctx, revID)
}

// DeleteRequest removes a request per the configured deletion policy.
func (e *Engine) DeleteRequest(ctx context.Context, id, agentID string) error {
	return e.deleteListing(ctx, domain.KindRequest, id, agentID)
}

// UpdateRequestServiceTypes replaces a request's service-type links.
func (e *Engine) UpdateRequestServiceTypes(ctx context.Context, id string, serviceTypeIDs []string, agentID string) error {
	return e.updateListingLinks(ctx, domain.KindRequest, id, EdgeTypeServiceType, domain.KindServiceType, serviceTypeIDs, agentID)
}

// UpdateRequestMediums replaces a request's medium-of-exchange links.
func (e *Engine) UpdateRequestMediums(ctx context.Context, id string, mediumIDs []string, agentID string) error {
	return e.updateListingLinks(ctx, domain.KindRequest, id, EdgeTypeMedium, domain.KindMediumOfExchange, mediumIDs, agentID)
}

// ServiceTypesForRequest lists the service-type ids a request links to.
func (e *Engine) ServiceTypesForRequest(ctx context.Context, id string) ([]string, error) {
	return e.linkTargets(ctx, nil, id, EdgeTypeServiceType)
}

// ListRequests returns every status-tracked request.
func (e *Engine) ListRequests(ctx context.Context) ([]RequestRecord, error) {
	ids, err := e.Status.All(ctx, nil, domain.KindRequest)
	if err != nil {
		return nil, err
	}
	return e.requestRecords(ctx, ids)
}

// RequestsForUser lists requests owned by a user.
func (e *Engine) RequestsForUser(ctx context.Context, userID string) ([]RequestRecord, error) {
	ids, err := e.listingsOwnedBy(ctx, userID, domain.KindRequest)
	if err != nil {
		return nil, err
	}
	return e.requestRecords(ctx, ids)
}

// RequestsForOrganization lists requests owned by an organization.
func (e *Engine) RequestsForOrganization(ctx context.Context, orgID string) ([]RequestRecord, error) {
	ids, err := e.listingsOwnedBy(ctx, orgID, domain.KindRequest)
	if err != nil {
		return nil, err
	}
	return e.requestRecords(ctx, ids)
}

func (e *Engine) requestRecords(ctx context.Context, ids []string) ([]RequestRecord, error) {
	res := make([]RequestRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := e.GetLatestRequest(ctx, id)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, nil
}
