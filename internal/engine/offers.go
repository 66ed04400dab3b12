package engine

import (
	"context"

	"offerline/internal/domain"
	"offerline/internal/store"
)

// OfferRecord pairs a decoded offer with its latest revision.
type OfferRecord struct {
	Offer    domain.Offer
	Revision store.Revision
}

// OfferCreateOptions carries a new offer and its initial links.
type OfferCreateOptions struct {
	Offer          domain.Offer
	ServiceTypeIDs []string
	MediumIDs      []string
	ActorID        string
}

// CreateOffer publishes an offer owned by the calling user or, when
// Offer.OrganizationID is set, by that organization.
func (e *Engine) CreateOffer(ctx context.Context, opts OfferCreateOptions) (OfferRecord, error) {
	id, err := e.createListing(ctx, domain.KindOffer, opts.Offer, opts.Offer.OrganizationID, opts.ServiceTypeIDs, opts.MediumIDs, opts.ActorID)
	if err != nil {
		return OfferRecord{}, err
	}
	return e.GetLatestOffer(ctx, id)
}

// GetLatestOffer returns the current revision of an offer.
func (e *Engine) GetLatestOffer(ctx context.Context, id string) (OfferRecord, error) {
	var off domain.Offer
	rev, err := latestAs(ctx, nil, e.Store, id, &off)
	if err != nil {
		return OfferRecord{}, err
	}
	return OfferRecord{Offer: off, Revision: rev}, nil
}

// UpdateOffer supersedes an offer. Author or administrator only.
func (e *Engine) UpdateOffer(ctx context.Context, id string, off domain.Offer, agentID string) (OfferRecord, error) {
	revID, err := e.updateListing(ctx, domain.KindOffer, id, off, agentID)
	if err != nil {
		return OfferRecord{}, err
	}
	return e.GetLatestOffer(ctx, revID)
}

// DeleteOffer removes an offer per the configured deletion policy.
func (e *Engine) DeleteOffer(ctx context.Context, id, agentID string) error {
	return e.deleteListing(ctx, domain.KindOffer, id, agentID)
}

// UpdateOfferServiceTypes replaces an offer's service-type links.
func (e *Engine) UpdateOfferServiceTypes(ctx context.Context, id string, serviceTypeIDs []string, agentID string) error {
	return e.updateListingLinks(ctx, domain.KindOffer, id, EdgeTypeServiceType, domain.KindServiceType, serviceTypeIDs, agentID)
}

// UpdateOfferMediums replaces an offer's medium-of-exchange links.
func (e *Engine) UpdateOfferMediums(ctx context.Context, id string, mediumIDs []string, agentID string) error {
	return e.updateListingLinks(ctx, domain.KindOffer, id, EdgeTypeMedium, domain.KindMediumOfExchange, mediumIDs, agentID)
}

// ServiceTypesForOffer lists the service-type ids an offer links to.
func (e *Engine) ServiceTypesForOffer(ctx context.Context, id string) ([]string, error) {
	return e.linkTargets(ctx, nil, id, EdgeTypeServiceType)
}

// ListOffers returns every status-tracked offer.
func (e *Engine) ListOffers(ctx context.Context) ([]OfferRecord, error) {
	ids, err := e.Status.All(ctx, nil, domain.KindOffer)
	if err != nil {
		return nil, err
	}
	return e.offerRecords(ctx, ids)
}

// OffersForUser lists offers owned by a user.
func (e *Engine) OffersForUser(ctx context.Context, userID string) ([]OfferRecord, error) {
	ids, err := e.listingsOwnedBy(ctx, userID, domain.KindOffer)
	if err != nil {
		return nil, err
	}
	return e.offerRecords(ctx, ids)
}

// OffersForOrganization lists offers owned by an organization.
func (e *Engine) OffersForOrganization(ctx context.Context, orgID string) ([]OfferRecord, error) {
	ids, err := e.listingsOwnedBy(ctx, orgID, domain.KindOffer)
	if err != nil {
		return nil, err
	}
	return e.offerRecords(ctx, ids)
}

func (e *Engine) offerRecords(ctx context.Context, ids []string) ([]OfferRecord, error) {
	res := make([]OfferRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := e.GetLatestOffer(ctx, id)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, nil
}
