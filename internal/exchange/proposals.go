package exchange

import (
	"context"
	"database/sql"
	"time"

	"offerline/internal/admin"
	"offerline/internal/domain"
	"offerline/internal/engine"
	"offerline/internal/events"
	"offerline/internal/store"
)

// Proposal statuses.
const (
	ProposalPending  = "pending"
	ProposalAccepted = "accepted"
	ProposalRejected = "rejected"
	ProposalExpired  = "expired"
)

// ProposalRecord pairs a decoded proposal with its latest revision.
type ProposalRecord struct {
	Proposal domain.Proposal
	Revision store.Revision
}

// ProposalCreateOptions opens an exchange against one or both listings. A
// direct_response proposal names a single listing; a cross_link proposal
// pairs a request with an offer.
type ProposalCreateOptions struct {
	Proposal  domain.Proposal
	RequestID string
	OfferID   string
	ActorID   string
}

// CreateProposal records a pending proposal by an accepted user. When no
// expiry is given the configured default applies.
func (s *Service) CreateProposal(ctx context.Context, opts ProposalCreateOptions) (ProposalRecord, error) {
	e := s.Engine
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ProposalRecord{}, err
	}
	defer tx.Rollback()

	userID, err := e.RequireAcceptedUser(ctx, tx, "create proposal", opts.ActorID)
	if err != nil {
		return ProposalRecord{}, err
	}
	if opts.RequestID == "" && opts.OfferID == "" {
		return ProposalRecord{}, store.ErrNotFound
	}

	p := opts.Proposal
	p.Status = ProposalPending
	if p.ProposalType == "" {
		if opts.RequestID != "" && opts.OfferID != "" {
			p.ProposalType = "cross_link"
		} else {
			p.ProposalType = "direct_response"
		}
	}
	if p.ExpiresAt == "" && e.Config.Proposals.DefaultExpiryDays > 0 {
		p.ExpiresAt = s.now().AddDate(0, 0, e.Config.Proposals.DefaultExpiryDays).UTC().Format(time.RFC3339)
	}

	rev, err := e.Store.Create(ctx, tx, domain.KindProposal, p, opts.ActorID)
	if err != nil {
		return ProposalRecord{}, err
	}
	if userID != "" {
		if _, err := e.Store.CreateEdge(ctx, tx, rev.ID, userID, EdgeTypeProposer, ""); err != nil {
			return ProposalRecord{}, err
		}
	}
	if opts.RequestID != "" {
		target, err := e.Store.ResolveOriginal(ctx, tx, opts.RequestID)
		if err != nil {
			return ProposalRecord{}, err
		}
		if _, err := e.Store.CreateEdge(ctx, tx, rev.ID, target, EdgeTypeProposalTarget, domain.KindRequest); err != nil {
			return ProposalRecord{}, err
		}
	}
	if opts.OfferID != "" {
		target, err := e.Store.ResolveOriginal(ctx, tx, opts.OfferID)
		if err != nil {
			return ProposalRecord{}, err
		}
		if _, err := e.Store.CreateEdge(ctx, tx, rev.ID, target, EdgeTypeProposalTarget, domain.KindOffer); err != nil {
			return ProposalRecord{}, err
		}
	}
	err = e.Events.Append(ctx, tx, "proposal.created", domain.KindProposal, rev.ID, opts.ActorID, events.EventPayload{"type": p.ProposalType})
	if err != nil {
		return ProposalRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return ProposalRecord{}, err
	}
	return ProposalRecord{Proposal: p, Revision: rev}, nil
}

// GetLatestProposal returns the current revision of a proposal.
func (s *Service) GetLatestProposal(ctx context.Context, id string) (ProposalRecord, error) {
	return s.getProposal(ctx, nil, id)
}

func (s *Service) getProposal(ctx context.Context, tx *sql.Tx, id string) (ProposalRecord, error) {
	e := s.Engine
	original, err := e.Store.ResolveOriginal(ctx, tx, id)
	if err != nil {
		return ProposalRecord{}, err
	}
	rev, err := e.Store.Latest(ctx, tx, original)
	if err != nil {
		return ProposalRecord{}, err
	}
	var p domain.Proposal
	if err := rev.Decode(&p); err != nil {
		return ProposalRecord{}, err
	}
	return ProposalRecord{Proposal: p, Revision: rev}, nil
}

// AcceptProposal accepts a pending proposal and opens the agreement. Only a
// responder (owner of a targeted listing) or an administrator may accept.
func (s *Service) AcceptProposal(ctx context.Context, id, actorID string) (AgreementRecord, error) {
	e := s.Engine
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return AgreementRecord{}, err
	}
	defer tx.Rollback()

	rec, err := s.getProposal(ctx, tx, id)
	if err != nil {
		return AgreementRecord{}, err
	}
	if err := s.requireResponder(ctx, tx, rec.Revision.RootID, actorID); err != nil {
		return AgreementRecord{}, err
	}
	if rec.Proposal.Status != ProposalPending {
		return AgreementRecord{}, InvalidTransitionError{Entity: "proposal", From: rec.Proposal.Status, To: ProposalAccepted}
	}
	if expired(rec.Proposal, s.now()) {
		if _, err := s.setProposalStatus(ctx, tx, rec, ProposalExpired, actorID); err != nil {
			return AgreementRecord{}, err
		}
		if err := tx.Commit(); err != nil {
			return AgreementRecord{}, err
		}
		return AgreementRecord{}, ProposalExpiredError{ID: rec.Revision.RootID}
	}

	provider, receiver, err := s.partiesFor(ctx, tx, rec.Revision.RootID)
	if err != nil {
		return AgreementRecord{}, err
	}
	agreement := domain.Agreement{
		ServiceDetails:    rec.Proposal.ServiceDetails,
		AgreedTerms:       rec.Proposal.Terms,
		ExchangeMedium:    rec.Proposal.ExchangeMedium,
		ExchangeValue:     rec.Proposal.ExchangeValue,
		DeliveryTimeframe: rec.Proposal.DeliveryTimeframe,
		Status:            domain.AgreementActive,
	}
	agreementRev, err := e.Store.Create(ctx, tx, domain.KindAgreement, agreement, actorID)
	if err != nil {
		return AgreementRecord{}, err
	}
	if _, err := e.Store.CreateEdge(ctx, tx, rec.Revision.RootID, agreementRev.ID, EdgeTypeAgreement, ""); err != nil {
		return AgreementRecord{}, err
	}
	if provider != "" {
		if _, err := e.Store.CreateEdge(ctx, tx, agreementRev.ID, provider, EdgeTypeProvider, ""); err != nil {
			return AgreementRecord{}, err
		}
	}
	if receiver != "" {
		if _, err := e.Store.CreateEdge(ctx, tx, agreementRev.ID, receiver, EdgeTypeReceiver, ""); err != nil {
			return AgreementRecord{}, err
		}
	}
	if _, err := s.setProposalStatus(ctx, tx, rec, ProposalAccepted, actorID); err != nil {
		return AgreementRecord{}, err
	}
	err = e.Events.Append(ctx, tx, "agreement.created", domain.KindAgreement, agreementRev.ID, actorID, events.EventPayload{
		"proposal_id": rec.Revision.RootID,
	})
	if err != nil {
		return AgreementRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return AgreementRecord{}, err
	}
	return AgreementRecord{Agreement: agreement, Revision: agreementRev}, nil
}

// RejectProposal rejects a pending proposal.
func (s *Service) RejectProposal(ctx context.Context, id, actorID string) error {
	e := s.Engine
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rec, err := s.getProposal(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := s.requireResponder(ctx, tx, rec.Revision.RootID, actorID); err != nil {
		return err
	}
	if rec.Proposal.Status != ProposalPending {
		return InvalidTransitionError{Entity: "proposal", From: rec.Proposal.Status, To: ProposalRejected}
	}
	if _, err := s.setProposalStatus(ctx, tx, rec, ProposalRejected, actorID); err != nil {
		return err
	}
	return tx.Commit()
}

// ExpireProposalIfPast flips a pending proposal to expired once its end date
// has passed. Pull-based; returns true when the flip happened.
func (s *Service) ExpireProposalIfPast(ctx context.Context, id string) (bool, error) {
	e := s.Engine
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	rec, err := s.getProposal(ctx, tx, id)
	if err != nil {
		return false, err
	}
	if rec.Proposal.Status != ProposalPending || !expired(rec.Proposal, s.now()) {
		return false, nil
	}
	if _, err := s.setProposalStatus(ctx, tx, rec, ProposalExpired, "system"); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func expired(p domain.Proposal, now time.Time) bool {
	if p.ExpiresAt == "" {
		return false
	}
	at, err := time.Parse(time.RFC3339, p.ExpiresAt)
	if err != nil {
		return false
	}
	return !now.Before(at)
}

func (s *Service) setProposalStatus(ctx context.Context, tx *sql.Tx, rec ProposalRecord, to, actorID string) (store.Revision, error) {
	e := s.Engine
	p := rec.Proposal
	p.Status = to
	rev, err := e.Store.Update(ctx, tx, rec.Revision.ID, p, actorID)
	if err != nil {
		return store.Revision{}, err
	}
	err = e.Events.Append(ctx, tx, "proposal."+to, domain.KindProposal, rec.Revision.RootID, actorID, nil)
	if err != nil {
		return store.Revision{}, err
	}
	return rev, nil
}

// requireResponder admits owners of the proposal's targeted listings and
// administrators.
func (s *Service) requireResponder(ctx context.Context, tx *sql.Tx, proposalID, actorID string) error {
	e := s.Engine
	if ok, err := e.Admin.IsAgentAdministrator(ctx, tx, actorID); err != nil {
		return err
	} else if ok {
		return nil
	}
	targets, err := e.Store.Edges(ctx, tx, proposalID, EdgeTypeProposalTarget)
	if err != nil {
		return err
	}
	for _, target := range targets {
		orgID, err := s.listingOrg(ctx, tx, target.To)
		if err != nil {
			return err
		}
		ok, err := e.Admin.CanMutate(ctx, tx, target.To, orgID, actorID)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return admin.UnauthorizedError{Action: "respond to proposal"}
}

// partiesFor derives the provider and receiver user ids from the proposal's
// targets: the offer owner provides, the request owner receives, and the
// proposer fills whichever side is open.
func (s *Service) partiesFor(ctx context.Context, tx *sql.Tx, proposalID string) (provider, receiver string, err error) {
	e := s.Engine
	targets, err := e.Store.Edges(ctx, tx, proposalID, EdgeTypeProposalTarget)
	if err != nil {
		return "", "", err
	}
	for _, target := range targets {
		owner, err := s.listingOwner(ctx, tx, target.To)
		if err != nil {
			return "", "", err
		}
		switch target.Tag {
		case domain.KindOffer:
			provider = owner
		case domain.KindRequest:
			receiver = owner
		}
	}
	proposerEdges, err := e.Store.Edges(ctx, tx, proposalID, EdgeTypeProposer)
	if err != nil {
		return "", "", err
	}
	if len(proposerEdges) > 0 {
		proposer := proposerEdges[0].To
		if provider == "" {
			provider = proposer
		} else if receiver == "" {
			receiver = proposer
		}
	}
	return provider, receiver, nil
}

func (s *Service) listingOwner(ctx context.Context, tx *sql.Tx, listingID string) (string, error) {
	edges, err := s.Engine.Store.Edges(ctx, tx, listingID, engine.EdgeTypeOwner)
	if err != nil {
		return "", err
	}
	for _, edge := range edges {
		if edge.Tag == "" {
			return edge.To, nil
		}
	}
	return "", nil
}

func (s *Service) listingOrg(ctx context.Context, tx *sql.Tx, listingID string) (string, error) {
	edges, err := s.Engine.Store.EdgesTagged(ctx, tx, listingID, engine.EdgeTypeOwner, "organization")
	if err != nil {
		return "", err
	}
	if len(edges) == 0 {
		return "", nil
	}
	return edges[0].To, nil
}

// ProposalsForListing lists proposals targeting a request or offer.
func (s *Service) ProposalsForListing(ctx context.Context, listingID string) ([]ProposalRecord, error) {
	e := s.Engine
	original, err := e.Store.ResolveOriginal(ctx, nil, listingID)
	if err != nil {
		return nil, err
	}
	edges, err := e.Store.EdgesTo(ctx, nil, original, EdgeTypeProposalTarget)
	if err != nil {
		return nil, err
	}
	res := make([]ProposalRecord, 0, len(edges))
	for _, edge := range edges {
		rec, err := s.getProposal(ctx, nil, edge.From)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, nil
}

// ProposalsByUser lists proposals a user has made.
func (s *Service) ProposalsByUser(ctx context.Context, userID string) ([]ProposalRecord, error) {
	e := s.Engine
	original, err := e.Store.ResolveOriginal(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	edges, err := e.Store.EdgesTo(ctx, nil, original, EdgeTypeProposer)
	if err != nil {
		return nil, err
	}
	res := make([]ProposalRecord, 0, len(edges))
	for _, edge := range edges {
		rec, err := s.getProposal(ctx, nil, edge.From)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, nil
}
