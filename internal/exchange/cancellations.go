package exchange

import (
	"context"
	"database/sql"
	"time"

	"offerline/internal/admin"
	"offerline/internal/domain"
	"offerline/internal/events"
	"offerline/internal/store"
)

// Cancellation states.
const (
	CancellationPendingResponse = "pending_response"
	CancellationMutuallyAgreed  = "mutually_agreed"
	CancellationDisputed        = "disputed"
	CancellationAdminReviewed   = "admin_reviewed"
)

// CancellationRecord pairs a decoded cancellation with its latest revision.
type CancellationRecord struct {
	Cancellation domain.Cancellation
	Revision     store.Revision
}

// CancellationOptions initiates a cancellation of an agreement.
type CancellationOptions struct {
	AgreementID  string
	Reason       string
	ReasonDetail string
	Explanation  string
	// Mutual records that both parties consent up front; the agreement is
	// cancelled immediately instead of waiting for a response.
	Mutual  bool
	ActorID string
}

// InitiateCancellation opens the cancellation flow on an active or
// in-progress agreement. Only a party may initiate.
func (s *Service) InitiateCancellation(ctx context.Context, opts CancellationOptions) (CancellationRecord, error) {
	e := s.Engine
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CancellationRecord{}, err
	}
	defer tx.Rollback()

	rec, err := s.getAgreement(ctx, tx, opts.AgreementID)
	if err != nil {
		return CancellationRecord{}, err
	}
	role, err := s.roleOf(ctx, tx, rec.Revision.RootID, opts.ActorID)
	if err != nil {
		return CancellationRecord{}, err
	}
	if role == "" {
		return CancellationRecord{}, admin.UnauthorizedError{Action: "initiate cancellation"}
	}
	if rec.Agreement.Status != domain.AgreementActive && rec.Agreement.Status != domain.AgreementInProgress {
		return CancellationRecord{}, InvalidTransitionError{Entity: "agreement", From: rec.Agreement.Status, To: domain.AgreementCancelledMutual}
	}

	c := domain.Cancellation{
		Reason:       opts.Reason,
		ReasonDetail: opts.ReasonDetail,
		InitiatedBy:  role,
		State:        CancellationPendingResponse,
		Explanation:  opts.Explanation,
		InitiatedAt:  s.now().UTC().Format(time.RFC3339),
	}
	if opts.Mutual {
		consent := true
		c.InitiatedBy = "both"
		c.State = CancellationMutuallyAgreed
		c.OtherPartyConsent = &consent
		c.ResponseAt = c.InitiatedAt
	}
	cancelRev, err := e.Store.Create(ctx, tx, domain.KindCancellation, c, opts.ActorID)
	if err != nil {
		return CancellationRecord{}, err
	}
	if _, err := e.Store.CreateEdge(ctx, tx, rec.Revision.RootID, cancelRev.ID, EdgeTypeCancellation, ""); err != nil {
		return CancellationRecord{}, err
	}
	if opts.Mutual {
		if _, err := s.setAgreementStatus(ctx, tx, rec, domain.AgreementCancelledMutual, opts.ActorID); err != nil {
			return CancellationRecord{}, err
		}
	}
	err = e.Events.Append(ctx, tx, "cancellation.initiated", domain.KindCancellation, cancelRev.ID, opts.ActorID, events.EventPayload{
		"agreement_id": rec.Revision.RootID,
		"state":        c.State,
	})
	if err != nil {
		return CancellationRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return CancellationRecord{}, err
	}
	return CancellationRecord{Cancellation: c, Revision: cancelRev}, nil
}

// RespondToCancellation records the other party's answer to a unilateral
// cancellation: consent settles the agreement as mutually cancelled, refusal
// marks both the cancellation and the agreement disputed.
func (s *Service) RespondToCancellation(ctx context.Context, cancellationID string, consent bool, notes, actorID string) (CancellationRecord, error) {
	e := s.Engine
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CancellationRecord{}, err
	}
	defer tx.Rollback()

	cRec, agreement, err := s.getCancellation(ctx, tx, cancellationID)
	if err != nil {
		return CancellationRecord{}, err
	}
	if cRec.Cancellation.State != CancellationPendingResponse {
		return CancellationRecord{}, AlreadyRespondedError{ID: cRec.Revision.RootID}
	}
	otherRole := RoleProvider
	if cRec.Cancellation.InitiatedBy == RoleProvider {
		otherRole = RoleReceiver
	}
	if err := s.requireParty(ctx, tx, agreement.Revision.RootID, otherRole, actorID); err != nil {
		return CancellationRecord{}, err
	}

	c := cRec.Cancellation
	c.OtherPartyConsent = &consent
	c.OtherPartyNotes = notes
	c.ResponseAt = s.now().UTC().Format(time.RFC3339)
	if consent {
		c.State = CancellationMutuallyAgreed
	} else {
		c.State = CancellationDisputed
	}
	rev, err := e.Store.Update(ctx, tx, cRec.Revision.ID, c, actorID)
	if err != nil {
		return CancellationRecord{}, err
	}

	settled := domain.AgreementCancelledMutual
	if !consent {
		settled = domain.AgreementDisputed
	}
	if _, err := s.setAgreementStatus(ctx, tx, agreement, settled, actorID); err != nil {
		return CancellationRecord{}, err
	}
	err = e.Events.Append(ctx, tx, "cancellation.responded", domain.KindCancellation, cRec.Revision.RootID, actorID, events.EventPayload{
		"consent": consent,
	})
	if err != nil {
		return CancellationRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return CancellationRecord{}, err
	}
	return CancellationRecord{Cancellation: c, Revision: rev}, nil
}

// AdminReviewCancellation settles a disputed cancellation. The resolution is
// the final agreement status: cancelled_mutual, cancelled_provider,
// cancelled_receiver or failed. Administrator only.
func (s *Service) AdminReviewCancellation(ctx context.Context, cancellationID, resolution, adminNotes, resolutionTerms, actorID string) (CancellationRecord, error) {
	e := s.Engine
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CancellationRecord{}, err
	}
	defer tx.Rollback()

	if ok, err := e.Admin.IsAgentAdministrator(ctx, tx, actorID); err != nil {
		return CancellationRecord{}, err
	} else if !ok {
		return CancellationRecord{}, admin.UnauthorizedError{Action: "review cancellation"}
	}
	cRec, agreement, err := s.getCancellation(ctx, tx, cancellationID)
	if err != nil {
		return CancellationRecord{}, err
	}
	if cRec.Cancellation.State != CancellationDisputed && cRec.Cancellation.State != CancellationPendingResponse {
		return CancellationRecord{}, InvalidTransitionError{Entity: "cancellation", From: cRec.Cancellation.State, To: CancellationAdminReviewed}
	}
	switch resolution {
	case domain.AgreementCancelledMutual, domain.AgreementCancelledProvider,
		domain.AgreementCancelledReceiver, domain.AgreementFailed:
	default:
		return CancellationRecord{}, InvalidTransitionError{Entity: "agreement", From: agreement.Agreement.Status, To: resolution}
	}

	c := cRec.Cancellation
	c.State = CancellationAdminReviewed
	c.AdminNotes = adminNotes
	c.ResolutionTerms = resolutionTerms
	c.AdminReviewedAt = s.now().UTC().Format(time.RFC3339)
	rev, err := e.Store.Update(ctx, tx, cRec.Revision.ID, c, actorID)
	if err != nil {
		return CancellationRecord{}, err
	}
	if agreement.Agreement.Status != resolution {
		if _, err := s.setAgreementStatus(ctx, tx, agreement, resolution, actorID); err != nil {
			return CancellationRecord{}, err
		}
	}
	err = e.Events.Append(ctx, tx, "cancellation.admin_reviewed", domain.KindCancellation, cRec.Revision.RootID, actorID, events.EventPayload{
		"resolution": resolution,
	})
	if err != nil {
		return CancellationRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return CancellationRecord{}, err
	}
	return CancellationRecord{Cancellation: c, Revision: rev}, nil
}

// getCancellation loads a cancellation with the agreement it belongs to.
func (s *Service) getCancellation(ctx context.Context, tx *sql.Tx, id string) (CancellationRecord, AgreementRecord, error) {
	e := s.Engine
	original, err := e.Store.ResolveOriginal(ctx, tx, id)
	if err != nil {
		return CancellationRecord{}, AgreementRecord{}, err
	}
	rev, err := e.Store.Latest(ctx, tx, original)
	if err != nil {
		return CancellationRecord{}, AgreementRecord{}, err
	}
	var c domain.Cancellation
	if err := rev.Decode(&c); err != nil {
		return CancellationRecord{}, AgreementRecord{}, err
	}
	edges, err := e.Store.EdgesTo(ctx, tx, original, EdgeTypeCancellation)
	if err != nil {
		return CancellationRecord{}, AgreementRecord{}, err
	}
	if len(edges) == 0 {
		return CancellationRecord{}, AgreementRecord{}, store.ErrNotFound
	}
	agreement, err := s.getAgreement(ctx, tx, edges[0].From)
	if err != nil {
		return CancellationRecord{}, AgreementRecord{}, err
	}
	return CancellationRecord{Cancellation: c, Revision: rev}, agreement, nil
}

// CancellationsForAgreement lists the cancellation entries of an agreement.
func (s *Service) CancellationsForAgreement(ctx context.Context, agreementID string) ([]CancellationRecord, error) {
	e := s.Engine
	original, err := e.Store.ResolveOriginal(ctx, nil, agreementID)
	if err != nil {
		return nil, err
	}
	edges, err := e.Store.Edges(ctx, nil, original, EdgeTypeCancellation)
	if err != nil {
		return nil, err
	}
	res := make([]CancellationRecord, 0, len(edges))
	for _, edge := range edges {
		cRec, _, err := s.getCancellation(ctx, nil, edge.To)
		if err != nil {
			return nil, err
		}
		res = append(res, cRec)
	}
	return res, nil
}
