package exchange

import (
	"context"
	"database/sql"
	"time"

	"offerline/internal/admin"
	"offerline/internal/domain"
	"offerline/internal/events"
	"offerline/internal/status"
	"offerline/internal/store"
)

// Completion roles.
const (
	RoleProvider = "provider"
	RoleReceiver = "receiver"
)

var agreementTransitions = map[string][]string{
	domain.AgreementActive: {
		domain.AgreementInProgress, domain.AgreementCompleted,
		domain.AgreementCancelledMutual, domain.AgreementCancelledProvider,
		domain.AgreementCancelledReceiver, domain.AgreementFailed, domain.AgreementDisputed,
	},
	domain.AgreementInProgress: {
		domain.AgreementCompleted, domain.AgreementCancelledMutual,
		domain.AgreementCancelledProvider, domain.AgreementCancelledReceiver,
		domain.AgreementFailed, domain.AgreementDisputed,
	},
	domain.AgreementDisputed: {
		domain.AgreementCompleted, domain.AgreementCancelledMutual,
		domain.AgreementCancelledProvider, domain.AgreementCancelledReceiver,
		domain.AgreementFailed,
	},
	// Terminal states.
	domain.AgreementCompleted:         {},
	domain.AgreementCancelledMutual:   {},
	domain.AgreementCancelledProvider: {},
	domain.AgreementCancelledReceiver: {},
	domain.AgreementFailed:            {},
}

func validAgreementTransition(from, to string) bool {
	for _, next := range agreementTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AgreementRecord pairs a decoded agreement with its latest revision.
type AgreementRecord struct {
	Agreement domain.Agreement
	Revision  store.Revision
}

// GetLatestAgreement returns the current revision of an agreement.
func (s *Service) GetLatestAgreement(ctx context.Context, id string) (AgreementRecord, error) {
	return s.getAgreement(ctx, nil, id)
}

func (s *Service) getAgreement(ctx context.Context, tx *sql.Tx, id string) (AgreementRecord, error) {
	e := s.Engine
	original, err := e.Store.ResolveOriginal(ctx, tx, id)
	if err != nil {
		return AgreementRecord{}, err
	}
	rev, err := e.Store.Latest(ctx, tx, original)
	if err != nil {
		return AgreementRecord{}, err
	}
	var a domain.Agreement
	if err := rev.Decode(&a); err != nil {
		return AgreementRecord{}, err
	}
	return AgreementRecord{Agreement: a, Revision: rev}, nil
}

// party returns the user on one side of an agreement.
func (s *Service) party(ctx context.Context, tx *sql.Tx, agreementID, role string) (string, error) {
	edgeType := EdgeTypeProvider
	if role == RoleReceiver {
		edgeType = EdgeTypeReceiver
	}
	edges, err := s.Engine.Store.Edges(ctx, tx, agreementID, edgeType)
	if err != nil {
		return "", err
	}
	if len(edges) == 0 {
		return "", nil
	}
	return edges[0].To, nil
}

// requireParty admits the named party's agents and administrators.
func (s *Service) requireParty(ctx context.Context, tx *sql.Tx, agreementID, role, actorID string) error {
	e := s.Engine
	if ok, err := e.Admin.IsAgentAdministrator(ctx, tx, actorID); err != nil {
		return err
	} else if ok {
		return nil
	}
	userID, err := e.UserIDForAgentTx(ctx, tx, actorID)
	if err != nil {
		return err
	}
	if userID == "" {
		return admin.UnauthorizedError{Action: "act on agreement as " + role}
	}
	party, err := s.party(ctx, tx, agreementID, role)
	if err != nil {
		return err
	}
	if party != userID {
		return admin.UnauthorizedError{Action: "act on agreement as " + role}
	}
	return nil
}

// roleOf maps the acting agent to its side of the agreement, empty when the
// agent is no party.
func (s *Service) roleOf(ctx context.Context, tx *sql.Tx, agreementID, actorID string) (string, error) {
	userID, err := s.Engine.UserIDForAgentTx(ctx, tx, actorID)
	if err != nil || userID == "" {
		return "", err
	}
	provider, err := s.party(ctx, tx, agreementID, RoleProvider)
	if err != nil {
		return "", err
	}
	if provider == userID {
		return RoleProvider, nil
	}
	receiver, err := s.party(ctx, tx, agreementID, RoleReceiver)
	if err != nil {
		return "", err
	}
	if receiver == userID {
		return RoleReceiver, nil
	}
	return "", nil
}

// MarkComplete records one party's completion. The agreement reaches
// completed only when both sides have marked; the read-modify-write runs
// under one transaction with an optional revision-token compare, so two
// racing markers serialize and the later stale writer gets
// RevisionConflictError.
func (s *Service) MarkComplete(ctx context.Context, id, role, expectedRevision, actorID string) (AgreementRecord, error) {
	e := s.Engine
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return AgreementRecord{}, err
	}
	defer tx.Rollback()

	rec, err := s.getAgreement(ctx, tx, id)
	if err != nil {
		return AgreementRecord{}, err
	}
	if err := s.requireParty(ctx, tx, rec.Revision.RootID, role, actorID); err != nil {
		return AgreementRecord{}, err
	}
	if expectedRevision != "" && expectedRevision != rec.Revision.ID {
		return AgreementRecord{}, status.RevisionConflictError{Expected: expectedRevision, Actual: rec.Revision.ID}
	}
	a := rec.Agreement
	if a.Status != domain.AgreementActive && a.Status != domain.AgreementInProgress {
		return AgreementRecord{}, InvalidTransitionError{Entity: "agreement", From: a.Status, To: domain.AgreementCompleted}
	}

	now := s.now().UTC().Format(time.RFC3339)
	switch role {
	case RoleProvider:
		a.ProviderCompleted = true
		a.ProviderCompletedAt = now
	case RoleReceiver:
		a.ReceiverCompleted = true
		a.ReceiverCompletedAt = now
	default:
		return AgreementRecord{}, admin.UnauthorizedError{Action: "mark completion as " + role}
	}
	if a.ProviderCompleted && a.ReceiverCompleted {
		a.Status = domain.AgreementCompleted
	} else if a.Status == domain.AgreementActive {
		a.Status = domain.AgreementInProgress
	}

	rev, err := e.Store.Update(ctx, tx, rec.Revision.ID, a, actorID)
	if err != nil {
		return AgreementRecord{}, err
	}
	err = e.Events.Append(ctx, tx, "agreement.marked_complete", domain.KindAgreement, rec.Revision.RootID, actorID, events.EventPayload{
		"role":   role,
		"status": a.Status,
	})
	if err != nil {
		return AgreementRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return AgreementRecord{}, err
	}
	return AgreementRecord{Agreement: a, Revision: rev}, nil
}

// UpdateAgreementStatus transitions an agreement. Terminal states refuse
// further changes. Administrator or party only.
func (s *Service) UpdateAgreementStatus(ctx context.Context, id, to, expectedRevision, actorID string) (AgreementRecord, error) {
	e := s.Engine
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return AgreementRecord{}, err
	}
	defer tx.Rollback()

	rec, err := s.getAgreement(ctx, tx, id)
	if err != nil {
		return AgreementRecord{}, err
	}
	role, err := s.roleOf(ctx, tx, rec.Revision.RootID, actorID)
	if err != nil {
		return AgreementRecord{}, err
	}
	if role == "" {
		if ok, err := e.Admin.IsAgentAdministrator(ctx, tx, actorID); err != nil {
			return AgreementRecord{}, err
		} else if !ok {
			return AgreementRecord{}, admin.UnauthorizedError{Action: "update agreement status"}
		}
	}
	if expectedRevision != "" && expectedRevision != rec.Revision.ID {
		return AgreementRecord{}, status.RevisionConflictError{Expected: expectedRevision, Actual: rec.Revision.ID}
	}
	rev, err := s.setAgreementStatus(ctx, tx, rec, to, actorID)
	if err != nil {
		return AgreementRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return AgreementRecord{}, err
	}
	a := rec.Agreement
	a.Status = to
	return AgreementRecord{Agreement: a, Revision: rev}, nil
}

func (s *Service) setAgreementStatus(ctx context.Context, tx *sql.Tx, rec AgreementRecord, to, actorID string) (store.Revision, error) {
	if !validAgreementTransition(rec.Agreement.Status, to) {
		return store.Revision{}, InvalidTransitionError{Entity: "agreement", From: rec.Agreement.Status, To: to}
	}
	a := rec.Agreement
	a.Status = to
	rev, err := s.Engine.Store.Update(ctx, tx, rec.Revision.ID, a, actorID)
	if err != nil {
		return store.Revision{}, err
	}
	err = s.Engine.Events.Append(ctx, tx, "agreement.status_changed", domain.KindAgreement, rec.Revision.RootID, actorID, events.EventPayload{
		"from": rec.Agreement.Status,
		"to":   to,
	})
	if err != nil {
		return store.Revision{}, err
	}
	return rev, nil
}

// AgreementForProposal returns the agreement opened from a proposal.
func (s *Service) AgreementForProposal(ctx context.Context, proposalID string) (AgreementRecord, error) {
	e := s.Engine
	original, err := e.Store.ResolveOriginal(ctx, nil, proposalID)
	if err != nil {
		return AgreementRecord{}, err
	}
	edges, err := e.Store.Edges(ctx, nil, original, EdgeTypeAgreement)
	if err != nil {
		return AgreementRecord{}, err
	}
	if len(edges) == 0 {
		return AgreementRecord{}, store.ErrNotFound
	}
	return s.getAgreement(ctx, nil, edges[0].To)
}

// AgreementsForUser lists agreements where the user is provider or receiver.
func (s *Service) AgreementsForUser(ctx context.Context, userID string) ([]AgreementRecord, error) {
	e := s.Engine
	original, err := e.Store.ResolveOriginal(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	var res []AgreementRecord
	seen := map[string]bool{}
	for _, edgeType := range []string{EdgeTypeProvider, EdgeTypeReceiver} {
		edges, err := e.Store.EdgesTo(ctx, nil, original, edgeType)
		if err != nil {
			return nil, err
		}
		for _, edge := range edges {
			agreementID, err := e.Store.ResolveOriginal(ctx, nil, edge.From)
			if err != nil {
				return nil, err
			}
			if seen[agreementID] {
				continue
			}
			seen[agreementID] = true
			rec, err := s.getAgreement(ctx, nil, agreementID)
			if err != nil {
				return nil, err
			}
			res = append(res, rec)
		}
	}
	return res, nil
}
