package exchange

import (
	"fmt"
	"time"

	"offerline/internal/engine"
)

// Edge types of the exchange subsystem.
const (
	EdgeTypeProposalTarget = "proposal_target" // proposal -> request/offer, tagged with the listing kind
	EdgeTypeProposer       = "proposer"        // proposal -> proposing user
	EdgeTypeAgreement      = "agreement"       // proposal -> agreement
	EdgeTypeProvider       = "provider"        // agreement -> providing user
	EdgeTypeReceiver       = "receiver"        // agreement -> receiving user
	EdgeTypeCancellation   = "cancellation"    // agreement -> cancellation
	EdgeTypeReview         = "review"          // agreement -> review
	EdgeTypeReviewReceived = "review_received" // user -> review
)

// Service runs the exchange workflow (proposal, agreement, cancellation,
// review) on top of the engine's store and authorization.
type Service struct {
	Engine *engine.Engine
}

func New(e *engine.Engine) *Service { return &Service{Engine: e} }

func (s *Service) now() time.Time { return s.Engine.Now() }

// InvalidTransitionError refuses a state change the exchange machines do not
// define.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition %s -> %s", e.Entity, e.From, e.To)
}

// ProposalExpiredError indicates the proposal's expiry has passed.
type ProposalExpiredError struct{ ID string }

func (e ProposalExpiredError) Error() string {
	return fmt.Sprintf("proposal %s has expired", e.ID)
}

// AlreadyRespondedError indicates a cancellation already left pending_response.
type AlreadyRespondedError struct{ ID string }

func (e AlreadyRespondedError) Error() string {
	return fmt.Sprintf("cancellation %s was already responded to", e.ID)
}

// AlreadyReviewedError indicates this party already reviewed the agreement.
type AlreadyReviewedError struct {
	AgreementID  string
	ReviewerType string
}

func (e AlreadyReviewedError) Error() string {
	return fmt.Sprintf("agreement %s already has a %s review", e.AgreementID, e.ReviewerType)
}

// AgreementNotCompletedError refuses reviews before completion.
type AgreementNotCompletedError struct{ ID string }

func (e AgreementNotCompletedError) Error() string {
	return fmt.Sprintf("agreement %s is not completed", e.ID)
}
