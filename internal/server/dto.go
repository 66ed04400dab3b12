package server

import (
	"offerline/internal/domain"
	"offerline/internal/engine"
	"offerline/internal/exchange"
	"offerline/internal/store"
)

// Request payloads

type CreateUserRequest struct {
	User domain.User `json:"user"`
}

type CreateOrganizationRequest struct {
	Organization domain.Organization `json:"organization"`
}

type CreateServiceTypeRequest struct {
	ServiceType domain.ServiceType `json:"service_type"`
}

type CreateMediumRequest struct {
	Medium domain.MediumOfExchange `json:"medium"`
}

type CreateRequestRequest struct {
	Request        domain.Request `json:"request"`
	ServiceTypeIDs []string       `json:"service_type_ids,omitempty"`
	MediumIDs      []string       `json:"medium_ids,omitempty"`
}

type CreateOfferRequest struct {
	Offer          domain.Offer `json:"offer"`
	ServiceTypeIDs []string     `json:"service_type_ids,omitempty"`
	MediumIDs      []string     `json:"medium_ids,omitempty"`
}

type UpdateLinksRequest struct {
	IDs []string `json:"ids"`
}

type MemberRequest struct {
	UserID string `json:"user_id"`
}

type StatusChangeRequest struct {
	Reason string `json:"reason,omitempty"`
	// DurationDays applies to temporary suspensions only.
	DurationDays int `json:"duration_days,omitempty"`
	// Indefinite suspends with no end date; DurationDays is ignored.
	Indefinite bool `json:"indefinite,omitempty"`
	// ExpectedRevision, when set, refuses the change if the current status
	// revision differs.
	ExpectedRevision string `json:"expected_revision,omitempty"`
}

type AdministratorRequest struct {
	UserID string `json:"user_id"`
}

type CreateProposalRequest struct {
	Proposal  domain.Proposal `json:"proposal"`
	RequestID string          `json:"request_id,omitempty"`
	OfferID   string          `json:"offer_id,omitempty"`
}

type CompleteAgreementRequest struct {
	Role             string `json:"role" enum:"provider,receiver"`
	ExpectedRevision string `json:"expected_revision,omitempty"`
}

type UpdateAgreementStatusRequest struct {
	Status           string `json:"status" enum:"active,in_progress,completed,cancelled_mutual,cancelled_provider,cancelled_receiver,failed,disputed"`
	ExpectedRevision string `json:"expected_revision,omitempty"`
}

type InitiateCancellationRequest struct {
	Reason       string `json:"reason" enum:"mutual_agreement,provider_unavailable,receiver_no_longer_needs,external_circumstances,technical_failure,other"`
	ReasonDetail string `json:"reason_detail,omitempty"`
	Explanation  string `json:"explanation"`
	Mutual       bool   `json:"mutual,omitempty"`
}

type RespondCancellationRequest struct {
	Consent bool   `json:"consent"`
	Notes   string `json:"notes,omitempty"`
}

type ReviewCancellationRequest struct {
	Resolution      string `json:"resolution" enum:"cancelled_mutual,cancelled_provider,cancelled_receiver,failed"`
	AdminNotes      string `json:"admin_notes,omitempty"`
	ResolutionTerms string `json:"resolution_terms,omitempty"`
}

type CreateReviewRequest struct {
	Rating  int    `json:"rating" minimum:"1" maximum:"5"`
	Comment string `json:"comment,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Response payloads

// RevisionMeta identifies one stored revision of an entity. ID is the stable
// entity id (the root revision); RevisionID is the latest revision.
type RevisionMeta struct {
	ID         string `json:"id"`
	RevisionID string `json:"revision_id"`
	AuthorID   string `json:"author_id"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

func revisionMeta(rev store.Revision) RevisionMeta {
	return RevisionMeta{
		ID:         rev.RootID,
		RevisionID: rev.ID,
		AuthorID:   rev.AuthorID,
		CreatedAt:  rev.CreatedAt,
	}
}

type UserResponse struct {
	RevisionMeta
	User domain.User `json:"user"`
}

func userResponse(rec engine.UserRecord) UserResponse {
	return UserResponse{RevisionMeta: revisionMeta(rec.Revision), User: rec.User}
}

func mapUsers(recs []engine.UserRecord) []UserResponse {
	out := make([]UserResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, userResponse(r))
	}
	return out
}

type OrganizationResponse struct {
	RevisionMeta
	Organization domain.Organization `json:"organization"`
}

func organizationResponse(rec engine.OrganizationRecord) OrganizationResponse {
	return OrganizationResponse{RevisionMeta: revisionMeta(rec.Revision), Organization: rec.Organization}
}

func mapOrganizations(recs []engine.OrganizationRecord) []OrganizationResponse {
	out := make([]OrganizationResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, organizationResponse(r))
	}
	return out
}

type ServiceTypeResponse struct {
	RevisionMeta
	ServiceType domain.ServiceType `json:"service_type"`
}

func serviceTypeResponse(rec engine.ServiceTypeRecord) ServiceTypeResponse {
	return ServiceTypeResponse{RevisionMeta: revisionMeta(rec.Revision), ServiceType: rec.ServiceType}
}

func mapServiceTypes(recs []engine.ServiceTypeRecord) []ServiceTypeResponse {
	out := make([]ServiceTypeResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, serviceTypeResponse(r))
	}
	return out
}

type MediumResponse struct {
	RevisionMeta
	Medium domain.MediumOfExchange `json:"medium"`
}

func mediumResponse(rec engine.MediumRecord) MediumResponse {
	return MediumResponse{RevisionMeta: revisionMeta(rec.Revision), Medium: rec.Medium}
}

func mapMediums(recs []engine.MediumRecord) []MediumResponse {
	out := make([]MediumResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, mediumResponse(r))
	}
	return out
}

type RequestResponse struct {
	RevisionMeta
	Request domain.Request `json:"request"`
}

func requestResponse(rec engine.RequestRecord) RequestResponse {
	return RequestResponse{RevisionMeta: revisionMeta(rec.Revision), Request: rec.Request}
}

func mapRequests(recs []engine.RequestRecord) []RequestResponse {
	out := make([]RequestResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, requestResponse(r))
	}
	return out
}

type OfferResponse struct {
	RevisionMeta
	Offer domain.Offer `json:"offer"`
}

func offerResponse(rec engine.OfferRecord) OfferResponse {
	return OfferResponse{RevisionMeta: revisionMeta(rec.Revision), Offer: rec.Offer}
}

func mapOffers(recs []engine.OfferRecord) []OfferResponse {
	out := make([]OfferResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, offerResponse(r))
	}
	return out
}

type StatusResponse struct {
	RevisionID     string `json:"revision_id"`
	StatusType     string `json:"status_type"`
	Reason         string `json:"reason,omitempty"`
	SuspendedUntil string `json:"suspended_until,omitempty" format:"date-time"`
}

type ProposalResponse struct {
	RevisionMeta
	Proposal domain.Proposal `json:"proposal"`
}

func proposalResponse(rec exchange.ProposalRecord) ProposalResponse {
	return ProposalResponse{RevisionMeta: revisionMeta(rec.Revision), Proposal: rec.Proposal}
}

func mapProposals(recs []exchange.ProposalRecord) []ProposalResponse {
	out := make([]ProposalResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, proposalResponse(r))
	}
	return out
}

type AgreementResponse struct {
	RevisionMeta
	Agreement domain.Agreement `json:"agreement"`
}

func agreementResponse(rec exchange.AgreementRecord) AgreementResponse {
	return AgreementResponse{RevisionMeta: revisionMeta(rec.Revision), Agreement: rec.Agreement}
}

func mapAgreements(recs []exchange.AgreementRecord) []AgreementResponse {
	out := make([]AgreementResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, agreementResponse(r))
	}
	return out
}

type CancellationResponse struct {
	RevisionMeta
	Cancellation domain.Cancellation `json:"cancellation"`
}

func cancellationResponse(rec exchange.CancellationRecord) CancellationResponse {
	return CancellationResponse{RevisionMeta: revisionMeta(rec.Revision), Cancellation: rec.Cancellation}
}

func mapCancellations(recs []exchange.CancellationRecord) []CancellationResponse {
	out := make([]CancellationResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, cancellationResponse(r))
	}
	return out
}

type ReviewResponse struct {
	RevisionMeta
	Review domain.Review `json:"review"`
}

func reviewResponse(rec exchange.ReviewRecord) ReviewResponse {
	return ReviewResponse{RevisionMeta: revisionMeta(rec.Revision), Review: rec.Review}
}

func mapReviews(recs []exchange.ReviewRecord) []ReviewResponse {
	out := make([]ReviewResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, reviewResponse(r))
	}
	return out
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	AgentID   string `json:"agent_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	// Key is returned once, on creation only.
	Key string `json:"key,omitempty"`
}
