package domain

// Entity kinds. A kind names the logical record family and prefixes its
// path buckets (e.g. "users.status.accepted").
const (
	KindUser             = "users"
	KindOrganization     = "organizations"
	KindServiceType      = "service_types"
	KindMediumOfExchange = "mediums_of_exchange"
	KindRequest          = "requests"
	KindOffer            = "offers"
	KindStatus           = "statuses"
	KindProposal         = "proposals"
	KindAgreement        = "agreements"
	KindCancellation     = "cancellations"
	KindReview           = "reviews"
)

type User struct {
	Name              string   `json:"name"`
	Nickname          string   `json:"nickname,omitempty"`
	Bio               string   `json:"bio,omitempty"`
	Email             string   `json:"email"`
	Phone             string   `json:"phone,omitempty"`
	Location          string   `json:"location,omitempty"`
	TimeZone          string   `json:"time_zone,omitempty"`
	Skills            []string `json:"skills,omitempty"`
	ContactPreference string   `json:"contact_preference,omitempty" enum:"email,phone,other"`
	TimePreference    string   `json:"time_preference,omitempty" enum:"morning,afternoon,evening,no_preference,other"`
}

type Organization struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	FullLegalName string   `json:"full_legal_name"`
	Email         string   `json:"email"`
	URLs          []string `json:"urls,omitempty"`
	Location      string   `json:"location,omitempty"`
}

type ServiceType struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Technical   bool     `json:"technical"`
	Tags        []string `json:"tags,omitempty"`
}

type MediumOfExchange struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Request is a call for a service; Offer is its mirror image. Both may be
// owned by a user directly or by an organization.
type Request struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Skills             []string `json:"skills,omitempty"`
	ContactPreference  string   `json:"contact_preference,omitempty" enum:"email,phone,other"`
	TimePreference     string   `json:"time_preference,omitempty" enum:"morning,afternoon,evening,no_preference,other"`
	InteractionType    string   `json:"interaction_type,omitempty" enum:"virtual,in_person"`
	ExchangePreference string   `json:"exchange_preference,omitempty" enum:"exchange,arranged,pay_it_forward,open"`
	TimeZone           string   `json:"time_zone,omitempty"`
	OrganizationID     string   `json:"organization_id,omitempty"`
}

type Offer struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Capabilities       []string `json:"capabilities,omitempty"`
	Availability       string   `json:"availability,omitempty"`
	InteractionType    string   `json:"interaction_type,omitempty" enum:"virtual,in_person"`
	ExchangePreference string   `json:"exchange_preference,omitempty" enum:"exchange,arranged,pay_it_forward,open"`
	TimeZone           string   `json:"time_zone,omitempty"`
	OrganizationID     string   `json:"organization_id,omitempty"`
}

// Proposal opens an exchange against a request or offer. A direct_response
// proposal answers a listing ad hoc; a cross_link proposal pairs two
// existing listings.
type Proposal struct {
	ProposalType      string `json:"proposal_type" enum:"direct_response,cross_link" required:"false"`
	ServiceDetails    string `json:"service_details"`
	Terms             string `json:"terms"`
	ExchangeMedium    string `json:"exchange_medium"`
	ExchangeValue     string `json:"exchange_value,omitempty"`
	DeliveryTimeframe string `json:"delivery_timeframe,omitempty"`
	Notes             string `json:"notes,omitempty"`
	Status            string `json:"status" enum:"pending,accepted,rejected,expired" required:"false"`
	ExpiresAt         string `json:"expires_at,omitempty" format:"date-time"`
}

// Agreement statuses.
const (
	AgreementActive            = "active"
	AgreementInProgress        = "in_progress"
	AgreementCompleted         = "completed"
	AgreementCancelledMutual   = "cancelled_mutual"
	AgreementCancelledProvider = "cancelled_provider"
	AgreementCancelledReceiver = "cancelled_receiver"
	AgreementFailed            = "failed"
	AgreementDisputed          = "disputed"
)

type Agreement struct {
	ServiceDetails      string `json:"service_details"`
	AgreedTerms         string `json:"agreed_terms"`
	ExchangeMedium      string `json:"exchange_medium"`
	ExchangeValue       string `json:"exchange_value,omitempty"`
	DeliveryTimeframe   string `json:"delivery_timeframe,omitempty"`
	Status              string `json:"status" enum:"active,in_progress,completed,cancelled_mutual,cancelled_provider,cancelled_receiver,failed,disputed"`
	ProviderCompleted   bool   `json:"provider_completed"`
	ReceiverCompleted   bool   `json:"receiver_completed"`
	ProviderCompletedAt string `json:"provider_completed_at,omitempty" format:"date-time"`
	ReceiverCompletedAt string `json:"receiver_completed_at,omitempty" format:"date-time"`
}

// Cancellation tracks the append-only cancellation flow of an agreement:
// pending_response -> mutually_agreed | disputed -> admin_reviewed.
type Cancellation struct {
	Reason            string `json:"reason" enum:"mutual_agreement,provider_unavailable,receiver_no_longer_needs,external_circumstances,technical_failure,other"`
	ReasonDetail      string `json:"reason_detail,omitempty"`
	InitiatedBy       string `json:"initiated_by" enum:"provider,receiver,both,system"`
	State             string `json:"state" enum:"pending_response,mutually_agreed,disputed,admin_reviewed"`
	OtherPartyConsent *bool  `json:"other_party_consent,omitempty"`
	Explanation       string `json:"explanation"`
	OtherPartyNotes   string `json:"other_party_notes,omitempty"`
	AdminNotes        string `json:"admin_notes,omitempty"`
	ResolutionTerms   string `json:"resolution_terms,omitempty"`
	InitiatedAt       string `json:"initiated_at" format:"date-time"`
	ResponseAt        string `json:"response_at,omitempty" format:"date-time"`
	AdminReviewedAt   string `json:"admin_reviewed_at,omitempty" format:"date-time"`
}

type Review struct {
	Rating       int    `json:"rating" minimum:"1" maximum:"5"`
	Comment      string `json:"comment,omitempty"`
	ReviewerType string `json:"reviewer_type" enum:"provider,receiver"`
	ReviewedID   string `json:"reviewed_id"`
}

type ReviewStatistics struct {
	AgentID       string  `json:"agent_id"`
	TotalReviews  int     `json:"total_reviews"`
	AverageRating float64 `json:"average_rating"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	AgentID   string `json:"agent_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
