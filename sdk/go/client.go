package offerlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Offerline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	// AgentID is sent as X-Agent-Id when no other credential is set; the
	// server only honors it when legacy header auth is enabled.
	AgentID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// User represents the API user model (partial).
type User struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Nickname string   `json:"nickname,omitempty"`
	Location string   `json:"location,omitempty"`
	Skills   []string `json:"skills,omitempty"`
}

// Request represents a published request (partial).
type Request struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// Offer represents a published offer (partial).
type Offer struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// Proposal represents an exchange proposal.
type Proposal struct {
	ID             string `json:"id"`
	ServiceDetails string `json:"service_details"`
	Terms          string `json:"terms"`
	ExchangeMedium string `json:"exchange_medium"`
	Status         string `json:"status"`
	ExpiresAt      string `json:"expires_at,omitempty"`
}

// Agreement represents an active exchange agreement.
type Agreement struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	ProviderID        string `json:"provider_id"`
	ReceiverID        string `json:"receiver_id"`
	ProviderCompleted bool   `json:"provider_completed"`
	ReceiverCompleted bool   `json:"receiver_completed"`
}

// Review represents a post-exchange review.
type Review struct {
	ID      string `json:"id"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

// ReviewStatistics summarizes the reviews received by a user.
type ReviewStatistics struct {
	TotalReviews  int     `json:"total_reviews"`
	AverageRating float64 `json:"average_rating"`
}

// Status is an entity's lifecycle status.
type Status struct {
	StatusType     string `json:"status_type"`
	Reason         string `json:"reason,omitempty"`
	SuspendedUntil string `json:"suspended_until,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateUser registers the calling agent's user profile.
func (c *Client) CreateUser(ctx context.Context, user User) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodPost, "v0/users", map[string]any{"user": user}, &resp)
	return resp, err
}

// Me returns the user linked to the calling agent.
func (c *Client) Me(ctx context.Context) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodGet, "v0/users/me", nil, &resp)
	return resp, err
}

// UserStatus returns a user's current lifecycle status.
func (c *Client) UserStatus(ctx context.Context, userID string) (Status, error) {
	var resp Status
	endpoint := fmt.Sprintf("v0/users/%s/status", url.PathEscape(userID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AcceptEntity accepts a pending entity. Administrator credentials required.
func (c *Client) AcceptEntity(ctx context.Context, kind, entityID string) (Status, error) {
	var resp Status
	endpoint := fmt.Sprintf("v0/status/%s/%s/accept", url.PathEscape(kind), url.PathEscape(entityID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{}, &resp)
	return resp, err
}

// CreateRequest publishes a request, optionally linked to service types
// and mediums of exchange.
func (c *Client) CreateRequest(ctx context.Context, req Request, serviceTypeIDs, mediumIDs []string) (Request, error) {
	body := map[string]any{
		"request":          req,
		"service_type_ids": serviceTypeIDs,
		"medium_ids":       mediumIDs,
	}
	var resp Request
	err := c.do(ctx, http.MethodPost, "v0/requests", body, &resp)
	return resp, err
}

// CreateOffer publishes an offer.
func (c *Client) CreateOffer(ctx context.Context, off Offer, serviceTypeIDs, mediumIDs []string) (Offer, error) {
	body := map[string]any{
		"offer":            off,
		"service_type_ids": serviceTypeIDs,
		"medium_ids":       mediumIDs,
	}
	var resp Offer
	err := c.do(ctx, http.MethodPost, "v0/offers", body, &resp)
	return resp, err
}

// CreateProposal opens a proposal against a request, an offer, or both.
func (c *Client) CreateProposal(ctx context.Context, p Proposal, requestID, offerID string) (Proposal, error) {
	body := map[string]any{
		"proposal":   p,
		"request_id": requestID,
		"offer_id":   offerID,
	}
	var resp Proposal
	err := c.do(ctx, http.MethodPost, "v0/proposals", body, &resp)
	return resp, err
}

// AcceptProposal accepts a pending proposal and returns the agreement.
func (c *Client) AcceptProposal(ctx context.Context, proposalID string) (Agreement, error) {
	var resp Agreement
	endpoint := fmt.Sprintf("v0/proposals/%s/accept", url.PathEscape(proposalID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{}, &resp)
	return resp, err
}

// CompleteAgreement marks one side of an agreement complete.
func (c *Client) CompleteAgreement(ctx context.Context, agreementID, role string) (Agreement, error) {
	var resp Agreement
	endpoint := fmt.Sprintf("v0/agreements/%s/complete", url.PathEscape(agreementID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"role": role}, &resp)
	return resp, err
}

// CreateReview reviews the other party of a completed agreement.
func (c *Client) CreateReview(ctx context.Context, agreementID string, rating int, comment string) (Review, error) {
	body := map[string]any{"rating": rating, "comment": comment}
	var resp Review
	endpoint := fmt.Sprintf("v0/agreements/%s/reviews", url.PathEscape(agreementID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// UserReviewStatistics returns the aggregate review figures for a user.
func (c *Client) UserReviewStatistics(ctx context.Context, userID string) (ReviewStatistics, error) {
	var resp ReviewStatistics
	endpoint := fmt.Sprintf("v0/users/%s/review-statistics", url.PathEscape(userID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.AgentID != "":
		req.Header.Set("X-Agent-Id", c.AgentID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
