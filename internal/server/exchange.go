package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"offerline/internal/domain"
	"offerline/internal/exchange"
)

func registerProposals(api huma.API, x *exchange.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-proposal",
		Method:        http.MethodPost,
		Path:          "/proposals",
		Summary:       "Open an exchange proposal against a request, an offer, or both",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProposalRequest `json:"body"`
	}) (*struct {
		Body ProposalResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.RequestID == "" && input.Body.OfferID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "request_id or offer_id is required", nil)
		}
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := x.CreateProposal(ctx, exchange.ProposalCreateOptions{
			Proposal:  input.Body.Proposal,
			RequestID: input.Body.RequestID,
			OfferID:   input.Body.OfferID,
			ActorID:   agentID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProposalResponse `json:"body"`
		}{Body: proposalResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-proposals",
		Method:      http.MethodGet,
		Path:        "/proposals",
		Summary:     "List proposals for a listing or user",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ListingID string `query:"listing_id" doc:"Proposals targeting this request or offer"`
		UserID    string `query:"user_id" doc:"Proposals opened by this user"`
	}) (*struct {
		Body []ProposalResponse `json:"body"`
	}, error) {
		var (
			recs []exchange.ProposalRecord
			err  error
		)
		switch {
		case input.ListingID != "":
			recs, err = x.ProposalsForListing(ctx, input.ListingID)
		case input.UserID != "":
			recs, err = x.ProposalsByUser(ctx, input.UserID)
		default:
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "listing_id or user_id is required", nil)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ProposalResponse `json:"body"`
		}{Body: mapProposals(recs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-proposal",
		Method:      http.MethodGet,
		Path:        "/proposals/{proposal_id}",
		Summary:     "Get proposal",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProposalID string `path:"proposal_id"`
	}) (*struct {
		Body ProposalResponse `json:"body"`
	}, error) {
		rec, err := x.GetLatestProposal(ctx, input.ProposalID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProposalResponse `json:"body"`
		}{Body: proposalResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-proposal",
		Method:      http.MethodPost,
		Path:        "/proposals/{proposal_id}/accept",
		Summary:     "Accept a proposal and open the agreement",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProposalID string `path:"proposal_id"`
	}) (*struct {
		Body AgreementResponse `json:"body"`
	}, error) {
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := x.AcceptProposal(ctx, input.ProposalID, agentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AgreementResponse `json:"body"`
		}{Body: agreementResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-proposal",
		Method:      http.MethodPost,
		Path:        "/proposals/{proposal_id}/reject",
		Summary:     "Reject a pending proposal",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProposalID string `path:"proposal_id"`
	}) (*struct{}, error) {
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := x.RejectProposal(ctx, input.ProposalID, agentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "expire-proposal",
		Method:      http.MethodPost,
		Path:        "/proposals/{proposal_id}/expire",
		Summary:     "Flip a pending proposal to expired when its deadline has passed",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProposalID string `path:"proposal_id"`
	}) (*struct {
		Body map[string]bool `json:"body"`
	}, error) {
		if _, authErr := agentIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		expired, err := x.ExpireProposalIfPast(ctx, input.ProposalID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]bool `json:"body"`
		}{Body: map[string]bool{"expired": expired}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-proposal-agreement",
		Method:      http.MethodGet,
		Path:        "/proposals/{proposal_id}/agreement",
		Summary:     "Get the agreement opened from a proposal",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProposalID string `path:"proposal_id"`
	}) (*struct {
		Body AgreementResponse `json:"body"`
	}, error) {
		rec, err := x.AgreementForProposal(ctx, input.ProposalID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AgreementResponse `json:"body"`
		}{Body: agreementResponse(rec)}, nil
	})
}

func registerAgreements(api huma.API, x *exchange.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "get-agreement",
		Method:      http.MethodGet,
		Path:        "/agreements/{agreement_id}",
		Summary:     "Get agreement",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AgreementID string `path:"agreement_id"`
	}) (*struct {
		Body AgreementResponse `json:"body"`
	}, error) {
		rec, err := x.GetLatestAgreement(ctx, input.AgreementID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AgreementResponse `json:"body"`
		}{Body: agreementResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-user-agreements",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/agreements",
		Summary:     "List agreements a user takes part in",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body []AgreementResponse `json:"body"`
	}, error) {
		recs, err := x.AgreementsForUser(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []AgreementResponse `json:"body"`
		}{Body: mapAgreements(recs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-agreement",
		Method:      http.MethodPost,
		Path:        "/agreements/{agreement_id}/complete",
		Summary:     "Mark one side of an agreement complete",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		AgreementID string                   `path:"agreement_id"`
		Body        CompleteAgreementRequest `json:"body"`
	}) (*struct {
		Body AgreementResponse `json:"body"`
	}, error) {
		if input.Body.Role != exchange.RoleProvider && input.Body.Role != exchange.RoleReceiver {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "role must be provider or receiver", nil)
		}
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := x.MarkComplete(ctx, input.AgreementID, input.Body.Role, input.Body.ExpectedRevision, agentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AgreementResponse `json:"body"`
		}{Body: agreementResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-agreement-status",
		Method:      http.MethodPost,
		Path:        "/agreements/{agreement_id}/status",
		Summary:     "Transition an agreement's status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		AgreementID string                       `path:"agreement_id"`
		Body        UpdateAgreementStatusRequest `json:"body"`
	}) (*struct {
		Body AgreementResponse `json:"body"`
	}, error) {
		if input.Body.Status == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "status is required", nil)
		}
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := x.UpdateAgreementStatus(ctx, input.AgreementID, input.Body.Status, input.Body.ExpectedRevision, agentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AgreementResponse `json:"body"`
		}{Body: agreementResponse(rec)}, nil
	})
}

func registerCancellations(api huma.API, x *exchange.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "initiate-cancellation",
		Method:        http.MethodPost,
		Path:          "/agreements/{agreement_id}/cancellations",
		Summary:       "Initiate cancellation of an agreement",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		AgreementID string                      `path:"agreement_id"`
		Body        InitiateCancellationRequest `json:"body"`
	}) (*struct {
		Body CancellationResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Reason == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "reason is required", nil)
		}
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := x.InitiateCancellation(ctx, exchange.CancellationOptions{
			AgreementID:  input.AgreementID,
			Reason:       input.Body.Reason,
			ReasonDetail: input.Body.ReasonDetail,
			Explanation:  input.Body.Explanation,
			Mutual:       input.Body.Mutual,
			ActorID:      agentID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CancellationResponse `json:"body"`
		}{Body: cancellationResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-agreement-cancellations",
		Method:      http.MethodGet,
		Path:        "/agreements/{agreement_id}/cancellations",
		Summary:     "List an agreement's cancellation records",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AgreementID string `path:"agreement_id"`
	}) (*struct {
		Body []CancellationResponse `json:"body"`
	}, error) {
		recs, err := x.CancellationsForAgreement(ctx, input.AgreementID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []CancellationResponse `json:"body"`
		}{Body: mapCancellations(recs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "respond-to-cancellation",
		Method:      http.MethodPost,
		Path:        "/cancellations/{cancellation_id}/respond",
		Summary:     "Consent to or dispute a cancellation",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		CancellationID string                     `path:"cancellation_id"`
		Body           RespondCancellationRequest `json:"body"`
	}) (*struct {
		Body CancellationResponse `json:"body"`
	}, error) {
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := x.RespondToCancellation(ctx, input.CancellationID, input.Body.Consent, input.Body.Notes, agentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CancellationResponse `json:"body"`
		}{Body: cancellationResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-cancellation",
		Method:      http.MethodPost,
		Path:        "/cancellations/{cancellation_id}/review",
		Summary:     "Resolve a disputed cancellation (administrator)",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		CancellationID string                    `path:"cancellation_id"`
		Body           ReviewCancellationRequest `json:"body"`
	}) (*struct {
		Body CancellationResponse `json:"body"`
	}, error) {
		if input.Body.Resolution == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "resolution is required", nil)
		}
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := x.AdminReviewCancellation(ctx, input.CancellationID, input.Body.Resolution, input.Body.AdminNotes, input.Body.ResolutionTerms, agentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CancellationResponse `json:"body"`
		}{Body: cancellationResponse(rec)}, nil
	})
}

func registerReviews(api huma.API, x *exchange.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-review",
		Method:        http.MethodPost,
		Path:          "/agreements/{agreement_id}/reviews",
		Summary:       "Review the other party of a completed agreement",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		AgreementID string              `path:"agreement_id"`
		Body        CreateReviewRequest `json:"body"`
	}) (*struct {
		Body ReviewResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := x.CreateReview(ctx, input.AgreementID, input.Body.Rating, input.Body.Comment, agentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReviewResponse `json:"body"`
		}{Body: reviewResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-agreement-reviews",
		Method:      http.MethodGet,
		Path:        "/agreements/{agreement_id}/reviews",
		Summary:     "List an agreement's reviews",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AgreementID string `path:"agreement_id"`
	}) (*struct {
		Body []ReviewResponse `json:"body"`
	}, error) {
		recs, err := x.ReviewsForAgreement(ctx, input.AgreementID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ReviewResponse `json:"body"`
		}{Body: mapReviews(recs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-user-reviews",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/reviews",
		Summary:     "List reviews received by a user",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body []ReviewResponse `json:"body"`
	}, error) {
		recs, err := x.ReviewsForUser(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ReviewResponse `json:"body"`
		}{Body: mapReviews(recs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user-review-statistics",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/review-statistics",
		Summary:     "Aggregate review statistics for a user",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body domain.ReviewStatistics `json:"body"`
	}, error) {
		stats, err := x.ReviewStatistics(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ReviewStatistics `json:"body"`
		}{Body: stats}, nil
	})
}
