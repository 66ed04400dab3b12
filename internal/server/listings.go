package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"offerline/internal/engine"
)

func registerRequests(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-request",
		Method:        http.MethodPost,
		Path:          "/requests",
		Summary:       "Publish a request",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateRequestRequest `json:"body"`
	}) (*struct {
		Body RequestResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Request.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.CreateRequest(ctx, engine.RequestCreateOptions{
			Request:        input.Body.Request,
			ServiceTypeIDs: input.Body.ServiceTypeIDs,
			MediumIDs:      input.Body.MediumIDs,
			ActorID:        agentID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequestResponse `json:"body"`
		}{Body: requestResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-requests",
		Method:      http.MethodGet,
		Path:        "/requests",
		Summary:     "List requests",
	}, func(ctx context.Context, input *struct {
		UserID string `query:"user_id" doc:"Only requests owned by this user"`
		OrgID  string `query:"organization_id" doc:"Only requests owned by this organization"`
	}) (*struct {
		Body []RequestResponse `json:"body"`
	}, error) {
		var (
			recs []engine.RequestRecord
			err  error
		)
		switch {
		case input.UserID != "":
			recs, err = e.RequestsForUser(ctx, input.UserID)
		case input.OrgID != "":
			recs, err = e.RequestsForOrganization(ctx, input.OrgID)
		default:
			recs, err = e.ListRequests(ctx)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []RequestResponse `json:"body"`
		}{Body: mapRequests(recs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-request",
		Method:      http.MethodGet,
		Path:        "/requests/{request_id}",
		Summary:     "Get request",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RequestID string `path:"request_id"`
	}) (*struct {
		Body RequestResponse `json:"body"`
	}, error) {
		rec, err := e.GetLatestRequest(ctx, input.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequestResponse `json:"body"`
		}{Body: requestResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-request",
		Method:      http.MethodPatch,
		Path:        "/requests/{request_id}",
		Summary:     "Update request",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		RequestID string `path:"request_id"`
		Body      CreateRequestRequest
	}) (*struct {
		Body RequestResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.UpdateRequest(ctx, input.RequestID, input.Body.Request, agentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequestResponse `json:"body"`
		}{Body: requestResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-request",
		Method:      http.MethodDelete,
		Path:        "/requests/{request_id}",
		Summary:     "Delete request",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		RequestID string `path:"request_id"`
	}) (*struct{}, error) {
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteRequest(ctx, input.RequestID, agentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-request-service-types",
		Method:      http.MethodPut,
		Path:        "/requests/{request_id}/service-types",
		Summary:     "Replace the request's service type links",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		RequestID string             `path:"request_id"`
		Body      UpdateLinksRequest `json:"body"`
	}) (*struct{}, error) {
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.UpdateRequestServiceTypes(ctx, input.RequestID, input.Body.IDs, agentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-request-mediums",
		Method:      http.MethodPut,
		Path:        "/requests/{request_id}/mediums",
		Summary:     "Replace the request's medium links",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		RequestID string             `path:"request_id"`
		Body      UpdateLinksRequest `json:"body"`
	}) (*struct{}, error) {
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.UpdateRequestMediums(ctx, input.RequestID, input.Body.IDs, agentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-request-service-types",
		Method:      http.MethodGet,
		Path:        "/requests/{request_id}/service-types",
		Summary:     "List the request's linked service types",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RequestID string `path:"request_id"`
	}) (*struct {
		Body []string `json:"body"`
	}, error) {
		ids, err := e.ServiceTypesForRequest(ctx, input.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: ids}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-request-mediums",
		Method:      http.MethodGet,
		Path:        "/requests/{request_id}/mediums",
		Summary:     "List the request's linked mediums",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RequestID string `path:"request_id"`
	}) (*struct {
		Body []string `json:"body"`
	}, error) {
		ids, err := e.MediumsForEntity(ctx, input.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: ids}, nil
	})
}

func registerOffers(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-offer",
		Method:        http.MethodPost,
		Path:          "/offers",
		Summary:       "Publish an offer",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateOfferRequest `json:"body"`
	}) (*struct {
		Body OfferResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Offer.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.CreateOffer(ctx, engine.OfferCreateOptions{
			Offer:          input.Body.Offer,
			ServiceTypeIDs: input.Body.ServiceTypeIDs,
			MediumIDs:      input.Body.MediumIDs,
			ActorID:        agentID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OfferResponse `json:"body"`
		}{Body: offerResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-offers",
		Method:      http.MethodGet,
		Path:        "/offers",
		Summary:     "List offers",
	}, func(ctx context.Context, input *struct {
		UserID string `query:"user_id" doc:"Only offers owned by this user"`
		OrgID  string `query:"organization_id" doc:"Only offers owned by this organization"`
	}) (*struct {
		Body []OfferResponse `json:"body"`
	}, error) {
		var (
			recs []engine.OfferRecord
			err  error
		)
		switch {
		case input.UserID != "":
			recs, err = e.OffersForUser(ctx, input.UserID)
		case input.OrgID != "":
			recs, err = e.OffersForOrganization(ctx, input.OrgID)
		default:
			recs, err = e.ListOffers(ctx)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []OfferResponse `json:"body"`
		}{Body: mapOffers(recs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-offer",
		Method:      http.MethodGet,
		Path:        "/offers/{offer_id}",
		Summary:     "Get offer",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OfferID string `path:"offer_id"`
	}) (*struct {
		Body OfferResponse `json:"body"`
	}, error) {
		rec, err := e.GetLatestOffer(ctx, input.OfferID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OfferResponse `json:"body"`
		}{Body: offerResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-offer",
		Method:      http.MethodPatch,
		Path:        "/offers/{offer_id}",
		Summary:     "Update offer",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		OfferID string `path:"offer_id"`
		Body    CreateOfferRequest
	}) (*struct {
		Body OfferResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.UpdateOffer(ctx, input.OfferID, input.Body.Offer, agentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OfferResponse `json:"body"`
		}{Body: offerResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-offer",
		Method:      http.MethodDelete,
		Path:        "/offers/{offer_id}",
		Summary:     "Delete offer",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		OfferID string `path:"offer_id"`
	}) (*struct{}, error) {
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteOffer(ctx, input.OfferID, agentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-offer-service-types",
		Method:      http.MethodPut,
		Path:        "/offers/{offer_id}/service-types",
		Summary:     "Replace the offer's service type links",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		OfferID string             `path:"offer_id"`
		Body    UpdateLinksRequest `json:"body"`
	}) (*struct{}, error) {
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.UpdateOfferServiceTypes(ctx, input.OfferID, input.Body.IDs, agentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-offer-mediums",
		Method:      http.MethodPut,
		Path:        "/offers/{offer_id}/mediums",
		Summary:     "Replace the offer's medium links",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		OfferID string             `path:"offer_id"`
		Body    UpdateLinksRequest `json:"body"`
	}) (*struct{}, error) {
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.UpdateOfferMediums(ctx, input.OfferID, input.Body.IDs, agentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-offer-service-types",
		Method:      http.MethodGet,
		Path:        "/offers/{offer_id}/service-types",
		Summary:     "List the offer's linked service types",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OfferID string `path:"offer_id"`
	}) (*struct {
		Body []string `json:"body"`
	}, error) {
		ids, err := e.ServiceTypesForOffer(ctx, input.OfferID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: ids}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-offer-mediums",
		Method:      http.MethodGet,
		Path:        "/offers/{offer_id}/mediums",
		Summary:     "List the offer's linked mediums",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OfferID string `path:"offer_id"`
	}) (*struct {
		Body []string `json:"body"`
	}, error) {
		ids, err := e.MediumsForEntity(ctx, input.OfferID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: ids}, nil
	})
}
