package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"offerline/internal/engine"
)

// Service types and mediums of exchange share the suggest/approve workflow:
// administrators create entries that are live immediately, everyone else
// suggests entries that wait for approval.

func registerServiceTypes(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-service-type",
		Method:        http.MethodPost,
		Path:          "/service-types",
		Summary:       "Create service type (administrator)",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateServiceTypeRequest `json:"body"`
	}) (*struct {
		Body ServiceTypeResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ServiceType.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.CreateServiceType(ctx, input.Body.ServiceType, agentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ServiceTypeResponse `json:"body"`
		}{Body: serviceTypeResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "suggest-service-type",
		Method:        http.MethodPost,
		Path:          "/service-types/suggest",
		Summary:       "Suggest a service type for approval",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateServiceTypeRequest `json:"body"`
	}) (*struct {
		Body ServiceTypeResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ServiceType.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.SuggestServiceType(ctx, input.Body.ServiceType, agentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ServiceTypeResponse `json:"body"`
		}{Body: serviceTypeResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-service-types",
		Method:      http.MethodGet,
		Path:        "/service-types",
		Summary:     "List service types",
	}, func(ctx context.Context, input *struct {
		Accepted bool   `query:"accepted" doc:"Only approved service types"`
		Tag      string `query:"tag" doc:"Filter by tag"`
	}) (*struct {
		Body []ServiceTypeResponse `json:"body"`
	}, error) {
		var (
			recs []engine.ServiceTypeRecord
			err  error
		)
		switch {
		case input.Tag != "":
			recs, err = e.ServiceTypesByTag(ctx, input.Tag)
		case input.Accepted:
			recs, err = e.AcceptedServiceTypes(ctx)
		default:
			recs, err = e.ListServiceTypes(ctx)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ServiceTypeResponse `json:"body"`
		}{Body: mapServiceTypes(recs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-service-type-tags",
		Method:      http.MethodGet,
		Path:        "/service-types/tags",
		Summary:     "List every tag in use",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []string `json:"body"`
	}, error) {
		tags, err := e.AllTags(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: tags}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-service-type",
		Method:      http.MethodGet,
		Path:        "/service-types/{service_type_id}",
		Summary:     "Get service type",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ServiceTypeID string `path:"service_type_id"`
	}) (*struct {
		Body ServiceTypeResponse `json:"body"`
	}, error) {
		rec, err := e.GetLatestServiceType(ctx, input.ServiceTypeID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ServiceTypeResponse `json:"body"`
		}{Body: serviceTypeResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-service-type",
		Method:      http.MethodPatch,
		Path:        "/service-types/{service_type_id}",
		Summary:     "Update service type (administrator)",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ServiceTypeID string `path:"service_type_id"`
		Body          CreateServiceTypeRequest
	}) (*struct {
		Body ServiceTypeResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.UpdateServiceType(ctx, input.ServiceTypeID, input.Body.ServiceType, agentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ServiceTypeResponse `json:"body"`
		}{Body: serviceTypeResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-service-type",
		Method:      http.MethodDelete,
		Path:        "/service-types/{service_type_id}",
		Summary:     "Delete service type (administrator)",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ServiceTypeID string `path:"service_type_id"`
	}) (*struct{}, error) {
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteServiceType(ctx, input.ServiceTypeID, agentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-service-type",
		Method:      http.MethodPost,
		Path:        "/service-types/{service_type_id}/approve",
		Summary:     "Approve a suggested service type",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ServiceTypeID string `path:"service_type_id"`
	}) (*struct{}, error) {
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.ApproveServiceType(ctx, input.ServiceTypeID, agentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-service-type",
		Method:      http.MethodPost,
		Path:        "/service-types/{service_type_id}/reject",
		Summary:     "Reject a suggested service type",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ServiceTypeID string `path:"service_type_id"`
		Body          StatusChangeRequest
	}) (*struct{}, error) {
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RejectServiceType(ctx, input.ServiceTypeID, input.Body.Reason, agentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-service-type-requests",
		Method:      http.MethodGet,
		Path:        "/service-types/{service_type_id}/requests",
		Summary:     "List requests linked to a service type",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ServiceTypeID string `path:"service_type_id"`
	}) (*struct {
		Body []string `json:"body"`
	}, error) {
		ids, err := e.RequestsForServiceType(ctx, input.ServiceTypeID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: ids}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-service-type-offers",
		Method:      http.MethodGet,
		Path:        "/service-types/{service_type_id}/offers",
		Summary:     "List offers linked to a service type",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ServiceTypeID string `path:"service_type_id"`
	}) (*struct {
		Body []string `json:"body"`
	}, error) {
		ids, err := e.OffersForServiceType(ctx, input.ServiceTypeID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: ids}, nil
	})
}

func registerMediums(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-medium",
		Method:        http.MethodPost,
		Path:          "/mediums",
		Summary:       "Create medium of exchange (administrator)",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateMediumRequest `json:"body"`
	}) (*struct {
		Body MediumResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Medium.Code == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "code is required", nil)
		}
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.CreateMedium(ctx, input.Body.Medium, agentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MediumResponse `json:"body"`
		}{Body: mediumResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "suggest-medium",
		Method:        http.MethodPost,
		Path:          "/mediums/suggest",
		Summary:       "Suggest a medium of exchange for approval",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateMediumRequest `json:"body"`
	}) (*struct {
		Body MediumResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Medium.Code == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "code is required", nil)
		}
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.SuggestMedium(ctx, input.Body.Medium, agentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MediumResponse `json:"body"`
		}{Body: mediumResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-mediums",
		Method:      http.MethodGet,
		Path:        "/mediums",
		Summary:     "List mediums of exchange",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"all,pending,approved,rejected" doc:"Filter by approval state"`
	}) (*struct {
		Body []MediumResponse `json:"body"`
	}, error) {
		var (
			recs []engine.MediumRecord
			err  error
		)
		switch input.Status {
		case "", "all":
			recs, err = e.ListMediums(ctx)
		case "pending":
			recs, err = e.PendingMediums(ctx)
		case "approved":
			recs, err = e.ApprovedMediums(ctx)
		case "rejected":
			recs, err = e.RejectedMediums(ctx)
		default:
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown status filter", nil)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []MediumResponse `json:"body"`
		}{Body: mapMediums(recs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-medium",
		Method:      http.MethodGet,
		Path:        "/mediums/{medium_id}",
		Summary:     "Get medium of exchange",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MediumID string `path:"medium_id"`
	}) (*struct {
		Body MediumResponse `json:"body"`
	}, error) {
		rec, err := e.GetLatestMedium(ctx, input.MediumID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MediumResponse `json:"body"`
		}{Body: mediumResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-medium",
		Method:      http.MethodPatch,
		Path:        "/mediums/{medium_id}",
		Summary:     "Update medium of exchange (administrator)",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		MediumID string `path:"medium_id"`
		Body     CreateMediumRequest
	}) (*struct {
		Body MediumResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.UpdateMedium(ctx, input.MediumID, input.Body.Medium, agentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MediumResponse `json:"body"`
		}{Body: mediumResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-medium",
		Method:      http.MethodDelete,
		Path:        "/mediums/{medium_id}",
		Summary:     "Delete medium of exchange (administrator)",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		MediumID string `path:"medium_id"`
	}) (*struct{}, error) {
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteMedium(ctx, input.MediumID, agentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-medium",
		Method:      http.MethodPost,
		Path:        "/mediums/{medium_id}/approve",
		Summary:     "Approve a suggested medium of exchange",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		MediumID string `path:"medium_id"`
	}) (*struct{}, error) {
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.ApproveMedium(ctx, input.MediumID, agentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-medium",
		Method:      http.MethodPost,
		Path:        "/mediums/{medium_id}/reject",
		Summary:     "Reject a suggested medium of exchange",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		MediumID string `path:"medium_id"`
		Body     StatusChangeRequest
	}) (*struct{}, error) {
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RejectMedium(ctx, input.MediumID, input.Body.Reason, agentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-medium-requests",
		Method:      http.MethodGet,
		Path:        "/mediums/{medium_id}/requests",
		Summary:     "List requests linked to a medium",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MediumID string `path:"medium_id"`
	}) (*struct {
		Body []string `json:"body"`
	}, error) {
		ids, err := e.RequestsForMedium(ctx, input.MediumID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: ids}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-medium-offers",
		Method:      http.MethodGet,
		Path:        "/mediums/{medium_id}/offers",
		Summary:     "List offers linked to a medium",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MediumID string `path:"medium_id"`
	}) (*struct {
		Body []string `json:"body"`
	}, error) {
		ids, err := e.OffersForMedium(ctx, input.MediumID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: ids}, nil
	})
}
