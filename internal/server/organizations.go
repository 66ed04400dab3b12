package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"offerline/internal/engine"
)

func registerOrganizations(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-organization",
		Method:        http.MethodPost,
		Path:          "/organizations",
		Summary:       "Create organization",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateOrganizationRequest `json:"body"`
	}) (*struct {
		Body OrganizationResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Organization.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.CreateOrganization(ctx, input.Body.Organization, agentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrganizationResponse `json:"body"`
		}{Body: organizationResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-organizations",
		Method:      http.MethodGet,
		Path:        "/organizations",
		Summary:     "List organizations",
	}, func(ctx context.Context, input *struct {
		Accepted bool `query:"accepted" doc:"Only organizations accepted into the network"`
	}) (*struct {
		Body []OrganizationResponse `json:"body"`
	}, error) {
		var (
			recs []engine.OrganizationRecord
			err  error
		)
		if input.Accepted {
			recs, err = e.AcceptedOrganizations(ctx)
		} else {
			recs, err = e.ListOrganizations(ctx)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []OrganizationResponse `json:"body"`
		}{Body: mapOrganizations(recs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-organization",
		Method:      http.MethodGet,
		Path:        "/organizations/{org_id}",
		Summary:     "Get organization",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*struct {
		Body OrganizationResponse `json:"body"`
	}, error) {
		rec, err := e.GetLatestOrganization(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrganizationResponse `json:"body"`
		}{Body: organizationResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-organization",
		Method:      http.MethodPatch,
		Path:        "/organizations/{org_id}",
		Summary:     "Update organization",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		Body  CreateOrganizationRequest
	}) (*struct {
		Body OrganizationResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.UpdateOrganization(ctx, input.OrgID, input.Body.Organization, agentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrganizationResponse `json:"body"`
		}{Body: organizationResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-organization",
		Method:      http.MethodDelete,
		Path:        "/organizations/{org_id}",
		Summary:     "Delete organization",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*struct{}, error) {
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteOrganization(ctx, input.OrgID, agentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-organization-members",
		Method:      http.MethodGet,
		Path:        "/organizations/{org_id}/members",
		Summary:     "List organization members",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*struct {
		Body []string `json:"body"`
	}, error) {
		members, err := e.Members(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: members}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-organization-member",
		Method:      http.MethodPost,
		Path:        "/organizations/{org_id}/members",
		Summary:     "Add a member",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		OrgID string        `path:"org_id"`
		Body  MemberRequest `json:"body"`
	}) (*struct{}, error) {
		if input.Body.UserID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id is required", nil)
		}
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.AddMember(ctx, input.OrgID, input.Body.UserID, agentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-organization-member",
		Method:      http.MethodDelete,
		Path:        "/organizations/{org_id}/members/{user_id}",
		Summary:     "Remove a member",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		OrgID  string `path:"org_id"`
		UserID string `path:"user_id"`
	}) (*struct{}, error) {
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveMember(ctx, input.OrgID, input.UserID, agentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-organization-coordinators",
		Method:      http.MethodGet,
		Path:        "/organizations/{org_id}/coordinators",
		Summary:     "List organization coordinators",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*struct {
		Body []string `json:"body"`
	}, error) {
		coords, err := e.Coordinators(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: coords}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-organization-coordinator",
		Method:      http.MethodPost,
		Path:        "/organizations/{org_id}/coordinators",
		Summary:     "Promote a member to coordinator",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		OrgID string        `path:"org_id"`
		Body  MemberRequest `json:"body"`
	}) (*struct{}, error) {
		if input.Body.UserID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id is required", nil)
		}
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.AddCoordinator(ctx, input.OrgID, input.Body.UserID, agentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-organization-coordinator",
		Method:      http.MethodDelete,
		Path:        "/organizations/{org_id}/coordinators/{user_id}",
		Summary:     "Demote a coordinator",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		OrgID  string `path:"org_id"`
		UserID string `path:"user_id"`
	}) (*struct{}, error) {
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveCoordinator(ctx, input.OrgID, input.UserID, agentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "leave-organization",
		Method:      http.MethodPost,
		Path:        "/organizations/{org_id}/leave",
		Summary:     "Leave an organization",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*struct{}, error) {
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.LeaveOrganization(ctx, input.OrgID, agentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
