package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"offerline/internal/engine"
)

func registerUsers(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Register the calling agent's user",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.User.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		if input.Body.User.Email == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "email is required", nil)
		}
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.CreateUser(ctx, input.Body.User, agentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
	}, func(ctx context.Context, input *struct {
		Accepted bool `query:"accepted" doc:"Only users accepted into the network"`
	}) (*struct {
		Body []UserResponse `json:"body"`
	}, error) {
		var (
			recs []engine.UserRecord
			err  error
		)
		if input.Accepted {
			recs, err = e.AcceptedUsers(ctx)
		} else {
			recs, err = e.ListUsers(ctx)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []UserResponse `json:"body"`
		}{Body: mapUsers(recs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-my-user",
		Method:      http.MethodGet,
		Path:        "/users/me",
		Summary:     "Get the calling agent's user",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.UserForAgent(ctx, agentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}",
		Summary:     "Get user",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		rec, err := e.GetLatestUser(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-user",
		Method:      http.MethodPatch,
		Path:        "/users/{user_id}",
		Summary:     "Update user",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
		Body   CreateUserRequest
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.UpdateUser(ctx, input.UserID, input.Body.User, agentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-user-agents",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/agents",
		Summary:     "List the agents registered to a user",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body []string `json:"body"`
	}, error) {
		agents, err := e.AgentsForUser(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: agents}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user-status",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/status",
		Summary:     "Get a user's lifecycle status",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		st, rev, err := e.UserStatus(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatusResponse `json:"body"`
		}{Body: StatusResponse{
			RevisionID:     rev.ID,
			StatusType:     st.StatusType,
			Reason:         st.Reason,
			SuspendedUntil: st.SuspendedUntil,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-user-organizations",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/organizations",
		Summary:     "List organizations a user belongs to",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body []string `json:"body"`
	}, error) {
		ids, err := e.OrganizationsForUser(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: ids}, nil
	})
}
