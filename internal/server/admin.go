package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"offerline/internal/domain"
	"offerline/internal/engine"
	"offerline/internal/repo"
	"offerline/internal/status"
	"offerline/internal/store"
)

// statusKinds are the entity kinds whose lifecycle administrators manage over
// the generic status endpoints. Service types and mediums have their own
// approve/reject routes but remain addressable here for suspensions.
var statusKinds = map[string]bool{
	domain.KindUser:             true,
	domain.KindOrganization:     true,
	domain.KindServiceType:      true,
	domain.KindMediumOfExchange: true,
	domain.KindRequest:          true,
	domain.KindOffer:            true,
}

func registerStatusAdmin(api huma.API, e *engine.Engine) {
	type StatusPath struct {
		Kind     string `path:"kind" enum:"users,organizations,service_types,mediums_of_exchange,requests,offers"`
		EntityID string `path:"entity_id"`
	}

	statusChange := func(ctx context.Context, p StatusPath, next status.Status, expectedRevision string) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		if !statusKinds[p.Kind] {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown kind", nil)
		}
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rev, err := e.Status.Update(ctx, status.UpdateRequest{
			Kind:             p.Kind,
			EntityID:         p.EntityID,
			New:              next,
			ExpectedRevision: expectedRevision,
			ActorID:          agentID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatusResponse `json:"body"`
		}{Body: StatusResponse{
			RevisionID:     rev.ID,
			StatusType:     next.StatusType,
			Reason:         next.Reason,
			SuspendedUntil: next.SuspendedUntil,
		}}, nil
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/status/{kind}/{entity_id}",
		Summary:     "Get an entity's lifecycle status",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct{ StatusPath }) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		if !statusKinds[input.Kind] {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown kind", nil)
		}
		st, rev, err := e.Status.Latest(ctx, input.Kind, input.EntityID)
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
		OperationID: "get-status-history",
		Method:      http.MethodGet,
		Path:        "/status/{kind}/{entity_id}/history",
		Summary:     "Get every status revision of an entity, oldest first",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct{ StatusPath }) (*struct {
		Body []StatusResponse `json:"body"`
	}, error) {
		if !statusKinds[input.Kind] {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown kind", nil)
		}
		revs, err := e.Status.History(ctx, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]StatusResponse, 0, len(revs))
		for _, rev := range revs {
			var st status.Status
			if err := rev.Decode(&st); err != nil {
				return nil, handleError(err)
			}
			out = append(out, StatusResponse{
				RevisionID:     rev.ID,
				StatusType:     st.StatusType,
				Reason:         st.Reason,
				SuspendedUntil: st.SuspendedUntil,
			})
		}
		return &struct {
			Body []StatusResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-entity",
		Method:      http.MethodPost,
		Path:        "/status/{kind}/{entity_id}/accept",
		Summary:     "Accept a pending or suspended entity",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		StatusPath
		Body StatusChangeRequest
	}) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		return statusChange(ctx, input.StatusPath, status.NewAccepted(), input.Body.ExpectedRevision)
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-entity",
		Method:      http.MethodPost,
		Path:        "/status/{kind}/{entity_id}/reject",
		Summary:     "Reject a pending entity",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		StatusPath
		Body StatusChangeRequest
	}) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		return statusChange(ctx, input.StatusPath, status.NewRejected(input.Body.Reason), input.Body.ExpectedRevision)
	})

	huma.Register(api, huma.Operation{
		OperationID: "suspend-entity",
		Method:      http.MethodPost,
		Path:        "/status/{kind}/{entity_id}/suspend",
		Summary:     "Suspend an accepted entity",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		StatusPath
		Body StatusChangeRequest
	}) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		if !statusKinds[input.Kind] {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown kind", nil)
		}
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var (
			rev store.Revision
			err error
		)
		if input.Body.Indefinite {
			rev, err = e.Status.SuspendIndefinitely(ctx, input.Kind, input.EntityID, input.Body.Reason, input.Body.ExpectedRevision, agentID)
		} else {
			days := input.Body.DurationDays
			if days == 0 && e.Config != nil {
				days = e.Config.Suspension.DefaultDurationDays
			}
			rev, err = e.Status.SuspendTemporarily(ctx, input.Kind, input.EntityID, input.Body.Reason, days, input.Body.ExpectedRevision, agentID)
		}
		if err != nil {
			return nil, handleError(err)
		}
		var st status.Status
		if err := rev.Decode(&st); err != nil {
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
		OperationID: "unsuspend-entity",
		Method:      http.MethodPost,
		Path:        "/status/{kind}/{entity_id}/unsuspend",
		Summary:     "Restore a suspended entity to accepted",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		StatusPath
		Body StatusChangeRequest
	}) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		return statusChange(ctx, input.StatusPath, status.NewAccepted(), input.Body.ExpectedRevision)
	})

	huma.Register(api, huma.Operation{
		OperationID: "unsuspend-entity-if-time-passed",
		Method:      http.MethodPost,
		Path:        "/status/{kind}/{entity_id}/unsuspend-if-time-passed",
		Summary:     "Lift a temporary suspension whose end date has passed",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct{ StatusPath }) (*struct {
		Body map[string]bool `json:"body"`
	}, error) {
		if !statusKinds[input.Kind] {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown kind", nil)
		}
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		restored, err := e.Status.UnsuspendIfTimePassed(ctx, input.Kind, input.EntityID, agentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]bool `json:"body"`
		}{Body: map[string]bool{"restored": restored}}, nil
	})
}

func registerAdministrators(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "bootstrap-administrator",
		Method:      http.MethodPost,
		Path:        "/administrators/bootstrap",
		Summary:     "Register the first administrator",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Body AdministratorRequest `json:"body"`
	}) (*struct{}, error) {
		if input.Body.UserID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id is required", nil)
		}
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.BootstrapAdministrator(ctx, input.Body.UserID, agentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-administrator",
		Method:      http.MethodPost,
		Path:        "/administrators",
		Summary:     "Grant administrator rights to a user",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body AdministratorRequest `json:"body"`
	}) (*struct{}, error) {
		if input.Body.UserID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id is required", nil)
		}
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.AddAdministrator(ctx, input.Body.UserID, agentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-administrator",
		Method:      http.MethodDelete,
		Path:        "/administrators/{user_id}",
		Summary:     "Revoke administrator rights",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct{}, error) {
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveAdministrator(ctx, input.UserID, agentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-administrators",
		Method:      http.MethodGet,
		Path:        "/administrators",
		Summary:     "List administrators",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []UserResponse `json:"body"`
	}, error) {
		recs, err := e.ListAdministrators(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []UserResponse `json:"body"`
		}{Body: mapUsers(recs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "am-i-administrator",
		Method:      http.MethodGet,
		Path:        "/administrators/me",
		Summary:     "Report whether the calling agent is an administrator",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]bool `json:"body"`
	}, error) {
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		isAdmin, err := e.IsAgentAdministrator(ctx, agentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]bool `json:"body"`
		}{Body: map[string]bool{"administrator": isAdmin}}, nil
	})
}

func registerEvents(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events, newest first",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" doc:"Max events returned (default 50)"`
		Cursor     int64  `query:"cursor" doc:"Only events with id below this"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		events, err := r.LatestEventsFrom(ctx, limit, input.Cursor, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: events}, nil
	})
}

func registerAPIKeys(api huma.API, e *engine.Engine, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Mint an API key for the calling agent",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			return nil, handleError(err)
		}
		secret := "olk_" + hex.EncodeToString(raw)
		key := domain.APIKey{
			ID:        uuid.New().String(),
			AgentID:   agentID,
			Name:      input.Body.Name,
			KeyHash:   repo.HashAPIKey(secret),
			CreatedAt: e.Now().UTC().Format(time.RFC3339),
		}
		if err := r.InsertAPIKey(ctx, nil, key); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{
			ID:        key.ID,
			AgentID:   key.AgentID,
			Name:      key.Name,
			CreatedAt: key.CreatedAt,
			Key:       secret,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/apikeys",
		Summary:     "List the calling agent's API keys",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		agentID, authErr := agentIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := r.ListAPIKeys(ctx, agentID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			out = append(out, APIKeyResponse{
				ID:        k.ID,
				AgentID:   k.AgentID,
				Name:      k.Name,
				CreatedAt: k.CreatedAt,
			})
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/apikeys/{key_id}",
		Summary:     "Delete an API key",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		if _, authErr := agentIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if err := r.DeleteAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
