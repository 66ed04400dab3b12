package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"offerline/internal/admin"
	"offerline/internal/engine"
	"offerline/internal/exchange"
	"offerline/internal/obs"
	"offerline/internal/repo"
	"offerline/internal/status"
	"offerline/internal/store"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	Exchange *exchange.Service
	Repo     repo.Repo
	BasePath string
	Auth     AuthConfig
	// Metrics exposes Prometheus metrics on /metrics when true.
	Metrics bool
	// AccessLog emits a JSON log line per request when true.
	AccessLog bool
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_status_change"`
	Message string         `json:"message" example:"status change from pending to suspended temporarily is not allowed"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"from\":\"pending\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Offerline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope above.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	if cfg.Metrics {
		obs.Init()
		router.Use(obs.Instrument)
		router.Handle("/metrics", obs.Handler())
	}
	if cfg.AccessLog {
		router.Use(accessLog)
	}
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Repo))
	hcfg := huma.DefaultConfig("Offerline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerUsers(group, cfg.Engine)
	registerOrganizations(group, cfg.Engine)
	registerServiceTypes(group, cfg.Engine)
	registerMediums(group, cfg.Engine)
	registerRequests(group, cfg.Engine)
	registerOffers(group, cfg.Engine)
	registerStatusAdmin(group, cfg.Engine)
	registerAdministrators(group, cfg.Engine)
	registerProposals(group, cfg.Exchange)
	registerAgreements(group, cfg.Exchange)
	registerCancellations(group, cfg.Exchange)
	registerReviews(group, cfg.Exchange)
	registerEvents(group, cfg.Repo)
	registerAPIKeys(group, cfg.Engine, cfg.Repo)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(statusCode int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(statusCode)
	}
	return &apiError{
		status: statusCode,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps domain errors to HTTP status codes.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var unauthorized admin.UnauthorizedError
	if errors.As(err, &unauthorized) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"action": unauthorized.Action})
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var revConflict status.RevisionConflictError
	if errors.As(err, &revConflict) {
		return newAPIError(http.StatusConflict, "revision_conflict", err.Error(), map[string]any{
			"expected": revConflict.Expected,
			"actual":   revConflict.Actual,
		})
	}
	var badChange status.InvalidStatusChangeError
	if errors.As(err, &badChange) {
		return newAPIError(http.StatusUnprocessableEntity, "invalid_status_change", err.Error(), map[string]any{
			"from": badChange.From,
			"to":   badChange.To,
		})
	}
	var badTransition exchange.InvalidTransitionError
	if errors.As(err, &badTransition) {
		return newAPIError(http.StatusUnprocessableEntity, "invalid_transition", err.Error(), map[string]any{
			"from": badTransition.From,
			"to":   badTransition.To,
		})
	}
	var linkRefused engine.LinkTargetNotAcceptedError
	if errors.As(err, &linkRefused) {
		return newAPIError(http.StatusUnprocessableEntity, "link_target_not_accepted", err.Error(), map[string]any{
			"kind": linkRefused.Kind,
			"id":   linkRefused.ID,
		})
	}
	var serErr *store.SerializationError
	if errors.As(err, &serErr) {
		return newAPIError(http.StatusInternalServerError, "internal_error", "stored content does not decode", nil)
	}
	switch {
	case isConflict(err):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	case isUnprocessable(err):
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func isConflict(err error) bool {
	return errors.As(err, &engine.UserAlreadyExistsError{}) ||
		errors.As(err, &engine.AlreadyMemberError{}) ||
		errors.As(err, &engine.AlreadyCoordinatorError{}) ||
		errors.As(err, &engine.NotMemberError{}) ||
		errors.As(err, &engine.NotCoordinatorError{}) ||
		errors.As(err, &engine.LastMemberError{}) ||
		errors.As(err, &engine.LastCoordinatorError{}) ||
		errors.As(err, &admin.AlreadyAdminError{}) ||
		errors.As(err, &admin.LastAdminError{}) ||
		errors.As(err, &status.AlreadyStatusError{}) ||
		errors.As(err, &exchange.AlreadyRespondedError{}) ||
		errors.As(err, &exchange.AlreadyReviewedError{})
}

func isUnprocessable(err error) bool {
	return errors.As(err, &status.DurationInDaysNotProvidedError{}) ||
		errors.As(err, &exchange.ProposalExpiredError{}) ||
		errors.As(err, &exchange.AgreementNotCompletedError{}) ||
		errors.As(err, &exchange.InvalidRatingError{})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func bodyBytes(ctx context.Context) []byte {
	if b, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return b
	}
	return nil
}

// accessLog emits one JSON line per request.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &recordingWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		obs.LogRequest(map[string]any{
			"ts":          start.UTC().Format(time.RFC3339),
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.code,
			"duration_ms": time.Since(start).Milliseconds(),
			"remote":      r.RemoteAddr,
		})
	})
}

type recordingWriter struct {
	http.ResponseWriter
	code int
}

func (w *recordingWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Offerline API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css"/>
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.onload = () => {
        window.ui = SwaggerUIBundle({url: %q, dom_id: "#swagger-ui"});
      };
    </script>
  </body>
</html>`, specURL)
}
