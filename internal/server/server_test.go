package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"offerline/internal/config"
	"offerline/internal/db"
	"offerline/internal/domain"
	"offerline/internal/engine"
	"offerline/internal/exchange"
	"offerline/internal/migrate"
	"offerline/internal/repo"
)

const rootAgent = "agent-root"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, cfg)

	ctx := context.Background()
	root, err := eng.CreateUser(ctx, domain.User{Name: "Root", Email: "root@example.org"}, rootAgent)
	if err != nil {
		t.Fatalf("create root user: %v", err)
	}
	if err := eng.BootstrapAdministrator(ctx, root.Revision.RootID, rootAgent); err != nil {
		t.Fatalf("bootstrap administrator: %v", err)
	}

	handler, err := New(Config{
		Engine:   eng,
		Exchange: exchange.New(eng),
		Repo:     repo.Repo{DB: conn},
		BasePath: "/v0",
		Auth:     AuthConfig{AllowLegacyAgentHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func asRoot(h map[string]string) map[string]string {
	if h == nil {
		h = map[string]string{}
	}
	h["X-Agent-Id"] = rootAgent
	return h
}

func agent(id string) map[string]string {
	return map[string]string{"X-Agent-Id": id}
}

func TestHealthOpenWithoutAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}

func TestUnauthenticatedRequestRefused(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/users", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("expected code unauthorized, got %q", envelope.Error.Code)
	}
}

func TestUserRegistrationAndAcceptance(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/users", map[string]any{
		"user": map[string]any{"name": "Alice", "email": "alice@example.org"},
	}, agent("agent-alice"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create user status %d: %s", res.StatusCode, string(data))
	}
	var created UserResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal user: %v", err)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/users/"+created.ID+"/status", nil, agent("agent-alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", res.StatusCode, string(data))
	}
	var st StatusResponse
	_ = json.Unmarshal(data, &st)
	if st.StatusType != "pending" {
		t.Fatalf("expected pending, got %q", st.StatusType)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/status/users/"+created.ID+"/accept", map[string]any{}, asRoot(nil))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/users/me", nil, agent("agent-alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("users/me status %d: %s", res.StatusCode, string(data))
	}
	var me UserResponse
	_ = json.Unmarshal(data, &me)
	if me.ID != created.ID {
		t.Fatalf("expected user %s, got %s", created.ID, me.ID)
	}
}

func TestStatusChangeRequiresAdministrator(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/users", map[string]any{
		"user": map[string]any{"name": "Bob", "email": "bob@example.org"},
	}, agent("agent-bob"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create user status %d: %s", res.StatusCode, string(data))
	}
	var created UserResponse
	_ = json.Unmarshal(data, &created)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/status/users/"+created.ID+"/accept", map[string]any{}, agent("agent-bob"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, string(data))
	}
}

func TestListingRequiresAcceptedUser(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/users", map[string]any{
		"user": map[string]any{"name": "Carol", "email": "carol@example.org"},
	}, agent("agent-carol"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create user status %d: %s", res.StatusCode, string(data))
	}

	// Still pending, so publishing a request is refused.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/requests", map[string]any{
		"request": map[string]any{"title": "Fix my bike", "description": "flat tire"},
	}, agent("agent-carol"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, string(data))
	}
}

func TestInvalidStatusChangeIsUnprocessable(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/users", map[string]any{
		"user": map[string]any{"name": "Dave", "email": "dave@example.org"},
	}, agent("agent-dave"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create user status %d: %s", res.StatusCode, string(data))
	}
	var created UserResponse
	_ = json.Unmarshal(data, &created)

	// Suspending a pending user skips accepted and must be refused.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/status/users/"+created.ID+"/suspend", map[string]any{
		"reason":        "spam",
		"duration_days": 7,
	}, asRoot(nil))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(data, &envelope)
	if envelope.Error.Code != "invalid_status_change" {
		t.Fatalf("expected code invalid_status_change, got %q", envelope.Error.Code)
	}
}

func TestNotFoundEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/requests/nosuch", nil, asRoot(nil))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("expected code not_found, got %q", envelope.Error.Code)
	}
}

func TestAPIKeyAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/apikeys", map[string]any{
		"name": "ci",
	}, asRoot(nil))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create api key status %d: %s", res.StatusCode, string(data))
	}
	var key APIKeyResponse
	if err := json.Unmarshal(data, &key); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if key.Key == "" {
		t.Fatalf("expected plaintext key on creation")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/administrators/me", nil, map[string]string{"X-Api-Key": key.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key auth status %d: %s", res.StatusCode, string(data))
	}
	var body map[string]bool
	_ = json.Unmarshal(data, &body)
	if !body["administrator"] {
		t.Fatalf("expected administrator=true via api key, got %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/administrators/me", nil, map[string]string{"X-Api-Key": "olk_bogus"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bogus key, got %d: %s", res.StatusCode, string(data))
	}
}

func TestExchangeFlowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	mkUser := func(name, agentID string) string {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/users", map[string]any{
			"user": map[string]any{"name": name, "email": name + "@example.org"},
		}, agent(agentID))
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create %s status %d: %s", name, res.StatusCode, string(data))
		}
		var u UserResponse
		_ = json.Unmarshal(data, &u)
		res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/status/users/"+u.ID+"/accept", map[string]any{}, asRoot(nil))
		if res.StatusCode != http.StatusOK {
			t.Fatalf("accept %s status %d: %s", name, res.StatusCode, string(data))
		}
		return u.ID
	}
	mkUser("alice", "agent-alice")
	mkUser("bob", "agent-bob")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/requests", map[string]any{
		"request": map[string]any{"title": "Garden help", "description": "weeding"},
	}, agent("agent-alice"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create request status %d: %s", res.StatusCode, string(data))
	}
	var request RequestResponse
	_ = json.Unmarshal(data, &request)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/proposals", map[string]any{
		"proposal": map[string]any{
			"service_details": "two afternoons of weeding",
			"terms":           "4 hours",
			"exchange_medium": "time",
		},
		"request_id": request.ID,
	}, agent("agent-bob"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create proposal status %d: %s", res.StatusCode, string(data))
	}
	var proposal ProposalResponse
	_ = json.Unmarshal(data, &proposal)
	if proposal.Proposal.Status != "pending" {
		t.Fatalf("expected pending proposal, got %q", proposal.Proposal.Status)
	}

	// Only the request owner may accept.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/proposals/"+proposal.ID+"/accept", nil, agent("agent-bob"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for proposer accepting, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/proposals/"+proposal.ID+"/accept", nil, agent("agent-alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept proposal status %d: %s", res.StatusCode, string(data))
	}
	var agreement AgreementResponse
	_ = json.Unmarshal(data, &agreement)
	if agreement.Agreement.Status != "active" {
		t.Fatalf("expected active agreement, got %q", agreement.Agreement.Status)
	}

	// Both sides complete; the agreement closes.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/agreements/"+agreement.ID+"/complete", map[string]any{
		"role": "provider",
	}, agent("agent-bob"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("provider complete status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/agreements/"+agreement.ID+"/complete", map[string]any{
		"role": "receiver",
	}, agent("agent-alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("receiver complete status %d: %s", res.StatusCode, string(data))
	}
	var done AgreementResponse
	_ = json.Unmarshal(data, &done)
	if done.Agreement.Status != "completed" {
		t.Fatalf("expected completed agreement, got %q", done.Agreement.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/agreements/"+agreement.ID+"/reviews", map[string]any{
		"rating":  5,
		"comment": "great work",
	}, agent("agent-alice"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create review status %d: %s", res.StatusCode, string(data))
	}
}
