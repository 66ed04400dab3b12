package engine

import (
	"context"
	"database/sql"
	"time"

	"offerline/internal/admin"
	"offerline/internal/config"
	"offerline/internal/domain"
	"offerline/internal/events"
	"offerline/internal/status"
	"offerline/internal/store"
)

// Edge types maintained by the engine.
const (
	EdgeTypeMyUser      = "my_user"      // agent -> user original
	EdgeTypeUserAgent   = "user_agent"   // user original -> agent
	EdgeTypeMember      = "member"       // organization -> user
	EdgeTypeCoordinator = "coordinator"  // organization -> user
	EdgeTypeOwner       = "owner"        // request/offer -> user or organization
	EdgeTypeServiceType = "service_type" // request/offer -> service type
	EdgeTypeMedium      = "medium"       // request/offer -> medium of exchange
)

// Engine hosts the coordinator operations over the versioned-entity store.
// Every mutation runs in one SQL transaction and appends an event.
type Engine struct {
	DB     *sql.DB
	Store  *store.Store
	Status *status.Tracker
	Admin  *admin.Service
	Events events.Writer
	Config *config.Config
	// Now is injectable for tests.
	Now func() time.Time
}

func New(conn *sql.DB, cfg *config.Config) *Engine {
	e := &Engine{
		DB:     conn,
		Store:  store.New(conn),
		Config: cfg,
		Now:    time.Now,
	}
	e.Events = events.Writer{DB: conn, Now: func() time.Time { return e.now() }}
	e.Store.Now = func() time.Time { return e.now() }
	e.Admin = &admin.Service{
		Store:                    e.Store,
		Config:                   cfg,
		OrganizationCoordinators: e.coordinatorIDs,
		UserForAgent:             e.userIDForAgent,
	}
	e.Status = &status.Tracker{
		DB:     conn,
		Store:  e.Store,
		Admin:  e.Admin,
		Config: cfg,
		Events: e.Events,
		Now:    func() time.Time { return e.now() },
	}
	return e
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// authorizeMutation applies the shared author-or-administrator policy.
func (e *Engine) authorizeMutation(ctx context.Context, tx *sql.Tx, action, entityID, orgID, agentID string) error {
	ok, err := e.Admin.CanMutate(ctx, tx, entityID, orgID, agentID)
	if err != nil {
		return err
	}
	if !ok {
		return admin.UnauthorizedError{Action: action}
	}
	return nil
}

// requireAdmin gates administrator-only operations.
func (e *Engine) requireAdmin(ctx context.Context, tx *sql.Tx, action, agentID string) error {
	ok, err := e.Admin.IsAgentAdministrator(ctx, tx, agentID)
	if err != nil {
		return err
	}
	if !ok {
		return admin.UnauthorizedError{Action: action}
	}
	return nil
}

// RequireAcceptedUser gates operations reserved for accepted members of the
// network. Administrators pass regardless of their user status.
func (e *Engine) RequireAcceptedUser(ctx context.Context, tx *sql.Tx, action, agentID string) (string, error) {
	userID, err := e.userIDForAgent(ctx, tx, agentID)
	if err != nil {
		return "", err
	}
	if ok, err := e.Admin.IsAgentAdministrator(ctx, tx, agentID); err != nil {
		return "", err
	} else if ok {
		return userID, nil
	}
	if userID == "" {
		return "", admin.UnauthorizedError{Action: action}
	}
	accepted, err := e.Store.InBucket(ctx, tx, status.AcceptedBucket(domain.KindUser), userID)
	if err != nil {
		return "", err
	}
	if !accepted {
		return "", admin.UnauthorizedError{Action: action}
	}
	return userID, nil
}

// latestAs decodes the latest live revision of an entity into v and returns it.
func latestAs(ctx context.Context, tx *sql.Tx, s *store.Store, id string, v any) (store.Revision, error) {
	original, err := s.ResolveOriginal(ctx, tx, id)
	if err != nil {
		return store.Revision{}, err
	}
	rev, err := s.Latest(ctx, tx, original)
	if err != nil {
		return store.Revision{}, err
	}
	if err := rev.Decode(v); err != nil {
		return store.Revision{}, err
	}
	return rev, nil
}
