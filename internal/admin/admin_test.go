package admin_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"offerline/internal/admin"
	"offerline/internal/config"
	"offerline/internal/db"
	"offerline/internal/domain"
	"offerline/internal/migrate"
	"offerline/internal/store"
)

func newService(t *testing.T) (*store.Store, *admin.Service) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st := store.New(conn)
	return st, &admin.Service{Store: st, Config: config.Default()}
}

func createUser(t *testing.T, st *store.Store, name, agent string) store.Revision {
	t.Helper()
	rev, err := st.Create(context.Background(), nil, domain.KindUser, map[string]string{"name": name}, agent)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return rev
}

func TestRegistry(t *testing.T) {
	st, svc := newService(t)
	ctx := context.Background()

	root := createUser(t, st, "root", "agent-root")
	if err := svc.RegisterAdministrator(ctx, nil, root.ID, []string{"agent-root"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.RegisterAdministrator(ctx, nil, root.ID, []string{"agent-root"}); !errors.As(err, &admin.AlreadyAdminError{}) {
		t.Fatalf("double register: got %v, want AlreadyAdminError", err)
	}

	ok, err := svc.IsAgentAdministrator(ctx, nil, "agent-root")
	if err != nil || !ok {
		t.Fatalf("agent-root should be administrator (ok=%v err=%v)", ok, err)
	}
	ok, err = svc.IsUserAdministrator(ctx, nil, root.ID)
	if err != nil || !ok {
		t.Fatalf("root user should be administrator (ok=%v err=%v)", ok, err)
	}

	// Membership follows the user entity, not a particular revision.
	updated, err := st.Update(ctx, nil, root.ID, map[string]string{"name": "root v2"}, "agent-root")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	ok, err = svc.IsUserAdministrator(ctx, nil, updated.ID)
	if err != nil || !ok {
		t.Fatalf("later revision should still resolve as administrator (ok=%v err=%v)", ok, err)
	}
}

func TestAddRequiresAdministrator(t *testing.T) {
	st, svc := newService(t)
	ctx := context.Background()

	root := createUser(t, st, "root", "agent-root")
	other := createUser(t, st, "other", "agent-other")
	if err := svc.RegisterAdministrator(ctx, nil, root.ID, []string{"agent-root"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	err := svc.AddAdministrator(ctx, nil, "agent-other", other.ID, []string{"agent-other"})
	if !errors.As(err, &admin.UnauthorizedError{}) {
		t.Fatalf("non-admin add: got %v, want UnauthorizedError", err)
	}
	if err := svc.AddAdministrator(ctx, nil, "agent-root", other.ID, []string{"agent-other"}); err != nil {
		t.Fatalf("admin add: %v", err)
	}
	admins, err := svc.Administrators(ctx, nil)
	if err != nil {
		t.Fatalf("administrators: %v", err)
	}
	if len(admins) != 2 {
		t.Fatalf("got %d administrators, want 2", len(admins))
	}
}

func TestCannotRemoveLastAdministrator(t *testing.T) {
	st, svc := newService(t)
	ctx := context.Background()

	root := createUser(t, st, "root", "agent-root")
	if err := svc.RegisterAdministrator(ctx, nil, root.ID, []string{"agent-root"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := svc.RemoveAdministrator(ctx, nil, "agent-root", root.ID, []string{"agent-root"})
	if !errors.As(err, &admin.LastAdminError{}) {
		t.Fatalf("remove last: got %v, want LastAdminError", err)
	}

	other := createUser(t, st, "other", "agent-other")
	if err := svc.AddAdministrator(ctx, nil, "agent-root", other.ID, []string{"agent-other"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := svc.RemoveAdministrator(ctx, nil, "agent-root", root.ID, []string{"agent-root"}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	ok, err := svc.IsAgentAdministrator(ctx, nil, "agent-root")
	if err != nil || ok {
		t.Fatalf("agent-root should no longer be administrator (ok=%v err=%v)", ok, err)
	}
}

func TestCanMutate(t *testing.T) {
	st, svc := newService(t)
	ctx := context.Background()

	root := createUser(t, st, "root", "agent-root")
	if err := svc.RegisterAdministrator(ctx, nil, root.ID, []string{"agent-root"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	rec, err := st.Create(ctx, nil, domain.KindRequest, map[string]string{"title": "fix fence"}, "agent-author")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cases := []struct {
		agent string
		want  bool
	}{
		{"agent-author", true},
		{"agent-root", true},
		{"agent-stranger", false},
	}
	for _, tc := range cases {
		ok, err := svc.CanMutate(ctx, nil, rec.ID, "", tc.agent)
		if err != nil {
			t.Fatalf("can mutate (%s): %v", tc.agent, err)
		}
		if ok != tc.want {
			t.Fatalf("can mutate (%s) = %v, want %v", tc.agent, ok, tc.want)
		}
	}
}

func TestCanMutateOrganizationCoordinators(t *testing.T) {
	st, svc := newService(t)
	ctx := context.Background()

	coordinator := createUser(t, st, "coord", "agent-coord")
	svc.UserForAgent = func(ctx context.Context, tx *sql.Tx, agentID string) (string, error) {
		if agentID == "agent-coord" {
			return coordinator.ID, nil
		}
		return "", nil
	}
	svc.OrganizationCoordinators = func(ctx context.Context, tx *sql.Tx, orgID string) ([]string, error) {
		return []string{coordinator.ID}, nil
	}

	rec, err := st.Create(ctx, nil, domain.KindOffer, map[string]string{"title": "welding"}, "agent-author")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ok, err := svc.CanMutate(ctx, nil, rec.ID, "org-1", "agent-coord")
	if err != nil {
		t.Fatalf("can mutate: %v", err)
	}
	if !ok {
		t.Fatalf("coordinator should be able to mutate organization records")
	}

	// Under the creator policy only the original author qualifies.
	svc.Config.Authorship.Organizations = config.AuthorshipCreator
	ok, err = svc.CanMutate(ctx, nil, rec.ID, "org-1", "agent-coord")
	if err != nil {
		t.Fatalf("can mutate: %v", err)
	}
	if ok {
		t.Fatalf("creator policy must not grant coordinators mutation rights")
	}
}
