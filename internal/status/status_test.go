package status_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"offerline/internal/admin"
	"offerline/internal/config"
	"offerline/internal/db"
	"offerline/internal/domain"
	"offerline/internal/events"
	"offerline/internal/migrate"
	"offerline/internal/status"
	"offerline/internal/store"
)

type testEnv struct {
	DB      *sql.DB
	Store   *store.Store
	Tracker *status.Tracker
	Ctx     context.Context
}

const (
	adminAgent  = "agent-admin"
	memberAgent = "agent-member"
)

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st := store.New(conn)
	adm := &admin.Service{Store: st, Config: config.Default()}
	tracker := &status.Tracker{
		DB:     conn,
		Store:  st,
		Admin:  adm,
		Config: config.Default(),
		Events: events.Writer{},
		Now:    func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) },
	}
	ctx := context.Background()

	adminUser, err := st.Create(ctx, nil, domain.KindUser, map[string]string{"name": "root"}, adminAgent)
	if err != nil {
		t.Fatalf("create admin user: %v", err)
	}
	if err := adm.RegisterAdministrator(ctx, nil, adminUser.ID, []string{adminAgent}); err != nil {
		t.Fatalf("register administrator: %v", err)
	}
	return testEnv{DB: conn, Store: st, Tracker: tracker, Ctx: ctx}
}

// newTrackedUser creates a user entity with a bootstrapped pending status.
func newTrackedUser(t *testing.T, env testEnv) store.Revision {
	t.Helper()
	rev, err := env.Store.Create(env.Ctx, nil, domain.KindUser, map[string]string{"name": "alice"}, memberAgent)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := env.Tracker.CreateTx(env.Ctx, nil, domain.KindUser, rev.ID, memberAgent); err != nil {
		t.Fatalf("create status: %v", err)
	}
	return rev
}

func TestCreateStatusStartsPending(t *testing.T) {
	env := newTestEnv(t)
	user := newTrackedUser(t, env)

	st, _, err := env.Tracker.Latest(env.Ctx, domain.KindUser, user.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if st.StatusType != status.Pending {
		t.Fatalf("status = %q, want pending", st.StatusType)
	}
	accepted, err := env.Tracker.IsAccepted(env.Ctx, nil, domain.KindUser, user.ID)
	if err != nil || accepted {
		t.Fatalf("pending entity in accepted bucket (accepted=%v, err=%v)", accepted, err)
	}
}

func TestCreateStatusTwiceFails(t *testing.T) {
	env := newTestEnv(t)
	user := newTrackedUser(t, env)

	_, err := env.Tracker.CreateTx(env.Ctx, nil, domain.KindUser, user.ID, memberAgent)
	var already status.AlreadyStatusError
	if !errors.As(err, &already) {
		t.Fatalf("err = %v, want AlreadyStatusError", err)
	}
}

func TestAcceptMovesEntityIntoAcceptedBucket(t *testing.T) {
	env := newTestEnv(t)
	user := newTrackedUser(t, env)

	if _, err := env.Tracker.Update(env.Ctx, status.UpdateRequest{
		Kind: domain.KindUser, EntityID: user.ID, New: status.NewAccepted(), ActorID: adminAgent,
	}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	accepted, err := env.Tracker.Accepted(env.Ctx, nil, domain.KindUser)
	if err != nil {
		t.Fatalf("accepted: %v", err)
	}
	if len(accepted) != 1 || accepted[0] != user.ID {
		t.Fatalf("accepted = %v, want [%s]", accepted, user.ID)
	}
}

func TestSuspendRemovesFromAcceptedBucket(t *testing.T) {
	env := newTestEnv(t)
	user := newTrackedUser(t, env)

	if _, err := env.Tracker.Update(env.Ctx, status.UpdateRequest{
		Kind: domain.KindUser, EntityID: user.ID, New: status.NewAccepted(), ActorID: adminAgent,
	}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := env.Tracker.SuspendIndefinitely(env.Ctx, domain.KindUser, user.ID, "spam", "", adminAgent); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	accepted, err := env.Tracker.Accepted(env.Ctx, nil, domain.KindUser)
	if err != nil {
		t.Fatalf("accepted: %v", err)
	}
	if len(accepted) != 0 {
		t.Fatalf("accepted = %v, want empty", accepted)
	}
	st, _, err := env.Tracker.Latest(env.Ctx, domain.KindUser, user.ID)
	if err != nil || st.StatusType != status.SuspendedIndefinitely {
		t.Fatalf("status = %q (%v), want suspended indefinitely", st.StatusType, err)
	}
}

func TestRejectedIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	user := newTrackedUser(t, env)

	if _, err := env.Tracker.Update(env.Ctx, status.UpdateRequest{
		Kind: domain.KindUser, EntityID: user.ID, New: status.NewRejected("fraud"), ActorID: adminAgent,
	}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	_, err := env.Tracker.Update(env.Ctx, status.UpdateRequest{
		Kind: domain.KindUser, EntityID: user.ID, New: status.NewAccepted(), ActorID: adminAgent,
	})
	var invalid status.InvalidStatusChangeError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidStatusChangeError", err)
	}
}

func TestPendingCannotBeSuspended(t *testing.T) {
	env := newTestEnv(t)
	user := newTrackedUser(t, env)

	_, err := env.Tracker.SuspendIndefinitely(env.Ctx, domain.KindUser, user.ID, "early", "", adminAgent)
	var invalid status.InvalidStatusChangeError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidStatusChangeError", err)
	}
}

func TestNonAdminCannotUpdateStatus(t *testing.T) {
	env := newTestEnv(t)
	user := newTrackedUser(t, env)

	_, err := env.Tracker.Update(env.Ctx, status.UpdateRequest{
		Kind: domain.KindUser, EntityID: user.ID, New: status.NewAccepted(), ActorID: memberAgent,
	})
	var unauthorized admin.UnauthorizedError
	if !errors.As(err, &unauthorized) {
		t.Fatalf("err = %v, want UnauthorizedError", err)
	}
}

func TestSuspendTemporarilyRequiresDuration(t *testing.T) {
	env := newTestEnv(t)
	user := newTrackedUser(t, env)

	_, err := env.Tracker.SuspendTemporarily(env.Ctx, domain.KindUser, user.ID, "cooldown", 0, "", adminAgent)
	var missing status.DurationInDaysNotProvidedError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want DurationInDaysNotProvidedError", err)
	}
}

func TestUnsuspendIfTimePassed(t *testing.T) {
	env := newTestEnv(t)
	user := newTrackedUser(t, env)

	if _, err := env.Tracker.Update(env.Ctx, status.UpdateRequest{
		Kind: domain.KindUser, EntityID: user.ID, New: status.NewAccepted(), ActorID: adminAgent,
	}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := env.Tracker.SuspendTemporarily(env.Ctx, domain.KindUser, user.ID, "cooldown", 7, "", adminAgent); err != nil {
		t.Fatalf("suspend: %v", err)
	}

	// Before the end date nothing happens.
	lifted, err := env.Tracker.UnsuspendIfTimePassed(env.Ctx, domain.KindUser, user.ID, adminAgent)
	if err != nil || lifted {
		t.Fatalf("lifted early (lifted=%v, err=%v)", lifted, err)
	}

	env.Tracker.Now = func() time.Time { return time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC) }
	lifted, err = env.Tracker.UnsuspendIfTimePassed(env.Ctx, domain.KindUser, user.ID, adminAgent)
	if err != nil || !lifted {
		t.Fatalf("not lifted after end date (lifted=%v, err=%v)", lifted, err)
	}
	st, _, err := env.Tracker.Latest(env.Ctx, domain.KindUser, user.ID)
	if err != nil || st.StatusType != status.Accepted {
		t.Fatalf("status = %q (%v), want accepted", st.StatusType, err)
	}
}

func TestStaleRevisionTokenRefused(t *testing.T) {
	env := newTestEnv(t)
	user := newTrackedUser(t, env)

	_, pendingRev, err := env.Tracker.Latest(env.Ctx, domain.KindUser, user.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if _, err := env.Tracker.Update(env.Ctx, status.UpdateRequest{
		Kind: domain.KindUser, EntityID: user.ID, New: status.NewAccepted(), ActorID: adminAgent,
	}); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// A writer still holding the pending revision must not clobber the accept.
	_, err = env.Tracker.Update(env.Ctx, status.UpdateRequest{
		Kind: domain.KindUser, EntityID: user.ID, New: status.NewRejected("late"),
		ExpectedRevision: pendingRev.ID, ActorID: adminAgent,
	})
	var conflict status.RevisionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want RevisionConflictError", err)
	}
	st, _, err := env.Tracker.Latest(env.Ctx, domain.KindUser, user.ID)
	if err != nil || st.StatusType != status.Accepted {
		t.Fatalf("status = %q (%v), want accepted after refused write", st.StatusType, err)
	}
}

func TestHistoryKeepsEveryTransition(t *testing.T) {
	env := newTestEnv(t)
	user := newTrackedUser(t, env)

	if _, err := env.Tracker.Update(env.Ctx, status.UpdateRequest{
		Kind: domain.KindUser, EntityID: user.ID, New: status.NewAccepted(), ActorID: adminAgent,
	}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := env.Tracker.SuspendIndefinitely(env.Ctx, domain.KindUser, user.ID, "spam", "", adminAgent); err != nil {
		t.Fatalf("suspend: %v", err)
	}

	revs, err := env.Tracker.History(env.Ctx, user.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(revs) != 3 {
		t.Fatalf("history length = %d, want 3", len(revs))
	}
	var first, last status.Status
	if err := revs[0].Decode(&first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := revs[len(revs)-1].Decode(&last); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.StatusType != status.Pending || last.StatusType != status.SuspendedIndefinitely {
		t.Fatalf("history ends = %q..%q", first.StatusType, last.StatusType)
	}
}

func TestUpdateResolvesAnyRevisionToOriginal(t *testing.T) {
	env := newTestEnv(t)
	user := newTrackedUser(t, env)

	later, err := env.Store.Update(env.Ctx, nil, user.ID, map[string]string{"name": "alice b"}, memberAgent)
	if err != nil {
		t.Fatalf("update user: %v", err)
	}
	if _, err := env.Tracker.Update(env.Ctx, status.UpdateRequest{
		Kind: domain.KindUser, EntityID: later.ID, New: status.NewAccepted(), ActorID: adminAgent,
	}); err != nil {
		t.Fatalf("accept via later revision: %v", err)
	}
	accepted, err := env.Tracker.IsAccepted(env.Ctx, nil, domain.KindUser, user.ID)
	if err != nil || !accepted {
		t.Fatalf("original not accepted (accepted=%v, err=%v)", accepted, err)
	}
}
