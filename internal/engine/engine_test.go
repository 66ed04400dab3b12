package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"offerline/internal/admin"
	"offerline/internal/config"
	"offerline/internal/db"
	"offerline/internal/domain"
	"offerline/internal/engine"
	"offerline/internal/migrate"
	"offerline/internal/status"
)

const (
	rootAgent  = "agent-root"
	aliceAgent = "agent-alice"
	bobAgent   = "agent-bob"
)

type testEnv struct {
	Engine *engine.Engine
	Ctx    context.Context
}

// newTestEnv boots a temp-dir database with one administrator (rootAgent's
// user) and one accepted user for aliceAgent.
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
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	root, err := eng.CreateUser(ctx, domain.User{Name: "Root", Email: "root@example.org"}, rootAgent)
	if err != nil {
		t.Fatalf("create root user: %v", err)
	}
	if err := eng.BootstrapAdministrator(ctx, root.Revision.ID, rootAgent); err != nil {
		t.Fatalf("bootstrap administrator: %v", err)
	}

	alice, err := eng.CreateUser(ctx, domain.User{Name: "Alice", Email: "alice@example.org"}, aliceAgent)
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	if _, err := eng.Status.Update(ctx, status.UpdateRequest{
		Kind: domain.KindUser, EntityID: alice.Revision.ID, New: status.NewAccepted(), ActorID: rootAgent,
	}); err != nil {
		t.Fatalf("accept alice: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func acceptedUser(t *testing.T, env testEnv, agent, name string) engine.UserRecord {
	t.Helper()
	rec, err := env.Engine.CreateUser(env.Ctx, domain.User{Name: name, Email: name + "@example.org"}, agent)
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	if _, err := env.Engine.Status.Update(env.Ctx, status.UpdateRequest{
		Kind: domain.KindUser, EntityID: rec.Revision.ID, New: status.NewAccepted(), ActorID: rootAgent,
	}); err != nil {
		t.Fatalf("accept user %s: %v", name, err)
	}
	return rec
}

func TestCreateUserOncePerAgent(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Engine.CreateUser(env.Ctx, domain.User{Name: "Alice Again", Email: "a@example.org"}, aliceAgent)
	var exists engine.UserAlreadyExistsError
	if !errors.As(err, &exists) {
		t.Fatalf("err = %v, want UserAlreadyExistsError", err)
	}
}

func TestUserForAgentRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	rec, err := env.Engine.UserForAgent(env.Ctx, aliceAgent)
	if err != nil {
		t.Fatalf("user for agent: %v", err)
	}
	if rec.User.Name != "Alice" {
		t.Fatalf("name = %q, want Alice", rec.User.Name)
	}
	agents, err := env.Engine.AgentsForUser(env.Ctx, rec.Revision.ID)
	if err != nil {
		t.Fatalf("agents for user: %v", err)
	}
	if len(agents) != 1 || agents[0] != aliceAgent {
		t.Fatalf("agents = %v", agents)
	}
}

func TestUpdateUserRequiresAuthorOrAdmin(t *testing.T) {
	env := newTestEnv(t)
	bob := acceptedUser(t, env, bobAgent, "Bob")

	_, err := env.Engine.UpdateUser(env.Ctx, bob.Revision.ID, domain.User{Name: "Mallory", Email: "m@example.org"}, aliceAgent)
	var unauthorized admin.UnauthorizedError
	if !errors.As(err, &unauthorized) {
		t.Fatalf("err = %v, want UnauthorizedError", err)
	}

	// The author and an administrator both may.
	if _, err := env.Engine.UpdateUser(env.Ctx, bob.Revision.ID, domain.User{Name: "Bob B", Email: "b@example.org"}, bobAgent); err != nil {
		t.Fatalf("author update: %v", err)
	}
	if _, err := env.Engine.UpdateUser(env.Ctx, bob.Revision.ID, domain.User{Name: "Bob C", Email: "b@example.org"}, rootAgent); err != nil {
		t.Fatalf("admin update: %v", err)
	}
	rec, err := env.Engine.GetLatestUser(env.Ctx, bob.Revision.ID)
	if err != nil || rec.User.Name != "Bob C" {
		t.Fatalf("latest = %+v (%v)", rec.User, err)
	}
}

func TestOrganizationMembership(t *testing.T) {
	env := newTestEnv(t)
	bob := acceptedUser(t, env, bobAgent, "Bob")

	org, err := env.Engine.CreateOrganization(env.Ctx, domain.Organization{
		Name: "Timebank", Description: "local exchange", FullLegalName: "Timebank e.V.", Email: "hi@timebank.org",
	}, aliceAgent)
	if err != nil {
		t.Fatalf("create organization: %v", err)
	}

	alice, err := env.Engine.UserForAgent(env.Ctx, aliceAgent)
	if err != nil {
		t.Fatalf("alice: %v", err)
	}
	members, err := env.Engine.Members(env.Ctx, org.Revision.ID)
	if err != nil || len(members) != 1 || members[0] != alice.Revision.RootID {
		t.Fatalf("members = %v (%v)", members, err)
	}
	coordinators, err := env.Engine.Coordinators(env.Ctx, org.Revision.ID)
	if err != nil || len(coordinators) != 1 {
		t.Fatalf("coordinators = %v (%v)", coordinators, err)
	}

	if err := env.Engine.AddMember(env.Ctx, org.Revision.ID, bob.Revision.ID, aliceAgent); err != nil {
		t.Fatalf("add member: %v", err)
	}
	err = env.Engine.AddMember(env.Ctx, org.Revision.ID, bob.Revision.ID, aliceAgent)
	var alreadyMember engine.AlreadyMemberError
	if !errors.As(err, &alreadyMember) {
		t.Fatalf("err = %v, want AlreadyMemberError", err)
	}

	// Bob is a plain member and may not manage membership.
	err = env.Engine.AddCoordinator(env.Ctx, org.Revision.ID, bob.Revision.ID, bobAgent)
	var unauthorized admin.UnauthorizedError
	if !errors.As(err, &unauthorized) {
		t.Fatalf("err = %v, want UnauthorizedError", err)
	}
	if err := env.Engine.AddCoordinator(env.Ctx, org.Revision.ID, bob.Revision.ID, aliceAgent); err != nil {
		t.Fatalf("add coordinator: %v", err)
	}

	// Demote alice, then bob is the last coordinator.
	if err := env.Engine.RemoveCoordinator(env.Ctx, org.Revision.ID, alice.Revision.ID, bobAgent); err != nil {
		t.Fatalf("remove coordinator: %v", err)
	}
	err = env.Engine.RemoveCoordinator(env.Ctx, org.Revision.ID, bob.Revision.ID, bobAgent)
	var lastCoordinator engine.LastCoordinatorError
	if !errors.As(err, &lastCoordinator) {
		t.Fatalf("err = %v, want LastCoordinatorError", err)
	}

	// Leaving as plain member works; the last coordinator cannot leave.
	if err := env.Engine.LeaveOrganization(env.Ctx, org.Revision.ID, aliceAgent); err != nil {
		t.Fatalf("leave: %v", err)
	}
	err = env.Engine.LeaveOrganization(env.Ctx, org.Revision.ID, bobAgent)
	var lastMember engine.LastMemberError
	if !errors.As(err, &lastMember) {
		t.Fatalf("err = %v, want LastMemberError", err)
	}
}

func TestServiceTypeTagIndex(t *testing.T) {
	env := newTestEnv(t)

	st, err := env.Engine.CreateServiceType(env.Ctx, domain.ServiceType{
		Name: "Web development", Description: "Sites and apps", Technical: true,
		Tags: []string{"software", "web"},
	}, rootAgent)
	if err != nil {
		t.Fatalf("create service type: %v", err)
	}

	tags, err := env.Engine.AllTags(env.Ctx)
	if err != nil || len(tags) != 2 {
		t.Fatalf("tags = %v (%v)", tags, err)
	}
	byTag, err := env.Engine.ServiceTypesByTag(env.Ctx, "web")
	if err != nil || len(byTag) != 1 {
		t.Fatalf("by tag = %v (%v)", byTag, err)
	}

	// Retagging drops stale bucket membership.
	updated := st.ServiceType
	updated.Tags = []string{"software"}
	if _, err := env.Engine.UpdateServiceType(env.Ctx, st.Revision.ID, updated, rootAgent); err != nil {
		t.Fatalf("update service type: %v", err)
	}
	byTag, err = env.Engine.ServiceTypesByTag(env.Ctx, "web")
	if err != nil || len(byTag) != 0 {
		t.Fatalf("by stale tag = %v (%v)", byTag, err)
	}

	// Admin-created service types are accepted immediately.
	accepted, err := env.Engine.AcceptedServiceTypes(env.Ctx)
	if err != nil || len(accepted) != 1 {
		t.Fatalf("accepted = %v (%v)", accepted, err)
	}
}

func TestSuggestedServiceTypeNeedsApproval(t *testing.T) {
	env := newTestEnv(t)

	st, err := env.Engine.SuggestServiceType(env.Ctx, domain.ServiceType{
		Name: "Gardening", Description: "Green thumbs",
	}, aliceAgent)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	accepted, err := env.Engine.AcceptedServiceTypes(env.Ctx)
	if err != nil || len(accepted) != 0 {
		t.Fatalf("accepted before approval = %v (%v)", accepted, err)
	}
	if err := env.Engine.ApproveServiceType(env.Ctx, st.Revision.ID, rootAgent); err != nil {
		t.Fatalf("approve: %v", err)
	}
	accepted, err = env.Engine.AcceptedServiceTypes(env.Ctx)
	if err != nil || len(accepted) != 1 {
		t.Fatalf("accepted after approval = %v (%v)", accepted, err)
	}
}

func TestMediumSuggestionWorkflow(t *testing.T) {
	env := newTestEnv(t)

	m, err := env.Engine.SuggestMedium(env.Ctx, domain.MediumOfExchange{Code: "HOUR", Name: "Time hours"}, aliceAgent)
	if err != nil {
		t.Fatalf("suggest medium: %v", err)
	}
	pending, err := env.Engine.PendingMediums(env.Ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending = %v (%v)", pending, err)
	}
	if err := env.Engine.RejectMedium(env.Ctx, m.Revision.ID, "duplicate", rootAgent); err != nil {
		t.Fatalf("reject: %v", err)
	}
	rejected, err := env.Engine.RejectedMediums(env.Ctx)
	if err != nil || len(rejected) != 1 {
		t.Fatalf("rejected = %v (%v)", rejected, err)
	}
	ok, err := env.Engine.IsMediumApproved(env.Ctx, m.Revision.ID)
	if err != nil || ok {
		t.Fatalf("approved = %v (%v)", ok, err)
	}
}

func TestCreateRequestLinksAndOwnership(t *testing.T) {
	env := newTestEnv(t)

	st, err := env.Engine.CreateServiceType(env.Ctx, domain.ServiceType{Name: "Tutoring", Description: "Lessons"}, rootAgent)
	if err != nil {
		t.Fatalf("service type: %v", err)
	}
	m, err := env.Engine.CreateMedium(env.Ctx, domain.MediumOfExchange{Code: "HOUR", Name: "Time hours"}, rootAgent)
	if err != nil {
		t.Fatalf("medium: %v", err)
	}

	req, err := env.Engine.CreateRequest(env.Ctx, engine.RequestCreateOptions{
		Request:        domain.Request{Title: "Math help", Description: "Weekly sessions"},
		ServiceTypeIDs: []string{st.Revision.ID},
		MediumIDs:      []string{m.Revision.ID},
		ActorID:        aliceAgent,
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	sts, err := env.Engine.ServiceTypesForRequest(env.Ctx, req.Revision.ID)
	if err != nil || len(sts) != 1 || sts[0] != st.Revision.RootID {
		t.Fatalf("service types = %v (%v)", sts, err)
	}
	linked, err := env.Engine.RequestsForServiceType(env.Ctx, st.Revision.ID)
	if err != nil || len(linked) != 1 {
		t.Fatalf("requests for service type = %v (%v)", linked, err)
	}

	alice, err := env.Engine.UserForAgent(env.Ctx, aliceAgent)
	if err != nil {
		t.Fatalf("alice: %v", err)
	}
	mine, err := env.Engine.RequestsForUser(env.Ctx, alice.Revision.ID)
	if err != nil || len(mine) != 1 {
		t.Fatalf("requests for user = %v (%v)", mine, err)
	}
}

func TestLinkToUnacceptedServiceTypeRefused(t *testing.T) {
	env := newTestEnv(t)

	st, err := env.Engine.SuggestServiceType(env.Ctx, domain.ServiceType{Name: "Pending", Description: "Not yet"}, aliceAgent)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	_, err = env.Engine.CreateRequest(env.Ctx, engine.RequestCreateOptions{
		Request:        domain.Request{Title: "X", Description: "Y"},
		ServiceTypeIDs: []string{st.Revision.ID},
		ActorID:        aliceAgent,
	})
	var notAccepted engine.LinkTargetNotAcceptedError
	if !errors.As(err, &notAccepted) {
		t.Fatalf("err = %v, want LinkTargetNotAcceptedError", err)
	}
}

func TestDeleteRequestArchivesPerPolicy(t *testing.T) {
	env := newTestEnv(t)

	req, err := env.Engine.CreateRequest(env.Ctx, engine.RequestCreateOptions{
		Request: domain.Request{Title: "Short lived", Description: "gone soon"},
		ActorID: aliceAgent,
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if err := env.Engine.DeleteRequest(env.Ctx, req.Revision.ID, aliceAgent); err != nil {
		t.Fatalf("delete request: %v", err)
	}

	// Default policy archives requests: the chain stays readable with an
	// archived status.
	st, _, err := env.Engine.Status.Latest(env.Ctx, domain.KindRequest, req.Revision.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.StatusType != status.Archived {
		t.Fatalf("status = %q, want archived", st.StatusType)
	}
	if _, err := env.Engine.GetLatestRequest(env.Ctx, req.Revision.ID); err != nil {
		t.Fatalf("archived request unreadable: %v", err)
	}
}

func TestDeleteServiceTypePurges(t *testing.T) {
	env := newTestEnv(t)

	st, err := env.Engine.CreateServiceType(env.Ctx, domain.ServiceType{
		Name: "Ephemeral", Description: "gone", Tags: []string{"tmp"},
	}, rootAgent)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := env.Engine.DeleteServiceType(env.Ctx, st.Revision.ID, rootAgent); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.GetLatestServiceType(env.Ctx, st.Revision.ID); err == nil {
		t.Fatal("purged service type still readable")
	}
	byTag, err := env.Engine.ServiceTypesByTag(env.Ctx, "tmp")
	if err != nil || len(byTag) != 0 {
		t.Fatalf("tag bucket = %v (%v)", byTag, err)
	}
}

func TestLastAdministratorStays(t *testing.T) {
	env := newTestEnv(t)

	root, err := env.Engine.UserForAgent(env.Ctx, rootAgent)
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	err = env.Engine.RemoveAdministrator(env.Ctx, root.Revision.ID, rootAgent)
	var last admin.LastAdminError
	if !errors.As(err, &last) {
		t.Fatalf("err = %v, want LastAdminError", err)
	}
}
