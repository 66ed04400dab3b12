package exchange_test

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
	"offerline/internal/exchange"
	"offerline/internal/migrate"
	"offerline/internal/status"
)

const (
	rootAgent  = "agent-root"
	aliceAgent = "agent-alice" // request owner, receiver
	bobAgent   = "agent-bob"   // proposer, provider
	eveAgent   = "agent-eve"   // bystander
)

type testEnv struct {
	Engine   *engine.Engine
	Exchange *exchange.Service
	Ctx      context.Context
	Request  engine.RequestRecord
}

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
	eng.Now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	root, err := eng.CreateUser(ctx, domain.User{Name: "Root", Email: "root@example.org"}, rootAgent)
	if err != nil {
		t.Fatalf("create root: %v", err)
	}
	if err := eng.BootstrapAdministrator(ctx, root.Revision.ID, rootAgent); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	for _, u := range []struct{ agent, name string }{
		{aliceAgent, "Alice"}, {bobAgent, "Bob"}, {eveAgent, "Eve"},
	} {
		rec, err := eng.CreateUser(ctx, domain.User{Name: u.name, Email: u.name + "@example.org"}, u.agent)
		if err != nil {
			t.Fatalf("create %s: %v", u.name, err)
		}
		if _, err := eng.Status.Update(ctx, status.UpdateRequest{
			Kind: domain.KindUser, EntityID: rec.Revision.ID, New: status.NewAccepted(), ActorID: rootAgent,
		}); err != nil {
			t.Fatalf("accept %s: %v", u.name, err)
		}
	}

	req, err := eng.CreateRequest(ctx, engine.RequestCreateOptions{
		Request: domain.Request{Title: "Garden fence", Description: "Need a hand"},
		ActorID: aliceAgent,
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return testEnv{Engine: eng, Exchange: exchange.New(eng), Ctx: ctx, Request: req}
}

func pendingProposal(t *testing.T, env testEnv) exchange.ProposalRecord {
	t.Helper()
	p, err := env.Exchange.CreateProposal(env.Ctx, exchange.ProposalCreateOptions{
		Proposal: domain.Proposal{
			ServiceDetails: "Build the fence",
			Terms:          "Two afternoons",
			ExchangeMedium: "HOUR",
		},
		RequestID: env.Request.Revision.ID,
		ActorID:   bobAgent,
	})
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	return p
}

func activeAgreement(t *testing.T, env testEnv) exchange.AgreementRecord {
	t.Helper()
	p := pendingProposal(t, env)
	a, err := env.Exchange.AcceptProposal(env.Ctx, p.Revision.ID, aliceAgent)
	if err != nil {
		t.Fatalf("accept proposal: %v", err)
	}
	return a
}

func completedAgreement(t *testing.T, env testEnv) exchange.AgreementRecord {
	t.Helper()
	a := activeAgreement(t, env)
	if _, err := env.Exchange.MarkComplete(env.Ctx, a.Revision.ID, exchange.RoleProvider, "", bobAgent); err != nil {
		t.Fatalf("provider complete: %v", err)
	}
	a, err := env.Exchange.MarkComplete(env.Ctx, a.Revision.ID, exchange.RoleReceiver, "", aliceAgent)
	if err != nil {
		t.Fatalf("receiver complete: %v", err)
	}
	return a
}

func TestProposalDefaultsAndExpiry(t *testing.T) {
	env := newTestEnv(t)
	p := pendingProposal(t, env)

	if p.Proposal.ProposalType != "direct_response" {
		t.Fatalf("type = %q", p.Proposal.ProposalType)
	}
	if p.Proposal.Status != exchange.ProposalPending {
		t.Fatalf("status = %q", p.Proposal.Status)
	}
	// Default expiry is 14 days out.
	if p.Proposal.ExpiresAt != "2026-03-15T00:00:00Z" {
		t.Fatalf("expires_at = %q", p.Proposal.ExpiresAt)
	}

	// Nothing happens before the deadline.
	flipped, err := env.Exchange.ExpireProposalIfPast(env.Ctx, p.Revision.ID)
	if err != nil || flipped {
		t.Fatalf("expired early (flipped=%v, err=%v)", flipped, err)
	}
	env.Engine.Now = func() time.Time { return time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC) }
	flipped, err = env.Exchange.ExpireProposalIfPast(env.Ctx, p.Revision.ID)
	if err != nil || !flipped {
		t.Fatalf("not expired (flipped=%v, err=%v)", flipped, err)
	}
	got, err := env.Exchange.GetLatestProposal(env.Ctx, p.Revision.ID)
	if err != nil || got.Proposal.Status != exchange.ProposalExpired {
		t.Fatalf("status = %q (%v)", got.Proposal.Status, err)
	}
}

func TestOnlyResponderAcceptsProposal(t *testing.T) {
	env := newTestEnv(t)
	p := pendingProposal(t, env)

	_, err := env.Exchange.AcceptProposal(env.Ctx, p.Revision.ID, eveAgent)
	var unauthorized admin.UnauthorizedError
	if !errors.As(err, &unauthorized) {
		t.Fatalf("err = %v, want UnauthorizedError", err)
	}
	// The proposer may not accept their own proposal either.
	_, err = env.Exchange.AcceptProposal(env.Ctx, p.Revision.ID, bobAgent)
	if !errors.As(err, &unauthorized) {
		t.Fatalf("err = %v, want UnauthorizedError", err)
	}
}

func TestAcceptProposalOpensAgreement(t *testing.T) {
	env := newTestEnv(t)
	a := activeAgreement(t, env)

	if a.Agreement.Status != domain.AgreementActive {
		t.Fatalf("status = %q", a.Agreement.Status)
	}
	if a.Agreement.ServiceDetails != "Build the fence" {
		t.Fatalf("service details = %q", a.Agreement.ServiceDetails)
	}

	// Accepting twice fails: the proposal is no longer pending.
	proposals, err := env.Exchange.ProposalsForListing(env.Ctx, env.Request.Revision.ID)
	if err != nil || len(proposals) != 1 {
		t.Fatalf("proposals = %v (%v)", proposals, err)
	}
	_, err = env.Exchange.AcceptProposal(env.Ctx, proposals[0].Revision.ID, aliceAgent)
	var invalid exchange.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidTransitionError", err)
	}
}

func TestCompletionBarrier(t *testing.T) {
	env := newTestEnv(t)
	a := activeAgreement(t, env)

	// One side alone never completes the agreement.
	a, err := env.Exchange.MarkComplete(env.Ctx, a.Revision.ID, exchange.RoleProvider, "", bobAgent)
	if err != nil {
		t.Fatalf("provider complete: %v", err)
	}
	if a.Agreement.Status != domain.AgreementInProgress || !a.Agreement.ProviderCompleted || a.Agreement.ReceiverCompleted {
		t.Fatalf("after provider: %+v", a.Agreement)
	}

	a, err = env.Exchange.MarkComplete(env.Ctx, a.Revision.ID, exchange.RoleReceiver, "", aliceAgent)
	if err != nil {
		t.Fatalf("receiver complete: %v", err)
	}
	if a.Agreement.Status != domain.AgreementCompleted {
		t.Fatalf("status = %q, want completed", a.Agreement.Status)
	}
	if a.Agreement.ProviderCompletedAt == "" || a.Agreement.ReceiverCompletedAt == "" {
		t.Fatalf("timestamps missing: %+v", a.Agreement)
	}
}

func TestMarkCompleteRequiresTheNamedParty(t *testing.T) {
	env := newTestEnv(t)
	a := activeAgreement(t, env)

	_, err := env.Exchange.MarkComplete(env.Ctx, a.Revision.ID, exchange.RoleProvider, "", aliceAgent)
	var unauthorized admin.UnauthorizedError
	if !errors.As(err, &unauthorized) {
		t.Fatalf("err = %v, want UnauthorizedError", err)
	}
}

func TestStaleAgreementRevisionRefused(t *testing.T) {
	env := newTestEnv(t)
	a := activeAgreement(t, env)
	stale := a.Revision.ID

	if _, err := env.Exchange.MarkComplete(env.Ctx, a.Revision.ID, exchange.RoleProvider, stale, bobAgent); err != nil {
		t.Fatalf("provider complete: %v", err)
	}
	_, err := env.Exchange.MarkComplete(env.Ctx, a.Revision.ID, exchange.RoleReceiver, stale, aliceAgent)
	var conflict status.RevisionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want RevisionConflictError", err)
	}
}

func TestCompletedAgreementIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	a := completedAgreement(t, env)

	_, err := env.Exchange.UpdateAgreementStatus(env.Ctx, a.Revision.ID, domain.AgreementFailed, "", rootAgent)
	var invalid exchange.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidTransitionError", err)
	}
}

func TestUnilateralCancellationConsented(t *testing.T) {
	env := newTestEnv(t)
	a := activeAgreement(t, env)

	c, err := env.Exchange.InitiateCancellation(env.Ctx, exchange.CancellationOptions{
		AgreementID: a.Revision.ID,
		Reason:      "provider_unavailable",
		Explanation: "Broke my wrist",
		ActorID:     bobAgent,
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if c.Cancellation.State != exchange.CancellationPendingResponse || c.Cancellation.InitiatedBy != exchange.RoleProvider {
		t.Fatalf("cancellation = %+v", c.Cancellation)
	}

	c, err = env.Exchange.RespondToCancellation(env.Ctx, c.Revision.ID, true, "get well soon", aliceAgent)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if c.Cancellation.State != exchange.CancellationMutuallyAgreed {
		t.Fatalf("state = %q", c.Cancellation.State)
	}
	got, err := env.Exchange.GetLatestAgreement(env.Ctx, a.Revision.ID)
	if err != nil || got.Agreement.Status != domain.AgreementCancelledMutual {
		t.Fatalf("agreement status = %q (%v)", got.Agreement.Status, err)
	}
}

func TestDisputedCancellationGoesToAdmin(t *testing.T) {
	env := newTestEnv(t)
	a := activeAgreement(t, env)

	c, err := env.Exchange.InitiateCancellation(env.Ctx, exchange.CancellationOptions{
		AgreementID: a.Revision.ID,
		Reason:      "other",
		Explanation: "Changed my mind",
		ActorID:     bobAgent,
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	c, err = env.Exchange.RespondToCancellation(env.Ctx, c.Revision.ID, false, "work was half done", aliceAgent)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if c.Cancellation.State != exchange.CancellationDisputed {
		t.Fatalf("state = %q", c.Cancellation.State)
	}

	// Responding twice fails.
	_, err = env.Exchange.RespondToCancellation(env.Ctx, c.Revision.ID, true, "", aliceAgent)
	var already exchange.AlreadyRespondedError
	if !errors.As(err, &already) {
		t.Fatalf("err = %v, want AlreadyRespondedError", err)
	}

	// Only an administrator settles the dispute.
	_, err = env.Exchange.AdminReviewCancellation(env.Ctx, c.Revision.ID, domain.AgreementCancelledProvider, "provider at fault", "half refund", bobAgent)
	var unauthorized admin.UnauthorizedError
	if !errors.As(err, &unauthorized) {
		t.Fatalf("err = %v, want UnauthorizedError", err)
	}
	c, err = env.Exchange.AdminReviewCancellation(env.Ctx, c.Revision.ID, domain.AgreementCancelledProvider, "provider at fault", "half refund", rootAgent)
	if err != nil {
		t.Fatalf("admin review: %v", err)
	}
	if c.Cancellation.State != exchange.CancellationAdminReviewed {
		t.Fatalf("state = %q", c.Cancellation.State)
	}
	got, err := env.Exchange.GetLatestAgreement(env.Ctx, a.Revision.ID)
	if err != nil || got.Agreement.Status != domain.AgreementCancelledProvider {
		t.Fatalf("agreement status = %q (%v)", got.Agreement.Status, err)
	}
}

func TestMutualCancellationSettlesImmediately(t *testing.T) {
	env := newTestEnv(t)
	a := activeAgreement(t, env)

	c, err := env.Exchange.InitiateCancellation(env.Ctx, exchange.CancellationOptions{
		AgreementID: a.Revision.ID,
		Reason:      "mutual_agreement",
		Explanation: "No longer needed",
		Mutual:      true,
		ActorID:     aliceAgent,
	})
	if err != nil {
		t.Fatalf("initiate mutual: %v", err)
	}
	if c.Cancellation.State != exchange.CancellationMutuallyAgreed || c.Cancellation.InitiatedBy != "both" {
		t.Fatalf("cancellation = %+v", c.Cancellation)
	}
	got, err := env.Exchange.GetLatestAgreement(env.Ctx, a.Revision.ID)
	if err != nil || got.Agreement.Status != domain.AgreementCancelledMutual {
		t.Fatalf("agreement status = %q (%v)", got.Agreement.Status, err)
	}
}

func TestReviewsAndStatistics(t *testing.T) {
	env := newTestEnv(t)
	a := completedAgreement(t, env)

	// The receiver reviews the provider.
	if _, err := env.Exchange.CreateReview(env.Ctx, a.Revision.ID, 5, "great work", aliceAgent); err != nil {
		t.Fatalf("receiver review: %v", err)
	}
	_, err := env.Exchange.CreateReview(env.Ctx, a.Revision.ID, 4, "again", aliceAgent)
	var already exchange.AlreadyReviewedError
	if !errors.As(err, &already) {
		t.Fatalf("err = %v, want AlreadyReviewedError", err)
	}
	if _, err := env.Exchange.CreateReview(env.Ctx, a.Revision.ID, 3, "fine", bobAgent); err != nil {
		t.Fatalf("provider review: %v", err)
	}

	bob, err := env.Engine.UserForAgent(env.Ctx, bobAgent)
	if err != nil {
		t.Fatalf("bob: %v", err)
	}
	stats, err := env.Exchange.ReviewStatistics(env.Ctx, bob.Revision.ID)
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if stats.TotalReviews != 1 || stats.AverageRating != 5 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestReviewBeforeCompletionRefused(t *testing.T) {
	env := newTestEnv(t)
	a := activeAgreement(t, env)

	_, err := env.Exchange.CreateReview(env.Ctx, a.Revision.ID, 5, "too soon", aliceAgent)
	var notDone exchange.AgreementNotCompletedError
	if !errors.As(err, &notDone) {
		t.Fatalf("err = %v, want AgreementNotCompletedError", err)
	}
}
