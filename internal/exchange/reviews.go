package exchange

import (
	"context"
	"fmt"

	"offerline/internal/admin"
	"offerline/internal/domain"
	"offerline/internal/events"
	"offerline/internal/store"
)

// InvalidRatingError refuses ratings outside 1..5.
type InvalidRatingError struct{ Rating int }

func (e InvalidRatingError) Error() string {
	return fmt.Sprintf("rating %d out of range 1..5", e.Rating)
}

// ReviewRecord pairs a decoded review with its revision.
type ReviewRecord struct {
	Review   domain.Review
	Revision store.Revision
}

// CreateReview records one party's review of a completed agreement. Each
// side reviews once; the reviewed user is always the opposite party.
func (s *Service) CreateReview(ctx context.Context, agreementID string, rating int, comment, actorID string) (ReviewRecord, error) {
	e := s.Engine
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ReviewRecord{}, err
	}
	defer tx.Rollback()

	if rating < 1 || rating > 5 {
		return ReviewRecord{}, InvalidRatingError{Rating: rating}
	}
	rec, err := s.getAgreement(ctx, tx, agreementID)
	if err != nil {
		return ReviewRecord{}, err
	}
	if rec.Agreement.Status != domain.AgreementCompleted {
		return ReviewRecord{}, AgreementNotCompletedError{ID: rec.Revision.RootID}
	}
	role, err := s.roleOf(ctx, tx, rec.Revision.RootID, actorID)
	if err != nil {
		return ReviewRecord{}, err
	}
	if role == "" {
		return ReviewRecord{}, admin.UnauthorizedError{Action: "review agreement"}
	}

	existing, err := s.ReviewsForAgreement(ctx, rec.Revision.RootID)
	if err != nil {
		return ReviewRecord{}, err
	}
	for _, r := range existing {
		if r.Review.ReviewerType == role {
			return ReviewRecord{}, AlreadyReviewedError{AgreementID: rec.Revision.RootID, ReviewerType: role}
		}
	}

	otherRole := RoleProvider
	if role == RoleProvider {
		otherRole = RoleReceiver
	}
	reviewed, err := s.party(ctx, tx, rec.Revision.RootID, otherRole)
	if err != nil {
		return ReviewRecord{}, err
	}
	review := domain.Review{
		Rating:       rating,
		Comment:      comment,
		ReviewerType: role,
		ReviewedID:   reviewed,
	}
	rev, err := e.Store.Create(ctx, tx, domain.KindReview, review, actorID)
	if err != nil {
		return ReviewRecord{}, err
	}
	if _, err := e.Store.CreateEdge(ctx, tx, rec.Revision.RootID, rev.ID, EdgeTypeReview, ""); err != nil {
		return ReviewRecord{}, err
	}
	if reviewed != "" {
		if _, err := e.Store.CreateEdge(ctx, tx, reviewed, rev.ID, EdgeTypeReviewReceived, ""); err != nil {
			return ReviewRecord{}, err
		}
	}
	err = e.Events.Append(ctx, tx, "review.created", domain.KindReview, rev.ID, actorID, events.EventPayload{
		"agreement_id": rec.Revision.RootID,
		"rating":       rating,
	})
	if err != nil {
		return ReviewRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return ReviewRecord{}, err
	}
	return ReviewRecord{Review: review, Revision: rev}, nil
}

// ReviewsForAgreement lists the reviews of an agreement.
func (s *Service) ReviewsForAgreement(ctx context.Context, agreementID string) ([]ReviewRecord, error) {
	e := s.Engine
	original, err := e.Store.ResolveOriginal(ctx, nil, agreementID)
	if err != nil {
		return nil, err
	}
	edges, err := e.Store.Edges(ctx, nil, original, EdgeTypeReview)
	if err != nil {
		return nil, err
	}
	return s.reviewRecords(ctx, edges)
}

// ReviewsForUser lists the reviews a user has received.
func (s *Service) ReviewsForUser(ctx context.Context, userID string) ([]ReviewRecord, error) {
	e := s.Engine
	original, err := e.Store.ResolveOriginal(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	edges, err := e.Store.Edges(ctx, nil, original, EdgeTypeReviewReceived)
	if err != nil {
		return nil, err
	}
	return s.reviewRecords(ctx, edges)
}

func (s *Service) reviewRecords(ctx context.Context, edges []store.Edge) ([]ReviewRecord, error) {
	res := make([]ReviewRecord, 0, len(edges))
	for _, edge := range edges {
		rev, err := s.Engine.Store.Get(ctx, nil, edge.To)
		if err != nil {
			return nil, err
		}
		var r domain.Review
		if err := rev.Decode(&r); err != nil {
			return nil, err
		}
		res = append(res, ReviewRecord{Review: r, Revision: rev})
	}
	return res, nil
}

// ReviewStatistics aggregates the reviews a user has received.
func (s *Service) ReviewStatistics(ctx context.Context, userID string) (domain.ReviewStatistics, error) {
	reviews, err := s.ReviewsForUser(ctx, userID)
	if err != nil {
		return domain.ReviewStatistics{}, err
	}
	stats := domain.ReviewStatistics{AgentID: userID, TotalReviews: len(reviews)}
	if len(reviews) == 0 {
		return stats, nil
	}
	var sum int
	for _, r := range reviews {
		sum += r.Review.Rating
	}
	stats.AverageRating = float64(sum) / float64(len(reviews))
	return stats, nil
}
