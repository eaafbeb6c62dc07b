package match

import (
	"context"
	"fmt"

	"github.com/dkuznets/cupid-bot/internal/entity"
	likeRepo "github.com/dkuznets/cupid-bot/internal/repository/like"
	userRepo "github.com/dkuznets/cupid-bot/internal/repository/user"
	"github.com/dkuznets/cupid-bot/pkg/geo"
)

const unknownDistance = "📍 distance unknown"

// Candidate is one profile prepared for display: the distance string is a
// presentation concern layered on top of selection.
type Candidate struct {
	Profile  entity.User
	Distance string
}

type IMatchUseCase interface {
	// NextCandidate re-evaluates the eligible pool on every call and picks
	// uniformly at random. Returns (nil, nil) when the pool is exhausted.
	NextCandidate(ctx context.Context, viewerID int64) (*Candidate, error)
	Swipe(ctx context.Context, viewerID, candidateID int64, decision entity.Decision) (entity.Outcome, error)
}

type matchUseCase struct {
	userRepo userRepo.IUserRepo
	likeRepo likeRepo.ILikeRepo
}

func New(userRepo userRepo.IUserRepo, likeRepo likeRepo.ILikeRepo) IMatchUseCase {
	return &matchUseCase{
		userRepo: userRepo,
		likeRepo: likeRepo,
	}
}

func (m *matchUseCase) NextCandidate(ctx context.Context, viewerID int64) (*Candidate, error) {
	likedIDs, err := m.likeRepo.GetLikedProfileIDs(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	profile, err := m.userRepo.GetRandomCandidate(ctx, viewerID, likedIDs)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, nil
	}

	viewer, err := m.userRepo.GetUserByID(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	distance := unknownDistance
	if viewer != nil && viewer.HasLocation() && profile.HasLocation() {
		km := geo.Distance(*viewer.Latitude, *viewer.Longitude, *profile.Latitude, *profile.Longitude)
		distance = fmt.Sprintf("📍 %.1f km", km)
	}

	return &Candidate{Profile: *profile, Distance: distance}, nil
}

func (m *matchUseCase) Swipe(ctx context.Context, viewerID, candidateID int64, decision entity.Decision) (entity.Outcome, error) {
	if decision == entity.DecisionDislike {
		return entity.OutcomePassed, nil
	}

	candidate, err := m.userRepo.GetUserByID(ctx, candidateID)
	if err != nil {
		return 0, err
	}
	if candidate == nil {
		return entity.OutcomeNotFound, nil
	}

	mutual, err := m.likeRepo.CreateLike(ctx, viewerID, candidateID)
	if err != nil {
		return 0, err
	}
	if mutual {
		return entity.OutcomeMatch, nil
	}
	return entity.OutcomeLiked, nil
}
