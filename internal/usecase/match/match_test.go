package match_test

import (
	"context"
	"testing"

	"github.com/dkuznets/cupid-bot/internal/entity"
	"github.com/dkuznets/cupid-bot/internal/usecase/match"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUserRepo struct {
	users      map[int64]*entity.User
	candidate  *entity.User
	gotExclude []int64
}

func (s *stubUserRepo) CreateUser(_ context.Context, user entity.User) (*entity.User, error) {
	return &user, nil
}

func (s *stubUserRepo) GetUserByID(_ context.Context, id int64) (*entity.User, error) {
	return s.users[id], nil
}

func (s *stubUserRepo) UpdateMedia(context.Context, int64, string, entity.MediaKind) error {
	return nil
}

func (s *stubUserRepo) UpdateBio(context.Context, int64, string) error { return nil }

func (s *stubUserRepo) UpdateLocation(context.Context, int64, float64, float64) error { return nil }

func (s *stubUserRepo) DeleteUserCascade(context.Context, int64) error { return nil }

func (s *stubUserRepo) GetRandomCandidate(_ context.Context, viewerID int64, excludeIDs []int64) (*entity.User, error) {
	s.gotExclude = append([]int64{viewerID}, excludeIDs...)
	return s.candidate, nil
}

type stubLikeRepo struct {
	likedIDs []int64
	mutual   bool
	created  [][2]int64
}

func (s *stubLikeRepo) CreateLike(_ context.Context, userID, likedUserID int64) (bool, error) {
	s.created = append(s.created, [2]int64{userID, likedUserID})
	return s.mutual, nil
}

func (s *stubLikeRepo) HasLike(context.Context, int64, int64) (bool, error) { return false, nil }

func (s *stubLikeRepo) GetLikedProfileIDs(context.Context, int64) ([]int64, error) {
	return s.likedIDs, nil
}

func (s *stubLikeRepo) InvalidateCache(int64) {}

func (s *stubLikeRepo) InvalidateLikerCaches(context.Context, int64) error { return nil }

func ptr(v float64) *float64 { return &v }

func TestNextCandidateExcludesViewerAndLiked(t *testing.T) {
	users := &stubUserRepo{users: map[int64]*entity.User{}}
	likes := &stubLikeRepo{likedIDs: []int64{7, 8}}

	m := match.New(users, likes)
	candidate, err := m.NextCandidate(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, candidate)

	assert.Equal(t, []int64{1, 7, 8}, users.gotExclude)
}

func TestNextCandidateDistanceText(t *testing.T) {
	moscow := &entity.User{ID: 1, Latitude: ptr(55.75), Longitude: ptr(37.62)}
	petersburg := &entity.User{ID: 2, Name: "Bob", Latitude: ptr(59.93), Longitude: ptr(30.34)}

	users := &stubUserRepo{
		users:     map[int64]*entity.User{1: moscow},
		candidate: petersburg,
	}
	m := match.New(users, &stubLikeRepo{})

	candidate, err := m.NextCandidate(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, candidate)
	assert.Equal(t, int64(2), candidate.Profile.ID)
	assert.Regexp(t, `^📍 63[0-9]\.[0-9] km$`, candidate.Distance)
}

func TestNextCandidateDistanceUnknownWithoutCoordinates(t *testing.T) {
	users := &stubUserRepo{
		users:     map[int64]*entity.User{1: {ID: 1}},
		candidate: &entity.User{ID: 2, Latitude: ptr(59.93), Longitude: ptr(30.34)},
	}
	m := match.New(users, &stubLikeRepo{})

	candidate, err := m.NextCandidate(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, candidate)
	assert.Equal(t, "📍 distance unknown", candidate.Distance)
}

func TestSwipeDislikeStoresNothing(t *testing.T) {
	likes := &stubLikeRepo{}
	m := match.New(&stubUserRepo{}, likes)

	outcome, err := m.Swipe(context.Background(), 1, 2, entity.DecisionDislike)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomePassed, outcome)
	assert.Empty(t, likes.created)
}

func TestSwipeMissingCandidate(t *testing.T) {
	likes := &stubLikeRepo{}
	m := match.New(&stubUserRepo{users: map[int64]*entity.User{}}, likes)

	outcome, err := m.Swipe(context.Background(), 1, 2, entity.DecisionLike)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeNotFound, outcome)
	assert.Empty(t, likes.created)
}

func TestSwipeLikeOutcomes(t *testing.T) {
	users := &stubUserRepo{users: map[int64]*entity.User{2: {ID: 2}}}

	likes := &stubLikeRepo{mutual: false}
	m := match.New(users, likes)
	outcome, err := m.Swipe(context.Background(), 1, 2, entity.DecisionLike)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeLiked, outcome)
	assert.Equal(t, [][2]int64{{1, 2}}, likes.created)

	likes = &stubLikeRepo{mutual: true}
	m = match.New(users, likes)
	outcome, err = m.Swipe(context.Background(), 1, 2, entity.DecisionLike)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeMatch, outcome)
}
