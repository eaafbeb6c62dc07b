package conversation_test

import (
	"context"
	"io"
	"log"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkuznets/cupid-bot/internal/entity"
	"github.com/dkuznets/cupid-bot/internal/session"
	"github.com/dkuznets/cupid-bot/internal/transport"
	"github.com/dkuznets/cupid-bot/internal/usecase/conversation"
	"github.com/dkuznets/cupid-bot/internal/usecase/match"
	"github.com/dkuznets/cupid-bot/internal/usecase/relay"
	"github.com/dkuznets/cupid-bot/pkg/deeplink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore implements the user, like and message repositories against a
// single in-memory dataset so cascades behave like the real store.
type memStore struct {
	mu           sync.Mutex
	users        map[int64]entity.User
	likes        []entity.LikeEdge
	messages     []entity.Message
	purgedLikers []int64
	nextID       int64
}

func newMemStore() *memStore {
	return &memStore{users: make(map[int64]entity.User)}
}

func (s *memStore) CreateUser(_ context.Context, user entity.User) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	return &user, nil
}

func (s *memStore) GetUserByID(_ context.Context, id int64) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	copied := u
	return &copied, nil
}

func (s *memStore) UpdateMedia(_ context.Context, id int64, ref string, kind entity.MediaKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[id]
	u.MediaRef, u.MediaKind = ref, kind
	s.users[id] = u
	return nil
}

func (s *memStore) UpdateBio(_ context.Context, id int64, bio string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[id]
	u.Bio = bio
	s.users[id] = u
	return nil
}

func (s *memStore) UpdateLocation(_ context.Context, id int64, latitude, longitude float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[id]
	u.Latitude, u.Longitude = &latitude, &longitude
	s.users[id] = u
	return nil
}

func (s *memStore) DeleteUserCascade(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)

	kept := s.likes[:0]
	for _, l := range s.likes {
		if l.UserID != id && l.LikedUserID != id {
			kept = append(kept, l)
		}
	}
	s.likes = kept

	keptMsgs := s.messages[:0]
	for _, m := range s.messages {
		if m.UserID != id && m.MatchedUserID != id {
			keptMsgs = append(keptMsgs, m)
		}
	}
	s.messages = keptMsgs
	return nil
}

func (s *memStore) GetRandomCandidate(_ context.Context, viewerID int64, excludeIDs []int64) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	excluded := map[int64]bool{viewerID: true}
	for _, id := range excludeIDs {
		excluded[id] = true
	}

	var eligible []entity.User
	for _, u := range s.users {
		if !excluded[u.ID] {
			eligible = append(eligible, u)
		}
	}
	if len(eligible) == 0 {
		return nil, nil
	}
	picked := eligible[rand.Intn(len(eligible))]
	return &picked, nil
}

func (s *memStore) CreateLike(_ context.Context, userID, likedUserID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.likes = append(s.likes, entity.LikeEdge{ID: s.nextID, UserID: userID, LikedUserID: likedUserID})
	for _, l := range s.likes {
		if l.UserID == likedUserID && l.LikedUserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) HasLike(_ context.Context, userID, likedUserID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.likes {
		if l.UserID == userID && l.LikedUserID == likedUserID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) GetLikedProfileIDs(_ context.Context, userID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for _, l := range s.likes {
		if l.UserID == userID {
			ids = append(ids, l.LikedUserID)
		}
	}
	return ids, nil
}

func (s *memStore) InvalidateCache(int64) {}

// Records the liker IDs visible at call time, so tests can check the
// purge ran while the edges still existed.
func (s *memStore) InvalidateLikerCaches(_ context.Context, likedUserID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.likes {
		if l.LikedUserID == likedUserID {
			s.purgedLikers = append(s.purgedLikers, l.UserID)
		}
	}
	return nil
}

func (s *memStore) CreateMessage(_ context.Context, senderID, recipientID int64, text string) (*entity.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	msg := entity.Message{ID: s.nextID, UserID: senderID, MatchedUserID: recipientID, Text: text}
	s.messages = append(s.messages, msg)
	return &msg, nil
}

func (s *memStore) GetHistory(_ context.Context, userID, matchedUserID int64) ([]entity.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Message
	for _, m := range s.messages {
		if (m.UserID == userID && m.MatchedUserID == matchedUserID) ||
			(m.UserID == matchedUserID && m.MatchedUserID == userID) {
			out = append(out, m)
		}
	}
	return out, nil
}

type sentItem struct {
	userID int64
	kind   string
	text   string
	ref    string
	menu   *transport.Menu
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentItem
}

func (f *fakeSender) SendText(_ context.Context, userID int64, text string, menu *transport.Menu) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentItem{userID: userID, kind: "text", text: text, menu: menu})
	return nil
}

func (f *fakeSender) SendPhoto(_ context.Context, userID int64, ref, caption string, menu *transport.Menu) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentItem{userID: userID, kind: "photo", text: caption, ref: ref, menu: menu})
	return nil
}

func (f *fakeSender) SendVideo(_ context.Context, userID int64, ref, caption string, menu *transport.Menu) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentItem{userID: userID, kind: "video", text: caption, ref: ref, menu: menu})
	return nil
}

func (f *fakeSender) itemsFor(userID int64) []sentItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentItem
	for _, s := range f.sent {
		if s.userID == userID {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeSender) lastTextFor(userID int64) string {
	items := f.itemsFor(userID)
	if len(items) == 0 {
		return ""
	}
	return items[len(items)-1].text
}

func (f *fakeSender) countContaining(userID int64, substr string) int {
	count := 0
	for _, s := range f.itemsFor(userID) {
		if strings.Contains(s.text, substr) {
			count++
		}
	}
	return count
}

type fixture struct {
	store    *memStore
	sender   *fakeSender
	sessions *session.Store
	convo    conversation.IConversationUseCase
}

const adminID int64 = 900

func newFixture() *fixture {
	store := newMemStore()
	sender := &fakeSender{}
	sessions := session.NewStore()
	logger := log.New(io.Discard, "", 0)
	links := deeplink.NewSigner("test-secret", "https://cupid.example")

	matchCase := match.New(store, store)
	relayCase := relay.New(store, sender, logger)
	convo := conversation.New(sessions, store, store, matchCase, relayCase, sender, links, adminID, logger)

	return &fixture{store: store, sender: sender, sessions: sessions, convo: convo}
}

func text(userID int64, s string) entity.Event {
	return entity.Event{Kind: entity.EventText, UserID: userID, Text: s}
}

func media(userID int64, ref string, kind entity.MediaKind) entity.Event {
	return entity.Event{Kind: entity.EventMedia, UserID: userID, MediaRef: ref, MediaKind: kind}
}

func location(userID int64, lat, lon float64) entity.Event {
	return entity.Event{Kind: entity.EventLocation, UserID: userID, Latitude: lat, Longitude: lon}
}

// register walks a user through the whole creation dialogue.
func (f *fixture) register(t *testing.T, userID int64, name string, age string, bio string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.convo.HandleEvent(ctx, text(userID, "/start")))
	require.NoError(t, f.convo.HandleEvent(ctx, text(userID, name)))
	require.NoError(t, f.convo.HandleEvent(ctx, text(userID, age)))
	require.NoError(t, f.convo.HandleEvent(ctx, text(userID, bio)))
	require.NoError(t, f.convo.HandleEvent(ctx, media(userID, "ref-"+name, entity.MediaPhoto)))
}

func TestTextBeforeStartIsRejected(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.convo.HandleEvent(context.Background(), text(1, "hello")))

	assert.Equal(t, "Please start with /start.", f.sender.lastTextFor(1))
	assert.Empty(t, f.store.users)
}

func TestRegistrationCapturesFieldsVerbatim(t *testing.T) {
	f := newFixture()

	f.register(t, 1, "Ann", "27", "I like hiking")

	u, err := f.store.GetUserByID(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Ann", u.Name)
	assert.Equal(t, 27, u.Age)
	assert.Equal(t, "I like hiking", u.Bio)
	assert.Equal(t, "ref-Ann", u.MediaRef)
	assert.Equal(t, entity.MediaPhoto, u.MediaKind)
	assert.Nil(t, u.Latitude)

	assert.Equal(t, session.StageLocation, f.sessions.Peek(1).Stage)
}

func TestInvalidAgeDoesNotAdvance(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.convo.HandleEvent(ctx, text(1, "/start")))
	require.NoError(t, f.convo.HandleEvent(ctx, text(1, "Ann")))

	for _, bad := range []string{"abc", "-5", "0", "twenty"} {
		require.NoError(t, f.convo.HandleEvent(ctx, text(1, bad)))
		assert.Equal(t, "Please enter a valid age.", f.sender.lastTextFor(1))
		assert.Equal(t, session.StageAge, f.sessions.Peek(1).Stage)
	}

	require.NoError(t, f.convo.HandleEvent(ctx, text(1, "27")))
	assert.Equal(t, session.StageBio, f.sessions.Peek(1).Stage)
}

func TestMediaBeforeBioIsRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.convo.HandleEvent(ctx, text(1, "/start")))
	require.NoError(t, f.convo.HandleEvent(ctx, text(1, "Ann")))
	require.NoError(t, f.convo.HandleEvent(ctx, media(1, "ref", entity.MediaPhoto)))

	assert.Equal(t, "Please fill in the text part of your profile first.", f.sender.lastTextFor(1))
	assert.Empty(t, f.store.users)
}

func TestUnknownMediaKindIsRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.convo.HandleEvent(ctx, text(1, "/start")))
	require.NoError(t, f.convo.HandleEvent(ctx, text(1, "Ann")))
	require.NoError(t, f.convo.HandleEvent(ctx, text(1, "27")))
	require.NoError(t, f.convo.HandleEvent(ctx, text(1, "bio")))
	require.NoError(t, f.convo.HandleEvent(ctx, media(1, "ref", entity.MediaKind("sticker"))))

	assert.Equal(t, "Unsupported media. Please send a photo or a video.", f.sender.lastTextFor(1))
	assert.Empty(t, f.store.users)
}

func TestLocationNotifiesAdminOnlyOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.register(t, 1, "Ann", "27", "bio")
	require.NoError(t, f.convo.HandleEvent(ctx, location(1, 55.75, 37.62)))
	require.NoError(t, f.convo.HandleEvent(ctx, location(1, 59.93, 30.34)))

	assert.Equal(t, 1, f.sender.countContaining(adminID, "New user registered"))
	assert.Equal(t, session.StageBrowsing, f.sessions.Peek(1).Stage)

	u, _ := f.store.GetUserByID(ctx, 1)
	require.NotNil(t, u.Latitude)
	assert.Equal(t, 59.93, *u.Latitude)
}

func TestLocationWithoutProfileIsRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.convo.HandleEvent(ctx, text(1, "/start")))
	require.NoError(t, f.convo.HandleEvent(ctx, location(1, 55.75, 37.62)))

	assert.Equal(t, "Your profile was not found. Use /start to create one.", f.sender.lastTextFor(1))
}

func TestSearchShowsCandidateWithDistance(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.register(t, 1, "Ann", "27", "bio one")
	require.NoError(t, f.convo.HandleEvent(ctx, location(1, 55.75, 37.62)))
	f.register(t, 2, "Bob", "30", "bio two")
	require.NoError(t, f.convo.HandleEvent(ctx, location(2, 59.93, 30.34)))

	require.NoError(t, f.convo.HandleEvent(ctx, text(1, "/search")))

	items := f.sender.itemsFor(1)
	card := items[len(items)-1]
	assert.Equal(t, "photo", card.kind)
	assert.Contains(t, card.text, "Bob, 30")
	assert.Contains(t, card.text, "km")
	assert.Equal(t, int64(2), f.sessions.Peek(1).ShownProfileID)
}

func TestSearchWithoutCoordinatesShowsPlaceholder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.register(t, 1, "Ann", "27", "bio one")
	f.register(t, 2, "Bob", "30", "bio two")

	require.NoError(t, f.convo.HandleEvent(ctx, text(1, "/search")))

	items := f.sender.itemsFor(1)
	assert.Contains(t, items[len(items)-1].text, "distance unknown")
}

func TestSearchExhaustedPool(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.register(t, 1, "Ann", "27", "bio")
	require.NoError(t, f.convo.HandleEvent(ctx, text(1, "/search")))

	assert.Equal(t, "No more profiles. Press 'Start💕' to check again.", f.sender.lastTextFor(1))
	assert.Zero(t, f.sessions.Peek(1).ShownProfileID)
}

func TestDecisionWithoutShownCandidateIsRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.register(t, 1, "Ann", "27", "bio")
	require.NoError(t, f.convo.HandleEvent(ctx, text(1, "❤️")))

	assert.Equal(t, "Use /search to browse profiles.", f.sender.lastTextFor(1))
	assert.Empty(t, f.store.likes)
}

func TestLikeWithoutReciprocalNotifiesAnonymously(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.register(t, 1, "Ann", "27", "bio")
	f.register(t, 2, "Bob", "30", "bio")

	require.NoError(t, f.convo.HandleEvent(ctx, text(1, "/search")))
	require.NoError(t, f.convo.HandleEvent(ctx, text(1, "❤️")))

	ok, err := f.store.HasLike(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, 1, f.sender.countContaining(1, "Like sent!"))
	assert.Equal(t, 1, f.sender.countContaining(2, "Someone liked your profile"))
	assert.Equal(t, 0, f.sender.countContaining(1, "mutual like"))
	assert.Zero(t, f.sessions.Peek(1).MatchedUserID)
}

func TestMutualLikeIntroducesBothSides(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.register(t, 1, "Ann", "27", "bio")
	f.register(t, 2, "Bob", "30", "bio")

	// Bob likes Ann first.
	require.NoError(t, f.convo.HandleEvent(ctx, text(2, "/search")))
	require.NoError(t, f.convo.HandleEvent(ctx, text(2, "❤️")))
	assert.Equal(t, 0, f.sender.countContaining(2, "mutual like"))

	// Ann likes Bob back.
	require.NoError(t, f.convo.HandleEvent(ctx, text(1, "/search")))
	require.NoError(t, f.convo.HandleEvent(ctx, text(1, "❤️")))

	assert.Equal(t, 1, f.sender.countContaining(1, "mutual like"))
	assert.Equal(t, 1, f.sender.countContaining(2, "mutual like"))

	assert.Equal(t, int64(2), f.sessions.Peek(1).MatchedUserID)
	assert.Equal(t, int64(1), f.sessions.Peek(2).MatchedUserID)
}

func TestDislikeStoresNothing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.register(t, 1, "Ann", "27", "bio")
	f.register(t, 2, "Bob", "30", "bio")

	require.NoError(t, f.convo.HandleEvent(ctx, text(1, "/search")))
	require.NoError(t, f.convo.HandleEvent(ctx, text(1, "👎")))

	assert.Empty(t, f.store.likes)
	assert.Equal(t, 1, f.sender.countContaining(1, "Dislike sent!"))
}

func TestRelayAppendsLogAndDelivers(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.register(t, 1, "Ann", "27", "bio")
	f.register(t, 2, "Bob", "30", "bio")
	f.sessions.SetMatched(1, 2)

	require.NoError(t, f.convo.HandleEvent(ctx, text(1, "hello")))

	history, err := f.store.GetHistory(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(1), history[0].UserID)
	assert.Equal(t, int64(2), history[0].MatchedUserID)
	assert.Equal(t, "hello", history[0].Text)

	assert.Equal(t, 1, f.sender.countContaining(2, "hello"))
	assert.Equal(t, 1, f.sender.countContaining(1, "Your message has been sent!"))
	assert.Zero(t, f.sessions.Peek(1).MatchedUserID)
}

func TestRelayWithoutMatchContextIsRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.register(t, 1, "Ann", "27", "bio")
	require.NoError(t, f.convo.HandleEvent(ctx, text(1, "hello")))

	assert.Equal(t, "Use /search to browse profiles.", f.sender.lastTextFor(1))
	assert.Empty(t, f.store.messages)
}

func TestResetCascades(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.register(t, 1, "Ann", "27", "bio")
	f.register(t, 2, "Bob", "30", "bio")

	_, err := f.store.CreateLike(ctx, 1, 2)
	require.NoError(t, err)
	_, err = f.store.CreateLike(ctx, 2, 1)
	require.NoError(t, err)
	_, err = f.store.CreateMessage(ctx, 1, 2, "hi")
	require.NoError(t, err)

	require.NoError(t, f.convo.HandleEvent(ctx, text(1, "1. Refill profile")))

	u, err := f.store.GetUserByID(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, u)
	assert.Empty(t, f.store.likes)
	assert.Empty(t, f.store.messages)
	assert.Equal(t, session.Session{}, f.sessions.Peek(1))

	// The cached pools of users who liked the departed profile were
	// pruned while the edges still named them.
	assert.Contains(t, f.store.purgedLikers, int64(2))
}

func TestEditBioTakesPrecedenceOverMenu(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.register(t, 1, "Ann", "27", "bio")
	require.NoError(t, f.convo.HandleEvent(ctx, text(1, "3. Change bio")))
	require.NoError(t, f.convo.HandleEvent(ctx, text(1, "💤")))

	u, _ := f.store.GetUserByID(ctx, 1)
	assert.Equal(t, "💤", u.Bio)
	assert.False(t, f.sessions.Peek(1).EditingBio)
}

func TestEditMediaReplacesReference(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.register(t, 1, "Ann", "27", "bio")
	require.NoError(t, f.convo.HandleEvent(ctx, text(1, "2. Change photo/video")))
	require.NoError(t, f.convo.HandleEvent(ctx, media(1, "new-ref", entity.MediaVideo)))

	u, _ := f.store.GetUserByID(ctx, 1)
	assert.Equal(t, "new-ref", u.MediaRef)
	assert.Equal(t, entity.MediaVideo, u.MediaKind)
	assert.False(t, f.sessions.Peek(1).EditingMedia)
	assert.Equal(t, 1, f.sender.countContaining(1, "updated"))
}

// Three users whose swipes all resolve to mutual likes at the same
// instant must all complete; no handler may block on another user's
// in-flight introduction.
func TestSimultaneousIntroductionsComplete(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.register(t, 1, "Ann", "27", "bio")
	f.register(t, 2, "Bob", "30", "bio")
	f.register(t, 3, "Eve", "29", "bio")

	// Pre-existing edges closing a cycle: each swipe below detects a
	// mutual like whose counterpart is busy with its own swipe.
	for _, edge := range [][2]int64{{2, 1}, {3, 2}, {1, 3}} {
		_, err := f.store.CreateLike(ctx, edge[0], edge[1])
		require.NoError(t, err)
	}

	for userID, candidateID := range map[int64]int64{1: 2, 2: 3, 3: 1} {
		candidateID := candidateID
		require.NoError(t, f.sessions.WithSession(userID, func(sess *session.Session) error {
			sess.ShownProfileID = candidateID
			return nil
		}))
	}

	var wg sync.WaitGroup
	for userID := int64(1); userID <= 3; userID++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			assert.NoError(t, f.convo.HandleEvent(ctx, text(userID, "❤️")))
		}(userID)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("concurrent mutual-like introductions did not complete")
	}

	// Each user is introduced twice: once as viewer, once as counterpart.
	for userID := int64(1); userID <= 3; userID++ {
		assert.NotZero(t, f.sessions.Peek(userID).MatchedUserID)
		assert.Equal(t, 2, f.sender.countContaining(userID, "mutual like"))
	}
}

func TestStartWithExistingProfileGreets(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.register(t, 1, "Ann", "27", "bio")
	require.NoError(t, f.convo.HandleEvent(ctx, text(1, "/start")))

	assert.Contains(t, f.sender.lastTextFor(1), "already registered")
	assert.Equal(t, session.StageBrowsing, f.sessions.Peek(1).Stage)
}
