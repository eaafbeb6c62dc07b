package conversation

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/dkuznets/cupid-bot/internal/entity"
	likeRepo "github.com/dkuznets/cupid-bot/internal/repository/like"
	userRepo "github.com/dkuznets/cupid-bot/internal/repository/user"
	"github.com/dkuznets/cupid-bot/internal/session"
	"github.com/dkuznets/cupid-bot/internal/transport"
	"github.com/dkuznets/cupid-bot/internal/usecase/match"
	"github.com/dkuznets/cupid-bot/internal/usecase/relay"
	"github.com/dkuznets/cupid-bot/pkg/deeplink"
)

// Reply-keyboard labels. These are part of the conversational contract:
// inbound text equal to a label is a menu command, anything else falls
// through to the state machine.
const (
	btnLike      = "❤️"
	btnDislike   = "👎"
	btnSleep     = "💤"
	btnStart     = "Start💕"
	btnMyProfile = "My profile"

	menuBrowse        = "1. Browse profiles"
	menuMyProfile     = "2. My profile"
	menuNotifications = "3. Notification settings"
	menuCreateProfile = "4. Create profile"

	profileRefill      = "1. Refill profile"
	profileChangeMedia = "2. Change photo/video"
	profileChangeBio   = "3. Change bio"
	profileBack        = "4. Back"

	msgPleaseStart      = "Please start with /start."
	msgUseSearch        = "Use /search to browse profiles."
	msgNoProfile        = "Your profile was not found. Use /start to create one."
	msgNoMoreProfiles   = "No more profiles. Press 'Start💕' to check again."
	msgInvalidAge       = "Please enter a valid age."
	msgUnsupportedMedia = "Unsupported media. Please send a photo or a video."
)

type IConversationUseCase interface {
	HandleEvent(ctx context.Context, ev entity.Event) error
}

type conversationUseCase struct {
	sessions *session.Store
	userRepo userRepo.IUserRepo
	likeRepo likeRepo.ILikeRepo
	matchCase match.IMatchUseCase
	relayCase relay.IRelayUseCase
	sender    transport.Sender
	links     *deeplink.Signer
	adminID   int64
	logger    *log.Logger
}

func New(
	sessions *session.Store,
	userRepo userRepo.IUserRepo,
	likeRepo likeRepo.ILikeRepo,
	matchCase match.IMatchUseCase,
	relayCase relay.IRelayUseCase,
	sender transport.Sender,
	links *deeplink.Signer,
	adminID int64,
	logger *log.Logger,
) IConversationUseCase {
	return &conversationUseCase{
		sessions:  sessions,
		userRepo:  userRepo,
		likeRepo:  likeRepo,
		matchCase: matchCase,
		relayCase: relayCase,
		sender:    sender,
		links:     links,
		adminID:   adminID,
		logger:    logger,
	}
}

// HandleEvent classifies one inbound event and advances the user's state
// machine. The whole event runs under the user's session lock so the
// transport may deliver overlapping events without losing updates.
//
// A detected mutual like must also fill the counterpart's match slot.
// That write happens only after the viewer's session lock is released:
// taking a second session lock while holding one can cycle when several
// introductions resolve at once.
func (c *conversationUseCase) HandleEvent(ctx context.Context, ev entity.Event) error {
	var matchedCounterpart int64

	err := c.sessions.WithSession(ev.UserID, func(sess *session.Session) error {
		switch ev.Kind {
		case entity.EventText:
			return c.handleText(ctx, ev, sess, &matchedCounterpart)
		case entity.EventMedia:
			return c.handleMedia(ctx, ev, sess)
		case entity.EventLocation:
			return c.handleLocation(ctx, ev, sess)
		default:
			return c.sender.SendText(ctx, ev.UserID, msgPleaseStart, nil)
		}
	})

	if matchedCounterpart != 0 {
		c.sessions.SetMatched(matchedCounterpart, ev.UserID)
	}
	return err
}

func (c *conversationUseCase) handleText(ctx context.Context, ev entity.Event, sess *session.Session, matchedCounterpart *int64) error {
	if strings.HasPrefix(ev.Text, "/") {
		return c.handleCommand(ctx, ev, sess)
	}

	if !sess.Started {
		return c.sender.SendText(ctx, ev.UserID, msgPleaseStart, nil)
	}

	profile, err := c.userRepo.GetUserByID(ctx, ev.UserID)
	if err != nil {
		return err
	}

	if profile == nil {
		return c.handleProfileCreation(ctx, ev, sess)
	}
	return c.handleInteraction(ctx, ev, sess, profile, matchedCounterpart)
}

func (c *conversationUseCase) handleCommand(ctx context.Context, ev entity.Event, sess *session.Session) error {
	switch strings.Fields(ev.Text)[0] {
	case "/start":
		return c.start(ctx, ev, sess)
	case "/search":
		if !sess.Started {
			return c.sender.SendText(ctx, ev.UserID, msgPleaseStart, nil)
		}
		return c.search(ctx, ev.UserID, sess)
	default:
		return c.sender.SendText(ctx, ev.UserID, msgPleaseStart, nil)
	}
}

func (c *conversationUseCase) start(ctx context.Context, ev entity.Event, sess *session.Session) error {
	profile, err := c.userRepo.GetUserByID(ctx, ev.UserID)
	if err != nil {
		return err
	}

	sess.Started = true

	if profile != nil {
		sess.Stage = session.StageBrowsing
		greeting := fmt.Sprintf("Hi, %s! You are already registered.", profile.Name)
		return c.sender.SendText(ctx, ev.UserID, greeting, startMenu())
	}

	sess.Stage = session.StageName
	return c.sender.SendText(ctx, ev.UserID, "Hi! Let's create your profile. What's your name?", nil)
}

// handleProfileCreation routes text to the first incomplete creation field
// in fixed order: name, age, bio. Invalid input re-prompts without
// advancing, so retries are idempotent. Nothing touches the store until
// media arrives.
func (c *conversationUseCase) handleProfileCreation(ctx context.Context, ev entity.Event, sess *session.Session) error {
	switch sess.Stage {
	case session.StageUnstarted, session.StageName:
		sess.Draft.Name = ev.Text
		sess.Stage = session.StageAge
		return c.sender.SendText(ctx, ev.UserID, "Great! Now tell me your age:", nil)

	case session.StageAge:
		age, err := strconv.Atoi(strings.TrimSpace(ev.Text))
		if err != nil || age <= 0 {
			return c.sender.SendText(ctx, ev.UserID, msgInvalidAge, nil)
		}
		sess.Draft.Age = age
		sess.Stage = session.StageBio
		return c.sender.SendText(ctx, ev.UserID, "Good! Now write a few words about yourself:", nil)

	case session.StageBio:
		sess.Draft.Bio = ev.Text
		sess.Stage = session.StageMedia
		return c.sender.SendText(ctx, ev.UserID, "Great! Now send your photo or video:", nil)

	default:
		return c.sender.SendText(ctx, ev.UserID, "Please send a photo or video to finish your profile.", nil)
	}
}

func (c *conversationUseCase) handleInteraction(ctx context.Context, ev entity.Event, sess *session.Session, profile *entity.User, matchedCounterpart *int64) error {
	// Edit flags take precedence over menu labels so a bio that happens
	// to look like a command is still stored verbatim.
	if sess.EditingBio {
		if err := c.userRepo.UpdateBio(ctx, ev.UserID, ev.Text); err != nil {
			return err
		}
		sess.EditingBio = false
		return c.sender.SendText(ctx, ev.UserID, "Your bio has been updated!", nil)
	}

	switch ev.Text {
	case btnLike, btnDislike:
		return c.handleDecision(ctx, ev, sess, matchedCounterpart)
	case btnSleep, profileBack:
		return c.sendMainMenu(ctx, ev.UserID)
	case btnStart, menuBrowse:
		return c.search(ctx, ev.UserID, sess)
	case btnMyProfile, menuMyProfile:
		return c.showMyProfile(ctx, ev.UserID, profile)
	case menuNotifications:
		return c.sender.SendText(ctx, ev.UserID, "Notification settings are not available yet.", nil)
	case menuCreateProfile:
		return c.start(ctx, ev, sess)
	case profileRefill:
		return c.resetProfile(ctx, ev.UserID, sess)
	case profileChangeMedia:
		sess.EditingMedia = true
		return c.sender.SendText(ctx, ev.UserID, "Please send the new photo or video.", nil)
	case profileChangeBio:
		sess.EditingBio = true
		return c.sender.SendText(ctx, ev.UserID, "Please send the new text for your profile.", nil)
	default:
		return c.handleMatchMessage(ctx, ev, sess)
	}
}

func (c *conversationUseCase) handleDecision(ctx context.Context, ev entity.Event, sess *session.Session, matchedCounterpart *int64) error {
	candidateID := sess.ShownProfileID
	if candidateID == 0 {
		return c.sender.SendText(ctx, ev.UserID, msgUseSearch, nil)
	}

	decision := entity.DecisionLike
	if ev.Text == btnDislike {
		decision = entity.DecisionDislike
	}

	outcome, err := c.matchCase.Swipe(ctx, ev.UserID, candidateID, decision)
	if err != nil {
		return err
	}
	sess.ShownProfileID = 0

	switch outcome {
	case entity.OutcomePassed:
		if err := c.sender.SendText(ctx, ev.UserID, "Dislike sent!", nil); err != nil {
			return err
		}

	case entity.OutcomeNotFound:
		if err := c.sender.SendText(ctx, ev.UserID, "That profile is no longer available.", nil); err != nil {
			return err
		}

	case entity.OutcomeMatch:
		if err := c.introduceMatch(ctx, ev.UserID, candidateID, sess, matchedCounterpart); err != nil {
			return err
		}

	case entity.OutcomeLiked:
		if err := c.sender.SendText(ctx, ev.UserID, "Like sent!", nil); err != nil {
			return err
		}
		// Anonymous interest notification; best-effort.
		if err := c.sender.SendText(ctx, candidateID, "Someone liked your profile! Send /search to find out who 😍", nil); err != nil {
			c.logger.Printf("like notification to %d failed: %v", candidateID, err)
		}
	}

	return c.showNextProfile(ctx, ev.UserID, sess)
}

// introduceMatch notifies both parties with each other's contact link and
// fills the viewer's active-match slot. The counterpart's slot is
// reported back through matchedCounterpart for HandleEvent to fill once
// the viewer's session section has ended.
func (c *conversationUseCase) introduceMatch(ctx context.Context, viewerID, matchedID int64, sess *session.Session, matchedCounterpart *int64) error {
	matched, err := c.userRepo.GetUserByID(ctx, matchedID)
	if err != nil {
		return err
	}
	viewer, err := c.userRepo.GetUserByID(ctx, viewerID)
	if err != nil {
		return err
	}

	matchedHandle, viewerHandle := "", ""
	if matched != nil {
		matchedHandle = matched.Handle
	}
	if viewer != nil {
		viewerHandle = viewer.Handle
	}

	text := fmt.Sprintf("It's a mutual like! Tap here to write: %s", c.contactLink(matchedHandle, matchedID))
	if err := c.sender.SendText(ctx, viewerID, text, nil); err != nil {
		return err
	}

	counterpartText := fmt.Sprintf("It's a mutual like! Tap here to write: %s", c.contactLink(viewerHandle, viewerID))
	if err := c.sender.SendText(ctx, matchedID, counterpartText, nil); err != nil {
		c.logger.Printf("match notification to %d failed: %v", matchedID, err)
	}

	sess.MatchedUserID = matchedID
	*matchedCounterpart = matchedID
	return nil
}

func (c *conversationUseCase) contactLink(handle string, userID int64) string {
	link, err := c.links.ContactLink(handle, userID)
	if err != nil {
		c.logger.Printf("contact link for %d failed: %v", userID, err)
		return fmt.Sprintf("tg://user?id=%d", userID)
	}
	return link
}

func (c *conversationUseCase) handleMatchMessage(ctx context.Context, ev entity.Event, sess *session.Session) error {
	if sess.MatchedUserID == 0 {
		return c.sender.SendText(ctx, ev.UserID, msgUseSearch, nil)
	}

	if err := c.relayCase.Relay(ctx, ev.UserID, sess.MatchedUserID, ev.Text); err != nil {
		return err
	}

	// One outstanding match-message context per session.
	sess.MatchedUserID = 0
	return c.sender.SendText(ctx, ev.UserID, "Your message has been sent!", nil)
}

func (c *conversationUseCase) search(ctx context.Context, userID int64, sess *session.Session) error {
	profile, err := c.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if profile == nil {
		return c.sender.SendText(ctx, userID, msgNoProfile, nil)
	}

	if err := c.sender.SendText(ctx, userID, "Looking for profiles...", transport.RemoveMenu); err != nil {
		return err
	}
	return c.showNextProfile(ctx, userID, sess)
}

func (c *conversationUseCase) showNextProfile(ctx context.Context, userID int64, sess *session.Session) error {
	candidate, err := c.matchCase.NextCandidate(ctx, userID)
	if err != nil {
		return err
	}

	if candidate == nil {
		sess.ShownProfileID = 0
		return c.sender.SendText(ctx, userID, msgNoMoreProfiles, retryMenu())
	}

	caption := fmt.Sprintf("%s, %d\n%s\n%s",
		candidate.Profile.Name, candidate.Profile.Age, candidate.Profile.Bio, candidate.Distance)

	if err := c.sendProfileCard(ctx, userID, &candidate.Profile, caption, decisionMenu()); err != nil {
		c.logger.Printf("sending profile card to %d failed: %v", userID, err)
		return c.sender.SendText(ctx, userID, "Something went wrong loading that profile. Try again.", retryMenu())
	}

	sess.ShownProfileID = candidate.Profile.ID
	return nil
}

func (c *conversationUseCase) showMyProfile(ctx context.Context, userID int64, profile *entity.User) error {
	caption := fmt.Sprintf("%s, %d\n%s", profile.Name, profile.Age, profile.Bio)
	return c.sendProfileCard(ctx, userID, profile, caption, profileMenu())
}

func (c *conversationUseCase) sendProfileCard(ctx context.Context, userID int64, profile *entity.User, caption string, menu *transport.Menu) error {
	switch profile.MediaKind {
	case entity.MediaPhoto:
		return c.sender.SendPhoto(ctx, userID, profile.MediaRef, caption, menu)
	case entity.MediaVideo:
		return c.sender.SendVideo(ctx, userID, profile.MediaRef, caption, menu)
	default:
		return fmt.Errorf("profile %d has unknown media kind %q", profile.ID, profile.MediaKind)
	}
}

func (c *conversationUseCase) resetProfile(ctx context.Context, userID int64, sess *session.Session) error {
	// Other viewers' cached pools must forget this user before the edges
	// naming them go away.
	if err := c.likeRepo.InvalidateLikerCaches(ctx, userID); err != nil {
		return err
	}
	if err := c.userRepo.DeleteUserCascade(ctx, userID); err != nil {
		return err
	}
	c.likeRepo.InvalidateCache(userID)

	*sess = session.Session{}
	return c.sender.SendText(ctx, userID, "Your profile has been deleted. Send /start to create a new one.", transport.RemoveMenu)
}

func (c *conversationUseCase) handleMedia(ctx context.Context, ev entity.Event, sess *session.Session) error {
	if !sess.Started {
		return c.sender.SendText(ctx, ev.UserID, msgPleaseStart, nil)
	}

	if !ev.MediaKind.Valid() {
		return c.sender.SendText(ctx, ev.UserID, msgUnsupportedMedia, nil)
	}

	profile, err := c.userRepo.GetUserByID(ctx, ev.UserID)
	if err != nil {
		return err
	}

	if profile == nil {
		if sess.Stage != session.StageMedia {
			return c.sender.SendText(ctx, ev.UserID, "Please fill in the text part of your profile first.", nil)
		}
		return c.registerProfile(ctx, ev, sess)
	}

	if sess.EditingMedia {
		if err := c.userRepo.UpdateMedia(ctx, ev.UserID, ev.MediaRef, ev.MediaKind); err != nil {
			return err
		}
		sess.EditingMedia = false
		return c.sender.SendText(ctx, ev.UserID, "Your photo/video has been updated!", nil)
	}

	return c.sender.SendText(ctx, ev.UserID, "Your profile already has media. Use 'My profile' to change it.", nil)
}

// registerProfile is the single point where profile creation touches the
// store: all four collected fields are persisted at once.
func (c *conversationUseCase) registerProfile(ctx context.Context, ev entity.Event, sess *session.Session) error {
	user := entity.User{
		ID:        ev.UserID,
		Handle:    ev.Handle,
		Name:      sess.Draft.Name,
		Age:       sess.Draft.Age,
		Bio:       sess.Draft.Bio,
		MediaRef:  ev.MediaRef,
		MediaKind: ev.MediaKind,
	}
	if _, err := c.userRepo.CreateUser(ctx, user); err != nil {
		return err
	}

	sess.Stage = session.StageLocation
	return c.sender.SendText(ctx, ev.UserID,
		"Thanks! Your profile has been created. Now please share your location:", locationMenu())
}

func (c *conversationUseCase) handleLocation(ctx context.Context, ev entity.Event, sess *session.Session) error {
	if !sess.Started {
		return c.sender.SendText(ctx, ev.UserID, msgPleaseStart, nil)
	}

	profile, err := c.userRepo.GetUserByID(ctx, ev.UserID)
	if err != nil {
		return err
	}
	if profile == nil {
		return c.sender.SendText(ctx, ev.UserID, msgNoProfile, nil)
	}

	firstLocation := !profile.HasLocation()
	if err := c.userRepo.UpdateLocation(ctx, ev.UserID, ev.Latitude, ev.Longitude); err != nil {
		return err
	}

	if firstLocation {
		c.notifyAdmin(ctx, ev.UserID, ev.Latitude, ev.Longitude)
	}

	sess.Stage = session.StageBrowsing
	return c.sender.SendText(ctx, ev.UserID,
		"Your location has been saved! Press 'Start💕' to browse profiles or 'My profile' to view and edit your own.",
		startMenu())
}

// notifyAdmin fires the one-shot operator notification for a new
// registration; failures are logged and swallowed.
func (c *conversationUseCase) notifyAdmin(ctx context.Context, userID int64, latitude, longitude float64) {
	if c.adminID == 0 {
		return
	}
	text := fmt.Sprintf("New user registered! ID: %d, location: https://www.google.com/maps?q=%f,%f",
		userID, latitude, longitude)
	if err := c.sender.SendText(ctx, c.adminID, text, nil); err != nil {
		c.logger.Printf("admin notification failed: %v", err)
	}
}

func (c *conversationUseCase) sendMainMenu(ctx context.Context, userID int64) error {
	return c.sender.SendText(ctx, userID, "Choose an action:", mainMenu())
}

func mainMenu() *transport.Menu {
	return &transport.Menu{
		Rows: [][]string{
			{menuBrowse},
			{menuMyProfile},
			{menuNotifications},
			{menuCreateProfile},
		},
		OneTime: true,
	}
}

func profileMenu() *transport.Menu {
	return &transport.Menu{
		Rows: [][]string{
			{profileRefill},
			{profileChangeMedia},
			{profileChangeBio},
			{profileBack},
		},
		OneTime: true,
	}
}

func decisionMenu() *transport.Menu {
	return &transport.Menu{
		Rows:    [][]string{{btnLike, btnDislike, btnSleep}},
		OneTime: true,
	}
}

func startMenu() *transport.Menu {
	return &transport.Menu{
		Rows:    [][]string{{btnStart}, {btnMyProfile}},
		OneTime: true,
	}
}

func retryMenu() *transport.Menu {
	return &transport.Menu{
		Rows:    [][]string{{btnStart}},
		OneTime: true,
	}
}

func locationMenu() *transport.Menu {
	return &transport.Menu{
		Rows:    [][]string{{"Share location"}},
		OneTime: true,
	}
}
