package routesWebhook

import (
	"log"
	"net/http"

	"github.com/dkuznets/cupid-bot/internal/entity"
	"github.com/dkuznets/cupid-bot/internal/usecase/conversation"
	"github.com/dkuznets/cupid-bot/pkg/http_util"
	"github.com/labstack/echo"
)

// Update is the transport's webhook payload, trimmed to the fields the
// core consumes.
type Update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		From *struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
		} `json:"from"`
		Text  string `json:"text"`
		Photo []struct {
			FileID string `json:"file_id"`
		} `json:"photo"`
		Video *struct {
			FileID string `json:"file_id"`
		} `json:"video"`
		Location *struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"location"`
	} `json:"message"`
}

// Handler decodes one webhook update into a classified event and hands it
// to the conversation logic. The transport always gets a 200 back: a
// failed event is dropped, not retried.
func Handler(c echo.Context, convoCase conversation.IConversationUseCase, logger *log.Logger) error {
	update, err := http_util.Decode[Update](c)
	if err != nil {
		return http_util.Encode(c, http.StatusBadRequest, map[string]string{"error": "invalid update"})
	}

	ev, ok := classify(update)
	if !ok {
		return http_util.Encode(c, http.StatusOK, map[string]string{"status": "ignored"})
	}

	if err := convoCase.HandleEvent(c.Request().Context(), ev); err != nil {
		logger.Printf("event from %d dropped: %v", ev.UserID, err)
	}

	return http_util.Encode(c, http.StatusOK, map[string]string{"status": "ok"})
}

func classify(update Update) (entity.Event, bool) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return entity.Event{}, false
	}

	ev := entity.Event{
		UserID: msg.From.ID,
		Handle: msg.From.Username,
	}

	switch {
	case len(msg.Photo) > 0:
		ev.Kind = entity.EventMedia
		ev.MediaKind = entity.MediaPhoto
		// Last size is the largest rendition.
		ev.MediaRef = msg.Photo[len(msg.Photo)-1].FileID
	case msg.Video != nil:
		ev.Kind = entity.EventMedia
		ev.MediaKind = entity.MediaVideo
		ev.MediaRef = msg.Video.FileID
	case msg.Location != nil:
		ev.Kind = entity.EventLocation
		ev.Latitude = msg.Location.Latitude
		ev.Longitude = msg.Location.Longitude
	case msg.Text != "":
		ev.Kind = entity.EventText
		ev.Text = msg.Text
	default:
		return entity.Event{}, false
	}

	return ev, true
}
