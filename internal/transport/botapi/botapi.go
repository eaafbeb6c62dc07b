package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dkuznets/cupid-bot/internal/transport"
)

// Client sends outbound content through the bot HTTP API. Pure I/O glue;
// every call is one JSON POST.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func New(baseURL, token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		token:      token,
	}
}

func (c *Client) SendText(ctx context.Context, userID int64, text string, menu *transport.Menu) error {
	payload := map[string]interface{}{
		"chat_id": userID,
		"text":    text,
	}
	if m := replyMarkup(menu); m != nil {
		payload["reply_markup"] = m
	}
	return c.call(ctx, "sendMessage", payload)
}

func (c *Client) SendPhoto(ctx context.Context, userID int64, ref, caption string, menu *transport.Menu) error {
	payload := map[string]interface{}{
		"chat_id": userID,
		"photo":   ref,
		"caption": caption,
	}
	if m := replyMarkup(menu); m != nil {
		payload["reply_markup"] = m
	}
	return c.call(ctx, "sendPhoto", payload)
}

func (c *Client) SendVideo(ctx context.Context, userID int64, ref, caption string, menu *transport.Menu) error {
	payload := map[string]interface{}{
		"chat_id": userID,
		"video":   ref,
		"caption": caption,
	}
	if m := replyMarkup(menu); m != nil {
		payload["reply_markup"] = m
	}
	return c.call(ctx, "sendVideo", payload)
}

func (c *Client) call(ctx context.Context, method string, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bot api %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bot api %s: status %d", method, resp.StatusCode)
	}
	return nil
}

func replyMarkup(menu *transport.Menu) interface{} {
	if menu == nil {
		return nil
	}
	if menu.Remove {
		return map[string]interface{}{"remove_keyboard": true}
	}

	keyboard := make([][]map[string]string, 0, len(menu.Rows))
	for _, row := range menu.Rows {
		buttons := make([]map[string]string, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, map[string]string{"text": label})
		}
		keyboard = append(keyboard, buttons)
	}

	return map[string]interface{}{
		"keyboard":          keyboard,
		"resize_keyboard":   true,
		"one_time_keyboard": menu.OneTime,
	}
}
