package transport

import "context"

// Menu is a structured choice keyboard rendered by the transport. Remove
// asks the transport to drop any keyboard currently shown.
type Menu struct {
	Rows    [][]string
	OneTime bool
	Remove  bool
}

// RemoveMenu clears the recipient's keyboard alongside the message.
var RemoveMenu = &Menu{Remove: true}

// Sender is the narrow outbound surface the core talks to. How text,
// media references and menus are rendered is the transport's business.
type Sender interface {
	SendText(ctx context.Context, userID int64, text string, menu *Menu) error
	SendPhoto(ctx context.Context, userID int64, ref, caption string, menu *Menu) error
	SendVideo(ctx context.Context, userID int64, ref, caption string, menu *Menu) error
}
