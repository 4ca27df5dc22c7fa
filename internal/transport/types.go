package transport

import "context"

// Message is one inbound chat message, already normalized away from the
// platform's own update type.
type Message struct {
	ID           int
	ChatID       int64
	FromID       string // opaque user identifier (decimal-encoded for Telegram)
	FromUsername string
	Text         string
	IsGroup      bool
}

type Update struct {
	Message *Message
}

// User is the result of an identifier lookup.
type User struct {
	ID        string
	Username  string
	FirstName string
}

// SendOptions carries transport hints for an outbound message.
//
// Audible is the user's speech-output preference: when false the message is
// delivered without a notification sound (the closest DM equivalent the
// transport offers).
type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Audible        bool
}

// TextSender is the minimal sending surface. It exists separately from
// Adapter so sinks (e.g. the Telegram log writer) can depend on sending
// without seeing the full lifecycle API.
type TextSender interface {
	SendText(ctx context.Context, chatID int64, text string, opt *SendOptions) error
}

// Adapter is the messaging collaborator: inbound updates plus outbound
// direct messages and user resolution.
type Adapter interface {
	TextSender

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	// SendDM delivers a direct message to the user with the given opaque id.
	SendDM(ctx context.Context, userID, text string, opt *SendOptions) error

	// ResolveUser looks up a user by opaque id or @username.
	ResolveUser(ctx context.Context, identifier string) (User, error)
}
