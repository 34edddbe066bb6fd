package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// AlbumItem is one media entry of a grouped send.
// Caption is only honored on the first item of an album.
type AlbumItem struct {
	URL     string
	Caption string
}

// Channel is the outbound delivery contract the dispatcher depends on.
//
// Implementations send to exactly one recipient per call and report the
// failure instead of retrying; retry policy belongs to the caller.
type Channel interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, url, caption string, opt *SendOptions) (MessageRef, error)
	SendAlbum(ctx context.Context, to ChatTarget, items []AlbumItem, opt *SendOptions) error
}

// Adapter is the full two-way transport: the Channel plus inbound updates
// and the interactive-UI primitives used by the command router.
type Adapter interface {
	Channel

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}
