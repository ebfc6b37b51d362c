// Package chat is the Telegram submission channel: it ingests photos sent by
// the allow-listed chat and answers the operator commands.
package chat

import "context"

// Photo references an image attached to a chat message.
type Photo struct {
	FileID string
	// FileUniqueID is stable across bots and re-sends of the same file.
	FileUniqueID string
}

// Update is one incoming chat message, reduced to what the bot acts on.
type Update struct {
	ChatID  int64
	Command string // without the leading slash; empty for non-commands
	Photo   *Photo
}

// Messenger is the chat transport.
type Messenger interface {
	// Updates streams incoming messages until ctx is cancelled, then closes
	// the channel.
	Updates(ctx context.Context) (<-chan Update, error)

	// Download fetches the bytes of an attached file.
	Download(ctx context.Context, fileID string) ([]byte, error)

	// Send posts a text message to a chat.
	Send(ctx context.Context, chatID int64, text string) error
}
