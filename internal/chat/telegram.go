package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"photopool/internal/pool"
)

const (
	// pollTimeout is the long-poll timeout for getUpdates, in seconds.
	pollTimeout = 60
	// maxFileSize is the Bot API download limit.
	maxFileSize = 20 << 20
)

// TelegramMessenger is the Messenger backed by the Telegram Bot API.
type TelegramMessenger struct {
	api          *tgbotapi.BotAPI
	client       *http.Client
	fileEndpoint string
}

// NewTelegramMessenger connects to the Bot API and verifies the token.
// Empty endpoints select the public Telegram servers.
func NewTelegramMessenger(token, apiEndpoint, fileEndpoint string, logger pool.Logger) (*TelegramMessenger, error) {
	if apiEndpoint == "" {
		apiEndpoint = tgbotapi.APIEndpoint
	}
	if fileEndpoint == "" {
		fileEndpoint = tgbotapi.FileEndpoint
	}
	if logger != nil {
		if err := tgbotapi.SetLogger(botLogger{l: logger, token: token}); err != nil {
			return nil, fmt.Errorf("setting telegram logger: %w", err)
		}
	}

	// Long polls hold the connection for pollTimeout seconds.
	client := &http.Client{Timeout: (pollTimeout + 15) * time.Second}
	api, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", scrub(err, token))
	}

	return &TelegramMessenger{api: api, client: client, fileEndpoint: fileEndpoint}, nil
}

// Username returns the bot's Telegram handle.
func (m *TelegramMessenger) Username() string {
	return m.api.Self.UserName
}

// Updates starts long polling. The channel closes when ctx is cancelled.
func (m *TelegramMessenger) Updates(ctx context.Context) (<-chan Update, error) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	cfg.AllowedUpdates = []string{"message"}
	in := m.api.GetUpdatesChan(cfg)

	out := make(chan Update)
	go func() {
		defer close(out)
		defer m.api.StopReceivingUpdates()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-in:
				if !ok {
					return
				}
				u, ok := convertUpdate(raw)
				if !ok {
					continue
				}
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// convertUpdate reduces a Bot API update to an Update. Non-message updates
// are skipped.
func convertUpdate(raw tgbotapi.Update) (Update, bool) {
	msg := raw.Message
	if msg == nil || msg.Chat == nil {
		return Update{}, false
	}

	u := Update{ChatID: msg.Chat.ID}
	switch {
	case len(msg.Photo) > 0:
		// Telegram sends several sizes; keep the largest.
		best := msg.Photo[0]
		for _, p := range msg.Photo[1:] {
			if p.Width*p.Height > best.Width*best.Height {
				best = p
			}
		}
		u.Photo = &Photo{FileID: best.FileID, FileUniqueID: best.FileUniqueID}
	case msg.Document != nil && isImageMIME(msg.Document.MimeType):
		// Uncompressed images sent as files.
		u.Photo = &Photo{FileID: msg.Document.FileID, FileUniqueID: msg.Document.FileUniqueID}
	case msg.IsCommand():
		u.Command = msg.Command()
	}
	return u, true
}

func isImageMIME(mime string) bool {
	return strings.HasPrefix(mime, "image/")
}

// Download resolves the file path through getFile and fetches the bytes.
func (m *TelegramMessenger) Download(ctx context.Context, fileID string) ([]byte, error) {
	file, err := m.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("resolving telegram file: %w", scrub(err, m.api.Token))
	}
	if file.FileSize > maxFileSize {
		return nil, fmt.Errorf("telegram file too large: %d bytes", file.FileSize)
	}

	link := fmt.Sprintf(m.fileEndpoint, m.api.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("building download request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		// The link embeds the bot token; report the file path only.
		return nil, fmt.Errorf("downloading telegram file %s: request failed", file.FilePath)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading telegram file %s: status %d", file.FilePath, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading telegram file: %w", err)
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("telegram file exceeds %d bytes", maxFileSize)
	}
	return data, nil
}

// Send posts a plain text message.
func (m *TelegramMessenger) Send(ctx context.Context, chatID int64, text string) error {
	if _, err := m.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("sending telegram message: %w", scrub(err, m.api.Token))
	}
	return nil
}

// scrub removes the bot token from transport errors, whose request URLs
// embed it.
func scrub(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<token>"))
}

// botLogger routes the Bot API library's log output through pool.Logger.
type botLogger struct {
	l     pool.Logger
	token string
}

func (b botLogger) Println(v ...interface{}) {
	b.l.Warn("telegram", "detail", b.redact(fmt.Sprintln(v...)))
}

func (b botLogger) Printf(format string, v ...interface{}) {
	b.l.Warn("telegram", "detail", b.redact(fmt.Sprintf(format, v...)))
}

func (b botLogger) redact(s string) string {
	s = strings.TrimSpace(s)
	if b.token == "" {
		return s
	}
	return strings.ReplaceAll(s, b.token, "<token>")
}
