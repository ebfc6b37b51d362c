package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"photopool/internal/pool"
)

const (
	// DuplicateWindow is how long a submitted file is remembered.
	DuplicateWindow = 10 * time.Minute
	duplicateSize   = 1024
)

const (
	msgHelp          = "Send a photo to upload (3:2 crop) or use /random for captioned image.\n/status shows the pool, /reset makes every photo available again."
	msgUploadFailed  = "❌ Upload failed. Please try again."
	msgDuplicate     = "⚠️ This photo was already uploaded."
	msgNoPhotos      = "No unused photos available."
	msgRandomFailed  = "❌ Failed to get random photo"
	msgResetFailed   = "❌ Reset failed"
	msgStatusFailed  = "❌ Failed to load pool status"
	msgCaptionFailed = "⚠️ Failed to generate caption"
)

// Pool is the part of pool.Service the chat channel drives.
type Pool interface {
	Ingest(ctx context.Context, raw []byte) (*pool.IngestResult, error)
	Draw(ctx context.Context) (*pool.Draw, error)
	Reset(ctx context.Context) (int64, error)
	Status(ctx context.Context) (*pool.Status, error)
}

// Bot dispatches chat updates to the pool. Only the allow-listed chat is
// served; everything else is dropped without a reply.
type Bot struct {
	messenger     Messenger
	pool          Pool
	allowedChatID int64
	logger        pool.Logger

	// recent holds FileUniqueIDs submitted within DuplicateWindow.
	recent   *expirable.LRU[string, struct{}]
	recentMu sync.Mutex

	wg sync.WaitGroup
}

// NewBot creates a Bot serving allowedChatID.
func NewBot(m Messenger, p Pool, allowedChatID int64, logger pool.Logger) *Bot {
	if logger == nil {
		logger = pool.NewNopLogger()
	}
	return &Bot{
		messenger:     m,
		pool:          p,
		allowedChatID: allowedChatID,
		logger:        logger,
		recent:        expirable.NewLRU[string, struct{}](duplicateSize, nil, DuplicateWindow),
	}
}

// Run handles updates concurrently until ctx is cancelled or the update stream
// ends, then waits for in-flight handlers.
func (b *Bot) Run(ctx context.Context) error {
	updates, err := b.messenger.Updates(ctx)
	if err != nil {
		return fmt.Errorf("starting update stream: %w", err)
	}
	b.logger.Info("chat bot started", "chat_id", b.allowedChatID)

	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.Handle(ctx, u)
			}()
		}
	}
}

// Handle processes a single update.
func (b *Bot) Handle(ctx context.Context, u Update) {
	if u.ChatID != b.allowedChatID {
		b.logger.Debug("ignoring update from unauthorized chat", "op", "chat", "chat_id", u.ChatID)
		return
	}

	if u.Photo != nil {
		b.handlePhoto(ctx, u)
		return
	}

	switch u.Command {
	case "":
		return
	case "start", "help":
		b.reply(ctx, u.ChatID, msgHelp)
	case "random":
		b.handleRandom(ctx, u.ChatID)
	case "reset":
		b.handleReset(ctx, u.ChatID)
	case "status":
		b.handleStatus(ctx, u.ChatID)
	default:
		b.reply(ctx, u.ChatID, msgHelp)
	}
}

// claimFile records a submission; it reports false if the same file was seen
// within DuplicateWindow.
func (b *Bot) claimFile(uniqueID string) bool {
	if uniqueID == "" {
		return true
	}
	b.recentMu.Lock()
	defer b.recentMu.Unlock()
	if b.recent.Contains(uniqueID) {
		return false
	}
	b.recent.Add(uniqueID, struct{}{})
	return true
}

func (b *Bot) releaseFile(uniqueID string) {
	if uniqueID == "" {
		return
	}
	b.recentMu.Lock()
	defer b.recentMu.Unlock()
	b.recent.Remove(uniqueID)
}

func (b *Bot) handlePhoto(ctx context.Context, u Update) {
	if !b.claimFile(u.Photo.FileUniqueID) {
		b.logger.Info("duplicate photo skipped", "op", "chat", "file_unique_id", u.Photo.FileUniqueID)
		b.reply(ctx, u.ChatID, msgDuplicate)
		return
	}

	raw, err := b.messenger.Download(ctx, u.Photo.FileID)
	if err != nil {
		b.releaseFile(u.Photo.FileUniqueID)
		b.logger.Error("downloading photo", "op", "chat", "error", err)
		b.reply(ctx, u.ChatID, msgUploadFailed)
		return
	}

	res, err := b.pool.Ingest(ctx, raw)
	if err != nil {
		b.releaseFile(u.Photo.FileUniqueID)
		b.reply(ctx, u.ChatID, msgUploadFailed)
		return
	}

	b.reply(ctx, u.ChatID, uploadReply(res))
}

func uploadReply(res *pool.IngestResult) string {
	var sb strings.Builder
	sb.WriteString("✅ Uploaded!\n")
	if res.URL != "" {
		fmt.Fprintf(&sb, "📷 URL: %s\n", res.URL)
	} else {
		fmt.Fprintf(&sb, "📷 ID: %s\n", res.ID)
	}
	if res.Captioned {
		fmt.Fprintf(&sb, "📝 Caption: %s", res.Caption)
	} else {
		sb.WriteString(msgCaptionFailed)
	}
	return sb.String()
}

func (b *Bot) handleRandom(ctx context.Context, chatID int64) {
	d, err := b.pool.Draw(ctx)
	if errors.Is(err, pool.ErrPoolExhausted) {
		b.reply(ctx, chatID, msgNoPhotos)
		return
	}
	if err != nil {
		b.reply(ctx, chatID, msgRandomFailed)
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf("🎲 Random Photo\n📷 URL: %s\n📝 Caption: %s", d.URL, d.Caption))
}

func (b *Bot) handleReset(ctx context.Context, chatID int64) {
	cleared, err := b.pool.Reset(ctx)
	if err != nil {
		b.reply(ctx, chatID, msgResetFailed)
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf("🔄 Pool reset: %d used photos are available again.", cleared))
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	st, err := b.pool.Status(ctx)
	if err != nil {
		b.logger.Error("loading status", "op", "chat", "error", err)
		b.reply(ctx, chatID, msgStatusFailed)
		return
	}
	b.reply(ctx, chatID, statusReply(st))
}

func statusReply(st *pool.Status) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Pool status\nTotal: %d\nUnused: %d\nUsed: %d\nCaptioned: %d", st.Total, st.Unused, st.Used, st.Captioned)
	if st.Stale > 0 {
		fmt.Fprintf(&sb, "\nStale: %d", st.Stale)
	}
	if st.LastReset != nil {
		fmt.Fprintf(&sb, "\nLast reset: %s (%d cleared)", st.LastReset.ResetAt.UTC().Format(time.RFC3339), st.LastReset.Cleared)
	}
	return sb.String()
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.messenger.Send(context.WithoutCancel(ctx), chatID, text); err != nil {
		b.logger.Warn("sending reply", "op", "chat", "chat_id", chatID, "error", err)
	}
}
