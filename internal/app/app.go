package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"photopool/internal/caption"
	"photopool/internal/chat"
	"photopool/internal/config"
	"photopool/internal/database"
	"photopool/internal/fs"
	"photopool/internal/pool"
	"photopool/internal/server"
	"photopool/internal/store"
)

// PhotoApp is the application layer between the CLI and pool.Service.
// It constructs all dependencies from config, exposes the operator commands
// and the long-running server, and releases resources on Close.
type PhotoApp struct {
	cfg       *config.Config
	op        *Operation
	clock     pool.Clock
	store     pool.Store
	tracker   pool.Tracker
	service   *pool.Service
	messenger chat.Messenger
	logger    *slog.Logger
	logFile   *os.File
}

type options struct {
	captioner pool.Captioner
	messenger chat.Messenger
	clock     pool.Clock
	idgen     pool.IDGenerator
}

// Option overrides a dependency PhotoApp would otherwise build from config.
type Option func(*options)

// WithCaptioner replaces the configured caption backend.
func WithCaptioner(c pool.Captioner) Option {
	return func(o *options) { o.captioner = c }
}

// WithMessenger replaces the Telegram messenger used by Serve.
func WithMessenger(m chat.Messenger) Option {
	return func(o *options) { o.messenger = m }
}

// WithClock replaces the wall clock.
func WithClock(c pool.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithIDGenerator replaces the random photo id generator.
func WithIDGenerator(g pool.IDGenerator) Option {
	return func(o *options) { o.idgen = g }
}

// NewPhotoApp creates a fully wired PhotoApp from the given config.
// command identifies the CLI command being run (e.g. "serve", "draw").
// The caller must call Close when done.
func NewPhotoApp(ctx context.Context, cfg *config.Config, command string, opts ...Option) (*PhotoApp, error) {
	o := options{clock: pool.RealClock{}, idgen: pool.UUIDGenerator{}}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	op := NewOperation(command, o.clock)
	logger, logFile, err := newLogger(cfg.LogDir, cfg.LogLevel, op.ID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapter := &slogAdapter{l: logger}

	a := &PhotoApp{
		cfg:       cfg,
		op:        op,
		clock:     o.clock,
		messenger: o.messenger,
		logger:    logger,
		logFile:   logFile,
	}

	a.store, err = store.NewStoreFromConfig(ctx, cfg.Store, o.idgen)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating store: %w", err)
	}
	if err := a.store.ValidateSetup(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("validating store: %w", err)
	}

	a.tracker, err = database.NewTrackerFromConfig(ctx, cfg.Database, o.clock)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating tracker: %w", err)
	}

	captioner := o.captioner
	if captioner == nil {
		fetcher, err := caption.NewFetcherFromConfig(ctx, cfg.Caption, adapter)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("creating captioner: %w", err)
		}
		captioner = fetcher
	}

	a.service = pool.NewService(a.store, a.tracker, captioner, pool.NewSelector(), adapter)
	logger.Debug("app initialized", "command", command, "store", cfg.Store.Type, "database", cfg.Database.Type, "caption", cfg.Caption.Type)
	return a, nil
}

// Service exposes the underlying pool service.
func (a *PhotoApp) Service() *pool.Service {
	return a.service
}

// IngestFile runs a local image file through the ingestion pipeline.
func (a *PhotoApp) IngestFile(ctx context.Context, path string) (*pool.IngestResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return a.service.Ingest(ctx, raw)
}

// FindPhotos expands files and directories into the photo files to ingest.
func (a *PhotoApp) FindPhotos(args []string, recursive bool, ignore []string) ([]string, error) {
	paths, err := fs.NewFinder(ignore).Find(args, recursive)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("photos found", "args", len(args), "files", len(paths), "recursive", recursive)
	return paths, nil
}

// Draw hands out one unused photo.
func (a *PhotoApp) Draw(ctx context.Context) (*pool.Draw, error) {
	return a.service.Draw(ctx)
}

// Reset makes every stored photo eligible again.
func (a *PhotoApp) Reset(ctx context.Context) (int64, error) {
	return a.service.Reset(ctx)
}

// Status returns pool counts.
func (a *PhotoApp) Status(ctx context.Context) (*pool.Status, error) {
	return a.service.Status(ctx)
}

// History returns the most recent draws of the current cycle.
func (a *PhotoApp) History(ctx context.Context, limit int) ([]*pool.UsageEntry, error) {
	return a.service.History(ctx, limit)
}

// Serve runs the HTTP server and the chat bot until ctx is cancelled or either
// fails.
func (a *PhotoApp) Serve(ctx context.Context) error {
	if err := a.cfg.ValidateServe(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	adapter := &slogAdapter{l: a.logger}

	messenger := a.messenger
	if messenger == nil {
		tm, err := chat.NewTelegramMessenger(a.cfg.Telegram.Token, "", "", adapter)
		if err != nil {
			return err
		}
		a.logger.Info("telegram connected", "bot", tm.Username())
		messenger = tm
	}

	bot := chat.NewBot(messenger, a.service, a.cfg.Telegram.AllowedChatID, adapter)
	handler := server.NewHandler(a.service, a.photoOpener(), a.cfg.Server.DrawSecret, adapter)
	srv := server.New(a.cfg.Server, handler, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return bot.Run(gctx) })
	return g.Wait()
}

// photoOpener returns the store for backends whose public URLs are
// <public_base_url>/photos/<id>, served by this process.
func (a *PhotoApp) photoOpener() server.PhotoOpener {
	switch a.cfg.Store.Type {
	case "filesystem", "memory":
		return a.store
	default:
		return nil
	}
}

// Close releases the database and the log file.
func (a *PhotoApp) Close() error {
	var firstErr error

	if a.tracker != nil {
		if err := a.tracker.Close(); err != nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
	}

	if a.logger != nil {
		a.logger.Debug("operation finished", "elapsed", a.op.Elapsed(a.clock))
	}
	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
