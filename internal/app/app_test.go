package app_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"photopool/internal/app"
	"photopool/internal/chat"
	"photopool/internal/config"
	"photopool/internal/pool"
	"photopool/internal/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig(t.TempDir())
	cfg.Caption.APIKey = "test-key"
	cfg.LogLevel = "debug"
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, command string, opts ...app.Option) *app.PhotoApp {
	t.Helper()
	opts = append([]app.Option{
		app.WithCaptioner(testutil.NewFakeCaptioner("A stone wall")),
		app.WithClock(testutil.FixedClock()),
		app.WithIDGenerator(testutil.NewStubIDGenerator()),
	}, opts...)
	a, err := app.NewPhotoApp(context.Background(), cfg, command, opts...)
	if err != nil {
		t.Fatalf("NewPhotoApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func writeImage(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPhotoApp_Lifecycle(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	a := newTestApp(t, cfg, "ingest")

	src := t.TempDir()
	for _, name := range []string{"a.jpg", "b.png"} {
		var data []byte
		if strings.HasSuffix(name, ".png") {
			data = testutil.PNG(t, 400, 400)
		} else {
			data = testutil.JPEG(t, 600, 300)
		}
		res, err := a.IngestFile(ctx, writeImage(t, src, name, data))
		if err != nil {
			t.Fatalf("IngestFile(%s) error = %v", name, err)
		}
		if !res.Captioned || res.Caption != "A stone wall" {
			t.Errorf("IngestFile(%s) = %+v, want captioned", name, res)
		}
		if !strings.HasPrefix(res.URL, "file://") {
			t.Errorf("URL = %q, want a file:// URL without public_base_url", res.URL)
		}
	}

	stored, err := os.ReadDir(cfg.Store.FSRoot)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 2 {
		t.Errorf("store directory holds %d files, want 2", len(stored))
	}

	d, err := a.Draw(ctx)
	if err != nil {
		t.Fatalf("Draw() error = %v", err)
	}
	if d.Caption != "A stone wall" {
		t.Errorf("Draw() caption = %q", d.Caption)
	}

	st, err := a.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Total != 2 || st.Used != 1 || st.Unused != 1 || st.Captioned != 2 {
		t.Errorf("Status() = %+v", st)
	}

	hist, err := a.History(ctx, 10)
	if err != nil || len(hist) != 1 || hist[0].ID != d.ID {
		t.Errorf("History() = %v, %v; want [%s]", hist, err, d.ID)
	}

	if _, err := a.Draw(ctx); err != nil {
		t.Fatalf("second Draw() error = %v", err)
	}
	if _, err := a.Draw(ctx); !errors.Is(err, pool.ErrPoolExhausted) {
		t.Errorf("third Draw() error = %v, want ErrPoolExhausted", err)
	}

	cleared, err := a.Reset(ctx)
	if err != nil || cleared != 2 {
		t.Errorf("Reset() = %d, %v; want 2", cleared, err)
	}
}

func TestPhotoApp_StatePersistsAcrossRuns(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	first, err := app.NewPhotoApp(ctx, cfg, "ingest",
		app.WithCaptioner(testutil.NewFakeCaptioner("x")),
		app.WithIDGenerator(testutil.NewStubIDGenerator()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := first.IngestFile(ctx, writeImage(t, t.TempDir(), "a.jpg", testutil.JPEG(t, 300, 200))); err != nil {
		t.Fatal(err)
	}
	if _, err := first.Draw(ctx); err != nil {
		t.Fatal(err)
	}
	first.Close()

	second := newTestApp(t, cfg, "draw")
	if _, err := second.Draw(ctx); !errors.Is(err, pool.ErrPoolExhausted) {
		t.Errorf("Draw() after restart error = %v, want ErrPoolExhausted", err)
	}
}

func TestPhotoApp_WritesLog(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg, "status")
	a.Close()

	data, err := os.ReadFile(filepath.Join(cfg.LogDir, app.LogFileName))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(data), "\tstatus-20240115T103000Z\tapp initialized") {
		t.Errorf("log does not carry the operation id: %q", data)
	}
}

func TestNewPhotoApp_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Type = "ftp"
	cfg.Caption.APIKey = ""

	_, err := app.NewPhotoApp(context.Background(), cfg, "draw")
	if err == nil {
		t.Fatal("NewPhotoApp() error = nil for invalid config")
	}
	for _, want := range []string{"store.type", "caption.api_key"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestPhotoApp_ServeRequiresBotSettings(t *testing.T) {
	a := newTestApp(t, testConfig(t), "serve")
	err := a.Serve(context.Background())
	if err == nil || !strings.Contains(err.Error(), "telegram.token") {
		t.Errorf("Serve() error = %v, want missing telegram.token", err)
	}
}

// idleMessenger delivers no updates and closes its stream on cancel.
type idleMessenger struct{}

func (idleMessenger) Updates(ctx context.Context) (<-chan chat.Update, error) {
	ch := make(chan chat.Update)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (idleMessenger) Download(ctx context.Context, fileID string) ([]byte, error) {
	return nil, errors.New("no files")
}

func (idleMessenger) Send(ctx context.Context, chatID int64, text string) error { return nil }

func TestPhotoApp_ServeStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Telegram.Token = "123:abc"
	cfg.Telegram.AllowedChatID = 42
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.ShutdownTimeout = config.Duration{Duration: time.Second}
	a := newTestApp(t, cfg, "serve", app.WithMessenger(idleMessenger{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}
