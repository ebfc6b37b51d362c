package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for photopool.
type Config struct {
	BaseDir  string         `toml:"base_dir"`
	LogDir   string         `toml:"log_dir"`
	LogLevel string         `toml:"log_level"` // "debug", "info" (default), "warn", "error"
	Telegram TelegramConfig `toml:"telegram"`
	Server   ServerConfig   `toml:"server"`
	Store    StoreConfig    `toml:"store"`
	Database DatabaseConfig `toml:"database"`
	Caption  CaptionConfig  `toml:"caption"`
}

// TelegramConfig holds the bot credentials and the single allow-listed chat.
type TelegramConfig struct {
	Token         string `toml:"token"`
	AllowedChatID int64  `toml:"allowed_chat_id"`
}

// ServerConfig holds settings for the HTTP draw endpoint.
type ServerConfig struct {
	Addr            string   `toml:"addr"`
	DrawSecret      string   `toml:"draw_secret,omitempty"` // empty disables the secret check
	ReadTimeout     Duration `toml:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// StoreConfig represents configuration for the object store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type string `toml:"type"` // "memory", "filesystem", or "s3"
	Name string `toml:"name"`

	// URLPolicy is "public" (default) or "presigned" (s3 only).
	URLPolicy     string   `toml:"url_policy,omitempty"`
	PublicBaseURL string   `toml:"public_base_url,omitempty"`
	PresignExpiry Duration `toml:"presign_expiry,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`
	S3PathStyle bool   `toml:"s3_path_style,omitempty"`
}

// DatabaseConfig represents configuration for the usage tracker database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type           string `toml:"type"`                   // "sqlite", "postgres" or "memory"
	DataDir        string `toml:"data_dir,omitempty"`     // only used for type=sqlite
	PostgresDSN    string `toml:"postgres_dsn,omitempty"` // only used for type=postgres
	SkipMigrations bool   `toml:"skip_migrations,omitempty"`
}

// CaptionConfig represents configuration for the captioning model.
type CaptionConfig struct {
	Type        string   `toml:"type"` // "gemini" or "ollama"
	Model       string   `toml:"model"`
	APIKey      string   `toml:"api_key,omitempty"`  // gemini only
	BaseURL     string   `toml:"base_url,omitempty"` // override the API endpoint
	Prompt      string   `toml:"prompt,omitempty"`
	MaxAttempts int      `toml:"max_attempts"`
	Timeout     Duration `toml:"timeout"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// NewConfig creates a new Config with the provided base directory and defaults
// for everything that has one.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		LogLevel: "info",
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     Duration{30 * time.Second},
			WriteTimeout:    Duration{60 * time.Second},
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Store: StoreConfig{
			Type:      "filesystem",
			Name:      "photos",
			URLPolicy: "public",
			FSRoot:    filepath.Join(baseDir, "photos"),
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Caption: CaptionConfig{
			Type:        "gemini",
			Model:       "gemini-2.5-flash",
			MaxAttempts: 3,
			Timeout:     Duration{30 * time.Second},
		},
	}
}

// Environment variables that override secrets from the config file.
const (
	EnvTelegramToken = "PHOTOPOOL_TELEGRAM_TOKEN"
	EnvAllowedChatID = "PHOTOPOOL_ALLOWED_CHAT_ID"
	EnvCaptionAPIKey = "PHOTOPOOL_CAPTION_API_KEY"
	EnvS3AccessKey   = "PHOTOPOOL_S3_ACCESS_KEY"
	EnvS3SecretKey   = "PHOTOPOOL_S3_SECRET_KEY"
	EnvDrawSecret    = "PHOTOPOOL_DRAW_SECRET"
	EnvPostgresDSN   = "PHOTOPOOL_POSTGRES_DSN"
)

// ApplyEnv overrides secrets with values from the environment, so they need not
// be written to the config file. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := []struct {
		key string
		dst *string
	}{
		{EnvTelegramToken, &c.Telegram.Token},
		{EnvCaptionAPIKey, &c.Caption.APIKey},
		{EnvS3AccessKey, &c.Store.S3AccessKey},
		{EnvS3SecretKey, &c.Store.S3SecretKey},
		{EnvDrawSecret, &c.Server.DrawSecret},
		{EnvPostgresDSN, &c.Database.PostgresDSN},
	}
	for _, s := range strs {
		if v, ok := lookup(s.key); ok && v != "" {
			*s.dst = v
		}
	}

	if v, ok := lookup(EnvAllowedChatID); ok && v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvAllowedChatID, err)
		}
		c.Telegram.AllowedChatID = id
	}
	return nil
}

// Validate checks the settings every command needs: store, database and
// captioning. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	missing := func(key string) {
		errs = append(errs, fmt.Errorf("missing required setting %s", key))
	}

	switch c.Store.Type {
	case "memory":
	case "filesystem":
		if c.Store.FSRoot == "" {
			missing("store.fs_root")
		}
	case "s3":
		if c.Store.S3Bucket == "" {
			missing("store.s3_bucket")
		}
		if (c.Store.S3AccessKey == "") != (c.Store.S3SecretKey == "") {
			errs = append(errs, fmt.Errorf("store.s3_access_key and store.s3_secret_key must be set together"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.type %q", c.Store.Type))
	}

	switch c.Store.URLPolicy {
	case "", "public":
		if c.Store.Type == "s3" && c.Store.PublicBaseURL == "" && c.Store.S3Endpoint == "" {
			missing("store.public_base_url (or store.s3_endpoint)")
		}
	case "presigned":
		if c.Store.Type != "s3" {
			errs = append(errs, fmt.Errorf("store.url_policy presigned requires store.type s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.url_policy %q", c.Store.URLPolicy))
	}

	switch c.Database.Type {
	case "memory":
	case "sqlite":
		if c.Database.DataDir == "" {
			missing("database.data_dir")
		}
	case "postgres":
		if c.Database.PostgresDSN == "" {
			missing("database.postgres_dsn")
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database.type %q", c.Database.Type))
	}

	switch c.Caption.Type {
	case "gemini":
		if c.Caption.APIKey == "" {
			missing("caption.api_key")
		}
	case "ollama":
		if c.Caption.BaseURL == "" {
			missing("caption.base_url")
		}
	default:
		errs = append(errs, fmt.Errorf("unknown caption.type %q", c.Caption.Type))
	}
	if c.Caption.Model == "" {
		missing("caption.model")
	}
	if c.Caption.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("caption.max_attempts must be at least 1"))
	}

	return errors.Join(errs...)
}

// ValidateServe checks everything Validate does plus the bot and HTTP settings
// the long-running server needs.
func (c *Config) ValidateServe() error {
	errs := []error{c.Validate()}
	if c.Telegram.Token == "" {
		errs = append(errs, fmt.Errorf("missing required setting telegram.token"))
	}
	if c.Telegram.AllowedChatID == 0 {
		errs = append(errs, fmt.Errorf("missing required setting telegram.allowed_chat_id"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, fmt.Errorf("missing required setting server.addr"))
	}
	// memory:// URLs cannot be fetched by the caption model or by clients.
	if c.Store.Type == "memory" && c.Store.PublicBaseURL == "" {
		errs = append(errs, fmt.Errorf("store.public_base_url is required to serve a memory store"))
	}
	return errors.Join(errs...)
}

// Redacted returns a copy of the config with secrets masked, for display.
func (c *Config) Redacted() *Config {
	cp := *c
	mask := func(s *string) {
		if *s != "" {
			*s = "********"
		}
	}
	mask(&cp.Telegram.Token)
	mask(&cp.Server.DrawSecret)
	mask(&cp.Store.S3AccessKey)
	mask(&cp.Store.S3SecretKey)
	mask(&cp.Caption.APIKey)
	mask(&cp.Database.PostgresDSN)
	return &cp
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file may hold secrets.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
