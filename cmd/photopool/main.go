package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"photopool/internal/app"
	"photopool/internal/config"
	"photopool/internal/pool"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies environment overrides.
func loadConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, "", fmt.Errorf("reading environment: %w", err)
	}
	return cfg, defaults["config_path"], nil
}

// newApp reads the config and creates a PhotoApp. The caller must defer app.Close().
// command identifies the CLI command being run (e.g. "serve", "draw").
func newApp(ctx context.Context, command string) (*app.PhotoApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewPhotoApp(ctx, cfg, command)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "photopool",
	Short:        "Photo pool: Telegram ingestion and no-repeat random distribution",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		if err := godotenv.Load(envFile); err != nil {
			// The default .env is optional; an explicit one is not.
			if cmd.Flags().Changed("env-file") || !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("loading %s: %w", envFile, err)
			}
		}
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot and the /random HTTP endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, "serve")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Serve(ctx)
	},
}

// ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest PATH...",
	Short: "Normalize, store and caption local photos",
	Long: `Ingest photos from files or directories. Directories are scanned for
.jpg, .jpeg, .png, .gif and .webp files, skipping hidden entries and anything
listed in a .photopoolignore file at the directory root.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "ingest")
		if err != nil {
			return err
		}
		defer a.Close()

		recursive, _ := cmd.Flags().GetBool("recursive")
		ignore, _ := cmd.Flags().GetStringSlice("ignore")
		paths, err := a.FindPhotos(args, recursive, ignore)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			fmt.Println("No photos found")
			return nil
		}

		var failed int
		for _, path := range paths {
			res, err := a.IngestFile(ctx, path)
			if err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				continue
			}
			caption := res.Caption
			if !res.Captioned {
				caption = "(caption failed)"
			}
			fmt.Printf("%s -> %s  %s\n", path, res.ID, caption)
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d file(s) failed", failed, len(paths))
		}
		fmt.Printf("Ingested %d file(s)\n", len(paths))
		return nil
	},
}

// draw command
var drawCmd = &cobra.Command{
	Use:   "draw",
	Short: "Draw one unused photo and mark it used",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "draw")
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.Draw(ctx)
		if errors.Is(err, pool.ErrPoolExhausted) {
			fmt.Println("No unused photos available.")
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Printf("ID:      %s\n", d.ID)
		fmt.Printf("URL:     %s\n", d.URL)
		fmt.Printf("Caption: %s\n", d.Caption)
		return nil
	},
}

// reset command
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Make every stored photo available again",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "reset")
		if err != nil {
			return err
		}
		defer a.Close()

		cleared, err := a.Reset(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Cleared %d used photo(s)\n", cleared)
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pool counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "status")
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.Status(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Total:     %d\n", st.Total)
		fmt.Printf("Unused:    %d\n", st.Unused)
		fmt.Printf("Used:      %d\n", st.Used)
		fmt.Printf("Stale:     %d\n", st.Stale)
		fmt.Printf("Captioned: %d\n", st.Captioned)
		if st.LastReset != nil {
			fmt.Printf("Last reset: %s (%d cleared)\n", st.LastReset.ResetAt.Format("2006-01-02 15:04:05"), st.LastReset.Cleared)
		} else {
			fmt.Println("Last reset: never")
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View photos served in the current cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		ctx := cmd.Context()

		a, err := newApp(ctx, "history")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.History(ctx, limit)
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No photos served since the last reset.")
			return nil
		}

		for _, e := range entries {
			fmt.Printf("%s  %s\n", e.UsedAt.Local().Format(time.DateTime), e.ID)
		}
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		fmt.Printf("Set %s and %s (or edit the file) before running serve.\n",
			config.EnvTelegramToken, config.EnvAllowedChatID)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration with secrets redacted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("# Configuration from %s\n\n", path)
		var m config.Manager
		if err := m.Write(os.Stdout, cfg.Redacted()); err != nil {
			return err
		}

		if err := cfg.ValidateServe(); err != nil {
			fmt.Printf("\n# Problems:\n# %s\n", strings.ReplaceAll(err.Error(), "\n", "\n# "))
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "Environment file to load before reading config")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(drawCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	ingestCmd.Flags().BoolP("recursive", "r", false, "Descend into subdirectories")
	ingestCmd.Flags().StringSlice("ignore", nil, "Extra glob patterns to skip when scanning directories")
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of entries to show")
}
