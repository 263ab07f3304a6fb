package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/facecache/internal/config"
	"github.com/andresmejia3/facecache/internal/store"
	"github.com/andresmejia3/facecache/internal/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Options holds the per-run flags shared by scan and review.
type Options struct {
	InputPath  string
	NthFrame   int
	NumEngines int
	Detector   string
	Strategy   string
	Record     bool
	Listen     string
	StartFrame int
}

var (
	// DB is the database connection, nil unless a command asked for it.
	DB *store.Store
	// Cfg is the configuration loaded before every command.
	Cfg *config.Config
	// Logger is the structured logger built from Cfg.
	Logger *slog.Logger

	dbURL      string
	configPath string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:           "facecache",
	Short:         "Re-identify faces across video frames with a signature cache",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		Cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if dbURL != "" {
			Cfg.Database.URL = dbURL
		}
		Logger = config.NewLogger(Cfg.Environment, Cfg.LogLevel)
		slog.SetDefault(Logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Background: the command context may already be cancelled by Ctrl+C.
			DB.Close(context.Background())
			DB = nil
		}
	},
}

// connectDB opens the store once per process. When required is false and no
// URL is configured it returns nil without error.
func connectDB(ctx context.Context, required bool) (*store.Store, error) {
	if DB != nil {
		return DB, nil
	}
	url := Cfg.DatabaseURL()
	if url == "" {
		if required {
			return nil, fmt.Errorf("no database configured (use --db, FACECACHE_DATABASE_URL or POSTGRES_HOST)")
		}
		return nil, nil
	}
	s, err := store.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	DB = s
	return s, nil
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx); err != nil {
		utils.Die("Command failed", err, nil)
	}
}

func execute(ctx context.Context) error {
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initEnv)
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for recording sessions (optional)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
}

func initEnv() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
