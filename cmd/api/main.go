// Command api serves the priority list HTTP API.
package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"prioritylist/api/internal/config"
	"prioritylist/api/internal/logger"
	"prioritylist/api/internal/store"
)

var (
	// configFile is set by the --config flag.
	configFile string

	cfg config.Config
	log *logger.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "api",
	Short: "Priority list API server",
	Long: `api serves the hierarchical priority list API over HTTP.

Running it without a subcommand is the same as "api serve".`,
	SilenceUsage:      true,
	PersistentPreRunE: initRuntime,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			log.Sync()
		}
	},
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml, json or toml); environment variables override it")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(reindexCmd)
}

func initRuntime(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = loaded

	log, err = logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	return nil
}

// openStore connects to the configured database and applies migrations.
func openStore(ctx context.Context) (*store.Store, error) {
	dialect, err := store.DialectFor(cfg.DatabaseDriver)
	if err != nil {
		return nil, err
	}
	db, err := store.Open(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	migrations, err := migrationFiles(dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := store.ApplyMigrations(ctx, db, dialect, migrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}
	return store.New(db, dialect), nil
}

// migrationFiles prefers MIGRATIONS_DIR/<dialect> when set, else the bundled files.
func migrationFiles(dialect store.Dialect) (fs.FS, error) {
	if dir := strings.TrimSpace(cfg.MigrationsDir); dir != "" {
		return os.DirFS(dir + "/" + string(dialect)), nil
	}
	return store.Migrations(dialect)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.DB().Close()
		log.Info("migrations applied", "driver", cfg.DatabaseDriver)
		return nil
	},
}
