package main // Entry point package

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/farmer-objection-service/internal/config"
	"github.com/iliyamo/farmer-objection-service/internal/database"
	"github.com/iliyamo/farmer-objection-service/internal/logger"
)

func main() {
	root := &cobra.Command{
		Use:           "objection-server",
		Short:         "Farmer objection backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), migrateCmd(), notifyWorkerCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads the configuration and builds the logger every
// subcommand starts from.
func bootstrap() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logger.New(cfg.LogLevel, cfg.IsProduction())
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

func dbSettings(cfg config.Config) database.Settings {
	return database.Settings{
		User: cfg.DBUser,
		Pass: cfg.DBPass,
		Host: cfg.DBHost,
		Port: cfg.DBPort,
		Name: cfg.DBName,
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			s := dbSettings(cfg)
			// the schema may not exist yet while MySQL is still starting
			db, err := database.OpenWithRetry(cmd.Context(), s, cfg.DBConnectRetries, cfg.DBConnectDelay, log)
			if err != nil {
				return err
			}
			_ = db.Close()
			return database.Migrate(s, log)
		},
	}
}
