package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	// mysql driver registers the "mysql" scheme for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies all pending up migrations embedded in the binary.
func Migrate(s Settings, log *zap.Logger) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("migration: open source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, "mysql://"+s.DSN(true))
	if err != nil {
		return fmt.Errorf("migration: failed to initialize: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			log.Error("migration source close failed", zap.Error(srcErr))
		}
		if dbErr != nil {
			log.Error("migration db close failed", zap.Error(dbErr))
		}
	}()
	m.Log = migrateLogger{log: log.Sugar()}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("migration: read version: %w", err)
	}
	if dirty {
		return fmt.Errorf("migration: database is dirty at version %d", version)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("schema up to date", zap.Uint("version", version))
			return nil
		}
		return fmt.Errorf("migration: up failed: %w", err)
	}
	newVersion, _, _ := m.Version()
	log.Info("schema migrated", zap.Uint("from", version), zap.Uint("to", newVersion))
	return nil
}

type migrateLogger struct {
	log *zap.SugaredLogger
}

func (l migrateLogger) Printf(format string, v ...any) { l.log.Debugf(format, v...) }

func (l migrateLogger) Verbose() bool { return false }
