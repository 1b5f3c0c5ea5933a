package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// Settings identifies the MySQL server and schema to connect to.
type Settings struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

// DSN builds a go-sql-driver DSN. parseTime maps DATETIME to time.Time and
// the session runs in UTC so NOW() agrees with time.Now().UTC().
// multiStatements is only needed by the migration runner.
func (s Settings) DSN(multiStatements bool) string {
	c := mysql.NewConfig()
	c.User = s.User
	c.Passwd = s.Pass
	c.Net = "tcp"
	c.Addr = s.Host + ":" + s.Port
	c.DBName = s.Name
	c.ParseTime = true
	c.Loc = time.UTC
	c.MultiStatements = multiStatements
	if !multiStatements {
		c.Params = map[string]string{"time_zone": "'+00:00'", "charset": "utf8mb4"}
	}
	return c.FormatDSN()
}

// Open connects to MySQL and verifies the connection.
func Open(ctx context.Context, s Settings) (*sql.DB, error) {
	db, err := sql.Open("mysql", s.DSN(false))
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenWithRetry calls Open up to attempts times, sleeping delay between
// failures. The database container usually starts after the service, so a
// few failed dials at boot are expected.
func OpenWithRetry(ctx context.Context, s Settings, attempts int, delay time.Duration, log *zap.Logger) (*sql.DB, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := attempts; i > 0; i-- {
		db, err := Open(ctx, s)
		if err == nil {
			log.Info("connected to database", zap.String("host", s.Host), zap.String("db", s.Name))
			return db, nil
		}
		lastErr = err
		log.Warn("database connection failed", zap.Error(err), zap.Int("retries_left", i-1))
		if i == 1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("connect to database after %d attempts: %w", attempts, lastErr)
}
