package db

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	driverPostgres = "pgx"
	driverSQLite   = "sqlite"

	defaultSQLiteURL = "sqlite://./data/ae3gis.db"
	pingTimeout      = 5 * time.Second

	foreignKeysPragma = "_pragma=foreign_keys(ON)"
)

// Target is a DATABASE_URL resolved to a database/sql driver.
type Target struct {
	Driver string
	DSN    string
	// Path is the sqlite file; empty for postgres.
	Path string
}

// ParseURL resolves DATABASE_URL. Only postgres:// (or postgresql://) and
// sqlite:// are accepted; an empty value means the local sqlite file.
func ParseURL(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = defaultSQLiteURL
	}

	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return Target{}, fmt.Errorf("database url %q has no scheme", redact(raw))
	}

	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		return Target{Driver: driverPostgres, DSN: raw}, nil
	case "sqlite":
		path, query, _ := strings.Cut(rest, "?")
		path = strings.TrimSpace(path)
		if path == "" {
			return Target{}, fmt.Errorf("sqlite database path is required")
		}
		if !strings.Contains(query, "foreign_keys") {
			query = strings.TrimPrefix(query+"&"+foreignKeysPragma, "&")
		}
		return Target{Driver: driverSQLite, DSN: "file:" + path + "?" + query, Path: path}, nil
	default:
		return Target{}, fmt.Errorf("unsupported database scheme %q", scheme)
	}
}

// Connect opens the health store named by dsn, retrying the first ping until
// it succeeds or maxWait elapses. maxWait <= 0 retries until ctx is done.
func Connect(ctx context.Context, dsn string, maxWait time.Duration, logger *slog.Logger) (*sqlx.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	target, err := ParseURL(dsn)
	if err != nil {
		return nil, err
	}
	if err := prepareSQLitePath(target.Path); err != nil {
		return nil, fmt.Errorf("prepare sqlite database path: %w", err)
	}

	conn, err := sqlx.Open(target.Driver, target.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", target.Driver, err)
	}
	tunePool(conn, target.Driver)

	attempt := 0
	ping := func() error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := conn.PingContext(pingCtx); err != nil {
			logger.Warn("health store not ready", "driver", target.Driver, "attempt", attempt, "err", err)
			return err
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 15 * time.Second
	policy.MaxElapsedTime = max(maxWait, 0)

	if err := backoff.Retry(ping, backoff.WithContext(policy, ctx)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("connect to %s after %d attempts: %w", target.Driver, attempt, err)
	}

	logger.Info("health store connected", "driver", target.Driver, "attempts", attempt)
	return conn, nil
}

// tunePool sizes the pool for a single small table; sqlite serialises writes
// on one connection.
func tunePool(conn *sqlx.DB, driver string) {
	if driver == driverSQLite {
		conn.SetMaxOpenConns(1)
		return
	}
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(30 * time.Minute)
}

func prepareSQLitePath(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func redact(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.User != nil {
		return u.Redacted()
	}
	return raw
}
