package upstream

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	EnsureSchema(ctx context.Context) error
	Get(ctx context.Context, name string) (*Health, error)
	RecordSuccess(ctx context.Context, name string, result ProbeResult) error
	RecordFailure(ctx context.Context, name string, result ProbeResult) error
}

const schema = `
CREATE TABLE IF NOT EXISTS upstream_health (
	name TEXT PRIMARY KEY,
	last_tested_at TIMESTAMP NULL,
	last_success_at TIMESTAMP NULL,
	last_error TEXT NULL,
	last_status_code INTEGER NULL,
	last_latency_ms BIGINT NOT NULL DEFAULT 0,
	last_probe_id TEXT NULL,
	consecutive_failures INTEGER NOT NULL DEFAULT 0
)`

type SQLRepository struct {
	db *sqlx.DB
}

func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create upstream_health table: %w", err)
	}
	return nil
}

func (r *SQLRepository) Get(ctx context.Context, name string) (*Health, error) {
	var row healthRow
	query := r.db.Rebind(`
		SELECT
			name,
			last_tested_at,
			last_success_at,
			last_error,
			last_status_code,
			last_latency_ms,
			last_probe_id,
			consecutive_failures
		FROM upstream_health
		WHERE name = ?
		LIMIT 1
	`)

	if err := r.db.GetContext(ctx, &row, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	health := row.toHealth()
	return &health, nil
}

func (r *SQLRepository) RecordSuccess(ctx context.Context, name string, result ProbeResult) error {
	testedAt := result.TestedAt.UTC()
	query := r.db.Rebind(`
		INSERT INTO upstream_health (
			name, last_tested_at, last_success_at, last_error,
			last_status_code, last_latency_ms, last_probe_id, consecutive_failures
		)
		VALUES (?, ?, ?, NULL, ?, ?, ?, 0)
		ON CONFLICT(name) DO UPDATE SET
			last_tested_at = excluded.last_tested_at,
			last_success_at = excluded.last_success_at,
			last_error = NULL,
			last_status_code = excluded.last_status_code,
			last_latency_ms = excluded.last_latency_ms,
			last_probe_id = excluded.last_probe_id,
			consecutive_failures = 0
	`)

	_, err := r.db.ExecContext(ctx, query,
		name,
		testedAt,
		testedAt,
		nullableStatusCode(result.StatusCode),
		result.LatencyMs,
		nullableString(result.ID),
	)
	if err != nil {
		return fmt.Errorf("record upstream success (%s): %w", name, err)
	}
	return nil
}

func (r *SQLRepository) RecordFailure(ctx context.Context, name string, result ProbeResult) error {
	message := strings.TrimSpace(result.Error)
	if message == "" {
		message = "probe failed"
	}

	query := r.db.Rebind(`
		INSERT INTO upstream_health (
			name, last_tested_at, last_success_at, last_error,
			last_status_code, last_latency_ms, last_probe_id, consecutive_failures
		)
		VALUES (?, ?, NULL, ?, ?, ?, ?, 1)
		ON CONFLICT(name) DO UPDATE SET
			last_tested_at = excluded.last_tested_at,
			last_error = excluded.last_error,
			last_status_code = excluded.last_status_code,
			last_latency_ms = excluded.last_latency_ms,
			last_probe_id = excluded.last_probe_id,
			consecutive_failures = upstream_health.consecutive_failures + 1
	`)

	_, err := r.db.ExecContext(ctx, query,
		name,
		result.TestedAt.UTC(),
		message,
		nullableStatusCode(result.StatusCode),
		result.LatencyMs,
		nullableString(result.ID),
	)
	if err != nil {
		return fmt.Errorf("record upstream failure (%s): %w", name, err)
	}
	return nil
}

type healthRow struct {
	Name                string         `db:"name"`
	LastTestedAt        sql.NullTime   `db:"last_tested_at"`
	LastSuccessAt       sql.NullTime   `db:"last_success_at"`
	LastError           sql.NullString `db:"last_error"`
	LastStatusCode      sql.NullInt64  `db:"last_status_code"`
	LastLatencyMs       int64          `db:"last_latency_ms"`
	LastProbeID         sql.NullString `db:"last_probe_id"`
	ConsecutiveFailures int            `db:"consecutive_failures"`
}

func (row healthRow) toHealth() Health {
	health := Health{
		Name:                row.Name,
		LastTestedAt:        nullTimeToPtr(row.LastTestedAt),
		LastSuccessAt:       nullTimeToPtr(row.LastSuccessAt),
		LastError:           nullStringToPtr(row.LastError),
		LastLatencyMs:       row.LastLatencyMs,
		LastProbeID:         nullStringToPtr(row.LastProbeID),
		ConsecutiveFailures: row.ConsecutiveFailures,
	}
	if row.LastStatusCode.Valid {
		code := int(row.LastStatusCode.Int64)
		health.LastStatusCode = &code
	}
	return health
}

func nullTimeToPtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	return &t
}

func nullStringToPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullableStatusCode(code int) any {
	if code <= 0 {
		return nil
	}
	return code
}
