// Package sqlstore persists alerts in a single SQL table, on SQLite or Postgres.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/couchcryptid/karukera-alerts/internal/domain"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS alerts (
		id          TEXT PRIMARY KEY,
		type        TEXT NOT NULL,
		severity    TEXT NOT NULL,
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		source_name TEXT NOT NULL,
		source_url  TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL,
		expires_at  TEXT,
		is_active   INTEGER NOT NULL DEFAULT 1,
		latitude    DOUBLE PRECISION NOT NULL,
		longitude   DOUBLE PRECISION NOT NULL,
		region      TEXT NOT NULL DEFAULT '',
		metadata    TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_type ON alerts(type)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_active ON alerts(is_active)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at)`,
}

const columns = `id, type, severity, title, description, source_name, source_url,
	created_at, updated_at, expires_at, is_active, latitude, longitude, region, metadata`

// Full-row replace on conflict; no column is merged with the stored value.
const upsertQuery = `INSERT INTO alerts (` + columns + `)
VALUES (:id, :type, :severity, :title, :description, :source_name, :source_url,
	:created_at, :updated_at, :expires_at, :is_active, :latitude, :longitude, :region, :metadata)
ON CONFLICT (id) DO UPDATE SET
	type = excluded.type,
	severity = excluded.severity,
	title = excluded.title,
	description = excluded.description,
	source_name = excluded.source_name,
	source_url = excluded.source_url,
	created_at = excluded.created_at,
	updated_at = excluded.updated_at,
	expires_at = excluded.expires_at,
	is_active = excluded.is_active,
	latitude = excluded.latitude,
	longitude = excluded.longitude,
	region = excluded.region,
	metadata = excluded.metadata`

// ActiveQuery selects active alerts. An empty Type matches every type.
type ActiveQuery struct {
	Type   domain.AlertType
	Limit  int
	Offset int
}

// Stats summarizes the stored alerts.
type Stats struct {
	Total      int            `json:"total"`
	ByType     map[string]int `json:"by_type"`
	BySeverity map[string]int `json:"by_severity"`
}

// Store is the alerts table.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// New wraps an open database. Call Migrate before use on a fresh database.
func New(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Migrate creates the alerts table and its indexes if absent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Save upserts the alert inside a transaction. On any error the transaction is
// rolled back and nothing is written.
func (s *Store) Save(ctx context.Context, alert domain.Alert) (err error) {
	row, err := RowFromAlert(alert)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save alert %s: begin: %w", alert.ID, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Error("rollback failed", "alert_id", alert.ID, "error", rbErr)
			}
		}
	}()

	if _, err = tx.NamedExecContext(ctx, upsertQuery, row); err != nil {
		return fmt.Errorf("save alert %s: %w", alert.ID, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("save alert %s: commit: %w", alert.ID, err)
	}
	return nil
}

// GetByID returns the stored row for id. found is false when no such row exists.
func (s *Store) GetByID(ctx context.Context, id string) (row Row, found bool, err error) {
	q := s.db.Rebind(`SELECT ` + columns + ` FROM alerts WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Row{}, false, nil
		}
		return Row{}, false, fmt.Errorf("get alert %s: %w", id, err)
	}
	return row, true, nil
}

// GetActive returns active rows, newest created first, paginated by Limit and
// Offset. The store applies no cap of its own.
func (s *Store) GetActive(ctx context.Context, q ActiveQuery) ([]Row, error) {
	if q.Limit < 0 || q.Offset < 0 {
		return nil, fmt.Errorf("get active alerts: limit and offset must be non-negative, got %d and %d", q.Limit, q.Offset)
	}

	query := `SELECT ` + columns + ` FROM alerts WHERE is_active = 1`
	args := []any{}
	if q.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(q.Type))
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, q.Limit, q.Offset)

	rows := []Row{}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("get active alerts: %w", err)
	}
	return rows, nil
}

// Count returns the number of rows of the given type, active or not. An empty
// type counts every row.
func (s *Store) Count(ctx context.Context, alertType domain.AlertType) (int, error) {
	query := `SELECT COUNT(*) FROM alerts`
	args := []any{}
	if alertType != "" {
		query += ` WHERE type = ?`
		args = append(args, string(alertType))
	}

	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	return n, nil
}

// Stats returns the row total and counts per type and per severity, read in
// one transaction so the three figures agree.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return Stats{}, fmt.Errorf("stats: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // read-only

	stats := Stats{ByType: map[string]int{}, BySeverity: map[string]int{}}
	if err := tx.GetContext(ctx, &stats.Total, `SELECT COUNT(*) FROM alerts`); err != nil {
		return Stats{}, fmt.Errorf("stats: total: %w", err)
	}
	if err := groupCounts(ctx, tx, "type", stats.ByType); err != nil {
		return Stats{}, err
	}
	if err := groupCounts(ctx, tx, "severity", stats.BySeverity); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

type groupCount struct {
	Value string `db:"value"`
	N     int    `db:"n"`
}

// groupCounts fills dst with row counts per distinct value of column. column
// is always a constant from this package.
func groupCounts(ctx context.Context, tx *sqlx.Tx, column string, dst map[string]int) error {
	var groups []groupCount
	q := `SELECT ` + column + ` AS value, COUNT(*) AS n FROM alerts GROUP BY ` + column
	if err := tx.SelectContext(ctx, &groups, q); err != nil {
		return fmt.Errorf("stats: by %s: %w", column, err)
	}
	for _, g := range groups {
		dst[g.Value] = g.N
	}
	return nil
}

// Ready pings the database.
func (s *Store) Ready(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
