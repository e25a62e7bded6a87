package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/deepseek-json/internal/model"
)

const exchangeColumns = `id, session_id, label, model, prompt,
	attempts, outcome, latency_ns, created_at`

// MemoryDSN opens a private in-memory database discarded on Close.
const MemoryDSN = ":memory:"

// SQLiteStore implements the Journal interface using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Journal = (*SQLiteStore)(nil)

// NewSQLiteStore opens the SQLite database named by dsn, normally
// MemoryDSN, and runs any pending schema migrations. An in-memory database
// lives only as long as its single connection, so the pool is pinned to one.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// RecordExchange inserts one journal entry. A missing ID or timestamp is
// filled in.
func (s *SQLiteStore) RecordExchange(ctx context.Context, ex *model.Exchange) error {
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now()
	}

	const query = `
		INSERT INTO exchanges (
			id, session_id, label, model, prompt,
			attempts, outcome, latency_ns, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		ex.ID, ex.SessionID, ex.Label, ex.Model, ex.Prompt,
		ex.Attempts, ex.Outcome, int64(ex.Latency), ex.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording exchange %s: %w", ex.ID, err)
	}
	return nil
}

// GetExchanges retrieves journal entries matching filter, oldest first.
func (s *SQLiteStore) GetExchanges(
	ctx context.Context,
	filter ExchangeFilter,
) ([]model.Exchange, error) {
	var conditions []string
	var args []interface{}

	if filter.SessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Outcome != nil {
		conditions = append(conditions, "outcome = ?")
		args = append(args, *filter.Outcome)
	}
	if filter.Label != nil {
		conditions = append(conditions, "label = ?")
		args = append(args, *filter.Label)
	}

	query := "SELECT " + exchangeColumns + " FROM exchanges"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at ASC, rowid ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying exchanges: %w", err)
	}
	defer rows.Close()

	var exchanges []model.Exchange
	for rows.Next() {
		ex, err := scanExchange(rows)
		if err != nil {
			return nil, err
		}
		exchanges = append(exchanges, ex)
	}
	return exchanges, rows.Err()
}

// GetSummary aggregates the journal of one session.
func (s *SQLiteStore) GetSummary(ctx context.Context, sessionID string) (model.JournalSummary, error) {
	const query = `
		SELECT
			COUNT(*) AS exchanges,
			COALESCE(SUM(attempts), 0) AS attempts,
			COALESCE(SUM(CASE WHEN outcome != ? THEN 1 ELSE 0 END), 0) AS failures,
			COALESCE(SUM(latency_ns), 0) AS latency_ns
		FROM exchanges
		WHERE session_id = ?`

	var row struct {
		Exchanges int   `db:"exchanges"`
		Attempts  int   `db:"attempts"`
		Failures  int   `db:"failures"`
		LatencyNs int64 `db:"latency_ns"`
	}
	if err := s.db.GetContext(ctx, &row, query, model.OutcomeOK, sessionID); err != nil {
		return model.JournalSummary{}, fmt.Errorf("summarizing session %s: %w", sessionID, err)
	}

	return model.JournalSummary{
		Exchanges: row.Exchanges,
		Attempts:  row.Attempts,
		Failures:  row.Failures,
		Latency:   time.Duration(row.LatencyNs),
	}, nil
}

func scanExchange(rows *sqlx.Rows) (model.Exchange, error) {
	var (
		ex        model.Exchange
		latencyNs int64
	)
	err := rows.Scan(
		&ex.ID, &ex.SessionID, &ex.Label, &ex.Model, &ex.Prompt,
		&ex.Attempts, &ex.Outcome, &latencyNs, &ex.CreatedAt,
	)
	if err != nil {
		return model.Exchange{}, fmt.Errorf("scanning exchange: %w", err)
	}
	ex.Latency = time.Duration(latencyNs)
	return ex, nil
}
