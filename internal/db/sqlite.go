package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"herald/internal/types"
)

//go:embed schema.sql
var sqliteSchema string

// SQLiteLedger is the single-node types.MessageLedger implementation. The
// schema is embedded and applied at open, so no external migration step is
// needed. Timestamps are stored as RFC3339Nano text in UTC; row IDs are
// AUTOINCREMENT, so id order is creation order.
type SQLiteLedger struct {
	db *sql.DB
}

var _ types.MessageLedger = (*SQLiteLedger)(nil)

// OpenSQLite opens (creating if needed) the SQLite database at path and
// applies the embedded schema.
func OpenSQLite(path string) (*SQLiteLedger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating sqlite directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// SQLite allows one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent dispatches.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if _, err := sqlDB.Exec("PRAGMA journal_mode = WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("setting synchronous mode: %w", err)
	}

	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("applying sqlite schema: %w", err)
	}

	return &SQLiteLedger{db: sqlDB}, nil
}

// Close releases the underlying database handle.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// Ping verifies the database is reachable.
func (l *SQLiteLedger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// Create inserts a new pending ledger record, assigning ID and CreatedAt.
func (l *SQLiteLedger) Create(ctx context.Context, m *types.Message) error {
	now := time.Now().UTC()
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO messages
		 (caller_id, channel, status, sender_name, sender_email, subject,
		  body, metadata, source_addr, created_at)
		 VALUES (?, ?, 'pending', ?, ?, ?, ?, ?, ?, ?)`,
		m.CallerID,
		string(m.Channel),
		m.SenderName,
		m.SenderEmail,
		m.Subject,
		m.Body,
		m.Metadata,
		m.SourceAddr,
		formatSQLiteTime(now),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create message", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to read inserted id", err)
	}
	m.ID = id
	m.CreatedAt = now
	m.Status = types.MessageStatusPending
	return nil
}

// Finalize transitions a pending record to a terminal status with the same
// guarded-update semantics as the Postgres store.
func (l *SQLiteLedger) Finalize(ctx context.Context, id int64, status types.MessageStatus, deliveryResponse, errorText string) error {
	if !status.IsTerminal() {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("finalize requires a terminal status, got %q", status), nil)
	}

	var sentAt *string
	if status == types.MessageStatusSent {
		s := formatSQLiteTime(time.Now().UTC())
		sentAt = &s
	}

	res, err := l.db.ExecContext(ctx,
		`UPDATE messages SET status = ?, delivery_response = ?, error_text = ?, sent_at = ?
		 WHERE id = ? AND status = 'pending'`,
		string(status),
		nilIfEmpty(deliveryResponse),
		nilIfEmpty(errorText),
		sentAt,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finalize message", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to read rows affected", err)
	}
	if n == 0 {
		return l.classifyFinalizeMiss(ctx, id, status)
	}
	return nil
}

func (l *SQLiteLedger) classifyFinalizeMiss(ctx context.Context, id int64, status types.MessageStatus) error {
	var current string
	err := l.db.QueryRowContext(ctx, `SELECT status FROM messages WHERE id = ?`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.NewAppError(types.ErrCodeNotFoundMessage, "message not found", nil)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to read message status", err)
	}
	if types.MessageStatus(current) == status {
		return nil
	}
	return types.NewAppError(types.ErrCodeConflictStatusFinal,
		fmt.Sprintf("message already finalized as %s", current), nil)
}

// GetByID returns a single ledger record.
func (l *SQLiteLedger) GetByID(ctx context.Context, id int64) (*types.Message, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	m, err := scanSQLiteMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundMessage, "message not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get message", err)
	}
	return m, nil
}

// Query returns one page of ledger records matching f, newest first, plus
// the total number of matching records.
func (l *SQLiteLedger) Query(ctx context.Context, f *types.MessageFilter) ([]*types.Message, int, error) {
	limit, offset := clampPage(f.Limit, f.Offset)

	var conditions []string
	var args []any

	if f.CallerID != "" {
		conditions = append(conditions, "caller_id = ?")
		args = append(args, f.CallerID)
	}
	if f.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(f.Status))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM messages %s`, whereClause)
	if err := l.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count messages", err)
	}

	// id order is creation order, which sidesteps text-timestamp
	// comparison quirks.
	query := fmt.Sprintf(
		`SELECT %s FROM messages %s ORDER BY id DESC LIMIT ? OFFSET ?`,
		messageColumns, whereClause)
	args = append(args, limit, offset)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to query messages", err)
	}
	defer rows.Close()

	var results []*types.Message
	for rows.Next() {
		m, scanErr := scanSQLiteMessage(rows)
		if scanErr != nil {
			return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to scan message row", scanErr)
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "error iterating message rows", err)
	}

	return results, total, nil
}

// Aggregate returns per-caller status counts plus the grand total.
func (l *SQLiteLedger) Aggregate(ctx context.Context) (*types.LedgerStats, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT caller_id,
		        COUNT(*) AS total,
		        COUNT(*) FILTER (WHERE status = 'pending') AS pending,
		        COUNT(*) FILTER (WHERE status = 'sent') AS sent,
		        COUNT(*) FILTER (WHERE status = 'failed') AS failed,
		        COUNT(*) FILTER (WHERE status = 'spam') AS spam,
		        MAX(created_at) AS last_created_at
		 FROM messages
		 GROUP BY caller_id
		 ORDER BY total DESC, caller_id`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to aggregate messages", err)
	}
	defer rows.Close()

	stats := &types.LedgerStats{Callers: []types.CallerStats{}}
	for rows.Next() {
		var (
			cs            types.CallerStats
			lastCreatedAt *string
		)
		if err := rows.Scan(&cs.CallerID, &cs.Total, &cs.Pending, &cs.Sent,
			&cs.Failed, &cs.Spam, &lastCreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan stats row", err)
		}
		if lastCreatedAt != nil {
			t, parseErr := parseSQLiteTime(*lastCreatedAt)
			if parseErr != nil {
				return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to parse stats timestamp", parseErr)
			}
			cs.LastCreatedAt = &t
		}
		stats.Callers = append(stats.Callers, cs)
		stats.Total += cs.Total
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating stats rows", err)
	}

	return stats, nil
}

// ListTerminalBefore returns up to limit terminal records created before
// cutoff, oldest first.
func (l *SQLiteLedger) ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]*types.Message, error) {
	if limit <= 0 {
		limit = types.DefaultQueryLimit
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT `+messageColumns+`
		 FROM messages
		 WHERE status IN ('sent', 'failed', 'spam') AND created_at < ?
		 ORDER BY id
		 LIMIT ?`,
		formatSQLiteTime(cutoff), limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list terminal messages", err)
	}
	defer rows.Close()

	var results []*types.Message
	for rows.Next() {
		m, scanErr := scanSQLiteMessage(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan message row", scanErr)
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating message rows", err)
	}

	return results, nil
}

// DeleteByIDs removes the given ledger records, returning the count
// actually deleted.
func (l *SQLiteLedger) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	res, err := l.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM messages WHERE id IN (%s)`, strings.Join(placeholders, ", ")),
		args...,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete messages", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to read rows affected", err)
	}
	return n, nil
}

// scanSQLiteMessage scans a full messages row, parsing the text timestamps.
func scanSQLiteMessage(row rowScanner) (*types.Message, error) {
	var (
		m         types.Message
		channel   string
		status    string
		createdAt string
		sentAt    *string
	)
	err := row.Scan(
		&m.ID,
		&m.CallerID,
		&channel,
		&status,
		&m.SenderName,
		&m.SenderEmail,
		&m.Subject,
		&m.Body,
		&m.Metadata,
		&m.DeliveryResponse,
		&m.ErrorText,
		&m.SourceAddr,
		&createdAt,
		&sentAt,
	)
	if err != nil {
		return nil, err
	}
	m.Channel = types.ChannelType(channel)
	m.Status = types.MessageStatus(status)

	if m.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	if sentAt != nil {
		t, err := parseSQLiteTime(*sentAt)
		if err != nil {
			return nil, err
		}
		m.SentAt = &t
	}
	return &m, nil
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored timestamp %q: %w", s, err)
	}
	return t, nil
}
