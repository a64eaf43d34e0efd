package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"herald/internal/types"
)

// MessageRepo provides Postgres data access for the messages table. It is
// the production types.MessageLedger implementation.
type MessageRepo struct {
	db DBTX
}

var _ types.MessageLedger = (*MessageRepo)(nil)

// NewMessageRepo creates a MessageRepo backed by the given database
// connection (pool or transaction).
func NewMessageRepo(db DBTX) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, caller_id, channel, status, sender_name, sender_email,
	subject, body, metadata, delivery_response, error_text, source_addr,
	created_at, sent_at`

// Create inserts a new pending ledger record. The database assigns the ID
// and creation timestamp; both are written back to m.
func (r *MessageRepo) Create(ctx context.Context, m *types.Message) error {
	row := r.db.QueryRow(ctx,
		`INSERT INTO messages
		 (caller_id, channel, status, sender_name, sender_email, subject,
		  body, metadata, source_addr)
		 VALUES ($1, $2, 'pending', $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		m.CallerID,
		string(m.Channel),
		m.SenderName,
		m.SenderEmail,
		m.Subject,
		m.Body,
		m.Metadata,
		m.SourceAddr,
	)
	if err := row.Scan(&m.ID, &m.CreatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create message", err)
	}
	m.Status = types.MessageStatusPending
	return nil
}

// Finalize transitions a pending record to a terminal status. The WHERE
// guard makes the transition atomic: zero rows affected means the record is
// either missing or already terminal, which a follow-up read disambiguates
// into not-found, repeat (no-op) or conflict.
func (r *MessageRepo) Finalize(ctx context.Context, id int64, status types.MessageStatus, deliveryResponse, errorText string) error {
	if !status.IsTerminal() {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("finalize requires a terminal status, got %q", status), nil)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE messages SET
			status = $2,
			delivery_response = $3,
			error_text = $4,
			sent_at = CASE WHEN $2 = 'sent' THEN NOW() ELSE sent_at END
		 WHERE id = $1 AND status = 'pending'`,
		id,
		string(status),
		nilIfEmpty(deliveryResponse),
		nilIfEmpty(errorText),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finalize message", err)
	}
	if tag.RowsAffected() == 0 {
		return r.classifyFinalizeMiss(ctx, id, status)
	}
	return nil
}

// classifyFinalizeMiss resolves a finalize that matched no pending row.
func (r *MessageRepo) classifyFinalizeMiss(ctx context.Context, id int64, status types.MessageStatus) error {
	var current string
	err := r.db.QueryRow(ctx, `SELECT status FROM messages WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.NewAppError(types.ErrCodeNotFoundMessage, "message not found", nil)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to read message status", err)
	}
	if types.MessageStatus(current) == status {
		// Same terminal status twice is a repeated finalize, not a conflict.
		return nil
	}
	return types.NewAppError(types.ErrCodeConflictStatusFinal,
		fmt.Sprintf("message already finalized as %s", current), nil)
}

// GetByID returns a single ledger record.
func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*types.Message, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundMessage, "message not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get message", err)
	}
	return m, nil
}

// Query returns one page of ledger records matching f, newest first, plus
// the total number of matching records.
func (r *MessageRepo) Query(ctx context.Context, f *types.MessageFilter) ([]*types.Message, int, error) {
	limit, offset := clampPage(f.Limit, f.Offset)

	var conditions []string
	var args []any
	argIdx := 1

	if f.CallerID != "" {
		conditions = append(conditions, fmt.Sprintf("caller_id = $%d", argIdx))
		args = append(args, f.CallerID)
		argIdx++
	}
	if f.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(f.Status))
		argIdx++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM messages %s`, whereClause)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count messages", err)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM messages %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		messageColumns, whereClause, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to query messages", err)
	}
	defer rows.Close()

	var results []*types.Message
	for rows.Next() {
		m, scanErr := scanMessage(rows)
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

// Aggregate returns per-caller status counts plus the grand total. The
// busiest callers come first.
func (r *MessageRepo) Aggregate(ctx context.Context) (*types.LedgerStats, error) {
	rows, err := r.db.Query(ctx,
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
		var cs types.CallerStats
		if err := rows.Scan(&cs.CallerID, &cs.Total, &cs.Pending, &cs.Sent,
			&cs.Failed, &cs.Spam, &cs.LastCreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan stats row", err)
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
// cutoff, oldest first so the retention sweep drains from the back.
func (r *MessageRepo) ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]*types.Message, error) {
	if limit <= 0 {
		limit = types.DefaultQueryLimit
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+messageColumns+`
		 FROM messages
		 WHERE status IN ('sent', 'failed', 'spam') AND created_at < $1
		 ORDER BY created_at, id
		 LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list terminal messages", err)
	}
	defer rows.Close()

	var results []*types.Message
	for rows.Next() {
		m, scanErr := scanMessage(rows)
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
// actually deleted. Missing IDs are not an error.
func (r *MessageRepo) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM messages WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete messages", err)
	}
	return tag.RowsAffected(), nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanMessage scans a full messages row. Nullable columns scan through the
// pointer fields on types.Message directly.
func scanMessage(row rowScanner) (*types.Message, error) {
	var (
		m       types.Message
		channel string
		status  string
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
		&m.CreatedAt,
		&m.SentAt,
	)
	if err != nil {
		return nil, err
	}
	m.Channel = types.ChannelType(channel)
	m.Status = types.MessageStatus(status)
	return &m, nil
}

// clampPage normalizes a query page request: zero limit selects the
// default, anything above the maximum is capped, negative offsets become 0.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = types.DefaultQueryLimit
	}
	if limit > types.MaxQueryLimit {
		limit = types.MaxQueryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// nilIfEmpty returns nil if the string is empty, otherwise a pointer to it.
// Used for nullable text columns.
func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
