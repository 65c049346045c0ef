package outbox

import (
	"context"
	"database/sql"
	"time"

	sharedPersistence "github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/persistence"
)

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite outbox repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save stores a new outbox message.
func (r *SQLiteRepository) Save(ctx context.Context, msg *Message) error {
	q := sharedPersistence.SQLiteExecutor(ctx, r.db)
	res, err := q.ExecContext(ctx, `
		INSERT INTO outbox_messages (
			event_id, aggregate_type, aggregate_id, event_type, routing_key,
			payload, metadata, created_at, retry_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)
	`,
		msg.EventID.String(), msg.AggregateType, msg.AggregateID.String(),
		msg.EventType, msg.RoutingKey, string(msg.Payload), string(msg.Metadata),
		msg.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	msg.ID = id
	return nil
}

// SaveBatch stores messages within the caller's transaction.
func (r *SQLiteRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	for _, msg := range msgs {
		if err := r.Save(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// GetUnpublished retrieves unpublished messages ordered by creation time.
func (r *SQLiteRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	q := sharedPersistence.SQLiteExecutor(ctx, r.db)
	rows, err := q.QueryContext(ctx, `
		SELECT id, routing_key, payload, created_at, retry_count, next_retry_at
		FROM outbox_messages
		WHERE published_at IS NULL
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY id
		LIMIT ?
	`, time.Now().UTC().Format(time.RFC3339Nano), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		msg := &Message{}
		var payload, createdAt string
		var nextRetryAt sql.NullString
		if err := rows.Scan(&msg.ID, &msg.RoutingKey, &payload, &createdAt, &msg.RetryCount, &nextRetryAt); err != nil {
			return nil, err
		}
		msg.Payload = []byte(payload)
		msg.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if nextRetryAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, nextRetryAt.String)
			msg.NextRetryAt = &t
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// MarkPublished marks a message as successfully published.
func (r *SQLiteRepository) MarkPublished(ctx context.Context, id int64) error {
	q := sharedPersistence.SQLiteExecutor(ctx, r.db)
	_, err := q.ExecContext(ctx, `UPDATE outbox_messages SET published_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id)
	return err
}

// MarkFailed records a publish failure and schedules a retry.
func (r *SQLiteRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	q := sharedPersistence.SQLiteExecutor(ctx, r.db)
	_, err := q.ExecContext(ctx, `
		UPDATE outbox_messages
		SET retry_count = retry_count + 1, last_error = ?, next_retry_at = ?
		WHERE id = ?
	`, errMsg, nextRetryAt.UTC().Format(time.RFC3339Nano), id)
	return err
}

// DeleteOld removes published messages older than the retention period.
func (r *SQLiteRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	q := sharedPersistence.SQLiteExecutor(ctx, r.db)
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays).Format(time.RFC3339Nano)
	res, err := q.ExecContext(ctx, `
		DELETE FROM outbox_messages
		WHERE published_at IS NOT NULL AND published_at < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
