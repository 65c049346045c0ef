package outbox

import (
	"context"
	"time"

	sharedPersistence "github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/persistence"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL outbox repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const postgresInsertMessage = `
	INSERT INTO outbox_messages (
		event_id, aggregate_type, aggregate_id, event_type, routing_key,
		payload, metadata, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id
`

// Save stores a new outbox message.
func (r *PostgresRepository) Save(ctx context.Context, msg *Message) error {
	exec := sharedPersistence.Executor(ctx, r.pool)
	return exec.QueryRow(ctx, postgresInsertMessage,
		msg.EventID, msg.AggregateType, msg.AggregateID, msg.EventType,
		msg.RoutingKey, msg.Payload, msg.Metadata, msg.CreatedAt,
	).Scan(&msg.ID)
}

// SaveBatch stores messages within the caller's transaction.
func (r *PostgresRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	for _, msg := range msgs {
		if err := r.Save(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// GetUnpublished retrieves unpublished messages ordered by creation time.
func (r *PostgresRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)
	rows, err := exec.Query(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, routing_key,
		       payload, metadata, created_at, published_at, next_retry_at, retry_count, last_error
		FROM outbox_messages
		WHERE published_at IS NULL
		  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(
			&msg.ID, &msg.EventID, &msg.AggregateType, &msg.AggregateID,
			&msg.EventType, &msg.RoutingKey, &msg.Payload, &msg.Metadata,
			&msg.CreatedAt, &msg.PublishedAt, &msg.NextRetryAt, &msg.RetryCount, &msg.LastError,
		); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// MarkPublished marks a message as successfully published.
func (r *PostgresRepository) MarkPublished(ctx context.Context, id int64) error {
	exec := sharedPersistence.Executor(ctx, r.pool)
	_, err := exec.Exec(ctx, `UPDATE outbox_messages SET published_at = NOW() WHERE id = $1`, id)
	return err
}

// MarkFailed records a publish failure and schedules a retry.
func (r *PostgresRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	exec := sharedPersistence.Executor(ctx, r.pool)
	_, err := exec.Exec(ctx, `
		UPDATE outbox_messages
		SET retry_count = retry_count + 1, last_error = $2, next_retry_at = $3
		WHERE id = $1
	`, id, errMsg, nextRetryAt)
	return err
}

// DeleteOld removes published messages older than the retention period.
func (r *PostgresRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)
	tag, err := exec.Exec(ctx, `
		DELETE FROM outbox_messages
		WHERE published_at IS NOT NULL AND published_at < NOW() - make_interval(days => $1)
	`, olderThanDays)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
