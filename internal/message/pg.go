package message

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hubline-chat/hubline-server/internal/hub"
	"github.com/hubline-chat/hubline-server/internal/postgres"
)

const selectColumns = "id, sender, created_ms, content"

// PGRepository implements Repository using PostgreSQL. Store order within a
// channel is (created_ms, id); appends hold a per-channel advisory lock so
// created_ms never decreases within a channel.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a PostgreSQL-backed message repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{
		db:  db,
		log: logger.With().Str("component", "messagestore").Logger(),
	}
}

// Append validates, timestamps, and inserts a message.
func (r *PGRepository) Append(ctx context.Context, hubID, channelID, sender uuid.UUID, content string) (*Message, error) {
	if err := ValidateContent(content); err != nil {
		return nil, err
	}

	msg := &Message{Sender: sender, Content: content}
	insert := func() error {
		return postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx,
				"SELECT pg_advisory_xact_lock(hashtextextended($1, 0))",
				hubID.String()+"/"+channelID.String(),
			)
			if err != nil {
				return fmt.Errorf("lock channel: %w", err)
			}

			row := tx.QueryRow(ctx,
				`INSERT INTO messages (id, hub_id, channel_id, sender, created_ms, content)
				 SELECT $1, $2, $3, $4, GREATEST($5::bigint, COALESCE(MAX(created_ms), 0)), $6
				 FROM messages WHERE hub_id = $2 AND channel_id = $3
				 RETURNING created_ms`,
				msg.ID, hubID, channelID, sender, hub.NowMS(), content,
			)
			return row.Scan(&msg.CreatedMS)
		})
	}

	msg.ID = uuid.New()
	err := insert()
	if postgres.IsUniqueViolation(err) {
		// Practically unreachable ID collision; one fresh draw settles it.
		msg.ID = uuid.New()
		err = insert()
	}
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// After returns the messages recorded after afterID in store order. An anchor
// the store does not have means "from the beginning".
func (r *PGRepository) After(ctx context.Context, hubID, channelID, afterID uuid.UUID, limit int) ([]Message, error) {
	anchored := false
	if afterID != uuid.Nil {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM messages WHERE id = $1 AND hub_id = $2 AND channel_id = $3)",
			afterID, hubID, channelID,
		).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("check anchor message: %w", err)
		}
		anchored = exists
	}

	var (
		rows pgx.Rows
		err  error
	)
	if anchored {
		rows, err = r.db.Query(ctx, fmt.Sprintf(
			`SELECT %s FROM messages
			 WHERE hub_id = $1 AND channel_id = $2
			   AND (created_ms, id) > (SELECT created_ms, id FROM messages WHERE id = $3)
			 ORDER BY created_ms, id
			 LIMIT $4`, selectColumns),
			hubID, channelID, afterID, nullableLimit(limit),
		)
	} else {
		rows, err = r.db.Query(ctx, fmt.Sprintf(
			`SELECT %s FROM messages
			 WHERE hub_id = $1 AND channel_id = $2
			 ORDER BY created_ms, id
			 LIMIT $3`, selectColumns),
			hubID, channelID, nullableLimit(limit),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.Sender, &msg.CreatedMS, &msg.Content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// Get returns a single message by ID.
func (r *PGRepository) Get(ctx context.Context, hubID, channelID, messageID uuid.UUID) (*Message, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf(
		"SELECT %s FROM messages WHERE id = $1 AND hub_id = $2 AND channel_id = $3", selectColumns),
		messageID, hubID, channelID,
	)

	var msg Message
	if err := row.Scan(&msg.ID, &msg.Sender, &msg.CreatedMS, &msg.Content); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query message by id: %w", err)
	}
	return &msg, nil
}

// nullableLimit maps "no limit" to a NULL LIMIT, which PostgreSQL treats as
// unbounded.
func nullableLimit(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}
