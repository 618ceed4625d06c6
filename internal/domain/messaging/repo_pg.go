package messaging

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skinsense/telehealth/internal/platform/db"
)

type chatRepoPG struct{ pool *pgxpool.Pool }

func NewChatRepoPG(pool *pgxpool.Pool) ChatRepository { return &chatRepoPG{pool: pool} }

func (r *chatRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

// upsertThreadSQL keeps the newest preview. A message whose sender
// timestamp is older than the thread's last one still creates the thread but
// does not replace its preview.
const upsertThreadSQL = `
		INSERT INTO chat_threads (channel_id, participant_a, participant_b, last_message, last_message_time)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (channel_id) DO UPDATE SET
			last_message = EXCLUDED.last_message,
			last_message_time = EXCLUDED.last_message_time
		WHERE EXCLUDED.last_message_time >= chat_threads.last_message_time`

func (r *chatRepoPG) UpsertThread(ctx context.Context, t *Thread) error {
	if len(t.Participants) != 2 {
		return fmt.Errorf("thread %s needs two participants", t.ChannelID)
	}
	_, err := r.conn(ctx).Exec(ctx, upsertThreadSQL,
		t.ChannelID, t.Participants[0], t.Participants[1], t.LastMessage, t.LastMessageTime)
	return err
}

func (r *chatRepoPG) InsertMessage(ctx context.Context, m *Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO chat_messages (id, channel_id, sender_id, receiver_id, created_at, text, images)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		m.ID, m.ChannelID, m.SenderID, m.ReceiverID, m.CreatedAt, m.Text, m.Images)
	return err
}

const msgCols = `id, channel_id, sender_id, receiver_id, created_at, text, images`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	if err := row.Scan(&m.ID, &m.ChannelID, &m.SenderID, &m.ReceiverID, &m.CreatedAt, &m.Text, &m.Images); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *chatRepoPG) ListMessages(ctx context.Context, channelID string) ([]*Message, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+msgCols+` FROM chat_messages WHERE channel_id = $1 ORDER BY created_at, id`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *chatRepoPG) ListThreads(ctx context.Context, userID uuid.UUID) ([]*Thread, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT channel_id, participant_a, participant_b, last_message, last_message_time
		FROM chat_threads
		WHERE participant_a = $1 OR participant_b = $1
		ORDER BY last_message_time DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Thread
	for rows.Next() {
		var t Thread
		var a, b uuid.UUID
		if err := rows.Scan(&t.ChannelID, &a, &b, &t.LastMessage, &t.LastMessageTime); err != nil {
			return nil, err
		}
		t.Participants = []uuid.UUID{a, b}
		out = append(out, &t)
	}
	return out, rows.Err()
}
