package messaging

import (
	"context"

	"github.com/google/uuid"
)

type ChatRepository interface {
	// UpsertThread creates the thread or overwrites its last-message fields.
	UpsertThread(ctx context.Context, t *Thread) error
	InsertMessage(ctx context.Context, m *Message) error
	ListMessages(ctx context.Context, channelID string) ([]*Message, error)
	ListThreads(ctx context.Context, userID uuid.UUID) ([]*Thread, error)
}
