package messaging

import (
	"io"

	"github.com/google/uuid"

	"github.com/skinsense/telehealth/internal/domain/identity"
)

// ChannelID names the single thread between two users. The ids are sorted so
// the result does not depend on who asks.
func ChannelID(a, b uuid.UUID) string {
	as, bs := a.String(), b.String()
	if bs < as {
		as, bs = bs, as
	}
	return as + "_" + bs
}

// Thread is the metadata record of a channel.
type Thread struct {
	ChannelID       string            `db:"channel_id" json:"channelId"`
	Participants    []uuid.UUID       `json:"participants"`
	LastMessage     string            `db:"last_message" json:"lastMessage"`
	LastMessageTime int64             `db:"last_message_time" json:"lastMessageTime"`
	Counterpart     *identity.Summary `json:"counterpart,omitempty"`
}

// Message is either a text message or an image set. CreatedAt is epoch
// milliseconds, normally taken from the sender's clock.
type Message struct {
	ID         uuid.UUID `db:"id" json:"id"`
	ChannelID  string    `db:"channel_id" json:"channelId"`
	SenderID   uuid.UUID `db:"sender_id" json:"senderId"`
	ReceiverID uuid.UUID `db:"receiver_id" json:"receiverId"`
	CreatedAt  int64     `db:"created_at" json:"createdAt"`
	Text       *string   `db:"text" json:"text,omitempty"`
	Images     []string  `db:"images" json:"images,omitempty"`
}

type SendTextRequest struct {
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt,omitempty"`
}

// Upload is one image file of an image message.
type Upload struct {
	Filename string
	Content  io.Reader
}

// UploadFailure describes an image that was skipped.
type UploadFailure struct {
	Index    int    `json:"index"`
	Filename string `json:"filename,omitempty"`
	Error    string `json:"error"`
}

// ImageSendResult is the stored message plus any images that did not make it.
type ImageSendResult struct {
	Message *Message        `json:"message"`
	Failed  []UploadFailure `json:"failed,omitempty"`
}
