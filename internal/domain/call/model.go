package call

import (
	"time"

	"github.com/google/uuid"

	"github.com/skinsense/telehealth/internal/domain/messaging"
)

type State string

const (
	StateInitialized State = "initialized"
	StateJoined      State = "joined"
	StateLeft        State = "left"
)

// ChannelName is the media channel both parties join. It is derived from the
// messaging channel id, so either side starting the call lands in the same
// channel.
func ChannelName(a, b uuid.UUID) string {
	return "call_" + messaging.ChannelID(a, b)
}

// Session is one participant's server-tracked call engine.
type Session struct {
	ID        uuid.UUID  `json:"id"`
	OwnerID   uuid.UUID  `json:"ownerId"`
	PeerID    uuid.UUID  `json:"peerId"`
	Channel   string     `json:"channel"`
	AppID     string     `json:"appId,omitempty"`
	Token     string     `json:"token"`
	State     State      `json:"state"`
	Audio     bool       `json:"audio"`
	Video     bool       `json:"video"`
	StartedAt time.Time  `json:"startedAt"`
	JoinedAt  *time.Time `json:"joinedAt,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// MediaRequest toggles local tracks. Nil fields are left as they are.
type MediaRequest struct {
	Audio *bool `json:"audio,omitempty"`
	Video *bool `json:"video,omitempty"`
}
