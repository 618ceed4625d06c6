package messaging

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/skinsense/telehealth/internal/platform/auth"
	"github.com/skinsense/telehealth/internal/platform/websocket"
)

// RegisterTopics routes chat:{channelId} and inbox:{userId} subscriptions on
// the hub to this service and makes the service broadcast to it.
func (s *Service) RegisterTopics(hub *websocket.Hub) {
	hub.Handle(chatTopicPrefix, &chatTopics{svc: s})
	hub.Handle(inboxTopicPrefix, &inboxTopics{svc: s})
	s.SetBroadcaster(hub)
}

type chatTopics struct {
	svc *Service
}

// peerOf returns the other participant of channel when s is one of them.
func peerOf(s *auth.Session, topic string) (uuid.UUID, bool) {
	parts := strings.Split(strings.TrimPrefix(topic, chatTopicPrefix), "_")
	if len(parts) != 2 {
		return uuid.Nil, false
	}
	self := s.UserID.String()
	var peer string
	switch self {
	case parts[0]:
		peer = parts[1]
	case parts[1]:
		peer = parts[0]
	default:
		return uuid.Nil, false
	}
	id, err := uuid.Parse(peer)
	if err != nil || ChannelID(s.UserID, id) != strings.TrimPrefix(topic, chatTopicPrefix) {
		return uuid.Nil, false
	}
	return id, true
}

func (t *chatTopics) Authorize(_ context.Context, s *auth.Session, topic string) error {
	if _, ok := peerOf(s, topic); !ok {
		return websocket.ErrForbidden
	}
	return nil
}

func (t *chatTopics) Snapshot(ctx context.Context, s *auth.Session, topic string) (websocket.Event, error) {
	peer, ok := peerOf(s, topic)
	if !ok {
		return websocket.Event{}, websocket.ErrForbidden
	}
	msgs, err := t.svc.Messages(ctx, s, peer)
	if err != nil {
		return websocket.Event{}, err
	}
	return websocket.NewEvent(snapshotEventType, topic, msgs)
}

type inboxTopics struct {
	svc *Service
}

func (t *inboxTopics) Authorize(_ context.Context, s *auth.Session, topic string) error {
	if topic != InboxTopic(s.UserID) {
		return websocket.ErrForbidden
	}
	return nil
}

func (t *inboxTopics) Snapshot(ctx context.Context, s *auth.Session, topic string) (websocket.Event, error) {
	threads, err := t.svc.Threads(ctx, s)
	if err != nil {
		return websocket.Event{}, err
	}
	return websocket.NewEvent(threadsEventType, topic, threads)
}
