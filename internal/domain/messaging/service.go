package messaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skinsense/telehealth/internal/domain/identity"
	"github.com/skinsense/telehealth/internal/platform/auth"
	"github.com/skinsense/telehealth/internal/platform/blobstore"
	"github.com/skinsense/telehealth/internal/platform/db"
	"github.com/skinsense/telehealth/internal/platform/websocket"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrUploadFailed      = errors.New("no image could be stored")
)

const (
	MaxTextLength     = 4000
	MaxImagesPerSend  = 5
	photoPreview      = "📷 Photo"
	snapshotEventType = "chat.snapshot"
	threadsEventType  = "inbox.snapshot"
	chatTopicPrefix   = "chat:"
	inboxTopicPrefix  = "inbox:"
)

// Directory resolves user profiles.
type Directory interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*identity.User, error)
	Summaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]identity.Summary, error)
}

// Broadcaster pushes snapshots to realtime subscribers. Publish calls load
// only when the topic has subscribers, and keeps loads and deliveries on one
// topic in order.
type Broadcaster interface {
	Publish(ctx context.Context, topic string, load func(ctx context.Context) (websocket.Event, error)) error
}

type Service struct {
	chats     ChatRepository
	directory Directory
	blobs     blobstore.BlobStore
	urls      blobstore.URLBuilder
	runTx     db.TxRunner
	hub       Broadcaster
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(chats ChatRepository, directory Directory, blobs blobstore.BlobStore, urls blobstore.URLBuilder,
	runTx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		chats:     chats,
		directory: directory,
		blobs:     blobs,
		urls:      urls,
		runTx:     runTx,
		logger:    logger.With().Str("component", "messaging").Logger(),
		now:       time.Now,
	}
}

// SetBroadcaster wires realtime delivery. Without one, sends are only stored.
func (s *Service) SetBroadcaster(b Broadcaster) {
	s.hub = b
}

func ChatTopic(channelID string) string { return chatTopicPrefix + channelID }
func InboxTopic(userID uuid.UUID) string { return inboxTopicPrefix + userID.String() }

func (s *Service) checkRecipient(ctx context.Context, session *auth.Session, receiverID uuid.UUID) error {
	if receiverID == session.UserID {
		return fmt.Errorf("%w: cannot message yourself", ErrInvalidInput)
	}
	_, err := s.directory.GetProfile(ctx, receiverID)
	if errors.Is(err, identity.ErrNotFound) {
		return ErrRecipientNotFound
	}
	return err
}

func (s *Service) timestamp(clientMillis int64) int64 {
	if clientMillis > 0 {
		return clientMillis
	}
	return s.now().UnixMilli()
}

// SendText stores a text message and updates the thread metadata.
func (s *Service) SendText(ctx context.Context, session *auth.Session, receiverID uuid.UUID, req SendTextRequest) (*Message, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return nil, fmt.Errorf("%w: text exceeds %d characters", ErrInvalidInput, MaxTextLength)
	}
	if err := s.checkRecipient(ctx, session, receiverID); err != nil {
		return nil, err
	}

	m := &Message{
		ChannelID:  ChannelID(session.UserID, receiverID),
		SenderID:   session.UserID,
		ReceiverID: receiverID,
		CreatedAt:  s.timestamp(req.CreatedAt),
		Text:       &text,
	}
	if err := s.store(ctx, m, text); err != nil {
		return nil, err
	}
	return m, nil
}

// SendImages uploads each image and stores one message with the URLs that
// made it. Failed images are skipped and reported; the call fails only when
// none could be stored.
func (s *Service) SendImages(ctx context.Context, session *auth.Session, receiverID uuid.UUID, files []Upload, createdAt int64) (*ImageSendResult, error) {
	if len(files) == 0 || len(files) > MaxImagesPerSend {
		return nil, fmt.Errorf("%w: send between 1 and %d images", ErrInvalidInput, MaxImagesPerSend)
	}
	if err := s.checkRecipient(ctx, session, receiverID); err != nil {
		return nil, err
	}

	var urls []string
	var failed []UploadFailure
	var firstErr error
	for i, f := range files {
		url, err := s.uploadImage(ctx, f)
		if err != nil {
			s.logger.Warn().Err(err).
				Str("user_id", session.UserID.String()).
				Int("index", i).
				Msg("chat image skipped")
			failed = append(failed, UploadFailure{Index: i, Filename: f.Filename, Error: err.Error()})
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		urls = append(urls, url)
	}
	if len(urls) == 0 {
		if errors.Is(firstErr, blobstore.ErrNotImage) || errors.Is(firstErr, blobstore.ErrFileTooLarge) {
			return nil, firstErr
		}
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, firstErr)
	}

	m := &Message{
		ChannelID:  ChannelID(session.UserID, receiverID),
		SenderID:   session.UserID,
		ReceiverID: receiverID,
		CreatedAt:  s.timestamp(createdAt),
		Images:     urls,
	}
	if err := s.store(ctx, m, photoPreview); err != nil {
		return nil, err
	}
	return &ImageSendResult{Message: m, Failed: failed}, nil
}

func (s *Service) uploadImage(ctx context.Context, f Upload) (string, error) {
	data, contentType, err := blobstore.ReadImage(f.Content)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("chat/%d-%s", s.now().UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	if _, err := s.blobs.Put(ctx, key, contentType, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("store %s: %w", key, err)
	}
	return s.urls.URL(key), nil
}

// store writes the thread metadata and the message in one transaction, then
// pushes fresh snapshots to subscribers.
func (s *Service) store(ctx context.Context, m *Message, preview string) error {
	first, second := m.SenderID, m.ReceiverID
	if second.String() < first.String() {
		first, second = second, first
	}
	thread := &Thread{
		ChannelID:       m.ChannelID,
		Participants:    []uuid.UUID{first, second},
		LastMessage:     preview,
		LastMessageTime: m.CreatedAt,
	}
	err := s.runTx(ctx, func(ctx context.Context) error {
		if err := s.chats.UpsertThread(ctx, thread); err != nil {
			return fmt.Errorf("update thread: %w", err)
		}
		if err := s.chats.InsertMessage(ctx, m); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, m)
	return nil
}

func (s *Service) publish(ctx context.Context, m *Message) {
	if s.hub == nil {
		return
	}
	topic := ChatTopic(m.ChannelID)
	err := s.hub.Publish(ctx, topic, func(ctx context.Context) (websocket.Event, error) {
		msgs, err := s.messages(ctx, m.ChannelID)
		if err != nil {
			return websocket.Event{}, err
		}
		return websocket.NewEvent(snapshotEventType, topic, msgs)
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("topic", topic).Msg("chat snapshot not delivered")
	}

	for _, userID := range []uuid.UUID{m.SenderID, m.ReceiverID} {
		userID := userID
		topic := InboxTopic(userID)
		err := s.hub.Publish(ctx, topic, func(ctx context.Context) (websocket.Event, error) {
			threads, err := s.threads(ctx, userID)
			if err != nil {
				return websocket.Event{}, err
			}
			return websocket.NewEvent(threadsEventType, topic, threads)
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("topic", topic).Msg("inbox snapshot not delivered")
		}
	}
}

// Messages returns the whole log with peer, oldest first.
func (s *Service) Messages(ctx context.Context, session *auth.Session, peerID uuid.UUID) ([]*Message, error) {
	return s.messages(ctx, ChannelID(session.UserID, peerID))
}

func (s *Service) messages(ctx context.Context, channelID string) ([]*Message, error) {
	msgs, err := s.chats.ListMessages(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if msgs == nil {
		msgs = []*Message{}
	}
	sortMessages(msgs)
	return msgs, nil
}

// sortMessages orders by sender timestamp. The id breaks ties so the order is
// stable across reads.
func sortMessages(msgs []*Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt != msgs[j].CreatedAt {
			return msgs[i].CreatedAt < msgs[j].CreatedAt
		}
		return msgs[i].ID.String() < msgs[j].ID.String()
	})
}

// Threads lists the user's conversations, most recent first.
func (s *Service) Threads(ctx context.Context, session *auth.Session) ([]*Thread, error) {
	return s.threads(ctx, session.UserID)
}

func (s *Service) threads(ctx context.Context, userID uuid.UUID) ([]*Thread, error) {
	threads, err := s.chats.ListThreads(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	if threads == nil {
		threads = []*Thread{}
	}
	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].LastMessageTime > threads[j].LastMessageTime
	})

	peers := make([]uuid.UUID, 0, len(threads))
	for _, t := range threads {
		peers = append(peers, counterpartOf(t, userID))
	}
	summaries, err := s.directory.Summaries(ctx, peers)
	if err != nil {
		return nil, fmt.Errorf("load counterparts: %w", err)
	}
	for _, t := range threads {
		if sum, ok := summaries[counterpartOf(t, userID)]; ok {
			sum := sum
			t.Counterpart = &sum
		}
	}
	return threads, nil
}

func counterpartOf(t *Thread, userID uuid.UUID) uuid.UUID {
	for _, p := range t.Participants {
		if p != userID {
			return p
		}
	}
	return userID
}
