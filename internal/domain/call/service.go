package call

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skinsense/telehealth/internal/domain/identity"
	"github.com/skinsense/telehealth/internal/platform/auth"
)

var (
	ErrNotFound     = errors.New("call session not found")
	ErrPeerNotFound = errors.New("peer not found")
	ErrForbidden    = errors.New("not the session owner")
	ErrInvalidState = errors.New("invalid call state")
	ErrInvalidInput = errors.New("invalid input")
)

// Directory resolves the peer being called.
type Directory interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*identity.User, error)
}

type Service struct {
	store     *sessionStore
	tokens    TokenProvider
	engine    EngineHooks
	directory Directory
	appID     string
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(tokens TokenProvider, engine EngineHooks, directory Directory, appID string, logger zerolog.Logger) *Service {
	return &Service{
		store:     newSessionStore(),
		tokens:    tokens,
		engine:    engine,
		directory: directory,
		appID:     appID,
		logger:    logger.With().Str("component", "call").Logger(),
		now:       time.Now,
	}
}

func (s *Service) hook(step string, sess *Session, err error) {
	if err != nil {
		s.logger.Error().Err(err).
			Str("step", step).
			Str("session_id", sess.ID.String()).
			Str("channel", sess.Channel).
			Msg("call engine step failed")
	}
}

// Start fetches a join token for the channel shared with peerID and creates
// an initialized session owned by the caller.
func (s *Service) Start(ctx context.Context, session *auth.Session, peerID uuid.UUID) (*Session, error) {
	if peerID == session.UserID {
		return nil, fmt.Errorf("%w: cannot call yourself", ErrInvalidInput)
	}
	if _, err := s.directory.GetProfile(ctx, peerID); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrPeerNotFound
		}
		return nil, err
	}

	channel := ChannelName(session.UserID, peerID)
	token, err := s.tokens.Token(ctx, channel, session.UserID)
	if err != nil {
		s.logger.Error().Err(err).Str("channel", channel).Msg("call token request failed")
		return nil, err
	}

	now := s.now().UTC()
	sess := &Session{
		ID:        uuid.New(),
		OwnerID:   session.UserID,
		PeerID:    peerID,
		Channel:   channel,
		AppID:     s.appID,
		Token:     token,
		State:     StateInitialized,
		StartedAt: now,
		UpdatedAt: now,
	}
	s.store.put(sess)
	s.hook("initialize", sess, s.engine.Initialize(ctx, sess))
	return sess, nil
}

func (s *Service) step(session *auth.Session, id uuid.UUID, from []State, apply func(*Session)) (*Session, error) {
	return s.store.update(id, func(sess *Session) error {
		if sess.OwnerID != session.UserID {
			return ErrForbidden
		}
		for _, st := range from {
			if sess.State == st {
				apply(sess)
				sess.UpdatedAt = s.now().UTC()
				return nil
			}
		}
		return fmt.Errorf("%w: session is %s", ErrInvalidState, sess.State)
	})
}

func (s *Service) Join(ctx context.Context, session *auth.Session, id uuid.UUID) (*Session, error) {
	sess, err := s.step(session, id, []State{StateInitialized}, func(sess *Session) {
		now := s.now().UTC()
		sess.State = StateJoined
		sess.JoinedAt = &now
		sess.Audio = true
	})
	if err != nil {
		return nil, err
	}
	s.hook("join", sess, s.engine.Join(ctx, sess))
	return sess, nil
}

// SetMedia toggles audio and video while joined.
func (s *Service) SetMedia(ctx context.Context, session *auth.Session, id uuid.UUID, req MediaRequest) (*Session, error) {
	if req.Audio == nil && req.Video == nil {
		return nil, fmt.Errorf("%w: audio or video is required", ErrInvalidInput)
	}
	sess, err := s.step(session, id, []State{StateJoined}, func(sess *Session) {
		if req.Audio != nil {
			sess.Audio = *req.Audio
		}
		if req.Video != nil {
			sess.Video = *req.Video
		}
	})
	if err != nil {
		return nil, err
	}
	s.hook("media", sess, s.engine.SetMedia(ctx, sess))
	return sess, nil
}

func (s *Service) Leave(ctx context.Context, session *auth.Session, id uuid.UUID) (*Session, error) {
	sess, err := s.step(session, id, []State{StateJoined}, func(sess *Session) {
		sess.State = StateLeft
		sess.Audio = false
		sess.Video = false
	})
	if err != nil {
		return nil, err
	}
	s.hook("leave", sess, s.engine.Leave(ctx, sess))
	return sess, nil
}

// Release drops the session. A session that never joined may be released
// directly; a joined one has to leave first.
func (s *Service) Release(ctx context.Context, session *auth.Session, id uuid.UUID) error {
	sess, err := s.store.remove(id, func(sess *Session) error {
		if sess.OwnerID != session.UserID {
			return ErrForbidden
		}
		if sess.State == StateJoined {
			return fmt.Errorf("%w: leave the channel before releasing", ErrInvalidState)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.hook("release", sess, s.engine.Release(ctx, sess))
	return nil
}

// ReapIdle releases sessions untouched for maxAge, covering clients that
// dropped without leaving.
func (s *Service) ReapIdle(ctx context.Context, maxAge time.Duration) int {
	stale := s.store.prune(s.now().UTC().Add(-maxAge))
	for _, sess := range stale {
		s.hook("release", sess, s.engine.Release(ctx, sess))
	}
	if len(stale) > 0 {
		s.logger.Info().Int("count", len(stale)).Msg("idle call sessions released")
	}
	return len(stale)
}

// StartReaper runs ReapIdle every interval until ctx is cancelled.
func (s *Service) StartReaper(ctx context.Context, interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.ReapIdle(ctx, maxAge)
			}
		}
	}()
}
