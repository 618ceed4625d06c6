package identity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skinsense/telehealth/internal/platform/auth"
	"github.com/skinsense/telehealth/internal/platform/blobstore"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidInput       = errors.New("invalid input")
)

const (
	maxNameLength      = 200
	maxSpecialtyLength = 200
)

func profileImageKey(id uuid.UUID) string {
	return "profileImages/" + id.String() + "/profile.jpg"
}

type Service struct {
	users       UserRepository
	tokens      *auth.Issuer
	revocations *auth.RevocationStore
	blobs       blobstore.BlobStore
	urls        blobstore.URLBuilder
	logger      zerolog.Logger
}

func NewService(users UserRepository, tokens *auth.Issuer, revocations *auth.RevocationStore,
	blobs blobstore.BlobStore, urls blobstore.URLBuilder, logger zerolog.Logger) *Service {
	return &Service{
		users:       users,
		tokens:      tokens,
		revocations: revocations,
		blobs:       blobs,
		urls:        urls,
		logger:      logger.With().Str("component", "identity").Logger(),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*AuthResult, error) {
	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}
	if name == "" || len(name) > maxNameLength {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if !req.Role.Valid() {
		return nil, fmt.Errorf("%w: role must be doctor or patient", ErrInvalidInput)
	}

	hash, err := auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         req.Role,
	}
	if req.Role == auth.RoleDoctor && req.Specialty != nil {
		if sp := strings.TrimSpace(*req.Specialty); sp != "" {
			u.Specialty = &sp
		}
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Str("role", string(u.Role)).Msg("user signed up")
	return s.issue(u)
}

func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*AuthResult, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(req.Email))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(u)
}

func (s *Service) issue(u *User) (*AuthResult, error) {
	token, session, err := s.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		User:        u,
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   session.ExpiresAt,
	}, nil
}

// SignOut revokes the session's token. Later requests carrying it get 401.
func (s *Service) SignOut(ctx context.Context, session *auth.Session) error {
	if err := s.revocations.Revoke(ctx, session); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *Service) Me(ctx context.Context, session *auth.Session) (*User, error) {
	return s.users.GetByID(ctx, session.UserID)
}

func (s *Service) GetProfile(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// Summaries resolves profile summaries for the given ids. Unknown ids are
// left out of the result.
func (s *Service) Summaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Summary, error) {
	users, err := s.users.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]Summary, len(users))
	for id, u := range users {
		out[id] = u.Summary()
	}
	return out, nil
}

func (s *Service) UpdateProfile(ctx context.Context, session *auth.Session, upd ProfileUpdate) (*User, error) {
	u, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" || len(name) > maxNameLength {
			return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
		}
		u.Name = name
	}
	if upd.Specialty != nil {
		sp := strings.TrimSpace(*upd.Specialty)
		if len(sp) > maxSpecialtyLength {
			return nil, fmt.Errorf("%w: specialty is too long", ErrInvalidInput)
		}
		if sp == "" {
			u.Specialty = nil
		} else {
			u.Specialty = &sp
		}
	}
	if err := s.users.UpdateProfile(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// UploadProfileImage replaces the user's profile picture. The object key is
// fixed per user so a new upload overwrites the old one; the stored URL
// carries a content version so clients do not keep showing the old picture.
func (s *Service) UploadProfileImage(ctx context.Context, session *auth.Session, r io.Reader) (*User, error) {
	data, contentType, err := blobstore.ReadImage(r)
	if err != nil {
		return nil, err
	}
	key := profileImageKey(session.UserID)
	if _, err := s.blobs.Put(ctx, key, contentType, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("store profile image: %w", err)
	}
	return s.users.SetProfileImage(ctx, session.UserID, s.urls.VersionedURL(key, data))
}

func (s *Service) ListDoctors(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.users.ListByRole(ctx, auth.RoleDoctor, limit, offset)
}
