package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

func (r Role) Valid() bool {
	return r == RoleDoctor || r == RolePatient
}

// Session is the authenticated actor for one access token. It is created at
// sign-in and ends when the token expires or is revoked by sign-out.
type Session struct {
	UserID    uuid.UUID `json:"userId"`
	Role      Role      `json:"role"`
	TokenID   string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Session) IsDoctor() bool  { return s != nil && s.Role == RoleDoctor }
func (s *Session) IsPatient() bool { return s != nil && s.Role == RolePatient }

type contextKey string

const sessionKey contextKey = "session"

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey).(*Session)
	return s, ok && s != nil
}

// UserIDFromContext returns the authenticated user id or uuid.Nil.
func UserIDFromContext(ctx context.Context) uuid.UUID {
	if s, ok := SessionFromContext(ctx); ok {
		return s.UserID
	}
	return uuid.Nil
}

// CurrentSession returns the request's session or a 401 error.
func CurrentSession(c echo.Context) (*Session, error) {
	s, ok := SessionFromContext(c.Request().Context())
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "not signed in")
	}
	return s, nil
}
