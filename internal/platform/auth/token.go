package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// Issuer signs and verifies HS256 access tokens.
type Issuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret, issuer string, ttl time.Duration) *Issuer {
	return &Issuer{
		key:    []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue mints a token for the user and returns it with its session.
func (i *Issuer) Issue(userID uuid.UUID, role Role) (string, *Session, error) {
	now := i.now()
	s := &Session{
		UserID:    userID,
		Role:      role,
		TokenID:   uuid.NewString(),
		ExpiresAt: now.Add(i.ttl).Truncate(time.Second),
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.TokenID,
			Subject:   userID.String(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
		Role: role,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return token, s, nil
}

// Verify parses a token and returns the session it carries.
func (i *Issuer) Verify(tokenStr string) (*Session, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return i.key, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil || !claims.Role.Valid() || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return &Session{
		UserID:    userID,
		Role:      claims.Role,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
