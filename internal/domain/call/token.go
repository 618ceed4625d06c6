package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrTokenUnavailable = errors.New("call token unavailable")

// TokenProvider hands out join tokens for a media channel.
type TokenProvider interface {
	Token(ctx context.Context, channel string, userID uuid.UUID) (string, error)
}

// HTTPTokenProvider fetches tokens from an external token server that answers
// GET {url}?channelName={channel} with {"token": "..."}.
type HTTPTokenProvider struct {
	url    string
	client *http.Client
}

func NewHTTPTokenProvider(endpoint string, client *http.Client) *HTTPTokenProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPTokenProvider{url: endpoint, client: client}
}

func (p *HTTPTokenProvider) Token(ctx context.Context, channel string, _ uuid.UUID) (string, error) {
	u, err := url.Parse(p.url)
	if err != nil {
		return "", fmt.Errorf("%w: bad token url: %v", ErrTokenUnavailable, err)
	}
	q := u.Query()
	q.Set("channelName", channel)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: token server returned %d", ErrTokenUnavailable, resp.StatusCode)
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrTokenUnavailable, err)
	}
	if body.Token == "" {
		return "", fmt.Errorf("%w: empty token", ErrTokenUnavailable)
	}
	return body.Token, nil
}

type channelClaims struct {
	jwt.RegisteredClaims
	Channel string `json:"channel"`
}

// SignedTokenProvider mints HS256 tokens locally when no token server is
// configured.
type SignedTokenProvider struct {
	key   []byte
	appID string
	ttl   time.Duration
	now   func() time.Time
}

func NewSignedTokenProvider(secret, appID string, ttl time.Duration) *SignedTokenProvider {
	return &SignedTokenProvider{key: []byte(secret), appID: appID, ttl: ttl, now: time.Now}
}

func (p *SignedTokenProvider) Token(_ context.Context, channel string, userID uuid.UUID) (string, error) {
	now := p.now()
	claims := channelClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
		Channel: channel,
	}
	if p.appID != "" {
		claims.Audience = jwt.ClaimStrings{p.appID}
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.key)
	if err != nil {
		return "", fmt.Errorf("%w: sign: %v", ErrTokenUnavailable, err)
	}
	return token, nil
}

// parseChannelToken verifies a locally signed token and returns its channel
// and subject.
func (p *SignedTokenProvider) parseChannelToken(tokenStr string) (string, uuid.UUID, error) {
	claims := &channelClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	}
	if p.appID != "" {
		opts = append(opts, jwt.WithAudience(p.appID))
	}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return p.key, nil
	}, opts...)
	if err != nil {
		return "", uuid.Nil, err
	}
	sub, err := uuid.Parse(claims.Subject)
	if err != nil {
		return "", uuid.Nil, err
	}
	return claims.Channel, sub, nil
}

// NewTokenProvider picks the token server when tokenURL is set and local
// signing otherwise.
func NewTokenProvider(tokenURL, secret, appID string, ttl time.Duration) TokenProvider {
	if tokenURL != "" {
		return NewHTTPTokenProvider(tokenURL, nil)
	}
	return NewSignedTokenProvider(secret, appID, ttl)
}
