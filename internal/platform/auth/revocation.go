package auth

import (
	"context"
	"time"

	"github.com/skinsense/telehealth/internal/platform/cache"
)

// RevocationStore remembers revoked token ids until the tokens would have
// expired anyway.
type RevocationStore struct {
	cache cache.Cache
	now   func() time.Time
}

func NewRevocationStore(c cache.Cache) *RevocationStore {
	return &RevocationStore{cache: c, now: time.Now}
}

func revocationKey(tokenID string) string {
	return "revoked:" + tokenID
}

// Revoke ends the session. Already expired sessions need no entry.
func (r *RevocationStore) Revoke(ctx context.Context, s *Session) error {
	ttl := s.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	return r.cache.Set(ctx, revocationKey(s.TokenID), []byte(s.UserID.String()), ttl)
}

func (r *RevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	_, ok, err := r.cache.Get(ctx, revocationKey(tokenID))
	return ok, err
}
