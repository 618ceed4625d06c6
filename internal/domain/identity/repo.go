package identity

import (
	"context"

	"github.com/google/uuid"

	"github.com/skinsense/telehealth/internal/platform/auth"
)

type UserRepository interface {
	// Create returns ErrEmailTaken when the email is already registered.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*User, error)
	UpdateProfile(ctx context.Context, u *User) error
	SetProfileImage(ctx context.Context, id uuid.UUID, url string) (*User, error)
	ListByRole(ctx context.Context, role auth.Role, limit, offset int) ([]*User, int, error)
}
