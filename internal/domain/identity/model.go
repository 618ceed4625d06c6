package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/skinsense/telehealth/internal/platform/auth"
)

// User maps to the users table. The password hash never leaves the server.
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Name         string    `db:"name" json:"name"`
	Role         auth.Role `db:"role" json:"role"`
	Specialty    *string   `db:"specialty" json:"specialty,omitempty"`
	ProfileImage *string   `db:"profile_image" json:"profileImage,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// Summary is the slice of a profile shown next to appointments and threads.
type Summary struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Role         auth.Role `json:"role"`
	Specialty    *string   `json:"specialty,omitempty"`
	ProfileImage *string   `json:"profileImage,omitempty"`
}

func (u *User) Summary() Summary {
	return Summary{
		ID:           u.ID,
		Name:         u.Name,
		Role:         u.Role,
		Specialty:    u.Specialty,
		ProfileImage: u.ProfileImage,
	}
}

type SignUpRequest struct {
	Email     string    `json:"email"`
	Password  string    `json:"password"`
	Name      string    `json:"name"`
	Role      auth.Role `json:"role"`
	Specialty *string   `json:"specialty,omitempty"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ProfileUpdate carries the optional fields a user may change on themselves.
type ProfileUpdate struct {
	Name      *string `json:"name,omitempty"`
	Specialty *string `json:"specialty,omitempty"`
}

// AuthResult is returned by sign-up and sign-in.
type AuthResult struct {
	User        *User     `json:"user"`
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}
