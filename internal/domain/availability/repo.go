package availability

import (
	"context"

	"github.com/google/uuid"
)

type LedgerRepository interface {
	// Get returns ErrNotFound when the doctor never wrote that day.
	Get(ctx context.Context, doctorID uuid.UUID, dateKey string) (*Day, error)
	// Upsert replaces the whole slot set for (doctor, date).
	Upsert(ctx context.Context, day *Day) error
}
