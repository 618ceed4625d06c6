package availability

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skinsense/telehealth/internal/platform/db"
)

type ledgerRepoPG struct{ pool *pgxpool.Pool }

func NewLedgerRepoPG(pool *pgxpool.Pool) LedgerRepository { return &ledgerRepoPG{pool: pool} }

func (r *ledgerRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *ledgerRepoPG) Get(ctx context.Context, doctorID uuid.UUID, dateKey string) (*Day, error) {
	d := Day{DoctorID: doctorID, DateKey: dateKey}
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT available_slots, updated_at FROM doctor_availability
		WHERE doctor_id = $1 AND date_key = $2::date`,
		doctorID, dateKey,
	).Scan(&d.AvailableSlots, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if d.AvailableSlots == nil {
		d.AvailableSlots = []string{}
	}
	return &d, nil
}

// Upsert has no version check: concurrent writers to one day race and the
// last write wins.
func (r *ledgerRepoPG) Upsert(ctx context.Context, day *Day) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor_availability (doctor_id, date_key, available_slots, updated_at)
		VALUES ($1, $2::date, $3, NOW())
		ON CONFLICT (doctor_id, date_key)
		DO UPDATE SET available_slots = EXCLUDED.available_slots, updated_at = EXCLUDED.updated_at
		RETURNING updated_at`,
		day.DoctorID, day.DateKey, day.AvailableSlots,
	).Scan(&day.UpdatedAt)
}
