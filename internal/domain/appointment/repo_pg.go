package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skinsense/telehealth/internal/platform/db"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const apptCols = `id, doctor_id, patient_id, date, time, status, created_at, updated_at, canceled_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.Date, &a.Time, &a.Status,
		&a.CreatedAt, &a.UpdatedAt, &a.CanceledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, date, time, status)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		a.ID, a.DoctorID, a.PatientID, a.Date, a.Time, string(a.Status),
	).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (r *appointmentRepoPG) Transition(ctx context.Context, id uuid.UUID, from []Status, ch Change) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET
			status = $3,
			date = COALESCE($4, date),
			time = COALESCE($5, time),
			updated_at = NOW(),
			canceled_at = CASE WHEN $3 = 'canceled' THEN NOW() ELSE canceled_at END
		WHERE id = $1 AND status = ANY($2)
		RETURNING `+apptCols,
		id, statusStrings(from), string(ch.To), ch.Date, ch.Time))
	if !errors.Is(err, ErrNotFound) {
		return a, err
	}

	var exists bool
	if err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}
	return nil, ErrInvalidTransition
}

func (r *appointmentRepoPG) list(ctx context.Context, column string, userID uuid.UUID, statuses []Status) ([]*Appointment, error) {
	query := `SELECT ` + apptCols + ` FROM appointments WHERE ` + column + ` = $1`
	args := []interface{}{userID}
	if len(statuses) > 0 {
		query += ` AND status = ANY($2)`
		args = append(args, statusStrings(statuses))
	}
	query += ` ORDER BY date, created_at`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, statuses []Status) ([]*Appointment, error) {
	return r.list(ctx, "patient_id", patientID, statuses)
}

func (r *appointmentRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, statuses []Status) ([]*Appointment, error) {
	return r.list(ctx, "doctor_id", doctorID, statuses)
}

func (r *appointmentRepoPG) CompleteConfirmedBefore(ctx context.Context, dateKey string) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		UPDATE appointments SET status = 'completed', updated_at = NOW()
		WHERE status = 'confirmed' AND LEFT(date, 10) < $1
		RETURNING `+apptCols, dateKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
