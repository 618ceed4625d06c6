package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skinsense/telehealth/internal/platform/auth"
)

var (
	ErrNotFound       = errors.New("availability not found")
	ErrInvalidDateKey = errors.New("date must be YYYY-MM-DD")
	ErrInvalidSlot    = errors.New("slot is not in the catalog")
	ErrForbidden      = errors.New("only a doctor may edit their own availability")
)

// ValidateDateKey checks that key is a real calendar date in YYYY-MM-DD form.
func ValidateDateKey(key string) error {
	t, err := time.Parse(DateKeyLayout, key)
	if err != nil || t.Format(DateKeyLayout) != key {
		return fmt.Errorf("%w: %q", ErrInvalidDateKey, key)
	}
	return nil
}

// normalizeSlots validates labels, drops duplicates and returns them in
// catalog order.
func normalizeSlots(slots []string) ([]string, error) {
	seen := make([]bool, len(Catalog))
	for _, label := range slots {
		i, ok := catalogIndex[label]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSlot, label)
		}
		seen[i] = true
	}
	out := make([]string, 0, len(slots))
	for i, label := range Catalog {
		if seen[i] {
			out = append(out, label)
		}
	}
	return out, nil
}

type Service struct {
	ledger LedgerRepository
	logger zerolog.Logger
}

func NewService(ledger LedgerRepository, logger zerolog.Logger) *Service {
	return &Service{ledger: ledger, logger: logger.With().Str("component", "availability").Logger()}
}

// Get returns the doctor's slots for the day. A day that was never written
// falls back to the full catalog.
func (s *Service) Get(ctx context.Context, doctorID uuid.UUID, dateKey string) (*Day, error) {
	if err := ValidateDateKey(dateKey); err != nil {
		return nil, err
	}
	day, err := s.ledger.Get(ctx, doctorID, dateKey)
	if errors.Is(err, ErrNotFound) {
		all := make([]string, len(Catalog))
		copy(all, Catalog)
		return &Day{DoctorID: doctorID, DateKey: dateKey, AvailableSlots: all, Defaulted: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read availability: %w", err)
	}
	return day, nil
}

// Set replaces the whole slot set for one of the session doctor's days.
func (s *Service) Set(ctx context.Context, session *auth.Session, dateKey string, slots []string) (*Day, error) {
	if !session.IsDoctor() {
		return nil, ErrForbidden
	}
	if err := ValidateDateKey(dateKey); err != nil {
		return nil, err
	}
	normalized, err := normalizeSlots(slots)
	if err != nil {
		return nil, err
	}
	day := &Day{DoctorID: session.UserID, DateKey: dateKey, AvailableSlots: normalized}
	if err := s.ledger.Upsert(ctx, day); err != nil {
		return nil, fmt.Errorf("write availability: %w", err)
	}
	s.logger.Debug().
		Str("doctor_id", session.UserID.String()).
		Str("date", dateKey).
		Int("slots", len(normalized)).
		Msg("availability replaced")
	return day, nil
}

// SlotStates lists every catalog label with whether it is open on that day.
func (s *Service) SlotStates(ctx context.Context, doctorID uuid.UUID, dateKey string) ([]SlotState, error) {
	day, err := s.Get(ctx, doctorID, dateKey)
	if err != nil {
		return nil, err
	}
	open := make(map[string]bool, len(day.AvailableSlots))
	for _, label := range day.AvailableSlots {
		open[label] = true
	}
	states := make([]SlotState, len(Catalog))
	for i, label := range Catalog {
		states[i] = SlotState{Label: label, Available: open[label]}
	}
	return states, nil
}

// IsAvailable reports whether label is open for the doctor on dateKey.
func (s *Service) IsAvailable(ctx context.Context, doctorID uuid.UUID, dateKey, label string) (bool, error) {
	day, err := s.Get(ctx, doctorID, dateKey)
	if err != nil {
		return false, err
	}
	for _, l := range day.AvailableSlots {
		if l == label {
			return true, nil
		}
	}
	return false, nil
}
