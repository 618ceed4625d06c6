package appointment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skinsense/telehealth/internal/domain/availability"
	"github.com/skinsense/telehealth/internal/domain/identity"
	"github.com/skinsense/telehealth/internal/platform/auth"
	"github.com/skinsense/telehealth/internal/platform/cache"
	"github.com/skinsense/telehealth/internal/platform/events"
)

var (
	ErrNotFound          = errors.New("appointment not found")
	ErrForbidden         = errors.New("not allowed for this appointment")
	ErrInvalidTransition = errors.New("appointment cannot make that transition")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidView       = errors.New("unknown appointment view")
	ErrSlotUnavailable   = errors.New("slot is not available")
)

// Directory resolves user profiles.
type Directory interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*identity.User, error)
	Summaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]identity.Summary, error)
}

// Ledger answers whether a slot is open. Only consulted when booking
// enforcement is on.
type Ledger interface {
	IsAvailable(ctx context.Context, doctorID uuid.UUID, dateKey, label string) (bool, error)
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
}

// validateDate accepts an ISO-8601 date or date-time.
func validateDate(date string) error {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, date); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: date must be ISO-8601", ErrInvalidInput)
}

type Options struct {
	// EnforceAvailability rejects bookings for slots the doctor has not opened.
	EnforceAvailability bool
	CacheTTL            time.Duration
}

type Service struct {
	appointments AppointmentRepository
	directory    Directory
	ledger       Ledger
	cache        cache.Cache
	publisher    events.Publisher
	opts         Options
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(appts AppointmentRepository, directory Directory, ledger Ledger, c cache.Cache,
	publisher events.Publisher, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		appointments: appts,
		directory:    directory,
		ledger:       ledger,
		cache:        c,
		publisher:    publisher,
		opts:         opts,
		logger:       logger.With().Str("component", "appointment").Logger(),
		now:          time.Now,
	}
}

func (s *Service) checkSlot(ctx context.Context, doctorID uuid.UUID, date, label string) error {
	if err := validateDate(date); err != nil {
		return err
	}
	if !availability.InCatalog(label) {
		return fmt.Errorf("%w: %q", availability.ErrInvalidSlot, label)
	}
	if !s.opts.EnforceAvailability || s.ledger == nil {
		return nil
	}
	a := Appointment{Date: date}
	ok, err := s.ledger.IsAvailable(ctx, doctorID, a.DateKey(), label)
	if err != nil {
		return fmt.Errorf("check availability: %w", err)
	}
	if !ok {
		return ErrSlotUnavailable
	}
	return nil
}

// Book creates a pending appointment for the session patient. The same slot
// may be booked more than once unless availability enforcement is on, and
// even then nothing removes the slot from the ledger.
func (s *Service) Book(ctx context.Context, session *auth.Session, req BookRequest) (*Appointment, error) {
	if !session.IsPatient() {
		return nil, fmt.Errorf("%w: only patients can book", ErrForbidden)
	}
	if req.DoctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctorId is required", ErrInvalidInput)
	}
	doctor, err := s.directory.GetProfile(ctx, req.DoctorID)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, fmt.Errorf("%w: doctor does not exist", ErrInvalidInput)
	}
	if err != nil {
		return nil, err
	}
	if doctor.Role != auth.RoleDoctor {
		return nil, fmt.Errorf("%w: user is not a doctor", ErrInvalidInput)
	}

	date := strings.TrimSpace(req.Date)
	if err := s.checkSlot(ctx, req.DoctorID, date, req.Time); err != nil {
		return nil, err
	}

	a := &Appointment{
		DoctorID:  req.DoctorID,
		PatientID: session.UserID,
		Date:      date,
		Time:      req.Time,
		Status:    StatusPending,
	}
	if err := s.appointments.Create(ctx, a); err != nil {
		return nil, err
	}
	s.afterWrite(ctx, session.UserID.String(), EventBooked, a)
	return a, nil
}

// Get returns an appointment to one of its participants.
func (s *Service) Get(ctx context.Context, session *auth.Session, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Involves(session.UserID) {
		return nil, ErrForbidden
	}
	return a, nil
}

func (s *Service) Approve(ctx context.Context, session *auth.Session, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, session, id, ActionApprove, Change{})
}

func (s *Service) Reject(ctx context.Context, session *auth.Session, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, session, id, ActionReject, Change{})
}

func (s *Service) Cancel(ctx context.Context, session *auth.Session, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, session, id, ActionCancel, Change{})
}

func (s *Service) Complete(ctx context.Context, session *auth.Session, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, session, id, ActionComplete, Change{})
}

// Reschedule moves the appointment to a new date and slot and sends it back
// for approval. Canceled appointments cannot be rescheduled.
func (s *Service) Reschedule(ctx context.Context, session *auth.Session, id uuid.UUID, req RescheduleRequest) (*Appointment, error) {
	date := strings.TrimSpace(req.Date)
	label := req.Time
	return s.transition(ctx, session, id, ActionReschedule, Change{Date: &date, Time: &label})
}

func (s *Service) transition(ctx context.Context, session *auth.Session, id uuid.UUID, action Action, ch Change) (*Appointment, error) {
	e, ok := transitions[action][session.Role]
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot %s", ErrForbidden, session.Role, action)
	}

	current, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch session.Role {
	case auth.RoleDoctor:
		if current.DoctorID != session.UserID {
			return nil, ErrForbidden
		}
	case auth.RolePatient:
		if current.PatientID != session.UserID {
			return nil, ErrForbidden
		}
	}
	if !containsStatus(e.from, current.Status) {
		return nil, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, current.Status)
	}
	if ch.Date != nil {
		if err := s.checkSlot(ctx, current.DoctorID, *ch.Date, *ch.Time); err != nil {
			return nil, err
		}
	}

	ch.To = e.to
	updated, err := s.appointments.Transition(ctx, id, e.from, ch)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return nil, fmt.Errorf("%w: %s lost to a concurrent update", ErrInvalidTransition, action)
		}
		return nil, err
	}
	s.afterWrite(ctx, session.UserID.String(), eventTypes[action], updated)
	return updated, nil
}

// afterWrite invalidates both participants' cached lists and publishes the
// event. Neither failure fails the write.
func (s *Service) afterWrite(ctx context.Context, actorID, eventType string, a *Appointment) {
	s.invalidate(ctx, a.DoctorID, a.PatientID)

	evt, err := events.New(eventType, a.ID.String(), actorID, a)
	if err == nil {
		err = s.publisher.Publish(ctx, evt)
	}
	if err != nil {
		s.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", a.ID.String()).
			Msg("failed to publish appointment event")
	}
}

// -- Lists --

// Cached lists are keyed by a per-user generation. A write starts a new
// generation, so a list read that raced the write is stored under a key no
// later read uses.
const generationTTL = 24 * time.Hour

func generationKey(userID uuid.UUID) string {
	return "appointments:gen:" + userID.String()
}

func cacheKey(userID uuid.UUID, generation string, view View) string {
	return "appointments:" + userID.String() + ":" + generation + ":" + string(view)
}

func (s *Service) caching() bool {
	return s.cache != nil && s.opts.CacheTTL > 0
}

// generation returns the user's current cache generation, starting one when
// none exists.
func (s *Service) generation(ctx context.Context, userID uuid.UUID) (string, error) {
	data, ok, err := s.cache.Get(ctx, generationKey(userID))
	if err != nil {
		return "", err
	}
	if ok {
		return string(data), nil
	}
	gen := uuid.NewString()
	if err := s.cache.Set(ctx, generationKey(userID), []byte(gen), generationTTL); err != nil {
		return "", err
	}
	return gen, nil
}

func (s *Service) invalidate(ctx context.Context, userIDs ...uuid.UUID) {
	if !s.caching() {
		return
	}
	for _, id := range userIDs {
		if err := s.cache.Set(ctx, generationKey(id), []byte(uuid.NewString()), generationTTL); err != nil {
			s.logger.Warn().Err(err).Str("user_id", id.String()).Msg("failed to invalidate appointment cache")
		}
	}
}

// List returns the session user's appointments for a view. Patients use
// upcoming, completed, canceled and all; doctors use requests, approved,
// canceled, complete and all. Results are cached per user and view until the
// TTL passes or either participant writes.
func (s *Service) List(ctx context.Context, session *auth.Session, view View) ([]*Appointment, error) {
	if view == "" {
		view = ViewAll
	}
	views := patientViews
	if session.IsDoctor() {
		views = doctorViews
	}
	statuses, ok := views[view]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidView, view)
	}

	var key string
	if s.caching() {
		gen, err := s.generation(ctx, session.UserID)
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", session.UserID.String()).Msg("appointment cache generation unavailable")
		} else {
			key = cacheKey(session.UserID, gen, view)
		}
	}
	if key != "" {
		var cached []*Appointment
		hit, err := cache.GetJSON(ctx, s.cache, key, &cached)
		if err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("appointment cache read failed")
		}
		if hit {
			return cached, nil
		}
	}

	var list []*Appointment
	var err error
	if session.IsDoctor() {
		list, err = s.appointments.ListByDoctor(ctx, session.UserID, statuses)
	} else {
		list, err = s.appointments.ListByPatient(ctx, session.UserID, statuses)
	}
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*Appointment{}
	}
	sortAppointments(list)
	if err := s.attachCounterparts(ctx, session, list); err != nil {
		return nil, err
	}

	if key != "" {
		if err := cache.SetJSON(ctx, s.cache, key, list, s.opts.CacheTTL); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("appointment cache write failed")
		}
	}
	return list, nil
}

func (s *Service) attachCounterparts(ctx context.Context, session *auth.Session, list []*Appointment) error {
	if len(list) == 0 {
		return nil
	}
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, a := range list {
		id := a.DoctorID
		if session.IsDoctor() {
			id = a.PatientID
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	summaries, err := s.directory.Summaries(ctx, ids)
	if err != nil {
		return fmt.Errorf("load counterparts: %w", err)
	}
	for _, a := range list {
		id := a.DoctorID
		if session.IsDoctor() {
			id = a.PatientID
		}
		if sum, ok := summaries[id]; ok {
			sum := sum
			a.Counterpart = &sum
		}
	}
	return nil
}

// sortAppointments orders by day, then slot position in the catalog, then
// booking time.
func sortAppointments(list []*Appointment) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.DateKey() != b.DateKey() {
			return a.DateKey() < b.DateKey()
		}
		ai, bi := availability.SlotIndex(a.Time), availability.SlotIndex(b.Time)
		if ai != bi {
			return ai < bi
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

// SweepCompleted marks confirmed appointments dated before today (UTC) as
// completed and returns how many moved.
func (s *Service) SweepCompleted(ctx context.Context) (int, error) {
	today := s.now().UTC().Format(availability.DateKeyLayout)
	done, err := s.appointments.CompleteConfirmedBefore(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("complete past appointments: %w", err)
	}
	for _, a := range done {
		s.afterWrite(ctx, "", EventCompleted, a)
	}
	if len(done) > 0 {
		s.logger.Info().Int("count", len(done)).Str("before", today).Msg("completed past appointments")
	}
	return len(done), nil
}
