package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/skinsense/telehealth/internal/domain/identity"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether no further transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// Appointment maps to the appointments table. Date is the ISO-8601 string the
// patient booked; Time is a slot label from the availability catalog.
type Appointment struct {
	ID          uuid.UUID         `db:"id" json:"id"`
	DoctorID    uuid.UUID         `db:"doctor_id" json:"doctorId"`
	PatientID   uuid.UUID         `db:"patient_id" json:"patientId"`
	Date        string            `db:"date" json:"date"`
	Time        string            `db:"time" json:"time"`
	Status      Status            `db:"status" json:"status"`
	CreatedAt   time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt   *time.Time        `db:"updated_at" json:"updatedAt,omitempty"`
	CanceledAt  *time.Time        `db:"canceled_at" json:"canceledAt,omitempty"`
	Counterpart *identity.Summary `json:"counterpart,omitempty"`
}

// Involves reports whether the user is the doctor or the patient.
func (a *Appointment) Involves(userID uuid.UUID) bool {
	return a.DoctorID == userID || a.PatientID == userID
}

// DateKey is the YYYY-MM-DD prefix of Date.
func (a *Appointment) DateKey() string {
	if len(a.Date) < 10 {
		return a.Date
	}
	return a.Date[:10]
}

type BookRequest struct {
	DoctorID uuid.UUID `json:"doctorId"`
	Date     string    `json:"date"`
	Time     string    `json:"time"`
}

type RescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// View names a filtered list. Patients and doctors have different views.
type View string

const (
	ViewAll       View = "all"
	ViewUpcoming  View = "upcoming"
	ViewCompleted View = "completed"
	ViewCanceled  View = "canceled"
	ViewRequests  View = "requests"
	ViewApproved  View = "approved"
	ViewComplete  View = "complete"
)

var patientViews = map[View][]Status{
	ViewUpcoming:  {StatusPending, StatusConfirmed},
	ViewCompleted: {StatusCompleted},
	ViewCanceled:  {StatusCanceled},
	ViewAll:       nil,
}

var doctorViews = map[View][]Status{
	ViewRequests: {StatusPending},
	ViewApproved: {StatusConfirmed},
	ViewCanceled: {StatusCanceled},
	ViewComplete: {StatusCompleted},
	ViewAll:      nil,
}
