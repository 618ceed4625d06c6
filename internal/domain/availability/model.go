package availability

import (
	"time"

	"github.com/google/uuid"
)

// Catalog is the fixed, ordered set of bookable slot labels.
var Catalog = []string{
	"09:00 AM",
	"10:00 AM",
	"11:00 AM",
	"01:00 PM",
	"02:00 PM",
	"03:00 PM",
	"04:00 PM",
	"07:00 PM",
	"08:00 PM",
}

var catalogIndex = func() map[string]int {
	m := make(map[string]int, len(Catalog))
	for i, label := range Catalog {
		m[label] = i
	}
	return m
}()

// InCatalog reports whether label is one of the catalog slots.
func InCatalog(label string) bool {
	_, ok := catalogIndex[label]
	return ok
}

// SlotIndex returns the label's position in the catalog, or -1.
func SlotIndex(label string) int {
	if i, ok := catalogIndex[label]; ok {
		return i
	}
	return -1
}

// DateKeyLayout is the YYYY-MM-DD layout of ledger day keys.
const DateKeyLayout = "2006-01-02"

// Day is one doctor's slot set for one date. Defaulted days were never
// written and report the whole catalog.
type Day struct {
	DoctorID       uuid.UUID  `db:"doctor_id" json:"doctorId"`
	DateKey        string     `db:"date_key" json:"dateKey"`
	AvailableSlots []string   `db:"available_slots" json:"availableSlots"`
	UpdatedAt      *time.Time `db:"updated_at" json:"updatedAt,omitempty"`
	Defaulted      bool       `json:"defaulted"`
}

// SlotState is one catalog label with its availability flag.
type SlotState struct {
	Label     string `json:"label"`
	Available bool   `json:"available"`
}

type SetRequest struct {
	Slots []string `json:"slots"`
}
