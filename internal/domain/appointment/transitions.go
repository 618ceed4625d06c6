package appointment

import "github.com/skinsense/telehealth/internal/platform/auth"

type Action string

const (
	ActionApprove    Action = "approve"
	ActionReject     Action = "reject"
	ActionCancel     Action = "cancel"
	ActionComplete   Action = "complete"
	ActionReschedule Action = "reschedule"
)

// legalEdges is the complete status graph. completed and canceled have no
// outgoing edges.
var legalEdges = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCanceled, StatusPending},
	StatusConfirmed: {StatusCompleted, StatusCanceled, StatusPending},
}

// CanTransition reports whether from -> to is an edge of the status graph.
func CanTransition(from, to Status) bool {
	for _, s := range legalEdges[from] {
		if s == to {
			return true
		}
	}
	return false
}

type edge struct {
	from []Status
	to   Status
}

// transitions lists, per action and actor role, which statuses the action
// may start from and where it lands.
var transitions = map[Action]map[auth.Role]edge{
	ActionApprove: {
		auth.RoleDoctor: {from: []Status{StatusPending}, to: StatusConfirmed},
	},
	ActionReject: {
		auth.RoleDoctor: {from: []Status{StatusPending}, to: StatusCanceled},
	},
	ActionCancel: {
		auth.RolePatient: {from: []Status{StatusPending, StatusConfirmed}, to: StatusCanceled},
		auth.RoleDoctor:  {from: []Status{StatusConfirmed}, to: StatusCanceled},
	},
	ActionComplete: {
		auth.RoleDoctor: {from: []Status{StatusConfirmed}, to: StatusCompleted},
	},
	ActionReschedule: {
		auth.RolePatient: {from: []Status{StatusPending, StatusConfirmed}, to: StatusPending},
	},
}

const (
	EventBooked      = "appointment.booked"
	EventConfirmed   = "appointment.confirmed"
	EventRejected    = "appointment.rejected"
	EventCanceled    = "appointment.canceled"
	EventRescheduled = "appointment.rescheduled"
	EventCompleted   = "appointment.completed"
)

var eventTypes = map[Action]string{
	ActionApprove:    EventConfirmed,
	ActionReject:     EventRejected,
	ActionCancel:     EventCanceled,
	ActionComplete:   EventCompleted,
	ActionReschedule: EventRescheduled,
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
