package live

import (
	log "github.com/sirupsen/logrus"
)

// Boarding states only move forward within one trip:
// not_boarded -> boarded -> dropped. A checkout before boarding, a repeated
// checkin and any event after dropped are all no-ops.

// Transition returns the status reached from current by the given scan
// event, and whether that is a change.
func Transition(current StudentStatus, event EventType) (StudentStatus, bool) {
	switch {
	case event == EventCheckin && current == StudentNotBoarded:
		return StudentBoarded, true
	case event == EventCheckout && current == StudentBoarded:
		return StudentDropped, true
	default:
		return current, false
	}
}

// advanceStudent applies one attendance event to a copy of the student's
// state, stamping the matching timestamp when the transition fires.
func advanceStudent(s StudentLiveState, ev *StudentEvent) (StudentLiveState, bool) {
	next, changed := Transition(s.Status, ev.Event)
	if !changed {
		return s, false
	}
	s.Status = next
	switch next {
	case StudentBoarded:
		s.BoardedAt = ev.Timestamp
	case StudentDropped:
		s.DroppedAt = ev.Timestamp
	}
	return s, true
}

// Recount derives the trip aggregates from the student set. A dropped
// student has necessarily boarded, so it counts into both totals.
func Recount(students []*StudentLiveState) (boarded, dropped int) {
	for _, s := range students {
		switch s.Status {
		case StudentBoarded:
			boarded++
		case StudentDropped:
			boarded++
			dropped++
		}
	}
	return boarded, dropped
}

// CheckCounters verifies the aggregate invariant on a snapshot and logs a
// warning when the external stream drifted. Returns true when consistent.
func CheckCounters(s *LiveStatus) bool {
	if s == nil || s.Trip == nil {
		return true
	}
	boarded, dropped := Recount(s.Students)
	if s.Trip.StudentsBoarded != boarded || s.Trip.StudentsDropped != dropped {
		log.WithFields(log.Fields{
			"trip_id": s.Trip.ID,
			"boarded": s.Trip.StudentsBoarded,
			"dropped": s.Trip.StudentsDropped,
		}).Warn("Trip counters out of sync with student states")
		return false
	}
	if s.Trip.StudentsBoarded > s.Trip.TotalStudents || s.Trip.StudentsDropped > s.Trip.TotalStudents {
		log.WithField("trip_id", s.Trip.ID).Warn("Trip counters exceed the roster size")
		return false
	}
	return true
}

// StudentRef identifies one roster entry used to seed a trip's live set.
type StudentRef struct {
	ID   string
	Name string
}

// SeedStudents builds the initial live set for a trip start: everyone
// not_boarded, no timestamps. Attendance events never grow this set.
func SeedStudents(roster []StudentRef) []*StudentLiveState {
	students := make([]*StudentLiveState, 0, len(roster))
	for _, r := range roster {
		students = append(students, &StudentLiveState{
			ID:     r.ID,
			Name:   r.Name,
			Status: StudentNotBoarded,
		})
	}
	return students
}
