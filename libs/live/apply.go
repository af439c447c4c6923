package live

import (
	log "github.com/sirupsen/logrus"
)

// Apply folds one push-channel message into the previous snapshot and
// returns the next one. It never mutates prev; callers can keep old
// snapshots for diffing. Unknown kinds return prev unchanged. The stream is
// only partially trusted, so invariant violations (unknown student, stale
// location, inconsistent snapshot) degrade to a logged no-op instead of an
// error.
func Apply(prev *LiveStatus, msg Message) *LiveStatus {
	switch msg.Kind {
	case KindInitialData, KindRefreshData:
		return normalizeSnapshot(msg.Snapshot)

	case KindLocationUpdate:
		if prev == nil || msg.Location == nil {
			return prev
		}
		if prev.Location != nil && msg.Location.Timestamp.Before(prev.Location.Timestamp) {
			log.WithField("kind", msg.Kind).Warn("Dropping location older than current sample")
			return prev
		}
		next := *prev
		next.Location = msg.Location
		return &next

	case KindTripStatus:
		if msg.Trip == nil {
			return prev
		}
		next := LiveStatus{}
		if prev != nil {
			next = *prev
		}
		next.HasActiveTrip = msg.Trip.HasActiveTrip
		next.Trip = msg.Trip.Trip
		if !next.HasActiveTrip {
			// Trip ended: the live set dies with it.
			next.Trip = nil
			next.Location = nil
			next.Students = nil
		}
		return &next

	case KindStudentStatus:
		if prev == nil || msg.Student == nil {
			return prev
		}
		return applyStudentEvent(prev, msg.Student)

	default:
		return prev
	}
}

// applyStudentEvent advances one student's boarding state and recounts the
// trip aggregates. Students not touched by the event keep pointer identity,
// which is what makes downstream diffing cheap.
func applyStudentEvent(prev *LiveStatus, ev *StudentEvent) *LiveStatus {
	i := prev.findStudent(ev.StudentID)
	if i < 0 {
		log.WithField("student_id", ev.StudentID).Warn("Attendance event for student outside the live set")
		return prev
	}

	updated, changed := advanceStudent(*prev.Students[i], ev)
	if !changed {
		return prev
	}

	students := make([]*StudentLiveState, len(prev.Students))
	copy(students, prev.Students)
	students[i] = &updated

	next := *prev
	next.Students = students
	if next.Trip != nil {
		trip := *next.Trip
		trip.StudentsBoarded, trip.StudentsDropped = Recount(students)
		next.Trip = &trip
	}
	return &next
}

// normalizeSnapshot enforces the snapshot invariant: without an active trip
// there is no trip, no location and no live students.
func normalizeSnapshot(snap *LiveStatus) *LiveStatus {
	if snap == nil {
		return nil
	}
	if !snap.HasActiveTrip && (snap.Trip != nil || snap.Location != nil || len(snap.Students) > 0) {
		log.Warn("Snapshot without active trip carries trip data, discarding it")
		return &LiveStatus{}
	}
	if snap.Trip != nil {
		boarded, dropped := Recount(snap.Students)
		if snap.Trip.StudentsBoarded != boarded || snap.Trip.StudentsDropped != dropped {
			log.WithFields(log.Fields{
				"reported_boarded": snap.Trip.StudentsBoarded,
				"reported_dropped": snap.Trip.StudentsDropped,
				"counted_boarded":  boarded,
				"counted_dropped":  dropped,
			}).Warn("Snapshot counters disagree with student states, recounting")
			trip := *snap.Trip
			trip.StudentsBoarded = boarded
			trip.StudentsDropped = dropped
			fixed := *snap
			fixed.Trip = &trip
			return &fixed
		}
	}
	return snap
}
