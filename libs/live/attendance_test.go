package live

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name    string
		from    StudentStatus
		event   EventType
		want    StudentStatus
		changed bool
	}{
		{"checkin boards", StudentNotBoarded, EventCheckin, StudentBoarded, true},
		{"checkout drops", StudentBoarded, EventCheckout, StudentDropped, true},
		{"checkout before boarding", StudentNotBoarded, EventCheckout, StudentNotBoarded, false},
		{"double checkin", StudentBoarded, EventCheckin, StudentBoarded, false},
		{"dropped is terminal for checkin", StudentDropped, EventCheckin, StudentDropped, false},
		{"dropped is terminal for checkout", StudentDropped, EventCheckout, StudentDropped, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := Transition(tt.from, tt.event)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)
		})
	}
}

func TestStatusSequenceIsMonotonic(t *testing.T) {
	// Whatever the event stream, the observed states must stay a prefix of
	// not_boarded, boarded, dropped.
	rank := map[StudentStatus]int{StudentNotBoarded: 0, StudentBoarded: 1, StudentDropped: 2}
	events := []EventType{EventCheckout, EventCheckin, EventCheckin, EventCheckout, EventCheckin, EventCheckout}

	current := StudentNotBoarded
	for _, ev := range events {
		next, _ := Transition(current, ev)
		assert.GreaterOrEqual(t, rank[next], rank[current])
		current = next
	}
	assert.Equal(t, StudentDropped, current)
}

func TestRecountCountsDroppedAsBoarded(t *testing.T) {
	students := []*StudentLiveState{
		{ID: "a", Status: StudentNotBoarded},
		{ID: "b", Status: StudentBoarded},
		{ID: "c", Status: StudentDropped},
		{ID: "d", Status: StudentDropped},
	}

	boarded, dropped := Recount(students)

	assert.Equal(t, 3, boarded)
	assert.Equal(t, 2, dropped)
}

func TestCheckCounters(t *testing.T) {
	snap := activeSnapshot()
	assert.True(t, CheckCounters(snap))
	assert.True(t, CheckCounters(nil))

	snap.Trip.StudentsBoarded = 2
	assert.False(t, CheckCounters(snap))

	snap.Trip.StudentsBoarded = 0
	snap.Trip.StudentsDropped = 7
	assert.False(t, CheckCounters(snap))
}

func TestCountersStayConsistentThroughTrip(t *testing.T) {
	cur := activeSnapshot()
	events := []StudentEvent{
		{StudentID: "s1", Event: EventCheckin},
		{StudentID: "s2", Event: EventCheckin},
		{StudentID: "s1", Event: EventCheckout},
		{StudentID: "s2", Event: EventCheckout},
		{StudentID: "s3", Event: EventCheckin},
		{StudentID: "s3", Event: EventCheckin}, // duplicate scan
	}
	for i := range events {
		cur = Apply(cur, Message{Kind: KindStudentStatus, Student: &events[i]})
		assert.True(t, CheckCounters(cur))
	}
	assert.Equal(t, 3, cur.Trip.StudentsBoarded)
	assert.Equal(t, 2, cur.Trip.StudentsDropped)
}

func TestSeedStudents(t *testing.T) {
	students := SeedStudents([]StudentRef{{ID: "s1", Name: "Asha"}, {ID: "s2", Name: "Binu"}})

	assert.Len(t, students, 2)
	for _, s := range students {
		assert.Equal(t, StudentNotBoarded, s.Status)
		assert.Nil(t, s.BoardedAt)
		assert.Nil(t, s.DroppedAt)
	}
}
