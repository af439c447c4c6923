package live

import (
	"encoding/json"
	"io/ioutil"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func init() {
	// To prevent log output during tests
	log.SetOutput(ioutil.Discard)
}

func ts(minute int) time.Time {
	return time.Date(2024, time.March, 4, 7, minute, 0, 0, time.UTC)
}

func activeSnapshot() *LiveStatus {
	started := ts(0)
	return &LiveStatus{
		HasActiveTrip: true,
		Trip: &Trip{
			ID:            "trip-1",
			Status:        TripInProgress,
			Type:          TripMorning,
			RouteName:     "Route A - North City",
			DriverName:    "R. Kumar",
			ConductorName: "S. Devi",
			StartedAt:     &started,
			TotalStudents: 3,
		},
		Location: &LocationSample{Latitude: 12.97, Longitude: 77.59, Speed: 24, Heading: 90, Timestamp: ts(1)},
		Students: []*StudentLiveState{
			{ID: "s1", Name: "Asha", Status: StudentNotBoarded},
			{ID: "s2", Name: "Binu", Status: StudentNotBoarded},
			{ID: "s3", Name: "Chand", Status: StudentNotBoarded},
		},
	}
}

func snapshotMessage(kind Kind, snap *LiveStatus) Message {
	return Message{Kind: kind, Snapshot: snap}
}

func TestApplyInitialDataReplacesEverything(t *testing.T) {
	prev := &LiveStatus{HasActiveTrip: false}
	snap := activeSnapshot()

	next := Apply(prev, snapshotMessage(KindInitialData, snap))

	assert.True(t, next.HasActiveTrip)
	assert.Equal(t, "trip-1", next.Trip.ID)
	assert.Len(t, next.Students, 3)
}

func TestApplyInitialDataIsIdempotent(t *testing.T) {
	snap := activeSnapshot()
	once := Apply(nil, snapshotMessage(KindInitialData, snap))
	twice := Apply(once, snapshotMessage(KindInitialData, snap))

	assert.Equal(t, once, twice)
}

func TestApplyLocationUpdateTouchesOnlyLocation(t *testing.T) {
	prev := activeSnapshot()
	loc := &LocationSample{Latitude: 12.98, Longitude: 77.60, Speed: 31, Heading: 84, Timestamp: ts(2)}

	next := Apply(prev, Message{Kind: KindLocationUpdate, Location: loc})

	assert.Equal(t, loc, next.Location)
	// Merge locality: trip and students keep identity.
	assert.Same(t, prev.Trip, next.Trip)
	for i := range prev.Students {
		assert.Same(t, prev.Students[i], next.Students[i])
	}
	// And prev itself was not mutated.
	assert.Equal(t, ts(1), prev.Location.Timestamp)
}

func TestApplyLocationUpdateWithoutTripIsNil(t *testing.T) {
	loc := &LocationSample{Latitude: 1, Longitude: 2, Timestamp: ts(2)}
	assert.Nil(t, Apply(nil, Message{Kind: KindLocationUpdate, Location: loc}))
}

func TestApplyLocationUpdateDropsStaleSample(t *testing.T) {
	prev := activeSnapshot()
	stale := &LocationSample{Latitude: 0, Longitude: 0, Timestamp: ts(0)}

	next := Apply(prev, Message{Kind: KindLocationUpdate, Location: stale})

	assert.Same(t, prev, next)
}

func TestApplyTripStatusEndSweepsLiveSet(t *testing.T) {
	prev := activeSnapshot()

	next := Apply(prev, Message{Kind: KindTripStatus, Trip: &TripChange{HasActiveTrip: false}})

	assert.False(t, next.HasActiveTrip)
	assert.Nil(t, next.Trip)
	assert.Nil(t, next.Location)
	assert.Empty(t, next.Students)
}

func TestApplyTripStatusReplacesTripOnly(t *testing.T) {
	prev := activeSnapshot()
	updated := *prev.Trip
	updated.Status = TripInProgress
	updated.RouteName = "Route B"

	next := Apply(prev, Message{Kind: KindTripStatus, Trip: &TripChange{HasActiveTrip: true, Trip: &updated}})

	assert.Equal(t, "Route B", next.Trip.RouteName)
	assert.Same(t, prev.Location, next.Location)
	assert.Equal(t, prev.Students, next.Students)
}

func TestApplyStudentStatusMergesOneStudent(t *testing.T) {
	prev := activeSnapshot()
	when := ts(3)

	next := Apply(prev, Message{Kind: KindStudentStatus, Student: &StudentEvent{
		StudentID: "s2",
		Event:     EventCheckin,
		Timestamp: &when,
	}})

	assert.Equal(t, StudentBoarded, next.Student("s2").Status)
	assert.Equal(t, &when, next.Student("s2").BoardedAt)
	// Untouched students keep pointer identity for cheap diffing.
	assert.Same(t, prev.Students[0], next.Students[0])
	assert.Same(t, prev.Students[2], next.Students[2])
	assert.NotSame(t, prev.Students[1], next.Students[1])
	// Counters follow the transition.
	assert.Equal(t, 1, next.Trip.StudentsBoarded)
	assert.Equal(t, 0, next.Trip.StudentsDropped)
	// The previous snapshot stays as it was.
	assert.Equal(t, StudentNotBoarded, prev.Student("s2").Status)
	assert.Equal(t, 0, prev.Trip.StudentsBoarded)
}

func TestApplyStudentStatusUnknownStudentIsNoop(t *testing.T) {
	prev := activeSnapshot()

	next := Apply(prev, Message{Kind: KindStudentStatus, Student: &StudentEvent{
		StudentID: "ghost",
		Event:     EventCheckin,
	}})

	assert.Same(t, prev, next)
}

func TestApplyStudentStatusWithoutTripIsNil(t *testing.T) {
	next := Apply(nil, Message{Kind: KindStudentStatus, Student: &StudentEvent{StudentID: "s1", Event: EventCheckin}})
	assert.Nil(t, next)
}

func TestApplyUnknownKindIsIdentity(t *testing.T) {
	prev := activeSnapshot()
	assert.Same(t, prev, Apply(prev, Message{Kind: "pong"}))
	assert.Nil(t, Apply(nil, Message{Kind: "pong"}))
}

func TestApplyReferentialTransparency(t *testing.T) {
	prev := activeSnapshot()
	when := ts(5)
	msg := Message{Kind: KindStudentStatus, Student: &StudentEvent{StudentID: "s1", Event: EventCheckin, Timestamp: &when}}

	a := Apply(prev, msg)
	b := Apply(prev, msg)

	assert.Equal(t, a, b)
}

func TestApplySnapshotNormalizesIdleWithLeftovers(t *testing.T) {
	dirty := activeSnapshot()
	dirty.HasActiveTrip = false

	next := Apply(nil, snapshotMessage(KindRefreshData, dirty))

	assert.False(t, next.HasActiveTrip)
	assert.Nil(t, next.Trip)
	assert.Empty(t, next.Students)
}

func TestApplySnapshotRecountsDriftedCounters(t *testing.T) {
	snap := activeSnapshot()
	snap.Students[0].Status = StudentBoarded
	snap.Trip.StudentsBoarded = 9

	next := Apply(nil, snapshotMessage(KindInitialData, snap))

	assert.Equal(t, 1, next.Trip.StudentsBoarded)
	assert.Equal(t, 0, next.Trip.StudentsDropped)
}

func TestDecodeMessageRoundTrip(t *testing.T) {
	snap := activeSnapshot()
	data, err := json.Marshal(snap)
	assert.NoError(t, err)

	raw := []byte(`{"type":"initial_data","data":` + string(data) + `}`)
	msg, err := DecodeMessage(raw)
	assert.NoError(t, err)
	assert.Equal(t, KindInitialData, msg.Kind)
	assert.Equal(t, "trip-1", msg.Snapshot.Trip.ID)
}

func TestDecodeMessageErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{`},
		{"missing type", `{"data":{}}`},
		{"payload mismatch", `{"type":"location_update","data":"nope"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestDecodeMessageUnknownKind(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"type":"pong","data":{}}`))
	assert.NoError(t, err)
	assert.Equal(t, Kind("pong"), msg.Kind)
	assert.Nil(t, msg.Snapshot)
}
