package live

import (
	"math"
	"time"
)

// TripStatus is the lifecycle state of a bus trip.
type TripStatus string

const (
	TripScheduled  TripStatus = "scheduled"
	TripInProgress TripStatus = "in_progress"
	TripCompleted  TripStatus = "completed"
	TripCancelled  TripStatus = "cancelled"
)

// TripType distinguishes morning pickup, evening drop and special trips.
type TripType string

const (
	TripMorning TripType = "morning"
	TripEvening TripType = "evening"
	TripSpecial TripType = "special"
)

// StudentStatus is a student's boarding state within one trip.
type StudentStatus string

const (
	StudentNotBoarded StudentStatus = "not_boarded"
	StudentBoarded    StudentStatus = "boarded"
	StudentDropped    StudentStatus = "dropped"
)

type Trip struct {
	ID             string     `json:"id"`
	Status         TripStatus `json:"status"`
	Type           TripType   `json:"trip_type"`
	RouteName      string     `json:"route_name"`
	DriverName     string     `json:"driver_name"`
	ConductorName  string     `json:"conductor_name"`
	ScheduledStart *time.Time `json:"scheduled_start,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`

	TotalStudents   int `json:"total_students"`
	StudentsBoarded int `json:"students_boarded"`
	StudentsDropped int `json:"students_dropped"`
}

type LocationSample struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     float64   `json:"speed"`   // km/h
	Heading   float64   `json:"heading"` // degrees, 0-360
	Timestamp time.Time `json:"timestamp"`
}

type StudentLiveState struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Status    StudentStatus `json:"status"`
	BoardedAt *time.Time    `json:"boarded_at,omitempty"`
	DroppedAt *time.Time    `json:"dropped_at,omitempty"`
}

// LiveStatus is one bus's current snapshot: trip, position and boarding
// states. It is replaced as a whole by the reducer, never mutated field by
// field from outside. If HasActiveTrip is false the other fields are empty.
type LiveStatus struct {
	HasActiveTrip bool                `json:"has_active_trip"`
	Trip          *Trip               `json:"trip"`
	Location      *LocationSample     `json:"location"`
	Students      []*StudentLiveState `json:"students"`
}

// findStudent returns the index of the student with the given id, or -1.
func (s *LiveStatus) findStudent(id string) int {
	for i, st := range s.Students {
		if st.ID == id {
			return i
		}
	}
	return -1
}

// Student returns the live state of one student, or nil if unknown.
func (s *LiveStatus) Student(id string) *StudentLiveState {
	if s == nil {
		return nil
	}
	if i := s.findStudent(id); i >= 0 {
		return s.Students[i]
	}
	return nil
}

// Stop is one stop of a route under editing. Until persisted a stop carries
// a temporary negative client id. Order is 1-based and contiguous.
type Stop struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Order     int     `json:"order"`
}

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

const earthRadiusM = 6371000.0

// DistanceTo returns the haversine distance to q in meters.
func (p LatLng) DistanceTo(q LatLng) float64 {
	lat1 := p.Latitude * math.Pi / 180
	lat2 := q.Latitude * math.Pi / 180
	dLat := (q.Latitude - p.Latitude) * math.Pi / 180
	dLon := (q.Longitude - p.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}
