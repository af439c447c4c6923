package live

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind tags an inbound push-channel message.
type Kind string

const (
	KindInitialData    Kind = "initial_data"
	KindRefreshData    Kind = "refresh_data"
	KindLocationUpdate Kind = "location_update"
	KindTripStatus     Kind = "trip_status"
	KindStudentStatus  Kind = "student_status"
)

// EventType is the attendance scan type carried by a student_status message.
type EventType string

const (
	EventCheckin  EventType = "checkin"
	EventCheckout EventType = "checkout"
)

// TripChange is the payload of a trip_status message.
type TripChange struct {
	HasActiveTrip bool  `json:"has_active_trip"`
	Trip          *Trip `json:"trip"`
}

// StudentEvent is the payload of a student_status message. Besides the
// fields the reducer needs it carries the scan metadata the backend
// attaches (conductor, scan location, manual flag).
type StudentEvent struct {
	StudentID   string     `json:"student_id"`
	Event       EventType  `json:"event_type"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	ConductorID string     `json:"conductor_id,omitempty"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
	Manual      bool       `json:"is_manual,omitempty"`
}

// Message is one decoded push-channel message. Exactly one payload field is
// set, matching Kind; for unknown kinds all payloads are nil.
type Message struct {
	Kind     Kind
	Snapshot *LiveStatus     // initial_data, refresh_data
	Location *LocationSample // location_update
	Trip     *TripChange     // trip_status
	Student  *StudentEvent   // student_status
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeMessage parses a raw push-channel frame. A frame whose type is not
// in the known set decodes successfully into a Message with just the Kind
// set, so the reducer can ignore it; a frame that is not valid JSON, or
// whose data does not match its declared type, is an error and should be
// dropped by the caller.
func DecodeMessage(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, fmt.Errorf("malformed frame: %v", err)
	}
	if env.Type == "" {
		return Message{}, fmt.Errorf("frame without type")
	}

	msg := Message{Kind: Kind(env.Type)}
	switch msg.Kind {
	case KindInitialData, KindRefreshData:
		snap := &LiveStatus{}
		if err := json.Unmarshal(env.Data, snap); err != nil {
			return Message{}, fmt.Errorf("malformed %s payload: %v", env.Type, err)
		}
		msg.Snapshot = snap
	case KindLocationUpdate:
		loc := &LocationSample{}
		if err := json.Unmarshal(env.Data, loc); err != nil {
			return Message{}, fmt.Errorf("malformed location payload: %v", err)
		}
		msg.Location = loc
	case KindTripStatus:
		change := &TripChange{}
		if err := json.Unmarshal(env.Data, change); err != nil {
			return Message{}, fmt.Errorf("malformed trip payload: %v", err)
		}
		msg.Trip = change
	case KindStudentStatus:
		ev := &StudentEvent{}
		if err := json.Unmarshal(env.Data, ev); err != nil {
			return Message{}, fmt.Errorf("malformed student payload: %v", err)
		}
		msg.Student = ev
	}
	return msg, nil
}
