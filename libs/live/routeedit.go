package live

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Place is a named point returned by the geocoding collaborator.
type Place struct {
	Name      string
	Address   string
	Latitude  float64
	Longitude float64
}

// Geocoder is the external reverse-geocoding and place-search service used
// while editing a route. Both calls may fail; the editor degrades instead
// of blocking on them.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (Place, error)
	Search(ctx context.Context, query string) ([]Place, error)
}

// StopSaver is the external "replace stops" collaborator. The editor hands
// it the full ordered list and does not retry on failure.
type StopSaver interface {
	ReplaceStops(ctx context.Context, routeID int64, stops []Stop) error
}

// RouteEditor maintains the ordered stop list of a single route. It is
// single-writer: one editor per route at a time, no internal locking.
type RouteEditor struct {
	routeID  int64
	geocoder Geocoder
	saver    StopSaver

	stops      []Stop
	addingMode bool
	nextTempID int64
}

// NewRouteEditor starts an editing session over the route's persisted
// stops. Orders are renumbered on load so a gappy list from the backend
// cannot break the contiguity invariant.
func NewRouteEditor(routeID int64, stops []Stop, geocoder Geocoder, saver StopSaver) *RouteEditor {
	e := &RouteEditor{
		routeID:    routeID,
		geocoder:   geocoder,
		saver:      saver,
		stops:      make([]Stop, len(stops)),
		nextTempID: -1,
	}
	copy(e.stops, stops)
	e.renumber()
	return e
}

// AddStop appends a stop at the end of the route. When no name is given it
// asks the geocoder for one; if that fails the stop still gets created with
// a placeholder name and the raw coordinates as its address.
func (e *RouteEditor) AddStop(ctx context.Context, lat, lng float64, name, address string) Stop {
	if name == "" {
		place, err := e.geocoder.Reverse(ctx, lat, lng)
		if err != nil {
			log.WithField("err", err).Warn("Reverse geocoding failed, using placeholder stop name")
			name = fmt.Sprintf("Stop %d", len(e.stops)+1)
			address = fmt.Sprintf("%.6f, %.6f", lat, lng)
		} else {
			name = place.Name
			if name == "" {
				name = fmt.Sprintf("Stop %d", len(e.stops)+1)
			}
			if address == "" {
				address = place.Address
			}
		}
	}

	stop := Stop{
		ID:        e.nextTempID,
		Name:      name,
		Address:   address,
		Latitude:  lat,
		Longitude: lng,
		Order:     len(e.stops) + 1,
	}
	e.nextTempID--
	e.stops = append(e.stops, stop)
	return stop
}

// MoveStop drags a stop to a new position. Its place in the list, and so
// its order, does not change.
func (e *RouteEditor) MoveStop(index int, lat, lng float64) error {
	if index < 0 || index >= len(e.stops) {
		return fmt.Errorf("stop index %d out of range", index)
	}
	e.stops[index].Latitude = lat
	e.stops[index].Longitude = lng
	return nil
}

func (e *RouteEditor) RenameStop(index int, name string) error {
	if index < 0 || index >= len(e.stops) {
		return fmt.Errorf("stop index %d out of range", index)
	}
	e.stops[index].Name = name
	return nil
}

// DeleteStop removes a stop and renumbers the remainder back to a
// contiguous 1..N sequence.
func (e *RouteEditor) DeleteStop(index int) error {
	if index < 0 || index >= len(e.stops) {
		return fmt.Errorf("stop index %d out of range", index)
	}
	e.stops = append(e.stops[:index], e.stops[index+1:]...)
	e.renumber()
	return nil
}

// ToggleAddingMode flips how the next map click is interpreted (add a stop
// vs. plain deselect) and returns the new mode. Pure UI state.
func (e *RouteEditor) ToggleAddingMode() bool {
	e.addingMode = !e.addingMode
	return e.addingMode
}

func (e *RouteEditor) AddingMode() bool {
	return e.addingMode
}

// Stops returns a copy of the current ordered list.
func (e *RouteEditor) Stops() []Stop {
	out := make([]Stop, len(e.stops))
	copy(out, e.stops)
	return out
}

func (e *RouteEditor) Len() int {
	return len(e.stops)
}

// Path derives the connecting geometry: the stop positions in list order.
func (e *RouteEditor) Path() []LatLng {
	path := make([]LatLng, len(e.stops))
	for i, s := range e.stops {
		path[i] = LatLng{Latitude: s.Latitude, Longitude: s.Longitude}
	}
	return path
}

// PathLengthKm is the summed leg distance of the current path.
func (e *RouteEditor) PathLengthKm() float64 {
	path := e.Path()
	total := 0.0
	for i := 1; i < len(path); i++ {
		total += path[i-1].DistanceTo(path[i])
	}
	return total / 1000
}

// Save hands the current list to the replace-stops collaborator. A failure
// is returned as is; whether to retry is the caller's decision.
func (e *RouteEditor) Save(ctx context.Context) error {
	return e.saver.ReplaceStops(ctx, e.routeID, e.Stops())
}

func (e *RouteEditor) renumber() {
	for i := range e.stops {
		e.stops[i].Order = i + 1
	}
}
