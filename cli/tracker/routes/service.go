package routes

import (
	"context"
	"errors"
	"sync"

	"github.com/busfleet/livetrack/libs/live"
	log "github.com/sirupsen/logrus"
)

var ErrNoSession = errors.New("no editing session for route")

// Roster is the backend surface the editing sessions need: the persisted
// stop list and the replace-stops call. rest.Client satisfies it.
type Roster interface {
	RouteStops(ctx context.Context, routeID int64) ([]live.Stop, error)
	ReplaceStops(ctx context.Context, routeID int64, stops []live.Stop) error
}

// Service owns the route editing sessions, at most one editor per route.
// The editors themselves are single-writer; the service's lock is what
// serializes concurrent API calls onto them.
type Service struct {
	roster   Roster
	geocoder live.Geocoder

	mu      sync.Mutex
	editors map[int64]*live.RouteEditor
}

func NewService(roster Roster, geocoder live.Geocoder) *Service {
	return &Service{
		roster:   roster,
		geocoder: geocoder,
		editors:  make(map[int64]*live.RouteEditor),
	}
}

// Open starts (or restarts) an editing session over the route's persisted
// stops and returns the loaded list.
func (s *Service) Open(ctx context.Context, routeID int64) ([]live.Stop, error) {
	stops, err := s.roster.RouteStops(ctx, routeID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	editor := live.NewRouteEditor(routeID, stops, s.geocoder, s.roster)
	s.editors[routeID] = editor
	out := editor.Stops()
	s.mu.Unlock()

	log.WithFields(log.Fields{"route": routeID, "stops": len(out)}).Info("Route editing session opened")
	return out, nil
}

// Discard drops a session without saving.
func (s *Service) Discard(routeID int64) {
	s.mu.Lock()
	delete(s.editors, routeID)
	s.mu.Unlock()
}

func (s *Service) AddStop(ctx context.Context, routeID int64, lat, lng float64, name, address string) (live.Stop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	editor, ok := s.editors[routeID]
	if !ok {
		return live.Stop{}, ErrNoSession
	}
	return editor.AddStop(ctx, lat, lng, name, address), nil
}

func (s *Service) MoveStop(routeID int64, index int, lat, lng float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	editor, ok := s.editors[routeID]
	if !ok {
		return ErrNoSession
	}
	return editor.MoveStop(index, lat, lng)
}

func (s *Service) RenameStop(routeID int64, index int, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	editor, ok := s.editors[routeID]
	if !ok {
		return ErrNoSession
	}
	return editor.RenameStop(index, name)
}

func (s *Service) DeleteStop(routeID int64, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	editor, ok := s.editors[routeID]
	if !ok {
		return ErrNoSession
	}
	return editor.DeleteStop(index)
}

// Stops returns the session's current ordered list.
func (s *Service) Stops(routeID int64) ([]live.Stop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	editor, ok := s.editors[routeID]
	if !ok {
		return nil, ErrNoSession
	}
	return editor.Stops(), nil
}

// Path returns the session's connecting geometry.
func (s *Service) Path(routeID int64) ([]live.LatLng, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	editor, ok := s.editors[routeID]
	if !ok {
		return nil, ErrNoSession
	}
	return editor.Path(), nil
}

// Save persists the session's stop list through the roster backend. The
// session stays open; a failed save leaves the in-memory list untouched so
// the caller can retry.
func (s *Service) Save(ctx context.Context, routeID int64) error {
	s.mu.Lock()
	editor, ok := s.editors[routeID]
	s.mu.Unlock()
	if !ok {
		return ErrNoSession
	}
	if err := editor.Save(ctx); err != nil {
		log.WithFields(log.Fields{"route": routeID, "err": err}).Error("Failed to save route stops")
		return err
	}
	log.WithField("route", routeID).Info("Route stops saved")
	return nil
}

// SearchPlaces resolves a free-text query through the geocoding
// collaborator, for the stop search box.
func (s *Service) SearchPlaces(ctx context.Context, query string) ([]live.Place, error) {
	return s.geocoder.Search(ctx, query)
}
