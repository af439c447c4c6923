package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/busfleet/livetrack/cli/tracker/fleet"
	"github.com/busfleet/livetrack/libs/live"
	"github.com/stretchr/testify/assert"
)

// mockFleet serves canned fleet state to the handlers.
type mockFleet struct {
	views     []fleet.BusView
	refreshed []string
}

func (m *mockFleet) Fleet() []fleet.BusView { return m.views }

func (m *mockFleet) Snapshot(busID string) (*live.LiveStatus, bool) {
	for _, v := range m.views {
		if v.BusID == busID {
			return v.Status, true
		}
	}
	return nil, false
}

func (m *mockFleet) Connected(busID string) bool {
	for _, v := range m.views {
		if v.BusID == busID {
			return v.Connected
		}
	}
	return false
}

func (m *mockFleet) Refresh(busID string) bool {
	if _, ok := m.Snapshot(busID); !ok {
		return false
	}
	m.refreshed = append(m.refreshed, busID)
	return true
}

func (m *mockFleet) FitBounds() (live.Bounds, bool) {
	if len(m.views) == 0 {
		return live.Bounds{}, false
	}
	return live.Bounds{
		SouthWest: live.LatLng{Latitude: 12.9, Longitude: 77.5},
		NorthEast: live.LatLng{Latitude: 13.1, Longitude: 77.7},
	}, true
}

func trackedFleet() *mockFleet {
	return &mockFleet{views: []fleet.BusView{
		{
			BusID:     "bus-1",
			Connected: true,
			Status: &live.LiveStatus{
				HasActiveTrip: true,
				Trip:          &live.Trip{ID: "t1", Status: live.TripInProgress, RouteName: "Route A"},
			},
		},
		{BusID: "bus-2", Connected: false},
	}}
}

func serve(t *testing.T, m *mockFleet, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	controller := NewController(NewHandler(m, nil, nil), nil)
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	controller.ServeHTTP(w, req)
	return w
}

func TestGetFleet(t *testing.T) {
	w := serve(t, trackedFleet(), http.MethodGet, "/fleet")

	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Buses []fleet.BusView `json:"buses"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Buses, 2)
	assert.Equal(t, "bus-1", body.Buses[0].BusID)
}

func TestGetBus(t *testing.T) {
	w := serve(t, trackedFleet(), http.MethodGet, "/fleet/bus-1")

	assert.Equal(t, http.StatusOK, w.Code)

	var view fleet.BusView
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.True(t, view.Connected)
	assert.Equal(t, "Route A", view.Status.Trip.RouteName)
}

func TestGetBusNotTracked(t *testing.T) {
	w := serve(t, trackedFleet(), http.MethodGet, "/fleet/ghost")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPostRefresh(t *testing.T) {
	m := trackedFleet()

	w := serve(t, m, http.MethodPost, "/fleet/bus-1/refresh")

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"bus-1"}, m.refreshed)
}

func TestPostRefreshNotTracked(t *testing.T) {
	w := serve(t, trackedFleet(), http.MethodPost, "/fleet/ghost/refresh")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetViewport(t *testing.T) {
	w := serve(t, trackedFleet(), http.MethodGet, "/fleet/viewport")

	assert.Equal(t, http.StatusOK, w.Code)

	var b live.Bounds
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	assert.Equal(t, 12.9, b.SouthWest.Latitude)
}

func TestGetViewportEmptyFleet(t *testing.T) {
	w := serve(t, &mockFleet{}, http.MethodGet, "/fleet/viewport")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHealthz(t *testing.T) {
	w := serve(t, trackedFleet(), http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
}
