package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/busfleet/livetrack/libs/live"
)

func TestClientBusStudents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/students/", r.URL.Path)
		assert.Equal(t, "bus-1", r.URL.Query().Get("bus_id"))
		w.Write([]byte(`{"results": [{"id": "s1", "full_name": "Ann Ortiz", "stop_id": 4}, {"id": "s2", "full_name": "Ben Reyes"}]}`))
	}))
	defer server.Close()

	client, err := New(server.URL, time.Second)
	assert.NoError(t, err)

	students, err := client.BusStudents(context.Background(), "bus-1")
	assert.NoError(t, err)
	assert.Len(t, students, 2)
	assert.Equal(t, "Ann Ortiz", students[0].Name)
	assert.Equal(t, int64(4), *students[0].StopID)
	assert.Nil(t, students[1].StopID)
	assert.Equal(t, live.StudentRef{ID: "s2", Name: "Ben Reyes"}, students[1].Ref())
}

func TestClientReplaceStops(t *testing.T) {
	var got struct {
		Stops []live.Stop `json:"stops"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/routes/7/stops/", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := New(server.URL, time.Second)
	assert.NoError(t, err)

	stops := []live.Stop{
		{ID: 1, Name: "School", Latitude: 41.1, Longitude: -73.2, Order: 1},
		{ID: -1, Name: "Stop 2", Latitude: 41.2, Longitude: -73.3, Order: 2},
	}
	assert.NoError(t, client.ReplaceStops(context.Background(), 7, stops))
	assert.Equal(t, stops, got.Stops)
}

func TestClientStopAssignment(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := New(server.URL, time.Second)
	assert.NoError(t, err)

	assert.NoError(t, client.AssignStudentToStop(context.Background(), "s1", 4))
	assert.NoError(t, client.UnassignStudent(context.Background(), "s1"))
	assert.Equal(t, []string{"/api/students/s1/assign-stop/", "/api/students/s1/unassign-stop/"}, paths)
}

func TestClientErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := New(server.URL, time.Second)
	assert.NoError(t, err)

	_, err = client.RouteStops(context.Background(), 7)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestClientTripHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		w.Write([]byte(`{"results": [{"id": "trip-9", "status": "completed", "route_name": "North Loop"}]}`))
	}))
	defer server.Close()

	client, err := New(server.URL, time.Second)
	assert.NoError(t, err)

	trips, err := client.TripHistory(context.Background(), "bus-1", 2)
	assert.NoError(t, err)
	assert.Len(t, trips, 1)
	assert.Equal(t, live.TripCompleted, trips[0].Status)
	assert.Equal(t, "North Loop", trips[0].RouteName)
}
