package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/busfleet/livetrack/libs/live"
)

// Client talks to the roster backend: students on a bus, stop assignment,
// route stops and trip history. Payload shapes follow the backend; none of
// the calls retry on failure, that stays the caller's call.
type Client struct {
	base *url.URL
	http *http.Client
}

func New(baseURL string, timeout time.Duration) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid roster URL: %v", err)
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base: base,
		http: &http.Client{Timeout: timeout},
	}, nil
}

// Student is one roster entry.
type Student struct {
	ID     string `json:"id"`
	Name   string `json:"full_name"`
	StopID *int64 `json:"stop_id,omitempty"`
}

// Ref converts a roster entry into the seed used at trip start.
func (s Student) Ref() live.StudentRef {
	return live.StudentRef{ID: s.ID, Name: s.Name}
}

// BusStudents lists the students assigned to a bus.
func (c *Client) BusStudents(ctx context.Context, busID string) ([]Student, error) {
	var out struct {
		Results []Student `json:"results"`
	}
	err := c.do(ctx, http.MethodGet, "/api/students/?bus_id="+url.QueryEscape(busID), nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Results, nil
}

// AssignStudentToStop attaches a student to a route stop.
func (c *Client) AssignStudentToStop(ctx context.Context, studentID string, stopID int64) error {
	body := map[string]interface{}{"stop_id": stopID}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/students/%s/assign-stop/", url.PathEscape(studentID)), body, nil)
}

// UnassignStudent detaches a student from their stop.
func (c *Client) UnassignStudent(ctx context.Context, studentID string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/students/%s/unassign-stop/", url.PathEscape(studentID)), nil, nil)
}

// RouteStops lists a route's persisted stops, ordered.
func (c *Client) RouteStops(ctx context.Context, routeID int64) ([]live.Stop, error) {
	var out struct {
		Results []live.Stop `json:"results"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/routes/%d/stops/", routeID), nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Results, nil
}

// ReplaceStops persists a route's full stop list in one call. It is the
// live.StopSaver collaborator of the route editor.
func (c *Client) ReplaceStops(ctx context.Context, routeID int64, stops []live.Stop) error {
	body := map[string]interface{}{"stops": stops}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/routes/%d/stops/", routeID), body, nil)
}

// TripHistory lists a bus's past trips, newest first.
func (c *Client) TripHistory(ctx context.Context, busID string, page int) ([]live.Trip, error) {
	var out struct {
		Results []live.Trip `json:"results"`
	}
	path := fmt.Sprintf("/api/trips/?bus_id=%s&page=%d", url.QueryEscape(busID), page)
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("invalid request path %q: %v", path, err)
	}

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %v", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.ResolveReference(ref).String(), payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}
	return nil
}
