package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/busfleet/livetrack/libs/live"
)

// Client resolves coordinates to names and free-text queries to places
// against a Nominatim-style HTTP endpoint. It satisfies live.Geocoder.
type Client struct {
	base *url.URL
	http *http.Client
}

func New(baseURL string, timeout time.Duration) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid geocoding URL: %v", err)
	}
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		base: base,
		http: &http.Client{Timeout: timeout},
	}, nil
}

type place struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

func (p place) toPlace() live.Place {
	lat, _ := strconv.ParseFloat(p.Lat, 64)
	lon, _ := strconv.ParseFloat(p.Lon, 64)
	name := p.Name
	if name == "" {
		name = p.DisplayName
	}
	return live.Place{
		Name:      name,
		Address:   p.DisplayName,
		Latitude:  lat,
		Longitude: lon,
	}
}

// Reverse resolves a coordinate pair to the nearest named place.
func (c *Client) Reverse(ctx context.Context, lat, lng float64) (live.Place, error) {
	query := url.Values{
		"format": {"jsonv2"},
		"lat":    {strconv.FormatFloat(lat, 'f', 6, 64)},
		"lon":    {strconv.FormatFloat(lng, 'f', 6, 64)},
	}
	var out place
	if err := c.get(ctx, "/reverse", query, &out); err != nil {
		return live.Place{}, err
	}
	if out.DisplayName == "" {
		return live.Place{}, fmt.Errorf("no place found at %.6f, %.6f", lat, lng)
	}
	return out.toPlace(), nil
}

// Search resolves a free-text query to candidate places.
func (c *Client) Search(ctx context.Context, text string) ([]live.Place, error) {
	query := url.Values{
		"format": {"jsonv2"},
		"q":      {text},
		"limit":  {"5"},
	}
	var out []place
	if err := c.get(ctx, "/search", query, &out); err != nil {
		return nil, err
	}
	places := make([]live.Place, 0, len(out))
	for _, p := range out {
		places = append(places, p.toPlace())
	}
	return places, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	ref, _ := url.Parse(path)
	target := c.base.ResolveReference(ref)
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode geocoding response: %v", err)
	}
	return nil
}
