// Package places talks to a Google Places compatible "nearbysearch" endpoint.
package places

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"meet-in-the-middle-api/internal/metrics"
	"meet-in-the-middle-api/internal/model"
)

const DefaultBaseURL = "https://maps.googleapis.com/maps/api/place/nearbysearch/json"

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	group   singleflight.Group
}

// New returns a client. timeout bounds each HTTP round trip; callers may pass a
// shorter deadline through the context.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type nearbyResponse struct {
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message"`
	Results      []nearbyPlace `json:"results"`
}

type nearbyPlace struct {
	PlaceID  string `json:"place_id"`
	Name     string `json:"name"`
	Vicinity string `json:"vicinity"`
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	Rating           float64 `json:"rating"`
	UserRatingsTotal int     `json:"user_ratings_total"`
	Photos           []struct {
		PhotoReference string `json:"photo_reference"`
	} `json:"photos"`
}

// Nearby returns places of placeType within radiusMeters of center. Identical
// in-flight lookups share one upstream request.
func (c *Client) Nearby(ctx context.Context, center model.Point, radiusMeters int, placeType string) ([]model.Place, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: api key not configured", model.ErrExternalService)
	}

	key := fmt.Sprintf("%.6f,%.6f|%d|%s", center.Lat, center.Lng, radiusMeters, placeType)
	v, err, _ := c.group.Do(key, func() (any, error) {
		start := time.Now()
		out, err := c.fetch(ctx, center, radiusMeters, placeType)
		metrics.RecordPlacesLookup(err == nil, time.Since(start).Seconds())
		return out, err
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Place), nil
}

func (c *Client) fetch(ctx context.Context, center model.Point, radiusMeters int, placeType string) ([]model.Place, error) {
	q := url.Values{}
	q.Set("location", strconv.FormatFloat(center.Lat, 'f', -1, 64)+","+strconv.FormatFloat(center.Lng, 'f', -1, 64))
	q.Set("radius", strconv.Itoa(radiusMeters))
	q.Set("type", placeType)
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrExternalService, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: http %d", model.ErrExternalService, resp.StatusCode)
	}

	var body nearbyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", model.ErrExternalService, err)
	}
	// ZERO_RESULTS is a successful empty answer
	switch body.Status {
	case "OK", "ZERO_RESULTS":
	default:
		return nil, fmt.Errorf("%w: status %s %s", model.ErrExternalService, body.Status, body.ErrorMessage)
	}

	out := make([]model.Place, 0, len(body.Results))
	for _, r := range body.Results {
		p := model.Place{
			PlaceID:          r.PlaceID,
			Name:             r.Name,
			Address:          r.Vicinity,
			Location:         model.Point{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
			Rating:           r.Rating,
			UserRatingsTotal: r.UserRatingsTotal,
			Photos:           []string{},
		}
		for _, ph := range r.Photos {
			p.Photos = append(p.Photos, ph.PhotoReference)
		}
		out = append(out, p)
	}
	return out, nil
}
