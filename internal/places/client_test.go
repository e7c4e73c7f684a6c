package places

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meet-in-the-middle-api/internal/model"
)

const okBody = `{
  "status": "OK",
  "results": [
    {
      "place_id": "abc",
      "name": "Blue Bottle",
      "vicinity": "1 Main St",
      "geometry": {"location": {"lat": 15.01, "lng": 14.99}},
      "rating": 4.5,
      "user_ratings_total": 120,
      "photos": [{"photo_reference": "ph1"}, {"photo_reference": "ph2"}]
    }
  ]
}`

func TestNearbyProjectsResults(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"location": q.Get("location"),
			"radius":   q.Get("radius"),
			"type":     q.Get("type"),
			"key":      q.Get("key"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(okBody))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret-key", time.Second)
	got, err := c.Nearby(context.Background(), model.Point{Lat: 15, Lng: 15}, 5000, "cafe")
	require.NoError(t, err)

	assert.Equal(t, "15,15", gotQuery["location"])
	assert.Equal(t, "5000", gotQuery["radius"])
	assert.Equal(t, "cafe", gotQuery["type"])
	assert.Equal(t, "secret-key", gotQuery["key"])

	require.Len(t, got, 1)
	p := got[0]
	assert.Equal(t, "abc", p.PlaceID)
	assert.Equal(t, "Blue Bottle", p.Name)
	assert.Equal(t, "1 Main St", p.Address)
	assert.Equal(t, model.Point{Lat: 15.01, Lng: 14.99}, p.Location)
	assert.Equal(t, 4.5, p.Rating)
	assert.Equal(t, 120, p.UserRatingsTotal)
	assert.Equal(t, []string{"ph1", "ph2"}, p.Photos)
}

func TestNearbyZeroResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
	}))
	defer srv.Close()

	got, err := New(srv.URL, "k", time.Second).Nearby(context.Background(), model.Point{}, 5000, "cafe")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNearbyFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"http 500", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"denied", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"REQUEST_DENIED","error_message":"bad key"}`))
		}},
		{"garbage", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := New(srv.URL, "k", time.Second).Nearby(context.Background(), model.Point{}, 5000, "cafe")
			assert.ErrorIs(t, err, model.ErrExternalService)
		})
	}
}

func TestNearbyTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := New(srv.URL, "k", 5*time.Second).Nearby(ctx, model.Point{}, 5000, "cafe")
	assert.ErrorIs(t, err, model.ErrExternalService)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNearbyWithoutKey(t *testing.T) {
	_, err := New("http://127.0.0.1:0", "", time.Second).Nearby(context.Background(), model.Point{}, 5000, "cafe")
	assert.ErrorIs(t, err, model.ErrExternalService)
}
