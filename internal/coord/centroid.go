package coord

import (
	"context"
	"errors"
	"fmt"

	"meet-in-the-middle-api/internal/model"
)

type ParticipantLocation struct {
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	PlaceName string  `json:"placeName"`
}

func geolocated(ps []model.Participant) []model.Participant {
	var out []model.Participant
	for _, p := range ps {
		if p.Status == model.StatusAccepted && p.Location.HasCoords() {
			out = append(out, p)
		}
	}
	return out
}

// Centroid is the unweighted mean of latitudes and longitudes. It is a planar
// approximation: fine across a city, wrong near the poles or the antimeridian.
func Centroid(ps []model.Participant) (model.Point, error) {
	qualifying := geolocated(ps)
	if len(qualifying) < 2 {
		return model.Point{}, model.ErrInsufficientData
	}

	var lat, lng float64
	for _, p := range qualifying {
		lat += *p.Location.Lat
		lng += *p.Location.Lng
	}
	n := float64(len(qualifying))
	return model.Point{Lat: lat / n, Lng: lng / n}, nil
}

func (e *Engine) ComputeCentroid(ctx context.Context, meetingID string) (model.Point, error) {
	if _, err := e.repo.GetMeeting(ctx, meetingID); err != nil {
		return model.Point{}, fmt.Errorf("load meeting: %w", err)
	}
	ps, err := e.repo.ListParticipants(ctx, meetingID)
	if err != nil {
		return model.Point{}, fmt.Errorf("load participants: %w", err)
	}
	return Centroid(ps)
}

func (e *Engine) ParticipantLocations(ctx context.Context, meetingID string) ([]ParticipantLocation, error) {
	if _, err := e.repo.GetMeeting(ctx, meetingID); err != nil {
		return nil, fmt.Errorf("load meeting: %w", err)
	}
	ps, err := e.repo.ListParticipants(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}

	out := []ParticipantLocation{}
	for _, p := range geolocated(ps) {
		name := p.Location.PlaceName
		if name == "" {
			name = "Unknown"
		}
		out = append(out, ParticipantLocation{
			Name:      p.Name,
			Email:     p.Email,
			Lat:       *p.Location.Lat,
			Lng:       *p.Location.Lng,
			PlaceName: name,
		})
	}
	return out, nil
}

// FindNearbyPlaces queries the places directory around the meeting's centroid.
// Directory failures surface as model.ErrExternalService and are not retried.
func (e *Engine) FindNearbyPlaces(ctx context.Context, meetingID, placeType string) (model.Point, []model.Place, error) {
	center, err := e.ComputeCentroid(ctx, meetingID)
	if err != nil {
		return model.Point{}, nil, err
	}
	if placeType == "" {
		placeType = e.opts.DefaultPlaceType
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.LookupTimeout)
	defer cancel()

	places, err := e.places.Nearby(ctx, center, e.opts.RadiusMeters, placeType)
	if err != nil {
		if errors.Is(err, model.ErrExternalService) {
			return center, nil, err
		}
		return center, nil, fmt.Errorf("%w: %v", model.ErrExternalService, err)
	}
	return center, places, nil
}
