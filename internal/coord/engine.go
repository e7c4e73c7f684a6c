// Package coord is the meeting coordination engine: conflict detection, the
// equidistant meeting point and the suggested location voting ledger.
//
// The engine holds no locks of its own. Every mutation that must be atomic
// (vote toggling, exclusive finalization) is a single call on the Repository,
// which is expected to make it atomic in storage.
package coord

import (
	"context"
	"time"

	"meet-in-the-middle-api/internal/model"
)

type Repository interface {
	GetMeeting(ctx context.Context, id string) (*model.Meeting, error)
	// ActiveMemberships returns every participation of email whose status is not rejected.
	ActiveMemberships(ctx context.Context, email string) ([]model.Membership, error)
	ListParticipants(ctx context.Context, meetingID string) ([]model.Participant, error)

	AddSuggestion(ctx context.Context, s *model.SuggestedLocation) error
	GetSuggestion(ctx context.Context, id string) (*model.SuggestedLocation, error)
	// ListSuggestions returns suggestions in insertion order.
	ListSuggestions(ctx context.Context, meetingID string) ([]model.SuggestedLocation, error)
	// ToggleVote adds or removes userID from the voters and adjusts the count in one step.
	ToggleVote(ctx context.Context, suggestionID, userID string) (*model.SuggestedLocation, error)
	// FinalizeSuggestion clears any finalized suggestion of the meeting and marks suggestionID.
	FinalizeSuggestion(ctx context.Context, meetingID, suggestionID string) error
}

type PlacesDirectory interface {
	Nearby(ctx context.Context, center model.Point, radiusMeters int, placeType string) ([]model.Place, error)
}

type Options struct {
	RadiusMeters     int
	DefaultPlaceType string
	LookupTimeout    time.Duration
}

func DefaultOptions() Options {
	return Options{
		RadiusMeters:     5000,
		DefaultPlaceType: "restaurant",
		LookupTimeout:    10 * time.Second,
	}
}

type Engine struct {
	repo   Repository
	places PlacesDirectory
	opts   Options
}

func NewEngine(repo Repository, places PlacesDirectory, opts Options) *Engine {
	def := DefaultOptions()
	if opts.RadiusMeters <= 0 {
		opts.RadiusMeters = def.RadiusMeters
	}
	if opts.DefaultPlaceType == "" {
		opts.DefaultPlaceType = def.DefaultPlaceType
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = def.LookupTimeout
	}
	return &Engine{repo: repo, places: places, opts: opts}
}

func (e *Engine) Meeting(ctx context.Context, id string) (*model.Meeting, error) {
	return e.repo.GetMeeting(ctx, id)
}

func (e *Engine) Participants(ctx context.Context, meetingID string) ([]model.Participant, error) {
	return e.repo.ListParticipants(ctx, meetingID)
}
