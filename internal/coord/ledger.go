package coord

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"meet-in-the-middle-api/internal/metrics"
	"meet-in-the-middle-api/internal/model"
)

func (e *Engine) AddSuggestion(ctx context.Context, meetingID string, place model.Place) (*model.SuggestedLocation, error) {
	if strings.TrimSpace(place.Name) == "" {
		return nil, fmt.Errorf("%w: place name required", model.ErrInvalidInput)
	}
	if _, err := e.repo.GetMeeting(ctx, meetingID); err != nil {
		return nil, fmt.Errorf("load meeting: %w", err)
	}

	s := &model.SuggestedLocation{
		ID:        uuid.New().String(),
		MeetingID: meetingID,
		Place:     place,
		Voters:    []string{},
	}
	if err := e.repo.AddSuggestion(ctx, s); err != nil {
		return nil, fmt.Errorf("add suggestion: %w", err)
	}
	return s, nil
}

// PopulateSuggestions appends up to limit nearby places as suggestions, skipping
// places already suggested for the meeting.
func (e *Engine) PopulateSuggestions(ctx context.Context, meetingID, placeType string, limit int) ([]model.SuggestedLocation, error) {
	_, places, err := e.FindNearbyPlaces(ctx, meetingID, placeType)
	if err != nil {
		return nil, err
	}

	existing, err := e.repo.ListSuggestions(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("load suggestions: %w", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, s := range existing {
		if s.Place.PlaceID != "" {
			seen[s.Place.PlaceID] = true
		}
	}

	added := []model.SuggestedLocation{}
	for _, p := range places {
		if limit > 0 && len(added) >= limit {
			break
		}
		if p.PlaceID != "" && seen[p.PlaceID] {
			continue
		}
		s, err := e.AddSuggestion(ctx, meetingID, p)
		if err != nil {
			return added, err
		}
		seen[p.PlaceID] = true
		added = append(added, *s)
	}
	return added, nil
}

func (e *Engine) ListSuggestions(ctx context.Context, meetingID string) ([]model.SuggestedLocation, error) {
	if _, err := e.repo.GetMeeting(ctx, meetingID); err != nil {
		return nil, fmt.Errorf("load meeting: %w", err)
	}
	return e.repo.ListSuggestions(ctx, meetingID)
}

// ToggleVote flips the voter's vote on a suggestion. Calling it twice restores
// the original count. Only participants who have not rejected the meeting may vote.
func (e *Engine) ToggleVote(ctx context.Context, suggestionID string, voter model.Identity) (*model.SuggestedLocation, error) {
	if voter.ID == "" {
		return nil, fmt.Errorf("%w: user required", model.ErrInvalidInput)
	}
	cur, err := e.repo.GetSuggestion(ctx, suggestionID)
	if err != nil {
		return nil, fmt.Errorf("load suggestion: %w", err)
	}
	ps, err := e.repo.ListParticipants(ctx, cur.MeetingID)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	if !canVote(ps, voter) {
		return nil, model.ErrUnauthorized
	}

	s, err := e.repo.ToggleVote(ctx, suggestionID, voter.ID)
	if err != nil {
		return nil, fmt.Errorf("toggle vote: %w", err)
	}
	metrics.RecordVote(s.HasVoter(voter.ID))
	return s, nil
}

func canVote(ps []model.Participant, voter model.Identity) bool {
	for _, p := range ps {
		if p.Status == model.StatusRejected {
			continue
		}
		if p.UserID != nil && *p.UserID == voter.ID {
			return true
		}
		if voter.Email != "" && strings.EqualFold(p.Email, voter.Email) {
			return true
		}
	}
	return false
}

// Winner picks the suggestion with the highest vote count; ties go to the
// earliest one in list order.
func Winner(suggestions []model.SuggestedLocation) (*model.SuggestedLocation, error) {
	if len(suggestions) == 0 {
		return nil, model.ErrNoSuggestions
	}
	best := 0
	for i := 1; i < len(suggestions); i++ {
		if suggestions[i].VoteCount > suggestions[best].VoteCount {
			best = i
		}
	}
	w := suggestions[best]
	return &w, nil
}

// Finalize marks the most voted suggestion as the meeting location. Only the
// creator may finalize; a later call moves the flag rather than adding a second one.
func (e *Engine) Finalize(ctx context.Context, actor model.Identity, meetingID string) (*model.SuggestedLocation, error) {
	m, err := e.repo.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("load meeting: %w", err)
	}
	if m.CreatorID != actor.ID {
		return nil, model.ErrUnauthorized
	}

	suggestions, err := e.repo.ListSuggestions(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("load suggestions: %w", err)
	}
	w, err := Winner(suggestions)
	if err != nil {
		return nil, err
	}

	if err := e.repo.FinalizeSuggestion(ctx, meetingID, w.ID); err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}
	w.IsFinalized = true
	metrics.RecordFinalize()
	return w, nil
}
