// Package coordtest provides an in-memory coord.Repository for tests.
package coordtest

import (
	"context"
	"sync"
	"time"

	"meet-in-the-middle-api/internal/model"
)

type Repo struct {
	mu           sync.Mutex
	meetings     map[string]model.Meeting
	participants []model.Participant
	suggestions  []model.SuggestedLocation
}

func New() *Repo {
	return &Repo{meetings: make(map[string]model.Meeting)}
}

func (r *Repo) PutMeeting(m model.Meeting) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meetings[m.ID] = m
}

func (r *Repo) PutParticipant(p model.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants = append(r.participants, p)
}

func (r *Repo) GetMeeting(_ context.Context, id string) (*model.Meeting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meetings[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &m, nil
}

func (r *Repo) ActiveMemberships(_ context.Context, email string) ([]model.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Membership
	for _, p := range r.participants {
		if p.Email != email || p.Status == model.StatusRejected {
			continue
		}
		m, ok := r.meetings[p.MeetingID]
		if !ok {
			continue
		}
		out = append(out, model.Membership{Meeting: m, Status: p.Status})
	}
	return out, nil
}

func (r *Repo) ListParticipants(_ context.Context, meetingID string) ([]model.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Participant
	for _, p := range r.participants {
		if p.MeetingID == meetingID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *Repo) AddSuggestion(_ context.Context, s *model.SuggestedLocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	c := *s
	c.Voters = append([]string{}, s.Voters...)
	r.suggestions = append(r.suggestions, c)
	return nil
}

func (r *Repo) GetSuggestion(_ context.Context, id string) (*model.SuggestedLocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.suggestions {
		if s.ID == id {
			return clone(s), nil
		}
	}
	return nil, model.ErrNotFound
}

func (r *Repo) ListSuggestions(_ context.Context, meetingID string) ([]model.SuggestedLocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.SuggestedLocation{}
	for _, s := range r.suggestions {
		if s.MeetingID == meetingID {
			out = append(out, *clone(s))
		}
	}
	return out, nil
}

func (r *Repo) ToggleVote(_ context.Context, suggestionID, userID string) (*model.SuggestedLocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.suggestions {
		s := &r.suggestions[i]
		if s.ID != suggestionID {
			continue
		}
		removed := false
		for j, v := range s.Voters {
			if v == userID {
				s.Voters = append(s.Voters[:j:j], s.Voters[j+1:]...)
				removed = true
				break
			}
		}
		if !removed {
			s.Voters = append(s.Voters, userID)
		}
		s.VoteCount = len(s.Voters)
		return clone(*s), nil
	}
	return nil, model.ErrNotFound
}

func (r *Repo) FinalizeSuggestion(_ context.Context, meetingID, suggestionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := false
	for i := range r.suggestions {
		s := &r.suggestions[i]
		if s.MeetingID != meetingID {
			continue
		}
		s.IsFinalized = s.ID == suggestionID
		found = found || s.IsFinalized
	}
	if !found {
		return model.ErrNotFound
	}
	return nil
}

func clone(s model.SuggestedLocation) *model.SuggestedLocation {
	s.Voters = append([]string{}, s.Voters...)
	return &s
}

// Places is a canned PlacesDirectory.
type Places struct {
	mu     sync.Mutex
	Result []model.Place
	Err    error
	Calls  []PlacesCall
}

type PlacesCall struct {
	Center model.Point
	Radius int
	Type   string
}

func (p *Places) Nearby(ctx context.Context, center model.Point, radius int, placeType string) ([]model.Place, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, PlacesCall{Center: center, Radius: radius, Type: placeType})
	p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Result, nil
}
