package coord_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meet-in-the-middle-api/internal/coord"
	"meet-in-the-middle-api/internal/coord/coordtest"
	"meet-in-the-middle-api/internal/model"
)

var base = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time { return base.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

func span(start, end time.Time) coord.Interval { return coord.Interval{Start: start, End: &end} }

func meeting(id, creator string, start, end time.Time) model.Meeting {
	return model.Meeting{ID: id, Title: id, CreatorID: creator, ScheduledAt: start, EndsAt: &end}
}

func ptr(f float64) *float64 { return &f }

func accepted(meetingID, email string, lat, lng float64) model.Participant {
	return model.Participant{
		ID:        email + "-" + meetingID,
		Email:     email,
		MeetingID: meetingID,
		Status:    model.StatusAccepted,
		Location:  model.Location{Lat: ptr(lat), Lng: ptr(lng)},
	}
}

func newEngine(repo *coordtest.Repo, places *coordtest.Places) *coord.Engine {
	if places == nil {
		places = &coordtest.Places{}
	}
	return coord.NewEngine(repo, places, coord.DefaultOptions())
}

// ----- conflict detector -----

func TestOverlapsSymmetric(t *testing.T) {
	cases := []struct {
		name string
		a, b coord.Interval
		want bool
	}{
		{"partial", span(at(10, 0), at(11, 0)), span(at(10, 30), at(11, 30)), true},
		{"contained", span(at(9, 0), at(12, 0)), span(at(10, 0), at(11, 0)), true},
		{"identical", span(at(10, 0), at(11, 0)), span(at(10, 0), at(11, 0)), true},
		{"back to back", span(at(10, 0), at(11, 0)), span(at(11, 0), at(12, 0)), false},
		{"disjoint", span(at(8, 0), at(9, 0)), span(at(10, 0), at(11, 0)), false},
		{"open end", coord.Interval{Start: at(10, 0)}, span(at(10, 0), at(11, 0)), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, coord.Overlaps(tc.a, tc.b))
			assert.Equal(t, tc.want, coord.Overlaps(tc.b, tc.a), "overlap must be symmetric")
		})
	}
}

func TestFindConflictsScenario(t *testing.T) {
	repo := coordtest.New()
	m1 := meeting("m1", "u1", at(10, 0), at(11, 0))
	m2 := meeting("m2", "u1", at(10, 30), at(11, 30))
	m3 := meeting("m3", "u1", at(11, 0), at(12, 0))
	for _, m := range []model.Meeting{m1, m2, m3} {
		repo.PutMeeting(m)
		repo.PutParticipant(accepted(m.ID, "ann@example.com", 0, 0))
	}
	e := newEngine(repo, nil)

	got, err := e.FindConflicts(context.Background(), "ann@example.com", "m1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m2", got[0].Meeting.ID)
	assert.Equal(t, model.StatusAccepted, got[0].Status)

	got, err = e.FindConflicts(context.Background(), "ann@example.com", "m3")
	require.NoError(t, err)
	require.Len(t, got, 1, "m3 touches m1 only at 11:00")
	assert.Equal(t, "m2", got[0].Meeting.ID)
}

func TestFindConflictsNeverIncludesSelf(t *testing.T) {
	repo := coordtest.New()
	m := meeting("solo", "u1", at(10, 0), at(11, 0))
	repo.PutMeeting(m)
	repo.PutParticipant(accepted("solo", "ann@example.com", 0, 0))

	got, err := newEngine(repo, nil).FindConflicts(context.Background(), "ann@example.com", "solo")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got, "no conflicts is an empty list, not nil")
}

func TestFindConflictsSkipsRejectedAndOpenEnded(t *testing.T) {
	repo := coordtest.New()
	repo.PutMeeting(meeting("c", "u1", at(10, 0), at(11, 0)))
	repo.PutMeeting(meeting("rej", "u2", at(10, 0), at(11, 0)))
	repo.PutMeeting(model.Meeting{ID: "open", CreatorID: "u2", ScheduledAt: at(10, 15)})

	repo.PutParticipant(accepted("c", "ann@example.com", 0, 0))
	repo.PutParticipant(model.Participant{Email: "ann@example.com", MeetingID: "rej", Status: model.StatusRejected})
	repo.PutParticipant(model.Participant{Email: "ann@example.com", MeetingID: "open", Status: model.StatusPending})

	got, err := newEngine(repo, nil).FindConflicts(context.Background(), "ann@example.com", "c")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindConflictsPendingCounts(t *testing.T) {
	repo := coordtest.New()
	repo.PutMeeting(meeting("c", "u1", at(10, 0), at(11, 0)))
	repo.PutMeeting(meeting("p", "u2", at(10, 45), at(11, 15)))
	repo.PutParticipant(model.Participant{Email: "ann@example.com", MeetingID: "p", Status: model.StatusPending})

	got, err := newEngine(repo, nil).FindConflicts(context.Background(), "ann@example.com", "c")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.StatusPending, got[0].Status)
}

func TestFindConflictsUnknownMeeting(t *testing.T) {
	_, err := newEngine(coordtest.New(), nil).FindConflicts(context.Background(), "ann@example.com", "nope")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

// ----- equidistant point -----

func TestCentroidTwoPoints(t *testing.T) {
	p, err := coord.Centroid([]model.Participant{
		accepted("m", "a", 10, 10),
		accepted("m", "b", 20, 20),
	})
	require.NoError(t, err)
	assert.Equal(t, model.Point{Lat: 15, Lng: 15}, p)
}

func TestCentroidThreePoints(t *testing.T) {
	p, err := coord.Centroid([]model.Participant{
		accepted("m", "a", 0, 0),
		accepted("m", "b", 0, 10),
		accepted("m", "c", 10, 5),
	})
	require.NoError(t, err)
	assert.InDelta(t, 10.0/3.0, p.Lat, 1e-12)
	assert.InDelta(t, 5.0, p.Lng, 1e-12)
}

func TestCentroidInsufficient(t *testing.T) {
	pending := accepted("m", "c", 50, 50)
	pending.Status = model.StatusPending
	noCoords := model.Participant{Email: "d", MeetingID: "m", Status: model.StatusAccepted, Location: model.Location{Lat: ptr(1)}}

	cases := map[string][]model.Participant{
		"none":     nil,
		"one":      {accepted("m", "a", 1, 1)},
		"filtered": {accepted("m", "a", 1, 1), pending, noCoords},
	}
	for name, ps := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := coord.Centroid(ps)
			assert.ErrorIs(t, err, model.ErrInsufficientData)
		})
	}
}

func TestComputeCentroidUnknownMeeting(t *testing.T) {
	_, err := newEngine(coordtest.New(), nil).ComputeCentroid(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestParticipantLocationsDefaultsPlaceName(t *testing.T) {
	repo := coordtest.New()
	repo.PutMeeting(meeting("m", "u1", at(10, 0), at(11, 0)))
	named := accepted("m", "a@x.io", 1, 2)
	named.Location.PlaceName = "Home"
	repo.PutParticipant(named)
	repo.PutParticipant(accepted("m", "b@x.io", 3, 4))

	locs, err := newEngine(repo, nil).ParticipantLocations(context.Background(), "m")
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, "Home", locs[0].PlaceName)
	assert.Equal(t, "Unknown", locs[1].PlaceName)
}

func TestFindNearbyPlaces(t *testing.T) {
	repo := coordtest.New()
	repo.PutMeeting(meeting("m", "u1", at(10, 0), at(11, 0)))
	repo.PutParticipant(accepted("m", "a", 10, 10))
	repo.PutParticipant(accepted("m", "b", 20, 20))
	places := &coordtest.Places{Result: []model.Place{{PlaceID: "p1", Name: "Cafe"}}}

	center, got, err := newEngine(repo, places).FindNearbyPlaces(context.Background(), "m", "")
	require.NoError(t, err)
	assert.Equal(t, model.Point{Lat: 15, Lng: 15}, center)
	assert.Len(t, got, 1)
	require.Len(t, places.Calls, 1)
	assert.Equal(t, 5000, places.Calls[0].Radius)
	assert.Equal(t, "restaurant", places.Calls[0].Type)
}

func TestFindNearbyPlacesExternalFailure(t *testing.T) {
	repo := coordtest.New()
	repo.PutMeeting(meeting("m", "u1", at(10, 0), at(11, 0)))
	repo.PutParticipant(accepted("m", "a", 10, 10))
	repo.PutParticipant(accepted("m", "b", 20, 20))
	places := &coordtest.Places{Err: errors.New("connection refused")}

	_, _, err := newEngine(repo, places).FindNearbyPlaces(context.Background(), "m", "cafe")
	assert.ErrorIs(t, err, model.ErrExternalService)
	assert.Len(t, places.Calls, 1, "no retry")
}

func TestFindNearbyPlacesInsufficientSkipsLookup(t *testing.T) {
	repo := coordtest.New()
	repo.PutMeeting(meeting("m", "u1", at(10, 0), at(11, 0)))
	repo.PutParticipant(accepted("m", "a", 10, 10))
	places := &coordtest.Places{}

	_, _, err := newEngine(repo, places).FindNearbyPlaces(context.Background(), "m", "cafe")
	assert.ErrorIs(t, err, model.ErrInsufficientData)
	assert.Empty(t, places.Calls)
}

// ----- voting ledger -----

func ledger(t *testing.T) (*coord.Engine, *coordtest.Repo) {
	t.Helper()
	repo := coordtest.New()
	repo.PutMeeting(meeting("m", "creator", at(10, 0), at(11, 0)))
	return newEngine(repo, nil), repo
}

// join adds id to meeting m as an accepted participant and returns its identity.
func join(repo *coordtest.Repo, id string) model.Identity {
	who := model.Identity{ID: id, Email: id + "@example.com"}
	repo.PutParticipant(model.Participant{ID: "p-" + id, UserID: &who.ID, Email: who.Email, MeetingID: "m", Status: model.StatusAccepted})
	return who
}

func TestAddSuggestion(t *testing.T) {
	e, _ := ledger(t)
	s, err := e.AddSuggestion(context.Background(), "m", model.Place{Name: "Cafe"})
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, 0, s.VoteCount)
	assert.Empty(t, s.Voters)
	assert.False(t, s.IsFinalized)

	_, err = e.AddSuggestion(context.Background(), "missing", model.Place{Name: "Cafe"})
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = e.AddSuggestion(context.Background(), "m", model.Place{})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestToggleVoteTwiceRestores(t *testing.T) {
	e, repo := ledger(t)
	ctx := context.Background()
	u1 := join(repo, "u1")
	s, err := e.AddSuggestion(ctx, "m", model.Place{Name: "Cafe"})
	require.NoError(t, err)

	on, err := e.ToggleVote(ctx, s.ID, u1)
	require.NoError(t, err)
	assert.Equal(t, 1, on.VoteCount)
	assert.Equal(t, []string{"u1"}, on.Voters)

	off, err := e.ToggleVote(ctx, s.ID, u1)
	require.NoError(t, err)
	assert.Equal(t, 0, off.VoteCount)
	assert.NotContains(t, off.Voters, "u1")
}

func TestToggleVoteUnknownSuggestion(t *testing.T) {
	e, repo := ledger(t)
	_, err := e.ToggleVote(context.Background(), "nope", join(repo, "u1"))
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestToggleVoteParticipantsOnly(t *testing.T) {
	e, repo := ledger(t)
	ctx := context.Background()
	s, err := e.AddSuggestion(ctx, "m", model.Place{Name: "Cafe"})
	require.NoError(t, err)

	_, err = e.ToggleVote(ctx, s.ID, model.Identity{ID: "stranger", Email: "stranger@example.com"})
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	// rejected invitees lose their say
	repo.PutParticipant(model.Participant{ID: "p-r", Email: "r@example.com", MeetingID: "m", Status: model.StatusRejected})
	_, err = e.ToggleVote(ctx, s.ID, model.Identity{ID: "r", Email: "r@example.com"})
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	// pending invitees without a linked account match on email
	repo.PutParticipant(model.Participant{ID: "p-q", Email: "q@example.com", MeetingID: "m", Status: model.StatusPending})
	got, err := e.ToggleVote(ctx, s.ID, model.Identity{ID: "q", Email: "Q@example.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"q"}, got.Voters)

	list, err := e.ListSuggestions(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, 1, list[0].VoteCount)
}

func TestToggleVoteConcurrentDistinctUsers(t *testing.T) {
	e, repo := ledger(t)
	ctx := context.Background()
	s, err := e.AddSuggestion(ctx, "m", model.Place{Name: "Cafe"})
	require.NoError(t, err)

	const n = 50
	voters := make([]model.Identity, n)
	for i := range voters {
		voters[i] = join(repo, fmt.Sprintf("user-%d", i))
	}
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.ToggleVote(ctx, s.ID, voters[i])
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	list, err := e.ListSuggestions(ctx, "m")
	require.NoError(t, err)
	require.Len(t, list, 1)
	got := list[0]
	assert.Equal(t, n, got.VoteCount)
	assert.Len(t, got.Voters, n)

	seen := map[string]bool{}
	for _, v := range got.Voters {
		assert.False(t, seen[v], "duplicate voter %s", v)
		seen[v] = true
	}
}

func TestWinner(t *testing.T) {
	_, err := coord.Winner(nil)
	assert.ErrorIs(t, err, model.ErrNoSuggestions)

	w, err := coord.Winner([]model.SuggestedLocation{
		{ID: "a", VoteCount: 1},
		{ID: "b", VoteCount: 3},
		{ID: "c", VoteCount: 3},
		{ID: "d", VoteCount: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, "b", w.ID, "ties go to the first in list order")
}

func TestFinalize(t *testing.T) {
	e, repo := ledger(t)
	ctx := context.Background()
	creator := model.Identity{ID: "creator", Email: "c@example.com"}
	u1, u2 := join(repo, "u1"), join(repo, "u2")

	_, err := e.Finalize(ctx, creator, "m")
	assert.ErrorIs(t, err, model.ErrNoSuggestions)

	a, _ := e.AddSuggestion(ctx, "m", model.Place{Name: "A"})
	b, _ := e.AddSuggestion(ctx, "m", model.Place{Name: "B"})
	_, err = e.ToggleVote(ctx, b.ID, u1)
	require.NoError(t, err)

	_, err = e.Finalize(ctx, model.Identity{ID: "someone-else"}, "m")
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	w, err := e.Finalize(ctx, creator, "m")
	require.NoError(t, err)
	assert.Equal(t, b.ID, w.ID)
	assert.True(t, w.IsFinalized)

	// votes move, finalize again: the flag moves with them
	_, _ = e.ToggleVote(ctx, b.ID, u1)
	_, _ = e.ToggleVote(ctx, a.ID, u1)
	_, _ = e.ToggleVote(ctx, a.ID, u2)
	w, err = e.Finalize(ctx, creator, "m")
	require.NoError(t, err)
	assert.Equal(t, a.ID, w.ID)

	list, err := e.ListSuggestions(ctx, "m")
	require.NoError(t, err)
	finalized := 0
	for _, s := range list {
		if s.IsFinalized {
			finalized++
			assert.Equal(t, a.ID, s.ID)
		}
	}
	assert.Equal(t, 1, finalized)
}

func TestFinalizeUnknownMeeting(t *testing.T) {
	e, _ := ledger(t)
	_, err := e.Finalize(context.Background(), model.Identity{ID: "creator"}, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestPopulateSuggestionsSkipsKnownPlaces(t *testing.T) {
	repo := coordtest.New()
	repo.PutMeeting(meeting("m", "creator", at(10, 0), at(11, 0)))
	repo.PutParticipant(accepted("m", "a", 10, 10))
	repo.PutParticipant(accepted("m", "b", 20, 20))
	places := &coordtest.Places{Result: []model.Place{
		{PlaceID: "p1", Name: "One"},
		{PlaceID: "p2", Name: "Two"},
		{PlaceID: "p3", Name: "Three"},
	}}
	e := newEngine(repo, places)
	ctx := context.Background()

	added, err := e.PopulateSuggestions(ctx, "m", "cafe", 2)
	require.NoError(t, err)
	require.Len(t, added, 2)
	assert.Equal(t, "p1", added[0].Place.PlaceID)

	added, err = e.PopulateSuggestions(ctx, "m", "cafe", 0)
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, "p3", added[0].Place.PlaceID)
}
