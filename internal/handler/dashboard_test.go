package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"meet-in-the-middle-api/internal/model"
)

func TestComputeStats(t *testing.T) {
	// Wednesday; the week runs Sunday 1 Mar to Saturday 7 Mar.
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	ms := []model.MeetingSummary{
		{MeetingID: "past-this-week", ScheduledAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), Status: model.StatusAccepted, Participants: 2},
		{MeetingID: "later-this-week", ScheduledAt: time.Date(2026, 3, 7, 23, 0, 0, 0, time.UTC), Status: model.StatusPending, Participants: 3},
		{MeetingID: "next-week", ScheduledAt: time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), Status: model.StatusRejected, Participants: 4},
	}

	got := ComputeStats(ms, now)
	assert.Equal(t, DashboardStats{
		TotalMeetings:           3,
		UpcomingMeetings:        2,
		PendingInvitations:      1,
		CurrentWeekMeetingCount: 2,
		AvgParticipants:         3,
		SuccessRate:             0.33,
	}, got)
}

func TestComputeStatsEmpty(t *testing.T) {
	assert.Equal(t, DashboardStats{}, ComputeStats(nil, time.Now()))
}

func TestStartOfWeekOnSunday(t *testing.T) {
	sun := time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), startOfWeek(sun))
}

func TestInviteList(t *testing.T) {
	got := inviteList("Alice@Example.com", []participantInput{
		{Name: "Alice", Email: "alice@example.com"},
		{Name: " Bob ", Email: "BOB@Example.com"},
		{Name: "Bobby", Email: "bob@example.com"},
		{Name: "Carol", Email: "carol@example.com "},
	})

	assert.Len(t, got, 2)
	assert.Equal(t, "Bob", got[0].Name)
	assert.Equal(t, "bob@example.com", got[0].Email)
	assert.Equal(t, "carol@example.com", got[1].Email)
	for _, p := range got {
		assert.Equal(t, model.StatusPending, p.Status)
	}
}

func TestValidTimes(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	before := start.Add(-time.Minute)
	after := start.Add(time.Hour)

	assert.NoError(t, validTimes(start, nil))
	assert.NoError(t, validTimes(start, &after))
	assert.ErrorIs(t, validTimes(start, &before), model.ErrInvalidInput)
	assert.ErrorIs(t, validTimes(start, &start), model.ErrInvalidInput)
}
