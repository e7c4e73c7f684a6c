package handler

import (
	"math"
	"time"

	"meet-in-the-middle-api/internal/model"
)

type DashboardStats struct {
	TotalMeetings           int     `json:"totalMeetings"`
	UpcomingMeetings        int     `json:"upcomingMeetings"`
	PendingInvitations      int     `json:"pendingInvitations"`
	CurrentWeekMeetingCount int     `json:"currentWeekMeetingCount"`
	AvgParticipants         float64 `json:"avgParticipants"`
	SuccessRate             float64 `json:"successRate"`
}

// startOfWeek is midnight on the Sunday that begins now's week, in now's location.
func startOfWeek(now time.Time) time.Time {
	y, m, d := now.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// ComputeStats summarises a user's participations. Rejected invitations count
// toward the total and lower the success rate.
func ComputeStats(ms []model.MeetingSummary, now time.Time) DashboardStats {
	var s DashboardStats
	s.TotalMeetings = len(ms)
	if len(ms) == 0 {
		return s
	}

	weekStart := startOfWeek(now)
	weekEnd := weekStart.AddDate(0, 0, 7)
	participants, accepted := 0, 0
	for _, m := range ms {
		if m.ScheduledAt.After(now) {
			s.UpcomingMeetings++
		}
		if !m.ScheduledAt.Before(weekStart) && m.ScheduledAt.Before(weekEnd) {
			s.CurrentWeekMeetingCount++
		}
		switch m.Status {
		case model.StatusPending:
			s.PendingInvitations++
		case model.StatusAccepted:
			accepted++
		}
		participants += m.Participants
	}
	n := float64(len(ms))
	s.AvgParticipants = float64(participants) / n
	s.SuccessRate = math.Round(float64(accepted)/n*100) / 100
	return s
}
