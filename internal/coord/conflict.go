package coord

import (
	"context"
	"fmt"
	"time"

	"meet-in-the-middle-api/internal/model"
)

// Interval is a half-open time range. A nil End means the range has no known end
// and is not comparable.
type Interval struct {
	Start time.Time
	End   *time.Time
}

func intervalOf(m *model.Meeting) Interval {
	return Interval{Start: m.ScheduledAt, End: m.EndsAt}
}

// Overlaps uses strict bounds on both sides, so back-to-back ranges do not overlap.
func Overlaps(a, b Interval) bool {
	if a.End == nil || b.End == nil {
		return false
	}
	return a.Start.Before(*b.End) && b.Start.Before(*a.End)
}

// FindConflicts returns the caller's non-rejected meetings that overlap the candidate.
func (e *Engine) FindConflicts(ctx context.Context, email, meetingID string) ([]model.Conflict, error) {
	candidate, err := e.repo.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("load meeting: %w", err)
	}

	memberships, err := e.repo.ActiveMemberships(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("load memberships: %w", err)
	}

	return conflictsWith(candidate, memberships), nil
}

func conflictsWith(candidate *model.Meeting, memberships []model.Membership) []model.Conflict {
	c := intervalOf(candidate)
	out := []model.Conflict{}
	for _, m := range memberships {
		if m.Status == model.StatusRejected || m.Meeting.ID == candidate.ID {
			continue
		}
		if Overlaps(intervalOf(&m.Meeting), c) {
			out = append(out, model.Conflict{Meeting: m.Meeting, Status: m.Status})
		}
	}
	return out
}
