package model

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// ParseStatus accepts any casing ("Pending", "ACCEPTED") and returns the canonical value.
func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, true
	case StatusAccepted:
		return StatusAccepted, true
	case StatusRejected:
		return StatusRejected, true
	}
	return "", false
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Avatar       string    `json:"avatar"`
	AuthProvider string    `json:"authProvider"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Identity is the authenticated caller injected by the auth middleware.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type Location struct {
	Lat       *float64 `json:"lat,omitempty"`
	Lng       *float64 `json:"lng,omitempty"`
	PlaceName string   `json:"placeName,omitempty"`
}

func (l Location) HasCoords() bool { return l.Lat != nil && l.Lng != nil }

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Meeting struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	CreatorID    string     `json:"creator"`
	ScheduledAt  time.Time  `json:"scheduledAt"`
	EndsAt       *time.Time `json:"endsAt,omitempty"`
	MeetingLink  string     `json:"meetingLink"`
	Participants []string   `json:"participants"`
	Suggestions  []string   `json:"suggestedLocations"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type Participant struct {
	ID        string    `json:"id"`
	UserID    *string   `json:"user,omitempty"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Status    Status    `json:"status"`
	Location  Location  `json:"location"`
	MeetingID string    `json:"meeting"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Membership is a participant row joined to its meeting.
type Membership struct {
	Meeting Meeting `json:"meeting"`
	Status  Status  `json:"status"`
}

type Conflict struct {
	Meeting Meeting `json:"meeting"`
	Status  Status  `json:"status"`
}

// Place is a pass-through projection of a places directory result.
type Place struct {
	PlaceID          string   `json:"placeId"`
	Name             string   `json:"name"`
	Address          string   `json:"address"`
	Location         Point    `json:"location"`
	Rating           float64  `json:"rating"`
	UserRatingsTotal int      `json:"userRatingsTotal"`
	Photos           []string `json:"photos"`
}

type SuggestedLocation struct {
	ID          string    `json:"id"`
	MeetingID   string    `json:"meeting"`
	Place       Place     `json:"place"`
	VoteCount   int       `json:"voteCount"`
	Voters      []string  `json:"voters"`
	IsFinalized bool      `json:"isFinalized"`
	CreatedAt   time.Time `json:"createdAt"`
}

// HasVoter reports whether userID is in the voter set.
func (s *SuggestedLocation) HasVoter(userID string) bool {
	for _, v := range s.Voters {
		if v == userID {
			return true
		}
	}
	return false
}

type Settings struct {
	UserID             string     `json:"userId"`
	EmailNotifications bool       `json:"emailNotifications"`
	PushNotifications  bool       `json:"pushNotifications"`
	MeetingsReminders  bool       `json:"meetingsReminders"`
	InvitationsAlerts  bool       `json:"invitationsAlerts"`
	VotingUpdates      bool       `json:"votingUpdates"`
	WeeklyDigest       bool       `json:"weeklyDigest"`
	LocationSharing    bool       `json:"locationSharing"`
	ActivityStatus     bool       `json:"activityStatus"`
	SearchableProfile  bool       `json:"searchableProfile"`
	Deleted            bool       `json:"deleted"`
	DeletedAt          *time.Time `json:"deletedAt,omitempty"`
}

func DefaultSettings(userID string) Settings {
	return Settings{
		UserID:             userID,
		EmailNotifications: true,
		PushNotifications:  true,
		MeetingsReminders:  true,
		InvitationsAlerts:  true,
		VotingUpdates:      true,
		WeeklyDigest:       true,
		LocationSharing:    true,
		ActivityStatus:     true,
		SearchableProfile:  true,
	}
}

type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Kind      string         `json:"type"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"createdAt"`
}

const (
	NotifyMeetingAccepted = "MEETING_ACCEPTED"
	NotifyMeetingRejected = "MEETING_REJECTED"
	NotifyMeetingDeleted  = "MEETING_DELETED"
	NotifyLocationFinal   = "LOCATION_FINALIZED"
)

type Activity struct {
	Type      string         `json:"type"`
	UserID    string         `json:"user"`
	Target    map[string]any `json:"target"`
	Timestamp time.Time      `json:"timestamp"`
}

// MeetingSummary is one participation of a user, reduced to what dashboard stats need.
type MeetingSummary struct {
	MeetingID    string
	ScheduledAt  time.Time
	Status       Status
	Participants int
}

const (
	ActivityMeetingCreated    = "meetingCreated"
	ActivityParticipantAction = "participantAction"
)
