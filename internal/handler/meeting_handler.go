package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"meet-in-the-middle-api/internal/model"
)

type locationInput struct {
	Lat       *float64 `json:"lat" binding:"required,gte=-90,lte=90"`
	Lng       *float64 `json:"lng" binding:"required,gte=-180,lte=180"`
	PlaceName string   `json:"placeName" binding:"max=200"`
}

func (l *locationInput) location() model.Location {
	if l == nil {
		return model.Location{}
	}
	return model.Location{Lat: l.Lat, Lng: l.Lng, PlaceName: l.PlaceName}
}

type participantInput struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

type createMeetingRequest struct {
	Title           string             `json:"title" binding:"required,min=3,max=100"`
	Description     string             `json:"description" binding:"max=500"`
	ScheduledAt     time.Time          `json:"scheduledAt" binding:"required"`
	EndsAt          *time.Time         `json:"endsAt"`
	Participants    []participantInput `json:"participants" binding:"dive"`
	CreatorLocation *locationInput     `json:"creatorLocation"`
}

func validTimes(start time.Time, end *time.Time) error {
	if end != nil && !end.After(start) {
		return fmt.Errorf("%w: endsAt must be after scheduledAt", model.ErrInvalidInput)
	}
	return nil
}

// inviteList drops the creator's own address and collapses duplicate emails.
// Emails are stored lowercased to match account addresses.
func inviteList(creatorEmail string, in []participantInput) []model.Participant {
	seen := map[string]bool{strings.ToLower(creatorEmail): true}
	out := []model.Participant{}
	for _, p := range in {
		key := strings.ToLower(strings.TrimSpace(p.Email))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, model.Participant{
			Name:   strings.TrimSpace(p.Name),
			Email:  key,
			Status: model.StatusPending,
		})
	}
	return out
}

func (h *Handler) CreateMeeting(c *gin.Context) {
	var req createMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bad(c, err.Error())
		return
	}
	if err := validTimes(req.ScheduledAt, req.EndsAt); err != nil {
		h.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	id := identity(c)
	creator, err := h.store.UserByID(ctx, id.ID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			err = model.ErrUnauthorized
		}
		h.fail(c, err)
		return
	}

	m := &model.Meeting{
		ID:          uuid.New().String(),
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		CreatorID:   creator.ID,
		ScheduledAt: req.ScheduledAt,
		EndsAt:      req.EndsAt,
	}
	m.MeetingLink = strings.TrimRight(h.frontendURL, "/") + "/meeting/" + m.ID

	invitees := inviteList(creator.Email, req.Participants)
	ps := append([]model.Participant{{
		UserID:   &creator.ID,
		Name:     creator.Name,
		Email:    creator.Email,
		Status:   model.StatusAccepted,
		Location: req.CreatorLocation.location(),
	}}, invitees...)

	if err := h.store.CreateMeeting(ctx, m, ps); err != nil {
		h.fail(c, err)
		return
	}

	for _, p := range invitees {
		h.sendMail("invitation", p.Email, func() error {
			return h.mail.SendInvitation(p.Email, creator.Name, *m)
		})
	}
	respond(c, http.StatusCreated, "Meeting created successfully", gin.H{"meeting": m})
}

func (h *Handler) ListMeetings(c *gin.Context) {
	page, items := paging(c)
	ms, total, err := h.store.MeetingsForUser(c.Request.Context(), identity(c), page, items)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Meetings fetched successfully", gin.H{
		"meetings": ms, "total": total, "pageNo": page, "items": items,
	})
}

func (h *Handler) PendingInvitations(c *gin.Context) {
	ms, err := h.store.PendingInvitations(c.Request.Context(), identity(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Pending invitations", gin.H{"meetings": ms})
}

func (h *Handler) UpcomingMeetings(c *gin.Context) {
	page, items := paging(c)
	ms, err := h.store.UpcomingMeetings(c.Request.Context(), identity(c).Email, time.Now(), page, items)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Upcoming meetings", gin.H{"meetings": ms})
}

func (h *Handler) GetMeeting(c *gin.Context) {
	ctx := c.Request.Context()
	m, err := h.store.GetMeeting(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ps, err := h.store.ListParticipants(ctx, m.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Meeting fetched", gin.H{"meeting": m, "participants": ps})
}

type updateMeetingRequest struct {
	Title       *string    `json:"title" binding:"omitempty,min=3,max=100"`
	Description *string    `json:"description" binding:"omitempty,max=500"`
	ScheduledAt *time.Time `json:"scheduledAt"`
	EndsAt      *time.Time `json:"endsAt"`
}

func (h *Handler) UpdateMeeting(c *gin.Context) {
	var req updateMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bad(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	m, err := h.store.GetMeeting(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if m.CreatorID != identity(c).ID {
		h.fail(c, model.ErrUnauthorized)
		return
	}

	if req.Title != nil {
		m.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		m.Description = *req.Description
	}
	if req.ScheduledAt != nil {
		m.ScheduledAt = *req.ScheduledAt
	}
	if req.EndsAt != nil {
		m.EndsAt = req.EndsAt
	}
	if err := validTimes(m.ScheduledAt, m.EndsAt); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.store.UpdateMeeting(ctx, m); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Meeting updated", gin.H{"meeting": m})
}

func (h *Handler) DeleteMeeting(c *gin.Context) {
	ctx := c.Request.Context()
	id := identity(c)
	m, err := h.store.GetMeeting(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if m.CreatorID != id.ID {
		h.fail(c, model.ErrUnauthorized)
		return
	}
	ps, err := h.store.DeleteMeeting(ctx, m.ID, id.ID)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.notify(ctx, id.ID, ps, model.NotifyMeetingDeleted,
		fmt.Sprintf("%q was cancelled", m.Title), map[string]any{"meetingId": m.ID, "title": m.Title})
	for _, p := range ps {
		if p.Email == id.Email || p.Status == model.StatusRejected {
			continue
		}
		h.sendMail("cancellation", p.Email, func() error {
			return h.mail.SendCancellation(p.Email, *m)
		})
	}
	respond(c, http.StatusOK, "Meeting deleted", nil)
}

type acceptRequest struct {
	Lat       *float64 `json:"lat" binding:"required,gte=-90,lte=90"`
	Lng       *float64 `json:"lng" binding:"required,gte=-180,lte=180"`
	PlaceName string   `json:"placeName" binding:"max=200"`
}

func (h *Handler) AcceptMeeting(c *gin.Context) {
	var req acceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bad(c, err.Error())
		return
	}
	loc := &model.Location{Lat: req.Lat, Lng: req.Lng, PlaceName: req.PlaceName}
	h.respondTo(c, model.StatusAccepted, loc)
}

func (h *Handler) RejectMeeting(c *gin.Context) {
	h.respondTo(c, model.StatusRejected, nil)
}

func (h *Handler) respondTo(c *gin.Context, status model.Status, loc *model.Location) {
	ctx := c.Request.Context()
	id := identity(c)
	m, err := h.store.GetMeeting(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if m.CreatorID == id.ID {
		h.fail(c, fmt.Errorf("%w: the organizer cannot answer their own invitation", model.ErrUnauthorized))
		return
	}
	p, err := h.store.Respond(ctx, m.ID, id, status, loc)
	if err != nil {
		h.fail(c, err)
		return
	}

	kind, verb := model.NotifyMeetingAccepted, "accepted"
	if status == model.StatusRejected {
		kind, verb = model.NotifyMeetingRejected, "declined"
	}
	creator := model.Participant{UserID: &m.CreatorID}
	h.notify(ctx, id.ID, []model.Participant{creator}, kind,
		fmt.Sprintf("%s %s %q", p.Name, verb, m.Title), map[string]any{"meetingId": m.ID, "participantId": p.ID})

	respond(c, http.StatusOK, "Invitation "+verb, gin.H{"participant": p})
}

func (h *Handler) Conflicts(c *gin.Context) {
	conflicts, err := h.engine.FindConflicts(c.Request.Context(), identity(c).Email, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	msg := "No conflicts found"
	if len(conflicts) > 0 {
		msg = "Conflicts found"
	}
	respond(c, http.StatusOK, msg, gin.H{"conflicts": conflicts})
}

func (h *Handler) Stats(c *gin.Context) {
	ms, err := h.store.MeetingSummaries(c.Request.Context(), identity(c).Email)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Dashboard stats", ComputeStats(ms, time.Now()))
}

func (h *Handler) RecentActivity(c *gin.Context) {
	limit := 5
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 50 {
			bad(c, "limit must be between 1 and 50")
			return
		}
		limit = n
	}
	acts, err := h.store.RecentActivity(c.Request.Context(), identity(c).ID, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Recent activity", gin.H{"activities": acts})
}
