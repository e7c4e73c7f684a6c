package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"meet-in-the-middle-api/internal/model"
)

func (h *Handler) Equidistant(c *gin.Context) {
	p, err := h.engine.ComputeCentroid(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Equidistant point calculated", gin.H{"equidistantPoint": p})
}

func (h *Handler) Locations(c *gin.Context) {
	locs, err := h.engine.ParticipantLocations(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Participant locations", gin.H{"locations": locs})
}

func (h *Handler) Nearby(c *gin.Context) {
	center, places, err := h.engine.FindNearbyPlaces(c.Request.Context(), c.Param("id"), c.Query("type"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Nearby places", gin.H{"equidistantPoint": center, "places": places})
}

func (h *Handler) ListSuggestions(c *gin.Context) {
	list, err := h.engine.ListSuggestions(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Suggested locations", gin.H{"suggestions": list})
}

type addSuggestionRequest struct {
	PlaceID          string       `json:"placeId"`
	Name             string       `json:"name" binding:"required"`
	Address          string       `json:"address"`
	Location         *model.Point `json:"location" binding:"required"`
	Rating           float64      `json:"rating" binding:"gte=0,lte=5"`
	UserRatingsTotal int          `json:"userRatingsTotal" binding:"gte=0"`
	Photos           []string     `json:"photos"`
}

func (h *Handler) AddSuggestion(c *gin.Context) {
	var req addSuggestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bad(c, err.Error())
		return
	}
	place := model.Place{
		PlaceID:          req.PlaceID,
		Name:             req.Name,
		Address:          req.Address,
		Location:         *req.Location,
		Rating:           req.Rating,
		UserRatingsTotal: req.UserRatingsTotal,
		Photos:           req.Photos,
	}
	if place.Photos == nil {
		place.Photos = []string{}
	}
	s, err := h.engine.AddSuggestion(c.Request.Context(), c.Param("id"), place)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "Location suggested", gin.H{"suggestion": s})
}

// PopulateSuggestions accepts ?type= and ?limit= (default 5).
func (h *Handler) PopulateSuggestions(c *gin.Context) {
	limit := 5
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 20 {
			bad(c, "limit must be between 1 and 20")
			return
		}
		limit = n
	}
	added, err := h.engine.PopulateSuggestions(c.Request.Context(), c.Param("id"), c.Query("type"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, fmt.Sprintf("%d locations suggested", len(added)), gin.H{"suggestions": added})
}

func (h *Handler) Vote(c *gin.Context) {
	id := identity(c)
	s, err := h.engine.ToggleVote(c.Request.Context(), c.Param("id"), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	msg := "Vote removed"
	if s.HasVoter(id.ID) {
		msg = "Vote recorded"
	}
	respond(c, http.StatusOK, msg, gin.H{"suggestion": s})
}

func (h *Handler) Finalize(c *gin.Context) {
	ctx := c.Request.Context()
	actor := identity(c)
	meetingID := c.Param("id")

	w, err := h.engine.Finalize(ctx, actor, meetingID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.AnnounceLocation(ctx, actor, meetingID, w)
	respond(c, http.StatusOK, "Location finalized", gin.H{"suggestion": w})
}

// AnnounceLocation notifies and mails the participants of a finalized meeting.
func (h *Handler) AnnounceLocation(ctx context.Context, actor model.Identity, meetingID string, w *model.SuggestedLocation) {
	m, err := h.engine.Meeting(ctx, meetingID)
	if err != nil {
		h.log.Warn("finalized meeting not reloaded", "meeting_id", meetingID, "err", err)
		return
	}
	ps, err := h.engine.Participants(ctx, meetingID)
	if err != nil {
		h.log.Warn("participants not loaded", "meeting_id", meetingID, "err", err)
		return
	}
	h.notify(ctx, actor.ID, ps, model.NotifyLocationFinal,
		fmt.Sprintf("%q will take place at %s", m.Title, w.Place.Name),
		map[string]any{"meetingId": meetingID, "suggestionId": w.ID})
	for _, p := range ps {
		if p.Email == actor.Email || p.Status == model.StatusRejected {
			continue
		}
		h.sendMail("location_finalized", p.Email, func() error {
			return h.mail.SendLocationFinalized(p.Email, *m, w.Place)
		})
	}
}
