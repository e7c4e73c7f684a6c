package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type settingsRequest struct {
	EmailNotifications *bool `json:"emailNotifications"`
	PushNotifications  *bool `json:"pushNotifications"`
	MeetingsReminders  *bool `json:"meetingsReminders"`
	InvitationsAlerts  *bool `json:"invitationsAlerts"`
	VotingUpdates      *bool `json:"votingUpdates"`
	WeeklyDigest       *bool `json:"weeklyDigest"`
	LocationSharing    *bool `json:"locationSharing"`
	ActivityStatus     *bool `json:"activityStatus"`
	SearchableProfile  *bool `json:"searchableProfile"`
}

func set(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func (h *Handler) GetSettings(c *gin.Context) {
	st, err := h.store.Settings(c.Request.Context(), identity(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Settings", gin.H{"settings": st})
}

// UpdateSettings applies only the fields present in the body.
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bad(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	st, err := h.store.Settings(ctx, identity(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	set(&st.EmailNotifications, req.EmailNotifications)
	set(&st.PushNotifications, req.PushNotifications)
	set(&st.MeetingsReminders, req.MeetingsReminders)
	set(&st.InvitationsAlerts, req.InvitationsAlerts)
	set(&st.VotingUpdates, req.VotingUpdates)
	set(&st.WeeklyDigest, req.WeeklyDigest)
	set(&st.LocationSharing, req.LocationSharing)
	set(&st.ActivityStatus, req.ActivityStatus)
	set(&st.SearchableProfile, req.SearchableProfile)

	if err := h.store.UpdateSettings(ctx, st); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Settings updated", gin.H{"settings": st})
}

// DeleteAccount soft deletes the caller. Sign-in is refused until restored.
func (h *Handler) DeleteAccount(c *gin.Context) {
	if err := h.store.SetDeleted(c.Request.Context(), identity(c).ID, true); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Account deleted", nil)
}

func (h *Handler) RestoreAccount(c *gin.Context) {
	if err := h.store.SetDeleted(c.Request.Context(), identity(c).ID, false); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Account restored", nil)
}

func (h *Handler) PurgeAccount(c *gin.Context) {
	id := identity(c)
	if err := h.store.PurgeUser(c.Request.Context(), id.ID); err != nil {
		h.fail(c, err)
		return
	}
	h.log.Info("account purged", "user_id", id.ID)
	respond(c, http.StatusOK, "Account permanently deleted", nil)
}
