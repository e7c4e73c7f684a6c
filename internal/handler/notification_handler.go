package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ListNotifications(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			bad(c, "limit must be between 1 and 100")
			return
		}
		limit = n
	}
	ns, err := h.store.Notifications(c.Request.Context(), identity(c).ID, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Notifications", gin.H{"notifications": ns})
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	if err := h.store.MarkNotificationRead(c.Request.Context(), identity(c).ID, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Notification marked as read", nil)
}
