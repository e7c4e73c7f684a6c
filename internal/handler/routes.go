package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"meet-in-the-middle-api/internal/middleware"
)

// Mount mounts every REST route on r. Auth endpoints that take credentials
// or send mail sit behind rl when it is non-nil.
func (h *Handler) Mount(r gin.IRouter, rl *middleware.RateLimiter) {
	r.GET("/health", h.Health)

	pub := r.Group("/auth")
	if rl != nil {
		pub.Use(middleware.RateLimit(rl))
	}
	pub.POST("/register", h.Register)
	pub.POST("/login", h.Login)
	pub.POST("/refresh", h.Refresh)
	pub.POST("/magic-link", h.MagicLink)
	pub.POST("/magic-link/verify", h.VerifyMagicLink)
	pub.POST("/forgot-password", h.ForgotPassword)
	pub.POST("/reset-password/:token", h.ResetPassword)
	pub.GET("/oauth", h.Providers)
	pub.GET("/oauth/:provider", h.OAuthStart)
	pub.GET("/oauth/:provider/callback", h.OAuthCallback)

	api := r.Group("/", middleware.RequireAuth(h.auth))
	api.GET("/auth/me", h.Me)
	api.POST("/auth/logout", h.Logout)

	api.GET("/settings", h.GetSettings)
	api.PUT("/settings", h.UpdateSettings)
	api.POST("/account/delete", h.DeleteAccount)
	api.POST("/account/restore", h.RestoreAccount)
	api.DELETE("/account", h.PurgeAccount)

	api.POST("/meetings", h.CreateMeeting)
	api.GET("/meetings", h.ListMeetings)
	api.GET("/meetings/pending", h.PendingInvitations)
	api.GET("/meetings/upcoming", h.UpcomingMeetings)
	api.GET("/meetings/stats", h.Stats)
	api.GET("/meetings/activity", h.RecentActivity)
	api.GET("/meetings/:id", h.GetMeeting)
	api.PUT("/meetings/:id", h.UpdateMeeting)
	api.DELETE("/meetings/:id", h.DeleteMeeting)
	api.POST("/meetings/:id/accept", h.AcceptMeeting)
	api.POST("/meetings/:id/reject", h.RejectMeeting)
	api.GET("/meetings/:id/conflicts", h.Conflicts)

	api.GET("/meetings/:id/equidistant", h.Equidistant)
	api.GET("/meetings/:id/locations", h.Locations)
	api.GET("/meetings/:id/nearby", h.Nearby)
	api.GET("/meetings/:id/suggestions", h.ListSuggestions)
	api.POST("/meetings/:id/suggestions", h.AddSuggestion)
	api.POST("/meetings/:id/suggestions/populate", h.PopulateSuggestions)
	api.POST("/meetings/:id/finalize", h.Finalize)
	api.POST("/suggestions/:id/vote", h.Vote)

	api.GET("/notifications", h.ListNotifications)
	api.POST("/notifications/:id/read", h.MarkNotificationRead)
}

func (h *Handler) Health(c *gin.Context) {
	if h.store == nil {
		respond(c, http.StatusOK, "ok", nil)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.log.Error("health check", "err", err)
		respond(c, http.StatusServiceUnavailable, "database unavailable", nil)
		return
	}
	respond(c, http.StatusOK, "ok", nil)
}
