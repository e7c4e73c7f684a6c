package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"meet-in-the-middle-api/internal/auth"
	"meet-in-the-middle-api/internal/model"
	"meet-in-the-middle-api/internal/store"
)

type registerRequest struct {
	Name     string `json:"name" binding:"required,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type tokenPair struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	User         *model.User `json:"user"`
}

func normEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// session issues an access token and a fresh refresh token for u.
func (h *Handler) session(ctx context.Context, u *model.User) (*tokenPair, error) {
	tok, err := h.auth.AccessToken(model.Identity{ID: u.ID, Email: u.Email})
	if err != nil {
		return nil, err
	}
	raw, hash, err := auth.GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}
	if _, err := h.store.CreateRefreshToken(ctx, u.ID, hash, time.Now().Add(auth.RefreshTTL)); err != nil {
		return nil, err
	}
	return &tokenPair{Token: tok, RefreshToken: raw, User: u}, nil
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bad(c, err.Error())
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	u := &model.User{
		ID:           uuid.New().String(),
		Email:        normEmail(req.Email),
		PasswordHash: hash,
		Name:         strings.TrimSpace(req.Name),
	}
	ctx := c.Request.Context()
	if err := h.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, model.ErrDuplicate) {
			// don't reveal which emails are registered
			respond(c, http.StatusConflict, "registration failed", nil)
			return
		}
		h.fail(c, err)
		return
	}
	pair, err := h.session(ctx, u)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "Registered successfully", pair)
}

// activeUser refuses accounts that have been soft deleted.
func (h *Handler) activeUser(ctx context.Context, u *model.User) error {
	st, err := h.store.Settings(ctx, u.ID)
	if err != nil {
		return err
	}
	if st.Deleted {
		return model.ErrUnauthorized
	}
	return nil
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bad(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	u, err := h.store.UserByEmail(ctx, normEmail(req.Email))
	if err != nil || !auth.CheckPassword(u.PasswordHash, req.Password) {
		respond(c, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}
	if err := h.activeUser(ctx, u); err != nil {
		respond(c, http.StatusUnauthorized, "account deleted", nil)
		return
	}
	pair, err := h.session(ctx, u)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Logged in", pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// Refresh rotates the refresh token. Replaying a revoked token revokes every
// token of the user.
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bad(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	rt, err := h.store.RefreshTokenByHash(ctx, auth.HashOpaqueToken(req.RefreshToken))
	if err != nil {
		respond(c, http.StatusUnauthorized, "invalid refresh token", nil)
		return
	}
	if rt.Revoked {
		h.log.Warn("revoked refresh token replayed", "user_id", rt.UserID)
		if err := h.store.RevokeAllRefreshTokens(ctx, rt.UserID); err != nil {
			h.log.Error("revoke all", "user_id", rt.UserID, "err", err)
		}
		respond(c, http.StatusUnauthorized, "invalid refresh token", nil)
		return
	}
	if !rt.Usable(time.Now()) {
		respond(c, http.StatusUnauthorized, "refresh token expired", nil)
		return
	}

	u, err := h.store.UserByID(ctx, rt.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	raw, hash, err := auth.GenerateOpaqueToken()
	if err != nil {
		h.fail(c, err)
		return
	}
	if _, err := h.store.RotateRefreshToken(ctx, rt.ID, u.ID, hash, time.Now().Add(auth.RefreshTTL)); err != nil {
		if errors.Is(err, model.ErrUnauthorized) {
			respond(c, http.StatusUnauthorized, "invalid refresh token", nil)
			return
		}
		h.fail(c, err)
		return
	}
	tok, err := h.auth.AccessToken(model.Identity{ID: u.ID, Email: u.Email})
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Token refreshed", tokenPair{Token: tok, RefreshToken: raw, User: u})
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.store.RevokeAllRefreshTokens(c.Request.Context(), identity(c).ID); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Logged out", nil)
}

func (h *Handler) Me(c *gin.Context) {
	u, err := h.store.UserByID(c.Request.Context(), identity(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Current user", gin.H{"user": u})
}

type emailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// issueLink stores a one-time token for email and returns the frontend link carrying it.
func (h *Handler) issueLink(ctx context.Context, email, purpose, path string) (string, error) {
	raw, hash, err := auth.GenerateOpaqueToken()
	if err != nil {
		return "", err
	}
	if err := h.store.CreateOneTimeToken(ctx, email, purpose, hash, time.Now().Add(auth.OneTimeTTL)); err != nil {
		return "", err
	}
	return strings.TrimRight(h.frontendURL, "/") + path + url.PathEscape(raw), nil
}

func (h *Handler) MagicLink(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bad(c, err.Error())
		return
	}
	email := normEmail(req.Email)
	link, err := h.issueLink(c.Request.Context(), email, store.PurposeMagicLink, "/auth/magic-link?token=")
	if err != nil {
		h.fail(c, err)
		return
	}
	h.sendMail("magic_link", email, func() error { return h.mail.SendMagicLink(email, link) })
	respond(c, http.StatusOK, "If the address is valid, a sign-in link is on its way", nil)
}

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// VerifyMagicLink consumes the token and signs the user in, creating the
// account on first use.
func (h *Handler) VerifyMagicLink(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bad(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	email, err := h.store.ConsumeOneTimeToken(ctx, store.PurposeMagicLink, auth.HashOpaqueToken(req.Token))
	if err != nil {
		respond(c, http.StatusUnauthorized, "link expired or already used", nil)
		return
	}
	name, _, _ := strings.Cut(email, "@")
	u, err := h.findOrCreate(ctx, email, name, "", "magic_link")
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.activeUser(ctx, u); err != nil {
		respond(c, http.StatusUnauthorized, "account deleted", nil)
		return
	}
	pair, err := h.session(ctx, u)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Logged in", pair)
}

// findOrCreate returns the user for email, registering one with a random
// password when none exists.
func (h *Handler) findOrCreate(ctx context.Context, email, name, avatar, provider string) (*model.User, error) {
	u, err := h.store.UserByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}
	pw, _, err := auth.GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(pw[:32])
	if err != nil {
		return nil, err
	}
	u = &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Avatar:       avatar,
		AuthProvider: provider,
	}
	if err := h.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, model.ErrDuplicate) {
			// lost a race with a concurrent sign-in
			return h.store.UserByEmail(ctx, email)
		}
		return nil, err
	}
	return u, nil
}

func (h *Handler) ForgotPassword(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bad(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	email := normEmail(req.Email)
	const msg = "If the address is registered, a reset link is on its way"

	if _, err := h.store.UserByEmail(ctx, email); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond(c, http.StatusOK, msg, nil)
			return
		}
		h.fail(c, err)
		return
	}
	link, err := h.issueLink(ctx, email, store.PurposePasswordReset, "/reset-password/")
	if err != nil {
		h.fail(c, err)
		return
	}
	h.sendMail("password_reset", email, func() error { return h.mail.SendPasswordReset(email, link) })
	respond(c, http.StatusOK, msg, nil)
}

type resetRequest struct {
	Password string `json:"password" binding:"required,min=8,max=72"`
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bad(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	email, err := h.store.ConsumeOneTimeToken(ctx, store.PurposePasswordReset, auth.HashOpaqueToken(c.Param("token")))
	if err != nil {
		respond(c, http.StatusBadRequest, "reset link expired or already used", nil)
		return
	}
	u, err := h.store.UserByEmail(ctx, email)
	if err != nil {
		h.fail(c, err)
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.store.UpdatePassword(ctx, u.ID, hash); err != nil {
		h.fail(c, err)
		return
	}
	// existing sessions end with the old password
	if err := h.store.RevokeAllRefreshTokens(ctx, u.ID); err != nil {
		h.log.Warn("refresh tokens not revoked after reset", "user_id", u.ID, "err", err)
	}
	respond(c, http.StatusOK, "Password updated", nil)
}

func (h *Handler) OAuthStart(c *gin.Context) {
	provider := c.Param("provider")
	st, err := h.auth.Strategy(provider)
	if err != nil {
		respond(c, http.StatusNotFound, err.Error(), nil)
		return
	}
	state, err := h.auth.State(provider)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Redirect(http.StatusFound, st.AuthCodeURL(state))
}

func (h *Handler) OAuthCallback(c *gin.Context) {
	provider := c.Param("provider")
	st, err := h.auth.Strategy(provider)
	if err != nil {
		respond(c, http.StatusNotFound, err.Error(), nil)
		return
	}
	if err := h.auth.CheckState(provider, c.Query("state")); err != nil {
		respond(c, http.StatusBadRequest, "invalid state", nil)
		return
	}
	code := c.Query("code")
	if code == "" {
		respond(c, http.StatusBadRequest, "missing code", nil)
		return
	}

	ctx := c.Request.Context()
	p, err := st.Profile(ctx, code)
	if err != nil {
		h.log.Warn("oauth profile", "provider", provider, "err", err)
		respond(c, http.StatusUnauthorized, "sign-in with "+provider+" failed", nil)
		return
	}
	u, err := h.findOrCreate(ctx, normEmail(p.Email), p.Name, p.Avatar, provider)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.activeUser(ctx, u); err != nil {
		respond(c, http.StatusUnauthorized, "account deleted", nil)
		return
	}
	pair, err := h.session(ctx, u)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Logged in", pair)
}

func (h *Handler) Providers(c *gin.Context) {
	respond(c, http.StatusOK, "OAuth providers", gin.H{"providers": h.auth.Providers()})
}
