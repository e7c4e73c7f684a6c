package handler

import (
	"context"
	"log/slog"

	"meet-in-the-middle-api/internal/auth"
	"meet-in-the-middle-api/internal/coord"
	"meet-in-the-middle-api/internal/model"
	"meet-in-the-middle-api/internal/store"
)

// Mailer is the outgoing mail the handlers trigger. Sends are best effort.
type Mailer interface {
	SendInvitation(to, inviter string, m model.Meeting) error
	SendCancellation(to string, m model.Meeting) error
	SendLocationFinalized(to string, m model.Meeting, p model.Place) error
	SendMagicLink(to, link string) error
	SendPasswordReset(to, link string) error
}

// Notifier records in-app notifications.
type Notifier interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
}

type Deps struct {
	Store       *store.Store
	Engine      *coord.Engine
	Auth        *auth.Service
	Mail        Mailer
	Notes       Notifier
	Log         *slog.Logger
	FrontendURL string
}

type Handler struct {
	store       *store.Store
	engine      *coord.Engine
	auth        *auth.Service
	mail        Mailer
	notes       Notifier
	log         *slog.Logger
	frontendURL string
}

func New(d Deps) *Handler {
	h := &Handler{
		store:       d.Store,
		engine:      d.Engine,
		auth:        d.Auth,
		mail:        d.Mail,
		notes:       d.Notes,
		log:         d.Log,
		frontendURL: d.FrontendURL,
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	if h.notes == nil && d.Store != nil {
		h.notes = d.Store
	}
	return h
}

// notify writes one notification per recipient, skipping the actor and
// participants without an account. Failures are logged, not returned.
func (h *Handler) notify(ctx context.Context, actorID string, ps []model.Participant, kind, msg string, data map[string]any) {
	if h.notes == nil {
		return
	}
	for _, p := range ps {
		if p.UserID == nil || *p.UserID == actorID {
			continue
		}
		n := &model.Notification{UserID: *p.UserID, Kind: kind, Message: msg, Data: data}
		if err := h.notes.CreateNotification(ctx, n); err != nil {
			h.log.Warn("notification not stored", "user_id", *p.UserID, "kind", kind, "err", err)
		}
	}
}

func (h *Handler) sendMail(what, to string, send func() error) {
	if h.mail == nil {
		return
	}
	if err := send(); err != nil {
		h.log.Warn("mail not sent", "kind", what, "to", to, "err", err)
	}
}
