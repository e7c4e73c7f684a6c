// Package mail sends transactional email over SMTP.
package mail

import (
	"fmt"
	"html"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/gomail.v2"

	"meet-in-the-middle-api/internal/model"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	AppURL   string
}

type Service struct {
	from   string
	appURL string
	send   func(...*gomail.Message) error
	now    func() time.Time
}

// NewService returns a mailer. With no SMTP host configured, messages are
// logged and dropped.
func NewService(cfg Config) *Service {
	s := &Service{from: cfg.From, appURL: cfg.AppURL, now: time.Now}
	if s.from == "" {
		s.from = cfg.Username
	}
	if cfg.Host == "" {
		s.send = func(msgs ...*gomail.Message) error {
			for _, m := range msgs {
				slog.Info("mail disabled, dropping message", "to", m.GetHeader("To"), "subject", m.GetHeader("Subject"))
			}
			return nil
		}
		return s
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	s.send = d.DialAndSend
	return s
}

func (s *Service) deliver(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: auto; padding: 20px;">`+
		body+`<p>The Meet in the Middle team</p></div>`)
	return s.send(m)
}

func button(href, label string) string {
	return `<p style="text-align: center;"><a href="` + html.EscapeString(href) +
		`" style="display: inline-block; padding: 10px 20px; background-color: #007bff; color: #fff; text-decoration: none; border-radius: 5px;">` +
		html.EscapeString(label) + `</a></p>`
}

// when renders "Mon, 02 Jan 2006 15:04 UTC (3 days from now)".
func (s *Service) when(t time.Time) string {
	return fmt.Sprintf("%s (%s)", t.UTC().Format("Mon, 02 Jan 2006 15:04 MST"), humanize.RelTime(t, s.now(), "ago", "from now"))
}

func (s *Service) invitation(inviter string, m model.Meeting) (subject, body string) {
	body = fmt.Sprintf(`<h2>%s</h2><p>%s invited you to a meeting on %s.</p><p>%s</p>`,
		html.EscapeString(m.Title), html.EscapeString(inviter), s.when(m.ScheduledAt), html.EscapeString(m.Description))
	return "Invitation: " + m.Title, body + button(m.MeetingLink, "View invitation")
}

func (s *Service) SendInvitation(to, inviter string, m model.Meeting) error {
	subject, body := s.invitation(inviter, m)
	return s.deliver(to, subject, body)
}

func (s *Service) SendCancellation(to string, m model.Meeting) error {
	body := fmt.Sprintf(`<h2>%s</h2><p>The meeting planned for %s has been cancelled by its organizer.</p>`,
		html.EscapeString(m.Title), s.when(m.ScheduledAt))
	return s.deliver(to, "Cancelled: "+m.Title, body)
}

func (s *Service) finalized(m model.Meeting, p model.Place) (subject, body string) {
	body = fmt.Sprintf(`<h2>%s</h2><p>The meeting on %s will take place at <b>%s</b>, %s.</p>`,
		html.EscapeString(m.Title), s.when(m.ScheduledAt), html.EscapeString(p.Name), html.EscapeString(p.Address))
	return "Location set: " + m.Title, body + button(m.MeetingLink, "Open meeting")
}

func (s *Service) SendLocationFinalized(to string, m model.Meeting, p model.Place) error {
	subject, body := s.finalized(m, p)
	return s.deliver(to, subject, body)
}

func linkBody(text, link, label string) string {
	return `<p>` + text + `</p>` + button(link, label)
}

func (s *Service) SendMagicLink(to, link string) error {
	return s.deliver(to, "Your sign-in link",
		linkBody("Use the link below to sign in. It expires in 15 minutes and works once.", link, "Sign in"))
}

func (s *Service) SendPasswordReset(to, link string) error {
	return s.deliver(to, "Reset your password",
		linkBody("Someone asked to reset the password for this account. If it was you, follow the link within 15 minutes.", link, "Reset password"))
}
