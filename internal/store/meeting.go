package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"meet-in-the-middle-api/internal/model"
)

const meetingCols = `m.id, m.title, m.description, m.creator_id, m.scheduled_at, m.ends_at,
	m.meeting_link, m.created_at, m.updated_at,
	ARRAY(SELECT p.id FROM participants p WHERE p.meeting_id = m.id ORDER BY p.created_at, p.id),
	ARRAY(SELECT s.id FROM suggested_locations s WHERE s.meeting_id = m.id ORDER BY s.seq)`

func scanMeeting(row pgx.Row, extra ...any) (*model.Meeting, error) {
	m := &model.Meeting{}
	dest := []any{
		&m.ID, &m.Title, &m.Description, &m.CreatorID, &m.ScheduledAt, &m.EndsAt,
		&m.MeetingLink, &m.CreatedAt, &m.UpdatedAt, &m.Participants, &m.Suggestions,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, translate(err)
	}
	return m, nil
}

func collectMeetings(rows pgx.Rows) ([]model.Meeting, error) {
	defer rows.Close()
	out := []model.Meeting{}
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// CreateMeeting inserts the meeting and all of its participants in one
// transaction. Participant ids are assigned here, emails are lowercased and
// invitees are linked to existing accounts by email.
func (s *Store) CreateMeeting(ctx context.Context, m *model.Meeting, participants []model.Participant) error {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO meetings (id, title, description, creator_id, scheduled_at, ends_at, meeting_link)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)
			 RETURNING created_at, updated_at`,
			m.ID, m.Title, m.Description, m.CreatorID, m.ScheduledAt, m.EndsAt, m.MeetingLink,
		).Scan(&m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return err
		}

		m.Participants = make([]string, 0, len(participants))
		for i := range participants {
			p := &participants[i]
			if p.ID == "" {
				p.ID = uuid.New().String()
			}
			p.MeetingID = m.ID
			p.Email = strings.ToLower(strings.TrimSpace(p.Email))
			err := tx.QueryRow(ctx,
				`INSERT INTO participants (id, meeting_id, user_id, name, email, status, lat, lng, place_name)
				 VALUES ($1, $2, COALESCE($3, (SELECT id FROM users WHERE email = $5)), $4, $5, $6, $7, $8, $9)
				 RETURNING user_id, created_at, updated_at`,
				p.ID, m.ID, p.UserID, p.Name, p.Email, p.Status,
				p.Location.Lat, p.Location.Lng, p.Location.PlaceName,
			).Scan(&p.UserID, &p.CreatedAt, &p.UpdatedAt)
			if err != nil {
				return err
			}
			m.Participants = append(m.Participants, p.ID)
		}
		return nil
	})
	if err != nil {
		return translate(err)
	}
	m.Suggestions = []string{}
	return nil
}

func (s *Store) GetMeeting(ctx context.Context, id string) (*model.Meeting, error) {
	return scanMeeting(s.pool.QueryRow(ctx, `SELECT `+meetingCols+` FROM meetings m WHERE m.id = $1`, id))
}

// MeetingsForUser pages through meetings the user created or takes part in,
// newest schedule first. total is the unpaged count.
func (s *Store) MeetingsForUser(ctx context.Context, id model.Identity, page, items int) (meetings []model.Meeting, total int, err error) {
	const where = ` FROM meetings m
		WHERE m.creator_id = $1
		   OR EXISTS (SELECT 1 FROM participants p WHERE p.meeting_id = m.id AND p.email = $2)`

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*)`+where, id.ID, id.Email).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+meetingCols+where+` ORDER BY m.scheduled_at DESC, m.id LIMIT $3 OFFSET $4`,
		id.ID, id.Email, items, (page-1)*items,
	)
	if err != nil {
		return nil, 0, err
	}
	meetings, err = collectMeetings(rows)
	return meetings, total, err
}

// PendingInvitations lists meetings other people invited email to that have
// not been answered yet.
func (s *Store) PendingInvitations(ctx context.Context, id model.Identity) ([]model.Meeting, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+meetingCols+`
		 FROM meetings m JOIN participants p ON p.meeting_id = m.id
		 WHERE p.email = $1 AND p.status = 'pending' AND m.creator_id <> $2
		 ORDER BY m.scheduled_at`,
		id.Email, id.ID,
	)
	if err != nil {
		return nil, err
	}
	return collectMeetings(rows)
}

func (s *Store) UpcomingMeetings(ctx context.Context, email string, now time.Time, page, items int) ([]model.Meeting, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+meetingCols+`
		 FROM meetings m JOIN participants p ON p.meeting_id = m.id
		 WHERE p.email = $1 AND m.scheduled_at >= $2
		 ORDER BY m.scheduled_at
		 LIMIT $3 OFFSET $4`,
		email, now, items, (page-1)*items,
	)
	if err != nil {
		return nil, err
	}
	return collectMeetings(rows)
}

// UpdateMeeting rewrites the editable fields. Only the creator's row matches.
func (s *Store) UpdateMeeting(ctx context.Context, m *model.Meeting) error {
	err := s.pool.QueryRow(ctx,
		`UPDATE meetings
		 SET title=$1, description=$2, scheduled_at=$3, ends_at=$4, updated_at=NOW()
		 WHERE id=$5 AND creator_id=$6
		 RETURNING updated_at`,
		m.Title, m.Description, m.ScheduledAt, m.EndsAt, m.ID, m.CreatorID,
	).Scan(&m.UpdatedAt)
	return translate(err)
}

// DeleteMeeting removes the meeting and returns who was taking part, so the
// caller can notify them. Suggestions and participants go with it.
func (s *Store) DeleteMeeting(ctx context.Context, meetingID, creatorID string) ([]model.Participant, error) {
	var ps []model.Participant
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var one int
		err := tx.QueryRow(ctx,
			`SELECT 1 FROM meetings WHERE id = $1 AND creator_id = $2 FOR UPDATE`, meetingID, creatorID,
		).Scan(&one)
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT `+participantCols+` FROM participants WHERE meeting_id = $1`, meetingID)
		if err != nil {
			return err
		}
		ps, err = collectParticipants(rows)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM meetings WHERE id = $1`, meetingID)
		return err
	})
	if err != nil {
		return nil, translate(err)
	}
	return ps, nil
}

const participantCols = `id, meeting_id, user_id, name, email, status, lat, lng, place_name, created_at, updated_at`

func scanParticipant(row pgx.Row) (*model.Participant, error) {
	p := &model.Participant{}
	err := row.Scan(&p.ID, &p.MeetingID, &p.UserID, &p.Name, &p.Email, &p.Status,
		&p.Location.Lat, &p.Location.Lng, &p.Location.PlaceName, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return p, nil
}

func collectParticipants(rows pgx.Rows) ([]model.Participant, error) {
	defer rows.Close()
	out := []model.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) ListParticipants(ctx context.Context, meetingID string) ([]model.Participant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+participantCols+` FROM participants WHERE meeting_id = $1 ORDER BY created_at, id`, meetingID)
	if err != nil {
		return nil, err
	}
	return collectParticipants(rows)
}

func (s *Store) Participant(ctx context.Context, meetingID, email string) (*model.Participant, error) {
	return scanParticipant(s.pool.QueryRow(ctx,
		`SELECT `+participantCols+` FROM participants WHERE meeting_id = $1 AND email = $2`,
		meetingID, email))
}

// Respond records an accept or reject. A nil loc leaves the stored location alone.
func (s *Store) Respond(ctx context.Context, meetingID string, who model.Identity, status model.Status, loc *model.Location) (*model.Participant, error) {
	var lat, lng *float64
	var place *string
	if loc != nil {
		lat, lng, place = loc.Lat, loc.Lng, &loc.PlaceName
	}
	return scanParticipant(s.pool.QueryRow(ctx,
		`UPDATE participants
		 SET status = $3,
		     user_id = COALESCE(user_id, $4),
		     lat = CASE WHEN $5::boolean THEN $6 ELSE lat END,
		     lng = CASE WHEN $5::boolean THEN $7 ELSE lng END,
		     place_name = COALESCE($8, place_name),
		     updated_at = NOW()
		 WHERE meeting_id = $1 AND email = $2
		 RETURNING `+participantCols,
		meetingID, who.Email, status, who.ID, loc != nil, lat, lng, place,
	))
}

func (s *Store) ActiveMemberships(ctx context.Context, email string) ([]model.Membership, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+meetingCols+`, p.status
		 FROM participants p JOIN meetings m ON m.id = p.meeting_id
		 WHERE p.email = $1 AND p.status <> 'rejected'`,
		email,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Membership{}
	for rows.Next() {
		var st model.Status
		m, err := scanMeeting(rows, &st)
		if err != nil {
			return nil, err
		}
		out = append(out, model.Membership{Meeting: *m, Status: st})
	}
	return out, rows.Err()
}

// MeetingSummaries returns every participation of email, rejected ones included.
func (s *Store) MeetingSummaries(ctx context.Context, email string) ([]model.MeetingSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT m.id, m.scheduled_at, p.status,
		        (SELECT COUNT(*) FROM participants x WHERE x.meeting_id = m.id)
		 FROM participants p JOIN meetings m ON m.id = p.meeting_id
		 WHERE p.email = $1`,
		email,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.MeetingSummary{}
	for rows.Next() {
		var ms model.MeetingSummary
		if err := rows.Scan(&ms.MeetingID, &ms.ScheduledAt, &ms.Status, &ms.Participants); err != nil {
			return nil, err
		}
		out = append(out, ms)
	}
	return out, rows.Err()
}

// RecentActivity merges meetings the user created with the user's own
// participant updates, newest first.
func (s *Store) RecentActivity(ctx context.Context, userID string, limit int) ([]model.Activity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT * FROM (
		     SELECT $3::text AS kind, m.id, m.title, '' AS status, m.created_at AS ts
		     FROM meetings m WHERE m.creator_id = $1
		   UNION ALL
		     SELECT $4::text, m.id, m.title, p.status, p.updated_at
		     FROM participants p JOIN meetings m ON m.id = p.meeting_id
		     WHERE p.user_id = $1
		 ) a
		 ORDER BY ts DESC
		 LIMIT $2`,
		userID, limit, model.ActivityMeetingCreated, model.ActivityParticipantAction,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Activity{}
	for rows.Next() {
		var kind, meetingID, title, status string
		var ts time.Time
		if err := rows.Scan(&kind, &meetingID, &title, &status, &ts); err != nil {
			return nil, err
		}
		a := model.Activity{Type: kind, UserID: userID, Timestamp: ts}
		if kind == model.ActivityMeetingCreated {
			a.Target = map[string]any{"meetingId": meetingID, "title": title}
		} else {
			a.Target = map[string]any{"meetingId": meetingID, "meetingTitle": title, "status": status}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
