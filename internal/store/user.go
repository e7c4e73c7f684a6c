package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"meet-in-the-middle-api/internal/model"
)

// CreateUser inserts the user with default settings and links any invitations
// already addressed to the email.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	if u.AuthProvider == "" {
		u.AuthProvider = "local"
	}
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO users (id, email, password_hash, name, avatar, auth_provider)
			 VALUES ($1,$2,$3,$4,$5,$6)
			 RETURNING created_at, updated_at`,
			u.ID, u.Email, u.PasswordHash, u.Name, u.Avatar, u.AuthProvider,
		).Scan(&u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO user_settings (user_id) VALUES ($1)`, u.ID); err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE participants SET user_id = $1 WHERE email = $2 AND user_id IS NULL`,
			u.ID, u.Email,
		)
		return err
	})
	return translate(err)
}

const userCols = `id, email, password_hash, name, avatar, auth_provider, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Avatar, &u.AuthProvider, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, email))
}

func (s *Store) UserByID(ctx context.Context, id string) (*model.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (s *Store) UpdatePassword(ctx context.Context, userID, hash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`, hash, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *Store) Settings(ctx context.Context, userID string) (*model.Settings, error) {
	st := &model.Settings{UserID: userID}
	err := s.pool.QueryRow(ctx,
		`SELECT email_notifications, push_notifications, meetings_reminders, invitations_alerts,
		        voting_updates, weekly_digest, location_sharing, activity_status,
		        searchable_profile, deleted, deleted_at
		 FROM user_settings WHERE user_id = $1`, userID,
	).Scan(&st.EmailNotifications, &st.PushNotifications, &st.MeetingsReminders, &st.InvitationsAlerts,
		&st.VotingUpdates, &st.WeeklyDigest, &st.LocationSharing, &st.ActivityStatus,
		&st.SearchableProfile, &st.Deleted, &st.DeletedAt)
	if err != nil {
		return nil, translate(err)
	}
	return st, nil
}

func (s *Store) UpdateSettings(ctx context.Context, st *model.Settings) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE user_settings
		 SET email_notifications=$1, push_notifications=$2, meetings_reminders=$3,
		     invitations_alerts=$4, voting_updates=$5, weekly_digest=$6,
		     location_sharing=$7, activity_status=$8, searchable_profile=$9
		 WHERE user_id=$10`,
		st.EmailNotifications, st.PushNotifications, st.MeetingsReminders,
		st.InvitationsAlerts, st.VotingUpdates, st.WeeklyDigest,
		st.LocationSharing, st.ActivityStatus, st.SearchableProfile, st.UserID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// SetDeleted flips the soft delete marker. Refresh tokens are revoked on delete.
func (s *Store) SetDeleted(ctx context.Context, userID string, deleted bool) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var at *time.Time
		if deleted {
			now := time.Now()
			at = &now
		}
		tag, err := tx.Exec(ctx,
			`UPDATE user_settings SET deleted = $1, deleted_at = $2 WHERE user_id = $3`,
			deleted, at, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return model.ErrNotFound
		}
		if deleted {
			_, err = tx.Exec(ctx,
				`UPDATE refresh_tokens SET revoked = true WHERE user_id = $1 AND revoked = false`, userID)
		}
		return err
	})
}

// PurgeUser removes the user and everything they own. Votes cast by the user
// are withdrawn so counts stay equal to the voter sets.
func (s *Store) PurgeUser(ctx context.Context, userID string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var email string
		err := tx.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
		if err != nil {
			return translate(err)
		}

		steps := []struct {
			q    string
			args []any
		}{
			{`UPDATE suggested_locations
			  SET voters = array_remove(voters, $1), vote_count = vote_count - 1
			  WHERE $1 = ANY(voters)`, []any{userID}},
			{`DELETE FROM meetings WHERE creator_id = $1`, []any{userID}},
			{`DELETE FROM participants WHERE user_id = $1 OR email = $2`, []any{userID, email}},
			{`DELETE FROM one_time_tokens WHERE email = $1`, []any{email}},
			{`DELETE FROM users WHERE id = $1`, []any{userID}},
		}
		for _, st := range steps {
			if _, err := tx.Exec(ctx, st.q, st.args...); err != nil {
				return err
			}
		}
		return nil
	})
}
