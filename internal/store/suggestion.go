package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"meet-in-the-middle-api/internal/model"
)

const suggestionCols = `id, meeting_id, place_id, name, address, lat, lng, rating,
	user_ratings_total, photos, vote_count, voters, is_finalized, created_at`

func scanSuggestion(row pgx.Row) (*model.SuggestedLocation, error) {
	s := &model.SuggestedLocation{}
	p := &s.Place
	err := row.Scan(&s.ID, &s.MeetingID, &p.PlaceID, &p.Name, &p.Address, &p.Location.Lat, &p.Location.Lng,
		&p.Rating, &p.UserRatingsTotal, &p.Photos, &s.VoteCount, &s.Voters, &s.IsFinalized, &s.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return s, nil
}

func (s *Store) AddSuggestion(ctx context.Context, sl *model.SuggestedLocation) error {
	p := sl.Place
	photos := p.Photos
	if photos == nil {
		photos = []string{}
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO suggested_locations
		   (id, meeting_id, place_id, name, address, lat, lng, rating, user_ratings_total, photos)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 RETURNING vote_count, voters, is_finalized, created_at`,
		sl.ID, sl.MeetingID, p.PlaceID, p.Name, p.Address, p.Location.Lat, p.Location.Lng,
		p.Rating, p.UserRatingsTotal, photos,
	).Scan(&sl.VoteCount, &sl.Voters, &sl.IsFinalized, &sl.CreatedAt)
	return translate(err)
}

func (s *Store) GetSuggestion(ctx context.Context, id string) (*model.SuggestedLocation, error) {
	return scanSuggestion(s.pool.QueryRow(ctx,
		`SELECT `+suggestionCols+` FROM suggested_locations WHERE id = $1`, id))
}

func (s *Store) ListSuggestions(ctx context.Context, meetingID string) ([]model.SuggestedLocation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+suggestionCols+` FROM suggested_locations WHERE meeting_id = $1 ORDER BY seq`, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.SuggestedLocation{}
	for rows.Next() {
		sl, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sl)
	}
	return out, rows.Err()
}

// ToggleVote flips membership of userID in the voter set in a single
// statement. Postgres holds the row lock for the duration, so concurrent
// toggles serialize and the count always matches the set.
func (s *Store) ToggleVote(ctx context.Context, suggestionID, userID string) (*model.SuggestedLocation, error) {
	return scanSuggestion(s.pool.QueryRow(ctx,
		`UPDATE suggested_locations SET
		   voters = CASE WHEN $2 = ANY(voters) THEN array_remove(voters, $2) ELSE array_append(voters, $2) END,
		   vote_count = CASE WHEN $2 = ANY(voters) THEN vote_count - 1 ELSE vote_count + 1 END
		 WHERE id = $1
		 RETURNING `+suggestionCols,
		suggestionID, userID,
	))
}

// FinalizeSuggestion moves the finalized flag of a meeting onto suggestionID.
// The meeting row is locked first so concurrent finalizes run one after another.
func (s *Store) FinalizeSuggestion(ctx context.Context, meetingID, suggestionID string) error {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var locked string
		if err := tx.QueryRow(ctx,
			`SELECT id FROM meetings WHERE id = $1 FOR UPDATE`, meetingID,
		).Scan(&locked); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE suggested_locations SET is_finalized = false
			 WHERE meeting_id = $1 AND is_finalized AND id <> $2`,
			meetingID, suggestionID,
		); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			`UPDATE suggested_locations SET is_finalized = true WHERE id = $1 AND meeting_id = $2`,
			suggestionID, meetingID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return model.ErrNotFound
		}
		return nil
	})
	return translate(err)
}
