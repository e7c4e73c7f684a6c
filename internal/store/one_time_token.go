package store

import (
	"context"
	"time"
)

const (
	PurposeMagicLink     = "magic_link"
	PurposePasswordReset = "password_reset"
)

func (s *Store) CreateOneTimeToken(ctx context.Context, email, purpose, tokenHash string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO one_time_tokens (token_hash, email, purpose, expires_at) VALUES ($1,$2,$3,$4)`,
		tokenHash, email, purpose, expiresAt,
	)
	return translate(err)
}

// ConsumeOneTimeToken marks the token used and returns its email. Expired,
// already used or unknown tokens all come back as ErrNotFound.
func (s *Store) ConsumeOneTimeToken(ctx context.Context, purpose, tokenHash string) (string, error) {
	var email string
	err := s.pool.QueryRow(ctx,
		`UPDATE one_time_tokens SET used_at = NOW()
		 WHERE token_hash = $1 AND purpose = $2 AND used_at IS NULL AND expires_at > NOW()
		 RETURNING email`,
		tokenHash, purpose,
	).Scan(&email)
	if err != nil {
		return "", translate(err)
	}
	return email, nil
}
