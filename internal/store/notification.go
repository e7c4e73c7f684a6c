package store

import (
	"context"

	"github.com/google/uuid"

	"meet-in-the-middle-api/internal/model"
)

func (s *Store) CreateNotification(ctx context.Context, n *model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Data == nil {
		n.Data = map[string]any{}
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO notifications (id, user_id, kind, message, data)
		 VALUES ($1,$2,$3,$4,$5)
		 RETURNING read, created_at`,
		n.ID, n.UserID, n.Kind, n.Message, n.Data,
	).Scan(&n.Read, &n.CreatedAt)
	return translate(err)
}

func (s *Store) Notifications(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, kind, message, data, read, created_at
		 FROM notifications WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Notification{}
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Message, &n.Data, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET read = true WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}
