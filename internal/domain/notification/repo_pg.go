package notification

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicops/clinic/internal/platform/apperr"
	"github.com/clinicops/clinic/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const notificationCols = `id, user_id, type, title, message, is_read, metadata, created_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.IsRead, &n.Metadata, &n.CreatedAt)
	return &n, err
}

func (r *repoPG) Create(ctx context.Context, n *Notification) error {
	n.ID = uuid.New()
	if n.Metadata == nil {
		n.Metadata = map[string]interface{}{}
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, is_read, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.IsRead, n.Metadata,
	).Scan(&n.CreatedAt)
	if apperr.Is(apperr.PG(err, ""), apperr.ReferentialGap) {
		return ErrUnknownRecipient
	}
	return apperr.PG(err, "notification.create")
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Notification, error) {
	n, err := scanNotification(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+notificationCols+` FROM notifications WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, apperr.PG(err, "notification.get")
	}
	return n, nil
}

func (r *repoPG) ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*Notification, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+notificationCols+` FROM notifications
		WHERE user_id = $1 AND ($2 = FALSE OR NOT is_read)
		ORDER BY created_at DESC, id LIMIT $3`, userID, unreadOnly, limit)
	if err != nil {
		return nil, apperr.PG(err, "notification.list")
	}
	defer rows.Close()
	var items []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, apperr.PG(err, "notification.list")
		}
		items = append(items, n)
	}
	return items, apperr.PG(rows.Err(), "notification.list")
}

func (r *repoPG) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID).Scan(&n)
	return n, apperr.PG(err, "notification.unread_count")
}

func (r *repoPG) MarkRead(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1`, id)
	if err != nil {
		return apperr.PG(err, "notification.mark_read")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *repoPG) MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return 0, apperr.PG(err, "notification.mark_all_read")
	}
	return int(tag.RowsAffected()), nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return apperr.PG(err, "notification.delete")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
