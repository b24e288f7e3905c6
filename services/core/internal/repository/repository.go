// Package repository is Core's Postgres persistence layer: hand-written
// SQL behind sqlx, with inline rows-affected checks, realizing the
// notification domain's exactly-once delivery
// semantics (spec §4.1, §9).
//
// The document store the design notes describe as an external
// collaborator is stood up here as Postgres: every other service in
// this codebase's family already persists through sqlx+lib/pq, and
// nothing in the pack carries a MongoDB driver, so the notifications
// and deliveries tables below reproduce the same contract (opaque id,
// recipient set, per-principal delivery state) over jsonb and bytea
// columns instead.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/tom-notifier/core/internal/models"
	"github.com/tom-notifier/shared/apperr"
)

const uniqueViolation = "23505"

// Repository is Core's sole gateway to Postgres.
type Repository struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Delivered is a notification joined with one principal's delivery
// state, the shape FetchDelivered and GetDelivered return (spec §4.1).
type Delivered struct {
	models.Notification
	DeliveredAt time.Time `db:"delivered_at"`
	Seen        bool      `db:"seen"`
}

// Create inserts a new notification. A producer reusing a
// (created_by, producer_notification_id) pair it already used returns
// apperr.ErrConflict (spec §4.1 "Idempotent creation").
func (r *Repository) Create(ctx context.Context, n *models.Notification) error {
	const query = `
		INSERT INTO notifications
			(id, producer_notification_id, created_by, created_at, invalidate_at, user_ids, content_type, content, status)
		VALUES
			(:id, :producer_notification_id, :created_by, :created_at, :invalidate_at, :user_ids, :content_type, :content, :status)`

	_, err := r.db.NamedExecContext(ctx, query, n)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return apperr.ErrConflict
		}
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// GetByID returns a notification regardless of its delivery state,
// used by InvalidateAt to check ownership and existence (spec §4.1).
func (r *Repository) GetByID(ctx context.Context, id models.NotificationID) (*models.Notification, error) {
	var n models.Notification
	err := r.db.GetContext(ctx, &n, `SELECT * FROM notifications WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return &n, nil
}

// SetInvalidateAt overwrites a notification's expiry (spec §4.1
// InvalidateAt). Caller has already checked ownership via GetByID.
func (r *Repository) SetInvalidateAt(ctx context.Context, id models.NotificationID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE notifications SET invalidate_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("set invalidate_at: %w", err)
	}
	return nil
}

// ClaimUndelivered atomically claims every notification addressed to
// principal that principal has not yet received, inserting one
// Delivery row per claim (the sidecar both broadcast and targeted
// notifications use, spec §9) and, for notifications still in their
// initial state, advancing the root row to Delivered. Concurrent callers
// racing on the same (notification, principal) pair each get a
// disjoint claim set: the sidecar insert's primary key makes the second
// caller's attempt a no-op, satisfying "returned to exactly one caller
// per (notification, principal) pair" (spec §4.1, §8.2).
func (r *Repository) ClaimUndelivered(ctx context.Context, principal uuid.UUID) ([]models.Notification, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback()

	const candidatesQuery = `
		SELECT * FROM notifications n
		WHERE n.status != 'deleted'
		  AND (n.invalidate_at IS NULL OR n.invalidate_at > now())
		  AND (n.user_ids = '[]' OR n.user_ids @> to_jsonb($1::text))
		  AND NOT EXISTS (
		      SELECT 1 FROM deliveries d WHERE d.notification_id = n.id AND d.user_id = $1
		  )`

	var candidates []models.Notification
	if err := tx.SelectContext(ctx, &candidates, candidatesQuery, principal); err != nil {
		return nil, fmt.Errorf("select undelivered candidates: %w", err)
	}

	claimed := make([]models.Notification, 0, len(candidates))
	now := time.Now()

	for _, n := range candidates {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO deliveries (notification_id, user_id, delivered_at, seen)
			VALUES ($1, $2, $3, false)
			ON CONFLICT (notification_id, user_id) DO NOTHING`, n.ID, principal, now)
		if err != nil {
			return nil, fmt.Errorf("claim delivery: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim delivery rows affected: %w", err)
		}
		if affected == 0 {
			continue
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE notifications SET status = 'delivered' WHERE id = $1 AND status = 'undelivered'`, n.ID); err != nil {
			return nil, fmt.Errorf("advance notification status: %w", err)
		}

		claimed = append(claimed, n)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	return claimed, nil
}

// ListDelivered returns a page of principal's delivered notifications,
// newest first, optionally filtered by seen state, plus the total
// matching count for the pagination envelope (spec §4.1, a feature the
// original implementation carried that the distilled contract only
// implies through "page" parameters).
func (r *Repository) ListDelivered(ctx context.Context, principal uuid.UUID, seen *bool, limit, offset int) ([]Delivered, int, error) {
	args := []any{principal}
	filter := ""
	if seen != nil {
		filter = "AND d.seen = $2"
		args = append(args, *seen)
	}

	countQuery := fmt.Sprintf(`
		SELECT count(*) FROM notifications n
		JOIN deliveries d ON d.notification_id = n.id
		WHERE d.user_id = $1 AND n.status != 'deleted'
		  AND (n.invalidate_at IS NULL OR n.invalidate_at > now()) %s`, filter)

	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count delivered: %w", err)
	}

	pageArgs := append(append([]any{}, args...), limit, offset)
	listQuery := fmt.Sprintf(`
		SELECT n.*, d.delivered_at, d.seen FROM notifications n
		JOIN deliveries d ON d.notification_id = n.id
		WHERE d.user_id = $1 AND n.status != 'deleted'
		  AND (n.invalidate_at IS NULL OR n.invalidate_at > now()) %s
		ORDER BY d.delivered_at DESC
		LIMIT $%d OFFSET $%d`, filter, len(args)+1, len(args)+2)

	var rows []Delivered
	if err := r.db.SelectContext(ctx, &rows, listQuery, pageArgs...); err != nil {
		return nil, 0, fmt.Errorf("list delivered: %w", err)
	}
	return rows, total, nil
}

// GetDelivered returns a single delivered notification for principal,
// or apperr.ErrNotFound if it was never delivered to them, has expired,
// or has been deleted (spec §4.1, §8.3).
func (r *Repository) GetDelivered(ctx context.Context, principal uuid.UUID, id models.NotificationID) (*Delivered, error) {
	const query = `
		SELECT n.*, d.delivered_at, d.seen FROM notifications n
		JOIN deliveries d ON d.notification_id = n.id
		WHERE n.id = $1 AND d.user_id = $2 AND n.status != 'deleted'
		  AND (n.invalidate_at IS NULL OR n.invalidate_at > now())`

	var row Delivered
	err := r.db.GetContext(ctx, &row, query, id, principal)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get delivered: %w", err)
	}
	return &row, nil
}

// SetSeen flips a delivery's seen flag. Returns apperr.ErrNotFound
// under the same conditions as GetDelivered (spec Open Questions: Seen
// state is only meaningful, and only queryable, while the notification
// is visibly delivered to its recipient).
func (r *Repository) SetSeen(ctx context.Context, principal uuid.UUID, id models.NotificationID, seen bool) error {
	const query = `
		UPDATE deliveries d SET seen = $1
		FROM notifications n
		WHERE d.notification_id = n.id
		  AND d.notification_id = $2 AND d.user_id = $3
		  AND n.status != 'deleted'
		  AND (n.invalidate_at IS NULL OR n.invalidate_at > now())`

	res, err := r.db.ExecContext(ctx, query, seen, id, principal)
	if err != nil {
		return fmt.Errorf("set seen: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set seen rows affected: %w", err)
	}
	if affected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// Delete soft-deletes a notification for its recipients: the root row
// moves to Deleted and its content is discarded (spec §3, §8.4's
// monotonicity invariant — Deleted never moves backward). Requires an
// existing, still-visible delivery, matching SetSeen's gating so Delete
// of an already-deleted notification is consistently apperr.ErrNotFound.
func (r *Repository) Delete(ctx context.Context, principal uuid.UUID, id models.NotificationID) error {
	const query = `
		UPDATE notifications n SET status = 'deleted', content = NULL
		WHERE n.id = $1 AND n.status != 'deleted'
		  AND (n.invalidate_at IS NULL OR n.invalidate_at > now())
		  AND EXISTS (SELECT 1 FROM deliveries d WHERE d.notification_id = n.id AND d.user_id = $2)`

	res, err := r.db.ExecContext(ctx, query, id, principal)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete notification rows affected: %w", err)
	}
	if affected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// UpsertConfirmation records a WS-Delivery delivery confirmation.
// Applying the same confirmation more than once is a no-op: the
// sidecar row's primary key rejects the repeat insert, and the status
// advance is itself guarded so it never moves a notification backward
// (spec §4.1 ConfirmationIngest, §8.4).
func (r *Repository) UpsertConfirmation(ctx context.Context, id models.NotificationID, userID uuid.UUID, at time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin confirmation tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO deliveries (notification_id, user_id, delivered_at, seen)
		VALUES ($1, $2, $3, false)
		ON CONFLICT (notification_id, user_id) DO NOTHING`, id, userID, at)
	if err != nil {
		return fmt.Errorf("upsert confirmation: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE notifications SET status = 'delivered' WHERE id = $1 AND status = 'undelivered'`, id)
	if err != nil {
		return fmt.Errorf("advance confirmed notification status: %w", err)
	}

	return tx.Commit()
}
