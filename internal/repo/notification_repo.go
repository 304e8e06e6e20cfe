// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the notification
// ledger: the append-only record of warnings already dispatched.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only persistence
// and query composition.
//
// Error semantics:
//   - CreateNotification returns ErrDuplicate when the (kind, dedup bucket)
//     unique index rejects the insert. This is the insert-if-absent guard the
//     deduplication policy relies on; callers treat it as "someone else
//     already recorded this warning", not as a failure.
//   - On other DB errors, the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sigab-app/sigab-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates that a ledger entry for the same kind and dedup
// bucket already exists.
var ErrDuplicate = errors.New("duplicate")

// HistoryMaxEntries bounds the number of rows returned by history queries.
const HistoryMaxEntries = 50

// CreateNotification appends a ledger entry for kind, keyed by the kind's
// dedup bucket at the given creation time. When another entry already
// occupies the bucket it returns ErrDuplicate and writes nothing.
func CreateNotification(ctx context.Context, db *gorm.DB, kind domain.WarningKind, title, body string, createdAt time.Time, interval time.Duration) (*domain.Notification, error) {
	rec := &domain.Notification{
		ID:        uuid.NewString(),
		Kind:      string(kind),
		Title:     title,
		Body:      body,
		DedupKey:  kind.DedupKey(createdAt, interval),
		CreatedAt: createdAt.UTC(),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// HasNotificationSince reports whether any ledger entry of the given kind was
// created at or after the cutoff. Used by the deduplication guard's
// rolling-window check.
func HasNotificationSince(ctx context.Context, db *gorm.DB, kind domain.WarningKind, cutoff time.Time) (bool, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("kind = ? AND created_at >= ?", string(kind), cutoff.UTC()).
		Count(&total).Error
	return total > 0, err
}

// CountNotificationsSince returns how many ledger entries of the given kind
// were created at or after the cutoff, regardless of title or body. The rate
// ceiling uses this to bound bursts from a flapping condition.
func CountNotificationsSince(ctx context.Context, db *gorm.DB, kind domain.WarningKind, cutoff time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("kind = ? AND created_at >= ?", string(kind), cutoff.UTC()).
		Count(&total).Error
	return total, err
}

// ListNotifications returns every ledger entry, newest first.
func ListNotifications(ctx context.Context, db *gorm.DB) ([]domain.Notification, error) {
	var out []domain.Notification
	err := db.WithContext(ctx).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// ListNotificationsSince returns ledger entries created at or after since,
// newest first, capped at HistoryMaxEntries. Clients pass their install
// timestamp so they only see warnings issued after installation.
func ListNotificationsSince(ctx context.Context, db *gorm.DB, since time.Time) ([]domain.Notification, error) {
	var out []domain.Notification
	err := db.WithContext(ctx).
		Where("created_at >= ?", since.UTC()).
		Order("created_at desc").
		Limit(HistoryMaxEntries).
		Find(&out).Error
	return out, err
}
