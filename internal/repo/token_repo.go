// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for registered
// device push-tokens.
//
// The token table is owned exclusively by the token registry service. All
// mutations here are set-based and idempotent: registration is an upsert that
// ignores conflicts, and invalidation is a single bulk delete so a fan-out
// run touches the table exactly once on its way out.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sigab-app/sigab-backend/internal/domain"
)

// UpsertDeviceToken registers a device token. Re-registering an existing
// token is a no-op, never an error.
func UpsertDeviceToken(ctx context.Context, db *gorm.DB, token string) error {
	rec := &domain.DeviceToken{
		Token:     token,
		CreatedAt: time.Now().UTC(),
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rec).Error
}

// ListDeviceTokens returns a point-in-time snapshot of every registered
// token, oldest registration first. The snapshot may go stale during a long
// fan-out; stale tokens simply fail on send and get invalidated.
func ListDeviceTokens(ctx context.Context, db *gorm.DB) ([]string, error) {
	var out []string
	err := db.WithContext(ctx).
		Model(&domain.DeviceToken{}).
		Order("created_at asc").
		Pluck("token", &out).Error
	return out, err
}

// DeleteDeviceTokens removes the given tokens in one statement and returns
// how many rows were deleted. An empty set is a no-op.
func DeleteDeviceTokens(ctx context.Context, db *gorm.DB, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Where("token IN ?", tokens).
		Delete(&domain.DeviceToken{})
	return res.RowsAffected, res.Error
}

// CountDeviceTokens returns the number of registered tokens.
func CountDeviceTokens(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.DeviceToken{}).
		Count(&total).Error
	return total, err
}
