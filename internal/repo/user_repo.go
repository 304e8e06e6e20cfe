// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the recipient query for the WhatsApp
// broadcast path.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/sigab-app/sigab-backend/internal/domain"
)

// ListWhatsAppNumbers returns every non-empty WhatsApp number of registered
// app users, in registration order. Numbers are returned as stored; the
// broadcast path normalizes them to international form before sending.
func ListWhatsAppNumbers(ctx context.Context, db *gorm.DB) ([]string, error) {
	var out []string
	err := db.WithContext(ctx).
		Model(&domain.AppUser{}).
		Where("whats_app_number IS NOT NULL AND whats_app_number <> ''").
		Order("created_at asc").
		Pluck("whats_app_number", &out).Error
	return out, err
}
