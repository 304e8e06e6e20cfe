// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides read-only queries over citizen reports
// and curated flood information, consumed by the condition evaluator. The
// CRUD surfaces that write these tables are external to this subsystem.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sigab-app/sigab-backend/internal/domain"
)

// CountValidFloodReportsOn counts citizen reports of type flood with status
// valid whose timestamp falls on the calendar day of the given instant. The
// day boundary uses the instant's own location so the caller decides which
// "today" applies.
func CountValidFloodReportsOn(ctx context.Context, db *gorm.DB, day time.Time) (int64, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Report{}).
		Where("report_type = ? AND status = ? AND reported_at >= ? AND reported_at < ?",
			domain.ReportTypeFlood, domain.ReportStatusValid, start.UTC(), end.UTC()).
		Count(&total).Error
	return total, err
}

// LatestFloodInfo returns the most recently recorded flood information row,
// or ErrNotFound when no flood data exists yet.
func LatestFloodInfo(ctx context.Context, db *gorm.DB) (*domain.FloodInfo, error) {
	var fi domain.FloodInfo
	err := db.WithContext(ctx).
		Order("occurred_at desc").
		First(&fi).Error
	if err != nil {
		return nil, err
	}
	return &fi, nil
}
