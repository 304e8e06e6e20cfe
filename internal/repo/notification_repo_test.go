package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sigab-app/sigab-backend/internal/domain"
)

func newRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestCreateNotification_Error_NoTable(t *testing.T) {
	db := newRepoDB(t /* no migrations */)
	rec, err := CreateNotification(context.Background(), db, domain.KindFlood, "t", "b", time.Now(), time.Hour)
	if err == nil || rec != nil {
		t.Fatalf("expected error creating without table, got rec=%v err=%v", rec, err)
	}
}

func TestCreateNotification_Success_PersistsAndSetsFields(t *testing.T) {
	db := newRepoDB(t, &domain.Notification{})

	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	rec, err := CreateNotification(context.Background(), db, domain.KindFlood, "Informasi Banjir Terbaru", "Banjir terdeteksi", at, 24*time.Hour)
	if err != nil {
		t.Fatalf("CreateNotification: %v", err)
	}
	if rec.ID == "" || rec.Kind != "banjir" || rec.Title != "Informasi Banjir Terbaru" {
		t.Fatalf("unexpected Notification fields: %+v", rec)
	}
	if rec.DedupKey != domain.KindFlood.DedupKey(at, 24*time.Hour) {
		t.Fatalf("unexpected dedup key %q", rec.DedupKey)
	}
	// round-trip
	var got domain.Notification
	if err := db.First(&got, "id = ?", rec.ID).Error; err != nil {
		t.Fatalf("load created notification: %v", err)
	}
	if got.Body != "Banjir terdeteksi" {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestCreateNotification_DuplicateBucket(t *testing.T) {
	db := newRepoDB(t, &domain.Notification{})

	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	if _, err := CreateNotification(context.Background(), db, domain.KindWeather, "t", "b1", at, time.Hour); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	// Same kind, same hour bucket, different body: must still collide.
	_, err := CreateNotification(context.Background(), db, domain.KindWeather, "t", "b2", at.Add(20*time.Minute), time.Hour)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	// Different kind in the same bucket is fine.
	if _, err := CreateNotification(context.Background(), db, domain.KindFlood, "t", "b", at, time.Hour); err != nil {
		t.Fatalf("different kind should not collide: %v", err)
	}
	// Next bucket is fine.
	if _, err := CreateNotification(context.Background(), db, domain.KindWeather, "t", "b3", at.Add(2*time.Hour), time.Hour); err != nil {
		t.Fatalf("next bucket should not collide: %v", err)
	}

	var total int64
	if err := db.Model(&domain.Notification{}).Count(&total).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 rows, got %d", total)
	}
}

func TestHasAndCountNotificationsSince(t *testing.T) {
	db := newRepoDB(t, &domain.Notification{})
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seed := []domain.Notification{
		{ID: "n1", Kind: "laporan", Title: "t", Body: "b", DedupKey: "laporan_1", CreatedAt: base.Add(-3 * time.Hour)},
		{ID: "n2", Kind: "laporan", Title: "t", Body: "b", DedupKey: "laporan_2", CreatedAt: base.Add(-30 * time.Minute)},
		{ID: "n3", Kind: "banjir", Title: "t", Body: "b", DedupKey: "banjir_1", CreatedAt: base.Add(-10 * time.Minute)},
	}
	for _, n := range seed {
		if err := db.Create(&n).Error; err != nil {
			t.Fatalf("seed %s: %v", n.ID, err)
		}
	}

	has, err := HasNotificationSince(ctx, db, domain.KindReportThreshold, base.Add(-time.Hour))
	if err != nil || !has {
		t.Fatalf("expected entry within the hour, has=%v err=%v", has, err)
	}
	has, err = HasNotificationSince(ctx, db, domain.KindWeather, base.Add(-24*time.Hour))
	if err != nil || has {
		t.Fatalf("expected no weather entries, has=%v err=%v", has, err)
	}

	total, err := CountNotificationsSince(ctx, db, domain.KindReportThreshold, base.Add(-4*time.Hour))
	if err != nil || total != 2 {
		t.Fatalf("expected 2 laporan entries in 4h, got %d err=%v", total, err)
	}
}

func TestListNotificationsSince_NewestFirstAndCapped(t *testing.T) {
	db := newRepoDB(t, &domain.Notification{})
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < HistoryMaxEntries+10; i++ {
		n := domain.Notification{
			ID:        fmt.Sprintf("n%03d", i),
			Kind:      "banjir",
			Title:     "t",
			Body:      "b",
			DedupKey:  fmt.Sprintf("banjir_%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.Create(&n).Error; err != nil {
			t.Fatalf("seed %s: %v", n.ID, err)
		}
	}

	got, err := ListNotificationsSince(ctx, db, base)
	if err != nil {
		t.Fatalf("ListNotificationsSince: %v", err)
	}
	if len(got) != HistoryMaxEntries {
		t.Fatalf("expected cap of %d, got %d", HistoryMaxEntries, len(got))
	}
	if !got[0].CreatedAt.After(got[len(got)-1].CreatedAt) {
		t.Fatalf("expected newest-first ordering")
	}

	// A since cutoff in the future filters everything.
	got, err = ListNotificationsSince(ctx, db, base.Add(24*time.Hour))
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty history, got %d err=%v", len(got), err)
	}
}

func TestListNotifications_AllNewestFirst(t *testing.T) {
	db := newRepoDB(t, &domain.Notification{})

	t1 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		n := domain.Notification{ID: id, Kind: "cuaca", Title: "t", Body: "b", DedupKey: "cuaca_" + id, CreatedAt: t1.Add(time.Duration(i) * time.Hour)}
		if err := db.Create(&n).Error; err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	list, err := ListNotifications(context.Background(), db)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(list) != 3 || list[0].ID != "c" || list[2].ID != "a" {
		t.Fatalf("unexpected order: %#v", list)
	}
}
