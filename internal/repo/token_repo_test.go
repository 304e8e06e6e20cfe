package repo

import (
	"context"
	"testing"
	"time"

	"github.com/sigab-app/sigab-backend/internal/domain"
)

func TestUpsertDeviceToken_Idempotent(t *testing.T) {
	db := newRepoDB(t, &domain.DeviceToken{})
	ctx := context.Background()

	if err := UpsertDeviceToken(ctx, db, "tok-1"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	// Second registration of the same token is a no-op, never an error.
	if err := UpsertDeviceToken(ctx, db, "tok-1"); err != nil {
		t.Fatalf("second register: %v", err)
	}

	total, err := CountDeviceTokens(ctx, db)
	if err != nil || total != 1 {
		t.Fatalf("expected exactly 1 token, got %d err=%v", total, err)
	}
}

func TestListDeviceTokens_SnapshotOrder(t *testing.T) {
	db := newRepoDB(t, &domain.DeviceToken{})
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	for i, tok := range []string{"t1", "t2", "t3"} {
		rec := domain.DeviceToken{Token: tok, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := db.Create(&rec).Error; err != nil {
			t.Fatalf("seed %s: %v", tok, err)
		}
	}

	got, err := ListDeviceTokens(ctx, db)
	if err != nil {
		t.Fatalf("ListDeviceTokens: %v", err)
	}
	if len(got) != 3 || got[0] != "t1" || got[2] != "t3" {
		t.Fatalf("unexpected snapshot: %#v", got)
	}
}

func TestDeleteDeviceTokens_BulkAndEmpty(t *testing.T) {
	db := newRepoDB(t, &domain.DeviceToken{})
	ctx := context.Background()

	for _, tok := range []string{"t1", "t2", "t3"} {
		if err := UpsertDeviceToken(ctx, db, tok); err != nil {
			t.Fatalf("seed %s: %v", tok, err)
		}
	}

	// Empty set is a no-op.
	if n, err := DeleteDeviceTokens(ctx, db, nil); err != nil || n != 0 {
		t.Fatalf("empty delete: n=%d err=%v", n, err)
	}

	// Unknown tokens in the set are ignored.
	n, err := DeleteDeviceTokens(ctx, db, []string{"t1", "t3", "missing"})
	if err != nil || n != 2 {
		t.Fatalf("bulk delete: n=%d err=%v", n, err)
	}

	got, err := ListDeviceTokens(ctx, db)
	if err != nil || len(got) != 1 || got[0] != "t2" {
		t.Fatalf("unexpected survivors: %#v err=%v", got, err)
	}
}

func TestCountDeviceTokens_Error_NoTable(t *testing.T) {
	db := newRepoDB(t /* no migrations */)
	if _, err := CountDeviceTokens(context.Background(), db); err == nil {
		t.Fatalf("expected error when table missing")
	}
}
