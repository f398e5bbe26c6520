package audit

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestAppendFillsDefaults(t *testing.T) {
	db := openTestDB(t)
	log := NewLog(db)

	rec := Record{
		DeviceID:        "device-1",
		HSMIdentity:     "Eprefix",
		HSMGenerationID: "Egen0",
		Outcome:         OutcomeAllowed,
	}
	if err := log.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var got Record
	if err := db.First(&got).Error; err != nil {
		t.Fatalf("read back: %v", err)
	}
	if got.ID.String() == "" || got.CreatedAt.IsZero() {
		t.Fatalf("expected ID and CreatedAt to be filled, got %+v", got)
	}
	if got.DeviceID != "device-1" || got.Outcome != OutcomeAllowed {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestAppendRecordsDenial(t *testing.T) {
	db := openTestDB(t)
	log := NewLog(db)

	rec := Record{
		DeviceID:  "device-2",
		Outcome:   OutcomeDenied,
		ErrorKind: "cryptographic_failure",
		ErrorCode: "keylog.bad_signature",
	}
	if err := log.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var got Record
	if err := db.Where("device_id = ?", "device-2").First(&got).Error; err != nil {
		t.Fatalf("read back: %v", err)
	}
	if got.Outcome != OutcomeDenied || got.ErrorKind != "cryptographic_failure" {
		t.Fatalf("unexpected record: %+v", got)
	}
}
