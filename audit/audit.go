// Package audit persists a durable record of every verification outcome,
// independent of the structured logs and metrics observability emits, for
// later compliance review.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Outcome is the disposition of one verification attempt.
type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeDenied  Outcome = "denied"
)

// Record is one row of the audit log.
type Record struct {
	ID              uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt       time.Time `gorm:"index"`
	DeviceID        string    `gorm:"index"`
	HSMIdentity     string
	HSMGenerationID string
	Outcome         Outcome `gorm:"index"`
	ErrorKind       string
	ErrorCode       string
}

// AutoMigrate performs schema migration for the audit log.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Record{})
}

// Log appends a Record to the audit log.
type Log struct {
	db *gorm.DB
}

// NewLog wraps db as an audit Log.
func NewLog(db *gorm.DB) *Log {
	return &Log{db: db}
}

// Append records one verification outcome.
func (l *Log) Append(ctx context.Context, rec Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return l.db.WithContext(ctx).Create(&rec).Error
}
