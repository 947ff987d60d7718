package store

import (
	"encoding/json"
	"fmt"
	"time"

	"webtap/internal/logger"
	"webtap/pkg/model"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// ArchivedEvent is the long-term sqlite record of one ingested event. The
// archive is write-only from the pipeline's perspective and survives clears;
// the JSON snapshot stays authoritative for the live buffers.
type ArchivedEvent struct {
	ID            uint   `gorm:"primarykey"`
	Kind          string `gorm:"index"`
	CorrelationID string `gorm:"index"`
	Origin        string
	Message       string
	URL           string
	Status        int
	Timestamp     int64 `gorm:"index"`
	Payload       string
	CreatedAt     time.Time
}

// Archive appends events to sqlite through gorm.
type Archive struct {
	db  *gorm.DB
	log logger.Logger
}

// NewArchive opens (or creates) the archive database.
func NewArchive(dsn, prefix string, l logger.Logger) (*Archive, error) {
	if l == nil {
		l = logger.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         newGormLogger(l),
		NamingStrategy: schema.NamingStrategy{TablePrefix: prefix},
	})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := db.AutoMigrate(&ArchivedEvent{}); err != nil {
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return &Archive{db: db, log: l}, nil
}

// Append records one event best-effort. Failures are logged and ignored.
func (a *Archive) Append(ev model.DebugEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	msg := ev.CleanedMessage
	if msg == "" {
		msg = ev.RawMessage
	}
	rec := ArchivedEvent{
		Kind:          string(ev.Kind),
		CorrelationID: ev.CorrelationID,
		Origin:        ev.OriginURL,
		Message:       msg,
		URL:           ev.URL,
		Status:        ev.Status,
		Timestamp:     ev.Timestamp,
		Payload:       string(payload),
	}
	if err := a.db.Create(&rec).Error; err != nil {
		a.log.Warn("archive append failed", "error", err)
	}
}

// Count returns the archived event total, mostly for diagnostics.
func (a *Archive) Count() (int64, error) {
	var n int64
	err := a.db.Model(&ArchivedEvent{}).Count(&n).Error
	return n, err
}
