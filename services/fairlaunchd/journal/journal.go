package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fairlaunch/core/events"
	"fairlaunch/core/types"
)

// DefaultLimit caps List results when the caller does not ask for fewer.
const DefaultLimit = 100

// Record is one persisted sale event.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq        uint64    `gorm:"uniqueIndex;not null"`
	Sale       string    `gorm:"size:16;index"`
	Type       string    `gorm:"size:64;index"`
	Timestamp  int64     `gorm:"not null"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// Entry is a journaled event together with its position.
type Entry struct {
	ID    string       `json:"id"`
	Seq   uint64       `json:"seq"`
	Event *types.Event `json:"event"`
}

// Open connects to the journal database. Driver is "sqlite" or "postgres".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("journal: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", driver, err)
	}
	return db, nil
}

// AutoMigrate creates or updates the journal schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Record{})
}

// Journal appends emitted events to the database and serves them back in
// emission order.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger

	mu      sync.Mutex
	nextSeq uint64
}

// New migrates the schema and resumes numbering after the last stored event.
func New(db *gorm.DB, log *slog.Logger) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("journal: database required")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	var maxSeq int64
	if err := db.Model(&Record{}).Select("COALESCE(MAX(seq), 0)").Row().Scan(&maxSeq); err != nil {
		return nil, fmt.Errorf("journal: resume sequence: %w", err)
	}
	return &Journal{db: db, logger: log.With("component", "journal"), nextSeq: uint64(maxSeq) + 1}, nil
}

// Append stores evt and returns its sequence number.
func (j *Journal) Append(ctx context.Context, evt *types.Event) (uint64, error) {
	if evt == nil {
		return 0, fmt.Errorf("journal: nil event")
	}
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return 0, fmt.Errorf("journal: encode attributes: %w", err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	record := Record{
		ID:         uuid.New(),
		Seq:        j.nextSeq,
		Sale:       evt.Sale,
		Type:       evt.Type,
		Timestamp:  evt.Timestamp,
		Attributes: string(attrs),
	}
	if err := j.db.WithContext(ctx).Create(&record).Error; err != nil {
		return 0, fmt.Errorf("journal: insert: %w", err)
	}
	j.nextSeq++
	return record.Seq, nil
}

// Emit implements events.Emitter. Failures are logged; emission never blocks
// the engine on the journal.
func (j *Journal) Emit(evt events.Event) {
	payload, ok := evt.(events.Payload)
	if !ok || payload.Event() == nil {
		return
	}
	if _, err := j.Append(context.Background(), payload.Event()); err != nil {
		j.logger.Error("journal append failed", "type", evt.EventType(), "error", err)
	}
}

// Query narrows a List call.
type Query struct {
	Sale     string
	Type     string
	AfterSeq uint64
	Limit    int
}

// List returns events in emission order.
func (j *Journal) List(ctx context.Context, q Query) ([]Entry, error) {
	limit := q.Limit
	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}
	tx := j.db.WithContext(ctx).Model(&Record{}).Where("seq > ?", q.AfterSeq)
	if sale := strings.TrimSpace(q.Sale); sale != "" {
		tx = tx.Where("sale = ?", sale)
	}
	if kind := strings.TrimSpace(q.Type); kind != "" {
		tx = tx.Where("type = ?", kind)
	}
	var records []Record
	if err := tx.Order("seq asc").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	out := make([]Entry, 0, len(records))
	for _, rec := range records {
		attrs := map[string]string{}
		if rec.Attributes != "" {
			if err := json.Unmarshal([]byte(rec.Attributes), &attrs); err != nil {
				return nil, fmt.Errorf("journal: decode attributes of %s: %w", rec.ID, err)
			}
		}
		out = append(out, Entry{
			ID:  rec.ID.String(),
			Seq: rec.Seq,
			Event: &types.Event{
				Type:       rec.Type,
				Sale:       rec.Sale,
				Timestamp:  rec.Timestamp,
				Attributes: attrs,
			},
		})
	}
	return out, nil
}
