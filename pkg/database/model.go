package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// CrashFinding represents a record in the public.crash_findings table
type CrashFinding struct {
	ID         int       `gorm:"primaryKey;column:id"`
	CampaignID string    `gorm:"column:campaign_id;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;default:now()"`
	Signature  string    `gorm:"column:signature;uniqueIndex;not null"`
	Kind       string    `gorm:"column:kind;not null"`
	Frame      string    `gorm:"column:frame"`
	Message    string    `gorm:"column:message"`
	InputSize  int       `gorm:"column:input_size"`
	WorkerID   string    `gorm:"column:worker_id"`
	Duplicates int       `gorm:"column:duplicates"`
	Detail     Detail    `gorm:"column:detail;type:jsonb"`
}

// CampaignStat represents a record in the public.campaign_stats table
type CampaignStat struct {
	ID           int       `gorm:"primaryKey;column:id"`
	CampaignID   string    `gorm:"column:campaign_id;not null"`
	WorkerID     string    `gorm:"column:worker_id"`
	CreatedAt    time.Time `gorm:"column:created_at;default:now()"`
	Iterations   int64     `gorm:"column:iterations"`
	ExecsPerSec  float64   `gorm:"column:execs_per_sec"`
	CorpusCount  int       `gorm:"column:corpus_count"`
	FrontierSize int       `gorm:"column:frontier_size"`
	Crashes      int       `gorm:"column:crashes"`
	Duplicates   int       `gorm:"column:duplicates"`
}

// Detail represents the jsonb field in the crash_findings table
type Detail map[string]any

// Value implements the driver.Valuer interface for the Detail type
func (d Detail) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// Scan implements the sql.Scanner interface for the Detail type
func (d *Detail) Scan(value any) error {
	if value == nil {
		*d = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(bytes, &d)
}
