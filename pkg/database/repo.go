package database

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// inserts crash findings, updating the duplicate counter when the
// signature is already known
func AddCrashFindings(ctx context.Context, db *gorm.DB, findings []*CrashFinding) error {
	if db == nil || len(findings) == 0 {
		return nil
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "signature"}},
		DoUpdates: clause.AssignmentColumns([]string{"duplicates"}),
	}).Create(findings).Error
}

// NewCrashFinding creates a new CrashFinding object with the provided parameters
func NewCrashFinding(
	campaignID string,
	workerID string,
	signature string,
	kind string,
	frame string,
	message string,
	inputSize int,
	duplicates int,
) *CrashFinding {
	return &CrashFinding{
		CampaignID: campaignID,
		CreatedAt:  time.Now(),
		Signature:  signature,
		Kind:       kind,
		Frame:      frame,
		Message:    message,
		InputSize:  inputSize,
		WorkerID:   workerID,
		Duplicates: duplicates,
		Detail:     Detail{"kind": kind, "frame": frame},
	}
}

// inserts a single campaign stats snapshot
func AddCampaignStat(ctx context.Context, db *gorm.DB, stat *CampaignStat) error {
	if db == nil || stat == nil {
		return nil
	}
	return db.WithContext(ctx).Create(stat).Error
}
