package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"allocengine/src/database"
	"allocengine/src/model"
)

// BlockRecordRepository stores the critical-failure markers the allocator
// writes when guardrails reject a (signal, account) pair.
type BlockRecordRepository struct {
	db *gorm.DB
}

func NewBlockRecordRepository() *BlockRecordRepository {
	logger.WithField("component", "BlockRecordRepository").
		Info("Creating new BlockRecordRepository")

	return &BlockRecordRepository{db: database.MainDB}
}

func NewBlockRecordRepositoryWithDB(db *gorm.DB) *BlockRecordRepository {
	return &BlockRecordRepository{db: db}
}

// FindOpen returns the open block record for the pair, or (nil, nil) when
// none exists. The allocator relies on this for idempotent blocking.
func (r *BlockRecordRepository) FindOpen(ctx context.Context, accountID uint, signalID string) (*model.BlockRecord, error) {
	var rec model.BlockRecord
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND signal_id = ? AND status = ?",
			accountID, signalID, model.BlockStatusOpen).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":       "BlockRecordRepository",
			"op":         "FindOpen",
			"account_id": accountID,
			"signal_id":  signalID,
		}).WithError(err).Error("Failed to fetch block record")
		return nil, err
	}
	return &rec, nil
}

// Save inserts a new block record.
func (r *BlockRecordRepository) Save(ctx context.Context, rec *model.BlockRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "BlockRecordRepository",
			"op":         "Save",
			"account_id": rec.AccountID,
			"signal_id":  rec.SignalID,
		}).WithError(err).Error("Failed to create block record")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":       "BlockRecordRepository",
		"op":         "Save",
		"account_id": rec.AccountID,
		"signal_id":  rec.SignalID,
		"reasons":    rec.ReasonCodes,
	}).Warn("Block record created")
	return nil
}

// Resolve closes a block record once the underlying condition clears.
func (r *BlockRecordRepository) Resolve(ctx context.Context, id uint, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&model.BlockRecord{}).
		Where("id = ? AND status = ?", id, model.BlockStatusOpen).
		Updates(map[string]interface{}{
			"status":      model.BlockStatusResolved,
			"resolved_at": at,
		}).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "BlockRecordRepository",
			"op":   "Resolve",
			"id":   id,
		}).WithError(err).Error("Failed to resolve block record")
		return err
	}
	return nil
}
