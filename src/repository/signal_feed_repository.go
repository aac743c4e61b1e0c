package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"allocengine/src/database"
	"allocengine/src/externalmodel"
)

// SignalFeedRepository handles read-only polling of the signal generator's
// feed table in the read-only database.
type SignalFeedRepository struct {
	db *gorm.DB
}

// NewSignalFeedRepository creates a new repository instance. It uses the
// ReadOnlyDB connection by default.
func NewSignalFeedRepository() *SignalFeedRepository {
	logger.WithField("component", "SignalFeedRepository").
		Info("Creating new SignalFeedRepository with ReadOnlyDB")

	return &SignalFeedRepository{db: database.ReadOnlyDB}
}

// WithDB allows overriding the underlying *gorm.DB instance. Useful for
// tests or custom sessions (even if read-only).
func (r *SignalFeedRepository) WithDB(db *gorm.DB) *SignalFeedRepository {
	return &SignalFeedRepository{db: db}
}

// FindAfterID fetches feed rows with ID greater than lastID, oldest first.
// This is the incremental polling primitive the allocation loop uses.
func (r *SignalFeedRepository) FindAfterID(ctx context.Context, lastID uint, limit int) ([]externalmodel.SignalRow, error) {
	if limit <= 0 {
		limit = 100 // default safety limit
	}

	var rows []externalmodel.SignalRow
	err := r.db.WithContext(ctx).
		Where("id > ?", lastID).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "SignalFeedRepository",
			"op":     "FindAfterID",
			"lastID": lastID,
			"limit":  limit,
		}).WithError(err).Error("Failed to fetch feed rows after ID")
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "SignalFeedRepository",
		"op":          "FindAfterID",
		"lastID":      lastID,
		"rows_return": len(rows),
	}).Debug("Feed rows fetched")

	return rows, nil
}

// CountNewAfterID returns how many new rows exist past lastID, for a cheap
// freshness probe before a heavier fetch.
func (r *SignalFeedRepository) CountNewAfterID(ctx context.Context, lastID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&externalmodel.SignalRow{}).
		Where("id > ?", lastID).
		Count(&count).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "SignalFeedRepository",
			"op":     "CountNewAfterID",
			"lastID": lastID,
		}).WithError(err).Error("Failed to count new feed rows")
		return 0, err
	}
	return count, nil
}
