package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"allocengine/src/database"
	"allocengine/src/model"
)

// OHLCVRepository maintains the daily candle cache behind the liquidity
// guardrail. Candles arrive from the backfill command; the allocator only
// reads the derived average traded value.
type OHLCVRepository struct {
	db *gorm.DB
}

func NewOHLCVRepository() *OHLCVRepository {
	logger.WithField("component", "OHLCVRepository").
		Info("Creating new OHLCVRepository")

	return &OHLCVRepository{db: database.MainDB}
}

func NewOHLCVRepositoryWithDB(db *gorm.DB) *OHLCVRepository {
	return &OHLCVRepository{db: db}
}

// Upsert writes a batch of daily candles, replacing rows that already exist
// for the same (symbol, datetime). Backfills are re-runnable.
func (r *OHLCVRepository) Upsert(ctx context.Context, candles []model.OHLCVDaily) error {
	if len(candles) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "datetime"}},
			DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume"}),
		}).
		Create(&candles).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OHLCVRepository",
			"op":   "Upsert",
			"rows": len(candles),
		}).WithError(err).Error("Failed to upsert daily candles")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo": "OHLCVRepository",
		"op":   "Upsert",
		"rows": len(candles),
	}).Info("Daily candles upserted")
	return nil
}

// RecentDaily returns the most recent candles for a symbol in ascending
// chronological order.
func (r *OHLCVRepository) RecentDaily(ctx context.Context, symbol string, to time.Time, limit int) ([]model.OHLCVDaily, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows []model.OHLCVDaily
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND datetime <= ?", symbol, to).
		Order("datetime DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "OHLCVRepository",
			"op":     "RecentDaily",
			"symbol": symbol,
		}).WithError(err).Error("Failed to fetch daily candles")
		return nil, err
	}

	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// AverageDailyValue computes the trailing average of close * volume over the
// last lookback cached days. Returns 0 when no candles exist; the liquidity
// guardrail treats that as missing data, not as illiquidity.
func (r *OHLCVRepository) AverageDailyValue(ctx context.Context, symbol string, to time.Time, lookback int) (float64, error) {
	if lookback <= 0 {
		lookback = 20
	}

	rows, err := r.RecentDaily(ctx, symbol, to, lookback)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	var sum float64
	for _, c := range rows {
		v, _ := c.TradedValue().Float64()
		sum += v
	}
	return sum / float64(len(rows)), nil
}
