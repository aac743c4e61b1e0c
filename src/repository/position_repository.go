package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"allocengine/src/database"
	"allocengine/src/model"
)

// PositionRepository persists open and closed positions. The open set feeds
// the sector-exposure guardrail and the open-position count cap.
type PositionRepository struct {
	db *gorm.DB
}

func NewPositionRepository() *PositionRepository {
	logger.WithField("component", "PositionRepository").
		Info("Creating new PositionRepository")

	return &PositionRepository{db: database.MainDB}
}

func NewPositionRepositoryWithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// OpenByAccount returns the account's open positions.
func (r *PositionRepository) OpenByAccount(ctx context.Context, accountID uint) ([]model.Position, error) {
	var out []model.Position
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND status = ?", accountID, model.PositionStatusOpen).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "PositionRepository",
			"op":         "OpenByAccount",
			"account_id": accountID,
		}).WithError(err).Error("Failed to fetch open positions")
		return nil, err
	}
	return out, nil
}

// Create inserts a freshly opened position.
func (r *PositionRepository) Create(ctx context.Context, p *model.Position) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "PositionRepository",
			"op":         "Create",
			"account_id": p.AccountID,
			"symbol":     p.Symbol,
		}).WithError(err).Error("Failed to create position")
		return err
	}
	return nil
}

// UpdateStopLoss tightens the protective stop on an open position.
func (r *PositionRepository) UpdateStopLoss(ctx context.Context, positionID uint, stopLoss float64) error {
	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ? AND status = ?", positionID, model.PositionStatusOpen).
		Update("stop_loss", stopLoss).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "UpdateStopLoss",
			"id":   positionID,
		}).WithError(err).Error("Failed to update stop loss")
		return err
	}
	return nil
}

// Close marks a position closed with its realized P&L.
func (r *PositionRepository) Close(ctx context.Context, positionID uint, realizedPnl decimal.Decimal, closedAt time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ? AND status = ?", positionID, model.PositionStatusOpen).
		Updates(map[string]interface{}{
			"status":       model.PositionStatusClosed,
			"realized_pnl": realizedPnl,
			"closed_at":    closedAt,
		}).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "Close",
			"id":   positionID,
		}).WithError(err).Error("Failed to close position")
		return err
	}
	return nil
}
