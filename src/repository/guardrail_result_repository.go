package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"allocengine/src/database"
	"allocengine/src/model"
)

// GuardrailResultRepository stores one row per evaluation attempt; rows are
// write-once and form the audit trail for every allocation decision.
type GuardrailResultRepository struct {
	db *gorm.DB
}

func NewGuardrailResultRepository() *GuardrailResultRepository {
	logger.WithField("component", "GuardrailResultRepository").
		Info("Creating new GuardrailResultRepository")

	return &GuardrailResultRepository{db: database.MainDB}
}

func NewGuardrailResultRepositoryWithDB(db *gorm.DB) *GuardrailResultRepository {
	return &GuardrailResultRepository{db: db}
}

func (r *GuardrailResultRepository) Save(ctx context.Context, result *model.GuardrailResult) error {
	if err := r.db.WithContext(ctx).Create(result).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "GuardrailResultRepository",
			"op":         "Save",
			"account_id": result.AccountID,
			"signal_id":  result.SignalID,
		}).WithError(err).Error("Failed to persist guardrail result")
		return err
	}
	return nil
}

// ListBySignal returns every evaluation of one signal, newest first.
func (r *GuardrailResultRepository) ListBySignal(ctx context.Context, signalID string, limit int) ([]model.GuardrailResult, error) {
	if limit <= 0 {
		limit = 50
	}

	var out []model.GuardrailResult
	err := r.db.WithContext(ctx).
		Where("signal_id = ?", signalID).
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "GuardrailResultRepository",
			"op":        "ListBySignal",
			"signal_id": signalID,
		}).WithError(err).Error("Failed to fetch guardrail results")
		return nil, err
	}
	return out, nil
}
