package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"allocengine/src/database"
	"allocengine/src/model"
)

// KillSwitchRepository persists kill-switch rows for the monitor.
type KillSwitchRepository struct {
	db *gorm.DB
}

func NewKillSwitchRepository() *KillSwitchRepository {
	logger.WithField("component", "KillSwitchRepository").
		Info("Creating new KillSwitchRepository")

	return &KillSwitchRepository{db: database.MainDB}
}

func NewKillSwitchRepositoryWithDB(db *gorm.DB) *KillSwitchRepository {
	return &KillSwitchRepository{db: db}
}

// ByAccount returns every switch configured for the account.
func (r *KillSwitchRepository) ByAccount(ctx context.Context, accountID uint) ([]*model.KillSwitch, error) {
	var out []*model.KillSwitch
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "KillSwitchRepository",
			"op":         "ByAccount",
			"account_id": accountID,
		}).WithError(err).Error("Failed to fetch kill switches")
		return nil, err
	}
	return out, nil
}

// Save writes the full switch row, trip state included.
func (r *KillSwitchRepository) Save(ctx context.Context, ks *model.KillSwitch) error {
	err := r.db.WithContext(ctx).Save(ks).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "KillSwitchRepository",
			"op":         "Save",
			"account_id": ks.AccountID,
			"kind":       ks.Kind,
		}).WithError(err).Error("Failed to persist kill switch")
		return err
	}
	return nil
}
