package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"allocengine/src/database"
	"allocengine/src/model"
)

// MandateRepository handles the versioned mandate store. Rows are append-only:
// editing a mandate inserts Version+1 and leaves every prior version intact
// so old allocation decisions stay explainable.
type MandateRepository struct {
	db *gorm.DB
}

func NewMandateRepository() *MandateRepository {
	logger.WithField("component", "MandateRepository").
		Info("Creating new MandateRepository")

	return &MandateRepository{db: database.MainDB}
}

func NewMandateRepositoryWithDB(db *gorm.DB) *MandateRepository {
	return &MandateRepository{db: db}
}

// CurrentByAccount returns the highest-version mandate for the account.
// Returns (nil, nil) if the account has no mandate yet.
func (r *MandateRepository) CurrentByAccount(ctx context.Context, accountID uint) (*model.Mandate, error) {
	var m model.Mandate
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("version DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo":       "MandateRepository",
				"op":         "CurrentByAccount",
				"account_id": accountID,
			}).Info("No mandate for account")
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":       "MandateRepository",
			"op":         "CurrentByAccount",
			"account_id": accountID,
		}).WithError(err).Error("Failed to fetch current mandate")
		return nil, err
	}
	return &m, nil
}

// Create inserts a new mandate version. The version number is assigned here,
// inside one transaction, so two concurrent edits cannot claim the same slot.
func (r *MandateRepository) Create(ctx context.Context, m *model.Mandate) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current int
		err := tx.Model(&model.Mandate{}).
			Where("account_id = ?", m.AccountID).
			Select("COALESCE(MAX(version), 0)").
			Scan(&current).Error
		if err != nil {
			return err
		}

		m.ID = 0
		m.Version = current + 1
		return tx.Create(m).Error
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "MandateRepository",
			"op":         "Create",
			"account_id": m.AccountID,
		}).WithError(err).Error("Failed to create mandate version")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":       "MandateRepository",
		"op":         "Create",
		"account_id": m.AccountID,
		"version":    m.Version,
	}).Info("Mandate version created")
	return nil
}

// History returns every version for an account, newest first.
func (r *MandateRepository) History(ctx context.Context, accountID uint) ([]model.Mandate, error) {
	var out []model.Mandate
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("version DESC").
		Find(&out).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "MandateRepository",
			"op":         "History",
			"account_id": accountID,
		}).WithError(err).Error("Failed to fetch mandate history")
		return nil, err
	}
	return out, nil
}
