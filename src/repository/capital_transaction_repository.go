package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"allocengine/src/database"
	"allocengine/src/model"
)

// CapitalTransactionRepository is the append-only audit log behind the
// ledger. It satisfies the ledger's Recorder contract: a multi-row Record
// call (the transfer pair) commits in one database transaction.
type CapitalTransactionRepository struct {
	db *gorm.DB
}

func NewCapitalTransactionRepository() *CapitalTransactionRepository {
	logger.WithField("component", "CapitalTransactionRepository").
		Info("Creating new CapitalTransactionRepository")

	return &CapitalTransactionRepository{db: database.MainDB}
}

func NewCapitalTransactionRepositoryWithDB(db *gorm.DB) *CapitalTransactionRepository {
	return &CapitalTransactionRepository{db: db}
}

// Record appends the given transactions atomically: all rows commit or none
// do. Rows are never updated or deleted afterwards.
func (r *CapitalTransactionRepository) Record(ctx context.Context, txs ...*model.CapitalTransaction) error {
	if len(txs) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, t := range txs {
			if err := tx.Create(t).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "CapitalTransactionRepository",
			"op":   "Record",
			"rows": len(txs),
		}).WithError(err).Error("Failed to append capital transactions")
		return err
	}

	return nil
}

// ListByAccount returns the account's transaction history, newest first.
func (r *CapitalTransactionRepository) ListByAccount(ctx context.Context, accountID uint, limit int) ([]model.CapitalTransaction, error) {
	if limit <= 0 {
		limit = 100
	}

	var out []model.CapitalTransaction
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "CapitalTransactionRepository",
			"op":         "ListByAccount",
			"account_id": accountID,
		}).WithError(err).Error("Failed to fetch capital transactions")
		return nil, err
	}
	return out, nil
}
