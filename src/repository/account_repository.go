package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"allocengine/src/database"
	"allocengine/src/model"
)

// AccountRepository handles persistence for trading accounts, including the
// pause flag the kill-switch monitor flips.
type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository() *AccountRepository {
	logger.WithField("component", "AccountRepository").
		Info("Creating new AccountRepository")

	return &AccountRepository{db: database.MainDB}
}

func NewAccountRepositoryWithDB(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// FindByID fetches one account. Returns (nil, nil) if not found.
func (r *AccountRepository) FindByID(ctx context.Context, id uint) (*model.Account, error) {
	var acct model.Account
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&acct).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo": "AccountRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch account")
		return nil, err
	}
	return &acct, nil
}

// FindAll returns every account, paused ones included; the allocator decides
// what to do with the pause flag.
func (r *AccountRepository) FindAll(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	err := r.db.WithContext(ctx).
		Order("id ASC").
		Find(&accounts).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "AccountRepository",
			"op":   "FindAll",
		}).WithError(err).Error("Failed to fetch accounts")
		return nil, err
	}
	return accounts, nil
}

// UpdateBalances writes the ledger's balance columns back to the row.
func (r *AccountRepository) UpdateBalances(ctx context.Context, acct *model.Account) error {
	err := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", acct.ID).
		Updates(map[string]interface{}{
			"total_capital":  acct.TotalCapital,
			"available_cash": acct.AvailableCash,
			"reserved_cash":  acct.ReservedCash,
			"deployed_cash":  acct.DeployedCash,
			"realized_pnl":   acct.RealizedPnl,
		}).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "AccountRepository",
			"op":   "UpdateBalances",
			"id":   acct.ID,
		}).WithError(err).Error("Failed to update account balances")
		return err
	}
	return nil
}

func (r *AccountRepository) setPaused(ctx context.Context, accountID uint, paused bool) error {
	err := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", accountID).
		Update("paused", paused).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "AccountRepository",
			"op":     "setPaused",
			"id":     accountID,
			"paused": paused,
		}).WithError(err).Error("Failed to update pause flag")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":   "AccountRepository",
		"op":     "setPaused",
		"id":     accountID,
		"paused": paused,
	}).Warn("Account pause flag changed")
	return nil
}

// Pause and Resume implement the kill-switch monitor's Pauser contract.
func (r *AccountRepository) Pause(ctx context.Context, accountID uint) error {
	return r.setPaused(ctx, accountID, true)
}

func (r *AccountRepository) Resume(ctx context.Context, accountID uint) error {
	return r.setPaused(ctx, accountID, false)
}
