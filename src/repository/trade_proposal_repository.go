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

// TradeProposalRepository persists the engine's output rows.
type TradeProposalRepository struct {
	db *gorm.DB
}

func NewTradeProposalRepository() *TradeProposalRepository {
	logger.WithField("component", "TradeProposalRepository").
		Info("Creating new TradeProposalRepository")

	return &TradeProposalRepository{db: database.MainDB}
}

func NewTradeProposalRepositoryWithDB(db *gorm.DB) *TradeProposalRepository {
	return &TradeProposalRepository{db: db}
}

func (r *TradeProposalRepository) Save(ctx context.Context, p *model.TradeProposal) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "TradeProposalRepository",
			"op":         "Save",
			"account_id": p.AccountID,
			"signal_id":  p.SignalID,
		}).WithError(err).Error("Failed to persist trade proposal")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":           "TradeProposalRepository",
		"op":             "Save",
		"account_id":     p.AccountID,
		"signal_id":      p.SignalID,
		"quantity":       p.Quantity,
		"reservation_id": p.ReservationID,
	}).Info("Trade proposal persisted")
	return nil
}

// FindByReservation resolves a proposal from its ledger reservation id.
// Returns (nil, nil) if not found.
func (r *TradeProposalRepository) FindByReservation(ctx context.Context, reservationID string) (*model.TradeProposal, error) {
	var p model.TradeProposal
	err := r.db.WithContext(ctx).
		Where("reservation_id = ?", reservationID).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":           "TradeProposalRepository",
			"op":             "FindByReservation",
			"reservation_id": reservationID,
		}).WithError(err).Error("Failed to fetch trade proposal")
		return nil, err
	}
	return &p, nil
}

// ListPending returns proposals still awaiting execution, oldest first.
func (r *TradeProposalRepository) ListPending(ctx context.Context, accountID uint) ([]model.TradeProposal, error) {
	var out []model.TradeProposal
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND status = ?", accountID, model.ProposalStatusProposed).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "TradeProposalRepository",
			"op":         "ListPending",
			"account_id": accountID,
		}).WithError(err).Error("Failed to fetch pending proposals")
		return nil, err
	}
	return out, nil
}

// UpdateStatus transitions a proposal's lifecycle column.
func (r *TradeProposalRepository) UpdateStatus(ctx context.Context, id uint, status model.ProposalStatus) error {
	err := r.db.WithContext(ctx).
		Model(&model.TradeProposal{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "TradeProposalRepository",
			"op":     "UpdateStatus",
			"id":     id,
			"status": status,
		}).WithError(err).Error("Failed to update proposal status")
		return err
	}
	return nil
}

// ExpirePending marks every PROPOSED row past its deadline as EXPIRED and
// returns how many rows changed. Runs alongside the ledger's reservation
// sweep.
func (r *TradeProposalRepository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.TradeProposal{}).
		Where("status = ? AND expires_at < ?", model.ProposalStatusProposed, now).
		Update("status", model.ProposalStatusExpired)
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "TradeProposalRepository",
			"op":   "ExpirePending",
		}).WithError(res.Error).Error("Failed to expire proposals")
		return 0, res.Error
	}

	if res.RowsAffected > 0 {
		logger.WithFields(map[string]interface{}{
			"repo":    "TradeProposalRepository",
			"op":      "ExpirePending",
			"expired": res.RowsAffected,
		}).Info("Stale proposals expired")
	}
	return res.RowsAffected, nil
}
