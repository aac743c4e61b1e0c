package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"allocengine/src/ledger"
	"allocengine/src/model"
)

type balanceSource interface {
	Snapshot(accountID uint) (model.Account, error)
	DeployableCash(accountID uint) (decimal.Decimal, error)
}

type portfolioSource interface {
	Summary() ledger.PortfolioSummary
}

// accountSummaryResponse is the per-account capital view: the three cash
// buckets plus the slice of available cash new positions may actually use.
type accountSummaryResponse struct {
	AccountID      uint            `json:"account_id"`
	TotalCapital   decimal.Decimal `json:"total_capital"`
	AvailableCash  decimal.Decimal `json:"available_cash"`
	ReservedCash   decimal.Decimal `json:"reserved_cash"`
	DeployedCash   decimal.Decimal `json:"deployed_cash"`
	RealizedPnl    decimal.Decimal `json:"realized_pnl"`
	DeployableCash decimal.Decimal `json:"deployable_cash"`
	Paused         bool            `json:"paused"`
}

func parseAccountID(r *http.Request) (uint, error) {
	raw := chi.URLParam(r, "accountID")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid account id")
	}
	return uint(id), nil
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}

// AccountSummaryHandler returns the live ledger view of one account.
func AccountSummaryHandler(balances balanceSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := parseAccountID(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		acct, err := balances.Snapshot(accountID)
		if err != nil {
			if errors.Is(err, ledger.ErrUnknownAccount) {
				http.Error(w, "account not found", http.StatusNotFound)
				return
			}
			logger.WithError(err).WithField("account_id", accountID).Error("failed to read account snapshot")
			http.Error(w, "unable to read account", http.StatusInternalServerError)
			return
		}

		deployable, err := balances.DeployableCash(accountID)
		if err != nil {
			logger.WithError(err).WithField("account_id", accountID).Error("failed to read deployable cash")
			http.Error(w, "unable to read account", http.StatusInternalServerError)
			return
		}

		writeJSON(w, accountSummaryResponse{
			AccountID:      acct.ID,
			TotalCapital:   acct.TotalCapital,
			AvailableCash:  acct.AvailableCash,
			ReservedCash:   acct.ReservedCash,
			DeployedCash:   acct.DeployedCash,
			RealizedPnl:    acct.RealizedPnl,
			DeployableCash: deployable,
			Paused:         acct.Paused,
		})
	}
}

// PortfolioSummaryHandler aggregates capital across all registered accounts.
func PortfolioSummaryHandler(portfolio portfolioSource) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, portfolio.Summary())
	}
}
