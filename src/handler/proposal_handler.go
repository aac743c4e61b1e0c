package handler

import (
	"context"
	"net/http"
	"strconv"

	logger "github.com/sirupsen/logrus"

	"allocengine/src/model"
)

type proposalLister interface {
	ListPending(ctx context.Context, accountID uint) ([]model.TradeProposal, error)
}

type transactionLister interface {
	ListByAccount(ctx context.Context, accountID uint, limit int) ([]model.CapitalTransaction, error)
}

// ListProposalsHandler returns the account's pending trade proposals, i.e.
// reservations awaiting deployment or expiry.
func ListProposalsHandler(repo proposalLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := parseAccountID(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		proposals, err := repo.ListPending(r.Context(), accountID)
		if err != nil {
			logger.WithError(err).WithField("account_id", accountID).Error("failed to list proposals")
			http.Error(w, "unable to list proposals", http.StatusInternalServerError)
			return
		}
		if proposals == nil {
			proposals = []model.TradeProposal{}
		}

		writeJSON(w, proposals)
	}
}

// ListTransactionsHandler returns the account's capital movement audit trail,
// newest first. Supports ?limit= (default 50).
func ListTransactionsHandler(repo transactionLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := parseAccountID(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		limit := 50
		if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
			parsed, err := strconv.Atoi(limitParam)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		txs, err := repo.ListByAccount(r.Context(), accountID, limit)
		if err != nil {
			logger.WithError(err).WithField("account_id", accountID).Error("failed to list transactions")
			http.Error(w, "unable to list transactions", http.StatusInternalServerError)
			return
		}
		if txs == nil {
			txs = []model.CapitalTransaction{}
		}

		writeJSON(w, txs)
	}
}
