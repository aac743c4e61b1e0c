package handler

import (
	"context"
	"encoding/json"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"allocengine/src/model"
)

type mandateStore interface {
	CurrentByAccount(ctx context.Context, accountID uint) (*model.Mandate, error)
	Create(ctx context.Context, m *model.Mandate) error
	History(ctx context.Context, accountID uint) ([]model.Mandate, error)
}

// CurrentMandateHandler returns the highest-version mandate for the account.
func CurrentMandateHandler(repo mandateStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := parseAccountID(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		m, err := repo.CurrentByAccount(r.Context(), accountID)
		if err != nil {
			logger.WithError(err).WithField("account_id", accountID).Error("failed to load mandate")
			http.Error(w, "unable to load mandate", http.StatusInternalServerError)
			return
		}
		if m == nil {
			http.Error(w, "no mandate for account", http.StatusNotFound)
			return
		}

		writeJSON(w, m)
	}
}

// MandateHistoryHandler returns every mandate version for the account,
// newest first. Prior versions are immutable.
func MandateHistoryHandler(repo mandateStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := parseAccountID(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		history, err := repo.History(r.Context(), accountID)
		if err != nil {
			logger.WithError(err).WithField("account_id", accountID).Error("failed to load mandate history")
			http.Error(w, "unable to load mandate history", http.StatusInternalServerError)
			return
		}
		if history == nil {
			history = []model.Mandate{}
		}

		writeJSON(w, history)
	}
}

// CreateMandateHandler writes a new mandate version for the account. The
// version is assigned server-side; client-supplied versions are ignored.
func CreateMandateHandler(repo mandateStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := parseAccountID(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var payload model.Mandate
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid mandate payload")
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}

		if payload.HorizonMinDays < 0 || payload.HorizonMaxDays < 0 ||
			(payload.HorizonMaxDays > 0 && payload.HorizonMinDays > payload.HorizonMaxDays) {
			http.Error(w, "invalid horizon range", http.StatusBadRequest)
			return
		}
		if payload.RiskPosture == "" {
			payload.RiskPosture = model.RiskPostureConservative
		}

		payload.AccountID = accountID
		if err := repo.Create(r.Context(), &payload); err != nil {
			logger.WithError(err).WithField("account_id", accountID).Error("failed to create mandate")
			http.Error(w, "unable to create mandate", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logger.WithError(err).Error("failed to encode mandate response")
		}
	}
}
