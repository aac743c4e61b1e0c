package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"allocengine/src/killswitch"
	"allocengine/src/model"
)

type switchResetter interface {
	Reset(ctx context.Context, accountID uint, kind model.KillSwitchKind) error
}

type resetKillSwitchPayload struct {
	OperatorSecret string `json:"operator_secret"`
}

// ResetKillSwitchHandler re-arms a tripped kill switch. Resets require the
// operator secret; with no hash configured the endpoint refuses outright.
func ResetKillSwitchHandler(monitor switchResetter, operatorSecretHash string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if operatorSecretHash == "" {
			logger.Warn("kill-switch reset requested but no operator secret is configured")
			http.Error(w, "resets are disabled", http.StatusServiceUnavailable)
			return
		}

		accountID, err := parseAccountID(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		kind := model.KillSwitchKind(chi.URLParam(r, "kind"))
		if kind != model.KillSwitchMaxDailyLoss && kind != model.KillSwitchMaxDrawdown {
			http.Error(w, "unknown kill-switch kind", http.StatusBadRequest)
			return
		}

		var payload resetKillSwitchPayload
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid kill-switch reset payload")
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(operatorSecretHash), []byte(payload.OperatorSecret)); err != nil {
			logger.WithField("account_id", accountID).Warn("operator secret mismatch on kill-switch reset")
			http.Error(w, "invalid operator secret", http.StatusUnauthorized)
			return
		}

		if err := monitor.Reset(r.Context(), accountID, kind); err != nil {
			switch {
			case errors.Is(err, killswitch.ErrSwitchNotFound):
				http.Error(w, "kill switch not found", http.StatusNotFound)
			case errors.Is(err, killswitch.ErrSwitchNotTripped):
				http.Error(w, "kill switch is not tripped", http.StatusConflict)
			default:
				logger.WithError(err).WithField("account_id", accountID).Error("kill-switch reset failed")
				http.Error(w, "unable to reset kill switch", http.StatusInternalServerError)
			}
			return
		}

		logger.WithFields(logger.Fields{
			"account_id": accountID,
			"kind":       kind,
		}).Warn("kill switch manually reset")

		writeJSON(w, map[string]string{"status": "reset"})
	}
}
