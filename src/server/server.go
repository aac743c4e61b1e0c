package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"allocengine/src/handler"
	"allocengine/src/killswitch"
	"allocengine/src/ledger"
	"allocengine/src/repository"
	"allocengine/src/security"
)

// Deps are the shared components the HTTP surface exposes. The ledger and
// monitor are the same instances the allocation loop runs on; the read
// endpoints must see live balances, not a second copy.
type Deps struct {
	Ledger       *ledger.Ledger
	Monitor      *killswitch.Monitor
	Mandates     *repository.MandateRepository
	Proposals    *repository.TradeProposalRepository
	Transactions *repository.CapitalTransactionRepository
}

func StartServer(port string, deps Deps) {
	secConfig := security.GetConfig()

	// Router with middleware
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})

	r.Get("/portfolio", handler.PortfolioSummaryHandler(deps.Ledger))

	r.Route("/accounts/{accountID}", func(r chi.Router) {
		r.Get("/summary", handler.AccountSummaryHandler(deps.Ledger))
		r.Get("/proposals", handler.ListProposalsHandler(deps.Proposals))
		r.Get("/transactions", handler.ListTransactionsHandler(deps.Transactions))
		r.Get("/mandate", handler.CurrentMandateHandler(deps.Mandates))
		r.Get("/mandates", handler.MandateHistoryHandler(deps.Mandates))
		r.Post("/mandates", handler.CreateMandateHandler(deps.Mandates))
		r.Post("/killswitches/{kind}/reset",
			handler.ResetKillSwitchHandler(deps.Monitor, secConfig.OperatorSecretHash))
	})

	// Graceful server
	// Server setup
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
