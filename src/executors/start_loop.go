package executors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"allocengine/src/allocator"
	"allocengine/src/connectors"
	"allocengine/src/externalmodel"
	"allocengine/src/guardrails"
	"allocengine/src/killswitch"
	"allocengine/src/ledger"
	"allocengine/src/mapper"
	"allocengine/src/model"
	"allocengine/src/playbook"
	"allocengine/src/repository"
	"allocengine/src/server"
	"allocengine/src/sizer"
	"allocengine/src/tp_sl"
)

type accountSource interface {
	FindAll(ctx context.Context) ([]model.Account, error)
	UpdateBalances(ctx context.Context, acct *model.Account) error
}

type mandateSource interface {
	CurrentByAccount(ctx context.Context, accountID uint) (*model.Mandate, error)
}

type signalSource interface {
	FindAfterID(ctx context.Context, lastID uint, limit int) ([]externalmodel.SignalRow, error)
}

type batchRunner interface {
	Run(ctx context.Context, acct *model.Account, m *model.Mandate, signals []*model.Signal) ([]*model.TradeProposal, error)
}

type proposalExpirer interface {
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}

type positionSource interface {
	OpenByAccount(ctx context.Context, accountID uint) ([]model.Position, error)
	UpdateStopLoss(ctx context.Context, positionID uint, stopLoss float64) error
}

type candleSource interface {
	RecentDaily(ctx context.Context, symbol string, to time.Time, limit int) ([]model.OHLCVDaily, error)
}

// trailLookbackDays is the daily-candle window for trailing-stop updates.
const trailLookbackDays = 20

// loopRunner holds everything one allocation tick touches. The signal cursor
// is in-memory; a restart replays the feed from the top and relies on open
// block records and the open-position cap to avoid double allocation.
type loopRunner struct {
	ledger    *ledger.Ledger
	accounts  accountSource
	mandates  mandateSource
	signals   signalSource
	allocator batchRunner
	proposals proposalExpirer
	positions positionSource
	candles   candleSource
	plays     *playbook.Registry

	batchSize int
	cursor    uint
	now       func() time.Time
}

func StartLoop(ctx context.Context) error {
	config := GetConfig()
	connConfig := connectors.GetConfig()

	accountRep := repository.NewAccountRepository()
	mandateRep := repository.NewMandateRepository()
	positionRep := repository.NewPositionRepository()
	proposalRep := repository.NewTradeProposalRepository()
	blockRep := repository.NewBlockRecordRepository()
	resultRep := repository.NewGuardrailResultRepository()
	killSwitchRep := repository.NewKillSwitchRepository()
	signalRep := repository.NewSignalFeedRepository()
	ohlcvRep := repository.NewOHLCVRepository()
	transactionRep := repository.NewCapitalTransactionRepository()

	led := ledger.New(transactionRep, config.ReservationTTL)

	market := connectors.NewMarketDataClient(connConfig.MarketDataAPIKey, connConfig.MarketDataBaseURL).
		WithADVSource(ohlcvRep)

	alloc := allocator.New(allocator.Deps{
		Ledger:    led,
		Market:    market,
		Proposals: proposalRep,
		Blocks:    blockRep,
		Results:   resultRep,
		Positions: positionRep,
	}, guardrails.DefaultConfig(), sizer.DefaultConfig())

	// Kill switches ride on the P&L push feed, independent of the tick.
	monitor := killswitch.NewMonitor(killSwitchRep, accountRep)
	stream := connectors.NewPnLStream(connConfig.PnLStreamURL)
	go func() {
		if err := stream.Run(ctx, monitor.Evaluate); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("P&L stream terminated")
		}
	}()

	// The HTTP surface reads the same ledger and monitor the loop runs on.
	go server.StartServer(server.GetConfig().Port, server.Deps{
		Ledger:       led,
		Monitor:      monitor,
		Mandates:     mandateRep,
		Proposals:    proposalRep,
		Transactions: transactionRep,
	})

	runner := &loopRunner{
		ledger:    led,
		accounts:  accountRep,
		mandates:  mandateRep,
		signals:   signalRep,
		allocator: alloc,
		proposals: proposalRep,
		positions: positionRep,
		candles:   ohlcvRep,
		plays:     playbook.Default(),
		batchSize: config.SignalBatchSize,
		now:       time.Now,
	}

	ticker := time.NewTicker(config.LoopPeriod) // Set up a ticker that fires periodically
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Println("loop stopped")
			return nil

		case <-ticker.C:
			logger.Info("loop tick")
			if err := runner.tick(ctx); err != nil {
				logger.WithError(err).Error("allocation tick failed, will exit here")
				return err
			}
		}
	}
}

// tick drains one batch from the signal feed, runs the allocation pipeline
// for every account, then sweeps expired reservations and proposals.
func (r *loopRunner) tick(ctx context.Context) error {
	rows, err := r.signals.FindAfterID(ctx, r.cursor, r.batchSize)
	if err != nil {
		return fmt.Errorf("polling signal feed: %w", err)
	}
	for _, row := range rows {
		if row.ID > r.cursor {
			r.cursor = row.ID
		}
	}

	signals := mapper.MapSignalRows(rows, r.plays)
	if len(signals) > 0 {
		if err := r.allocate(ctx, signals); err != nil {
			return err
		}
	}

	if err := r.trailStops(ctx); err != nil {
		return err
	}

	released := r.ledger.ExpireReservations(ctx, r.now())
	expired, err := r.proposals.ExpirePending(ctx, r.now())
	if err != nil {
		return fmt.Errorf("expiring proposals: %w", err)
	}
	if released > 0 || expired > 0 {
		logger.WithFields(logger.Fields{
			"reservations_released": released,
			"proposals_expired":     expired,
		}).Info("expiry sweep")
	}

	return nil
}

func (r *loopRunner) allocate(ctx context.Context, signals []*model.Signal) error {
	accounts, err := r.accounts.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("loading accounts: %w", err)
	}

	for i := range accounts {
		acct := &accounts[i]

		if err := r.registerIfNew(acct); err != nil {
			logger.WithError(err).WithField("account_id", acct.ID).
				Error("account snapshot rejected, skipping")
			continue
		}

		m, err := r.mandates.CurrentByAccount(ctx, acct.ID)
		if err != nil {
			return fmt.Errorf("loading mandate for account %d: %w", acct.ID, err)
		}
		if m == nil {
			logger.WithField("account_id", acct.ID).Warn("account has no mandate, skipping")
			continue
		}

		// Balances are owned by the ledger once registered; the pause flag is
		// owned by the database row (the kill-switch monitor flips it there).
		snap, err := r.ledger.Snapshot(acct.ID)
		if err != nil {
			return fmt.Errorf("reading ledger snapshot for account %d: %w", acct.ID, err)
		}
		snap.Paused = acct.Paused

		if _, err := r.allocator.Run(ctx, &snap, m, signals); err != nil {
			return fmt.Errorf("allocating for account %d: %w", acct.ID, err)
		}

		updated, err := r.ledger.Snapshot(acct.ID)
		if err != nil {
			return fmt.Errorf("reading ledger snapshot for account %d: %w", acct.ID, err)
		}
		if err := r.accounts.UpdateBalances(ctx, &updated); err != nil {
			return fmt.Errorf("persisting balances for account %d: %w", acct.ID, err)
		}
	}

	return nil
}

// trailStops tightens protective stops on open positions from the daily
// candle cache. Stops only ever tighten; a missing candle history skips the
// position rather than failing the tick.
func (r *loopRunner) trailStops(ctx context.Context) error {
	accounts, err := r.accounts.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("loading accounts: %w", err)
	}

	for i := range accounts {
		acct := &accounts[i]

		open, err := r.positions.OpenByAccount(ctx, acct.ID)
		if err != nil {
			return fmt.Errorf("loading open positions for account %d: %w", acct.ID, err)
		}

		for _, p := range open {
			side := tp_sl.SideForDirection(p.Direction)
			if side == "" {
				continue
			}

			candles, err := r.candles.RecentDaily(ctx, p.Symbol, r.now(), trailLookbackDays+1)
			if err != nil {
				logger.WithError(err).WithField("symbol", p.Symbol).
					Warn("no candle history for trailing stop")
				continue
			}

			newSL, moved := tp_sl.ComputeNextStopLossDirectional(
				side, decimal.NewFromFloat(p.StopLoss), candles, trailLookbackDays)
			if !moved {
				continue
			}

			sl, _ := newSL.Float64()
			if err := r.positions.UpdateStopLoss(ctx, p.ID, sl); err != nil {
				return fmt.Errorf("updating stop loss on position %d: %w", p.ID, err)
			}

			logger.WithFields(logger.Fields{
				"account_id":  acct.ID,
				"position_id": p.ID,
				"symbol":      p.Symbol,
				"stop_loss":   sl,
			}).Info("trailing stop tightened")
		}
	}

	return nil
}

func (r *loopRunner) registerIfNew(acct *model.Account) error {
	if _, err := r.ledger.Snapshot(acct.ID); err == nil {
		return nil
	} else if !errors.Is(err, ledger.ErrUnknownAccount) {
		return err
	}
	return r.ledger.Register(*acct)
}
