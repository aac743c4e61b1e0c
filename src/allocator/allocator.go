package allocator

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"allocengine/src/guardrails"
	"allocengine/src/ledger"
	"allocengine/src/mandate"
	"allocengine/src/model"
	"allocengine/src/ranker"
	"allocengine/src/sizer"
)

// ProposalStore persists accepted trade proposals.
type ProposalStore interface {
	Save(ctx context.Context, p *model.TradeProposal) error
}

// BlockStore persists critical-failure block markers. FindOpen returns
// (nil, nil) when no open record exists for the pair.
type BlockStore interface {
	FindOpen(ctx context.Context, accountID uint, signalID string) (*model.BlockRecord, error)
	Save(ctx context.Context, b *model.BlockRecord) error
}

// ResultStore persists guardrail evaluation rows for the audit trail.
type ResultStore interface {
	Save(ctx context.Context, r *model.GuardrailResult) error
}

// PositionStore supplies the open-position snapshot used for sector exposure
// and the open-position count cap.
type PositionStore interface {
	OpenByAccount(ctx context.Context, accountID uint) ([]model.Position, error)
}

// MarketData supplies the per-symbol snapshot (price, ATR, ADV, regimes,
// event calendar). The allocator never talks to external feeds directly.
type MarketData interface {
	Snapshot(ctx context.Context, symbol string) (*model.MarketSnapshot, error)
}

// Allocator runs the per-account pipeline: mandate filter, objective ranking,
// sizing, guardrails, then a ledger reservation for every surviving signal.
type Allocator struct {
	ledger    *ledger.Ledger
	market    MarketData
	proposals ProposalStore
	blocks    BlockStore
	results   ResultStore
	positions PositionStore

	guardCfg guardrails.Config
	sizeCfg  sizer.Config
	now      func() time.Time
	log      *log.Entry
}

type Deps struct {
	Ledger    *ledger.Ledger
	Market    MarketData
	Proposals ProposalStore
	Blocks    BlockStore
	Results   ResultStore
	Positions PositionStore
}

func New(deps Deps, guardCfg guardrails.Config, sizeCfg sizer.Config) *Allocator {
	return &Allocator{
		ledger:    deps.Ledger,
		market:    deps.Market,
		proposals: deps.Proposals,
		blocks:    deps.Blocks,
		results:   deps.Results,
		positions: deps.Positions,
		guardCfg:  guardCfg,
		sizeCfg:   sizeCfg,
		now:       time.Now,
		log:       log.WithField("repo", "allocator"),
	}
}

// WithClock overrides the time source. Tests only.
func (a *Allocator) WithClock(now func() time.Time) *Allocator {
	a.now = now
	return a
}

// Run processes one signal batch for one account and returns the proposals it
// reserved cash for. Signals that fail a filter, size to zero, or lose a cash
// race are skipped silently; only infrastructure failures surface as errors.
func (a *Allocator) Run(ctx context.Context, acct *model.Account, m *model.Mandate, signals []*model.Signal) ([]*model.TradeProposal, error) {
	alog := a.log.WithFields(log.Fields{"op": "Run", "account_id": acct.ID})

	if acct.Paused {
		alog.WithField("signals", len(signals)).Warn("account paused, batch skipped")
		return nil, nil
	}

	eligible := mandate.FilterEligible(signals, m, acct.Paused)
	if len(eligible) == 0 {
		return nil, nil
	}

	open, err := a.positions.OpenByAccount(ctx, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("loading open positions: %w", err)
	}

	capacity := -1 // unrestricted
	if m.MaxOpenPositions > 0 {
		capacity = m.MaxOpenPositions - len(open)
		if capacity <= 0 {
			alog.WithFields(log.Fields{
				"open":  len(open),
				"limit": m.MaxOpenPositions,
			}).Info("open-position limit reached, batch skipped")
			return nil, nil
		}
	}

	snapshots, err := a.fetchSnapshots(ctx, eligible)
	if err != nil {
		return nil, err
	}

	vol := func(symbol string) float64 {
		if snap, ok := snapshots[symbol]; ok && snap.Price > 0 {
			return snap.ATR / snap.Price
		}
		return 0
	}

	ranked := ranker.Rank(eligible, acct.Objective, vol)

	var out []*model.TradeProposal
	for _, sig := range ranked {
		if capacity == 0 {
			break
		}

		proposal, err := a.evaluateOne(ctx, acct, m, sig, snapshots[sig.Symbol], open)
		if err != nil {
			return out, err
		}
		if proposal == nil {
			continue
		}

		out = append(out, proposal)
		if capacity > 0 {
			capacity--
		}
	}

	alog.WithFields(log.Fields{
		"signals":   len(signals),
		"eligible":  len(eligible),
		"proposals": len(out),
	}).Info("allocation batch complete")

	return out, nil
}

// evaluateOne runs sizing and guardrails for a single (signal, account) pair.
// Returns (nil, nil) when the signal is skipped without an infrastructure
// failure.
func (a *Allocator) evaluateOne(ctx context.Context, acct *model.Account, m *model.Mandate, sig *model.Signal, snap *model.MarketSnapshot, open []model.Position) (*model.TradeProposal, error) {
	slog := a.log.WithFields(log.Fields{
		"op":         "evaluateOne",
		"account_id": acct.ID,
		"signal_id":  sig.ID,
		"symbol":     sig.Symbol,
	})

	if snap == nil {
		slog.Warn("no market snapshot, signal skipped")
		return nil, nil
	}

	deployable, err := a.ledger.DeployableCash(acct.ID)
	if err != nil {
		return nil, fmt.Errorf("reading deployable cash: %w", err)
	}

	sized := sizer.Size(sizer.Params{
		Signal:        sig,
		Mandate:       m,
		TotalCapital:  acct.TotalCapital.Add(acct.RealizedPnl),
		AvailableCash: deployable,
		Price:         snap.Price,
		ATR:           snap.ATR,
	}, a.sizeCfg)
	if sized.Quantity == 0 {
		slog.Info("no size fits, signal skipped")
		return nil, nil
	}

	result := guardrails.Evaluate(&guardrails.Input{
		Signal:        sig,
		Mandate:       m,
		Account:       acct,
		Market:        snap,
		Quantity:      sized.Quantity,
		EntryPrice:    sized.EntryPrice,
		StopLoss:      sized.StopLoss,
		OpenPositions: open,
		Now:           a.now(),
	}, a.guardCfg)

	if err := a.results.Save(ctx, result); err != nil {
		return nil, fmt.Errorf("persisting guardrail result: %w", err)
	}

	if result.HasCriticalFailure {
		if err := a.recordBlock(ctx, acct.ID, sig, result); err != nil {
			return nil, err
		}
		slog.WithField("reasons", result.CriticalCodes()).Warn("signal blocked by guardrails")
		return nil, nil
	}

	res, err := a.ledger.Reserve(ctx, acct.ID, sized.Notional, sig.ID)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			slog.WithField("notional", sized.Notional.String()).Info("reserve lost the cash race, signal skipped")
			return nil, nil
		}
		return nil, fmt.Errorf("reserving cash: %w", err)
	}

	proposal := &model.TradeProposal{
		AccountID:         acct.ID,
		SignalID:          sig.ID,
		Symbol:            sig.Symbol,
		Direction:         sig.Direction,
		Quantity:          sized.Quantity,
		Tranches:          sized.Tranches,
		EntryPrice:        sized.EntryPrice,
		StopLoss:          sized.StopLoss,
		TakeProfit:        sized.TakeProfit,
		ReservedAmount:    sized.Notional,
		ReservationID:     res.ID,
		RiskAmount:        sized.RiskAmount,
		RewardAmount:      sized.RewardAmount,
		RiskRewardRatio:   sized.RiskRewardRatio,
		GuardrailResultID: &result.ID,
		Status:            model.ProposalStatusProposed,
		ExpiresAt:         res.ExpiresAt,
	}
	if err := a.proposals.Save(ctx, proposal); err != nil {
		// The reservation must not dangle without a proposal row.
		if relErr := a.ledger.Release(ctx, res.ID); relErr != nil {
			slog.WithError(relErr).Error("failed to release orphaned reservation")
		}
		return nil, fmt.Errorf("persisting proposal: %w", err)
	}

	slog.WithFields(log.Fields{
		"quantity":       proposal.Quantity,
		"reserved":       proposal.ReservedAmount.String(),
		"reservation_id": proposal.ReservationID,
	}).Info("trade proposal reserved")

	return proposal, nil
}

// recordBlock marks the pair blocked, creating at most one open record no
// matter how many times the same signal is re-evaluated.
func (a *Allocator) recordBlock(ctx context.Context, accountID uint, sig *model.Signal, result *model.GuardrailResult) error {
	existing, err := a.blocks.FindOpen(ctx, accountID, sig.ID)
	if err != nil {
		return fmt.Errorf("looking up block record: %w", err)
	}
	if existing != nil {
		return nil
	}

	return a.blocks.Save(ctx, &model.BlockRecord{
		AccountID:   accountID,
		SignalID:    sig.ID,
		Symbol:      sig.Symbol,
		ReasonCodes: result.CriticalCodes(),
		Status:      model.BlockStatusOpen,
	})
}

func (a *Allocator) fetchSnapshots(ctx context.Context, signals []*model.Signal) (map[string]*model.MarketSnapshot, error) {
	snapshots := make(map[string]*model.MarketSnapshot, len(signals))
	for _, sig := range signals {
		if _, ok := snapshots[sig.Symbol]; ok {
			continue
		}
		snap, err := a.market.Snapshot(ctx, sig.Symbol)
		if err != nil {
			a.log.WithError(err).WithField("symbol", sig.Symbol).Warn("market snapshot unavailable")
			continue
		}
		snapshots[sig.Symbol] = snap
	}
	return snapshots, nil
}
