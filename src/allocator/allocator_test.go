package allocator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"allocengine/src/guardrails"
	"allocengine/src/ledger"
	"allocengine/src/model"
	"allocengine/src/sizer"
)

type recorderStub struct {
	mu  sync.Mutex
	txs []*model.CapitalTransaction
}

func (r *recorderStub) Record(_ context.Context, txs ...*model.CapitalTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs = append(r.txs, txs...)
	return nil
}

type marketStub struct {
	snapshots map[string]*model.MarketSnapshot
}

func (m *marketStub) Snapshot(_ context.Context, symbol string) (*model.MarketSnapshot, error) {
	snap, ok := m.snapshots[symbol]
	if !ok {
		return nil, errors.New("symbol not covered")
	}
	return snap, nil
}

type proposalStub struct {
	saved   []*model.TradeProposal
	saveErr error
}

func (p *proposalStub) Save(_ context.Context, proposal *model.TradeProposal) error {
	if p.saveErr != nil {
		return p.saveErr
	}
	proposal.ID = uint(len(p.saved) + 1)
	p.saved = append(p.saved, proposal)
	return nil
}

type blockStub struct {
	open []*model.BlockRecord
}

func (b *blockStub) FindOpen(_ context.Context, accountID uint, signalID string) (*model.BlockRecord, error) {
	for _, rec := range b.open {
		if rec.AccountID == accountID && rec.SignalID == signalID && rec.Status == model.BlockStatusOpen {
			return rec, nil
		}
	}
	return nil, nil
}

func (b *blockStub) Save(_ context.Context, rec *model.BlockRecord) error {
	rec.ID = uint(len(b.open) + 1)
	b.open = append(b.open, rec)
	return nil
}

type resultStub struct {
	saved []*model.GuardrailResult
}

func (r *resultStub) Save(_ context.Context, result *model.GuardrailResult) error {
	result.ID = uint(len(r.saved) + 1)
	r.saved = append(r.saved, result)
	return nil
}

type positionStub struct {
	open []model.Position
}

func (p *positionStub) OpenByAccount(_ context.Context, _ uint) ([]model.Position, error) {
	return p.open, nil
}

type fixture struct {
	alloc     *Allocator
	ledger    *ledger.Ledger
	acct      *model.Account
	mandate   *model.Mandate
	market    *marketStub
	proposals *proposalStub
	blocks    *blockStub
	results   *resultStub
	positions *positionStub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	acct := &model.Account{
		ID:            1,
		Objective:     model.ObjectiveBalanced,
		TotalCapital:  decimal.NewFromInt(100000),
		AvailableCash: decimal.NewFromInt(100000),
	}

	led := ledger.New(&recorderStub{}, 0)
	require.NoError(t, led.Register(*acct))

	f := &fixture{
		ledger: led,
		acct:   acct,
		mandate: &model.Mandate{
			AccountID:                1,
			Version:                  1,
			HorizonMinDays:           1,
			HorizonMaxDays:           30,
			MaxRiskPerTradePercent:   2.0,
			MaxSectorExposurePercent: 60.0,
			SLMultiplier:             2.0,
			TPMultiplier:             4.0,
			RiskPosture:              model.RiskPostureConservative,
		},
		market: &marketStub{snapshots: map[string]*model.MarketSnapshot{
			"RELIANCE": {
				Symbol:           "RELIANCE",
				Price:            2450,
				ATR:              50,
				ADV20Value:       2_000_000,
				VolatilityRegime: model.RegimeMedium,
			},
		}},
		proposals: &proposalStub{},
		blocks:    &blockStub{},
		results:   &resultStub{},
		positions: &positionStub{},
	}

	f.alloc = New(Deps{
		Ledger:    f.ledger,
		Market:    f.market,
		Proposals: f.proposals,
		Blocks:    f.blocks,
		Results:   f.results,
		Positions: f.positions,
	}, guardrails.DefaultConfig(), sizer.DefaultConfig())

	return f
}

func signal(id, symbol string, edge, conf float64) *model.Signal {
	return &model.Signal{
		ID:           id,
		Symbol:       symbol,
		Direction:    model.DirectionLong,
		EdgeEstimate: edge,
		Confidence:   conf,
		HorizonDays:  10,
		Sector:       "ENERGY",
		Strategy:     "momentum",
	}
}

func TestRunReservesProposal(t *testing.T) {
	f := newFixture(t)

	got, err := f.alloc.Run(context.Background(), f.acct, f.mandate,
		[]*model.Signal{signal("sig-1", "RELIANCE", 0.05, 0.8)})
	require.NoError(t, err)
	require.Len(t, got, 1)

	p := got[0]
	require.EqualValues(t, 20, p.Quantity)
	require.True(t, p.ReservedAmount.Equal(decimal.NewFromInt(49000)))
	require.Equal(t, model.ProposalStatusProposed, p.Status)
	require.NotEmpty(t, p.ReservationID)
	require.NotNil(t, p.GuardrailResultID)

	snap, err := f.ledger.Snapshot(1)
	require.NoError(t, err)
	require.True(t, snap.ReservedCash.Equal(decimal.NewFromInt(49000)))
	require.True(t, snap.AvailableCash.Equal(decimal.NewFromInt(51000)))

	require.Len(t, f.results.saved, 1)
	require.True(t, f.results.saved[0].PassedAll)
	require.Empty(t, f.blocks.open)
}

// A critical guardrail failure must block the signal, leave the ledger
// untouched, and create exactly one open block record no matter how many
// times the pair is re-evaluated.
func TestRunCriticalFailureBlocksIdempotently(t *testing.T) {
	f := newFixture(t)
	f.market.snapshots["RELIANCE"].ADV20Value = 100_000

	sig := signal("sig-1", "RELIANCE", 0.05, 0.8)

	for i := 0; i < 3; i++ {
		got, err := f.alloc.Run(context.Background(), f.acct, f.mandate, []*model.Signal{sig})
		require.NoError(t, err)
		require.Empty(t, got)
	}

	require.Len(t, f.blocks.open, 1)
	require.Contains(t, f.blocks.open[0].ReasonCodes, "LIQUIDITY_BELOW_THRESHOLD")
	require.Equal(t, model.BlockStatusOpen, f.blocks.open[0].Status)

	// No reservation was ever taken.
	snap, err := f.ledger.Snapshot(1)
	require.NoError(t, err)
	require.True(t, snap.AvailableCash.Equal(decimal.NewFromInt(100000)))
	require.True(t, snap.ReservedCash.IsZero())

	// Every evaluation still left an audit row.
	require.Len(t, f.results.saved, 3)
}

func TestRunPausedAccountSkipsBatch(t *testing.T) {
	f := newFixture(t)
	f.acct.Paused = true

	got, err := f.alloc.Run(context.Background(), f.acct, f.mandate,
		[]*model.Signal{signal("sig-1", "RELIANCE", 0.05, 0.8)})
	require.NoError(t, err)
	require.Empty(t, got)
	require.Empty(t, f.results.saved)
}

func TestRunFiltersIneligibleSignals(t *testing.T) {
	f := newFixture(t)
	f.mandate.AllowedSectors = []string{"IT"}

	got, err := f.alloc.Run(context.Background(), f.acct, f.mandate,
		[]*model.Signal{signal("sig-1", "RELIANCE", 0.05, 0.8)})
	require.NoError(t, err)
	require.Empty(t, got)
	require.Empty(t, f.results.saved, "filtered signals never reach the evaluator")
}

func TestRunHonorsMaxOpenPositions(t *testing.T) {
	f := newFixture(t)
	f.mandate.MaxOpenPositions = 2
	f.positions.open = []model.Position{
		{Symbol: "TCS", Sector: "IT", Status: model.PositionStatusOpen},
		{Symbol: "INFY", Sector: "IT", Status: model.PositionStatusOpen},
	}

	got, err := f.alloc.Run(context.Background(), f.acct, f.mandate,
		[]*model.Signal{signal("sig-1", "RELIANCE", 0.05, 0.8)})
	require.NoError(t, err)
	require.Empty(t, got)
}

// With capacity for one new position, the better-ranked signal wins.
func TestRunRanksBeforeSizing(t *testing.T) {
	f := newFixture(t)
	f.mandate.MaxOpenPositions = 1
	f.market.snapshots["ONGC"] = &model.MarketSnapshot{
		Symbol:           "ONGC",
		Price:            250,
		ATR:              5,
		ADV20Value:       2_000_000,
		VolatilityRegime: model.RegimeMedium,
	}

	weak := signal("sig-weak", "ONGC", 0.02, 0.5)
	strong := signal("sig-strong", "RELIANCE", 0.08, 0.9)

	got, err := f.alloc.Run(context.Background(), f.acct, f.mandate,
		[]*model.Signal{weak, strong})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "sig-strong", got[0].SignalID)
}

func TestRunMissingSnapshotSkipsSignal(t *testing.T) {
	f := newFixture(t)

	got, err := f.alloc.Run(context.Background(), f.acct, f.mandate,
		[]*model.Signal{signal("sig-1", "UNKNOWN", 0.05, 0.8)})
	require.NoError(t, err)
	require.Empty(t, got)
}

// A failed proposal write must release the reservation; cash never dangles
// in reserved without a proposal row pointing at it.
func TestRunReleasesReservationOnSaveFailure(t *testing.T) {
	f := newFixture(t)
	f.proposals.saveErr = errors.New("db down")

	_, err := f.alloc.Run(context.Background(), f.acct, f.mandate,
		[]*model.Signal{signal("sig-1", "RELIANCE", 0.05, 0.8)})
	require.Error(t, err)

	snap, err := f.ledger.Snapshot(1)
	require.NoError(t, err)
	require.True(t, snap.AvailableCash.Equal(decimal.NewFromInt(100000)))
	require.True(t, snap.ReservedCash.IsZero())
}

// Two signals drain available cash sequentially; the second sizes against
// what the first left behind.
func TestRunSequentialReservesShareCash(t *testing.T) {
	f := newFixture(t)

	got, err := f.alloc.Run(context.Background(), f.acct, f.mandate, []*model.Signal{
		signal("sig-1", "RELIANCE", 0.05, 0.8),
		signal("sig-2", "RELIANCE", 0.05, 0.8),
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	snap, err := f.ledger.Snapshot(1)
	require.NoError(t, err)
	require.True(t, snap.ReservedCash.Equal(decimal.NewFromInt(98000)),
		"reserved = %s", snap.ReservedCash.String())
	require.True(t, snap.AvailableCash.Equal(decimal.NewFromInt(2000)))
}
