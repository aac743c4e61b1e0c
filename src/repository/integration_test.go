package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"allocengine/src/ledger"
	"allocengine/src/model"
)

// newSQLiteDB gives each test a throwaway in-memory database with the full
// schema, so repository behavior is checked against a real SQL engine rather
// than statement expectations.
func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	// A named shared-cache DB keeps the pool's connections on one database
	// while isolating tests from each other.
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.Account{},
		&model.Mandate{},
		&model.CapitalTransaction{},
		&model.Position{},
		&model.TradeProposal{},
		&model.GuardrailResult{},
		&model.BlockRecord{},
		&model.KillSwitch{},
		&model.OHLCVDaily{},
	))

	return db
}

func TestMandateVersioningEndToEnd(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewMandateRepositoryWithDB(db)
	ctx := context.Background()

	first := &model.Mandate{AccountID: 1, HorizonMinDays: 1, HorizonMaxDays: 30}
	require.NoError(t, repo.Create(ctx, first))
	require.Equal(t, 1, first.Version)

	second := &model.Mandate{AccountID: 1, HorizonMinDays: 1, HorizonMaxDays: 60}
	require.NoError(t, repo.Create(ctx, second))
	require.Equal(t, 2, second.Version)

	current, err := repo.CurrentByAccount(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, current)
	require.Equal(t, 2, current.Version)
	require.Equal(t, 60, current.HorizonMaxDays)

	history, err := repo.History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 2)

	// Prior versions are never mutated.
	var v1 model.Mandate
	require.NoError(t, db.Where("account_id = ? AND version = ?", 1, 1).First(&v1).Error)
	require.Equal(t, 30, v1.HorizonMaxDays)
}

func TestLedgerReservationPersistsTransactions(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()

	txRepo := NewCapitalTransactionRepositoryWithDB(db)
	led := ledger.New(txRepo, time.Minute)

	require.NoError(t, led.Register(model.Account{
		ID:            1,
		TotalCapital:  decimal.NewFromInt(100_000),
		AvailableCash: decimal.NewFromInt(100_000),
		Objective:     model.ObjectiveBalanced,
	}))

	res, err := led.Reserve(ctx, 1, decimal.NewFromInt(49_000), "sig-1")
	require.NoError(t, err)

	amount, err := led.Deploy(ctx, res.ID)
	require.NoError(t, err)
	require.True(t, amount.Equal(decimal.NewFromInt(49_000)))

	rows, err := txRepo.ListByAccount(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	types := []model.TransactionType{rows[0].Type, rows[1].Type}
	require.Contains(t, types, model.TransactionReserve)
	require.Contains(t, types, model.TransactionDeploy)

	// Balances reconcile after the round trip.
	snap, err := led.Snapshot(1)
	require.NoError(t, err)
	require.True(t, snap.AvailableCash.Equal(decimal.NewFromInt(51_000)))
	require.True(t, snap.DeployedCash.Equal(decimal.NewFromInt(49_000)))
}

func TestBlockRecordRoundTrip(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewBlockRecordRepositoryWithDB(db)
	ctx := context.Background()

	open, err := repo.FindOpen(ctx, 1, "sig-1")
	require.NoError(t, err)
	require.Nil(t, open)

	require.NoError(t, repo.Save(ctx, &model.BlockRecord{
		AccountID:   1,
		SignalID:    "sig-1",
		Symbol:      "RELIANCE",
		ReasonCodes: []string{"LIQUIDITY_BELOW_THRESHOLD"},
		Status:      model.BlockStatusOpen,
	}))

	open, err = repo.FindOpen(ctx, 1, "sig-1")
	require.NoError(t, err)
	require.NotNil(t, open)
	require.Equal(t, []string{"LIQUIDITY_BELOW_THRESHOLD"}, open.ReasonCodes)

	require.NoError(t, repo.Resolve(ctx, open.ID, time.Now()))

	open, err = repo.FindOpen(ctx, 1, "sig-1")
	require.NoError(t, err)
	require.Nil(t, open)
}

func TestOHLCVUpsertAndAverageEndToEnd(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewOHLCVRepositoryWithDB(db)
	ctx := context.Background()

	day := func(n int) time.Time {
		return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
	}

	candles := []model.OHLCVDaily{
		{Symbol: "RELIANCE", Datetime: day(0), Open: decimal.NewFromInt(2400), High: decimal.NewFromInt(2460), Low: decimal.NewFromInt(2390), Close: decimal.NewFromInt(2450), Volume: decimal.NewFromInt(1000)},
		{Symbol: "RELIANCE", Datetime: day(1), Open: decimal.NewFromInt(2450), High: decimal.NewFromInt(2470), Low: decimal.NewFromInt(2380), Close: decimal.NewFromInt(2400), Volume: decimal.NewFromInt(500)},
	}
	require.NoError(t, repo.Upsert(ctx, candles))

	// Re-upserting the same day must update, not duplicate.
	candles[1].Close = decimal.NewFromInt(2410)
	require.NoError(t, repo.Upsert(ctx, candles))

	rows, err := repo.RecentDaily(ctx, "RELIANCE", day(2), 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.True(t, rows[0].Datetime.Before(rows[1].Datetime), "rows must be ascending")

	adv, err := repo.AverageDailyValue(ctx, "RELIANCE", day(2), 20)
	require.NoError(t, err)
	// (2450*1000 + 2410*500) / 2
	require.InDelta(t, 1_827_500, adv, 0.01)
}
