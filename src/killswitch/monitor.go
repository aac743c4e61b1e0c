package killswitch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"allocengine/src/model"
)

var (
	ErrSwitchNotFound   = errors.New("kill switch not found")
	ErrSwitchNotTripped = errors.New("kill switch is not tripped")
)

// Store persists kill-switch rows.
type Store interface {
	ByAccount(ctx context.Context, accountID uint) ([]*model.KillSwitch, error)
	Save(ctx context.Context, ks *model.KillSwitch) error
}

// Pauser flips the account-level allocation pause. The ledger and the
// allocator both read the flag; the monitor is its only writer.
type Pauser interface {
	Pause(ctx context.Context, accountID uint) error
	Resume(ctx context.Context, accountID uint) error
}

// Monitor evaluates P&L pushes against each account's kill switches. A trip
// is sticky: the account stays paused through any subsequent recovery until
// an operator resets the switch by hand.
type Monitor struct {
	mu     sync.Mutex
	store  Store
	pauser Pauser
	now    func() time.Time
	log    *log.Entry
}

func NewMonitor(store Store, pauser Pauser) *Monitor {
	return &Monitor{
		store:  store,
		pauser: pauser,
		now:    time.Now,
		log:    log.WithField("repo", "killswitch"),
	}
}

// WithClock overrides the monitor's clock. Test hook.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// Evaluate applies one P&L update. Updates for one account are serialized so
// concurrent pushes cannot double-trip or interleave with a reset.
func (m *Monitor) Evaluate(ctx context.Context, update *model.PnLUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switches, err := m.store.ByAccount(ctx, update.AccountID)
	if err != nil {
		return err
	}

	for _, ks := range switches {
		if ks.Tripped {
			continue
		}

		value, ok := measure(ks.Kind, update)
		if !ok || !value.LessThanOrEqual(ks.Threshold) {
			continue
		}

		at := m.now()
		ks.Tripped = true
		ks.TrippedAt = &at
		ks.TrippedValue = &value
		if err := m.store.Save(ctx, ks); err != nil {
			ks.Tripped = false
			ks.TrippedAt = nil
			ks.TrippedValue = nil
			return err
		}
		if err := m.pauser.Pause(ctx, update.AccountID); err != nil {
			return err
		}

		m.log.WithFields(log.Fields{
			"op":         "Evaluate",
			"account_id": update.AccountID,
			"kind":       ks.Kind,
			"threshold":  ks.Threshold.String(),
			"value":      value.String(),
		}).Warn("kill switch tripped, account paused")
	}
	return nil
}

// measure picks the monitored figure for a switch kind. A trip happens when
// the figure falls to or below the (negative) threshold.
func measure(kind model.KillSwitchKind, update *model.PnLUpdate) (decimal.Decimal, bool) {
	switch kind {
	case model.KillSwitchMaxDailyLoss:
		return update.DailyRealized, true
	case model.KillSwitchMaxDrawdown:
		return update.Drawdown, true
	default:
		return decimal.Zero, false
	}
}

// Reset clears one tripped switch. The account resumes only when no other
// switch of that account remains tripped.
func (m *Monitor) Reset(ctx context.Context, accountID uint, kind model.KillSwitchKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switches, err := m.store.ByAccount(ctx, accountID)
	if err != nil {
		return err
	}

	var target *model.KillSwitch
	for _, ks := range switches {
		if ks.Kind == kind {
			target = ks
			break
		}
	}
	if target == nil {
		return ErrSwitchNotFound
	}
	if !target.Tripped {
		return ErrSwitchNotTripped
	}

	target.Tripped = false
	target.TrippedAt = nil
	target.TrippedValue = nil
	if err := m.store.Save(ctx, target); err != nil {
		return err
	}

	for _, ks := range switches {
		if ks != target && ks.Tripped {
			m.log.WithFields(log.Fields{
				"op":            "Reset",
				"account_id":    accountID,
				"kind":          kind,
				"still_tripped": ks.Kind,
			}).Warn("switch reset but account stays paused")
			return nil
		}
	}

	if err := m.pauser.Resume(ctx, accountID); err != nil {
		return err
	}
	m.log.WithFields(log.Fields{
		"op":         "Reset",
		"account_id": accountID,
		"kind":       kind,
	}).Info("kill switch reset, account resumed")
	return nil
}
