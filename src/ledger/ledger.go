package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"allocengine/src/model"
)

var (
	// ErrInsufficientFunds is the only recoverable reserve failure: the
	// signal is skipped for that account, nothing else is affected.
	ErrInsufficientFunds = errors.New("insufficient available cash")

	// ErrStaleReservation is returned when a deploy races a TTL expiry and
	// loses. The original proposal must be discarded and re-acquired.
	ErrStaleReservation = errors.New("reservation expired or already settled")

	ErrUnknownAccount     = errors.New("account not registered")
	ErrMalformedAccount   = errors.New("malformed account snapshot")
	ErrNonPositiveAmount  = errors.New("amount must be positive")
	ErrExceedsDeployed    = errors.New("amount exceeds deployed cash")
	ErrSameAccount        = errors.New("transfer requires two distinct accounts")
)

// Recorder appends capital transactions to the audit log. Multiple entries in
// one call must be written atomically (all or none); the transfer path relies
// on that for its paired TRANSFER_OUT / TRANSFER_IN rows.
type Recorder interface {
	Record(ctx context.Context, txs ...*model.CapitalTransaction) error
}

// Reservation is a pending cash hold awaiting deployment. It expires after
// the ledger TTL; an expired reservation can only be released, never deployed.
type Reservation struct {
	ID        string
	AccountID uint
	Amount    decimal.Decimal
	Reference string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type accountState struct {
	mu           sync.Mutex
	acct         model.Account
	reservations map[string]*Reservation
}

// Ledger owns the per-account capital state machine
// (available -> reserved -> deployed -> available). All balance-mutating
// operations for one account are serialized behind that account's lock, so
// two concurrent reserves can never both succeed against the same cash.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[uint]*accountState
	resIndex map[string]uint // reservation id -> account id

	recorder Recorder
	ttl      time.Duration
	now      func() time.Time
	log      *logger.Entry
}

const DefaultReservationTTL = 15 * time.Minute

func New(recorder Recorder, ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	return &Ledger{
		accounts: make(map[uint]*accountState),
		resIndex: make(map[string]uint),
		recorder: recorder,
		ttl:      ttl,
		now:      time.Now,
		log:      logger.WithField("component", "Ledger"),
	}
}

// WithClock overrides the time source. Tests only.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Register validates an account snapshot and takes ownership of its balances.
// A snapshot that violates the capital invariant or carries negative cash is
// a configuration error: the ledger refuses it rather than guessing.
func (l *Ledger) Register(acct model.Account) error {
	if err := validateSnapshot(&acct); err != nil {
		l.log.WithError(err).WithField("account_id", acct.ID).Error("rejecting account snapshot")
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.accounts[acct.ID] = &accountState{
		acct:         acct,
		reservations: make(map[string]*Reservation),
	}

	l.log.WithFields(logger.Fields{
		"account_id": acct.ID,
		"available":  acct.AvailableCash.String(),
		"reserved":   acct.ReservedCash.String(),
		"deployed":   acct.DeployedCash.String(),
	}).Info("Account registered")

	return nil
}

func validateSnapshot(acct *model.Account) error {
	if acct.TotalCapital.IsNegative() ||
		acct.AvailableCash.IsNegative() ||
		acct.ReservedCash.IsNegative() ||
		acct.DeployedCash.IsNegative() {
		return fmt.Errorf("%w: negative balance on account %d", ErrMalformedAccount, acct.ID)
	}

	sum := acct.AvailableCash.Add(acct.ReservedCash).Add(acct.DeployedCash)
	expected := acct.TotalCapital.Add(acct.RealizedPnl)
	if !sum.Equal(expected) {
		return fmt.Errorf("%w: balances %s do not reconcile to %s on account %d",
			ErrMalformedAccount, sum.String(), expected.String(), acct.ID)
	}

	return nil
}

func (l *Ledger) state(accountID uint) (*accountState, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, ok := l.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAccount, accountID)
	}
	return s, nil
}

// Snapshot returns a copy of the account's current balances.
func (l *Ledger) Snapshot(accountID uint) (model.Account, error) {
	s, err := l.state(accountID)
	if err != nil {
		return model.Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acct, nil
}

// Available returns the account's currently available cash.
func (l *Ledger) Available(accountID uint) (decimal.Decimal, error) {
	acct, err := l.Snapshot(accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.AvailableCash, nil
}

// DeployableCash is available cash minus the account's emergency buffer.
// The buffer is never allocated to new positions.
func (l *Ledger) DeployableCash(accountID uint) (decimal.Decimal, error) {
	acct, err := l.Snapshot(accountID)
	if err != nil {
		return decimal.Zero, err
	}

	buffer := acct.AvailableCash.Mul(decimal.NewFromFloat(acct.EmergencyBufferPercent / 100.0))
	deployable := acct.AvailableCash.Sub(buffer)
	if deployable.IsNegative() {
		return decimal.Zero, nil
	}
	return deployable, nil
}

// Reserve moves amount from available to reserved and returns the
// reservation handle. It is atomic per account: of two concurrent reserves
// against the same cash, exactly one succeeds.
func (l *Ledger) Reserve(ctx context.Context, accountID uint, amount decimal.Decimal, reference string) (*Reservation, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	s, err := l.state(accountID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if amount.GreaterThan(s.acct.AvailableCash) {
		l.log.WithFields(logger.Fields{
			"account_id": accountID,
			"amount":     amount.String(),
			"available":  s.acct.AvailableCash.String(),
			"reference":  reference,
		}).Info("Reserve rejected, insufficient funds")
		return nil, ErrInsufficientFunds
	}

	now := l.now()
	res := &Reservation{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Amount:    amount,
		Reference: reference,
		CreatedAt: now,
		ExpiresAt: now.Add(l.ttl),
	}

	if err := l.recorder.Record(ctx, &model.CapitalTransaction{
		AccountID: accountID,
		Type:      model.TransactionReserve,
		Amount:    amount,
		Reference: res.ID,
	}); err != nil {
		return nil, fmt.Errorf("recording reserve: %w", err)
	}

	s.acct.AvailableCash = s.acct.AvailableCash.Sub(amount)
	s.acct.ReservedCash = s.acct.ReservedCash.Add(amount)
	s.reservations[res.ID] = res

	l.mu.Lock()
	l.resIndex[res.ID] = accountID
	l.mu.Unlock()

	l.log.WithFields(logger.Fields{
		"account_id":     accountID,
		"reservation_id": res.ID,
		"amount":         amount.String(),
		"expires_at":     res.ExpiresAt,
	}).Info("Cash reserved")

	return res, nil
}

// Deploy settles a reservation, moving its full amount from reserved to
// deployed. Deploying an expired or unknown reservation returns
// ErrStaleReservation; an expired reservation is released back to available
// on the spot so the cash is never double-spent.
func (l *Ledger) Deploy(ctx context.Context, reservationID string) (decimal.Decimal, error) {
	s, res, err := l.lookupReservation(reservationID)
	if err != nil {
		return decimal.Zero, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check under the lock: the sweep may have settled it meanwhile.
	if _, ok := s.reservations[reservationID]; !ok {
		return decimal.Zero, ErrStaleReservation
	}

	if l.now().After(res.ExpiresAt) {
		if relErr := l.releaseLocked(ctx, s, res); relErr != nil {
			return decimal.Zero, relErr
		}
		return decimal.Zero, ErrStaleReservation
	}

	if err := l.recorder.Record(ctx, &model.CapitalTransaction{
		AccountID: res.AccountID,
		Type:      model.TransactionDeploy,
		Amount:    res.Amount,
		Reference: res.ID,
	}); err != nil {
		return decimal.Zero, fmt.Errorf("recording deploy: %w", err)
	}

	s.acct.ReservedCash = s.acct.ReservedCash.Sub(res.Amount)
	s.acct.DeployedCash = s.acct.DeployedCash.Add(res.Amount)
	l.dropReservation(s, res.ID)

	l.log.WithFields(logger.Fields{
		"account_id":     res.AccountID,
		"reservation_id": res.ID,
		"amount":         res.Amount.String(),
	}).Info("Cash deployed")

	return res.Amount, nil
}

// Release returns a pending reservation to available cash (proposal rejected
// or withdrawn). Releasing an already-settled reservation is a stale error.
func (l *Ledger) Release(ctx context.Context, reservationID string) error {
	s, res, err := l.lookupReservation(reservationID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reservations[reservationID]; !ok {
		return ErrStaleReservation
	}

	return l.releaseLocked(ctx, s, res)
}

// releaseLocked performs reserved -> available. Caller holds s.mu.
func (l *Ledger) releaseLocked(ctx context.Context, s *accountState, res *Reservation) error {
	if err := l.recorder.Record(ctx, &model.CapitalTransaction{
		AccountID: res.AccountID,
		Type:      model.TransactionReturn,
		Amount:    res.Amount,
		Reference: res.ID,
	}); err != nil {
		return fmt.Errorf("recording release: %w", err)
	}

	s.acct.ReservedCash = s.acct.ReservedCash.Sub(res.Amount)
	s.acct.AvailableCash = s.acct.AvailableCash.Add(res.Amount)
	l.dropReservation(s, res.ID)

	l.log.WithFields(logger.Fields{
		"account_id":     res.AccountID,
		"reservation_id": res.ID,
		"amount":         res.Amount.String(),
	}).Info("Reservation released")

	return nil
}

// ReturnToAvailable moves cash from deployed back to available when a
// position closes, applying the realized P&L to the account in the same
// transition.
func (l *Ledger) ReturnToAvailable(ctx context.Context, accountID uint, amount, realizedPnl decimal.Decimal, reference string) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}

	s, err := l.state(accountID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if amount.GreaterThan(s.acct.DeployedCash) {
		return fmt.Errorf("%w: return %s > deployed %s on account %d",
			ErrExceedsDeployed, amount.String(), s.acct.DeployedCash.String(), accountID)
	}

	if err := l.recorder.Record(ctx, &model.CapitalTransaction{
		AccountID: accountID,
		Type:      model.TransactionReturn,
		Amount:    amount.Add(realizedPnl),
		Reference: reference,
	}); err != nil {
		return fmt.Errorf("recording return: %w", err)
	}

	s.acct.DeployedCash = s.acct.DeployedCash.Sub(amount)
	s.acct.AvailableCash = s.acct.AvailableCash.Add(amount).Add(realizedPnl)
	s.acct.RealizedPnl = s.acct.RealizedPnl.Add(realizedPnl)

	l.log.WithFields(logger.Fields{
		"account_id":   accountID,
		"amount":       amount.String(),
		"realized_pnl": realizedPnl.String(),
		"reference":    reference,
	}).Info("Deployed cash returned")

	return nil
}

// Transfer moves available cash between two accounts. The paired
// TRANSFER_OUT / TRANSFER_IN transactions are recorded atomically; either
// both accounts move or neither does.
func (l *Ledger) Transfer(ctx context.Context, fromID, toID uint, amount decimal.Decimal, reference string) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	if fromID == toID {
		return ErrSameAccount
	}

	from, err := l.state(fromID)
	if err != nil {
		return err
	}
	to, err := l.state(toID)
	if err != nil {
		return err
	}

	// Lock in ascending account-id order to avoid deadlock with a
	// concurrent transfer in the opposite direction.
	first, second := from, to
	if toID < fromID {
		first, second = to, from
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if amount.GreaterThan(from.acct.AvailableCash) {
		return ErrInsufficientFunds
	}

	out := &model.CapitalTransaction{
		AccountID:        fromID,
		Type:             model.TransactionTransferOut,
		Amount:           amount,
		Reference:        reference,
		CounterAccountID: &toID,
	}
	in := &model.CapitalTransaction{
		AccountID:        toID,
		Type:             model.TransactionTransferIn,
		Amount:           amount,
		Reference:        reference,
		CounterAccountID: &fromID,
	}
	if err := l.recorder.Record(ctx, out, in); err != nil {
		return fmt.Errorf("recording transfer: %w", err)
	}

	from.acct.AvailableCash = from.acct.AvailableCash.Sub(amount)
	from.acct.TotalCapital = from.acct.TotalCapital.Sub(amount)
	to.acct.AvailableCash = to.acct.AvailableCash.Add(amount)
	to.acct.TotalCapital = to.acct.TotalCapital.Add(amount)

	l.log.WithFields(logger.Fields{
		"from_account": fromID,
		"to_account":   toID,
		"amount":       amount.String(),
	}).Info("Inter-account transfer executed")

	return nil
}

// Contribute credits a SIP installment to the account, growing both the
// available cash and the total capital.
func (l *Ledger) Contribute(ctx context.Context, accountID uint, amount decimal.Decimal, reference string) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}

	s, err := l.state(accountID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := l.recorder.Record(ctx, &model.CapitalTransaction{
		AccountID: accountID,
		Type:      model.TransactionSIPContribution,
		Amount:    amount,
		Reference: reference,
	}); err != nil {
		return fmt.Errorf("recording contribution: %w", err)
	}

	s.acct.AvailableCash = s.acct.AvailableCash.Add(amount)
	s.acct.TotalCapital = s.acct.TotalCapital.Add(amount)

	l.log.WithFields(logger.Fields{
		"account_id": accountID,
		"amount":     amount.String(),
	}).Info("SIP contribution credited")

	return nil
}

// ExpireReservations releases every reservation past its TTL and returns the
// number released. Safe to run concurrently with deploys: whichever side
// settles a reservation first wins, the other observes a stale error.
func (l *Ledger) ExpireReservations(ctx context.Context, now time.Time) int {
	l.mu.RLock()
	states := make([]*accountState, 0, len(l.accounts))
	for _, s := range l.accounts {
		states = append(states, s)
	}
	l.mu.RUnlock()

	released := 0
	for _, s := range states {
		s.mu.Lock()
		var expired []*Reservation
		for _, res := range s.reservations {
			if now.After(res.ExpiresAt) {
				expired = append(expired, res)
			}
		}
		for _, res := range expired {
			if err := l.releaseLocked(ctx, s, res); err != nil {
				l.log.WithError(err).WithField("reservation_id", res.ID).
					Error("Failed to release expired reservation")
				continue
			}
			released++
		}
		s.mu.Unlock()
	}

	if released > 0 {
		l.log.WithField("released", released).Info("Expired reservations swept")
	}
	return released
}

func (l *Ledger) lookupReservation(reservationID string) (*accountState, *Reservation, error) {
	l.mu.RLock()
	accountID, ok := l.resIndex[reservationID]
	l.mu.RUnlock()
	if !ok {
		return nil, nil, ErrStaleReservation
	}

	s, err := l.state(accountID)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	res, ok := s.reservations[reservationID]
	s.mu.Unlock()
	if !ok {
		return nil, nil, ErrStaleReservation
	}

	return s, res, nil
}

// dropReservation removes a settled reservation. Caller holds s.mu.
func (l *Ledger) dropReservation(s *accountState, reservationID string) {
	delete(s.reservations, reservationID)
	l.mu.Lock()
	delete(l.resIndex, reservationID)
	l.mu.Unlock()
}
