package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/bankledger/internal/domain"
)

// LedgerUseCase applies money movements. Every movement runs the same
// sequence: validate, lock the involved accounts in canonical order,
// mutate, commit or abort, record.
type LedgerUseCase struct {
	store       AccountStore
	recorder    TransactionRecorder
	logger      zerolog.Logger
	metrics     LedgerMetrics
	lockTimeout time.Duration
	now         func() time.Time
}

// LedgerOption configures a LedgerUseCase.
type LedgerOption func(*LedgerUseCase)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) LedgerOption {
	return func(uc *LedgerUseCase) { uc.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m LedgerMetrics) LedgerOption {
	return func(uc *LedgerUseCase) {
		if m != nil {
			uc.metrics = m
		}
	}
}

// WithLockTimeout bounds how long a movement waits for its accounts.
func WithLockTimeout(d time.Duration) LedgerOption {
	return func(uc *LedgerUseCase) {
		if d > 0 {
			uc.lockTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) LedgerOption {
	return func(uc *LedgerUseCase) { uc.now = now }
}

// NewLedgerUseCase creates a new LedgerUseCase.
func NewLedgerUseCase(store AccountStore, recorder TransactionRecorder, opts ...LedgerOption) *LedgerUseCase {
	uc := &LedgerUseCase{
		store:       store,
		recorder:    recorder,
		logger:      zerolog.Nop(),
		metrics:     noopMetrics{},
		lockTimeout: DefaultLockTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// DepositInput represents input for a single-account deposit.
type DepositInput struct {
	AccountID      string
	Amount         decimal.Decimal
	IdempotencyKey string
}

// DistributedDepositInput represents input for a fan-out deposit.
type DistributedDepositInput struct {
	Amount         decimal.Decimal
	Distributions  []domain.Distribution
	IdempotencyKey string
}

// WithdrawInput represents input for a withdrawal.
type WithdrawInput struct {
	AccountID      string
	Amount         decimal.Decimal
	IdempotencyKey string
}

// TransferInput represents input for a transfer between two accounts.
type TransferInput struct {
	FromAccountID  string
	ToAccountID    string
	Amount         decimal.Decimal
	IdempotencyKey string
}

// MovementResult is returned for every committed movement.
type MovementResult struct {
	Transaction *domain.Transaction
	// Balance is the new balance of the affected account. It is set for
	// deposit and withdraw only.
	Balance *decimal.Decimal
	// Warning is set when the movement committed but recording failed.
	Warning *domain.RecordingWarning
}

// Deposit credits amount to one account.
func (uc *LedgerUseCase) Deposit(ctx context.Context, input DepositInput) (*MovementResult, error) {
	return uc.Execute(ctx, domain.Movement{
		Kind:           domain.KindDeposit,
		AccountID:      input.AccountID,
		Amount:         input.Amount,
		IdempotencyKey: input.IdempotencyKey,
	})
}

// DistributedDeposit credits every distribution in one atomic group.
func (uc *LedgerUseCase) DistributedDeposit(ctx context.Context, input DistributedDepositInput) (*MovementResult, error) {
	return uc.Execute(ctx, domain.Movement{
		Kind:           domain.KindDistributedDeposit,
		Amount:         input.Amount,
		Distributions:  input.Distributions,
		IdempotencyKey: input.IdempotencyKey,
	})
}

// Withdraw debits amount from one account.
func (uc *LedgerUseCase) Withdraw(ctx context.Context, input WithdrawInput) (*MovementResult, error) {
	return uc.Execute(ctx, domain.Movement{
		Kind:           domain.KindWithdraw,
		AccountID:      input.AccountID,
		Amount:         input.Amount,
		IdempotencyKey: input.IdempotencyKey,
	})
}

// Transfer moves amount between two distinct accounts.
func (uc *LedgerUseCase) Transfer(ctx context.Context, input TransferInput) (*MovementResult, error) {
	return uc.Execute(ctx, domain.Movement{
		Kind:           domain.KindTransfer,
		FromAccountID:  input.FromAccountID,
		ToAccountID:    input.ToAccountID,
		Amount:         input.Amount,
		IdempotencyKey: input.IdempotencyKey,
	})
}

// Execute applies a movement of any kind.
func (uc *LedgerUseCase) Execute(ctx context.Context, m domain.Movement) (*MovementResult, error) {
	start := time.Now()
	kind := m.Kind

	m, err := m.Normalize()
	if err != nil {
		return nil, uc.fail(kind, start, err)
	}

	key := m.IdempotencyKey
	if key != "" {
		if err := uc.recorder.ReserveKey(ctx, key); err != nil {
			return nil, uc.fail(kind, start, reserveError(err))
		}
	}

	// A reserved key is held until the movement commits; otherwise a retry
	// with the same key must be able to run.
	committed := false
	defer func() {
		if key != "" && !committed {
			uc.releaseKey(context.WithoutCancel(ctx), kind, key)
		}
	}()

	ids := m.InvolvedAccountIDs()

	lockStart := time.Now()
	lockCtx, cancel := context.WithTimeout(ctx, uc.lockTimeout)
	group, err := uc.store.Acquire(lockCtx, ids)
	cancel()
	uc.metrics.ObserveLockWait(kind, time.Since(lockStart))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrBusy) {
			err = fmt.Errorf("%w: %w", domain.ErrBusy, err)
		}
		return nil, uc.fail(kind, start, err)
	}

	// From here on the group must be released even if the caller goes away.
	endCtx := context.WithoutCancel(ctx)
	now := uc.now()

	balance, err := uc.mutate(group, m, now)
	if err == nil {
		err = checkInvariants(group, ids)
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		uc.abort(endCtx, group, kind)
		return nil, uc.fail(kind, start, err)
	}

	if err := group.Commit(endCtx); err != nil {
		uc.abort(endCtx, group, kind)
		if !errors.Is(err, domain.ErrStore) {
			err = domain.NewStoreError("commit", err)
		}
		return nil, uc.fail(kind, start, err)
	}
	committed = true

	tx := newTransaction(m, now)
	result := &MovementResult{Transaction: tx, Balance: balance}

	if err := uc.recorder.Record(endCtx, tx); err != nil {
		result.Warning = &domain.RecordingWarning{Kind: kind, Err: err}
		uc.metrics.ObserveRecordingWarning(kind)
		uc.logger.Warn().
			Err(err).
			Str("kind", string(kind)).
			Strs("accounts", ids).
			Str("amount", m.Amount.String()).
			Msg("movement committed but not recorded")
	}

	uc.metrics.ObserveMovement(kind, OutcomeSuccess, time.Since(start))
	uc.logger.Debug().
		Str("kind", string(kind)).
		Int64("transaction_id", tx.ID).
		Strs("accounts", ids).
		Str("amount", m.Amount.String()).
		Msg("movement committed")

	return result, nil
}

func (uc *LedgerUseCase) mutate(group AccountGroup, m domain.Movement, now time.Time) (*decimal.Decimal, error) {
	switch m.Kind {
	case domain.KindDeposit:
		acc, err := uc.credit(group, m.AccountID, m.Amount, now)
		if err != nil {
			return nil, err
		}
		return &acc.Balance, nil

	case domain.KindWithdraw:
		acc, err := uc.debit(group, m.AccountID, m.Amount, now)
		if err != nil {
			return nil, err
		}
		return &acc.Balance, nil

	case domain.KindTransfer:
		if _, err := uc.debit(group, m.FromAccountID, m.Amount, now); err != nil {
			return nil, err
		}
		if _, err := uc.credit(group, m.ToAccountID, m.Amount, now); err != nil {
			return nil, err
		}
		return nil, nil

	case domain.KindDistributedDeposit:
		for _, d := range m.Distributions {
			if _, err := uc.credit(group, d.AccountID, d.Amount, now); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}

	return nil, fmt.Errorf("%w: %s", domain.ErrUnknownMovement, m.Kind)
}

func (uc *LedgerUseCase) credit(group AccountGroup, id string, amount decimal.Decimal, now time.Time) (*domain.Account, error) {
	acc, err := group.Get(id)
	if err != nil {
		return nil, err
	}
	acc.ApplyCredit(amount, now)
	if err := group.Put(acc); err != nil {
		return nil, err
	}
	return acc, nil
}

func (uc *LedgerUseCase) debit(group AccountGroup, id string, amount decimal.Decimal, now time.Time) (*domain.Account, error) {
	acc, err := group.Get(id)
	if err != nil {
		return nil, err
	}
	if err := acc.ValidateDebit(amount); err != nil {
		return nil, err
	}
	acc.ApplyDebit(amount, now)
	if err := group.Put(acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// checkInvariants rejects any staged negative balance before commit.
func checkInvariants(group AccountGroup, ids []string) error {
	for _, id := range ids {
		acc, err := group.Get(id)
		if err != nil {
			return err
		}
		if acc.Balance.IsNegative() {
			return fmt.Errorf("%w: account %s would go negative", domain.ErrInsufficientFunds, id)
		}
	}
	return nil
}

func (uc *LedgerUseCase) abort(ctx context.Context, group AccountGroup, kind domain.TransactionKind) {
	if err := group.Abort(ctx); err != nil {
		uc.logger.Error().Err(err).Str("kind", string(kind)).Msg("failed to abort account group")
	}
}

func (uc *LedgerUseCase) releaseKey(ctx context.Context, kind domain.TransactionKind, key string) {
	if err := uc.recorder.ReleaseKey(ctx, key); err != nil {
		uc.logger.Error().Err(err).Str("kind", string(kind)).Str("idempotency_key", key).Msg("failed to release idempotency key")
	}
}

func reserveError(err error) error {
	switch {
	case errors.Is(err, domain.ErrDuplicateIdempotencyKey),
		errors.Is(err, domain.ErrStore),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return domain.NewStoreError("reserve idempotency key", err)
	}
}

func (uc *LedgerUseCase) fail(kind domain.TransactionKind, start time.Time, err error) error {
	outcome := outcomeOf(err)
	uc.metrics.ObserveMovement(kind, outcome, time.Since(start))

	event := uc.logger.Debug()
	if outcome == OutcomeStoreError {
		event = uc.logger.Error()
	}
	event.Err(err).Str("kind", string(kind)).Str("outcome", outcome).Msg("movement rejected")

	return err
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return OutcomeValidationError
	case errors.Is(err, domain.ErrAccountNotFound):
		return OutcomeNotFound
	case errors.Is(err, domain.ErrInsufficientFunds):
		return OutcomeInsufficientFunds
	case errors.Is(err, domain.ErrBusy):
		return OutcomeBusy
	case errors.Is(err, domain.ErrDuplicateIdempotencyKey):
		return OutcomeDuplicate
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		return OutcomeStoreError
	}
}

func newTransaction(m domain.Movement, now time.Time) *domain.Transaction {
	tx := &domain.Transaction{
		Kind:           m.Kind,
		Amount:         m.Amount,
		IdempotencyKey: m.IdempotencyKey,
		CreatedAt:      now,
	}

	switch m.Kind {
	case domain.KindDeposit:
		tx.ToAccountID = m.AccountID
	case domain.KindWithdraw:
		tx.FromAccountID = m.AccountID
	case domain.KindTransfer:
		tx.FromAccountID = m.FromAccountID
		tx.ToAccountID = m.ToAccountID
	case domain.KindDistributedDeposit:
		tx.Distributions = append([]domain.Distribution(nil), m.Distributions...)
	}

	return tx
}
