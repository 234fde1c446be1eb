package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iho/bankledger/internal/adapter/repository/memory"
	"github.com/iho/bankledger/internal/domain"
	"github.com/iho/bankledger/internal/usecase"
	"github.com/iho/bankledger/internal/usecase/mocks"
)

type ledgerFixture struct {
	store *memory.AccountStore
	log   *memory.TransactionLog
	uc    *usecase.LedgerUseCase
}

func newLedgerFixture(t *testing.T, balances map[string]string) *ledgerFixture {
	t.Helper()

	store := memory.NewAccountStore()
	for id, b := range balances {
		acc := domain.NewAccount(id, time.Now())
		acc.Balance = decimal.RequireFromString(b)
		require.NoError(t, store.Create(context.Background(), acc))
	}
	log := memory.NewTransactionLog(mocks.NewMockIDGenerator())

	return &ledgerFixture{
		store: store,
		log:   log,
		uc:    usecase.NewLedgerUseCase(store, log, usecase.WithLockTimeout(time.Second)),
	}
}

func (f *ledgerFixture) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	acc, err := f.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	return acc.Balance
}

func (f *ledgerFixture) assertBalance(t *testing.T, id, want string) {
	t.Helper()
	got := f.balance(t, id)
	assert.True(t, got.Equal(decimal.RequireFromString(want)), "account %s: got %s, want %s", id, got, want)
}

func TestLedgerUseCase_Deposit(t *testing.T) {
	f := newLedgerFixture(t, map[string]string{"A": "1000"})

	result, err := f.uc.Deposit(context.Background(), usecase.DepositInput{
		AccountID: "A",
		Amount:    decimal.NewFromInt(500),
	})
	require.NoError(t, err)
	require.NotNil(t, result.Balance)
	assert.True(t, result.Balance.Equal(decimal.NewFromInt(1500)))
	assert.Nil(t, result.Warning)
	assert.Equal(t, int64(1), result.Transaction.ID)
	assert.Equal(t, domain.KindDeposit, result.Transaction.Kind)
	assert.Equal(t, "A", result.Transaction.ToAccountID)

	f.assertBalance(t, "A", "1500")
}

func TestLedgerUseCase_Withdraw(t *testing.T) {
	tests := []struct {
		name        string
		amount      string
		wantErr     error
		wantBalance string
	}{
		{name: "partial", amount: "250.50", wantBalance: "749.50"},
		{name: "entire balance", amount: "1000", wantBalance: "0"},
		{name: "overdraw", amount: "1500", wantErr: domain.ErrInsufficientFunds, wantBalance: "1000"},
		{name: "zero", amount: "0", wantErr: domain.ErrValidation, wantBalance: "1000"},
		{name: "too precise", amount: "0.001", wantErr: domain.ErrValidation, wantBalance: "1000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLedgerFixture(t, map[string]string{"A": "1000"})

			result, err := f.uc.Withdraw(context.Background(), usecase.WithdrawInput{
				AccountID: "A",
				Amount:    decimal.RequireFromString(tt.amount),
			})

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, result)
				assert.Equal(t, 0, f.log.Len())
			} else {
				require.NoError(t, err)
				assert.True(t, result.Balance.Equal(decimal.RequireFromString(tt.wantBalance)))
				assert.Equal(t, "A", result.Transaction.FromAccountID)
			}
			f.assertBalance(t, "A", tt.wantBalance)
		})
	}
}

func TestLedgerUseCase_Transfer(t *testing.T) {
	f := newLedgerFixture(t, map[string]string{"A": "1000", "B": "200"})

	result, err := f.uc.Transfer(context.Background(), usecase.TransferInput{
		FromAccountID: "A",
		ToAccountID:   "B",
		Amount:        decimal.NewFromInt(300),
	})
	require.NoError(t, err)
	assert.Nil(t, result.Balance)
	assert.Equal(t, "A", result.Transaction.FromAccountID)
	assert.Equal(t, "B", result.Transaction.ToAccountID)

	f.assertBalance(t, "A", "700")
	f.assertBalance(t, "B", "500")
}

func TestLedgerUseCase_TransferRejections(t *testing.T) {
	tests := []struct {
		name    string
		input   usecase.TransferInput
		wantErr error
	}{
		{
			name:    "same account",
			input:   usecase.TransferInput{FromAccountID: "A", ToAccountID: "A", Amount: decimal.NewFromInt(1)},
			wantErr: domain.ErrSameAccount,
		},
		{
			name:    "same account after trimming",
			input:   usecase.TransferInput{FromAccountID: " A", ToAccountID: "A ", Amount: decimal.NewFromInt(1)},
			wantErr: domain.ErrSameAccount,
		},
		{
			name:    "insufficient funds",
			input:   usecase.TransferInput{FromAccountID: "B", ToAccountID: "A", Amount: decimal.NewFromInt(201)},
			wantErr: domain.ErrInsufficientFunds,
		},
		{
			name:    "unknown destination",
			input:   usecase.TransferInput{FromAccountID: "A", ToAccountID: "Z", Amount: decimal.NewFromInt(1)},
			wantErr: domain.ErrAccountNotFound,
		},
		{
			name:    "negative amount",
			input:   usecase.TransferInput{FromAccountID: "A", ToAccountID: "B", Amount: decimal.NewFromInt(-5)},
			wantErr: domain.ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLedgerFixture(t, map[string]string{"A": "1000", "B": "200"})

			_, err := f.uc.Transfer(context.Background(), tt.input)
			assert.ErrorIs(t, err, tt.wantErr)

			f.assertBalance(t, "A", "1000")
			f.assertBalance(t, "B", "200")
			assert.Equal(t, 0, f.log.Len())
		})
	}
}

func TestLedgerUseCase_DistributedDeposit(t *testing.T) {
	f := newLedgerFixture(t, map[string]string{"X": "0", "Y": "0"})

	result, err := f.uc.DistributedDeposit(context.Background(), usecase.DistributedDepositInput{
		Amount: decimal.NewFromInt(300),
		Distributions: []domain.Distribution{
			{AccountID: "X", Amount: decimal.NewFromInt(100)},
			{AccountID: "Y", Amount: decimal.NewFromInt(200)},
		},
	})
	require.NoError(t, err)
	assert.Nil(t, result.Balance)
	assert.Len(t, result.Transaction.Distributions, 2)

	f.assertBalance(t, "X", "100")
	f.assertBalance(t, "Y", "200")
}

func TestLedgerUseCase_DistributedDepositRepeatedAccount(t *testing.T) {
	f := newLedgerFixture(t, map[string]string{"X": "0"})

	_, err := f.uc.DistributedDeposit(context.Background(), usecase.DistributedDepositInput{
		Amount: decimal.NewFromInt(30),
		Distributions: []domain.Distribution{
			{AccountID: "X", Amount: decimal.NewFromInt(10)},
			{AccountID: "X", Amount: decimal.NewFromInt(20)},
		},
	})
	require.NoError(t, err)
	f.assertBalance(t, "X", "30")
}

func TestLedgerUseCase_DistributedDepositRejections(t *testing.T) {
	tests := []struct {
		name          string
		amount        int64
		distributions []domain.Distribution
		wantErr       error
	}{
		{
			name:   "shares do not add up",
			amount: 300,
			distributions: []domain.Distribution{
				{AccountID: "X", Amount: decimal.NewFromInt(100)},
				{AccountID: "Y", Amount: decimal.NewFromInt(150)},
			},
			wantErr: domain.ErrDistributionSum,
		},
		{
			name:   "unknown account",
			amount: 300,
			distributions: []domain.Distribution{
				{AccountID: "X", Amount: decimal.NewFromInt(100)},
				{AccountID: "missing", Amount: decimal.NewFromInt(200)},
			},
			wantErr: domain.ErrAccountNotFound,
		},
		{
			name:          "empty list",
			amount:        300,
			distributions: nil,
			wantErr:       domain.ErrValidation,
		},
		{
			name:   "zero share",
			amount: 300,
			distributions: []domain.Distribution{
				{AccountID: "X", Amount: decimal.NewFromInt(300)},
				{AccountID: "Y", Amount: decimal.Zero},
			},
			wantErr: domain.ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLedgerFixture(t, map[string]string{"X": "0", "Y": "0"})

			_, err := f.uc.DistributedDeposit(context.Background(), usecase.DistributedDepositInput{
				Amount:        decimal.NewFromInt(tt.amount),
				Distributions: tt.distributions,
			})
			assert.ErrorIs(t, err, tt.wantErr)

			f.assertBalance(t, "X", "0")
			f.assertBalance(t, "Y", "0")
		})
	}
}

func TestLedgerUseCase_UnknownAccount(t *testing.T) {
	f := newLedgerFixture(t, nil)

	_, err := f.uc.Deposit(context.Background(), usecase.DepositInput{AccountID: "ghost", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = f.uc.Deposit(context.Background(), usecase.DepositInput{AccountID: "  ", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestLedgerUseCase_TransactionIDsIncrease(t *testing.T) {
	f := newLedgerFixture(t, map[string]string{"A": "100", "B": "0"})
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		result, err := f.uc.Transfer(ctx, usecase.TransferInput{FromAccountID: "A", ToAccountID: "B", Amount: decimal.NewFromInt(1)})
		require.NoError(t, err)
		assert.Greater(t, result.Transaction.ID, last)
		last = result.Transaction.ID
	}
}

func TestLedgerUseCase_RepeatedIdempotencyKeyMovesMoneyOnce(t *testing.T) {
	f := newLedgerFixture(t, map[string]string{"A": "0"})
	ctx := context.Background()
	input := usecase.DepositInput{AccountID: "A", Amount: decimal.NewFromInt(10), IdempotencyKey: "retry-1"}

	first, err := f.uc.Deposit(ctx, input)
	require.NoError(t, err)
	assert.Nil(t, first.Warning)

	second, err := f.uc.Deposit(ctx, input)
	assert.ErrorIs(t, err, domain.ErrDuplicateIdempotencyKey)
	assert.Nil(t, second)

	f.assertBalance(t, "A", "10")
	assert.Equal(t, 1, f.log.Len())
}

func TestLedgerUseCase_FailedMovementReleasesKey(t *testing.T) {
	f := newLedgerFixture(t, map[string]string{"A": "5"})
	ctx := context.Background()

	_, err := f.uc.Withdraw(ctx, usecase.WithdrawInput{AccountID: "A", Amount: decimal.NewFromInt(50), IdempotencyKey: "wd-1"})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	result, err := f.uc.Withdraw(ctx, usecase.WithdrawInput{AccountID: "A", Amount: decimal.NewFromInt(5), IdempotencyKey: "wd-1"})
	require.NoError(t, err)
	assert.True(t, result.Balance.IsZero())
	assert.Equal(t, 1, f.log.Len())
}

func TestLedgerUseCase_ConcurrentRepeatedKeyAppliesOnce(t *testing.T) {
	f := newLedgerFixture(t, map[string]string{"A": "0"})
	ctx := context.Background()

	const attempts = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.uc.Deposit(ctx, usecase.DepositInput{AccountID: "A", Amount: decimal.NewFromInt(1), IdempotencyKey: "burst"})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrDuplicateIdempotencyKey)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	f.assertBalance(t, "A", "1")
}

func TestLedgerUseCase_DuplicateKeySkipsStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockAccountStore(ctrl)
	recorder := mocks.NewMockTransactionRecorder(ctrl)

	recorder.EXPECT().ReserveKey(gomock.Any(), "dup").Return(fmt.Errorf("%w: dup", domain.ErrDuplicateIdempotencyKey))

	uc := usecase.NewLedgerUseCase(store, recorder)
	_, err := uc.Deposit(context.Background(), usecase.DepositInput{AccountID: "A", Amount: decimal.NewFromInt(1), IdempotencyKey: "dup"})
	assert.ErrorIs(t, err, domain.ErrDuplicateIdempotencyKey)
}

func TestLedgerUseCase_CommitFailureReleasesKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockAccountStore(ctrl)
	group := mocks.NewMockAccountGroup(ctrl)
	recorder := mocks.NewMockTransactionRecorder(ctrl)

	acc := domain.NewAccount("A", time.Now())

	gomock.InOrder(
		recorder.EXPECT().ReserveKey(gomock.Any(), "k"),
		store.EXPECT().Acquire(gomock.Any(), []string{"A"}).Return(group, nil),
	)
	group.EXPECT().Get("A").Return(acc.Clone(), nil).AnyTimes()
	group.EXPECT().Put(gomock.Any()).Return(nil)
	group.EXPECT().Commit(gomock.Any()).Return(errors.New("connection reset"))
	group.EXPECT().Abort(gomock.Any()).Return(nil)
	recorder.EXPECT().ReleaseKey(gomock.Any(), "k").Return(nil)

	uc := usecase.NewLedgerUseCase(store, recorder)
	_, err := uc.Deposit(context.Background(), usecase.DepositInput{AccountID: "A", Amount: decimal.NewFromInt(5), IdempotencyKey: "k"})
	assert.ErrorIs(t, err, domain.ErrStore)
}

func TestLedgerUseCase_ConcurrentTransfersConserveTotal(t *testing.T) {
	ids := []string{"A", "B", "C", "D", "E"}
	balances := make(map[string]string, len(ids))
	for _, id := range ids {
		balances[id] = "100"
	}
	f := newLedgerFixture(t, balances)
	f.uc = usecase.NewLedgerUseCase(f.store, f.log, usecase.WithLockTimeout(10*time.Second))

	const workers = 16
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < perWorker; i++ {
				from := ids[rng.Intn(len(ids))]
				to := ids[rng.Intn(len(ids))]
				if from == to {
					continue
				}
				amount := decimal.NewFromInt(int64(rng.Intn(40) + 1))
				_, err := f.uc.Transfer(context.Background(), usecase.TransferInput{FromAccountID: from, ToAccountID: to, Amount: amount})
				if err != nil && !errors.Is(err, domain.ErrInsufficientFunds) {
					t.Errorf("transfer %s->%s: %v", from, to, err)
				}
			}
		}(int64(w))
	}
	wg.Wait()

	total := decimal.Zero
	for _, id := range ids {
		b := f.balance(t, id)
		assert.False(t, b.IsNegative(), "account %s went negative: %s", id, b)
		total = total.Add(b)
	}
	assert.True(t, total.Equal(decimal.NewFromInt(500)), "total changed: %s", total)
}

func TestLedgerUseCase_OpposingTransfersComplete(t *testing.T) {
	f := newLedgerFixture(t, map[string]string{"A": "1000", "B": "1000"})

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, err := f.uc.Transfer(context.Background(), usecase.TransferInput{FromAccountID: "A", ToAccountID: "B", Amount: decimal.NewFromInt(1)})
				assert.NoError(t, err)
			}()
			go func() {
				defer wg.Done()
				_, err := f.uc.Transfer(context.Background(), usecase.TransferInput{FromAccountID: "B", ToAccountID: "A", Amount: decimal.NewFromInt(1)})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("opposing transfers did not complete")
	}

	f.assertBalance(t, "A", "1000")
	f.assertBalance(t, "B", "1000")
}

func TestLedgerUseCase_BusyWhenLockHeld(t *testing.T) {
	f := newLedgerFixture(t, map[string]string{"A": "100", "B": "0"})
	uc := usecase.NewLedgerUseCase(f.store, f.log, usecase.WithLockTimeout(20*time.Millisecond))

	holder, err := f.store.Acquire(context.Background(), []string{"B"})
	require.NoError(t, err)
	defer holder.Abort(context.Background())

	_, err = uc.Transfer(context.Background(), usecase.TransferInput{FromAccountID: "A", ToAccountID: "B", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrBusy)
	f.assertBalance(t, "A", "100")
}

func TestLedgerUseCase_CommitFailureIsStoreError(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockAccountStore(ctrl)
	group := mocks.NewMockAccountGroup(ctrl)
	recorder := mocks.NewMockTransactionRecorder(ctrl)

	acc := domain.NewAccount("A", time.Now())

	store.EXPECT().Acquire(gomock.Any(), []string{"A"}).Return(group, nil)
	group.EXPECT().Get("A").Return(acc.Clone(), nil).AnyTimes()
	group.EXPECT().Put(gomock.Any()).Return(nil)
	group.EXPECT().Commit(gomock.Any()).Return(errors.New("connection reset"))
	group.EXPECT().Abort(gomock.Any()).Return(nil)

	uc := usecase.NewLedgerUseCase(store, recorder)
	_, err := uc.Deposit(context.Background(), usecase.DepositInput{AccountID: "A", Amount: decimal.NewFromInt(5)})
	assert.ErrorIs(t, err, domain.ErrStore)
}

func TestLedgerUseCase_RecorderFailureIsWarning(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockAccountStore(ctrl)
	group := mocks.NewMockAccountGroup(ctrl)
	recorder := mocks.NewMockTransactionRecorder(ctrl)
	metrics := mocks.NewMockLedgerMetrics(ctrl)

	acc := domain.NewAccount("A", time.Now())
	acc.Balance = decimal.NewFromInt(10)

	store.EXPECT().Acquire(gomock.Any(), []string{"A"}).Return(group, nil)
	group.EXPECT().Get("A").Return(acc.Clone(), nil).AnyTimes()
	group.EXPECT().Put(gomock.Any()).Return(nil)
	group.EXPECT().Commit(gomock.Any()).Return(nil)
	recorder.EXPECT().Record(gomock.Any(), gomock.Any()).Return(errors.New("history unavailable"))

	metrics.EXPECT().ObserveLockWait(domain.KindWithdraw, gomock.Any())
	metrics.EXPECT().ObserveRecordingWarning(domain.KindWithdraw)
	metrics.EXPECT().ObserveMovement(domain.KindWithdraw, usecase.OutcomeSuccess, gomock.Any())

	uc := usecase.NewLedgerUseCase(store, recorder, usecase.WithMetrics(metrics))
	result, err := uc.Withdraw(context.Background(), usecase.WithdrawInput{AccountID: "A", Amount: decimal.NewFromInt(4)})
	require.NoError(t, err)
	require.NotNil(t, result.Warning)
	assert.ErrorIs(t, result.Warning, domain.ErrRecording)
	assert.Equal(t, domain.KindWithdraw, result.Warning.Kind)
	assert.True(t, result.Balance.Equal(decimal.NewFromInt(6)))
}

func TestLedgerUseCase_CanceledBeforeCommitAborts(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockAccountStore(ctrl)
	group := mocks.NewMockAccountGroup(ctrl)
	recorder := mocks.NewMockTransactionRecorder(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	acc := domain.NewAccount("A", time.Now())

	store.EXPECT().Acquire(gomock.Any(), []string{"A"}).Return(group, nil)
	group.EXPECT().Get("A").DoAndReturn(func(string) (*domain.Account, error) {
		cancel()
		return acc.Clone(), nil
	}).AnyTimes()
	group.EXPECT().Put(gomock.Any()).Return(nil)
	group.EXPECT().Abort(gomock.Any()).DoAndReturn(func(c context.Context) error {
		assert.NoError(t, c.Err(), "abort must not inherit the caller's cancellation")
		return nil
	})

	uc := usecase.NewLedgerUseCase(store, recorder)
	_, err := uc.Deposit(ctx, usecase.DepositInput{AccountID: "A", Amount: decimal.NewFromInt(5)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLedgerUseCase_LocksInCanonicalOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockAccountStore(ctrl)
	recorder := mocks.NewMockTransactionRecorder(ctrl)

	store.EXPECT().Acquire(gomock.Any(), []string{"alpha", "mid", "zulu"}).Return(nil, fmt.Errorf("%w: zulu", domain.ErrAccountNotFound))

	uc := usecase.NewLedgerUseCase(store, recorder)
	_, err := uc.DistributedDeposit(context.Background(), usecase.DistributedDepositInput{
		Amount: decimal.NewFromInt(3),
		Distributions: []domain.Distribution{
			{AccountID: "zulu", Amount: decimal.NewFromInt(1)},
			{AccountID: "alpha", Amount: decimal.NewFromInt(1)},
			{AccountID: "mid", Amount: decimal.NewFromInt(1)},
		},
	})
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestLedgerUseCase_ValidationSkipsStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockAccountStore(ctrl)
	recorder := mocks.NewMockTransactionRecorder(ctrl)

	uc := usecase.NewLedgerUseCase(store, recorder)
	_, err := uc.Execute(context.Background(), domain.Movement{Kind: "refund", AccountID: "A", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrUnknownMovement)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
