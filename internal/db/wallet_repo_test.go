package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"satwallet/internal/types"
)

func TestWalletRepository_GetWallet_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewWalletRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	wallet, err := repo.GetWallet(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, wallet)
}

func TestWalletRepository_RecordTransaction(t *testing.T) {
	t.Run("outgoing debits the wallet", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewWalletRepository(db)

		var execArgs [][]any
		db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Run(func(args mock.Arguments) {
				execArgs = append(execArgs, args.Get(2).([]any))
			}).
			Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

		tx := &types.Transaction{
			WalletID:     "wallet-1",
			Direction:    types.TxOutgoing,
			AmountBTC:    0.002,
			Counterparty: "bc1qrecipient",
		}
		require.NoError(t, repo.RecordTransaction(context.Background(), tx))
		assert.NotEmpty(t, tx.ID)

		// Second statement is the balance adjustment with a negated delta.
		require.Len(t, execArgs, 2)
		assert.Equal(t, -0.002, execArgs[1][1])
	})

	t.Run("incoming credits the wallet", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewWalletRepository(db)

		var execArgs [][]any
		db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Run(func(args mock.Arguments) {
				execArgs = append(execArgs, args.Get(2).([]any))
			}).
			Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

		tx := &types.Transaction{
			WalletID:  "wallet-1",
			Direction: types.TxIncoming,
			AmountBTC: 0.5,
		}
		require.NoError(t, repo.RecordTransaction(context.Background(), tx))
		require.Len(t, execArgs, 2)
		assert.Equal(t, 0.5, execArgs[1][1])
	})

	t.Run("insert failure", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewWalletRepository(db)

		db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(pgconn.CommandTag{}, errors.New("disk full"))

		err := repo.RecordTransaction(context.Background(), &types.Transaction{})
		var appErr *types.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
	})
}

func TestWalletRepository_CountIncomingSince(t *testing.T) {
	db := new(mockDBTX)
	repo := NewWalletRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*dest[0].(*int) = 3
			return nil
		}})

	count, err := repo.CountIncomingSince(context.Background(), time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestWalletRepository_TotalBalance(t *testing.T) {
	db := new(mockDBTX)
	repo := NewWalletRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*dest[0].(*float64) = 2.75
			return nil
		}})

	total, err := repo.TotalBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2.75, total)
}
