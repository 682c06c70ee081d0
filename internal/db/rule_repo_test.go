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

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

// --- AutopayRuleRepository Tests ---

func TestAutopayRuleRepository_Create_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAutopayRuleRepository(db)

	rule := &types.AutopayRule{
		WalletID:  "wallet-1",
		Recipient: "bc1qexample",
		AmountBTC: 0.001,
		Condition: "daily at 9am",
		Active:    true,
	}

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Create(context.Background(), rule)
	require.NoError(t, err)
	assert.NotEmpty(t, rule.ID)
	assert.False(t, rule.CreatedAt.IsZero())
	db.AssertExpectations(t)
}

func TestAutopayRuleRepository_Create_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAutopayRuleRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.Create(context.Background(), &types.AutopayRule{})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestAutopayRuleRepository_GetRule_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAutopayRuleRepository(db)

	now := time.Now().UTC()
	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = "rule-1"
			*dest[1].(*string) = "wallet-1"
			*dest[2].(*string) = "bc1qexample"
			*dest[3].(*float64) = 0.001
			*dest[4].(*string) = "btc price > 50000"
			*dest[5].(*bool) = true
			*dest[6].(**time.Time) = nil
			*dest[7].(*time.Time) = now
			return nil
		},
	}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(row)

	rule, err := repo.GetRule(context.Background(), "rule-1")
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, "rule-1", rule.ID)
	assert.Equal(t, "btc price > 50000", rule.Condition)
	assert.True(t, rule.Active)
	assert.Nil(t, rule.LastTriggeredAt)
}

func TestAutopayRuleRepository_GetRule_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAutopayRuleRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	rule, err := repo.GetRule(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, rule)
}

func TestAutopayRuleRepository_SetActive(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewAutopayRuleRepository(db)

		db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(pgconn.NewCommandTag("UPDATE 1"), nil)

		require.NoError(t, repo.SetActive(context.Background(), "rule-1", true))
	})

	t.Run("missing rule", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewAutopayRuleRepository(db)

		db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(pgconn.NewCommandTag("UPDATE 0"), nil)

		err := repo.SetActive(context.Background(), "missing", true)
		var appErr *types.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, types.ErrCodeNotFoundRule, appErr.Code)
	})
}

func TestAutopayRuleRepository_SetLastTriggered(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAutopayRuleRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.SetLastTriggered(context.Background(), "rule-1", time.Now().UTC())
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestAutopayRuleRepository_Delete_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAutopayRuleRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("DELETE 0"), nil)

	err := repo.Delete(context.Background(), "missing")
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundRule, appErr.Code)
}
