package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satwallet/internal/core"
	"satwallet/internal/types"
)

// mockWalletRepo is an in-memory WalletRepo.
type mockWalletRepo struct {
	wallets map[string]types.Wallet
	txs     []types.Transaction
}

func newMockWalletRepo(wallets ...types.Wallet) *mockWalletRepo {
	m := &mockWalletRepo{wallets: make(map[string]types.Wallet)}
	for _, w := range wallets {
		m.wallets[w.ID] = w
	}
	return m
}

func (m *mockWalletRepo) GetWallet(ctx context.Context, id string) (*types.Wallet, error) {
	w, ok := m.wallets[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (m *mockWalletRepo) RecordTransaction(ctx context.Context, tx *types.Transaction) error {
	tx.ID = "tx-new"
	tx.CreatedAt = time.Now().UTC()
	m.txs = append(m.txs, *tx)
	return nil
}

func (m *mockWalletRepo) ListTransactions(ctx context.Context, walletID string, limit int) ([]types.Transaction, error) {
	var out []types.Transaction
	for _, tx := range m.txs {
		if tx.WalletID == walletID {
			out = append(out, tx)
		}
	}
	return out, nil
}

// mockRegistry records connect/disconnect calls.
type mockRegistry struct {
	connected    []string
	disconnected []string
}

func (m *mockRegistry) Connect(walletID string)    { m.connected = append(m.connected, walletID) }
func (m *mockRegistry) Disconnect(walletID string) { m.disconnected = append(m.disconnected, walletID) }

type walletFixture struct {
	repo     *mockWalletRepo
	registry *mockRegistry
	router   *chi.Mux
}

func newWalletFixture(wallets ...types.Wallet) *walletFixture {
	repo := newMockWalletRepo(wallets...)
	registry := &mockRegistry{}
	h := NewWalletsHandler(repo, registry, core.NewValidator(nil), nil)

	router := chi.NewRouter()
	router.Route("/v1", func(r chi.Router) {
		h.RegisterRoutes(r)
	})
	return &walletFixture{repo: repo, registry: registry, router: router}
}

func (f *walletFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func testWallet() types.Wallet {
	return types.Wallet{
		ID:         "wallet-1",
		Label:      "main",
		Address:    "bc1qowner",
		BalanceBTC: 1.25,
	}
}

func TestWalletsHandler_Get(t *testing.T) {
	f := newWalletFixture(testWallet())

	rec := f.do(http.MethodGet, "/v1/wallets/wallet-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var w types.Wallet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &w))
	assert.Equal(t, 1.25, w.BalanceBTC)

	rec = f.do(http.MethodGet, "/v1/wallets/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWalletsHandler_RecordTransaction(t *testing.T) {
	t.Run("valid incoming", func(t *testing.T) {
		f := newWalletFixture(testWallet())
		rec := f.do(http.MethodPost, "/v1/wallets/wallet-1/transactions",
			`{"direction":"incoming","amount_btc":0.5,"counterparty":"bc1qsender"}`)

		require.Equal(t, http.StatusCreated, rec.Code)
		require.Len(t, f.repo.txs, 1)
		assert.Equal(t, types.TxIncoming, f.repo.txs[0].Direction)
	})

	t.Run("rejects unknown direction", func(t *testing.T) {
		f := newWalletFixture(testWallet())
		rec := f.do(http.MethodPost, "/v1/wallets/wallet-1/transactions",
			`{"direction":"sideways","amount_btc":0.5,"counterparty":"bc1qsender"}`)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, f.repo.txs)
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		f := newWalletFixture(testWallet())
		rec := f.do(http.MethodPost, "/v1/wallets/wallet-1/transactions",
			`{"direction":"incoming","amount_btc":-1,"counterparty":"bc1qsender"}`)

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestWalletsHandler_ListTransactions(t *testing.T) {
	f := newWalletFixture(testWallet())
	f.repo.txs = []types.Transaction{{ID: "tx-1", WalletID: "wallet-1"}}

	rec := f.do(http.MethodGet, "/v1/wallets/wallet-1/transactions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var txs []types.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &txs))
	assert.Len(t, txs, 1)

	rec = f.do(http.MethodGet, "/v1/wallets/wallet-1/transactions?limit=0", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWalletsHandler_ConnectDisconnect(t *testing.T) {
	f := newWalletFixture(testWallet())

	rec := f.do(http.MethodPost, "/v1/wallets/wallet-1/connect", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"wallet-1"}, f.registry.connected)

	rec = f.do(http.MethodPost, "/v1/wallets/wallet-1/disconnect", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"wallet-1"}, f.registry.disconnected)

	rec = f.do(http.MethodPost, "/v1/wallets/missing/connect", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
