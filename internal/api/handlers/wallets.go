package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"satwallet/internal/core"
	"satwallet/internal/types"
)

// WalletRepo defines the data access contract for wallet and ledger
// operations.
type WalletRepo interface {
	GetWallet(ctx context.Context, id string) (*types.Wallet, error)
	RecordTransaction(ctx context.Context, tx *types.Transaction) error
	ListTransactions(ctx context.Context, walletID string, limit int) ([]types.Transaction, error)
}

// ConnectionRegistry tracks which wallets currently have a live extension
// session. Implemented by wallet.Signal.
type ConnectionRegistry interface {
	Connect(walletID string)
	Disconnect(walletID string)
}

// RecordTransactionRequest is the request body for
// POST /v1/wallets/{id}/transactions.
type RecordTransactionRequest struct {
	Direction    string  `json:"direction" validate:"required,oneof=incoming outgoing"`
	AmountBTC    float64 `json:"amount_btc" validate:"required,gt=0"`
	Counterparty string  `json:"counterparty" validate:"required,max=120"`
}

// WalletsHandler exposes wallet lookup, the transaction ledger, and the
// extension connect/disconnect handshake.
type WalletsHandler struct {
	wallets     WalletRepo
	connections ConnectionRegistry
	validator   *core.Validator
	logger      *slog.Logger
}

// NewWalletsHandler creates a WalletsHandler with the given dependencies.
func NewWalletsHandler(wallets WalletRepo, connections ConnectionRegistry, v *core.Validator, l *slog.Logger) *WalletsHandler {
	if l == nil {
		l = slog.Default()
	}
	return &WalletsHandler{
		wallets:     wallets,
		connections: connections,
		validator:   v,
		logger:      l,
	}
}

// RegisterRoutes mounts wallet routes on the provided chi.Router.
func (h *WalletsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/wallets/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Get("/transactions", h.ListTransactions)
		r.Post("/transactions", h.RecordTransaction)
		r.Post("/connect", h.Connect)
		r.Post("/disconnect", h.Disconnect)
	})
}

// Get handles GET /v1/wallets/{id}.
func (h *WalletsHandler) Get(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.loadWallet(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, wallet)
}

// ListTransactions handles GET /v1/wallets/{id}/transactions. Accepts an
// optional limit query parameter.
func (h *WalletsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.loadWallet(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 500 {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationMissingField,
				"limit must be an integer between 1 and 500", nil))
			return
		}
	}

	txs, err := h.wallets.ListTransactions(r.Context(), wallet.ID, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if txs == nil {
		txs = []types.Transaction{}
	}
	core.JSON(w, r, http.StatusOK, txs)
}

// RecordTransaction handles POST /v1/wallets/{id}/transactions. Incoming
// entries recorded here are what the transaction_received event condition
// observes on its next evaluation.
func (h *WalletsHandler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.loadWallet(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req RecordTransactionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	tx := &types.Transaction{
		WalletID:     wallet.ID,
		Direction:    types.TxDirection(req.Direction),
		AmountBTC:    req.AmountBTC,
		Counterparty: req.Counterparty,
	}
	if err := h.wallets.RecordTransaction(r.Context(), tx); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, tx)
}

// Connect handles POST /v1/wallets/{id}/connect, the extension handshake
// that marks a wallet as live for wallet_connected conditions.
func (h *WalletsHandler) Connect(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.loadWallet(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	h.connections.Connect(wallet.ID)
	h.logger.Info("wallet connected", "wallet_id", wallet.ID)
	core.JSON(w, r, http.StatusNoContent, nil)
}

// Disconnect handles POST /v1/wallets/{id}/disconnect.
func (h *WalletsHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.loadWallet(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	h.connections.Disconnect(wallet.ID)
	h.logger.Info("wallet disconnected", "wallet_id", wallet.ID)
	core.JSON(w, r, http.StatusNoContent, nil)
}

// loadWallet fetches the wallet addressed by the {id} URL parameter.
func (h *WalletsHandler) loadWallet(r *http.Request) (*types.Wallet, error) {
	id := chi.URLParam(r, "id")
	wallet, err := h.wallets.GetWallet(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundWallet, "Wallet not found", nil)
	}
	return wallet, nil
}
