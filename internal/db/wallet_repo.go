package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"satwallet/internal/types"
)

// WalletRepository provides thin CRUD access to the wallets and
// transactions tables. Incoming transactions recorded here feed the
// transaction_received event signal consumed by the condition engine.
type WalletRepository struct {
	db DBTX
}

// NewWalletRepository creates a repository backed by the given database
// connection (pool or transaction).
func NewWalletRepository(db DBTX) *WalletRepository {
	return &WalletRepository{db: db}
}

// GetWallet returns the wallet by ID, or nil if it does not exist.
func (r *WalletRepository) GetWallet(ctx context.Context, id string) (*types.Wallet, error) {
	var w types.Wallet
	err := r.db.QueryRow(ctx,
		`SELECT id, label, address, balance_btc, created_at
		 FROM wallets WHERE id = $1`,
		id,
	).Scan(&w.ID, &w.Label, &w.Address, &w.BalanceBTC, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query wallet", err)
	}
	return &w, nil
}

// RecordTransaction inserts a ledger entry and adjusts the wallet balance
// in one statement pair. Incoming amounts credit the wallet; outgoing
// amounts debit it.
func (r *WalletRepository) RecordTransaction(ctx context.Context, tx *types.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	tx.CreatedAt = time.Now().UTC()

	_, err := r.db.Exec(ctx,
		`INSERT INTO transactions (id, wallet_id, direction, amount_btc, counterparty, rule_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tx.ID,
		tx.WalletID,
		string(tx.Direction),
		tx.AmountBTC,
		tx.Counterparty,
		tx.RuleID,
		tx.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record transaction", err)
	}

	delta := tx.AmountBTC
	if tx.Direction == types.TxOutgoing {
		delta = -delta
	}
	_, err = r.db.Exec(ctx,
		`UPDATE wallets SET balance_btc = balance_btc + $2 WHERE id = $1`,
		tx.WalletID,
		delta,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to adjust wallet balance", err)
	}
	return nil
}

// ListTransactions returns a wallet's ledger, newest first, capped at limit.
func (r *WalletRepository) ListTransactions(ctx context.Context, walletID string, limit int) ([]types.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, wallet_id, direction, amount_btc, counterparty, rule_id, created_at
		 FROM transactions WHERE wallet_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		walletID,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list transactions", err)
	}
	defer rows.Close()

	var txs []types.Transaction
	for rows.Next() {
		var tx types.Transaction
		var direction string
		if err := rows.Scan(&tx.ID, &tx.WalletID, &direction, &tx.AmountBTC, &tx.Counterparty, &tx.RuleID, &tx.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan transaction", err)
		}
		tx.Direction = types.TxDirection(direction)
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate transactions", err)
	}
	return txs, nil
}

// CountIncomingSince returns the number of incoming transactions recorded
// after the given instant, across all wallets. The event signal uses this
// counter to answer "has a transaction arrived since last check".
func (r *WalletRepository) CountIncomingSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions
		 WHERE direction = 'incoming' AND created_at > $1`,
		since,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count incoming transactions", err)
	}
	return count, nil
}

// TotalBalance returns the summed balance across all wallets. The event
// signal compares successive readings to answer "has the balance changed".
func (r *WalletRepository) TotalBalance(ctx context.Context) (float64, error) {
	var total float64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(balance_btc), 0) FROM wallets`,
	).Scan(&total)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to sum wallet balances", err)
	}
	return total, nil
}
