package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lachiem1/cashflow/internal/ledger"
)

type TransactionsRepo struct {
	db *sql.DB
}

func NewTransactionsRepo(db *sql.DB) *TransactionsRepo {
	return &TransactionsRepo{db: db}
}

func (r *TransactionsRepo) HasAny(ctx context.Context) (bool, error) {
	var exists int
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM transactions WHERE is_active = 1 LIMIT 1)`).Scan(&exists); err != nil {
		return false, fmt.Errorf("check active transactions: %w", err)
	}
	return exists == 1, nil
}

func (r *TransactionsRepo) KnownIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	q := fmt.Sprintf("SELECT id FROM transactions WHERE id IN (%s)", strings.Join(placeholders, ","))
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query known transaction ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan known transaction id: %w", err)
		}
		out[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate known transaction ids: %w", err)
	}
	return out, nil
}

// ReplaceSource makes txs the complete set of active transactions for a
// source. Rows of that source missing from txs are deactivated, not deleted.
func (r *TransactionsRepo) ReplaceSource(ctx context.Context, source string, txs []ledger.Transaction, importedAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transactions replace transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "UPDATE transactions SET is_active = 0 WHERE source = ?", source); err != nil {
		return fmt.Errorf("deactivate transactions of %q: %w", source, err)
	}
	if err = upsertTransactions(ctx, tx, source, txs, importedAt); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transactions replace transaction: %w", err)
	}
	return nil
}

// UpsertBatch inserts or refreshes txs without touching other rows.
func (r *TransactionsRepo) UpsertBatch(ctx context.Context, source string, txs []ledger.Transaction, importedAt time.Time) error {
	if len(txs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transactions upsert transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = upsertTransactions(ctx, tx, source, txs, importedAt); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transactions upsert transaction: %w", err)
	}
	return nil
}

func upsertTransactions(ctx context.Context, tx *sql.Tx, source string, txs []ledger.Transaction, importedAt time.Time) error {
	const upsert = `
INSERT INTO transactions (
  id, source, account, category,
  amount_currency_code, amount_value, amount_value_in_base_units,
  booked_at, last_imported_at, is_active
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
ON CONFLICT(id) DO UPDATE SET
  source = excluded.source,
  account = excluded.account,
  category = excluded.category,
  amount_currency_code = excluded.amount_currency_code,
  amount_value = excluded.amount_value,
  amount_value_in_base_units = excluded.amount_value_in_base_units,
  booked_at = excluded.booked_at,
  last_imported_at = excluded.last_imported_at,
  is_active = 1
`
	importedValue := importedAt.UTC().Format(time.RFC3339Nano)
	for _, t := range txs {
		amount := decimal.NewFromFloat(t.Amount)
		if _, err := tx.ExecContext(
			ctx,
			upsert,
			t.ID, source, normalizeText(t.Account), t.Category,
			normalizeCurrency(t.Currency), amount.String(), amount.Shift(2).Round(0).IntPart(),
			t.Date, importedValue,
		); err != nil {
			return fmt.Errorf("upsert transaction %q: %w", t.ID, err)
		}
	}
	return nil
}

// ListActive returns every active transaction ordered by booking date.
func (r *TransactionsRepo) ListActive(ctx context.Context) ([]ledger.Transaction, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, booked_at, amount_value, amount_currency_code, category, account
		 FROM transactions WHERE is_active = 1 ORDER BY booked_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query active transactions: %w", err)
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		var t ledger.Transaction
		var amount string
		if err := rows.Scan(&t.ID, &t.Date, &amount, &t.Currency, &t.Category, &t.Account); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount of transaction %q: %w", t.ID, err)
		}
		t.Amount = d.InexactFloat64()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (r *TransactionsRepo) CountActive(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions WHERE is_active = 1").Scan(&n); err != nil {
		return 0, fmt.Errorf("count active transactions: %w", err)
	}
	return n, nil
}
