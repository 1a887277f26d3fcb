package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lachiem1/cashflow/internal/ledger"
)

// MoneyMoneyFile reads the JSON export: either a bare array of transactions
// or an object with a "transactions" array.
type MoneyMoneyFile struct {
	Path            string
	DefaultCurrency string
}

func (s MoneyMoneyFile) Name() string {
	return "file:" + filepath.Base(s.Path)
}

func (s MoneyMoneyFile) Load(ctx context.Context) ([]ledger.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.Path, err)
	}
	defer f.Close()
	return decodeMoneyMoney(f, s.DefaultCurrency)
}

type moneyMoneyRecord struct {
	ID       json.RawMessage `json:"id"`
	Date     json.Number     `json:"date"`
	Amount   json.Number     `json:"amount"`
	Currency string          `json:"currency"`
	Category string          `json:"category"`
	Account  string          `json:"account"`
}

func decodeMoneyMoney(r io.Reader, defaultCurrency string) ([]ledger.Transaction, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read moneymoney export: %w", err)
	}
	data = bytes.TrimSpace(data)

	var records []moneyMoneyRecord
	if len(data) > 0 && data[0] == '{' {
		var wrapped struct {
			Transactions []moneyMoneyRecord `json:"transactions"`
		}
		if err := unmarshalNumbers(data, &wrapped); err != nil {
			return nil, fmt.Errorf("decode moneymoney export: %w", err)
		}
		records = wrapped.Transactions
	} else if err := unmarshalNumbers(data, &records); err != nil {
		return nil, fmt.Errorf("decode moneymoney export: %w", err)
	}

	out := make([]ledger.Transaction, 0, len(records))
	for i, rec := range records {
		amount, err := parseAmount(rec.Amount.String())
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		date, err := parseDate(rec.Date.String())
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		out = append(out, ledger.Transaction{
			ID:       rawID(rec.ID),
			Date:     date,
			Amount:   amount,
			Currency: normalizeCurrency(rec.Currency, defaultCurrency),
			Category: normalizeCategory(rec.Category, ledger.MoneyMoneySeparator),
			Account:  strings.TrimSpace(rec.Account),
		})
	}
	return out, nil
}

func unmarshalNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// rawID accepts both numeric and string ids.
func rawID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
