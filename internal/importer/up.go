package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/lachiem1/cashflow/internal/ledger"
	"github.com/lachiem1/cashflow/internal/upapi"
)

const UpSourceName = "up"

// UpClient is the subset of the Up API client the source needs.
type UpClient interface {
	ListAccounts(ctx context.Context) (*upapi.ListResponse, error)
	ListCategories(ctx context.Context) (*upapi.ListResponse, error)
	ListTransactions(ctx context.Context, opts upapi.TransactionListOptions) (*upapi.ListResponse, error)
}

// UpSource loads settled transactions from Up and maps each to the path
// "parent\\child" of its category.
type UpSource struct {
	Client UpClient
	Since  time.Time
	Until  time.Time
}

func (s UpSource) Name() string {
	return UpSourceName
}

type upLookups struct {
	categories map[string]upapi.Resource
	accounts   map[string]string
}

func (s UpSource) Load(ctx context.Context) ([]ledger.Transaction, error) {
	lookups, err := s.loadLookups(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.Client.ListTransactions(ctx, upapi.TransactionListOptions{
		Status: "SETTLED",
		Since:  s.Since,
		Until:  s.Until,
	})
	if err != nil {
		return nil, fmt.Errorf("list up transactions: %w", err)
	}

	out := make([]ledger.Transaction, 0, len(resp.Data))
	for _, r := range resp.Data {
		tx, err := upTransaction(r, lookups)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

// loadLookups fetches categories and accounts in parallel.
func (s UpSource) loadLookups(ctx context.Context) (upLookups, error) {
	lookups := upLookups{
		categories: make(map[string]upapi.Resource),
		accounts:   make(map[string]string),
	}
	kinds := []string{"categories", "accounts"}
	responses, err := runBounded(ctx, kinds, 2, func(ctx context.Context, kind string) (*upapi.ListResponse, error) {
		var (
			resp *upapi.ListResponse
			err  error
		)
		if kind == "categories" {
			resp, err = s.Client.ListCategories(ctx)
		} else {
			resp, err = s.Client.ListAccounts(ctx)
		}
		if err != nil {
			return nil, fmt.Errorf("list up %s: %w", kind, err)
		}
		return resp, nil
	})
	if err != nil {
		return upLookups{}, err
	}

	for _, c := range responses[0].Data {
		lookups.categories[c.ID] = c
	}
	for _, a := range responses[1].Data {
		lookups.accounts[a.ID] = a.StringAttr("displayName")
	}
	return lookups, nil
}

func upTransaction(r upapi.Resource, lookups upLookups) (ledger.Transaction, error) {
	amount, err := parseAmount(r.StringAttr("amount", "value"))
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("up transaction %s: %w", r.ID, err)
	}

	at := r.StringAttr("settledAt")
	if at == "" {
		at = r.StringAttr("createdAt")
	}
	date, err := parseDate(at)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("up transaction %s: %w", r.ID, err)
	}

	return ledger.Transaction{
		ID:       r.ID,
		Date:     date,
		Amount:   amount,
		Currency: normalizeCurrency(r.StringAttr("amount", "currencyCode"), "AUD"),
		Category: upCategoryPath(r.RelationshipID("category"), lookups.categories),
		Account:  lookups.accounts[r.RelationshipID("account")],
	}, nil
}

func upCategoryPath(id string, categories map[string]upapi.Resource) string {
	cat, ok := categories[id]
	if !ok {
		return Uncategorized
	}
	name := cat.StringAttr("name")
	if name == "" {
		name = Uncategorized
	}
	parent, ok := categories[cat.RelationshipID("parent")]
	if !ok {
		return name
	}
	parentName := parent.StringAttr("name")
	if parentName == "" {
		parentName = Uncategorized
	}
	return parentName + ledger.MoneyMoneySeparator + name
}
