package upapi

import (
	"context"
	"net/url"
	"time"
)

// TransactionListOptions supports list filters in Up docs.
type TransactionListOptions struct {
	Status string
	Since  time.Time
	Until  time.Time
}

// ListTransactions calls GET /transactions with page[size]=100 and follows
// pagination until the last page.
func (c *Client) ListTransactions(ctx context.Context, opts TransactionListOptions) (*ListResponse, error) {
	query := pageSizeQueryWithSize(transactionsPageSize)
	applyTransactionFilters(query, opts)
	return c.listAll(ctx, "/transactions", query)
}

func applyTransactionFilters(query url.Values, opts TransactionListOptions) {
	if opts.Status != "" {
		query.Set("filter[status]", opts.Status)
	}
	if !opts.Since.IsZero() {
		query.Set("filter[since]", opts.Since.Format(time.RFC3339))
	}
	if !opts.Until.IsZero() {
		query.Set("filter[until]", opts.Until.Format(time.RFC3339))
	}
}
