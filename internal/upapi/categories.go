package upapi

import "context"

// ListCategories calls GET /categories.
// This endpoint is not paginated in Up API docs.
func (c *Client) ListCategories(ctx context.Context) (*ListResponse, error) {
	var out ListResponse
	if err := c.get(ctx, "/categories", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
