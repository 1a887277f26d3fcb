package ledger

import (
	"math"
	"unicode/utf16"
)

// Category is the user facing state of one tree node. ID equals the key of
// the node it belongs to.
type Category struct {
	ID     int64    `json:"id"`
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Active bool     `json:"active"`
	Budget *float64 `json:"budget,omitempty"`
	Color  string   `json:"color,omitempty"`
}

// HasBudget reports whether a usable budget is configured.
func (c *Category) HasBudget() bool {
	return c != nil && c.Budget != nil && !math.IsNaN(*c.Budget)
}

// SetBudget stores a budget; negative values are treated as zero and NaN
// clears it.
func (c *Category) SetBudget(budget *float64) {
	if budget == nil || math.IsNaN(*budget) {
		c.Budget = nil
		return
	}
	v := math.Max(0, *budget)
	c.Budget = &v
}

func (c *Category) Clone() *Category {
	out := *c
	if c.Budget != nil {
		v := *c.Budget
		out.Budget = &v
	}
	return &out
}

// PathID derives a category id from its full path. It reproduces the
// classic 31-multiplier string hash over UTF-16 code units with 32-bit
// wraparound and returns its magnitude, so the same path always maps to the
// same id. Collisions are not detected.
func PathID(path string) int64 {
	var hash int32
	for _, unit := range utf16.Encode([]rune(path)) {
		hash = hash*31 + int32(unit)
	}
	id := int64(hash)
	if id < 0 {
		id = -id
	}
	return id
}
