package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/lachiem1/cashflow/internal/ledger"
)

type SortKey string

const (
	SortByPath   SortKey = "path"
	SortByAmount SortKey = "amount"
)

const (
	DefaultCurrency = "EUR"
	encodingVersion = 1
)

var ErrCorruptConfig = errors.New("stored chart settings are corrupt")

// Config holds every user adjustable chart setting. Categories is keyed by
// category id and always contains the main node. Scaled is the user's per
// month choice; ScalingFactor is derived from it and the data span.
type Config struct {
	Scaled        bool
	ScalingFactor float64
	Threshold     float64
	Currency      string
	MainNodeID    int64
	SortKey       SortKey
	Categories    map[int64]*ledger.Category
}

func Default() *Config {
	return &Config{
		ScalingFactor: 1,
		Threshold:     0,
		Currency:      DefaultCurrency,
		MainNodeID:    ledger.DefaultMainNodeID,
		SortKey:       SortByPath,
		Categories:    make(map[int64]*ledger.Category),
	}
}

// Store persists a Config. Load returns nil, nil when nothing was saved yet.
type Store interface {
	Load(ctx context.Context) (*Config, error)
	Save(ctx context.Context, cfg *Config) error
}

// LoadOrDefault never returns a nil config. When nothing is stored, or the
// store fails, a copy of defaults is returned; the error is passed on so
// callers can surface it. A nil defaults means Default().
func LoadOrDefault(ctx context.Context, store Store, defaults *Config) (*Config, error) {
	if defaults == nil {
		defaults = Default()
	}
	cfg, err := store.Load(ctx)
	if err != nil {
		return defaults.Clone(), err
	}
	if cfg == nil {
		return defaults.Clone(), nil
	}
	cfg.normalize()
	return cfg, nil
}

// Category returns the category for id, or nil.
func (c *Config) Category(id int64) *ledger.Category {
	return c.Categories[id]
}

// IsActive treats unknown categories as inactive.
func (c *Config) IsActive(id int64) bool {
	cat := c.Categories[id]
	return cat != nil && cat.Active
}

// EnsureMain makes sure the main category exists and is active.
func (c *Config) EnsureMain(mainName string) {
	if c.Categories == nil {
		c.Categories = make(map[int64]*ledger.Category)
	}
	main := c.Categories[c.MainNodeID]
	if main == nil {
		if mainName == "" {
			mainName = ledger.DefaultMainName
		}
		main = &ledger.Category{ID: c.MainNodeID, Name: mainName, Path: mainName}
		c.Categories[c.MainNodeID] = main
	}
	main.Active = true
}

// Merge replaces the category set with the categories built from data,
// keeping user state (active flag, budget, color) for ids that were already
// known. Categories that no longer appear in the data are dropped.
func (c *Config) Merge(built map[int64]*ledger.Category) {
	merged := make(map[int64]*ledger.Category, len(built))
	for id, cat := range built {
		next := cat.Clone()
		if prev, ok := c.Categories[id]; ok {
			next.Active = prev.Active
			next.SetBudget(prev.Budget)
			next.Color = prev.Color
		}
		merged[id] = next
	}
	c.Categories = merged

	mainName := ""
	if main := built[c.MainNodeID]; main != nil {
		mainName = main.Name
	}
	c.EnsureMain(mainName)
}

// ResetCategories activates every category and clears all budgets.
func (c *Config) ResetCategories() {
	for _, cat := range c.Categories {
		cat.Active = true
		cat.Budget = nil
	}
}

func (c *Config) Clone() *Config {
	out := *c
	out.Categories = make(map[int64]*ledger.Category, len(c.Categories))
	for id, cat := range c.Categories {
		out.Categories[id] = cat.Clone()
	}
	return &out
}

// SortedCategories returns the non-main categories ordered by path using
// locale aware collation.
func (c *Config) SortedCategories() []*ledger.Category {
	out := make([]*ledger.Category, 0, len(c.Categories))
	for id, cat := range c.Categories {
		if id == c.MainNodeID {
			continue
		}
		out = append(out, cat)
	}
	col := collate.New(language.Und)
	sort.SliceStable(out, func(i, j int) bool {
		if cmp := col.CompareString(out[i].Path, out[j].Path); cmp != 0 {
			return cmp < 0
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (c *Config) normalize() {
	if c.ScalingFactor <= 0 || math.IsNaN(c.ScalingFactor) {
		c.ScalingFactor = 1
	}
	if c.Threshold < 0 || math.IsNaN(c.Threshold) {
		c.Threshold = 0
	}
	if c.Currency == "" {
		c.Currency = DefaultCurrency
	}
	if c.SortKey != SortByAmount {
		c.SortKey = SortByPath
	}
	c.EnsureMain("")
}

type envelope struct {
	Version       int                `json:"version"`
	Scaled        bool               `json:"scaled"`
	ScalingFactor float64            `json:"scalingFactor"`
	Threshold     float64            `json:"threshold"`
	Currency      string             `json:"currency"`
	MainNodeID    int64              `json:"mainNodeId"`
	SortKey       SortKey            `json:"sortKey"`
	Categories    []*ledger.Category `json:"categories"`
}

// Encode serialises the config. Categories are written as an array sorted
// by id so the output is stable.
func Encode(c *Config) ([]byte, error) {
	env := envelope{
		Version:       encodingVersion,
		Scaled:        c.Scaled,
		ScalingFactor: c.ScalingFactor,
		Threshold:     c.Threshold,
		Currency:      c.Currency,
		MainNodeID:    c.MainNodeID,
		SortKey:       c.SortKey,
		Categories:    make([]*ledger.Category, 0, len(c.Categories)),
	}
	for _, cat := range c.Categories {
		env.Categories = append(env.Categories, cat)
	}
	sort.Slice(env.Categories, func(i, j int) bool {
		return env.Categories[i].ID < env.Categories[j].ID
	})

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode chart settings: %w", err)
	}
	return data, nil
}

func Decode(data []byte) (*Config, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptConfig, err)
	}
	if env.Version != encodingVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptConfig, env.Version)
	}

	cfg := &Config{
		// settings written before the flag existed only kept the factor
		Scaled:        env.Scaled || env.ScalingFactor > 1,
		ScalingFactor: env.ScalingFactor,
		Threshold:     env.Threshold,
		Currency:      env.Currency,
		MainNodeID:    env.MainNodeID,
		SortKey:       env.SortKey,
		Categories:    make(map[int64]*ledger.Category, len(env.Categories)),
	}
	if cfg.MainNodeID == 0 {
		cfg.MainNodeID = ledger.DefaultMainNodeID
	}
	for _, cat := range env.Categories {
		if cat == nil {
			continue
		}
		cfg.Categories[cat.ID] = cat
	}
	cfg.normalize()
	return cfg, nil
}
