// Package app owns the chart state shared by the terminal UI, the HTTP API
// and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lachiem1/cashflow/internal/ledger"
	"github.com/lachiem1/cashflow/internal/sankey"
	"github.com/lachiem1/cashflow/internal/settings"
	"github.com/lachiem1/cashflow/internal/slider"
	"github.com/lachiem1/cashflow/internal/validate"
)

var ErrUnknownCategory = errors.New("unknown category")

type EventType string

const (
	EventChanged         EventType = "changed"
	EventCategoryRemoved EventType = "category_removed"
	EventReloaded        EventType = "reloaded"
)

type Event struct {
	Type    EventType
	At      time.Time
	Removed *sankey.CategoryRemoved
}

type Options struct {
	Store     settings.Store
	Defaults  *settings.Config
	MainName  string
	Separator string
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Session is safe for concurrent use. Every mutation keeps the main node
// active, recomputes the tree and persists the settings.
type Session struct {
	mu        sync.Mutex
	engine    *sankey.Engine
	cfg       *settings.Config
	defaults  *settings.Config
	store     settings.Store
	summary   ledger.Summary
	mainName  string
	separator string
	warning   string
	log       zerolog.Logger
	now       func() time.Time

	listeners []func(Event)
	pending   []Event
}

// NewSession loads the stored settings and builds the chart from txs. A
// failing settings store does not fail the session: defaults are used and
// the problem is reported by Warning.
func NewSession(ctx context.Context, txs []ledger.Transaction, opts Options) (*Session, error) {
	if opts.Store == nil {
		opts.Store = &settings.MemoryStore{}
	}
	if opts.Defaults == nil {
		opts.Defaults = settings.Default()
	}
	if opts.MainName == "" {
		opts.MainName = ledger.DefaultMainName
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Session{
		defaults:  opts.Defaults.Clone(),
		store:     opts.Store,
		mainName:  opts.MainName,
		separator: opts.Separator,
		log:       opts.Logger,
		now:       opts.Now,
	}

	cfg, err := settings.LoadOrDefault(ctx, opts.Store, s.defaults)
	if err != nil {
		s.warning = fmt.Sprintf("Could not load saved chart settings, using defaults: %v", err)
		s.log.Warn().Err(err).Msg("load chart settings")
	}
	s.cfg = cfg

	if err := s.rebuild(txs); err != nil {
		return nil, err
	}
	if err := s.persist(ctx); err != nil {
		s.log.Warn().Err(err).Msg("save merged chart settings")
	}
	return s, nil
}

func (s *Session) rebuild(txs []ledger.Transaction) error {
	ct, err := ledger.Build(s.cfg.MainNodeID, s.mainName, s.separator, txs)
	if err != nil {
		return fmt.Errorf("build category tree: %w", err)
	}
	s.cfg.Merge(ct.Categories)
	s.summary = ledger.Summarize(txs, s.now())
	s.applyScaling()

	s.engine = sankey.New(ct.Tree, s.cfg, sankey.WithLogger(s.log))
	s.engine.OnCategoryRemoved(func(ev sankey.CategoryRemoved) {
		s.pending = append(s.pending, Event{Type: EventCategoryRemoved, At: s.now(), Removed: &ev})
	})
	s.engine.Recompute()
	s.log.Info().
		Int("transactions", len(txs)).
		Int("categories", len(s.cfg.Categories)).
		Int("nodes", ct.Tree.Len()).
		Msg("built chart")
	return nil
}

// Subscribe registers fn for session events. Listeners run after the
// session lock is released.
func (s *Session) Subscribe(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Session) unlockAndFlush() {
	events := s.pending
	s.pending = nil
	listeners := append([]func(Event){}, s.listeners...)
	s.mu.Unlock()

	for _, ev := range events {
		for _, fn := range listeners {
			fn(ev)
		}
	}
}

func (s *Session) changed() {
	s.pending = append(s.pending, Event{Type: EventChanged, At: s.now()})
}

// applyScaling derives the divisor from the per month flag and the span of
// the current data.
func (s *Session) applyScaling() {
	s.cfg.ScalingFactor = 1
	if s.cfg.Scaled {
		s.cfg.ScalingFactor = s.summary.ScalingFactor()
	}
}

func (s *Session) persist(ctx context.Context) error {
	if err := s.store.Save(ctx, s.cfg); err != nil {
		s.log.Error().Err(err).Msg("save chart settings")
		return fmt.Errorf("save chart settings: %w", err)
	}
	return nil
}

// commit finishes a mutation. The change stays applied when saving fails;
// the failure is reported through Warning instead.
func (s *Session) commit(ctx context.Context) {
	s.cfg.EnsureMain(s.mainName)
	s.engine.Recompute()
	s.changed()
	s.saveOrWarn(ctx)
}

func (s *Session) saveOrWarn(ctx context.Context) {
	if err := s.persist(ctx); err != nil {
		s.warning = fmt.Sprintf("Chart settings could not be saved and will be lost on restart: %v", err)
	}
}

// Reload rebuilds the chart from a new transaction set, keeping the user
// state of categories that still exist.
func (s *Session) Reload(ctx context.Context, txs []ledger.Transaction) error {
	s.mu.Lock()
	defer s.unlockAndFlush()

	if err := s.rebuild(txs); err != nil {
		return err
	}
	s.pending = append(s.pending, Event{Type: EventReloaded, At: s.now()})
	s.saveOrWarn(ctx)
	return nil
}

// Warning returns the pending settings problem, if any.
func (s *Session) Warning() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warning
}

func (s *Session) DismissWarning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warning = ""
}

func (s *Session) Currency() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Currency
}

func (s *Session) Summary() ledger.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

func (s *Session) SetCategoryActive(ctx context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.unlockAndFlush()

	cat := s.cfg.Category(id)
	if cat == nil {
		return fmt.Errorf("%w: %d", ErrUnknownCategory, id)
	}
	cat.Active = active
	s.commit(ctx)
	return nil
}

// SetBudget sets or, with nil, clears the monthly budget of a category.
func (s *Session) SetBudget(ctx context.Context, id int64, budget *float64) error {
	s.mu.Lock()
	defer s.unlockAndFlush()

	cat := s.cfg.Category(id)
	if cat == nil {
		return fmt.Errorf("%w: %d", ErrUnknownCategory, id)
	}
	cat.SetBudget(budget)
	s.commit(ctx)
	return nil
}

// SetThreshold stores a non-negative threshold. NaN is rejected.
func (s *Session) SetThreshold(ctx context.Context, threshold float64) error {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return fmt.Errorf("invalid threshold %v", threshold)
	}
	s.mu.Lock()
	defer s.unlockAndFlush()

	s.cfg.Threshold = math.Max(0, threshold)
	s.commit(ctx)
	return nil
}

// SetScaled switches between totals and per month figures.
func (s *Session) SetScaled(ctx context.Context, scaled bool) error {
	s.mu.Lock()
	defer s.unlockAndFlush()

	s.cfg.Scaled = scaled
	s.applyScaling()
	s.commit(ctx)
	return nil
}

func (s *Session) SetSortKey(ctx context.Context, key settings.SortKey) error {
	if key != settings.SortByPath && key != settings.SortByAmount {
		return fmt.Errorf("invalid sort key %q", key)
	}
	s.mu.Lock()
	defer s.unlockAndFlush()

	s.cfg.SortKey = key
	s.commit(ctx)
	return nil
}

// RemoveCategory hides a category with its subtree. Removing the main node
// is a no-op that reports ok=false.
func (s *Session) RemoveCategory(ctx context.Context, id int64) (ev sankey.CategoryRemoved, ok bool, err error) {
	s.mu.Lock()
	defer s.unlockAndFlush()

	if _, found := s.engine.Tree().Find(id); !found {
		return sankey.CategoryRemoved{}, false, fmt.Errorf("%w: %d", ErrUnknownCategory, id)
	}
	ev, ok = s.engine.RemoveCategory(id)
	if !ok {
		return ev, false, nil
	}
	s.commit(ctx)
	return ev, true, nil
}

// Reset activates every category, clears budgets and restores threshold
// and scaling.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.unlockAndFlush()

	s.engine.Reset(s.defaults)
	s.applyScaling()
	s.commit(ctx)
	return nil
}

// SliderBounds calibrates the threshold control from the current outflows.
func (s *Session) SliderBounds() (slider.Bounds, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slider.Range(s.engine.OutgoingWeights())
}

// Validate returns the warnings for one node; an empty slice means valid.
func (s *Session) Validate(id int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.engine.Tree().Find(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCategory, id)
	}
	s.engine.Recompute()
	return validate.ForNode(node.Value, s.cfg.Category(id), s.cfg).Messages(), nil
}

// Export renders the chart in SankeyMATIC text format using the current
// scaling.
func (s *Session) Export() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.SankeymaticExport(s.cfg.ScalingFactor)
}

func nodeKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
