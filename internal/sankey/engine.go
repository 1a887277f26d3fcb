// Package sankey turns a category tree plus the current chart settings into
// the flow records a Sankey renderer consumes.
package sankey

import (
	"math"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/lachiem1/cashflow/internal/ledger"
	"github.com/lachiem1/cashflow/internal/settings"
	"github.com/lachiem1/cashflow/internal/tree"
)

// Custom is the auxiliary data attached to every edge.
type Custom struct {
	Real     float64          `json:"real"`
	Category *ledger.Category `json:"category"`
}

// Edge is a directed flow between two nodes. Weight is always non-negative;
// the sign lives in Custom.Real.
type Edge struct {
	From     string  `json:"from"`
	To       string  `json:"to"`
	Weight   float64 `json:"weight"`
	Outgoing bool    `json:"outgoing,omitempty"`
	Custom   Custom  `json:"custom"`
}

// NodeRecord describes a renderer node.
type NodeRecord struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ColorIndex int    `json:"colorIndex,omitempty"`
	ClassName  string `json:"className,omitempty"`
}

// CategoryRemoved is emitted when a category and its subtree get hidden.
// ChildCategoryIDs includes CategoryID itself.
type CategoryRemoved struct {
	CategoryID       int64   `json:"categoryId"`
	ChildCategoryIDs []int64 `json:"childCategoryIds"`
}

type Option func(*Engine)

func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// Engine is not safe for concurrent use.
type Engine struct {
	tree      *tree.Tree
	cfg       *settings.Config
	listeners []func(CategoryRemoved)
	log       zerolog.Logger
}

func New(t *tree.Tree, cfg *settings.Config, opts ...Option) *Engine {
	e := &Engine{
		tree: t,
		cfg:  cfg,
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Tree() *tree.Tree {
	return e.tree
}

func (e *Engine) Config() *settings.Config {
	return e.cfg
}

func (e *Engine) MainNodeID() int64 {
	return e.tree.Root().Key
}

// OnCategoryRemoved registers a listener. Listeners run synchronously after
// the categories were deactivated.
func (e *Engine) OnCategoryRemoved(fn func(CategoryRemoved)) {
	e.listeners = append(e.listeners, fn)
}

func (e *Engine) counts(n *tree.Node) bool {
	return e.cfg.IsActive(n.Key) && math.Abs(n.Value) >= e.cfg.Threshold
}

// Recompute sets every inner node to the sum of its children that are
// active and reach the threshold. Children are finalised first, so running
// it twice without state changes yields the same values.
func (e *Engine) Recompute() {
	inner := 0
	for n := range e.tree.PostOrder(nil) {
		if !n.HasChildren() {
			continue
		}
		inner++
		sum := 0.0
		for _, child := range n.Children {
			if e.counts(child) {
				sum += child.Value
			}
		}
		n.Value = sum
	}
	e.log.Debug().
		Int("inner_nodes", inner).
		Float64("threshold", e.cfg.Threshold).
		Float64("root_value", e.tree.Root().Value).
		Msg("recomputed category tree")
}

// VisibleNodes recomputes and returns the displayable nodes in pre-order.
// The root is exempt from the threshold.
func (e *Engine) VisibleNodes() []*tree.Node {
	e.Recompute()
	return e.visibleNodes()
}

func (e *Engine) visibleNodes() []*tree.Node {
	root := e.tree.Root()
	var out []*tree.Node
	for n := range e.tree.PreOrder(nil) {
		if n == root {
			if e.cfg.IsActive(n.Key) {
				out = append(out, n)
			}
			continue
		}
		if e.counts(n) {
			out = append(out, n)
		}
	}
	return out
}

// Edges recomputes and emits the flow list. Inflows (non-negative nodes)
// come first, then outflows, each group in pre-order.
func (e *Engine) Edges() []Edge {
	nodes := e.VisibleNodes()
	edges := make([]Edge, 0, len(nodes))
	for _, n := range nodes {
		if n.Parent == nil || n.Value < 0 {
			continue
		}
		edges = append(edges, Edge{
			From:   formatID(n.Key),
			To:     formatID(n.Parent.Key),
			Weight: n.Value,
			Custom: Custom{Real: n.Value, Category: e.cfg.Category(n.Key)},
		})
	}
	for _, n := range nodes {
		if n.Parent == nil || n.Value >= 0 {
			continue
		}
		edges = append(edges, Edge{
			From:     formatID(n.Parent.Key),
			To:       formatID(n.Key),
			Weight:   -n.Value,
			Outgoing: !n.HasChildren(),
			Custom:   Custom{Real: n.Value, Category: e.cfg.Category(n.Key)},
		})
	}
	return edges
}

// Nodes returns renderer node records: the main node first, then every
// other category ordered by path.
func (e *Engine) Nodes() []NodeRecord {
	mainID := e.MainNodeID()
	name := ""
	if main := e.cfg.Category(mainID); main != nil {
		name = main.Name
	}
	out := []NodeRecord{{
		ID:         formatID(mainID),
		Name:       name,
		ColorIndex: 1,
		ClassName:  "main-node-label",
	}}
	for _, cat := range e.cfg.SortedCategories() {
		out = append(out, NodeRecord{ID: formatID(cat.ID), Name: cat.Name})
	}
	return out
}

// RemoveCategory hides the category and all of its descendants. Removing
// the main node or an unknown id does nothing and reports false.
func (e *Engine) RemoveCategory(id int64) (CategoryRemoved, bool) {
	if id == e.MainNodeID() {
		return CategoryRemoved{}, false
	}
	node, ok := e.tree.Find(id)
	if !ok {
		return CategoryRemoved{}, false
	}

	ev := CategoryRemoved{CategoryID: id}
	for n := range e.tree.PostOrder(node) {
		ev.ChildCategoryIDs = append(ev.ChildCategoryIDs, n.Key)
		if cat := e.cfg.Category(n.Key); cat != nil {
			cat.Active = false
		}
	}
	e.log.Debug().
		Int64("category_id", id).
		Int("hidden", len(ev.ChildCategoryIDs)).
		Msg("removed category from chart")

	e.Recompute()
	for _, fn := range e.listeners {
		fn(ev)
	}
	return ev, true
}

// Reset activates every category, clears budgets and restores threshold and
// scaling from defaults. The tree is left untouched.
func (e *Engine) Reset(defaults *settings.Config) {
	e.cfg.ResetCategories()
	e.cfg.Threshold = defaults.Threshold
	e.cfg.Scaled = defaults.Scaled
	e.cfg.ScalingFactor = defaults.ScalingFactor
	e.cfg.EnsureMain("")
	e.Recompute()
}

// OutgoingWeights returns the magnitudes of every negative non-root node
// after recomputation. It is the sample used to calibrate the threshold
// control.
func (e *Engine) OutgoingWeights() []float64 {
	e.Recompute()
	root := e.tree.Root()
	var out []float64
	for n := range e.tree.PreOrder(nil) {
		if n == root || n.Value >= 0 {
			continue
		}
		out = append(out, -n.Value)
	}
	return out
}

// MainBalance is the total weight flowing into the main node minus the
// total flowing out of it.
func (e *Engine) MainBalance() float64 {
	return Balance(e.Edges(), formatID(e.MainNodeID()))
}

// Balance sums incoming minus outgoing edge weights of one node.
func Balance(edges []Edge, nodeID string) float64 {
	balance := 0.0
	for _, edge := range edges {
		switch nodeID {
		case edge.To:
			balance += edge.Weight
		case edge.From:
			balance -= edge.Weight
		}
	}
	return balance
}

// Percentage returns the share of a node in the total outflow of the node
// feeding it, in [0, 1]. ok is false for nodes without an incoming edge.
func Percentage(edges []Edge, nodeID string) (float64, bool) {
	source := ""
	var in float64
	found := false
	for _, edge := range edges {
		if edge.To != nodeID {
			continue
		}
		if !found {
			source = edge.From
			found = true
		}
		in += edge.Weight
	}
	if !found {
		return 0, false
	}
	total := 0.0
	for _, edge := range edges {
		if edge.From == source {
			total += edge.Weight
		}
	}
	if total == 0 {
		return 0, false
	}
	return in / total, true
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ParseID converts a renderer node id back to a category id.
func ParseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
