package app

import (
	"math"
	"slices"
	"sort"
	"time"

	"github.com/lachiem1/cashflow/internal/ledger"
	"github.com/lachiem1/cashflow/internal/sankey"
	"github.com/lachiem1/cashflow/internal/settings"
	"github.com/lachiem1/cashflow/internal/slider"
	"github.com/lachiem1/cashflow/internal/tree"
	"github.com/lachiem1/cashflow/internal/validate"
)

type SummaryView struct {
	Accounts []string  `json:"accounts"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Count    int       `json:"count"`
	Months   int       `json:"months"`
}

// Chart is a detached snapshot of everything a renderer needs.
type Chart struct {
	Nodes         []sankey.NodeRecord `json:"nodes"`
	Edges         []sankey.Edge       `json:"edges"`
	MainNodeID    int64               `json:"mainNodeId"`
	Currency      string              `json:"currency"`
	Threshold     float64             `json:"threshold"`
	ScalingFactor float64             `json:"scalingFactor"`
	Scaled        bool                `json:"scaled"`
	SortKey       settings.SortKey    `json:"sortKey"`
	Balance       float64             `json:"balance"`
	Slider        *slider.Bounds      `json:"slider,omitempty"`
	Summary       SummaryView         `json:"summary"`
	Warnings      map[string][]string `json:"warnings,omitempty"`
	Warning       string              `json:"warning,omitempty"`
}

// CategoryView is one row of the categories table in tree pre-order.
type CategoryView struct {
	ledger.Category
	ParentID int64    `json:"parentId"`
	Depth    int      `json:"depth"`
	Value    float64  `json:"value"`
	Visible  bool     `json:"visible"`
	Warnings []string `json:"warnings,omitempty"`
}

func (s *Session) Chart() Chart {
	s.mu.Lock()
	defer s.mu.Unlock()

	edges := s.detachedEdges()
	mainID := s.engine.MainNodeID()
	chart := Chart{
		Nodes:         s.engine.Nodes(),
		Edges:         edges,
		MainNodeID:    mainID,
		Currency:      s.cfg.Currency,
		Threshold:     s.cfg.Threshold,
		ScalingFactor: s.cfg.ScalingFactor,
		Scaled:        s.cfg.Scaled,
		SortKey:       s.cfg.SortKey,
		Balance:       sankey.Balance(edges, nodeKey(mainID)),
		Summary: SummaryView{
			Accounts: append([]string(nil), s.summary.Accounts...),
			Start:    s.summary.Start,
			End:      s.summary.End,
			Count:    s.summary.Count,
			Months:   s.summary.Months(),
		},
		Warning: s.warning,
	}
	if bounds, err := slider.Range(s.engine.OutgoingWeights()); err == nil {
		chart.Slider = &bounds
	}

	for _, n := range s.engine.VisibleNodes() {
		msgs := validate.ForNode(n.Value, s.cfg.Category(n.Key), s.cfg).Messages()
		if len(msgs) == 0 {
			continue
		}
		if chart.Warnings == nil {
			chart.Warnings = make(map[string][]string)
		}
		chart.Warnings[nodeKey(n.Key)] = msgs
	}
	return chart
}

// Flows returns the edges ordered for display according to the sort key.
func (s *Session) Flows() []sankey.Edge {
	s.mu.Lock()
	defer s.mu.Unlock()

	edges := s.detachedEdges()
	sankey.SortEdges(edges, s.cfg.SortKey)
	return edges
}

func (s *Session) detachedEdges() []sankey.Edge {
	edges := s.engine.Edges()
	for i := range edges {
		if cat := edges[i].Custom.Category; cat != nil {
			edges[i].Custom.Category = cat.Clone()
		}
	}
	return edges
}

// Categories lists every non-main category in tree pre-order. With
// SortByAmount siblings are ordered by value instead of discovery order.
func (s *Session) Categories() []CategoryView {
	s.mu.Lock()
	defer s.mu.Unlock()

	visible := make(map[int64]bool)
	for _, n := range s.engine.VisibleNodes() {
		visible[n.Key] = true
	}

	var out []CategoryView
	var walk func(parent *tree.Node, depth int)
	walk = func(parent *tree.Node, depth int) {
		for _, node := range s.orderedChildren(parent) {
			cat := s.cfg.Category(node.Key)
			if cat == nil {
				continue
			}
			out = append(out, CategoryView{
				Category: *cat.Clone(),
				ParentID: parent.Key,
				Depth:    depth,
				Value:    node.Value,
				Visible:  visible[node.Key],
				Warnings: validate.ForNode(node.Value, cat, s.cfg).Messages(),
			})
			walk(node, depth+1)
		}
	}
	walk(s.engine.Tree().Root(), 0)
	return out
}

func (s *Session) orderedChildren(n *tree.Node) []*tree.Node {
	if s.cfg.SortKey != settings.SortByAmount {
		return n.Children
	}
	children := slices.Clone(n.Children)
	sort.SliceStable(children, func(i, j int) bool {
		return math.Abs(children[i].Value) > math.Abs(children[j].Value)
	})
	return children
}
