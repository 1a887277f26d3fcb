package sankey

import (
	"math"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/lachiem1/cashflow/internal/ledger"
	"github.com/lachiem1/cashflow/internal/settings"
	"github.com/lachiem1/cashflow/internal/tree"
)

const tolerance = 1e-9

func approx(a, b float64) bool {
	return math.Abs(a-b) < tolerance
}

func newTestEngine(t *testing.T, txs []ledger.Transaction) *Engine {
	t.Helper()
	ct, err := ledger.Build(ledger.DefaultMainNodeID, ledger.DefaultMainName, ledger.MoneyMoneySeparator, txs)
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	cfg := settings.Default()
	cfg.Merge(ct.Categories)
	return New(ct.Tree, cfg)
}

func transportTransactions() []ledger.Transaction {
	return []ledger.Transaction{
		{ID: "1", Category: `Transport\\Car\\Insurance`, Amount: -398.25},
		{ID: "2", Category: `Transport\\Fuel`, Amount: -92.65},
	}
}

func householdTransactions() []ledger.Transaction {
	return []ledger.Transaction{
		{Category: `Income\\Salary`, Amount: 3000},
		{Category: `Income\\Bonus`, Amount: 500},
		{Category: `Living\\Rent`, Amount: -1200},
		{Category: `Living\\Food`, Amount: -300},
		{Category: `Transport\\Fuel`, Amount: -92.65},
	}
}

func nodeValue(t *testing.T, e *Engine, path string) float64 {
	t.Helper()
	n, ok := e.Tree().Find(ledger.PathID(path))
	if !ok {
		t.Fatalf("node %q missing", path)
	}
	return n.Value
}

func TestEndToEndTransport(t *testing.T) {
	e := newTestEngine(t, transportTransactions())
	e.Recompute()

	if got := nodeValue(t, e, "Transport"); !approx(got, -490.90) {
		t.Fatalf("Transport = %v, want -490.90", got)
	}
	if got := nodeValue(t, e, `Transport\\Car\\Insurance`); !approx(got, -398.25) {
		t.Fatalf("Insurance = %v, want -398.25", got)
	}
	if got := e.Tree().Root().Value; !approx(got, -490.90) {
		t.Fatalf("root = %v, want -490.90", got)
	}
	if got := e.MainBalance(); !approx(got, -490.90) {
		t.Fatalf("MainBalance() = %v, want -490.90", got)
	}

	transportID := ledger.PathID("Transport")
	if _, ok := e.RemoveCategory(transportID); !ok {
		t.Fatal("RemoveCategory(Transport) = false, want true")
	}
	if got := e.Tree().Root().Value; !approx(got, 0) {
		t.Fatalf("root after removal = %v, want 0", got)
	}
	if edges := e.Edges(); len(edges) != 0 {
		t.Fatalf("Edges() after removal = %v, want none", edges)
	}
}

func TestEdges(t *testing.T) {
	e := newTestEngine(t, householdTransactions())
	edges := e.Edges()

	id := func(path string) string { return formatID(ledger.PathID(path)) }
	main := formatID(ledger.DefaultMainNodeID)
	want := []struct {
		from, to string
		weight   float64
		outgoing bool
	}{
		{id("Income"), main, 3500, false},
		{id(`Income\\Salary`), id("Income"), 3000, false},
		{id(`Income\\Bonus`), id("Income"), 500, false},
		{main, id("Living"), 1500, false},
		{id("Living"), id(`Living\\Rent`), 1200, true},
		{id("Living"), id(`Living\\Food`), 300, true},
		{main, id("Transport"), 92.65, false},
		{id("Transport"), id(`Transport\\Fuel`), 92.65, true},
	}
	if len(edges) != len(want) {
		t.Fatalf("len(Edges()) = %d, want %d", len(edges), len(want))
	}
	for i, w := range want {
		got := edges[i]
		if got.From != w.from || got.To != w.to || !approx(got.Weight, w.weight) || got.Outgoing != w.outgoing {
			t.Fatalf("Edges()[%d] = %+v, want %+v", i, got, w)
		}
		if got.Weight < 0 {
			t.Fatalf("Edges()[%d] weight %v is negative", i, got.Weight)
		}
	}

	rent := edges[4]
	if !approx(rent.Custom.Real, -1200) || rent.Custom.Category == nil || rent.Custom.Category.Name != "Rent" {
		t.Fatalf("rent custom = %+v", rent.Custom)
	}
}

func TestRecomputeIsIdempotent(t *testing.T) {
	e := newTestEngine(t, householdTransactions())
	e.Config().Threshold = 100

	snapshot := func() map[int64]float64 {
		out := make(map[int64]float64)
		for n := range e.Tree().PreOrder(nil) {
			out[n.Key] = n.Value
		}
		return out
	}

	e.Recompute()
	first := snapshot()
	firstEdges := e.Edges()
	e.Recompute()
	if second := snapshot(); !reflect.DeepEqual(first, second) {
		t.Fatalf("values changed between passes: %v vs %v", first, second)
	}
	if secondEdges := e.Edges(); !reflect.DeepEqual(firstEdges, secondEdges) {
		t.Fatal("edges changed between passes")
	}
}

func TestConservation(t *testing.T) {
	e := newTestEngine(t, householdTransactions())
	e.Recompute()

	if got := e.Tree().Root().Value; !approx(got, 1907.35) {
		t.Fatalf("root = %v, want 1907.35", got)
	}
	if got := e.MainBalance(); !approx(got, 1907.35) {
		t.Fatalf("MainBalance() = %v, want 1907.35", got)
	}

	living := e.Config().Category(ledger.PathID("Living"))
	living.Active = false
	e.Recompute()
	if got := e.Tree().Root().Value; !approx(got, 3407.35) {
		t.Fatalf("root without Living = %v, want 3407.35", got)
	}

	living.Active = true
	e.Recompute()
	if got := e.Tree().Root().Value; !approx(got, 1907.35) {
		t.Fatalf("root after reactivation = %v, want 1907.35", got)
	}
}

func TestThresholdFiltersSmallFlows(t *testing.T) {
	e := newTestEngine(t, householdTransactions())
	e.Config().Threshold = 100

	visible := e.VisibleNodes()
	if got := e.Tree().Root().Value; !approx(got, 2000) {
		t.Fatalf("root = %v, want 2000", got)
	}
	for _, n := range visible {
		if n.Key == ledger.PathID("Transport") || n.Key == ledger.PathID(`Transport\\Fuel`) {
			t.Fatalf("node %d below threshold is visible", n.Key)
		}
	}
	if len(visible) != 7 {
		t.Fatalf("len(VisibleNodes()) = %d, want 7", len(visible))
	}
	if visible[0] != e.Tree().Root() {
		t.Fatal("root should be the first visible node")
	}
}

func TestRootIsExemptFromThreshold(t *testing.T) {
	e := newTestEngine(t, transportTransactions())
	e.Config().Threshold = 1e6
	visible := e.VisibleNodes()
	if len(visible) != 1 || visible[0] != e.Tree().Root() {
		t.Fatalf("VisibleNodes() = %v, want only the root", visible)
	}
}

func TestMissingCategoryIsInactive(t *testing.T) {
	tr := tree.New(1, 0)
	tr.Insert(1, 2, -10)
	tr.Insert(1, 3, -5)
	cfg := settings.Default()
	cfg.EnsureMain("")
	cfg.Categories[3] = &ledger.Category{ID: 3, Name: "Known", Active: true}

	e := New(tr, cfg)
	e.Recompute()
	if got := tr.Root().Value; got != -5 {
		t.Fatalf("root = %v, want -5", got)
	}
	if edges := e.Edges(); len(edges) != 1 || edges[0].To != "3" {
		t.Fatalf("Edges() = %+v, want only the known category", edges)
	}
}

func TestRemoveCategoryDeactivatesSubtree(t *testing.T) {
	e := newTestEngine(t, append(householdTransactions(), transportTransactions()...))

	var events []CategoryRemoved
	e.OnCategoryRemoved(func(ev CategoryRemoved) { events = append(events, ev) })

	transport, _ := e.Tree().Find(ledger.PathID("Transport"))
	var want []int64
	for n := range e.Tree().PreOrder(transport) {
		want = append(want, n.Key)
	}

	ev, ok := e.RemoveCategory(transport.Key)
	if !ok {
		t.Fatal("RemoveCategory() = false, want true")
	}
	got := slices.Clone(ev.ChildCategoryIDs)
	slices.Sort(got)
	slices.Sort(want)
	if !slices.Equal(got, want) {
		t.Fatalf("ChildCategoryIDs = %v, want %v", got, want)
	}
	if ev.ChildCategoryIDs[len(ev.ChildCategoryIDs)-1] != transport.Key {
		t.Fatal("removed category should be last in post-order")
	}

	hidden := make(map[int64]bool)
	for _, id := range want {
		hidden[id] = true
	}
	for id, cat := range e.Config().Categories {
		if cat.Active == hidden[id] {
			t.Fatalf("category %d (%s) active = %v, want %v", id, cat.Path, cat.Active, !hidden[id])
		}
	}

	if len(events) != 1 || events[0].CategoryID != transport.Key {
		t.Fatalf("events = %+v, want one removal of Transport", events)
	}
}

func TestRemoveCategoryNoOps(t *testing.T) {
	e := newTestEngine(t, transportTransactions())
	called := false
	e.OnCategoryRemoved(func(CategoryRemoved) { called = true })

	if _, ok := e.RemoveCategory(ledger.DefaultMainNodeID); ok {
		t.Fatal("RemoveCategory(main) = true, want false")
	}
	if _, ok := e.RemoveCategory(424242); ok {
		t.Fatal("RemoveCategory(unknown) = true, want false")
	}
	if called {
		t.Fatal("listener called for a no-op removal")
	}
	for _, cat := range e.Config().Categories {
		if !cat.Active {
			t.Fatalf("category %d deactivated by a no-op", cat.ID)
		}
	}
}

func TestReset(t *testing.T) {
	e := newTestEngine(t, householdTransactions())
	budget := 10.0
	cfg := e.Config()
	cfg.Threshold = 50
	cfg.Scaled = true
	cfg.ScalingFactor = 3
	e.RemoveCategory(ledger.PathID("Living"))
	cfg.Category(ledger.PathID("Income")).SetBudget(&budget)

	before := e.Tree().Len()
	e.Reset(settings.Default())

	if cfg.Threshold != 0 || cfg.ScalingFactor != 1 || cfg.Scaled {
		t.Fatalf("threshold %v scaling %v scaled %v, want 0, 1, false", cfg.Threshold, cfg.ScalingFactor, cfg.Scaled)
	}
	for id, cat := range cfg.Categories {
		if !cat.Active || cat.Budget != nil {
			t.Fatalf("category %d = %+v, want active without budget", id, cat)
		}
	}
	if e.Tree().Len() != before {
		t.Fatal("Reset() changed the tree structure")
	}
	if got := e.Tree().Root().Value; !approx(got, 1907.35) {
		t.Fatalf("root after Reset() = %v, want 1907.35", got)
	}
}

func TestOutgoingWeights(t *testing.T) {
	e := newTestEngine(t, householdTransactions())
	got := e.OutgoingWeights()
	want := []float64{1500, 1200, 300, 92.65, 92.65}
	if len(got) != len(want) {
		t.Fatalf("OutgoingWeights() = %v, want %v", got, want)
	}
	for i := range want {
		if !approx(got[i], want[i]) {
			t.Fatalf("OutgoingWeights() = %v, want %v", got, want)
		}
	}
}

func TestNodes(t *testing.T) {
	e := newTestEngine(t, transportTransactions())
	nodes := e.Nodes()
	if len(nodes) != 5 {
		t.Fatalf("len(Nodes()) = %d, want 5", len(nodes))
	}
	if nodes[0].ID != "1" || nodes[0].Name != "Saldo" || nodes[0].ColorIndex != 1 {
		t.Fatalf("Nodes()[0] = %+v, want main node", nodes[0])
	}
	if nodes[1].Name != "Transport" {
		t.Fatalf("Nodes()[1] = %+v, want Transport first by path", nodes[1])
	}
}

func TestPercentage(t *testing.T) {
	e := newTestEngine(t, householdTransactions())
	edges := e.Edges()
	share, ok := Percentage(edges, formatID(ledger.PathID(`Living\\Rent`)))
	if !ok || !approx(share, 0.8) {
		t.Fatalf("Percentage(Rent) = %v, %v, want 0.8, true", share, ok)
	}
	if _, ok := Percentage(edges, formatID(ledger.PathID(`Income\\Salary`))); ok {
		t.Fatal("Percentage(Salary) ok = true, want false for a node without inflow")
	}
}

func TestSortEdges(t *testing.T) {
	e := newTestEngine(t, householdTransactions())

	byAmount := e.Edges()
	SortEdges(byAmount, settings.SortByAmount)
	if !approx(byAmount[0].Custom.Real, -1500) {
		t.Fatalf("first edge by amount = %v, want -1500", byAmount[0].Custom.Real)
	}

	byPath := e.Edges()
	SortEdges(byPath, settings.SortByPath)
	for i := 1; i < len(byPath); i++ {
		if strings.Compare(byPath[i-1].Custom.Category.Path, byPath[i].Custom.Category.Path) > 0 {
			t.Fatalf("edges not sorted by path at %d: %q > %q", i, byPath[i-1].Custom.Category.Path, byPath[i].Custom.Category.Path)
		}
	}
}

func TestSankeymaticExport(t *testing.T) {
	e := newTestEngine(t, transportTransactions())
	got := e.SankeymaticExport(2)
	want := strings.Join([]string{
		"Saldo [245.45] Transport",
		"Transport [199.13] Car",
		"Car [199.13] Insurance",
		"Transport [46.33] Fuel",
	}, "\n")
	if got != want {
		t.Fatalf("SankeymaticExport() =\n%s\nwant\n%s", got, want)
	}
}

func TestParseID(t *testing.T) {
	id, err := ParseID("1238034679")
	if err != nil || id != 1238034679 {
		t.Fatalf("ParseID() = %d, %v", id, err)
	}
	if _, err := ParseID("abc"); err == nil {
		t.Fatal("ParseID(abc) error = nil, want error")
	}
}
