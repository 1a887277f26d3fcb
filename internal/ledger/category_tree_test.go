package ledger

import (
	"math"
	"testing"
	"time"
)

const (
	transportID             int64 = 1238034679
	transportCarID          int64 = 922235595
	transportCarInsuranceID int64 = 762029169
	transportFuelID         int64 = 1475359329
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPathIDKnownValues(t *testing.T) {
	tests := []struct {
		path string
		want int64
	}{
		{path: "", want: 0},
		{path: "Transport", want: transportID},
		{path: `Transport\\Car`, want: transportCarID},
		{path: `Transport\\Car\\Insurance`, want: transportCarInsuranceID},
		{path: `Transport\\Fuel`, want: transportFuelID},
		{path: "Living", want: 2018562359},
		{path: "Saldo", want: 79648969},
		{path: "Ä€😀", want: 15649739},
	}
	for _, tt := range tests {
		if got := PathID(tt.path); got != tt.want {
			t.Fatalf("PathID(%q) = %d, want %d", tt.path, got, tt.want)
		}
	}
}

func TestPathIDIsStable(t *testing.T) {
	first := PathID(`Income\\Salary`)
	for i := 0; i < 10; i++ {
		if got := PathID(`Income\\Salary`); got != first {
			t.Fatalf("PathID() call %d = %d, want %d", i, got, first)
		}
	}
}

func TestPathIDNonNegative(t *testing.T) {
	for _, p := range []string{"a", "zzzzzzzzzzzzzzzzzz", "Lebensmittel\\\\Supermarkt", "polygenelubricants"} {
		if got := PathID(p); got < 0 {
			t.Fatalf("PathID(%q) = %d, want >= 0", p, got)
		}
	}
}

func TestPathIDMinInt32Magnitude(t *testing.T) {
	// "polygenelubricants" hashes to math.MinInt32 in 32-bit arithmetic.
	if got := PathID("polygenelubricants"); got != 2147483648 {
		t.Fatalf("PathID() = %d, want 2147483648", got)
	}
}

func TestFromTransactionsBuildsHierarchy(t *testing.T) {
	ct := NewMoneyMoneyCategoryTree(DefaultMainNodeID)
	err := ct.FromTransactions([]Transaction{
		{ID: "1", Category: `Transport\\Car\\Insurance`, Amount: -398.25},
		{ID: "2", Category: `Transport\\Fuel`, Amount: -92.65},
	})
	if err != nil {
		t.Fatalf("FromTransactions() unexpected error: %v", err)
	}

	transport, ok := ct.Tree.Find(transportID)
	if !ok {
		t.Fatal("transport node missing")
	}
	if transport.Parent != ct.Tree.Root() {
		t.Fatal("transport parent is not the main node")
	}
	if len(transport.Children) != 2 {
		t.Fatalf("len(transport.Children) = %d, want 2", len(transport.Children))
	}
	if transport.Children[0].Key != transportCarID || transport.Children[1].Key != transportFuelID {
		t.Fatal("children are not in discovery order")
	}

	insurance, ok := ct.Tree.Find(transportCarInsuranceID)
	if !ok {
		t.Fatal("insurance node missing")
	}
	if insurance.Parent.Key != transportCarID {
		t.Fatalf("insurance parent = %d, want %d", insurance.Parent.Key, transportCarID)
	}
	if !approxEqual(insurance.Value, -398.25) {
		t.Fatalf("insurance value = %v, want -398.25", insurance.Value)
	}

	cat := ct.Categories[transportCarInsuranceID]
	if cat == nil {
		t.Fatal("insurance category missing")
	}
	if cat.Name != "Insurance" {
		t.Fatalf("Name = %q, want %q", cat.Name, "Insurance")
	}
	if cat.Path != "Transport » Car » Insurance" {
		t.Fatalf("Path = %q, want %q", cat.Path, "Transport » Car » Insurance")
	}
	if !cat.Active || cat.Budget != nil {
		t.Fatalf("new category = %+v, want active without budget", cat)
	}
	if len(ct.Categories) != 5 {
		t.Fatalf("len(Categories) = %d, want 5", len(ct.Categories))
	}
}

func TestFromTransactionsAccumulatesLeaves(t *testing.T) {
	ct := NewMoneyMoneyCategoryTree(DefaultMainNodeID)
	err := ct.FromTransactions([]Transaction{
		{Category: `Transport\\Fuel`, Amount: -50},
		{Category: `Transport\\Fuel`, Amount: -25.5},
		{Category: `Transport\\Fuel`, Amount: 10},
	})
	if err != nil {
		t.Fatalf("FromTransactions() unexpected error: %v", err)
	}
	fuel, _ := ct.Tree.Find(transportFuelID)
	if !approxEqual(fuel.Value, -65.5) {
		t.Fatalf("fuel value = %v, want -65.5", fuel.Value)
	}
	if ct.Tree.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", ct.Tree.Len())
	}
}

func TestFromTransactionsDoesNotAccumulatePassThroughPrefixes(t *testing.T) {
	ct := NewMoneyMoneyCategoryTree(DefaultMainNodeID)
	err := ct.FromTransactions([]Transaction{
		{Category: `Transport\\Fuel`, Amount: -50},
		{Category: `Transport\\Car`, Amount: -20},
	})
	if err != nil {
		t.Fatalf("FromTransactions() unexpected error: %v", err)
	}
	transport, _ := ct.Tree.Find(transportID)
	// Created by the first transaction and untouched by the second.
	if !approxEqual(transport.Value, -50) {
		t.Fatalf("transport value = %v, want -50", transport.Value)
	}
}

func TestFromTransactionsKeepsSameLeafNamesApart(t *testing.T) {
	ct := NewMoneyMoneyCategoryTree(DefaultMainNodeID)
	err := ct.FromTransactions([]Transaction{
		{Category: `Income\\Other`, Amount: 100},
		{Category: `Expenses\\Other`, Amount: -40},
	})
	if err != nil {
		t.Fatalf("FromTransactions() unexpected error: %v", err)
	}
	incomeOther := PathID(`Income\\Other`)
	expenseOther := PathID(`Expenses\\Other`)
	if incomeOther == expenseOther {
		t.Fatal("ids for different parents collide")
	}
	if ct.Categories[incomeOther].Name != "Other" || ct.Categories[expenseOther].Name != "Other" {
		t.Fatal("both categories should be named Other")
	}
}

func TestFromTransactionsCustomSeparator(t *testing.T) {
	ct := NewCategoryTree(7, "Balance", "/")
	if err := ct.FromTransactions([]Transaction{{Category: "Food/Groceries", Amount: -12}}); err != nil {
		t.Fatalf("FromTransactions() unexpected error: %v", err)
	}
	if _, ok := ct.Tree.Find(PathID("Food/Groceries")); !ok {
		t.Fatal("Food/Groceries node missing")
	}
	if ct.MainNodeID() != 7 || ct.Categories[7].Name != "Balance" {
		t.Fatal("main node not configured")
	}
}

func TestSummarize(t *testing.T) {
	jan := time.Date(2024, time.January, 15, 12, 0, 0, 0, time.Local).Unix()
	apr := time.Date(2024, time.April, 2, 12, 0, 0, 0, time.Local).Unix()
	feb := time.Date(2024, time.February, 9, 12, 0, 0, 0, time.Local).Unix()

	s := Summarize([]Transaction{
		{Date: feb, Account: "Checking"},
		{Date: jan, Account: "Credit Card"},
		{Date: apr, Account: "Checking"},
		{Date: apr, Account: ""},
	}, time.Now())

	if s.Count != 4 {
		t.Fatalf("Count = %d, want 4", s.Count)
	}
	if len(s.Accounts) != 2 || s.Accounts[0] != "Checking" || s.Accounts[1] != "Credit Card" {
		t.Fatalf("Accounts = %v, want [Checking Credit Card]", s.Accounts)
	}
	if s.Start.Unix() != jan || s.End.Unix() != apr {
		t.Fatalf("range = %v..%v, want jan..apr", s.Start, s.End)
	}
	if s.Months() != 3 {
		t.Fatalf("Months() = %d, want 3", s.Months())
	}
	if s.ScalingFactor() != 3 {
		t.Fatalf("ScalingFactor() = %v, want 3", s.ScalingFactor())
	}
}

func TestSummarizeEmpty(t *testing.T) {
	now := time.Now()
	s := Summarize(nil, now)
	if s.Months() != 0 || s.ScalingFactor() != 1 {
		t.Fatalf("empty summary months = %d factor = %v, want 0 and 1", s.Months(), s.ScalingFactor())
	}
}

func TestCategoryBudget(t *testing.T) {
	c := &Category{ID: 1}
	if c.HasBudget() {
		t.Fatal("HasBudget() = true without budget")
	}
	v := -5.0
	c.SetBudget(&v)
	if !c.HasBudget() || *c.Budget != 0 {
		t.Fatalf("negative budget stored as %v, want 0", c.Budget)
	}
	nan := math.NaN()
	c.SetBudget(&nan)
	if c.HasBudget() {
		t.Fatal("NaN budget should clear it")
	}

	b := 10.0
	c.SetBudget(&b)
	clone := c.Clone()
	*clone.Budget = 20
	if *c.Budget != 10 {
		t.Fatal("Clone() shares the budget pointer")
	}
}
