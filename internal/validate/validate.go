package validate

import (
	"math"

	"github.com/lachiem1/cashflow/internal/currency"
	"github.com/lachiem1/cashflow/internal/ledger"
	"github.com/lachiem1/cashflow/internal/settings"
)

const WarningSign = "⚠️ "

type Validator interface {
	Valid() bool
	Message() string
}

// BudgetValidator checks a displayed value against an optional budget.
type BudgetValidator struct {
	Value    float64
	Budget   *float64
	Currency string
}

func (v BudgetValidator) Valid() bool {
	if v.Budget == nil || math.IsNaN(*v.Budget) {
		return true
	}
	return v.Value <= *v.Budget
}

func (v BudgetValidator) Message() string {
	if v.Valid() {
		return ""
	}
	return "Budget exceeded by " + currency.Format(v.Value-*v.Budget, v.Currency)
}

// NodeValidator runs every validator attached to one chart node.
type NodeValidator struct {
	validators []Validator
}

func NewNodeValidator(validators ...Validator) *NodeValidator {
	return &NodeValidator{validators: validators}
}

func (n *NodeValidator) Add(v Validator) {
	n.validators = append(n.validators, v)
}

func (n *NodeValidator) Validate() bool {
	for _, v := range n.validators {
		if !v.Valid() {
			return false
		}
	}
	return true
}

// Messages lists the messages of failing validators, each prefixed with a
// warning sign.
func (n *NodeValidator) Messages() []string {
	var out []string
	for _, v := range n.validators {
		if v.Valid() {
			continue
		}
		out = append(out, WarningSign+v.Message())
	}
	return out
}

// ForNode builds the validator for a node value. The budget is compared
// against the magnitude the chart shows, i.e. after scaling.
func ForNode(value float64, category *ledger.Category, cfg *settings.Config) *NodeValidator {
	n := NewNodeValidator()
	if category == nil || !category.HasBudget() {
		return n
	}
	scaling := cfg.ScalingFactor
	if scaling <= 0 {
		scaling = 1
	}
	n.Add(BudgetValidator{
		Value:    math.Abs(value) / scaling,
		Budget:   category.Budget,
		Currency: cfg.Currency,
	})
	return n
}
