package sankey

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// SankeymaticExport renders every non-root node as one SankeyMATIC flow
// line, "<source> [<amount>] <target>", in pre-order. Inactive and below
// threshold nodes are included; amounts are divided by scaling.
func (e *Engine) SankeymaticExport(scaling float64) string {
	if scaling <= 0 {
		scaling = 1
	}
	e.Recompute()

	var b strings.Builder
	root := e.tree.Root()
	for n := range e.tree.PreOrder(nil) {
		if n == root || n.Parent == nil {
			continue
		}
		parent := e.categoryName(n.Parent.Key)
		name := e.categoryName(n.Key)
		from, to := name, parent
		if n.Value < 0 {
			from, to = parent, name
		}
		amount := decimal.NewFromFloat(math.Abs(n.Value) / scaling).StringFixed(2)
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s [%s] %s", from, amount, to)
	}
	return b.String()
}

func (e *Engine) categoryName(id int64) string {
	if cat := e.cfg.Category(id); cat != nil {
		return cat.Name
	}
	return formatID(id)
}
