package sankey

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/lachiem1/cashflow/internal/settings"
)

// SortEdges orders edges in place. SortByPath uses locale collation on the
// category path, SortByAmount sorts by the signed real amount ascending so
// the largest outflows come first.
func SortEdges(edges []Edge, key settings.SortKey) {
	switch key {
	case settings.SortByAmount:
		sort.SliceStable(edges, func(i, j int) bool {
			return edges[i].Custom.Real < edges[j].Custom.Real
		})
	default:
		col := collate.New(language.Und)
		sort.SliceStable(edges, func(i, j int) bool {
			return col.CompareString(edgePath(edges[i]), edgePath(edges[j])) < 0
		})
	}
}

func edgePath(e Edge) string {
	if e.Custom.Category == nil {
		return ""
	}
	return e.Custom.Category.Path
}
