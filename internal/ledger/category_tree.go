package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lachiem1/cashflow/internal/tree"
)

const (
	// MoneyMoneySeparator separates category path segments in MoneyMoney exports.
	MoneyMoneySeparator = `\\`
	// DisplaySeparator joins path segments for humans.
	DisplaySeparator = " » "
	DefaultMainNodeID int64 = 1
	DefaultMainName         = "Saldo"
)

var ErrInsertParent = errors.New("category parent missing from tree")

// CategoryTree aggregates transactions into a tree of categories. Leaves hold
// summed transaction amounts; inner node values are not meaningful until the
// aggregation engine recomputes them.
type CategoryTree struct {
	Categories map[int64]*Category
	Tree       *tree.Tree
	separator  string
}

func NewCategoryTree(mainNodeID int64, mainName, separator string) *CategoryTree {
	if separator == "" {
		separator = MoneyMoneySeparator
	}
	return &CategoryTree{
		Categories: map[int64]*Category{
			mainNodeID: {ID: mainNodeID, Name: mainName, Path: mainName, Active: true},
		},
		Tree:      tree.New(mainNodeID, 0),
		separator: separator,
	}
}

func NewMoneyMoneyCategoryTree(mainNodeID int64) *CategoryTree {
	return NewCategoryTree(mainNodeID, DefaultMainName, MoneyMoneySeparator)
}

func (c *CategoryTree) Separator() string {
	return c.separator
}

func (c *CategoryTree) MainNodeID() int64 {
	return c.Tree.Root().Key
}

// FromTransactions walks every transaction's category path and creates one
// node per distinct path prefix. Ids are derived from the cumulative prefix,
// so equal leaf names below different parents stay apart.
func (c *CategoryTree) FromTransactions(transactions []Transaction) error {
	for _, tx := range transactions {
		parentID := c.Tree.Root().Key
		segments := strings.Split(tx.Category, c.separator)
		for i, name := range segments {
			subPath := strings.Join(segments[:i+1], c.separator)
			id := PathID(subPath)

			node, exists := c.Tree.Find(id)
			switch {
			case !exists:
				if !c.Tree.Insert(parentID, id, tx.Amount) {
					return fmt.Errorf("insert category %q under %d: %w", subPath, parentID, ErrInsertParent)
				}
				c.Categories[id] = &Category{
					ID:     id,
					Name:   name,
					Path:   strings.Join(segments[:i+1], DisplaySeparator),
					Active: true,
				}
			case subPath == tx.Category:
				node.Value += tx.Amount
			}

			parentID = id
		}
	}
	return nil
}

// Build creates a category tree and fills it from transactions.
func Build(mainNodeID int64, mainName, separator string, transactions []Transaction) (*CategoryTree, error) {
	ct := NewCategoryTree(mainNodeID, mainName, separator)
	if err := ct.FromTransactions(transactions); err != nil {
		return nil, err
	}
	return ct, nil
}
