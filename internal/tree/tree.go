package tree

import "iter"

// Node is one entry of the tree. Value of an inner node is derived from its
// children and gets overwritten whenever the owner recomputes it.
type Node struct {
	Key      int64
	Value    float64
	Parent   *Node
	Children []*Node
}

func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

func (n *Node) HasChildren() bool {
	return !n.IsLeaf()
}

// Tree is an ordered n-ary tree with integer keys. Keys are assumed to be
// unique across the whole tree.
type Tree struct {
	root *Node
}

func New(rootKey int64, rootValue float64) *Tree {
	return &Tree{root: &Node{Key: rootKey, Value: rootValue}}
}

func (t *Tree) Root() *Node {
	return t.root
}

// PreOrder yields node and then its descendants, children in insertion order.
// A nil node starts at the root.
func (t *Tree) PreOrder(node *Node) iter.Seq[*Node] {
	if node == nil {
		node = t.root
	}
	return func(yield func(*Node) bool) {
		preOrder(node, yield)
	}
}

// PostOrder yields the descendants of node before node itself.
// A nil node starts at the root.
func (t *Tree) PostOrder(node *Node) iter.Seq[*Node] {
	if node == nil {
		node = t.root
	}
	return func(yield func(*Node) bool) {
		postOrder(node, yield)
	}
}

func preOrder(node *Node, yield func(*Node) bool) bool {
	if !yield(node) {
		return false
	}
	for _, child := range node.Children {
		if !preOrder(child, yield) {
			return false
		}
	}
	return true
}

func postOrder(node *Node, yield func(*Node) bool) bool {
	for _, child := range node.Children {
		if !postOrder(child, yield) {
			return false
		}
	}
	return yield(node)
}

// Find returns the first node in pre-order with the given key.
func (t *Tree) Find(key int64) (*Node, bool) {
	for node := range t.PreOrder(nil) {
		if node.Key == key {
			return node, true
		}
	}
	return nil, false
}

// Insert appends a new child under the node keyed parentKey. It reports false
// when the parent does not exist.
func (t *Tree) Insert(parentKey, key int64, value float64) bool {
	parent, ok := t.Find(parentKey)
	if !ok {
		return false
	}
	parent.Children = append(parent.Children, &Node{Key: key, Value: value, Parent: parent})
	return true
}

// Remove detaches the first child keyed key, searching parents in pre-order.
func (t *Tree) Remove(key int64) bool {
	for node := range t.PreOrder(nil) {
		for i, child := range node.Children {
			if child.Key != key {
				continue
			}
			node.Children = append(node.Children[:i:i], node.Children[i+1:]...)
			child.Parent = nil
			return true
		}
	}
	return false
}

// Len returns the number of nodes including the root.
func (t *Tree) Len() int {
	n := 0
	for range t.PreOrder(nil) {
		n++
	}
	return n
}
