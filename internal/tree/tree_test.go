package tree

import (
	"slices"
	"testing"
)

// 1
// ├── 2
// │   ├── 4
// │   └── 5
// └── 3
//     └── 6
func sampleTree(t *testing.T) *Tree {
	t.Helper()
	tr := New(1, 0)
	inserts := [][3]int64{
		{1, 2, 0},
		{1, 3, 0},
		{2, 4, 10},
		{2, 5, -4},
		{3, 6, 7},
	}
	for _, in := range inserts {
		if !tr.Insert(in[0], in[1], float64(in[2])) {
			t.Fatalf("Insert(%d, %d) = false, want true", in[0], in[1])
		}
	}
	return tr
}

func keys(seq func(func(*Node) bool)) []int64 {
	var out []int64
	for n := range seq {
		out = append(out, n.Key)
	}
	return out
}

func TestPreOrder(t *testing.T) {
	tr := sampleTree(t)
	got := keys(tr.PreOrder(nil))
	want := []int64{1, 2, 4, 5, 3, 6}
	if !slices.Equal(got, want) {
		t.Fatalf("PreOrder() = %v, want %v", got, want)
	}
}

func TestPostOrder(t *testing.T) {
	tr := sampleTree(t)
	got := keys(tr.PostOrder(nil))
	want := []int64{4, 5, 2, 6, 3, 1}
	if !slices.Equal(got, want) {
		t.Fatalf("PostOrder() = %v, want %v", got, want)
	}
}

func TestTraversalFromInnerNode(t *testing.T) {
	tr := sampleTree(t)
	node, ok := tr.Find(2)
	if !ok {
		t.Fatal("Find(2) ok = false, want true")
	}
	if got, want := keys(tr.PostOrder(node)), []int64{4, 5, 2}; !slices.Equal(got, want) {
		t.Fatalf("PostOrder(2) = %v, want %v", got, want)
	}
	if got, want := keys(tr.PreOrder(node)), []int64{2, 4, 5}; !slices.Equal(got, want) {
		t.Fatalf("PreOrder(2) = %v, want %v", got, want)
	}
}

func TestTraversalIsRestartable(t *testing.T) {
	tr := sampleTree(t)
	seq := tr.PreOrder(nil)
	first := keys(seq)
	second := keys(seq)
	if !slices.Equal(first, second) {
		t.Fatalf("second pass = %v, want %v", second, first)
	}
}

func TestTraversalStopsOnBreak(t *testing.T) {
	tr := sampleTree(t)
	visited := 0
	for n := range tr.PreOrder(nil) {
		visited++
		if n.Key == 4 {
			break
		}
	}
	if visited != 3 {
		t.Fatalf("visited = %d, want 3", visited)
	}
}

func TestInsertUnknownParent(t *testing.T) {
	tr := sampleTree(t)
	if tr.Insert(99, 100, 1) {
		t.Fatal("Insert() under missing parent = true, want false")
	}
	if tr.Len() != 6 {
		t.Fatalf("Len() = %d, want 6", tr.Len())
	}
}

func TestInsertSetsParent(t *testing.T) {
	tr := sampleTree(t)
	node, _ := tr.Find(6)
	if node.Parent == nil || node.Parent.Key != 3 {
		t.Fatalf("Find(6).Parent = %+v, want key 3", node.Parent)
	}
	if tr.Root().Parent != nil {
		t.Fatal("Root().Parent != nil")
	}
}

func TestFindMissing(t *testing.T) {
	tr := sampleTree(t)
	if _, ok := tr.Find(42); ok {
		t.Fatal("Find(42) ok = true, want false")
	}
}

func TestRemove(t *testing.T) {
	tr := sampleTree(t)
	if !tr.Remove(2) {
		t.Fatal("Remove(2) = false, want true")
	}
	if got, want := keys(tr.PreOrder(nil)), []int64{1, 3, 6}; !slices.Equal(got, want) {
		t.Fatalf("PreOrder() after Remove = %v, want %v", got, want)
	}
	if tr.Remove(2) {
		t.Fatal("second Remove(2) = true, want false")
	}
	if tr.Remove(1) {
		t.Fatal("Remove(root) = true, want false")
	}
}

func TestLeafHelpers(t *testing.T) {
	tr := sampleTree(t)
	leaf, _ := tr.Find(4)
	if !leaf.IsLeaf() || leaf.HasChildren() {
		t.Fatal("node 4 should be a leaf")
	}
	if tr.Root().IsLeaf() {
		t.Fatal("root should not be a leaf")
	}
}
