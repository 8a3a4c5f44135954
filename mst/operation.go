package mst

import (
	"fmt"
	"sort"

	"github.com/ipfs/go-cid"
)

// Metadata about an update to a single key in the tree. Used when creating
// or validating commit diffs.
type Operation struct {
	// key of the record, eg '{collection}/{record-key}'
	Path string
	// new record CID value (nil for a deletion)
	Value *cid.Cid
	// previous record CID value (nil for a creation)
	Prev *cid.Cid
}

func (op *Operation) IsCreate() bool {
	return op.Value != nil && op.Prev == nil
}

func (op *Operation) IsUpdate() bool {
	return op.Value != nil && op.Prev != nil && *op.Value != *op.Prev
}

func (op *Operation) IsDelete() bool {
	return op.Value == nil && op.Prev != nil
}

// Mutates the tree, returning the new root and the full Operation with the
// previous value filled in.
func ApplyOp(n *Node, path string, val *cid.Cid) (*Node, *Operation, error) {
	if val != nil {
		n, prev, err := Insert(n, []byte(path), *val, -1)
		if err != nil {
			return nil, nil, err
		}
		op := &Operation{
			Path:  path,
			Value: val,
			Prev:  prev,
		}
		return n, op, nil
	}
	n, prev, err := Remove(n, []byte(path), -1)
	if err != nil {
		return nil, nil, err
	}
	op := &Operation{
		Path:  path,
		Value: nil,
		Prev:  prev,
	}
	return n, op, nil
}

// Does a simple "forwards" (not inversion) check that the tree state agrees
// with the operation.
func CheckOp(n *Node, op *Operation) error {
	val, err := Get(n, []byte(op.Path), -1)
	if err != nil {
		return err
	}
	if op.IsCreate() || op.IsUpdate() {
		if val == nil || *val != *op.Value {
			return fmt.Errorf("tree value did not match op: %s %s", op.Path, val)
		}
		return nil
	}
	if op.IsDelete() {
		if val != nil {
			return fmt.Errorf("key still in tree after deletion op: %s", op.Path)
		}
		return nil
	}
	return fmt.Errorf("invalid operation")
}

// Applies the inversion of the operation to the tree, returning the new
// root. Fails if the tree state contradicts the operation.
//
// Operates on a copy of the tree: on failure the original root is untouched,
// with no partially-applied mutation.
func InvertOp(n *Node, op *Operation) (*Node, error) {
	n = n.deepCopy()
	if op.IsCreate() {
		n, prev, err := Remove(n, []byte(op.Path), -1)
		if err != nil {
			return nil, fmt.Errorf("failed to invert op: %w", err)
		}
		if prev == nil || *prev != *op.Value {
			return nil, fmt.Errorf("failed to invert creation: previous record CID didn't match")
		}
		return n, nil
	}
	if op.IsUpdate() {
		n, prev, err := Insert(n, []byte(op.Path), *op.Prev, -1)
		if err != nil {
			return nil, fmt.Errorf("failed to invert op: %w", err)
		}
		if prev == nil || *prev != *op.Value {
			return nil, fmt.Errorf("failed to invert update: previous record CID didn't match")
		}
		return n, nil
	}
	if op.IsDelete() {
		n, prev, err := Insert(n, []byte(op.Path), *op.Prev, -1)
		if err != nil {
			return nil, fmt.Errorf("failed to invert op: %w", err)
		}
		if prev != nil {
			return nil, fmt.Errorf("failed to invert deletion: key was previously in tree")
		}
		return n, nil
	}
	return nil, fmt.Errorf("invalid operation")
}

type opByPath []Operation

func (a opByPath) Len() int      { return len(a) }
func (a opByPath) Swap(i, j int) { a[i], a[j] = a[j], a[i] }

func (a opByPath) Less(i, j int) bool {
	// deletions first, then by path
	if a[i].IsDelete() != a[j].IsDelete() {
		return a[i].IsDelete()
	}
	return a[i].Path < a[j].Path
}

// Re-orders an operation list into the canonical application order
// (deletions first, then by path), rejecting duplicate paths.
func NormalizeOps(list []Operation) ([]Operation, error) {
	set := map[string]bool{}
	for _, op := range list {
		if set[op.Path] {
			return nil, fmt.Errorf("duplicate path in operation list")
		}
		set[op.Path] = true
	}

	sort.Sort(opByPath(list))
	return list, nil
}
