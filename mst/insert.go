package mst

import (
	"fmt"
	"slices"

	"github.com/ipfs/go-cid"
)

// Adds a key/CID entry to the sub-tree under this node, returning the new
// sub-tree root and the previous value for the key (if any).
//
// If the key already holds the exact same value, the tree is left untouched
// (not marked dirty) and val is returned as the previous value.
//
// height: layer to insert at, derived from the key; pass -1 to compute
func (n *Node) insert(key []byte, val cid.Cid, height int) (*Node, *cid.Cid, error) {
	if n == nil {
		return nil, nil, fmt.Errorf("operating on nil tree/node")
	}
	if n.Stub {
		return nil, nil, ErrPartialTree
	}
	if height < 0 {
		height = HeightForKey(key)
	}

	if height > n.Height {
		// key lives above this node; grow the tree with a new parent,
		// possibly splitting this node
		return n.insertParent(key, val, height)
	}

	if height < n.Height {
		// key lives below; descend
		return n.insertChild(key, val, height)
	}

	// look for an existing entry at this layer
	idx := n.findExistingEntry(key)
	if idx >= 0 {
		e := n.Entries[idx]
		if *e.Value == val {
			// no-op
			return n, &val, nil
		}
		// update in place
		prev := e.Value
		n.Entries[idx].Value = &val
		n.Entries[idx].Dirty = true
		n.Dirty = true
		return n, prev, nil
	}

	idx, split, err := n.findInsertionIndex(key)
	if err != nil {
		return nil, nil, err
	}
	n.Dirty = true
	newEntry := NodeEntry{
		Key:   key,
		Value: &val,
		Dirty: true,
	}

	if !split {
		if idx >= len(n.Entries) {
			n.Entries = append(n.Entries, newEntry)
		} else {
			n.Entries = slices.Insert(n.Entries, idx, newEntry)
		}
		return n, nil, nil
	}

	// the key falls inside an existing child's range; split that child in
	// two around the key
	e := n.Entries[idx]
	left, right, err := e.Child.split(key)
	if err != nil {
		return nil, nil, err
	}
	// replace the child entry with left / value / right
	n.Entries = slices.Delete(n.Entries, idx, idx+1)
	n.Entries = slices.Insert(
		n.Entries,
		idx,
		NodeEntry{Child: left, Dirty: true},
		newEntry,
		NodeEntry{Child: right, Dirty: true},
	)
	return n, nil, nil
}

// splits the entry list in two at idx; both halves must be non-empty
func (n *Node) splitEntries(idx int) (*Node, *Node, error) {
	if idx == 0 || idx >= len(n.Entries) {
		return nil, nil, fmt.Errorf("splitting at one end or the other of entries")
	}
	left := Node{
		Height:  n.Height,
		Dirty:   true,
		Entries: n.Entries[:idx],
	}
	right := Node{
		Height: n.Height,
		Dirty:  true,
		// must not alias the left half's backing array
		Entries: append([]NodeEntry{}, n.Entries[idx:]...),
	}
	if left.IsEmpty() || right.IsEmpty() {
		return nil, nil, fmt.Errorf("one of the legs is empty (idx=%d, len=%d)", idx, len(n.Entries))
	}
	return &left, &right, nil
}

// Splits the sub-tree in two around the key, recursing into children when the
// key lands inside a child's range.
func (n *Node) split(key []byte) (*Node, *Node, error) {
	if n.IsEmpty() {
		return nil, nil, fmt.Errorf("tried to split an empty node")
	}

	idx, split, err := n.findInsertionIndex(key)
	if err != nil {
		return nil, nil, err
	}
	if !split {
		// clean split between entries
		return n.splitEntries(idx)
	}

	// split the straddling child first, then build the two halves around it
	e := n.Entries[idx]
	lowerLeft, lowerRight, err := e.Child.split(key)
	if err != nil {
		return nil, nil, err
	}
	left := &Node{
		Height:  n.Height,
		Dirty:   true,
		Entries: []NodeEntry{},
	}
	left.Entries = append(left.Entries, n.Entries[:idx]...)
	left.Entries = append(left.Entries, NodeEntry{Child: lowerLeft, Dirty: true})
	right := &Node{
		Height:  n.Height,
		Dirty:   true,
		Entries: []NodeEntry{{Child: lowerRight, Dirty: true}},
	}
	if idx+1 < len(n.Entries) {
		right.Entries = append(right.Entries, n.Entries[idx+1:]...)
	}
	return left, right, nil
}

// adds a parent node above this one, then inserts through it
func (n *Node) insertParent(key []byte, val cid.Cid, height int) (*Node, *cid.Cid, error) {
	var parent *Node
	if n.IsEmpty() {
		// replace an empty root directly at the target height
		parent = &Node{
			Height: height,
			Dirty:  true,
		}
	} else {
		// push a single layer and recurse
		parent = &Node{
			Height: n.Height + 1,
			Dirty:  true,
			Entries: []NodeEntry{{
				Child: n,
				Dirty: true,
			}},
		}
	}
	// regular insertion handles any further growth or splitting
	return parent.insert(key, val, height)
}

// inserts below this node, reusing an existing child entry or creating one
func (n *Node) insertChild(key []byte, val cid.Cid, height int) (*Node, *cid.Cid, error) {
	// an existing child covering the key's range?
	idx := n.findExistingChild(key)
	if idx >= 0 {
		e := n.Entries[idx]
		if e.Child == nil {
			return nil, nil, fmt.Errorf("could not insert key: %w", ErrPartialTree)
		}
		newChild, prev, err := e.Child.insert(key, val, height)
		if err != nil {
			return nil, nil, err
		}
		if prev != nil && *prev == val {
			// no-op
			return n, &val, nil
		}
		n.Dirty = true
		n.Entries[idx].Child = newChild
		n.Entries[idx].Dirty = true
		return n, prev, nil
	}

	// create a new child node; recursion covers the case of the key living
	// more than one layer down
	idx, split, err := n.findInsertionIndex(key)
	if err != nil {
		return nil, nil, err
	}
	if split {
		return nil, nil, fmt.Errorf("unexpected split when inserting child")
	}
	n.Dirty = true
	newChild := &Node{
		Height: n.Height - 1,
		Dirty:  true,
	}
	newChild, _, err = newChild.insert(key, val, height)
	if err != nil {
		return nil, nil, err
	}
	newEntry := NodeEntry{
		Child: newChild,
		Dirty: true,
	}
	if idx == len(n.Entries) {
		n.Entries = append(n.Entries, newEntry)
	} else {
		n.Entries = slices.Insert(n.Entries, idx, newEntry)
	}
	return n, nil, nil
}
