package mst

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
)

var ErrPartialTree = errors.New("MST is not complete")

var ErrKeyNotFound = errors.New("MST does not contain key")

var ErrInvalidKey = errors.New("bytestring not a valid MST key")

var ErrInvalidTree = errors.New("invalid MST structure")

// A node in the Merkle Search Tree. The node at the top of the tree
// effectively is the tree.
//
// Trees may be "partial": some children referenced by CID without an
// in-memory Node representation.
type Node struct {
	// ordered list of value entries and child pointers. must be sorted by
	// key at all times, with at most one child entry between value entries.
	Entries []NodeEntry
	// layer of the tree this node sits at; zero is the bottom, the root is
	// the highest layer
	Height int
	// set when the cached CID no longer reflects the entries
	Dirty bool
	// last computed CID of this node's serialized form, if known
	CID *cid.Cid
	// an empty placeholder which only carries the CID of a subtree. used
	// when inverting operations over partial trees.
	Stub bool
}

// A single element of a Node: either a key/CID value, or a pointer down to a
// child node. Not one-to-one with the serialized entry format.
//
// Value entries have Key and Value set. Child entries have Child and/or
// ChildCID set; ChildCID without Child marks a partial tree.
type NodeEntry struct {
	Key      []byte
	Value    *cid.Cid
	ChildCID *cid.Cid
	Child    *Node

	// set when this entry changed since the parent node's CID was computed
	Dirty bool
}

// Returns true if this entry is a key/value pair at the current node.
func (e *NodeEntry) IsValue() bool {
	return len(e.Key) > 0 && e.Value != nil
}

// Returns true if this entry points at a node one layer down.
func (e *NodeEntry) IsChild() bool {
	return e.Child != nil || e.ChildCID != nil
}

func (n *Node) IsEmpty() bool {
	return len(n.Entries) == 0
}

// Checks the node and all reachable children for CID references without a
// loaded Node.
func (n *Node) IsPartial() bool {
	if n.Stub {
		return true
	}
	for _, e := range n.Entries {
		if e.ChildCID != nil && e.Child == nil {
			return true
		}
		if e.Child != nil && e.Child.IsPartial() {
			return true
		}
	}
	return false
}

// Returns a recursive copy of the sub-tree. Mutating the copy never touches
// the original.
func (n *Node) deepCopy() *Node {
	out := Node{
		Entries: make([]NodeEntry, len(n.Entries)),
		Height:  n.Height,
		Dirty:   n.Dirty,
		Stub:    n.Stub,
		CID:     n.CID,
	}
	for i, e := range n.Entries {
		out.Entries[i] = NodeEntry{
			Key:      e.Key,
			Value:    e.Value,
			ChildCID: e.ChildCID,
			Dirty:    e.Dirty,
		}
		if e.Child != nil {
			out.Entries[i].Child = e.Child.deepCopy()
		}
	}
	return &out
}

// Looks for a value entry with the exact key. Returns the entry index, or -1
// if not present at this node.
func (n *Node) findExistingEntry(key []byte) int {
	for i, e := range n.Entries {
		if e.IsValue() && bytes.Equal(key, e.Key) {
			return i
		}
	}
	return -1
}

// Looks for the child entry whose range the key would fall under. Returns -1
// if there is none.
func (n *Node) findExistingChild(key []byte) int {
	idx := -1
	for i, e := range n.Entries {
		if e.IsChild() {
			idx = i
			continue
		}
		if e.IsValue() {
			if bytes.Compare(key, e.Key) <= 0 {
				break
			}
			idx = -1
		}
	}
	return idx
}

// Determines the index where a new entry (value or child) for the key would
// be inserted.
//
// If the key would land inside an existing child entry's range, the index of
// that entry is returned with the split flag set. If the entry would be
// appended, the returned index is one past the current last index.
func (n *Node) findInsertionIndex(key []byte) (idx int, split bool, retErr error) {
	if n.Stub {
		return -1, false, fmt.Errorf("%w: can't determine insertion order", ErrPartialTree)
	}
	for i, e := range n.Entries {
		if e.IsValue() {
			if bytes.Compare(key, e.Key) < 0 {
				return i, false, nil
			}
		}
		if e.IsChild() {
			// if the next entry is a value the key sorts after, the whole
			// child can be skipped without loading it
			if i+1 < len(n.Entries) {
				next := n.Entries[i+1]
				if next.IsValue() && bytes.Compare(key, next.Key) > 0 {
					continue
				}
			}
			if e.Child == nil {
				return -1, false, fmt.Errorf("%w: can't determine insertion order", ErrPartialTree)
			}
			order, err := e.Child.compareKey(key, false)
			if err != nil {
				return -1, false, err
			}
			if order < 0 {
				// key sorts before the entire child sub-tree
				return i, false, nil
			}
			if order > 0 {
				// key sorts after the entire child sub-tree
				continue
			}
			// key falls inside the child sub-tree
			return i, true, nil
		}
	}

	// append after everything
	return len(n.Entries), false, nil
}

// Compares a key against the full range of keys covered by a node. Returns
// -1 if the key sorts below all keys (recursively) under the node, 1 if
// above, and 0 if the key falls within the node's range.
//
// With markDirty set, this node and any children consulted to establish the
// ordering get their Dirty flag set. That selects them as "proof" nodes for
// invertible diffs.
func (n *Node) compareKey(key []byte, markDirty bool) (int, error) {
	if n.Stub {
		return -1, ErrPartialTree
	}
	if n.IsEmpty() {
		return 0, fmt.Errorf("can't determine key range of empty MST node")
	}
	if markDirty {
		n.Dirty = true
	}
	// below this entire node?
	e := n.Entries[0]
	if e.IsValue() && bytes.Compare(key, e.Key) < 0 {
		return -1, nil
	}
	// above this entire node?
	e = n.Entries[len(n.Entries)-1]
	if e.IsValue() && bytes.Compare(key, e.Key) > 0 {
		return 1, nil
	}
	for i, e := range n.Entries {
		if e.IsValue() && bytes.Compare(key, e.Key) < 0 {
			// no need to recurse further
			return 0, nil
		}
		if e.IsChild() {
			// skip the child when the next value entry already sorts below
			// the key
			if i+1 < len(n.Entries) {
				next := n.Entries[i+1]
				if next.IsValue() && bytes.Compare(key, next.Key) > 0 {
					continue
				}
			}
			if e.Child == nil {
				return 0, fmt.Errorf("%w: can't compare key order recursively", ErrPartialTree)
			}
			order, err := e.Child.compareKey(key, markDirty)
			if err != nil {
				return 0, err
			}
			if i == 0 && order < 0 {
				return -1, nil
			}
			if i == len(n.Entries)-1 && order > 0 {
				return 1, nil
			}
			return 0, nil
		}
	}
	return 0, nil
}

// Reads the value (CID) stored under the key. Returns (nil, nil) when the
// key is not in the sub-tree.
//
// height: tree height corresponding to the key; pass -1 to have it computed
func (n *Node) getCID(key []byte, height int) (*cid.Cid, error) {
	if n.Stub {
		return nil, ErrPartialTree
	}
	if height < 0 {
		height = HeightForKey(key)
	}

	if height > n.Height {
		// key would live above this node; not in tree
		return nil, nil
	}

	if height < n.Height {
		// descend to a child node
		idx := n.findExistingChild(key)
		if idx >= 0 {
			if n.Entries[idx].Child == nil {
				return nil, fmt.Errorf("could not search for key: %w", ErrPartialTree)
			}
			return n.Entries[idx].Child.getCID(key, height)
		}
		return nil, nil
	}

	// search at this height
	idx := n.findExistingEntry(key)
	if idx >= 0 {
		return n.Entries[idx].Value, nil
	}
	return nil, nil
}

// Recursively writes all key/CID pairs under the node into the map. The map
// must be initialized by the caller.
func (n *Node) writeToMap(m map[string]cid.Cid) error {
	if m == nil {
		return fmt.Errorf("un-initialized map as an argument")
	}
	if n == nil {
		return fmt.Errorf("nil tree pointer")
	}
	if n.Stub {
		return fmt.Errorf("failed to export MST structure as map: %w", ErrPartialTree)
	}
	for _, e := range n.Entries {
		if e.IsValue() {
			m[string(e.Key)] = *e.Value
		}
		if e.IsChild() {
			if e.Child == nil {
				return fmt.Errorf("failed to export MST structure as map: %w", ErrPartialTree)
			}
			if err := e.Child.writeToMap(m); err != nil {
				return err
			}
		}
	}
	return nil
}
