package mst

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/ipfs/go-cid"
)

// Removes a key from the sub-tree under this node, returning the new
// sub-tree root and the removed CID value. If the key is not present, the
// sub-tree is returned unchanged with a nil previous value.
//
// height: layer the key lives at; pass -1 to compute (which also marks this
// call as the top of the tree, enabling root trimming)
func (n *Node) remove(key []byte, height int) (*Node, *cid.Cid, error) {
	if n.Stub {
		return nil, nil, ErrPartialTree
	}
	top := false
	if height < 0 {
		top = true
		height = HeightForKey(key)
	}

	if height > n.Height {
		// key would live above this node; not in tree
		return n, nil, nil
	}

	if height < n.Height {
		return n.removeChild(key, height)
	}

	// look at this layer
	idx := n.findExistingEntry(key)
	if idx < 0 {
		return n, nil, nil
	}

	n.Dirty = true
	prev := n.Entries[idx].Value

	// removing a value between two children un-splits them; merge
	if idx > 0 && idx+1 < len(n.Entries) && n.Entries[idx-1].IsChild() && n.Entries[idx+1].IsChild() {
		if n.Entries[idx-1].Child == nil || n.Entries[idx+1].Child == nil {
			return nil, nil, fmt.Errorf("can not merge child nodes: %w", ErrPartialTree)
		}
		merged, err := mergeNodes(n.Entries[idx-1].Child, n.Entries[idx+1].Child)
		if err != nil {
			return nil, nil, err
		}
		n.Entries = slices.Delete(n.Entries, idx, idx+2)
		n.Entries[idx-1] = NodeEntry{Child: merged, Dirty: true}
	} else {
		n.Entries = slices.Delete(n.Entries, idx, idx+1)
	}

	// mark adjacent nodes dirty so they get included as deletion "proof"
	markDeletionProof(n, key)

	// trim the top of the tree while the root is a bare pointer
	if top {
		for {
			if len(n.Entries) != 1 || !n.Entries[0].IsChild() {
				break
			}
			if n.Entries[0].Child == nil {
				// partial tree: the trimmed root is only known by CID
				if n.Entries[0].ChildCID == nil {
					return nil, nil, fmt.Errorf("can not prune top of tree: %w", ErrPartialTree)
				}
				n = &Node{
					Height: n.Height - 1,
					Stub:   true,
					CID:    n.Entries[0].ChildCID,
				}
			} else {
				n = n.Entries[0].Child
			}
		}
	}
	return n, prev, nil
}

// Marks the nodes needed to demonstrate where the key used to sit: every
// node consulted to establish key order around the deletion point.
func markDeletionProof(n *Node, key []byte) error {
	for i, e := range n.Entries {
		if e.IsValue() {
			if bytes.Compare(key, e.Key) < 0 {
				return nil
			}
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
				return fmt.Errorf("can't prove deletion: %w", ErrPartialTree)
			}
			order, err := e.Child.compareKey(key, true)
			if err != nil {
				return err
			}
			if order > 0 {
				continue
			}
			if order < 0 {
				return nil
			}
			return markDeletionProof(e.Child, key)
		}
	}
	return nil
}

// Joins two sibling nodes at the same height into one, merging their
// boundary children recursively when both ends are child entries.
func mergeNodes(left *Node, right *Node) (*Node, error) {
	idx := len(left.Entries)
	n := &Node{
		Height:  left.Height,
		Dirty:   true,
		Entries: append(left.Entries, right.Entries...),
	}
	if n.Entries[idx-1].IsChild() && n.Entries[idx].IsChild() {
		lowerLeft := n.Entries[idx-1]
		lowerRight := n.Entries[idx]
		if lowerLeft.Child == nil || lowerRight.Child == nil {
			return nil, fmt.Errorf("can not merge child nodes: %w", ErrPartialTree)
		}
		lowerMerged, err := mergeNodes(lowerLeft.Child, lowerRight.Child)
		if err != nil {
			return nil, err
		}
		n.Entries[idx-1] = NodeEntry{Child: lowerMerged, Dirty: true}
		n.Entries = slices.Delete(n.Entries, idx, idx+1)
	}
	return n, nil
}

func (n *Node) removeChild(key []byte, height int) (*Node, *cid.Cid, error) {
	idx := n.findExistingChild(key)
	if idx < 0 {
		// no child covering the key; not in tree
		return n, nil, nil
	}

	e := n.Entries[idx]
	if e.Child == nil {
		return nil, nil, fmt.Errorf("could not remove key: %w", ErrPartialTree)
	}
	newChild, prev, err := e.Child.remove(key, height)
	if err != nil {
		return nil, nil, err
	}
	if prev == nil {
		// no-op
		return n, nil, nil
	}

	if !newChild.IsEmpty() {
		n.Dirty = true
		n.Entries[idx].Child = newChild
		n.Entries[idx].Dirty = true
		return n, prev, nil
	}

	// the child emptied out entirely; drop the entry
	n.Dirty = true
	n.Entries = slices.Delete(n.Entries, idx, idx+1)
	return n, prev, nil
}
