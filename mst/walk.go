package mst

import (
	"errors"

	"github.com/ipfs/go-cid"
)

// Walk callbacks return this sentinel to stop the walk early without
// surfacing an error.
var ErrDoneIterating = errors.New("done iterating")

// Visits every key/CID pair in the sub-tree, in key order. The walk stops
// (without error) when the callback returns ErrDoneIterating.
func WalkLeaves(n *Node, fn func(key []byte, val cid.Cid) error) error {
	err := walkLeavesFrom(n, nil, fn)
	if errors.Is(err, ErrDoneIterating) {
		return nil
	}
	return err
}

// Visits every key/CID pair with key greater than or equal to from, in key
// order. The walk stops (without error) when the callback returns
// ErrDoneIterating.
func (t *Tree) WalkLeavesFrom(from string, fn func(key string, val cid.Cid) error) error {
	if t.Root == nil {
		return errors.New("nil tree pointer")
	}
	err := walkLeavesFrom(t.Root, []byte(from), func(key []byte, val cid.Cid) error {
		return fn(string(key), val)
	})
	if errors.Is(err, ErrDoneIterating) {
		return nil
	}
	return err
}

func walkLeavesFrom(n *Node, from []byte, fn func(key []byte, val cid.Cid) error) error {
	if n.Stub {
		return ErrPartialTree
	}
	for i, e := range n.Entries {
		if e.IsChild() {
			// skip the sub-tree entirely when the next value entry already
			// sorts below the starting key
			if from != nil && i+1 < len(n.Entries) {
				next := n.Entries[i+1]
				if next.IsValue() && string(from) > string(next.Key) {
					continue
				}
			}
			if e.Child == nil {
				return ErrPartialTree
			}
			if err := walkLeavesFrom(e.Child, from, fn); err != nil {
				return err
			}
		} else if e.IsValue() {
			if from != nil && string(e.Key) < string(from) {
				continue
			}
			if err := fn(e.Key, *e.Value); err != nil {
				return err
			}
		}
	}
	return nil
}
