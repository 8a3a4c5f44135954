package mst

import (
	"fmt"

	"github.com/ipfs/go-cid"
)

// Returns a new tree containing no keys: a single empty node at height zero.
// Note that the empty tree still has a well-defined root CID.
func NewEmptyTree() *Node {
	return &Node{
		Dirty:  true,
		Height: 0,
	}
}

// Adds a key/CID entry to the tree, returning the new root node and the
// previous value for the key (if any).
//
// If the key already holds the exact same value the call is a no-op, and val
// is returned as the previous value.
func Insert(n *Node, key []byte, val cid.Cid, height int) (*Node, *cid.Cid, error) {
	if !IsValidKey(key) {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return n.insert(key, val, height)
}

// Removes a key from the tree, returning the new root node and the removed
// CID value. Removal of a missing key is a no-op with a nil previous value.
func Remove(n *Node, key []byte, height int) (*Node, *cid.Cid, error) {
	return n.remove(key, height)
}

// Reads the value (CID) stored under the key. Returns (nil, nil) when the
// key is not in the tree.
func Get(n *Node, key []byte, height int) (*cid.Cid, error) {
	return n.getCID(key, height)
}

// Builds a tree from scratch out of a map of key/CID pairs. The resulting
// root is independent of map iteration order.
func NewTreeFromMap(m map[string]cid.Cid) (*Node, error) {
	if m == nil {
		return nil, fmt.Errorf("un-initialized map as an argument")
	}
	n := NewEmptyTree()
	var err error
	for key, val := range m {
		n, _, err = Insert(n, []byte(key), val, -1)
		if err != nil {
			return nil, fmt.Errorf("unexpected failure to build MST structure: %w", err)
		}
	}
	return n, nil
}

// Walks the tree and writes all key/CID pairs into the map. The map is
// mutated in place and must be initialized by the caller.
func ReadTreeToMap(n *Node, m map[string]cid.Cid) error {
	return n.writeToMap(m)
}
