package mst

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
)

// A complete or partial tree bound to the blockstore its nodes live in.
// Mutations are copy-on-write at the CID level: a mutation marks the path to
// the root dirty, and CIDs are recomputed lazily.
//
// Not safe for concurrent mutation; synchronization is up to the caller.
type Tree struct {
	Root   *Node
	Blocks blockstore.Blockstore
}

// Returns an empty tree backed by the given blockstore.
func NewTree(bs blockstore.Blockstore) Tree {
	return Tree{
		Root:   NewEmptyTree(),
		Blocks: bs,
	}
}

// Loads the tree with the given root CID out of the blockstore. Missing
// nodes result in a partial tree, not an error; reads and writes touching
// missing sub-trees fail with ErrPartialTree.
func LoadTreeFromStore(ctx context.Context, bs blockstore.Blockstore, root cid.Cid) (*Tree, error) {
	n, err := HydrateNode(ctx, bs, root)
	if err != nil {
		return nil, err
	}
	if n.Height < 0 {
		if !n.IsEmpty() {
			return nil, fmt.Errorf("%w: could not determine root height", ErrInvalidTree)
		}
		n.Height = 0
	}
	n.ensureHeights()
	return &Tree{
		Root:   n,
		Blocks: bs,
	}, nil
}

// Adds a key/CID entry to the tree. If a previous value existed, returns it.
//
// Re-inserting the exact existing value is a no-op, with val returned as the
// previous value.
func (t *Tree) Insert(key []byte, val cid.Cid) (*cid.Cid, error) {
	root, prev, err := Insert(t.Root, key, val, -1)
	if err != nil {
		return nil, err
	}
	t.Root = root
	return prev, nil
}

// Removes a key from the tree, returning the CID value it held. Fails with
// ErrKeyNotFound if the key was not present.
func (t *Tree) Remove(key []byte) (*cid.Cid, error) {
	root, prev, err := Remove(t.Root, key, -1)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	t.Root = root
	return prev, nil
}

// Reads the value (CID) stored under the key. Returns (nil, nil) when the
// key is not in the tree.
func (t *Tree) Get(key []byte) (*cid.Cid, error) {
	return Get(t.Root, key, -1)
}

// Returns the current root CID, recomputing any dirty nodes first.
func (t *Tree) RootCID() (*cid.Cid, error) {
	return ComputeCID(t.Root)
}

// Encodes every node of the tree and writes the blocks to the given
// blockstore. Returns the root CID.
func (t *Tree) WriteBlocks(ctx context.Context, bs blockstore.Blockstore) (*cid.Cid, error) {
	return t.Root.writeBlocks(ctx, bs, false)
}

// Encodes only nodes marked dirty (changed since the last CID computation,
// plus deletion proof nodes) and writes those blocks to the given
// blockstore. Returns the root CID.
func (t *Tree) WriteDiffBlocks(ctx context.Context, bs blockstore.Blockstore) (*cid.Cid, error) {
	return t.Root.writeBlocks(ctx, bs, true)
}

// Returns an independent deep copy of the tree, sharing the blockstore.
func (t *Tree) Copy() Tree {
	return Tree{
		Root:   t.Root.deepCopy(),
		Blocks: t.Blocks,
	}
}

// Checks whether any referenced node is not loaded in memory.
func (t *Tree) IsPartial() bool {
	return t.Root.IsPartial()
}

// Walks the tree and writes all key/CID pairs into the map. The map is
// mutated in place and must be initialized by the caller.
func (t *Tree) ReadToMap(m map[string]cid.Cid) error {
	if t.Root == nil {
		return fmt.Errorf("empty tree root")
	}
	return t.Root.writeToMap(m)
}
