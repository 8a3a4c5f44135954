package mst

import (
	"bytes"
	"context"
	"fmt"
	"io"

	block "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	ipld "github.com/ipfs/go-ipld-format"
	"github.com/multiformats/go-multihash"
)

// Serialization form of a tree node. The field names are single characters
// in the canonical encoding.
type NodeData struct {
	Left    *cid.Cid    `cborgen:"l"` // [nullable] link to the sub-tree below and to the "left" of all keys in this node
	Entries []EntryData `cborgen:"e"` // ordered list of entries at this node
}

// Serialization form of a single element in a NodeData entry list. Note that
// child links hang off the entry to their left (or off NodeData.Left),
// which is why these are not one-to-one with NodeEntry.
type EntryData struct {
	PrefixLen int64    `cborgen:"p"` // count of bytes shared with the previous key in this node
	KeySuffix []byte   `cborgen:"k"` // remainder of the key, after the shared prefix
	Value     cid.Cid  `cborgen:"v"` // record CID for this key
	Right     *cid.Cid `cborgen:"t"` // [nullable] link to the sub-tree below and to the "right" of this key
}

// Encodes a single NodeData as canonical CBOR bytes, and computes the
// corresponding CID. Does not touch children.
func (d *NodeData) Bytes() ([]byte, *cid.Cid, error) {
	buf := new(bytes.Buffer)
	if err := d.MarshalCBOR(buf); err != nil {
		return nil, nil, err
	}
	b := buf.Bytes()
	builder := cid.NewPrefixV1(cid.DagCBOR, multihash.SHA2_256)
	c, err := builder.Sum(b)
	if err != nil {
		return nil, nil, err
	}
	return b, &c, nil
}

// Parses CBOR bytes into a NodeData struct.
func NodeDataFromCBOR(r io.Reader) (*NodeData, error) {
	var nd NodeData
	if err := nd.UnmarshalCBOR(r); err != nil {
		return nil, err
	}
	return &nd, nil
}

// Transforms a Node to the NodeData serialization form, with keys
// prefix-compressed against their predecessor.
//
// Panics if a child entry has no computed CID; compute those first.
func (n *Node) NodeData() NodeData {
	d := NodeData{
		Left:    nil,
		Entries: make([]EntryData, 0, len(n.Entries)),
	}

	prevKey := []byte{}
	for i, e := range n.Entries {
		if i == 0 && e.IsChild() {
			d.Left = e.ChildCID
			continue
		}
		if e.IsChild() {
			if len(d.Entries) == 0 {
				panic("malformed tree node")
			}
			d.Entries[len(d.Entries)-1].Right = e.ChildCID
		}
		if e.IsValue() {
			plen := int64(CountPrefixLen(prevKey, e.Key))
			d.Entries = append(d.Entries, EntryData{
				PrefixLen: plen,
				KeySuffix: e.Key[plen:],
				Value:     *e.Value,
				Right:     nil,
			})
			prevKey = e.Key
		}
	}
	return d
}

// Transforms a decoded NodeData into the in-memory Node form, expanding
// compressed keys. Fails with ErrInvalidTree if an entry's claimed prefix
// length does not fit the preceding key; node blocks are hash-checked but
// otherwise untrusted input.
//
// c: CID of the CBOR representation, if known
func (d *NodeData) Node(c *cid.Cid) (Node, error) {
	height := -1
	n := Node{
		CID:     c,
		Dirty:   c == nil,
		Entries: make([]NodeEntry, 0, len(d.Entries)*2),
	}

	if d.Left != nil {
		n.Entries = append(n.Entries, NodeEntry{ChildCID: d.Left})
	}

	var prevKey []byte
	for _, e := range d.Entries {
		if e.PrefixLen < 0 || e.PrefixLen > int64(len(prevKey)) {
			return Node{}, fmt.Errorf("%w: entry prefix length out of range: %d", ErrInvalidTree, e.PrefixLen)
		}
		key := make([]byte, 0, int(e.PrefixLen)+len(e.KeySuffix))
		key = append(key, prevKey[:e.PrefixLen]...)
		key = append(key, e.KeySuffix...)
		n.Entries = append(n.Entries, NodeEntry{
			Key:   key,
			Value: &e.Value,
		})
		prevKey = key
		if height < 0 {
			height = HeightForKey(key)
		}

		if e.Right != nil {
			n.Entries = append(n.Entries, NodeEntry{
				ChildCID: e.Right,
			})
		}
	}

	// nodes with no value entries don't reveal their height; fixed up by
	// ensureHeights once a neighbor is known
	n.Height = height
	return n, nil
}

// Pushes known heights down through children which could not determine their
// own height while decoding.
func (n *Node) ensureHeights() {
	if n.Height <= 0 {
		return
	}
	for _, e := range n.Entries {
		if e.Child != nil {
			if e.Child.Height < 0 {
				e.Child.Height = n.Height - 1
			}
			e.Child.ensureHeights()
		}
	}
}

// Recursively encodes the sub-tree, optionally writing encoded nodes as
// blocks to the blockstore, and returns the root CID.
//
// bs: optional; when nil, nothing is written and only CIDs are computed.
// onlyDirty: skip (and do not re-encode) clean sub-trees with cached CIDs.
func (n *Node) writeBlocks(ctx context.Context, bs blockstore.Blockstore, onlyDirty bool) (*cid.Cid, error) {
	if n == nil || n.Stub {
		return nil, fmt.Errorf("%w: nil tree node", ErrInvalidTree)
	}
	if onlyDirty && !n.Dirty && n.CID != nil {
		return n.CID, nil
	}

	// children first
	for i, e := range n.Entries {
		if e.IsValue() && e.Dirty {
			n.Entries[i].Dirty = false
		}
		if !e.IsChild() {
			continue
		}
		if e.Child != nil && (e.Dirty || e.Child.Dirty || !onlyDirty) {
			cc, err := e.Child.writeBlocks(ctx, bs, onlyDirty)
			if err != nil {
				return nil, err
			}
			n.Entries[i].ChildCID = cc
			n.Entries[i].Dirty = false
		}
	}

	// then this node
	nd := n.NodeData()
	b, c, err := nd.Bytes()
	if err != nil {
		return nil, err
	}

	n.CID = c
	n.Dirty = false

	if bs != nil {
		blk, err := block.NewBlockWithCid(b, *c)
		if err != nil {
			return nil, err
		}
		if err := bs.Put(ctx, blk); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Computes the root CID of the tree, re-encoding any dirty nodes along the
// way. Cached CIDs of clean sub-trees are trusted.
func ComputeCID(n *Node) (*cid.Cid, error) {
	return n.writeBlocks(context.Background(), nil, true)
}

// Loads the node with the given CID from the blockstore, and recursively
// loads all children that are available. Missing children are left as bare
// CID references (a partial tree), not an error.
func HydrateNode(ctx context.Context, bs blockstore.Blockstore, ref cid.Cid) (*Node, error) {
	blk, err := bs.Get(ctx, ref)
	if err != nil {
		return nil, err
	}

	nd, err := NodeDataFromCBOR(bytes.NewReader(blk.RawData()))
	if err != nil {
		return nil, err
	}

	n, err := nd.Node(&ref)
	if err != nil {
		return nil, err
	}

	for i, e := range n.Entries {
		if e.IsChild() {
			child, err := HydrateNode(ctx, bs, *e.ChildCID)
			if err != nil && ipld.IsNotFound(err) {
				// partial trees are allowed
				continue
			}
			if err != nil {
				return nil, err
			}
			n.Entries[i].Child = child
			if n.Height == -1 && child.Height >= 0 {
				n.Height = child.Height + 1
			}
		}
	}

	return &n, nil
}
