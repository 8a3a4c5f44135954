package mst

import (
	"bytes"
	"context"
	"fmt"

	block "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
)

// A single key-level difference between two tree versions.
type DiffOp struct {
	Op     string // "add", "mut", or "del"
	Rpath  string
	OldCid cid.Cid
	NewCid cid.Cid
}

// Computes the key-level differences between two tree versions stored in the
// same blockstore: added, mutated, and deleted keys, in key order.
//
// Sub-trees with identical CIDs are skipped without loading their contents.
// Passing cid.Undef as `from` treats every key in `to` as an addition.
func DiffTrees(ctx context.Context, bs blockstore.Blockstore, from, to cid.Cid) ([]*DiffOp, error) {
	if from == cid.Undef {
		return identityDiff(ctx, bs, to)
	}

	ft, err := LoadTreeFromStore(ctx, bs, from)
	if err != nil {
		return nil, fmt.Errorf("loading diff base tree: %w", err)
	}
	tt, err := LoadTreeFromStore(ctx, bs, to)
	if err != nil {
		return nil, fmt.Errorf("loading diff target tree: %w", err)
	}

	// flat entry lists, with child entries expanded lazily on mismatch
	fents := append([]NodeEntry{}, ft.Root.Entries...)
	tents := append([]NodeEntry{}, tt.Root.Entries...)

	var ixf, ixt int
	var out []*DiffOp
	for ixf < len(fents) && ixt < len(tents) {
		ef := fents[ixf]
		et := tents[ixt]

		if diffEntriesEqual(&ef, &et) {
			ixf++
			ixt++
			continue
		}

		if ef.IsValue() && et.IsValue() {
			if bytes.Equal(ef.Key, et.Key) {
				if *ef.Value == *et.Value {
					return nil, fmt.Errorf("unreachable: equal leaves treated as different")
				}
				out = append(out, &DiffOp{
					Op:     "mut",
					Rpath:  string(ef.Key),
					OldCid: *ef.Value,
					NewCid: *et.Value,
				})
				ixf++
				ixt++
				continue
			}

			// keys differ; only advance the cursor that is behind
			if bytes.Compare(ef.Key, et.Key) > 0 {
				out = append(out, &DiffOp{
					Op:     "add",
					Rpath:  string(et.Key),
					NewCid: *et.Value,
				})
				ixt++
			} else {
				out = append(out, &DiffOp{
					Op:     "del",
					Rpath:  string(ef.Key),
					OldCid: *ef.Value,
				})
				ixf++
			}
			continue
		}

		// a child entry on either side blocks the comparison; expand it
		// in place and retry
		if ef.IsChild() {
			if ef.Child == nil {
				return nil, fmt.Errorf("diffing trees: %w", ErrPartialTree)
			}
			fents = append(append([]NodeEntry{}, ef.Child.Entries...), fents[ixf+1:]...)
			ixf = 0
			continue
		}

		if et.IsChild() {
			if et.Child == nil {
				return nil, fmt.Errorf("diffing trees: %w", ErrPartialTree)
			}
			tents = append(append([]NodeEntry{}, et.Child.Entries...), tents[ixt+1:]...)
			ixt = 0
			continue
		}
	}

	// leftovers on the `from` side are deletions
	for ; ixf < len(fents); ixf++ {
		e := fents[ixf]
		if e.IsValue() {
			out = append(out, &DiffOp{
				Op:     "del",
				Rpath:  string(e.Key),
				OldCid: *e.Value,
			})
		} else if e.IsChild() {
			if e.Child == nil {
				return nil, fmt.Errorf("diffing trees: %w", ErrPartialTree)
			}
			if err := walkLeavesFrom(e.Child, nil, func(key []byte, val cid.Cid) error {
				out = append(out, &DiffOp{
					Op:     "del",
					Rpath:  string(key),
					OldCid: val,
				})
				return nil
			}); err != nil {
				return nil, err
			}
		}
	}

	// leftovers on the `to` side are additions
	for ; ixt < len(tents); ixt++ {
		e := tents[ixt]
		if e.IsValue() {
			out = append(out, &DiffOp{
				Op:     "add",
				Rpath:  string(e.Key),
				NewCid: *e.Value,
			})
		} else if e.IsChild() {
			if e.Child == nil {
				return nil, fmt.Errorf("diffing trees: %w", ErrPartialTree)
			}
			if err := walkLeavesFrom(e.Child, nil, func(key []byte, val cid.Cid) error {
				out = append(out, &DiffOp{
					Op:     "add",
					Rpath:  string(key),
					NewCid: val,
				})
				return nil
			}); err != nil {
				return nil, err
			}
		}
	}

	return out, nil
}

func diffEntriesEqual(a, b *NodeEntry) bool {
	if a.IsValue() && b.IsValue() {
		return bytes.Equal(a.Key, b.Key) && *a.Value == *b.Value
	}
	if a.IsChild() && b.IsChild() {
		return a.ChildCID != nil && b.ChildCID != nil && *a.ChildCID == *b.ChildCID
	}
	return false
}

func identityDiff(ctx context.Context, bs blockstore.Blockstore, root cid.Cid) ([]*DiffOp, error) {
	tt, err := LoadTreeFromStore(ctx, bs, root)
	if err != nil {
		return nil, fmt.Errorf("loading diff target tree: %w", err)
	}

	var out []*DiffOp
	if err := WalkLeaves(tt.Root, func(key []byte, val cid.Cid) error {
		out = append(out, &DiffOp{
			Op:     "add",
			Rpath:  string(key),
			NewCid: val,
		})
		return nil
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// Returns the node blocks reachable from `to` which are not reachable from
// `from`: the minimal set of new tree blocks a peer holding the old version
// needs to reconstruct the new one. Passing cid.Undef as `from` returns
// every node block of `to`.
func CreatedBlocks(ctx context.Context, bs blockstore.Blockstore, from, to cid.Cid) ([]block.Block, error) {
	old := make(map[cid.Cid]bool)
	if from != cid.Undef {
		if err := collectNodeCIDs(ctx, bs, from, old); err != nil {
			return nil, fmt.Errorf("walking diff base tree: %w", err)
		}
	}

	var out []block.Block
	var walk func(ref cid.Cid) error
	walk = func(ref cid.Cid) error {
		if old[ref] {
			// shared sub-tree; nothing below it can be new
			return nil
		}
		blk, err := bs.Get(ctx, ref)
		if err != nil {
			return err
		}
		out = append(out, blk)
		nd, err := NodeDataFromCBOR(bytes.NewReader(blk.RawData()))
		if err != nil {
			return err
		}
		if nd.Left != nil {
			if err := walk(*nd.Left); err != nil {
				return err
			}
		}
		for _, e := range nd.Entries {
			if e.Right != nil {
				if err := walk(*e.Right); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(to); err != nil {
		return nil, fmt.Errorf("walking diff target tree: %w", err)
	}
	return out, nil
}

func collectNodeCIDs(ctx context.Context, bs blockstore.Blockstore, ref cid.Cid, set map[cid.Cid]bool) error {
	if set[ref] {
		return nil
	}
	set[ref] = true
	blk, err := bs.Get(ctx, ref)
	if err != nil {
		return err
	}
	nd, err := NodeDataFromCBOR(bytes.NewReader(blk.RawData()))
	if err != nil {
		return err
	}
	if nd.Left != nil {
		if err := collectNodeCIDs(ctx, bs, *nd.Left, set); err != nil {
			return err
		}
	}
	for _, e := range nd.Entries {
		if e.Right != nil {
			if err := collectNodeCIDs(ctx, bs, *e.Right, set); err != nil {
				return err
			}
		}
	}
	return nil
}
