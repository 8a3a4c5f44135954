package repostore

import (
	"context"
	"fmt"
	"sync"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	ipld "github.com/ipfs/go-ipld-format"
)

// Simple in-memory block storage, keyed by CID. Safe for concurrent use.
type MapBlockstore struct {
	lk     sync.RWMutex
	blocks map[string]blocks.Block
}

var _ blockstore.Blockstore = (*MapBlockstore)(nil)

func NewMapBlockstore() *MapBlockstore {
	return &MapBlockstore{
		blocks: make(map[string]blocks.Block, 20),
	}
}

func (bs *MapBlockstore) Put(_ context.Context, blk blocks.Block) error {
	bs.lk.Lock()
	defer bs.lk.Unlock()
	bs.blocks[blk.Cid().KeyString()] = blk
	return nil
}

func (bs *MapBlockstore) PutMany(ctx context.Context, blks []blocks.Block) error {
	bs.lk.Lock()
	defer bs.lk.Unlock()
	for _, blk := range blks {
		bs.blocks[blk.Cid().KeyString()] = blk
	}
	return nil
}

func (bs *MapBlockstore) Get(_ context.Context, c cid.Cid) (blocks.Block, error) {
	bs.lk.RLock()
	defer bs.lk.RUnlock()
	blk, found := bs.blocks[c.KeyString()]
	if !found {
		return nil, ipld.ErrNotFound{Cid: c}
	}
	return blk, nil
}

func (bs *MapBlockstore) GetSize(_ context.Context, c cid.Cid) (int, error) {
	bs.lk.RLock()
	defer bs.lk.RUnlock()
	blk, found := bs.blocks[c.KeyString()]
	if !found {
		return 0, ipld.ErrNotFound{Cid: c}
	}
	return len(blk.RawData()), nil
}

func (bs *MapBlockstore) Has(_ context.Context, c cid.Cid) (bool, error) {
	bs.lk.RLock()
	defer bs.lk.RUnlock()
	_, found := bs.blocks[c.KeyString()]
	return found, nil
}

func (bs *MapBlockstore) DeleteBlock(_ context.Context, c cid.Cid) error {
	bs.lk.Lock()
	defer bs.lk.Unlock()
	delete(bs.blocks, c.KeyString())
	return nil
}

func (bs *MapBlockstore) AllKeysChan(ctx context.Context) (<-chan cid.Cid, error) {
	bs.lk.RLock()
	keys := make([]cid.Cid, 0, len(bs.blocks))
	for k := range bs.blocks {
		_, c, err := cid.CidFromBytes([]byte(k))
		if err != nil {
			bs.lk.RUnlock()
			return nil, fmt.Errorf("corrupt CID key in block map: %w", err)
		}
		keys = append(keys, c)
	}
	bs.lk.RUnlock()

	ch := make(chan cid.Cid)
	go func() {
		defer close(ch)
		for _, c := range keys {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (bs *MapBlockstore) HashOnRead(enabled bool) {}

// Number of blocks currently stored.
func (bs *MapBlockstore) Len() int {
	bs.lk.RLock()
	defer bs.lk.RUnlock()
	return len(bs.blocks)
}
