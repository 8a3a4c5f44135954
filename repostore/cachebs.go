package repostore

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
)

// Read-through LRU cache in front of another blockstore. Intended for
// backends where reads are expensive (eg the SQLite store); tree nodes near
// the root are re-read on almost every operation.
type CacheBlockstore struct {
	base  blockstore.Blockstore
	cache *lru.TwoQueueCache[string, blocks.Block]
}

var _ blockstore.Blockstore = (*CacheBlockstore)(nil)

func NewCacheBlockstore(base blockstore.Blockstore, size int) (*CacheBlockstore, error) {
	cache, err := lru.New2Q[string, blocks.Block](size)
	if err != nil {
		return nil, err
	}
	return &CacheBlockstore{
		base:  base,
		cache: cache,
	}, nil
}

func (bs *CacheBlockstore) Get(ctx context.Context, c cid.Cid) (blocks.Block, error) {
	if blk, ok := bs.cache.Get(c.KeyString()); ok {
		return blk, nil
	}

	blk, err := bs.base.Get(ctx, c)
	if err != nil {
		return nil, err
	}

	bs.cache.Add(c.KeyString(), blk)
	return blk, nil
}

func (bs *CacheBlockstore) Has(ctx context.Context, c cid.Cid) (bool, error) {
	if _, ok := bs.cache.Get(c.KeyString()); ok {
		return true, nil
	}
	return bs.base.Has(ctx, c)
}

func (bs *CacheBlockstore) GetSize(ctx context.Context, c cid.Cid) (int, error) {
	if blk, ok := bs.cache.Get(c.KeyString()); ok {
		return len(blk.RawData()), nil
	}
	return bs.base.GetSize(ctx, c)
}

func (bs *CacheBlockstore) Put(ctx context.Context, blk blocks.Block) error {
	if err := bs.base.Put(ctx, blk); err != nil {
		return err
	}
	bs.cache.Add(blk.Cid().KeyString(), blk)
	return nil
}

func (bs *CacheBlockstore) PutMany(ctx context.Context, blks []blocks.Block) error {
	if err := bs.base.PutMany(ctx, blks); err != nil {
		return err
	}
	for _, blk := range blks {
		bs.cache.Add(blk.Cid().KeyString(), blk)
	}
	return nil
}

func (bs *CacheBlockstore) DeleteBlock(ctx context.Context, c cid.Cid) error {
	bs.cache.Remove(c.KeyString())
	return bs.base.DeleteBlock(ctx, c)
}

func (bs *CacheBlockstore) AllKeysChan(ctx context.Context) (<-chan cid.Cid, error) {
	return nil, fmt.Errorf("iteration not supported on caching blockstore")
}

func (bs *CacheBlockstore) HashOnRead(enabled bool) {}
