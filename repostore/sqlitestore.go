package repostore

import (
	"context"
	"errors"
	"fmt"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	ipld "github.com/ipfs/go-ipld-format"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type storedBlock struct {
	Cid  []byte `gorm:"primaryKey;column:cid"`
	Data []byte `gorm:"column:data;not null"`
}

func (storedBlock) TableName() string {
	return "blocks"
}

// Persistent blockstore backed by a SQLite database. Blocks are keyed by
// full CID bytes; Put is idempotent.
type SqliteBlockstore struct {
	db *gorm.DB
}

var _ blockstore.Blockstore = (*SqliteBlockstore)(nil)

// Opens (creating if needed) a SQLite block database at the given path. Pass
// ":memory:" for an ephemeral store.
func OpenSqliteBlockstore(path string) (*SqliteBlockstore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite block database: %w", err)
	}
	if err := db.AutoMigrate(&storedBlock{}); err != nil {
		return nil, fmt.Errorf("migrating sqlite block schema: %w", err)
	}
	return &SqliteBlockstore{db: db}, nil
}

func (bs *SqliteBlockstore) Put(ctx context.Context, blk blocks.Block) error {
	row := storedBlock{
		Cid:  blk.Cid().Bytes(),
		Data: blk.RawData(),
	}
	err := bs.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("writing block: %w", err)
	}
	return nil
}

func (bs *SqliteBlockstore) PutMany(ctx context.Context, blks []blocks.Block) error {
	if len(blks) == 0 {
		return nil
	}
	rows := make([]storedBlock, len(blks))
	for i, blk := range blks {
		rows[i] = storedBlock{
			Cid:  blk.Cid().Bytes(),
			Data: blk.RawData(),
		}
	}
	err := bs.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, 100).Error
	if err != nil {
		return fmt.Errorf("writing blocks: %w", err)
	}
	return nil
}

func (bs *SqliteBlockstore) Get(ctx context.Context, c cid.Cid) (blocks.Block, error) {
	var row storedBlock
	err := bs.db.WithContext(ctx).First(&row, "cid = ?", c.Bytes()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ipld.ErrNotFound{Cid: c}
	}
	if err != nil {
		return nil, fmt.Errorf("reading block: %w", err)
	}
	return blocks.NewBlockWithCid(row.Data, c)
}

func (bs *SqliteBlockstore) GetSize(ctx context.Context, c cid.Cid) (int, error) {
	var row storedBlock
	err := bs.db.WithContext(ctx).Select("data").First(&row, "cid = ?", c.Bytes()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ipld.ErrNotFound{Cid: c}
	}
	if err != nil {
		return 0, fmt.Errorf("reading block: %w", err)
	}
	return len(row.Data), nil
}

func (bs *SqliteBlockstore) Has(ctx context.Context, c cid.Cid) (bool, error) {
	var count int64
	err := bs.db.WithContext(ctx).Model(&storedBlock{}).Where("cid = ?", c.Bytes()).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking block: %w", err)
	}
	return count > 0, nil
}

func (bs *SqliteBlockstore) DeleteBlock(ctx context.Context, c cid.Cid) error {
	err := bs.db.WithContext(ctx).Delete(&storedBlock{}, "cid = ?", c.Bytes()).Error
	if err != nil {
		return fmt.Errorf("deleting block: %w", err)
	}
	return nil
}

func (bs *SqliteBlockstore) AllKeysChan(ctx context.Context) (<-chan cid.Cid, error) {
	var keys [][]byte
	err := bs.db.WithContext(ctx).Model(&storedBlock{}).Pluck("cid", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("listing blocks: %w", err)
	}

	ch := make(chan cid.Cid)
	go func() {
		defer close(ch)
		for _, k := range keys {
			_, c, err := cid.CidFromBytes(k)
			if err != nil {
				continue
			}
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (bs *SqliteBlockstore) HashOnRead(enabled bool) {}
