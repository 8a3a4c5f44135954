package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/cobalt-social/cobalt/crypto"
	"github.com/cobalt-social/cobalt/mst"
	"github.com/cobalt-social/cobalt/repostore"
	"github.com/cobalt-social/cobalt/syntax"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	"github.com/multiformats/go-multihash"
	"go.opentelemetry.io/otel"
)

var ErrNotFound = errors.New("record not found in repository")

// An identity's data repository: a key/value tree of records, plus the
// record blocks themselves, plus the latest signed commit.
//
// Not safe for concurrent mutation.
type Repo struct {
	DID   syntax.DID
	Clock syntax.TIDClock

	// latest commit, and its CID; nil until the first call to Commit (or
	// when loaded from an archive)
	Commit    *Commit
	CommitCID *cid.Cid

	RecordStore blockstore.Blockstore
	MST         mst.Tree
}

// Creates a new empty repository for the given identity, backed by an
// in-memory block store.
func NewRepo(did syntax.DID) Repo {
	bs := repostore.NewMapBlockstore()
	return Repo{
		DID:         did,
		Clock:       syntax.NewTIDClock(0),
		RecordStore: bs,
		MST:         mst.NewTree(bs),
	}
}

// Returns the CID of the record at the given collection and key, out of the
// tree. Fails with ErrNotFound if there is no such record.
func (repo *Repo) GetRecordCID(ctx context.Context, collection syntax.NSID, rkey syntax.RecordKey) (*cid.Cid, error) {
	path := collection.String() + "/" + rkey.String()
	c, err := repo.MST.Get([]byte(path))
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	return c, nil
}

// Returns the raw record block at the given collection and key. The block
// bytes are re-hashed and checked against the CID in the tree.
func (repo *Repo) GetRecordBytes(ctx context.Context, collection syntax.NSID, rkey syntax.RecordKey) ([]byte, error) {
	c, err := repo.GetRecordCID(ctx, collection, rkey)
	if err != nil {
		return nil, err
	}
	blk, err := repo.RecordStore.Get(ctx, *c)
	if err != nil {
		return nil, err
	}
	sum, err := c.Prefix().Sum(blk.RawData())
	if err != nil {
		return nil, err
	}
	if !sum.Equals(*c) {
		return nil, fmt.Errorf("record block does not match CID: %s", c)
	}
	return blk.RawData(), nil
}

// Stores a new record (as raw DAG-CBOR bytes) under a fresh TID record key
// in the collection. Returns the record CID and the generated key.
func (repo *Repo) CreateRecord(ctx context.Context, collection syntax.NSID, rec []byte) (cid.Cid, syntax.RecordKey, error) {
	ctx, span := otel.Tracer("repo").Start(ctx, "CreateRecord")
	defer span.End()

	rkey := syntax.RecordKey(repo.Clock.Next())
	c, _, err := repo.putRecord(ctx, collection, rkey, rec)
	if err != nil {
		return cid.Undef, "", err
	}
	return c, rkey, nil
}

// Stores a record (as raw DAG-CBOR bytes) at the given collection and key,
// creating or updating it. Returns the record CID and the resulting tree
// operation.
func (repo *Repo) PutRecord(ctx context.Context, collection syntax.NSID, rkey syntax.RecordKey, rec []byte) (cid.Cid, *mst.Operation, error) {
	ctx, span := otel.Tracer("repo").Start(ctx, "PutRecord")
	defer span.End()

	return repo.putRecord(ctx, collection, rkey, rec)
}

func (repo *Repo) putRecord(ctx context.Context, collection syntax.NSID, rkey syntax.RecordKey, rec []byte) (cid.Cid, *mst.Operation, error) {
	builder := cid.NewPrefixV1(cid.DagCBOR, multihash.SHA2_256)
	c, err := builder.Sum(rec)
	if err != nil {
		return cid.Undef, nil, err
	}
	blk, err := blocks.NewBlockWithCid(rec, c)
	if err != nil {
		return cid.Undef, nil, err
	}
	if err := repo.RecordStore.Put(ctx, blk); err != nil {
		return cid.Undef, nil, fmt.Errorf("writing record block: %w", err)
	}

	path := collection.String() + "/" + rkey.String()
	root, op, err := mst.ApplyOp(repo.MST.Root, path, &c)
	if err != nil {
		return cid.Undef, nil, fmt.Errorf("updating record tree: %w", err)
	}
	repo.MST.Root = root
	return c, op, nil
}

// Removes the record at the given collection and key. Fails with ErrNotFound
// if there is no such record.
func (repo *Repo) DeleteRecord(ctx context.Context, collection syntax.NSID, rkey syntax.RecordKey) (*mst.Operation, error) {
	ctx, span := otel.Tracer("repo").Start(ctx, "DeleteRecord")
	defer span.End()

	path := collection.String() + "/" + rkey.String()
	root, op, err := mst.ApplyOp(repo.MST.Root, path, nil)
	if err != nil {
		return nil, fmt.Errorf("updating record tree: %w", err)
	}
	if op.Prev == nil {
		return nil, ErrNotFound
	}
	repo.MST.Root = root
	return op, nil
}

// Visits every record path and CID with path greater than or equal to the
// prefix, in path order. The walk stops (without error) when the callback
// returns mst.ErrDoneIterating.
func (repo *Repo) ForEachRecord(ctx context.Context, prefix string, cb func(path string, val cid.Cid) error) error {
	_, span := otel.Tracer("repo").Start(ctx, "ForEachRecord")
	defer span.End()

	return repo.MST.WalkLeavesFrom(prefix, cb)
}

// Writes out all dirty tree nodes, builds the next commit (pointing at the
// previous one, with a fresh revision), signs it, and stores the commit
// block. Returns the new commit.
func (repo *Repo) SignCommit(ctx context.Context, privkey crypto.PrivateKey) (*Commit, error) {
	ctx, span := otel.Tracer("repo").Start(ctx, "SignCommit")
	defer span.End()

	root, err := repo.MST.WriteDiffBlocks(ctx, repo.RecordStore)
	if err != nil {
		return nil, fmt.Errorf("writing tree blocks: %w", err)
	}

	commit := Commit{
		DID:     repo.DID.String(),
		Version: RepoVersion,
		Prev:    repo.CommitCID,
		Data:    *root,
		Rev:     repo.Clock.Next().String(),
	}
	if err := commit.Sign(privkey); err != nil {
		return nil, fmt.Errorf("signing commit: %w", err)
	}

	ccid, err := repo.writeCommitBlock(ctx, &commit)
	if err != nil {
		return nil, err
	}

	repo.Commit = &commit
	repo.CommitCID = ccid
	return &commit, nil
}

func (repo *Repo) writeCommitBlock(ctx context.Context, commit *Commit) (*cid.Cid, error) {
	cst := repostore.CborStore(repo.RecordStore)
	c, err := cst.Put(ctx, commit)
	if err != nil {
		return nil, fmt.Errorf("writing commit block: %w", err)
	}
	return &c, nil
}
