package repo

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cobalt-social/cobalt/mst"
	"github.com/cobalt-social/cobalt/repo/carutil"
	"github.com/cobalt-social/cobalt/repostore"
	"github.com/cobalt-social/cobalt/syntax"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	car "github.com/ipld/go-car"
	carv2 "github.com/ipld/go-car/v2"
	"go.opentelemetry.io/otel"
)

// Alias for the carutil sentinel, so callers of this package don't need to
// import carutil to classify archive errors.
var ErrCorruptArchive = carutil.ErrCorruptArchive

var ErrNoRoot = errors.New("CAR file missing root CID")
var ErrNoCommit = errors.New("no commit block in CAR file")

// Reads all blocks out of a CAR archive into the blockstore, returning the
// archive's root CID. Frames are not individually hash-checked; use
// LoadFromCAR for untrusted input.
func IngestCAR(ctx context.Context, bs blockstore.Blockstore, r io.Reader) (cid.Cid, error) {
	ctx, span := otel.Tracer("repo").Start(ctx, "IngestCAR")
	defer span.End()

	br, err := carv2.NewBlockReader(r)
	if err != nil {
		return cid.Undef, err
	}
	if len(br.Roots) < 1 {
		return cid.Undef, ErrNoRoot
	}

	for {
		blk, err := br.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return cid.Undef, err
		}
		if err := bs.Put(ctx, blk); err != nil {
			return cid.Undef, err
		}
	}

	return br.Roots[0], nil
}

// Parses a repository out of a CAR archive: reads and hash-verifies every
// block, parses and structure-checks the commit at the archive root, and
// hydrates the record tree.
//
// The tree may be partial if the archive holds only a subset of the
// repository (eg a commit delta).
func LoadFromCAR(ctx context.Context, r io.Reader) (*Commit, *Repo, error) {
	ctx, span := otel.Tracer("repo").Start(ctx, "LoadFromCAR")
	defer span.End()

	cr, commitCID, err := carutil.NewReader(bufio.NewReader(r))
	if err != nil {
		return nil, nil, err
	}

	bs := repostore.NewMapBlockstore()
	for {
		blk, err := cr.NextBlock()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, nil, err
		}
		if err := bs.Put(ctx, blk); err != nil {
			return nil, nil, err
		}
	}

	commitBlock, err := bs.Get(ctx, commitCID)
	if err != nil {
		return nil, nil, fmt.Errorf("reading commit block from CAR file: %w", err)
	}

	var commit Commit
	if err := commit.UnmarshalCBOR(bytes.NewReader(commitBlock.RawData())); err != nil {
		return nil, nil, fmt.Errorf("parsing commit block from CAR file: %w", err)
	}
	if err := commit.VerifyStructure(); err != nil {
		return nil, nil, fmt.Errorf("parsing commit block from CAR file: %w", err)
	}

	tree, err := mst.LoadTreeFromStore(ctx, bs, commit.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("reading record tree from CAR file: %w", err)
	}
	clk := syntax.ClockFromTID(syntax.TID(commit.Rev))
	repo := Repo{
		DID:         syntax.DID(commit.DID), // VerifyStructure() already checked DID syntax
		Clock:       clk,
		Commit:      &commit,
		CommitCID:   &commitCID,
		MST:         *tree,
		RecordStore: bs,
	}
	return &commit, &repo, nil
}

// Like LoadFromCAR, but only parses the commit object at the archive root.
// Also returns the commit CID.
func LoadCommitFromCAR(ctx context.Context, r io.Reader) (*Commit, *cid.Cid, error) {
	cr, commitCID, err := carutil.NewReader(bufio.NewReader(r))
	if err != nil {
		return nil, nil, err
	}
	var commitBlock blocks.Block
	for {
		blk, err := cr.NextBlock()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, nil, err
		}
		if blk.Cid().Equals(commitCID) {
			commitBlock = blk
			break
		}
	}
	if commitBlock == nil {
		return nil, nil, ErrNoCommit
	}
	var commit Commit
	if err := commit.UnmarshalCBOR(bytes.NewReader(commitBlock.RawData())); err != nil {
		return nil, nil, fmt.Errorf("parsing commit block from CAR file: %w", err)
	}
	if err := commit.VerifyStructure(); err != nil {
		return nil, nil, fmt.Errorf("parsing commit block from CAR file: %w", err)
	}
	return &commit, &commitCID, nil
}

// Serializes the entire repository as a CARv1 archive: the latest commit
// block as root, all tree node blocks, and all record blocks. The repository
// must have been committed, and the tree must be complete.
func (repo *Repo) WriteCAR(ctx context.Context, w io.Writer) error {
	ctx, span := otel.Tracer("repo").Start(ctx, "WriteCAR")
	defer span.End()

	if repo.Commit == nil || repo.CommitCID == nil {
		return ErrNoCommit
	}

	if err := car.WriteHeader(&car.CarHeader{
		Roots:   []cid.Cid{*repo.CommitCID},
		Version: 1,
	}, w); err != nil {
		return err
	}

	if err := repo.writeBlockTo(ctx, w, *repo.CommitCID); err != nil {
		return err
	}

	// all tree node blocks
	nodes, err := mst.CreatedBlocks(ctx, repo.RecordStore, cid.Undef, repo.Commit.Data)
	if err != nil {
		return fmt.Errorf("walking tree blocks: %w", err)
	}
	for _, blk := range nodes {
		if _, err := carutil.LdWrite(w, blk.Cid().Bytes(), blk.RawData()); err != nil {
			return err
		}
	}

	// all record blocks
	return repo.MST.WalkLeavesFrom("", func(path string, val cid.Cid) error {
		return repo.writeBlockTo(ctx, w, val)
	})
}

// Serializes a commit delta as a CARv1 archive: the latest commit block as
// root, tree node blocks not reachable from the previous root, and the
// record blocks for created or updated keys. A peer holding the previous
// version can reconstruct the new one from this archive alone.
//
// Passing cid.Undef as prevData exports the full repository.
func (repo *Repo) WriteDiffCAR(ctx context.Context, w io.Writer, prevData cid.Cid) error {
	ctx, span := otel.Tracer("repo").Start(ctx, "WriteDiffCAR")
	defer span.End()

	if repo.Commit == nil || repo.CommitCID == nil {
		return ErrNoCommit
	}

	if err := car.WriteHeader(&car.CarHeader{
		Roots:   []cid.Cid{*repo.CommitCID},
		Version: 1,
	}, w); err != nil {
		return err
	}

	if err := repo.writeBlockTo(ctx, w, *repo.CommitCID); err != nil {
		return err
	}

	nodes, err := mst.CreatedBlocks(ctx, repo.RecordStore, prevData, repo.Commit.Data)
	if err != nil {
		return fmt.Errorf("walking tree blocks: %w", err)
	}
	for _, blk := range nodes {
		if _, err := carutil.LdWrite(w, blk.Cid().Bytes(), blk.RawData()); err != nil {
			return err
		}
	}

	ops, err := mst.DiffTrees(ctx, repo.RecordStore, prevData, repo.Commit.Data)
	if err != nil {
		return fmt.Errorf("diffing tree versions: %w", err)
	}
	for _, op := range ops {
		if op.Op == "del" {
			continue
		}
		if err := repo.writeBlockTo(ctx, w, op.NewCid); err != nil {
			return err
		}
	}
	return nil
}

func (repo *Repo) writeBlockTo(ctx context.Context, w io.Writer, c cid.Cid) error {
	blk, err := repo.RecordStore.Get(ctx, c)
	if err != nil {
		return err
	}
	_, err = carutil.LdWrite(w, c.Bytes(), blk.RawData())
	return err
}
