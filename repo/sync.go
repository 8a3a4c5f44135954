package repo

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/cobalt-social/cobalt/crypto"
	"github.com/cobalt-social/cobalt/mst"
	"github.com/cobalt-social/cobalt/syntax"

	"github.com/ipfs/go-cid"
)

// A commit broadcast to subscribers: the new commit plus the blocks and
// per-record operations needed to validate it against the previous
// repository version.
type CommitEvent struct {
	DID string
	Rev string
	// CARv1 delta archive: the commit block as root, new tree nodes, and
	// new record blocks
	Blocks []byte
	Ops    []EventOp
	// tree root of the previous repository version, claimed by the writer
	PrevData *cid.Cid
}

// A single record-level change within a CommitEvent.
type EventOp struct {
	Action string // "create", "update", or "delete"
	Path   string
	Cid    *cid.Cid
	Prev   *cid.Cid
}

// Checks commit-level trust decisions (eg signature validity against the
// identity's current signing key). Resolution of keys is up to the
// implementation.
type CommitVerifier interface {
	VerifyCommit(ctx context.Context, commit *Commit) error
}

// Parses and validates a commit event received from an untrusted peer:
//
//   - block hashes and commit structure (via LoadFromCAR)
//   - event metadata matches the signed commit
//   - commit signature, when a verifier is provided
//   - every create/update op matches the tree and has its record block
//   - inverting the ops over the new tree reproduces the claimed previous
//     root
//
// Returns the partial repository parsed from the event blocks.
func VerifyCommitEvent(ctx context.Context, msg *CommitEvent, verifier CommitVerifier) (*Repo, error) {
	logger := slog.Default().With("did", msg.DID, "rev", msg.Rev)

	did, err := syntax.ParseDID(msg.DID)
	if err != nil {
		return nil, err
	}
	rev, err := syntax.ParseTID(msg.Rev)
	if err != nil {
		return nil, err
	}

	commit, repo, err := LoadFromCAR(ctx, bytes.NewReader(msg.Blocks))
	if err != nil {
		return nil, err
	}

	if commit.Rev != rev.String() {
		return nil, fmt.Errorf("event rev did not match commit")
	}
	if commit.DID != did.String() {
		return nil, fmt.Errorf("event DID did not match commit")
	}

	if verifier != nil {
		if err := verifier.VerifyCommit(ctx, commit); err != nil {
			return nil, err
		}
	}

	// check that every created or updated record is present and consistent
	for _, op := range msg.Ops {
		if (op.Action == "create" || op.Action == "update") && op.Cid != nil {
			nsid, rkey, err := syntax.ParseRepoPath(op.Path)
			if err != nil {
				return nil, fmt.Errorf("invalid repo path in ops list: %w", err)
			}
			val, err := repo.GetRecordCID(ctx, nsid, rkey)
			if err != nil {
				return nil, err
			}
			if *op.Cid != *val {
				return nil, fmt.Errorf("record op doesn't match tree value: %s", op.Path)
			}
			if _, err := repo.GetRecordBytes(ctx, nsid, rkey); err != nil {
				return nil, err
			}
		}
	}

	ops, err := ParseEventOps(msg.Ops)
	if err != nil {
		return nil, err
	}
	ops, err = mst.NormalizeOps(ops)
	if err != nil {
		return nil, err
	}

	invTree := repo.MST.Copy()
	for i := range ops {
		root, err := mst.InvertOp(invTree.Root, &ops[i])
		if err != nil {
			return nil, err
		}
		invTree.Root = root
	}
	computed, err := invTree.RootCID()
	if err != nil {
		return nil, err
	}
	if msg.PrevData != nil {
		if *computed != *msg.PrevData {
			return nil, fmt.Errorf("inverted tree root didn't match prevData")
		}
		logger.Debug("prevData matched", "prevData", msg.PrevData.String(), "computed", computed.String())
	} else {
		logger.Info("prevData was null; skipping tree root check")
	}

	return repo, nil
}

// Converts event ops into tree operations, checking that each action names
// the fields it requires.
func ParseEventOps(ops []EventOp) ([]mst.Operation, error) {
	out := []mst.Operation{}
	for _, rop := range ops {
		switch rop.Action {
		case "create":
			if rop.Cid == nil || rop.Prev != nil {
				return nil, fmt.Errorf("invalid event op: create")
			}
			out = append(out, mst.Operation{
				Path:  rop.Path,
				Prev:  nil,
				Value: rop.Cid,
			})
		case "delete":
			if rop.Cid != nil || rop.Prev == nil {
				return nil, fmt.Errorf("invalid event op: delete")
			}
			out = append(out, mst.Operation{
				Path:  rop.Path,
				Prev:  rop.Prev,
				Value: nil,
			})
		case "update":
			if rop.Cid == nil || rop.Prev == nil {
				return nil, fmt.Errorf("invalid event op: update")
			}
			out = append(out, mst.Operation{
				Path:  rop.Path,
				Prev:  rop.Prev,
				Value: rop.Cid,
			})
		default:
			return nil, fmt.Errorf("invalid event op action: %s", rop.Action)
		}
	}
	return out, nil
}

// CommitVerifier which validates commit signatures against a fixed public
// key, for deployments where key resolution happens elsewhere.
type KeyCommitVerifier struct {
	Key crypto.PublicKey
}

func (v *KeyCommitVerifier) VerifyCommit(ctx context.Context, commit *Commit) error {
	if err := commit.VerifySignature(v.Key); err != nil {
		return fmt.Errorf("invalid commit signature: %w", err)
	}
	return nil
}
