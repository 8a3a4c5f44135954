package repo

import (
	"bytes"
	"context"
	"testing"

	"github.com/cobalt-social/cobalt/crypto"
	"github.com/cobalt-social/cobalt/syntax"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Builds a second commit on top of a fresh repository and packages it as the
// event a subscriber would receive.
func testCommitEvent(t *testing.T) (*CommitEvent, *Repo, *KeyCommitVerifier) {
	t.Helper()
	ctx := context.Background()

	repo, priv := testCommittedRepo(t, 10)
	pub, err := priv.PublicKey()
	require.NoError(t, err)

	prevData := repo.Commit.Data
	collection := syntax.NSID("com.example.feed.post")

	// one create, one update, one delete
	var ops []EventOp
	var existing []string
	err = repo.ForEachRecord(ctx, "", func(path string, val cid.Cid) error {
		existing = append(existing, path)
		return nil
	})
	require.NoError(t, err)
	require.True(t, len(existing) >= 2)

	newCid, rkey, err := repo.CreateRecord(ctx, collection, testRecord("created"))
	require.NoError(t, err)
	ops = append(ops, EventOp{
		Action: "create",
		Path:   collection.String() + "/" + rkey.String(),
		Cid:    &newCid,
	})

	updNsid, updRkey, err := syntax.ParseRepoPath(existing[0])
	require.NoError(t, err)
	updPrev, err := repo.GetRecordCID(ctx, updNsid, updRkey)
	require.NoError(t, err)
	updCid, _, err := repo.PutRecord(ctx, updNsid, updRkey, testRecord("changed"))
	require.NoError(t, err)
	ops = append(ops, EventOp{
		Action: "update",
		Path:   existing[0],
		Cid:    &updCid,
		Prev:   updPrev,
	})

	delNsid, delRkey, err := syntax.ParseRepoPath(existing[1])
	require.NoError(t, err)
	delOp, err := repo.DeleteRecord(ctx, delNsid, delRkey)
	require.NoError(t, err)
	ops = append(ops, EventOp{
		Action: "delete",
		Path:   existing[1],
		Prev:   delOp.Prev,
	})

	commit, err := repo.SignCommit(ctx, priv)
	require.NoError(t, err)

	buf := new(bytes.Buffer)
	require.NoError(t, repo.WriteDiffCAR(ctx, buf, prevData))

	msg := &CommitEvent{
		DID:      commit.DID,
		Rev:      commit.Rev,
		Blocks:   buf.Bytes(),
		Ops:      ops,
		PrevData: &prevData,
	}
	return msg, repo, &KeyCommitVerifier{Key: pub}
}

func TestVerifyCommitEvent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	msg, repo, verifier := testCommitEvent(t)

	got, err := VerifyCommitEvent(ctx, msg, verifier)
	require.NoError(t, err)
	assert.Equal(repo.DID, got.DID)

	root, err := got.MST.RootCID()
	require.NoError(t, err)
	assert.Equal(repo.Commit.Data.String(), root.String())
}

func TestVerifyCommitEventBadPrevData(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	msg, _, verifier := testCommitEvent(t)

	wrong := testTreeCID(t, "some other tree root")
	msg.PrevData = &wrong
	_, err := VerifyCommitEvent(ctx, msg, verifier)
	assert.ErrorContains(err, "prevData")
}

func TestVerifyCommitEventBadSignature(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	msg, _, _ := testCommitEvent(t)

	// verify against a key that didn't sign the commit
	otherPriv, err := crypto.GeneratePrivateKeyP256()
	require.NoError(t, err)
	otherPub, err := otherPriv.PublicKey()
	require.NoError(t, err)

	_, err = VerifyCommitEvent(ctx, msg, &KeyCommitVerifier{Key: otherPub})
	assert.Error(err)
}

func TestVerifyCommitEventMetadataMismatch(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	msg, _, verifier := testCommitEvent(t)

	bad := *msg
	bad.Rev = syntax.NewTIDNow(7).String()
	_, err := VerifyCommitEvent(ctx, &bad, verifier)
	assert.Error(err)

	bad = *msg
	bad.DID = "did:plc:someoneelse234567"
	_, err = VerifyCommitEvent(ctx, &bad, verifier)
	assert.Error(err)
}

func TestParseEventOps(t *testing.T) {
	assert := assert.New(t)

	c := testTreeCID(t, "value")
	p := testTreeCID(t, "prev value")

	good := []EventOp{
		{Action: "create", Path: "com.example.a/one", Cid: &c},
		{Action: "update", Path: "com.example.a/two", Cid: &c, Prev: &p},
		{Action: "delete", Path: "com.example.a/three", Prev: &p},
	}
	ops, err := ParseEventOps(good)
	assert.NoError(err)
	assert.Equal(3, len(ops))
	assert.True(ops[0].IsCreate())
	assert.True(ops[1].IsUpdate())
	assert.True(ops[2].IsDelete())

	for _, bad := range [][]EventOp{
		{{Action: "create", Path: "com.example.a/x", Cid: &c, Prev: &p}},
		{{Action: "create", Path: "com.example.a/x"}},
		{{Action: "update", Path: "com.example.a/x", Cid: &c}},
		{{Action: "delete", Path: "com.example.a/x", Cid: &c, Prev: &p}},
		{{Action: "delete", Path: "com.example.a/x"}},
		{{Action: "rename", Path: "com.example.a/x", Cid: &c}},
	} {
		_, err := ParseEventOps(bad)
		assert.Error(err, bad[0].Action)
	}
}
