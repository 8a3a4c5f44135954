package repo

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/cobalt-social/cobalt/crypto"
	"github.com/cobalt-social/cobalt/mst"
	"github.com/cobalt-social/cobalt/syntax"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDID = "did:plc:abc234567abcdefghijkl234"

func testTreeCID(t *testing.T, data string) cid.Cid {
	t.Helper()
	builder := cid.NewPrefixV1(cid.DagCBOR, multihash.SHA2_256)
	c, err := builder.Sum([]byte(data))
	require.NoError(t, err)
	return c
}

// dag-cbor map {"msg": <text>}
func testRecord(text string) []byte {
	out := []byte{0xA1, 0x63, 'm', 's', 'g'}
	out = append(out, 0x60+byte(len(text)))
	return append(out, []byte(text)...)
}

func TestRepoRecordCRUD(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	did, err := syntax.ParseDID(testDID)
	require.NoError(t, err)
	repo := NewRepo(did)

	collection := syntax.NSID("com.example.feed.post")

	// create with generated TID key
	c1, rkey, err := repo.CreateRecord(ctx, collection, testRecord("hello"))
	require.NoError(t, err)
	_, err = syntax.ParseTID(rkey.String())
	assert.NoError(err)

	got, err := repo.GetRecordCID(ctx, collection, rkey)
	require.NoError(t, err)
	assert.Equal(c1, *got)

	raw, err := repo.GetRecordBytes(ctx, collection, rkey)
	require.NoError(t, err)
	assert.Equal(testRecord("hello"), raw)

	// update in place
	c2, op, err := repo.PutRecord(ctx, collection, rkey, testRecord("updated"))
	require.NoError(t, err)
	assert.True(op.IsUpdate())
	assert.Equal(c1, *op.Prev)
	assert.NotEqual(c1, c2)

	raw, err = repo.GetRecordBytes(ctx, collection, rkey)
	require.NoError(t, err)
	assert.Equal(testRecord("updated"), raw)

	// delete
	op, err = repo.DeleteRecord(ctx, collection, rkey)
	require.NoError(t, err)
	assert.True(op.IsDelete())
	assert.Equal(c2, *op.Prev)

	_, err = repo.GetRecordCID(ctx, collection, rkey)
	assert.ErrorIs(err, ErrNotFound)

	// deleting again fails
	_, err = repo.DeleteRecord(ctx, collection, rkey)
	assert.ErrorIs(err, ErrNotFound)
}

func TestRepoForEachRecord(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	repo := NewRepo(syntax.DID(testDID))
	collection := syntax.NSID("com.example.feed.post")

	keys := map[string]cid.Cid{}
	for i := range 20 {
		c, rkey, err := repo.CreateRecord(ctx, collection, testRecord(fmt.Sprintf("post %d", i)))
		require.NoError(t, err)
		keys[collection.String()+"/"+rkey.String()] = c
	}

	seen := map[string]cid.Cid{}
	err := repo.ForEachRecord(ctx, "", func(path string, val cid.Cid) error {
		seen[path] = val
		return nil
	})
	assert.NoError(err)
	assert.Equal(keys, seen)

	// early exit
	count := 0
	err = repo.ForEachRecord(ctx, "", func(path string, val cid.Cid) error {
		count++
		if count == 5 {
			return mst.ErrDoneIterating
		}
		return nil
	})
	assert.NoError(err)
	assert.Equal(5, count)
}

func TestRepoSignCommit(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	priv, err := crypto.GeneratePrivateKeyP256()
	require.NoError(t, err)
	pub, err := priv.PublicKey()
	require.NoError(t, err)

	repo := NewRepo(syntax.DID(testDID))
	collection := syntax.NSID("com.example.feed.post")
	_, _, err = repo.CreateRecord(ctx, collection, testRecord("first"))
	require.NoError(t, err)

	commit, err := repo.SignCommit(ctx, priv)
	require.NoError(t, err)
	require.NotNil(t, repo.CommitCID)
	assert.Nil(commit.Prev)
	assert.NoError(commit.VerifyStructure())
	assert.NoError(commit.VerifySignature(pub))

	firstCID := *repo.CommitCID

	// second commit points back at the first
	_, _, err = repo.CreateRecord(ctx, collection, testRecord("second"))
	require.NoError(t, err)
	commit2, err := repo.SignCommit(ctx, priv)
	require.NoError(t, err)
	require.NotNil(t, commit2.Prev)
	assert.Equal(firstCID, *commit2.Prev)
	assert.True(commit.Rev < commit2.Rev)
	assert.NoError(commit2.VerifySignature(pub))

	// tampering invalidates the signature
	tampered := *commit2
	tampered.Rev = syntax.NewTIDNow(9).String()
	assert.Error(tampered.VerifySignature(pub))
}

func TestCommitCBORRoundTrip(t *testing.T) {
	assert := assert.New(t)

	data := testTreeCID(t, "some data root")
	prev := testTreeCID(t, "previous commit")

	orig := Commit{
		DID:     testDID,
		Version: RepoVersion,
		Prev:    &prev,
		Data:    data,
		Sig:     []byte{1, 2, 3, 4},
		Rev:     syntax.NewTIDNow(0).String(),
	}

	buf := new(bytes.Buffer)
	require.NoError(t, orig.MarshalCBOR(buf))

	var out Commit
	require.NoError(t, out.UnmarshalCBOR(bytes.NewReader(buf.Bytes())))
	assert.Equal(orig, out)

	// nil Prev (first commit) is encoded as an explicit null
	orig.Prev = nil
	buf.Reset()
	require.NoError(t, orig.MarshalCBOR(buf))
	var out2 Commit
	require.NoError(t, out2.UnmarshalCBOR(bytes.NewReader(buf.Bytes())))
	assert.Nil(out2.Prev)
	assert.Equal(orig, out2)
}

func TestCommitUnsignedBytes(t *testing.T) {
	assert := assert.New(t)

	commit := Commit{
		DID:     testDID,
		Version: RepoVersion,
		Data:    testTreeCID(t, "root"),
		Rev:     syntax.NewTIDNow(0).String(),
	}

	unsigned, err := commit.UnsignedBytes()
	require.NoError(t, err)

	// signing must not change the bytes that were signed
	priv, err := crypto.GeneratePrivateKeyP256()
	require.NoError(t, err)
	require.NoError(t, commit.Sign(priv))
	after, err := commit.UnsignedBytes()
	require.NoError(t, err)
	assert.Equal(unsigned, after)

	// but the signed serialization differs
	buf := new(bytes.Buffer)
	require.NoError(t, commit.MarshalCBOR(buf))
	assert.NotEqual(unsigned, buf.Bytes())
}

func TestCommitVerifyStructure(t *testing.T) {
	assert := assert.New(t)

	good := Commit{
		DID:     testDID,
		Version: RepoVersion,
		Data:    testTreeCID(t, "root"),
		Sig:     []byte{1},
		Rev:     syntax.NewTIDNow(0).String(),
	}
	assert.NoError(good.VerifyStructure())

	bad := good
	bad.Version = 2
	assert.Error(bad.VerifyStructure())

	bad = good
	bad.Sig = nil
	assert.Error(bad.VerifyStructure())

	bad = good
	bad.DID = "not-a-did"
	assert.Error(bad.VerifyStructure())

	bad = good
	bad.Rev = "not-a-tid"
	assert.Error(bad.VerifyStructure())
}
