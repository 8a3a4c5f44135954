package mst

import (
	"math/rand"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicOperation(t *testing.T) {
	assert := assert.New(t)

	c2, _ := cid.Decode("bafkreieqq463374bbcbeq7gpmet5rvrpeqow6t4rtjzrkhnlu222222222")
	c3, _ := cid.Decode("bafkreieqq463374bbcbeq7gpmet5rvrpeqow6t4rtjzrkhnlu333333333")

	tree := NewEmptyTree()

	// creation
	tree, op, err := ApplyOp(tree, "com.example.record/3jqfcqzm3fo2j", &c2)
	assert.NoError(err)
	assert.True(op.IsCreate())
	assert.False(op.IsUpdate())
	assert.False(op.IsDelete())
	assert.NoError(CheckOp(tree, op))

	// update
	tree, op, err = ApplyOp(tree, "com.example.record/3jqfcqzm3fo2j", &c3)
	assert.NoError(err)
	assert.True(op.IsUpdate())
	assert.Equal(&c2, op.Prev)
	assert.NoError(CheckOp(tree, op))

	// deletion
	tree, op, err = ApplyOp(tree, "com.example.record/3jqfcqzm3fo2j", nil)
	assert.NoError(err)
	assert.True(op.IsDelete())
	assert.Equal(&c3, op.Prev)
	assert.NoError(CheckOp(tree, op))
}

func TestInvertOp(t *testing.T) {
	assert := assert.New(t)

	size := 100
	m := make(map[string]cid.Cid, size)
	for len(m) < size {
		m[randomKey()] = randomCid()
	}
	tree, err := NewTreeFromMap(m)
	require.NoError(t, err)
	before, err := ComputeCID(tree)
	require.NoError(t, err)

	// pick existing keys for the update and deletion
	var updKey, delKey string
	for k := range m {
		if updKey == "" {
			updKey = k
			continue
		}
		delKey = k
		break
	}
	newVal := randomCid()
	addKey := randomKey()
	addVal := randomCid()

	var ops []Operation
	for _, mut := range []struct {
		path string
		val  *cid.Cid
	}{
		{addKey, &addVal},
		{updKey, &newVal},
		{delKey, nil},
	} {
		var op *Operation
		tree, op, err = ApplyOp(tree, mut.path, mut.val)
		require.NoError(t, err)
		ops = append(ops, *op)
	}

	after, err := ComputeCID(tree)
	require.NoError(t, err)
	assert.NotEqual(before.String(), after.String())

	// invert in reverse application order to get back the starting tree
	for i := len(ops) - 1; i >= 0; i-- {
		tree, err = InvertOp(tree, &ops[i])
		require.NoError(t, err)
	}
	reverted, err := ComputeCID(tree)
	require.NoError(t, err)
	assert.Equal(before.String(), reverted.String())
}

func TestInvertOpMismatch(t *testing.T) {
	assert := assert.New(t)

	c2, _ := cid.Decode("bafkreieqq463374bbcbeq7gpmet5rvrpeqow6t4rtjzrkhnlu222222222")
	c3, _ := cid.Decode("bafkreieqq463374bbcbeq7gpmet5rvrpeqow6t4rtjzrkhnlu333333333")

	tree, err := NewTreeFromMap(map[string]cid.Cid{
		"com.example.record/3jqfcqzm3fo2j": c2,
	})
	require.NoError(t, err)
	before, err := ComputeCID(tree)
	require.NoError(t, err)

	// claims to have created a value the tree doesn't hold
	_, err = InvertOp(tree, &Operation{
		Path:  "com.example.record/3jqfcqzm3fo2j",
		Value: &c3,
	})
	assert.Error(err)

	// the failed inversion must not have mutated the tree
	val, err := Get(tree, []byte("com.example.record/3jqfcqzm3fo2j"), -1)
	assert.NoError(err)
	if assert.NotNil(val) {
		assert.Equal(c2, *val)
	}
	after, err := ComputeCID(tree)
	require.NoError(t, err)
	assert.Equal(before.String(), after.String())

	// claims to have deleted a key which is still present
	_, err = InvertOp(tree, &Operation{
		Path: "com.example.record/3jqfcqzm3fo2j",
		Prev: &c3,
	})
	assert.Error(err)
}

func TestNormalizeOps(t *testing.T) {
	assert := assert.New(t)

	c2, _ := cid.Decode("bafkreieqq463374bbcbeq7gpmet5rvrpeqow6t4rtjzrkhnlu222222222")

	ops := []Operation{
		{Path: "com.example.record/bbb", Value: &c2},
		{Path: "com.example.record/zzz", Prev: &c2},
		{Path: "com.example.record/aaa", Value: &c2},
	}
	rand.Shuffle(len(ops), func(i, j int) { ops[i], ops[j] = ops[j], ops[i] })

	out, err := NormalizeOps(ops)
	assert.NoError(err)
	require.Equal(t, 3, len(out))
	// deletion sorts first regardless of path
	assert.Equal("com.example.record/zzz", out[0].Path)
	assert.Equal("com.example.record/aaa", out[1].Path)
	assert.Equal("com.example.record/bbb", out[2].Path)

	_, err = NormalizeOps([]Operation{
		{Path: "com.example.record/aaa", Value: &c2},
		{Path: "com.example.record/aaa", Prev: &c2},
	})
	assert.Error(err)
}
