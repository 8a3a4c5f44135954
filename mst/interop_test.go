package mst

import (
	"bytes"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Cross-implementation vectors: tree shapes and root CIDs that every
// implementation of this data structure must reproduce exactly.

func mapToCidString(t *testing.T, m map[string]string) map[string]cid.Cid {
	out := make(map[string]cid.Cid, len(m))
	for k, v := range m {
		c, err := cid.Decode(v)
		require.NoError(t, err)
		out[k] = c
	}
	return out
}

func TestInteropEmptyTree(t *testing.T) {
	assert := assert.New(t)

	tree := NewEmptyTree()
	c, err := ComputeCID(tree)
	assert.NoError(err)
	assert.Equal("bafyreie5737gdxlw5i64vzichcalba3z2v5n6icifvx5xytvske7mr3hpm", c.String())
}

func TestInteropTrivialTree(t *testing.T) {
	assert := assert.New(t)

	cid1str := "bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454"
	inMap := mapToCidString(t, map[string]string{
		"com.example.record/3jqfcqzm3fo2j": cid1str,
	})

	tree, err := NewTreeFromMap(inMap)
	assert.NoError(err)
	c, err := ComputeCID(tree)
	assert.NoError(err)
	assert.Equal("bafyreibj4lsc3aqnrvphp5xmrnfoorvru4wynt6lwidqbm2623a6tatzdu", c.String())
}

func TestInteropSingleLayer2Tree(t *testing.T) {
	assert := assert.New(t)

	cid1str := "bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454"
	inMap := mapToCidString(t, map[string]string{
		"com.example.record/3jqfcqzm3fx2j": cid1str,
	})

	tree, err := NewTreeFromMap(inMap)
	assert.NoError(err)
	assert.Equal(2, tree.Height)
	c, err := ComputeCID(tree)
	assert.NoError(err)
	assert.Equal("bafyreih7wfei65pxzhauoibu3ls7jgmkju4bspy4t2ha2qdjnzqvoy33ai", c.String())
}

func TestInteropSimpleTree(t *testing.T) {
	assert := assert.New(t)

	cid1str := "bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454"
	inMap := mapToCidString(t, map[string]string{
		"com.example.record/3jqfcqzm3fp2j": cid1str, // level 0
		"com.example.record/3jqfcqzm3fr2j": cid1str, // level 0
		"com.example.record/3jqfcqzm3fs2j": cid1str, // level 1
		"com.example.record/3jqfcqzm3ft2j": cid1str, // level 0
		"com.example.record/3jqfcqzm4fc2j": cid1str, // level 0
	})

	tree, err := NewTreeFromMap(inMap)
	assert.NoError(err)
	assert.Equal(5, countEntries(tree))
	c, err := ComputeCID(tree)
	assert.NoError(err)
	assert.Equal("bafyreicmahysq4n6wfuxo522m6dpiy7z7qzym3dzs756t5n7nfdgccwq7m", c.String())
}

// "trims top of tree on delete"
func TestInteropTrimOnDelete(t *testing.T) {
	assert := assert.New(t)

	l1root := "bafyreifnqrwbk6ffmyaz5qtujqrzf5qmxf7cbxvgzktl4e3gabuxbtatv4"
	l0root := "bafyreie4kjuxbwkhzg2i5dljaswcroeih4dgiqq6pazcmunwt2byd725vi"

	inMap := mapToCidString(t, map[string]string{
		"com.example.record/3jqfcqzm3fn2j": "bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454", // level 0
		"com.example.record/3jqfcqzm3fo2j": "bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454", // level 0
		"com.example.record/3jqfcqzm3fp2j": "bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454", // level 0
		"com.example.record/3jqfcqzm3fs2j": "bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454", // level 1
		"com.example.record/3jqfcqzm3ft2j": "bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454", // level 0
		"com.example.record/3jqfcqzm3fu2j": "bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454", // level 0
	})

	tree, err := NewTreeFromMap(inMap)
	assert.NoError(err)
	assert.Equal(6, countEntries(tree))
	assert.Equal(1, tree.Height)
	c, err := ComputeCID(tree)
	assert.NoError(err)
	assert.Equal(l1root, c.String())

	tree, prev, err := Remove(tree, []byte("com.example.record/3jqfcqzm3fs2j"), -1)
	assert.NoError(err)
	assert.NotNil(prev)
	assert.Equal(5, countEntries(tree))
	assert.Equal(0, tree.Height)
	c, err = ComputeCID(tree)
	assert.NoError(err)
	assert.Equal(l0root, c.String())
}

// "handles insertion that splits two layers down"
func TestInteropInsertionSplit(t *testing.T) {
	assert := assert.New(t)

	l1root := "bafyreiettyludka6fpgp33stwxfuwhkzlur6chs4d2v4nkmq2j3ogpdjem"
	l2root := "bafyreid2x5eqs4w4qxvc5jiwda4cien3gw2q6cshofxwnvv7iucrmfohpm"

	inMap := mapToCidString(t, map[string]string{
		"com.example.record/3jqfcqzm3fo2j": "bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454", // A; level 0
		"com.example.record/3jqfcqzm3fp2j": "bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454", // B; level 0
		"com.example.record/3jqfcqzm3fr2j": "bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454", // C; level 0
		"com.example.record/3jqfcqzm3fs2j": "bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454", // D; level 1
		"com.example.record/3jqfcqzm3ft2j": "bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454", // E; level 0
		"com.example.record/3jqfcqzm3fz2j": "bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454", // G; level 0
		"com.example.record/3jqfcqzm4fc2j": "bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454", // H; level 0
		"com.example.record/3jqfcqzm4fd2j": "bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454", // I; level 1
		"com.example.record/3jqfcqzm4ff2j": "bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454", // J; level 0
		"com.example.record/3jqfcqzm4fg2j": "bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454", // K; level 0
		"com.example.record/3jqfcqzm4fh2j": "bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454", // L; level 0
	})

	tree, err := NewTreeFromMap(inMap)
	assert.NoError(err)
	assert.Equal(11, countEntries(tree))
	assert.Equal(1, tree.Height)
	c, err := ComputeCID(tree)
	assert.NoError(err)
	assert.Equal(l1root, c.String())

	// insert F, which has level 2, splitting the tree in half
	cid1, err := cid.Decode("bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454")
	assert.NoError(err)
	tree, prev, err := Insert(tree, []byte("com.example.record/3jqfcqzm3fx2j"), cid1, -1)
	assert.NoError(err)
	assert.Nil(prev)
	assert.Equal(12, countEntries(tree))
	assert.Equal(2, tree.Height)
	c, err = ComputeCID(tree)
	assert.NoError(err)
	assert.Equal(l2root, c.String())

	// remove F, which should be a no-op on the original tree shape
	tree, prev, err = Remove(tree, []byte("com.example.record/3jqfcqzm3fx2j"), -1)
	assert.NoError(err)
	assert.NotNil(prev)
	assert.Equal(11, countEntries(tree))
	assert.Equal(1, tree.Height)
	c, err = ComputeCID(tree)
	assert.NoError(err)
	assert.Equal(l1root, c.String())
}

// "handles new layers that are two higher than existing"
func TestInteropHigherLayers(t *testing.T) {
	assert := assert.New(t)

	l0root := "bafyreidfcktqnfmykz2ps3dbul35pepleq7kvv526g47xahuz3rqtptmky"
	l2root := "bafyreiavxaxdz7o7rbvr3zg2liox2yww46t7g6hkehx4i4h3lwudly7dhy"
	l2root2 := "bafyreig4jv3vuajbsybhyvb7gggvpwh2zszwfyttjrj6qwvcsp24h6popu"

	cid1, err := cid.Decode("bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454")
	assert.NoError(err)

	inMap := mapToCidString(t, map[string]string{
		"com.example.record/3jqfcqzm3ft2j": "bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454", // A; level 0
		"com.example.record/3jqfcqzm3fz2j": "bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454", // C; level 0
	})

	tree, err := NewTreeFromMap(inMap)
	assert.NoError(err)
	assert.Equal(2, countEntries(tree))
	assert.Equal(0, tree.Height)
	c, err := ComputeCID(tree)
	assert.NoError(err)
	assert.Equal(l0root, c.String())

	// insert B, which is two levels above
	tree, prev, err := Insert(tree, []byte("com.example.record/3jqfcqzm3fx2j"), cid1, -1)
	assert.NoError(err)
	assert.Nil(prev)
	assert.Equal(3, countEntries(tree))
	assert.Equal(2, tree.Height)
	c, err = ComputeCID(tree)
	assert.NoError(err)
	assert.Equal(l2root, c.String())

	// remove B, bringing the tree back down
	tree, prev, err = Remove(tree, []byte("com.example.record/3jqfcqzm3fx2j"), -1)
	assert.NoError(err)
	assert.NotNil(prev)
	assert.Equal(2, countEntries(tree))
	assert.Equal(0, tree.Height)
	c, err = ComputeCID(tree)
	assert.NoError(err)
	assert.Equal(l0root, c.String())

	// insert B and D, which are two levels above and one level above
	tree, prev, err = Insert(tree, []byte("com.example.record/3jqfcqzm3fx2j"), cid1, -1)
	assert.NoError(err)
	assert.Nil(prev)
	tree, prev, err = Insert(tree, []byte("com.example.record/3jqfcqzm4fd2j"), cid1, -1)
	assert.NoError(err)
	assert.Nil(prev)
	assert.Equal(4, countEntries(tree))
	assert.Equal(2, tree.Height)
	c, err = ComputeCID(tree)
	assert.NoError(err)
	assert.Equal(l2root2, c.String())
}

// Hand-constructs the node data for the trivial tree and checks it decodes
// to the same structure and CID as the builder produces.
func TestManualNode(t *testing.T) {
	assert := assert.New(t)

	cid1, err := cid.Decode("bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454")
	assert.NoError(err)

	nd := NodeData{
		Left: nil,
		Entries: []EntryData{
			{
				PrefixLen: 0,
				KeySuffix: []byte("com.example.record/3jqfcqzm3fo2j"),
				Value:     cid1,
			},
		},
	}

	enc, c, err := nd.Bytes()
	assert.NoError(err)
	assert.Equal("bafyreibj4lsc3aqnrvphp5xmrnfoorvru4wynt6lwidqbm2623a6tatzdu", c.String())

	rt, err := NodeDataFromCBOR(bytes.NewReader(enc))
	assert.NoError(err)
	assert.Equal(nd.Left, rt.Left)
	assert.Equal(len(nd.Entries), len(rt.Entries))
	assert.Equal(nd.Entries[0].KeySuffix, rt.Entries[0].KeySuffix)
	assert.Equal(nd.Entries[0].Value, rt.Entries[0].Value)

	n, err := rt.Node(c)
	require.NoError(t, err)
	val, err := Get(&n, []byte("com.example.record/3jqfcqzm3fo2j"), -1)
	assert.NoError(err)
	assert.Equal(&cid1, val)
}
