package repostore

import (
	cbor "github.com/ipfs/go-ipld-cbor"
	mh "github.com/multiformats/go-multihash"
)

// Wraps a blockstore in a typed dag-cbor object store, configured with the
// hash function all repository CIDs use (SHA-256).
func CborStore(bs cbor.IpldBlockstore) *cbor.BasicIpldStore {
	cst := cbor.NewCborStore(bs)
	cst.DefaultMultihash = mh.SHA2_256
	return cst
}
