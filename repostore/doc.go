/*
Package repostore provides content-addressed block storage backends for
repository data.

All backends implement the standard IPFS blockstore interface. Blocks are
keyed by CID; because hashes are deterministic, writing the same block twice
is always a no-op, and all backends treat Put as idempotent.

Three backends are provided: an in-memory map store (the common choice for
tests and for assembling archive payloads), an LRU read-through cache
wrapping another store, and a SQLite-backed persistent store.
*/
package repostore
