/*
Package mst implements the deterministic Merkle Search Tree (MST) which maps
repository paths (bytestring keys) to record CIDs.

# Terminology

node: a single tree node, holding an ordered list of entries. Nodes are never
empty, except when the entire tree is one empty root node.

entry: either a key/CID pair ("value" entry), or a pointer to a node one layer
down ("child" entry). Entries stay sorted by key at all times, and two child
entries are never adjacent (they would be merged).

tree: a root node plus everything reachable under it. A tree is "partial" when
some child nodes are referenced by CID but not loaded in memory.

# Tricky Bits

Inserting:

  - the key's layer can be above the current root, requiring new parent nodes
  - parent or child insertions may span multiple layers, creating
    intermediate nodes along the way
  - placing a value entry can "split" a child node whose key range straddles
    the new key

Removing:

  - removing a value can leave two child entries adjacent, which must be
    merged (recursively)
  - removing the last value at the top can leave a root that is a bare
    pointer; the top must then be trimmed down, possibly several layers

Inverting operations:

  - inverting a deletion needs "proof" nodes: the nodes covering keys
    directly adjacent to the deleted key, at any layer
  - trimming the top of a partial tree can land on a child that is not
    loaded; the root CID is still known in that case (a stub node)

Be careful with slices of entries: two slices over the same backing array
lead to mutation at a distance.
*/
package mst
