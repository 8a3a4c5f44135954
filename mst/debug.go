package mst

import (
	"fmt"
	"io"
	"sort"

	"github.com/ipfs/go-cid"
)

// Prints a key/CID map in sorted order. Development helper.
func DebugPrintMap(w io.Writer, m map[string]cid.Cid) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%s\n", k, m[k])
	}
}

// Prints the tree structure with one line per entry, indented by depth.
// Development helper.
func DebugPrintTree(w io.Writer, n *Node, depth int) {
	if depth == 0 {
		fmt.Fprintf(w, "tree root (height=%d)\n", n.Height)
	}
	for _, e := range n.Entries {
		for range depth {
			fmt.Fprintf(w, "│")
		}
		if e.IsValue() {
			fmt.Fprintf(w, "├ %s -> %s (%d)\n", e.Key, e.Value, HeightForKey(e.Key))
		} else if e.IsChild() {
			if e.Child != nil {
				fmt.Fprintf(w, "├ child\n")
				DebugPrintTree(w, e.Child, depth+1)
			} else {
				fmt.Fprintf(w, "├ (partial) %s\n", e.ChildCID)
			}
		}
	}
}
