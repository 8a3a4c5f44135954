package mst

import (
	"crypto/sha256"
)

// Maximum length of a tree key (repo path), in bytes.
const MaxKeyLength = 256

// Computes the tree "height" for a key. Layers count up from the bottom of
// the tree, starting at zero.
//
// The height is the number of leading zero bits in the SHA-256 hash of the
// key, counted two bits at a time (fanout of 16).
func HeightForKey(key []byte) (height int) {
	hv := sha256.Sum256(key)
	for _, b := range hv {
		if b&0xC0 != 0 {
			// common case: no leading pair of zero bits
			break
		}
		if b == 0x00 {
			height += 4
			continue
		}
		if b&0xFC == 0x00 {
			height += 3
		} else if b&0xF0 == 0x00 {
			height += 2
		} else {
			height += 1
		}
		break
	}
	return height
}

// Returns the length of the common prefix between two keys. Used for the
// key compression scheme in node serialization.
func CountPrefixLen(a, b []byte) int {
	// indexing both slices with the same bound lets the compiler drop the
	// bounds checks
	var i int
	for i = 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return i
}

// Checks restrictions on tree keys: non-empty, bounded size, and limited to
// the characters allowed in repo paths.
func IsValidKey(key []byte) bool {
	if len(key) == 0 || len(key) > MaxKeyLength {
		return false
	}
	for i := 0; i < len(key); i++ {
		b := key[i]
		if 'a' <= b && b <= 'z' ||
			'A' <= b && b <= 'Z' ||
			'0' <= b && b <= '9' {
			continue
		}
		switch b {
		case '_', ':', '.', '-', '/':
			continue
		default:
			return false
		}
	}
	return true
}
