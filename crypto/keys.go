package crypto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// Returned by verification methods when the signature does not match the
// public key and content. All other errors indicate malformed input.
var ErrInvalidSignature = errors.New("crypto: invalid signature")

// Common interface for repository signing keys.
//
// Secret key material is held in memory by implementations.
type PrivateKey interface {
	Equal(other PrivateKey) bool

	// The corresponding public key.
	PublicKey() (PublicKey, error)

	// Hashes the content with SHA-256 and signs the digest, returning a
	// compact binary signature. Signatures are always "low-S", so there is a
	// single valid signature encoding for any content and key.
	HashAndSign(content []byte) ([]byte, error)
}

// Private keys whose secret material can be exported.
type PrivateKeyExportable interface {
	PrivateKey

	// Raw binary serialization of the secret key material, with no enclosing
	// structure.
	Bytes() []byte

	// Multibase string encoding of the secret key, including a multicodec
	// type indicator.
	Multibase() string
}

// Common interface for repository signature verification keys.
type PublicKey interface {
	Equal(other PublicKey) bool

	// Compact binary serialization ("compressed" point encoding for
	// elliptic curves).
	Bytes() []byte

	// Larger binary serialization ("uncompressed" point encoding for
	// elliptic curves).
	UncompressedBytes() []byte

	// Hashes the content with SHA-256 and verifies the signature against the
	// digest. Requires a "low-S" signature; returns ErrInvalidSignature on
	// mismatch.
	HashAndVerify(content, sig []byte) error

	// Multibase string encoding, including multicodec type indicator and
	// compressed serialization.
	Multibase() string

	// "did:key" string encoding, as used in identity documents.
	DIDKey() string
}

// Parses a public key in multibase encoding, with multicodec type indicator.
func ParsePublicMultibase(encoded string) (PublicKey, error) {
	if len(encoded) < 2 || encoded[0] != 'z' {
		return nil, fmt.Errorf("crypto: not a multibase base58btc string")
	}
	data, err := base58.Decode(encoded[1:])
	if err != nil {
		return nil, fmt.Errorf("crypto: not a multibase base58btc string: %w", err)
	}
	if len(data) < 3 {
		return nil, fmt.Errorf("crypto: multibase key too short")
	}
	if data[0] == 0x80 && data[1] == 0x24 {
		// multicodec p256-pub, code 0x1200
		return ParsePublicBytesP256(data[2:])
	}
	return nil, fmt.Errorf("crypto: unsupported key multicodec prefix")
}

// Parses a public key from its "did:key" string encoding.
func ParsePublicDIDKey(didKey string) (PublicKey, error) {
	encoded, ok := strings.CutPrefix(didKey, "did:key:")
	if !ok {
		return nil, fmt.Errorf("crypto: string is not a DID key: %s", didKey)
	}
	return ParsePublicMultibase(encoded)
}

// Parses a private key in multibase encoding, with multicodec type indicator.
func ParsePrivateMultibase(encoded string) (PrivateKeyExportable, error) {
	if len(encoded) < 2 || encoded[0] != 'z' {
		return nil, fmt.Errorf("crypto: not a multibase base58btc string")
	}
	data, err := base58.Decode(encoded[1:])
	if err != nil {
		return nil, fmt.Errorf("crypto: not a multibase base58btc string: %w", err)
	}
	if len(data) < 3 {
		return nil, fmt.Errorf("crypto: multibase key too short")
	}
	if data[0] == 0x86 && data[1] == 0x26 {
		// multicodec p256-priv, code 0x1306
		return ParsePrivateBytesP256(data[2:])
	}
	return nil, fmt.Errorf("crypto: unsupported key multicodec prefix")
}
