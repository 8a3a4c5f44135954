// Package carutil implements streaming frame-level reading and writing of
// CARv1 archives, with bounded allocation and per-frame CID verification.
package carutil

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	car "github.com/ipld/go-car"
)

// Returned (possibly wrapped) for any malformed archive input: truncated
// frames, oversized sections, unsupported versions, or frame data whose hash
// does not match its CID.
var ErrCorruptArchive = errors.New("corrupt CAR archive")

// Upper bound on a single frame's length prefix. Frames claiming more are
// rejected before allocation.
const MaxAllowedSectionSize = 32 << 20

// Streaming CARv1 frame reader. Each frame's payload is re-hashed and
// checked against the frame's CID before it is returned.
type Reader struct {
	r *bufio.Reader
}

// Reads and validates the archive header, returning the frame reader and the
// archive's single root CID.
func NewReader(r *bufio.Reader) (*Reader, cid.Cid, error) {
	h, err := car.ReadHeader(r)
	if err != nil {
		return nil, cid.Undef, fmt.Errorf("%w: reading header: %w", ErrCorruptArchive, err)
	}

	if h.Version != 1 {
		return nil, cid.Undef, fmt.Errorf("%w: unsupported version: %d", ErrCorruptArchive, h.Version)
	}

	if len(h.Roots) != 1 {
		return nil, cid.Undef, fmt.Errorf("%w: expected exactly 1 root", ErrCorruptArchive)
	}

	return &Reader{
		r: r,
	}, h.Roots[0], nil
}

// Returns the next block in the archive, or io.EOF at the clean end of the
// stream. A stream that ends mid-frame fails with ErrCorruptArchive.
func (r *Reader) NextBlock() (blocks.Block, error) {
	data, err := ldRead(r.r)
	if err != nil {
		return nil, err
	}

	n, c, err := cid.CidFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: bad frame CID: %w", ErrCorruptArchive, err)
	}

	payload := data[n:]
	sum, err := c.Prefix().Sum(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: unsupported CID prefix: %w", ErrCorruptArchive, err)
	}
	if !sum.Equals(c) {
		return nil, fmt.Errorf("%w: frame data does not match CID %s", ErrCorruptArchive, c)
	}

	return blocks.NewBlockWithCid(payload, c)
}

func ldRead(r *bufio.Reader) ([]byte, error) {
	if _, err := r.Peek(1); err != nil { // no more frames, likely clean io.EOF
		return nil, err
	}

	l, err := binary.ReadUvarint(r)
	if err != nil {
		if err == io.EOF {
			// mid-frame EOF is not a clean end of stream
			return nil, fmt.Errorf("%w: %w", ErrCorruptArchive, io.ErrUnexpectedEOF)
		}
		// overlong or otherwise malformed varint
		return nil, fmt.Errorf("%w: bad frame length prefix: %w", ErrCorruptArchive, err)
	}

	if l > uint64(MaxAllowedSectionSize) { // don't OOM
		return nil, fmt.Errorf("%w: frame larger than MaxAllowedSectionSize", ErrCorruptArchive)
	}

	buf := make([]byte, l)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: %w", ErrCorruptArchive, io.ErrUnexpectedEOF)
		}
		return nil, err
	}

	return buf, nil
}

// Writes one uvarint length prefix covering all the byte slices, then the
// slices themselves. The frame encoding for CARv1 sections.
func LdWrite(w io.Writer, d ...[]byte) (int64, error) {
	var sum uint64
	for _, s := range d {
		sum += uint64(len(s))
	}

	buf := make([]byte, 8)
	n := binary.PutUvarint(buf, sum)
	nw, err := w.Write(buf[:n])
	if err != nil {
		return 0, err
	}

	for _, s := range d {
		onw, err := w.Write(s)
		if err != nil {
			return int64(nw), err
		}
		nw += onw
	}

	return int64(nw), nil
}
