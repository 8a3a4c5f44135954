package mst

import (
	"fmt"
	"io"

	"github.com/ipfs/go-cid"
	cbg "github.com/whyrusleeping/cbor-gen"
)

// Hand-written CBOR codecs for NodeData and EntryData, in the style of
// cbor-gen output. Map keys are emitted in the canonical order for IPLD
// dag-cbor: shortest first, then bytewise.

var lengthBufNodeData = []byte{162}

func (t *NodeData) MarshalCBOR(w io.Writer) error {
	if t == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}

	cw := cbg.NewCborWriter(w)

	if _, err := cw.Write(lengthBufNodeData); err != nil {
		return err
	}

	// t.Entries ([]mst.EntryData) (slice)
	if err := cw.WriteMajorTypeHeader(cbg.MajTextString, uint64(len("e"))); err != nil {
		return err
	}
	if _, err := cw.WriteString(string("e")); err != nil {
		return err
	}

	if len(t.Entries) > cbg.MaxLength {
		return fmt.Errorf("slice value in field t.Entries was too long")
	}

	if err := cw.WriteMajorTypeHeader(cbg.MajArray, uint64(len(t.Entries))); err != nil {
		return err
	}
	for _, v := range t.Entries {
		if err := v.MarshalCBOR(cw); err != nil {
			return err
		}
	}

	// t.Left (cid.Cid) (struct)
	if err := cw.WriteMajorTypeHeader(cbg.MajTextString, uint64(len("l"))); err != nil {
		return err
	}
	if _, err := cw.WriteString(string("l")); err != nil {
		return err
	}

	if t.Left == nil {
		if _, err := cw.Write(cbg.CborNull); err != nil {
			return err
		}
	} else {
		if err := cbg.WriteCid(cw, *t.Left); err != nil {
			return fmt.Errorf("failed to write cid field t.Left: %w", err)
		}
	}

	return nil
}

func (t *NodeData) UnmarshalCBOR(r io.Reader) (err error) {
	*t = NodeData{}

	cr := cbg.NewCborReader(r)

	maj, extra, err := cr.ReadHeader()
	if err != nil {
		return err
	}
	defer func() {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
	}()

	if maj != cbg.MajMap {
		return fmt.Errorf("cbor input should be of type map")
	}

	if extra > cbg.MaxLength {
		return fmt.Errorf("NodeData: map struct too large (%d)", extra)
	}

	n := extra
	for i := uint64(0); i < n; i++ {
		name, err := cbg.ReadString(cr)
		if err != nil {
			return err
		}

		switch name {
		// t.Entries ([]mst.EntryData) (slice)
		case "e":
			maj, extra, err = cr.ReadHeader()
			if err != nil {
				return err
			}
			if extra > cbg.MaxLength {
				return fmt.Errorf("t.Entries: array too large (%d)", extra)
			}
			if maj != cbg.MajArray {
				return fmt.Errorf("expected cbor array")
			}
			if extra > 0 {
				t.Entries = make([]EntryData, extra)
			}
			for i := 0; i < int(extra); i++ {
				var v EntryData
				if err := v.UnmarshalCBOR(cr); err != nil {
					return err
				}
				t.Entries[i] = v
			}

		// t.Left (cid.Cid) (struct)
		case "l":
			b, err := cr.ReadByte()
			if err != nil {
				return err
			}
			if b != cbg.CborNull[0] {
				if err := cr.UnreadByte(); err != nil {
					return err
				}
				c, err := cbg.ReadCid(cr)
				if err != nil {
					return fmt.Errorf("failed to read cid field t.Left: %w", err)
				}
				t.Left = &c
			}

		default:
			// unknown field; skip over the value
			if err := cbg.ScanForLinks(cr, func(cid.Cid) {}); err != nil {
				return err
			}
		}
	}

	return nil
}

var lengthBufEntryData = []byte{164}

func (t *EntryData) MarshalCBOR(w io.Writer) error {
	if t == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}

	cw := cbg.NewCborWriter(w)

	if _, err := cw.Write(lengthBufEntryData); err != nil {
		return err
	}

	// t.KeySuffix ([]uint8) (slice)
	if err := cw.WriteMajorTypeHeader(cbg.MajTextString, uint64(len("k"))); err != nil {
		return err
	}
	if _, err := cw.WriteString(string("k")); err != nil {
		return err
	}

	if len(t.KeySuffix) > MaxKeyLength {
		return fmt.Errorf("byte array in field t.KeySuffix was too long")
	}

	if err := cw.WriteMajorTypeHeader(cbg.MajByteString, uint64(len(t.KeySuffix))); err != nil {
		return err
	}
	if _, err := cw.Write(t.KeySuffix); err != nil {
		return err
	}

	// t.PrefixLen (int64) (int64)
	if err := cw.WriteMajorTypeHeader(cbg.MajTextString, uint64(len("p"))); err != nil {
		return err
	}
	if _, err := cw.WriteString(string("p")); err != nil {
		return err
	}

	if t.PrefixLen >= 0 {
		if err := cw.WriteMajorTypeHeader(cbg.MajUnsignedInt, uint64(t.PrefixLen)); err != nil {
			return err
		}
	} else {
		if err := cw.WriteMajorTypeHeader(cbg.MajNegativeInt, uint64(-t.PrefixLen-1)); err != nil {
			return err
		}
	}

	// t.Right (cid.Cid) (struct)
	if err := cw.WriteMajorTypeHeader(cbg.MajTextString, uint64(len("t"))); err != nil {
		return err
	}
	if _, err := cw.WriteString(string("t")); err != nil {
		return err
	}

	if t.Right == nil {
		if _, err := cw.Write(cbg.CborNull); err != nil {
			return err
		}
	} else {
		if err := cbg.WriteCid(cw, *t.Right); err != nil {
			return fmt.Errorf("failed to write cid field t.Right: %w", err)
		}
	}

	// t.Value (cid.Cid) (struct)
	if err := cw.WriteMajorTypeHeader(cbg.MajTextString, uint64(len("v"))); err != nil {
		return err
	}
	if _, err := cw.WriteString(string("v")); err != nil {
		return err
	}

	if err := cbg.WriteCid(cw, t.Value); err != nil {
		return fmt.Errorf("failed to write cid field t.Value: %w", err)
	}

	return nil
}

func (t *EntryData) UnmarshalCBOR(r io.Reader) (err error) {
	*t = EntryData{}

	cr := cbg.NewCborReader(r)

	maj, extra, err := cr.ReadHeader()
	if err != nil {
		return err
	}
	defer func() {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
	}()

	if maj != cbg.MajMap {
		return fmt.Errorf("cbor input should be of type map")
	}

	if extra > cbg.MaxLength {
		return fmt.Errorf("EntryData: map struct too large (%d)", extra)
	}

	n := extra
	for i := uint64(0); i < n; i++ {
		name, err := cbg.ReadString(cr)
		if err != nil {
			return err
		}

		switch name {
		// t.KeySuffix ([]uint8) (slice)
		case "k":
			b, err := cbg.ReadByteArray(cr, uint64(MaxKeyLength))
			if err != nil {
				return err
			}
			t.KeySuffix = b

		// t.PrefixLen (int64) (int64)
		case "p":
			maj, extra, err := cr.ReadHeader()
			if err != nil {
				return err
			}
			var extraI int64
			switch maj {
			case cbg.MajUnsignedInt:
				extraI = int64(extra)
				if extraI < 0 {
					return fmt.Errorf("int64 positive overflow")
				}
			case cbg.MajNegativeInt:
				extraI = int64(extra)
				if extraI < 0 {
					return fmt.Errorf("int64 negative overflow")
				}
				extraI = -1 - extraI
			default:
				return fmt.Errorf("wrong type for int64 field: %d", maj)
			}
			t.PrefixLen = extraI

		// t.Right (cid.Cid) (struct)
		case "t":
			b, err := cr.ReadByte()
			if err != nil {
				return err
			}
			if b != cbg.CborNull[0] {
				if err := cr.UnreadByte(); err != nil {
					return err
				}
				c, err := cbg.ReadCid(cr)
				if err != nil {
					return fmt.Errorf("failed to read cid field t.Right: %w", err)
				}
				t.Right = &c
			}

		// t.Value (cid.Cid) (struct)
		case "v":
			c, err := cbg.ReadCid(cr)
			if err != nil {
				return fmt.Errorf("failed to read cid field t.Value: %w", err)
			}
			t.Value = c

		default:
			// unknown field; skip over the value
			if err := cbg.ScanForLinks(cr, func(cid.Cid) {}); err != nil {
				return err
			}
		}
	}

	return nil
}
