package repo

import (
	"fmt"
	"io"

	"github.com/ipfs/go-cid"
	cbg "github.com/whyrusleeping/cbor-gen"
)

// Hand-written CBOR codec for Commit, in the style of cbor-gen output. Map
// keys are emitted in the canonical order for IPLD dag-cbor: shortest first,
// then bytewise. Sig and Rev are omitted when empty; Prev is always present
// (null when there is no previous commit).

func (t *Commit) MarshalCBOR(w io.Writer) error {
	if t == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}

	cw := cbg.NewCborWriter(w)

	fieldCount := uint64(4)
	if t.Rev != "" {
		fieldCount++
	}
	if t.Sig != nil {
		fieldCount++
	}
	if err := cw.WriteMajorTypeHeader(cbg.MajMap, fieldCount); err != nil {
		return err
	}

	// t.DID (string) (string)
	if err := cw.WriteMajorTypeHeader(cbg.MajTextString, uint64(len("did"))); err != nil {
		return err
	}
	if _, err := cw.WriteString(string("did")); err != nil {
		return err
	}

	if len(t.DID) > cbg.MaxLength {
		return fmt.Errorf("value in field t.DID was too long")
	}

	if err := cw.WriteMajorTypeHeader(cbg.MajTextString, uint64(len(t.DID))); err != nil {
		return err
	}
	if _, err := cw.WriteString(string(t.DID)); err != nil {
		return err
	}

	// t.Rev (string) (string)
	if t.Rev != "" {
		if err := cw.WriteMajorTypeHeader(cbg.MajTextString, uint64(len("rev"))); err != nil {
			return err
		}
		if _, err := cw.WriteString(string("rev")); err != nil {
			return err
		}

		if len(t.Rev) > cbg.MaxLength {
			return fmt.Errorf("value in field t.Rev was too long")
		}

		if err := cw.WriteMajorTypeHeader(cbg.MajTextString, uint64(len(t.Rev))); err != nil {
			return err
		}
		if _, err := cw.WriteString(string(t.Rev)); err != nil {
			return err
		}
	}

	// t.Sig ([]uint8) (slice)
	if t.Sig != nil {
		if err := cw.WriteMajorTypeHeader(cbg.MajTextString, uint64(len("sig"))); err != nil {
			return err
		}
		if _, err := cw.WriteString(string("sig")); err != nil {
			return err
		}

		if len(t.Sig) > cbg.ByteArrayMaxLen {
			return fmt.Errorf("byte array in field t.Sig was too long")
		}

		if err := cw.WriteMajorTypeHeader(cbg.MajByteString, uint64(len(t.Sig))); err != nil {
			return err
		}
		if _, err := cw.Write(t.Sig); err != nil {
			return err
		}
	}

	// t.Data (cid.Cid) (struct)
	if err := cw.WriteMajorTypeHeader(cbg.MajTextString, uint64(len("data"))); err != nil {
		return err
	}
	if _, err := cw.WriteString(string("data")); err != nil {
		return err
	}

	if err := cbg.WriteCid(cw, t.Data); err != nil {
		return fmt.Errorf("failed to write cid field t.Data: %w", err)
	}

	// t.Prev (cid.Cid) (struct)
	if err := cw.WriteMajorTypeHeader(cbg.MajTextString, uint64(len("prev"))); err != nil {
		return err
	}
	if _, err := cw.WriteString(string("prev")); err != nil {
		return err
	}

	if t.Prev == nil {
		if _, err := cw.Write(cbg.CborNull); err != nil {
			return err
		}
	} else {
		if err := cbg.WriteCid(cw, *t.Prev); err != nil {
			return fmt.Errorf("failed to write cid field t.Prev: %w", err)
		}
	}

	// t.Version (int64) (int64)
	if err := cw.WriteMajorTypeHeader(cbg.MajTextString, uint64(len("version"))); err != nil {
		return err
	}
	if _, err := cw.WriteString(string("version")); err != nil {
		return err
	}

	if t.Version >= 0 {
		if err := cw.WriteMajorTypeHeader(cbg.MajUnsignedInt, uint64(t.Version)); err != nil {
			return err
		}
	} else {
		if err := cw.WriteMajorTypeHeader(cbg.MajNegativeInt, uint64(-t.Version-1)); err != nil {
			return err
		}
	}

	return nil
}

func (t *Commit) UnmarshalCBOR(r io.Reader) (err error) {
	*t = Commit{}

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
		return fmt.Errorf("Commit: map struct too large (%d)", extra)
	}

	n := extra
	for i := uint64(0); i < n; i++ {
		name, err := cbg.ReadString(cr)
		if err != nil {
			return err
		}

		switch name {
		// t.DID (string) (string)
		case "did":
			sval, err := cbg.ReadString(cr)
			if err != nil {
				return err
			}
			t.DID = string(sval)

		// t.Rev (string) (string)
		case "rev":
			sval, err := cbg.ReadString(cr)
			if err != nil {
				return err
			}
			t.Rev = string(sval)

		// t.Sig ([]uint8) (slice)
		case "sig":
			b, err := cbg.ReadByteArray(cr, uint64(cbg.ByteArrayMaxLen))
			if err != nil {
				return err
			}
			t.Sig = b

		// t.Data (cid.Cid) (struct)
		case "data":
			c, err := cbg.ReadCid(cr)
			if err != nil {
				return fmt.Errorf("failed to read cid field t.Data: %w", err)
			}
			t.Data = c

		// t.Prev (cid.Cid) (struct)
		case "prev":
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
					return fmt.Errorf("failed to read cid field t.Prev: %w", err)
				}
				t.Prev = &c
			}

		// t.Version (int64) (int64)
		case "version":
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
			t.Version = extraI

		default:
			// unknown field; skip over the value
			if err := cbg.ScanForLinks(cr, func(cid.Cid) {}); err != nil {
				return err
			}
		}
	}

	return nil
}
