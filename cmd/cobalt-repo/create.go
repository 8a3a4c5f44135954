package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/cobalt-social/cobalt/crypto"
	"github.com/cobalt-social/cobalt/repo"
	"github.com/cobalt-social/cobalt/syntax"

	"github.com/urfave/cli/v2"
	cbg "github.com/whyrusleeping/cbor-gen"
)

var cmdCreate = &cli.Command{
	Name:      "create",
	Usage:     "generate a signed repository with synthetic records, as a CAR file",
	ArgsUsage: `<car-file>`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "did",
			Usage: "account DID for the repository",
			Value: "did:plc:s7ngygvclc2xgmtvs2nhcoba",
		},
		&cli.StringFlag{
			Name:  "collection",
			Usage: "collection NSID for the synthetic records",
			Value: "app.cobalt.feed.post",
		},
		&cli.IntFlag{
			Name:    "count",
			Aliases: []string{"n"},
			Usage:   "number of records to create",
			Value:   50,
		},
		&cli.StringFlag{
			Name:    "signing-key",
			Aliases: []string{"k"},
			Usage:   "secret key (multibase syntax) to sign with; generates a new P-256 key if not set",
			EnvVars: []string{"COBALT_SIGNING_SECRET_KEY"},
		},
	},
	Action: runCreate,
}

func runCreate(cctx *cli.Context) error {
	ctx := cctx.Context

	carPath := cctx.Args().First()
	if carPath == "" {
		return fmt.Errorf("need to provide output CAR file path as argument")
	}
	if _, err := os.Stat(carPath); err == nil {
		return fmt.Errorf("file already exists: %s", carPath)
	}

	did, err := syntax.ParseDID(cctx.String("did"))
	if err != nil {
		return err
	}
	collection, err := syntax.ParseNSID(cctx.String("collection"))
	if err != nil {
		return err
	}

	var priv crypto.PrivateKey
	if s := cctx.String("signing-key"); s != "" {
		priv, err = crypto.ParsePrivateMultibase(s)
		if err != nil {
			return err
		}
	} else {
		sec, err := crypto.GeneratePrivateKeyP256()
		if err != nil {
			return err
		}
		fmt.Printf("Secret Key (Multibase Syntax): %s\n", sec.Multibase())
		priv = sec
	}
	pub, err := priv.PublicKey()
	if err != nil {
		return err
	}
	fmt.Printf("Public Key (DID Key Syntax): %s\n", pub.DIDKey())

	r := repo.NewRepo(did)
	for i := 0; i < cctx.Int("count"); i++ {
		rec, err := makeRecord(collection.String(), fmt.Sprintf("synthetic post number %d", i))
		if err != nil {
			return err
		}
		if _, _, err := r.CreateRecord(ctx, collection, rec); err != nil {
			return err
		}
	}

	commit, err := r.SignCommit(ctx, priv)
	if err != nil {
		return err
	}

	fi, err := os.Create(carPath)
	if err != nil {
		return err
	}
	defer fi.Close()
	if err := r.WriteCAR(ctx, fi); err != nil {
		return err
	}
	fmt.Printf("wrote %s at revision %s\n", carPath, commit.Rev)
	return nil
}

// Encodes a minimal DAG-CBOR record: {"text": <text>, "$type": <collection>}.
// Map keys in canonical order (length, then bytewise).
func makeRecord(collection, text string) ([]byte, error) {
	buf := new(bytes.Buffer)
	cw := cbg.NewCborWriter(buf)
	if err := cw.WriteMajorTypeHeader(cbg.MajMap, 2); err != nil {
		return nil, err
	}
	for _, kv := range [][2]string{{"text", text}, {"$type", collection}} {
		for _, s := range kv {
			if err := cw.WriteMajorTypeHeader(cbg.MajTextString, uint64(len(s))); err != nil {
				return nil, err
			}
			if _, err := cw.WriteString(s); err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}
