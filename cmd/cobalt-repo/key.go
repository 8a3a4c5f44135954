package main

import (
	"fmt"

	"github.com/cobalt-social/cobalt/crypto"

	"github.com/urfave/cli/v2"
)

var cmdKey = &cli.Command{
	Name:  "key",
	Usage: "sub-commands for cryptographic keys",
	Subcommands: []*cli.Command{
		&cli.Command{
			Name:  "generate",
			Usage: "outputs a new secret key",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "terse",
					Usage: "print just the secret key, in multibase format",
				},
			},
			Action: runKeyGenerate,
		},
		&cli.Command{
			Name:      "inspect",
			Usage:     "parses and outputs metadata about a public or secret key",
			ArgsUsage: `<key>`,
			Action:    runKeyInspect,
		},
	},
}

func runKeyGenerate(cctx *cli.Context) error {
	sec, err := crypto.GeneratePrivateKeyP256()
	if err != nil {
		return err
	}
	if cctx.Bool("terse") {
		fmt.Println(sec.Multibase())
		return nil
	}
	pub, err := sec.PublicKey()
	if err != nil {
		return err
	}
	fmt.Printf("Key Type: P-256 / secp256r1 / ES256\n")
	fmt.Printf("Secret Key (Multibase Syntax): save this securely (eg, add to password manager)\n\t%s\n", sec.Multibase())
	fmt.Printf("Public Key (DID Key Syntax): share or publish this (eg, in DID document)\n\t%s\n", pub.DIDKey())
	return nil
}

func runKeyInspect(cctx *cli.Context) error {
	s := cctx.Args().First()
	if s == "" {
		return fmt.Errorf("need to provide key as an argument")
	}

	sec, err := crypto.ParsePrivateMultibase(s)
	if nil == err {
		fmt.Printf("Type: private key\n")
		fmt.Printf("Encoding: multibase\n")
		pub, err := sec.PublicKey()
		if err != nil {
			return err
		}
		fmt.Printf("Public (DID Key): %s\n", pub.DIDKey())
		return nil
	}

	pub, err := crypto.ParsePublicMultibase(s)
	if nil == err {
		fmt.Printf("Type: public key\n")
		fmt.Printf("Encoding: multibase\n")
		fmt.Printf("As DID Key: %s\n", pub.DIDKey())
		return nil
	}

	pub, err = crypto.ParsePublicDIDKey(s)
	if nil == err {
		fmt.Printf("Type: public key\n")
		fmt.Printf("Encoding: DID Key\n")
		fmt.Printf("As Multibase: %s\n", pub.Multibase())
		return nil
	}
	return fmt.Errorf("unknown key encoding or type")
}
