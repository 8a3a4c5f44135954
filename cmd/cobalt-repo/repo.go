package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cobalt-social/cobalt/crypto"
	"github.com/cobalt-social/cobalt/repo"
	"github.com/cobalt-social/cobalt/syntax"

	"github.com/ipfs/go-cid"
	"github.com/urfave/cli/v2"
)

var cmdInspect = &cli.Command{
	Name:      "inspect",
	Usage:     "show commit metadata from CAR file",
	ArgsUsage: `<car-file>`,
	Action:    runInspect,
}

var cmdVerify = &cli.Command{
	Name:      "verify",
	Usage:     "check tree structure and commit of a CAR file",
	ArgsUsage: `<car-file>`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "signing-key",
			Aliases: []string{"k"},
			Usage:   "public key (did:key syntax) to check commit signature against",
			EnvVars: []string{"COBALT_SIGNING_KEY"},
		},
	},
	Action: runVerify,
}

var cmdList = &cli.Command{
	Name:      "ls",
	Aliases:   []string{"list"},
	Usage:     "list records in CAR file",
	ArgsUsage: `<car-file>`,
	Action:    runList,
}

var cmdUnpack = &cli.Command{
	Name:      "unpack",
	Usage:     "extract records from CAR file as a directory of CBOR files",
	ArgsUsage: `<car-file>`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "directory path for unpack",
		},
	},
	Action: runUnpack,
}

func loadRepoFromFile(cctx *cli.Context) (*repo.Commit, *repo.Repo, error) {
	carPath := cctx.Args().First()
	if carPath == "" {
		return nil, nil, fmt.Errorf("need to provide path to CAR file as argument")
	}
	fi, err := os.Open(carPath)
	if err != nil {
		return nil, nil, err
	}
	defer fi.Close()

	return repo.LoadFromCAR(cctx.Context, fi)
}

func runInspect(cctx *cli.Context) error {
	commit, _, err := loadRepoFromFile(cctx)
	if err != nil {
		return err
	}

	fmt.Printf("Repo Format Version: %d\n", commit.Version)
	fmt.Printf("DID: %s\n", commit.DID)
	fmt.Printf("Data CID: %s\n", commit.Data)
	if commit.Prev != nil {
		fmt.Printf("Prev CID: %s\n", commit.Prev)
	} else {
		fmt.Printf("Prev CID: <nil>\n")
	}
	fmt.Printf("Revision: %s\n", commit.Rev)
	return nil
}

func runVerify(cctx *cli.Context) error {
	commit, r, err := loadRepoFromFile(cctx)
	if err != nil {
		return err
	}

	if err := r.MST.Verify(); err != nil {
		return err
	}
	fmt.Println("tree structure: valid")

	root, err := r.MST.RootCID()
	if err != nil {
		return err
	}
	if *root != commit.Data {
		return fmt.Errorf("recomputed tree root does not match commit: %s", root)
	}
	fmt.Printf("tree root: %s (matches commit)\n", root)

	if r.MST.IsPartial() {
		fmt.Println("tree is partial: some records could not be checked")
	}

	if didKey := cctx.String("signing-key"); didKey != "" {
		pub, err := crypto.ParsePublicDIDKey(didKey)
		if err != nil {
			return err
		}
		if err := commit.VerifySignature(pub); err != nil {
			return err
		}
		fmt.Println("commit signature: valid")
	}
	return nil
}

func runList(cctx *cli.Context) error {
	_, r, err := loadRepoFromFile(cctx)
	if err != nil {
		return err
	}

	return r.ForEachRecord(cctx.Context, "", func(path string, val cid.Cid) error {
		fmt.Printf("%s\t%s\n", path, val)
		return nil
	})
}

func runUnpack(cctx *cli.Context) error {
	ctx := cctx.Context
	commit, r, err := loadRepoFromFile(cctx)
	if err != nil {
		return err
	}

	did, err := syntax.ParseDID(commit.DID)
	if err != nil {
		return err
	}

	topDir := cctx.String("output")
	if topDir == "" {
		topDir = did.String()
	}
	fmt.Printf("writing output to: %s\n", topDir)

	// the commit object first, as a meta file
	commitPath := filepath.Join(topDir, "_commit.json")
	if err := os.MkdirAll(topDir, os.ModePerm); err != nil {
		return err
	}
	commitJSON, err := json.MarshalIndent(commit, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(commitPath, commitJSON, 0666); err != nil {
		return err
	}

	// then the actual records, as raw DAG-CBOR
	return r.ForEachRecord(ctx, "", func(path string, val cid.Cid) error {
		nsid, rkey, err := syntax.ParseRepoPath(path)
		if err != nil {
			return err
		}
		recBytes, err := r.GetRecordBytes(ctx, nsid, rkey)
		if err != nil {
			return err
		}
		recPath := filepath.Join(topDir, path+".cbor")
		fmt.Println(recPath)
		if err := os.MkdirAll(filepath.Dir(recPath), os.ModePerm); err != nil {
			return err
		}
		return os.WriteFile(recPath, recBytes, 0666)
	})
}
