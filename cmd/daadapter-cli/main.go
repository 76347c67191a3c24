// Command daadapter-cli is an operator tool for one-shot inscribe and
// verify operations, run directly in-process against the same
// components daadapterd wires up rather than against a running daemon
// over RPC.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/sovbtc/bitcoin-da/chain/mempool"
	"github.com/sovbtc/bitcoin-da/client"
	"github.com/sovbtc/bitcoin-da/daverifier"
)

func main() {
	app := cli.NewApp()
	app.Name = "daadapter-cli"
	app.Usage = "operator tool for the Bitcoin data-availability adapter"
	app.Commands = []cli.Command{
		inscribeCommand,
		verifyCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var commonFlags = []cli.Flag{
	cli.StringFlag{Name: "network", Value: "mainnet", Usage: "mainnet, testnet, or regtest"},
	cli.StringFlag{Name: "rollupname", Usage: "rollup name tagged on the envelope", Required: true},
	cli.StringFlag{Name: "dbpath", Value: "daadapter.db", Usage: "SQLite validity-condition store path"},
	cli.StringFlag{Name: "seedfile", Usage: "path to the raw wallet seed", Required: true},
	cli.StringFlag{Name: "mempoolurl", Usage: "mempool.space API root override"},
}

func newClient(c *cli.Context) (*client.Client, error) {
	seed, err := os.ReadFile(c.String("seedfile"))
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	return client.New(&client.Config{
		Network:    c.String("network"),
		RollupName: c.String("rollupname"),
		DBPath:     c.String("dbpath"),
		Seed:       seed,
		MempoolURL: c.String("mempoolurl"),
	})
}

var inscribeCommand = cli.Command{
	Name:  "inscribe",
	Usage: "build a commit/reveal inscription pair for a blob and optionally broadcast it",
	Flags: append(commonFlags,
		cli.StringFlag{Name: "bodyfile", Usage: "path to the raw blob body", Required: true},
		cli.StringFlag{Name: "recipient", Usage: "address the reveal output pays to", Required: true},
		cli.StringFlag{Name: "fundingaddress", Usage: "address to source commit funding UTXOs from", Required: true},
		cli.Float64Flag{Name: "commitfeerate", Value: 10, Usage: "commit transaction fee rate, sat/vbyte"},
		cli.Float64Flag{Name: "revealfeerate", Value: 10, Usage: "reveal transaction fee rate, sat/vbyte"},
		cli.BoolFlag{Name: "broadcast", Usage: "broadcast both transactions after building them"},
	),
	Action: func(c *cli.Context) error {
		ctx := context.Background()

		cl, err := newClient(c)
		if err != nil {
			return err
		}

		body, err := os.ReadFile(c.String("bodyfile"))
		if err != nil {
			return fmt.Errorf("read body file: %w", err)
		}

		utxos, err := cl.SpendableUTXOs(ctx, c.String("fundingaddress"))
		if err != nil {
			return fmt.Errorf("list funding UTXOs: %w", err)
		}
		if len(utxos) == 0 {
			return fmt.Errorf("no spendable UTXOs at %s", c.String("fundingaddress"))
		}

		commitTx, revealTx, _, err := cl.Inscribe(ctx, client.InscribeParams{
			Body:          body,
			Recipient:     c.String("recipient"),
			FundingUTXOs:  utxos,
			CommitFeeRate: c.Float64("commitfeerate"),
			RevealFeeRate: c.Float64("revealfeerate"),
		})
		if err != nil {
			return fmt.Errorf("build inscription: %w", err)
		}

		commitTxid := commitTx.TxHash()
		revealTxid := revealTx.TxHash()
		fmt.Printf("commit txid: %s\n", commitTxid)
		fmt.Printf("reveal txid: %s\n", revealTxid)

		if !c.Bool("broadcast") {
			return nil
		}

		if _, err := cl.Broadcast(ctx, commitTx); err != nil {
			return fmt.Errorf("broadcast commit: %w", err)
		}
		txid, err := cl.Broadcast(ctx, revealTx)
		if err != nil {
			return fmt.Errorf("broadcast reveal: %w", err)
		}
		fmt.Printf("broadcast reveal: %s\n", txid)
		return nil
	},
}

// expectedBlob is the JSON shape of one entry in the --blobsfile
// supplied to the verify command: the rollup's own record of a blob it
// sent, independent of anything recovered from chain data. Hash is the
// double-SHA256 of the compressed body as it was committed on-chain,
// which the sequencer records at send time; it cannot be re-derived
// from the decompressed blob alone.
type expectedBlob struct {
	Blob   string `json:"blob"`   // base64, decompressed
	Sender string `json:"sender"` // base64, sequencer public key
	Hash   string `json:"hash"`   // base64, double-SHA256 of the compressed body
}

var verifyCommand = cli.Command{
	Name:  "verify",
	Usage: "verify a block's relevant transaction list against an expected blob set",
	Flags: append(commonFlags,
		cli.Int64Flag{Name: "height", Usage: "block height to verify", Required: true},
		cli.StringFlag{Name: "blobsfile", Usage: "JSON file listing the blobs expected in this block"},
	),
	Action: func(c *cli.Context) error {
		ctx := context.Background()
		height := c.Int64("height")

		cl, err := newClient(c)
		if err != nil {
			return err
		}

		mempoolCfg := mempool.DefaultConfig()
		if url := c.String("mempoolurl"); url != "" {
			mempoolCfg.BaseURL = url
		}
		bridge := mempool.NewChainBridge(mempool.DefaultChainBridgeConfig(mempool.NewClient(mempoolCfg)))

		header, err := bridge.BlockHeaderAt(ctx, height)
		if err != nil {
			return fmt.Errorf("fetch block header: %w", err)
		}
		inclusion, err := bridge.InclusionProofAt(ctx, height)
		if err != nil {
			return fmt.Errorf("fetch inclusion proof: %w", err)
		}
		completeness, err := bridge.RelevantTransactionsAt(ctx, height)
		if err != nil {
			return fmt.Errorf("fetch relevant transactions: %w", err)
		}

		blobs, err := loadExpectedBlobs(c.String("blobsfile"))
		if err != nil {
			return err
		}

		cond, err := cl.VerifyBlock(ctx, height, *header, blobs, inclusion, completeness)
		if err != nil {
			return fmt.Errorf("verify block %d: %w", height, err)
		}

		fmt.Printf("block %d ok: prev=%s block=%s\n", height, cond.PrevHash, cond.BlockHash)
		return nil
	},
}

func loadExpectedBlobs(path string) ([]*daverifier.BlobWithSender, error) {
	if path == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read blobs file: %w", err)
	}

	var entries []expectedBlob
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse blobs file: %w", err)
	}

	blobs := make([]*daverifier.BlobWithSender, len(entries))
	for i, e := range entries {
		blob, err := base64.StdEncoding.DecodeString(e.Blob)
		if err != nil {
			return nil, fmt.Errorf("decode blob %d: %w", i, err)
		}
		sender, err := base64.StdEncoding.DecodeString(e.Sender)
		if err != nil {
			return nil, fmt.Errorf("decode sender %d: %w", i, err)
		}
		hashBytes, err := base64.StdEncoding.DecodeString(e.Hash)
		if err != nil {
			return nil, fmt.Errorf("decode hash %d: %w", i, err)
		}
		var hash [32]byte
		copy(hash[:], hashBytes)
		blobs[i] = daverifier.NewBlobWithSender(blob, sender, hash)
	}
	return blobs, nil
}
