// Package client is the embeddable SDK for this adapter: construct a
// Client once per sequencer or verifier process, then call Inscribe or
// VerifyBlock per rollup block.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"

	"github.com/sovbtc/bitcoin-da/chain/mempool"
	"github.com/sovbtc/bitcoin-da/daverifier"
	"github.com/sovbtc/bitcoin-da/db"
	"github.com/sovbtc/bitcoin-da/envelope"
	"github.com/sovbtc/bitcoin-da/keyring"
	"github.com/sovbtc/bitcoin-da/txbuilder"
)

// Config holds client configuration.
type Config struct {
	// Network is "mainnet", "testnet", or "regtest".
	Network string

	// RollupName tags every envelope this client builds or accepts.
	RollupName string

	// DBPath is the SQLite validity-condition store's file path, or
	// ":memory:" for an ephemeral store.
	DBPath string

	// Seed is the 16-64 byte wallet seed the keyring derives from.
	Seed []byte

	// MempoolURL overrides the default mempool.space API root.
	MempoolURL string
}

// Client wires the chain bridge, keyring, validity-condition store, and
// the builder/verifier pair into a single embeddable handle.
type Client struct {
	cfg *Config

	netParams *chaincfg.Params

	chainBridge *mempool.ChainBridge
	keyRing     *keyring.KeyRing
	store       *db.Store
	verifier    *daverifier.Verifier
}

// New wires up a Client: chain bridge, then keyring, then the
// validity-condition store, matching the teacher's task-ordered
// construction in lightweight-wallet/client.New.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("client: config required")
	}
	if cfg.RollupName == "" {
		return nil, fmt.Errorf("client: rollup name required")
	}

	netParams := networkParams(cfg.Network)

	mempoolCfg := mempool.DefaultConfig()
	if cfg.MempoolURL != "" {
		mempoolCfg.BaseURL = cfg.MempoolURL
	}
	mempoolClient := mempool.NewClient(mempoolCfg)
	chainBridge := mempool.NewChainBridge(mempool.DefaultChainBridgeConfig(mempoolClient))

	keyRingCfg := keyring.DefaultConfig(cfg.Seed, netParams)
	keyRing, err := keyring.New(keyRingCfg)
	if err != nil {
		return nil, fmt.Errorf("client: create keyring: %w", err)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("client: open database: %w", err)
	}
	store := db.NewStore(database)

	return &Client{
		cfg:         cfg,
		netParams:   netParams,
		chainBridge: chainBridge,
		keyRing:     keyRing,
		store:       store,
		verifier:    daverifier.New(cfg.RollupName),
	}, nil
}

// Start begins the chain bridge's block-tip polling.
func (c *Client) Start() error {
	log.Infof("starting chain bridge for rollup %q on %s", c.cfg.RollupName, c.cfg.Network)
	return c.chainBridge.Start()
}

// Stop halts the chain bridge.
func (c *Client) Stop() error {
	log.Infof("stopping chain bridge")
	return c.chainBridge.Stop()
}

// InscribeParams groups the inputs to Inscribe beyond the blob body
// itself.
type InscribeParams struct {
	Body          []byte
	Recipient     string
	FundingUTXOs  []txbuilder.UTXO
	CommitFeeRate float64
	RevealFeeRate float64
}

// Inscribe signs and compresses a rollup blob, then builds the
// commit/reveal transaction pair that inscribes it, mining the reveal
// transaction's proof of work. It does not broadcast either transaction;
// callers decide when and how (directly via the chain bridge, or after
// exporting PSBTs for an external signer). iterations reports how many
// nonces the proof-of-work mining loop tried.
func (c *Client) Inscribe(ctx context.Context, p InscribeParams) (commitTx, revealTx *wire.MsgTx, iterations int64, err error) {
	recipient, err := btcutil.DecodeAddress(p.Recipient, c.netParams)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("client: recipient address: %w", err)
	}

	sequencerKey, err := c.keyRing.SequencerKey(ctx)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("client: sequencer key: %w", err)
	}

	compressed := envelope.CompressBlob(p.Body)
	signature, publicKey, err := envelope.SignBlob(sequencerKey, compressed)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("client: sign blob: %w", err)
	}

	commitKey, err := c.keyRing.NextCommitKey(ctx)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("client: commit key: %w", err)
	}

	commitTx, revealTx, iterations, err = txbuilder.CreateInscriptionTransactions(ctx, txbuilder.CreateInscriptionParams{
		RollupName:         c.cfg.RollupName,
		Body:               compressed,
		Signature:          signature,
		SequencerPublicKey: publicKey,
		UTXOs:              p.FundingUTXOs,
		Recipient:          recipient,
		CommitFeeRate:      p.CommitFeeRate,
		RevealFeeRate:      p.RevealFeeRate,
		Params:             c.netParams,
		CommitPrivateKey:   commitKey,
	})
	if err != nil {
		return nil, nil, 0, err
	}

	log.Infof("built inscription for rollup %q after %d mining iterations", c.cfg.RollupName, iterations)

	return commitTx, revealTx, iterations, nil
}

// Broadcast submits a built transaction through the chain bridge.
func (c *Client) Broadcast(ctx context.Context, tx *wire.MsgTx) (string, error) {
	return c.chainBridge.Broadcast(ctx, tx)
}

// SpendableUTXOs lists the sequencer's funding UTXOs at an address,
// ready to pass as InscribeParams.FundingUTXOs.
func (c *Client) SpendableUTXOs(ctx context.Context, address string) ([]txbuilder.UTXO, error) {
	return c.chainBridge.SpendableUTXOs(ctx, address)
}

// VerifyBlock verifies the relevant transactions in a single block
// against a supplied blob list, combines the result onto the previously
// stored validity condition chain, and persists the new tip. It is the
// sole place a rollup's growing chain-of-custody is advanced.
func (c *Client) VerifyBlock(
	ctx context.Context,
	height int64,
	header daverifier.BlockHeader,
	blobs []*daverifier.BlobWithSender,
	inclusion daverifier.InclusionProof,
	completeness daverifier.CompletenessProof,
) (daverifier.ChainValidityCondition, error) {
	cond, err := c.verifier.VerifyRelevantTxList(&header, blobs, inclusion, completeness)
	if err != nil {
		return daverifier.ChainValidityCondition{}, fmt.Errorf("client: verify block %d: %w", height, err)
	}

	prev, _, ok, err := c.store.Latest(ctx)
	if err != nil {
		return daverifier.ChainValidityCondition{}, fmt.Errorf("client: load previous validity condition: %w", err)
	}
	if ok {
		cond, err = prev.Combine(cond)
		if err != nil {
			return daverifier.ChainValidityCondition{}, fmt.Errorf("client: combine validity conditions: %w", err)
		}
	}

	if err := c.store.PutValidityCondition(ctx, height, cond, nowUnix()); err != nil {
		return daverifier.ChainValidityCondition{}, fmt.Errorf("client: persist validity condition: %w", err)
	}

	log.Debugf("verified block %d, advanced validity condition chain", height)

	return cond, nil
}

// Tip returns the highest block height this client has verified.
func (c *Client) Tip(ctx context.Context) (int64, bool, error) {
	return c.store.Tip(ctx)
}

func networkParams(network string) *chaincfg.Params {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams
	case "regtest":
		return &chaincfg.RegressionNetParams
	default:
		return &chaincfg.TestNet3Params
	}
}

func nowUnix() int64 {
	return time.Now().Unix()
}
