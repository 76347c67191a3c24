package mempool

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/sovbtc/bitcoin-da/daverifier"
	"github.com/sovbtc/bitcoin-da/txbuilder"
)

// ChainBridgeConfig configures a ChainBridge.
type ChainBridgeConfig struct {
	// Client is the mempool.space API client.
	Client *Client

	// PollInterval is how often the bridge checks for a new tip height.
	PollInterval time.Duration

	// CacheSize is the initial capacity of the block-hash cache. The
	// cache holds at most maxCachedBlockHashes entries whatever this is.
	CacheSize int

	// CacheTTL is how long a cached tip height or block hash stays
	// valid.
	CacheTTL time.Duration
}

// DefaultChainBridgeConfig returns sane polling defaults for client.
func DefaultChainBridgeConfig(client *Client) *ChainBridgeConfig {
	return &ChainBridgeConfig{
		Client:       client,
		PollInterval: 30 * time.Second,
		CacheSize:    100,
		CacheTTL:     60 * time.Second,
	}
}

// ChainBridge is this adapter's view onto Bitcoin: it resolves the
// current chain tip, fetches block data shaped for daverifier's proofs,
// discovers spendable wallet UTXOs, and broadcasts finished inscriptions.
type ChainBridge struct {
	cfg   *ChainBridgeConfig
	cache *cache

	newBlocks chan uint32

	started bool
	quit    chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex
}

// NewChainBridge builds a ChainBridge. A nil cfg uses
// DefaultChainBridgeConfig with a default Client.
func NewChainBridge(cfg *ChainBridgeConfig) *ChainBridge {
	if cfg == nil {
		cfg = DefaultChainBridgeConfig(NewClient(nil))
	}
	if cfg.Client == nil {
		cfg.Client = NewClient(nil)
	}

	return &ChainBridge{
		cfg:       cfg,
		cache:     newCache(cfg.CacheSize, cfg.CacheTTL),
		newBlocks: make(chan uint32, 16),
		quit:      make(chan struct{}),
	}
}

// Start begins polling for new blocks. NewBlocks delivers newly observed
// tip heights until Stop is called; a height observed while the channel's
// buffer is full is dropped.
func (c *ChainBridge) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return nil
	}
	c.started = true

	c.wg.Add(1)
	go c.pollLoop()

	return nil
}

// Stop halts polling and waits for the poll goroutine to exit.
func (c *ChainBridge) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil
	}

	close(c.quit)
	c.wg.Wait()
	c.started = false

	return nil
}

// NewBlocks returns the channel new tip heights are delivered on.
func (c *ChainBridge) NewBlocks() <-chan uint32 {
	return c.newBlocks
}

func (c *ChainBridge) pollLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	var lastHeight uint32

	for {
		select {
		case <-c.quit:
			return
		case <-ticker.C:
			height, err := c.cfg.Client.GetCurrentHeight(context.Background())
			if err != nil {
				continue
			}
			if height > lastHeight {
				lastHeight = height
				select {
				case c.newBlocks <- height:
				default:
				}
			}
		}
	}
}

// CurrentHeight returns the current chain tip height, using the cache
// when it's fresh.
func (c *ChainBridge) CurrentHeight(ctx context.Context) (uint32, error) {
	if height, ok := c.cache.getHeight(); ok {
		return height, nil
	}

	height, err := c.cfg.Client.GetCurrentHeight(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain bridge: current height: %w", err)
	}

	c.cache.setHeight(height)
	return height, nil
}

// BlockHeaderAt returns the daverifier-shaped header for the block at a
// given height.
func (c *ChainBridge) BlockHeaderAt(ctx context.Context, height int64) (*daverifier.BlockHeader, error) {
	blockHash, err := c.blockHashAt(ctx, height)
	if err != nil {
		return nil, err
	}

	block, err := c.cfg.Client.GetBlock(ctx, blockHash)
	if err != nil {
		return nil, fmt.Errorf("chain bridge: get block %s: %w", blockHash, err)
	}

	hash, err := chainhash.NewHashFromStr(blockHash)
	if err != nil {
		return nil, fmt.Errorf("chain bridge: parse block hash: %w", err)
	}
	prevHash, err := chainhash.NewHashFromStr(block.PreviousBlockHash)
	if err != nil {
		return nil, fmt.Errorf("chain bridge: parse prev hash: %w", err)
	}
	merkleRoot, err := chainhash.NewHashFromStr(block.MerkleRoot)
	if err != nil {
		return nil, fmt.Errorf("chain bridge: parse merkle root: %w", err)
	}

	return &daverifier.BlockHeader{
		PrevHash:   *prevHash,
		BlockHash:  *hash,
		MerkleRoot: *merkleRoot,
	}, nil
}

// InclusionProofAt returns every txid in the block at a given height, in
// block order.
func (c *ChainBridge) InclusionProofAt(ctx context.Context, height int64) (daverifier.InclusionProof, error) {
	blockHash, err := c.blockHashAt(ctx, height)
	if err != nil {
		return daverifier.InclusionProof{}, err
	}

	txids, err := c.cfg.Client.GetBlockTxids(ctx, blockHash)
	if err != nil {
		return daverifier.InclusionProof{}, fmt.Errorf("chain bridge: get txids: %w", err)
	}

	hashes := make([]chainhash.Hash, len(txids))
	for i, txid := range txids {
		h, err := chainhash.NewHashFromStr(txid)
		if err != nil {
			return daverifier.InclusionProof{}, fmt.Errorf("chain bridge: parse txid %s: %w", txid, err)
		}
		hashes[i] = *h
	}

	return daverifier.InclusionProof{Txs: hashes}, nil
}

// RelevantTransactionsAt fetches the full transactions, in block order,
// for every txid in a block whose hash starts with the adapter's
// proof-of-work prefix, for use as a completeness proof.
func (c *ChainBridge) RelevantTransactionsAt(ctx context.Context, height int64) (daverifier.CompletenessProof, error) {
	blockHash, err := c.blockHashAt(ctx, height)
	if err != nil {
		return nil, err
	}

	txids, err := c.cfg.Client.GetBlockTxids(ctx, blockHash)
	if err != nil {
		return nil, fmt.Errorf("chain bridge: get txids: %w", err)
	}

	var relevant daverifier.CompletenessProof
	for _, txid := range txids {
		hash, err := chainhash.NewHashFromStr(txid)
		if err != nil {
			return nil, fmt.Errorf("chain bridge: parse txid %s: %w", txid, err)
		}
		if hash[0] != 0 || hash[1] != 0 {
			continue
		}

		tx, err := c.fetchTx(ctx, txid)
		if err != nil {
			return nil, err
		}
		relevant = append(relevant, tx)
	}

	return relevant, nil
}

func (c *ChainBridge) fetchTx(ctx context.Context, txid string) (*wire.MsgTx, error) {
	rawHex, err := c.cfg.Client.GetTransactionHex(ctx, txid)
	if err != nil {
		return nil, fmt.Errorf("chain bridge: get tx hex %s: %w", txid, err)
	}

	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, fmt.Errorf("chain bridge: decode tx hex %s: %w", txid, err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("chain bridge: deserialize tx %s: %w", txid, err)
	}
	return tx, nil
}

func (c *ChainBridge) blockHashAt(ctx context.Context, height int64) (string, error) {
	if hash, ok := c.cache.getBlockHash(height); ok {
		return hash, nil
	}

	hash, err := c.cfg.Client.GetBlockHash(ctx, height)
	if err != nil {
		return "", fmt.Errorf("chain bridge: block hash at %d: %w", height, err)
	}

	c.cache.setBlockHash(height, hash)
	return hash, nil
}

// SpendableUTXOs returns the UTXOs currently sitting at a sequencer
// address, shaped for txbuilder's coin selection.
func (c *ChainBridge) SpendableUTXOs(ctx context.Context, address string) ([]txbuilder.UTXO, error) {
	resp, err := c.cfg.Client.GetAddressUTXOs(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("chain bridge: address utxos: %w", err)
	}

	utxos := make([]txbuilder.UTXO, len(resp))
	for i, u := range resp {
		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, fmt.Errorf("chain bridge: parse utxo txid %s: %w", u.TxID, err)
		}
		utxos[i] = txbuilder.UTXO{
			TxID:      *hash,
			Vout:      u.Vout,
			Amount:    u.Value,
			Spendable: u.Status.Confirmed,
			Solvable:  true,
		}
	}

	return utxos, nil
}

// Broadcast submits a finished transaction to the network and returns its
// txid as reported by the server.
func (c *ChainBridge) Broadcast(ctx context.Context, tx *wire.MsgTx) (string, error) {
	return c.cfg.Client.BroadcastTransaction(ctx, tx)
}

