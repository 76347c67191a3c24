// Package mempool implements the chain bridge this adapter uses to read
// and write Bitcoin chain state: a rate-limited mempool.space REST client,
// a small TTL cache in front of it, and a polling bridge that surfaces
// new blocks as inclusion-proof-ready data for the verifier.
package mempool

import "time"

// BlockResponse is a block as returned by the mempool.space API.
type BlockResponse struct {
	ID                string  `json:"id"`
	Height            int64   `json:"height"`
	Version           int32   `json:"version"`
	Timestamp         int64   `json:"timestamp"`
	TxCount           int     `json:"tx_count"`
	Size              int     `json:"size"`
	Weight            int     `json:"weight"`
	MerkleRoot        string  `json:"merkle_root"`
	PreviousBlockHash string  `json:"previousblockhash"`
	Nonce             uint32  `json:"nonce"`
	Bits              uint32  `json:"bits"`
	Difficulty        float64 `json:"difficulty"`
}

// TransactionResponse is a transaction as returned by the mempool.space
// API, including its confirmation status.
type TransactionResponse struct {
	TxID     string              `json:"txid"`
	Version  int32               `json:"version"`
	Locktime uint32              `json:"locktime"`
	Size     int                 `json:"size"`
	Weight   int                 `json:"weight"`
	Fee      int64               `json:"fee"`
	Vin      []TransactionInput  `json:"vin"`
	Vout     []TransactionOutput `json:"vout"`
	Status   TransactionStatus   `json:"status"`
}

// TransactionInput is a transaction input.
type TransactionInput struct {
	TxID      string   `json:"txid"`
	Vout      uint32   `json:"vout"`
	ScriptSig string   `json:"scriptsig"`
	Witness   []string `json:"witness,omitempty"`
	Sequence  uint32   `json:"sequence"`
}

// TransactionOutput is a transaction output.
type TransactionOutput struct {
	ScriptPubKey string `json:"scriptpubkey"`
	Value        int64  `json:"value"`
}

// TransactionStatus is a transaction's confirmation status.
type TransactionStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight int64  `json:"block_height,omitempty"`
	BlockHash   string `json:"block_hash,omitempty"`
	BlockTime   int64  `json:"block_time,omitempty"`
}

// UTXOResponse is a spendable output as returned by the address-utxo
// endpoint.
type UTXOResponse struct {
	TxID   string            `json:"txid"`
	Vout   uint32            `json:"vout"`
	Value  int64             `json:"value"`
	Status TransactionStatus `json:"status"`
}

// FeeEstimates are fee rates for different confirmation targets, in
// satoshis per virtual byte.
type FeeEstimates struct {
	FastestFee  int64 `json:"fastestFee"`
	HalfHourFee int64 `json:"halfHourFee"`
	HourFee     int64 `json:"hourFee"`
	EconomyFee  int64 `json:"economyFee"`
	MinimumFee  int64 `json:"minimumFee"`
}

// cacheEntry is a generic TTL cache entry.
type cacheEntry struct {
	value     interface{}
	expiresAt time.Time
}
