package txbuilder

import (
	"bytes"
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/sovbtc/bitcoin-da/envelope"
)

func testRecipient(t *testing.T) btcutil.Address {
	t.Helper()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	addr, err := btcutil.NewAddressTaproot(
		schnorr.SerializePubKey(priv.PubKey()), &chaincfg.MainNetParams)
	require.NoError(t, err)
	return addr
}

func hashFromByte(b byte) chainhash.Hash {
	var h chainhash.Hash
	for i := range h {
		h[i] = b
	}
	return h
}

func TestBuildCommitTransactionSingleUTXO(t *testing.T) {
	recipient := testRecipient(t)

	utxos := []UTXO{
		{TxID: hashFromByte(1), Vout: 0, Amount: 1_000_000, Spendable: true, Solvable: true},
	}

	tx, err := BuildCommitTransaction(utxos, recipient, envelope.DustLimit, 10)
	require.NoError(t, err)
	require.Len(t, tx.TxIn, 1)
	require.GreaterOrEqual(t, len(tx.TxOut), 1)
	require.Equal(t, int64(envelope.DustLimit), tx.TxOut[0].Value)
}

func TestBuildCommitTransactionNoSpendableUTXOs(t *testing.T) {
	recipient := testRecipient(t)

	utxos := []UTXO{
		{TxID: hashFromByte(1), Vout: 0, Amount: 1_000_000, Spendable: false, Solvable: true},
	}

	_, err := BuildCommitTransaction(utxos, recipient, envelope.DustLimit, 10)
	require.ErrorIs(t, err, ErrNoSpendableUTXOs)
}

func TestBuildRevealTransactionInputTooSmall(t *testing.T) {
	recipient := testRecipient(t)

	_, err := BuildRevealTransaction(
		&wire.TxOut{Value: 100, PkScript: nil},
		hashFromByte(2), 0,
		recipient, envelope.DustLimit, 10,
		[]byte{0x51}, []byte{0xc0},
	)
	require.ErrorIs(t, err, ErrInputUTXOTooSmall)
}

func TestCreateInscriptionTransactions(t *testing.T) {
	recipient := testRecipient(t)

	utxos := []UTXO{
		{TxID: hashFromByte(1), Vout: 0, Amount: 50_000, Spendable: true, Solvable: true},
		{TxID: hashFromByte(2), Vout: 0, Amount: 60_000, Spendable: true, Solvable: true},
		{TxID: hashFromByte(3), Vout: 0, Amount: 1_000_000, Spendable: true, Solvable: true},
	}

	params := CreateInscriptionParams{
		RollupName:         "test_rollup",
		Body:               bytes.Repeat([]byte{100}, 200),
		Signature:          bytes.Repeat([]byte{100}, 64),
		SequencerPublicKey: bytes.Repeat([]byte{100}, 33),
		UTXOs:              utxos,
		Recipient:          recipient,
		CommitFeeRate:      12,
		RevealFeeRate:      10,
		Params:             &chaincfg.MainNetParams,
	}

	commitTx, revealTx, iterations, err := CreateInscriptionTransactions(context.Background(), params)
	require.NoError(t, err)
	require.NotNil(t, commitTx)
	require.NotNil(t, revealTx)
	require.Greater(t, iterations, int64(0))

	commitTxid := commitTx.TxHash()
	require.Equal(t, commitTxid, revealTx.TxIn[0].PreviousOutPoint.Hash)
	require.Equal(t, uint32(0), revealTx.TxIn[0].PreviousOutPoint.Index)

	revealTxid := revealTx.TxHash()
	require.Equal(t, byte(0), revealTxid[0])
	require.Equal(t, byte(0), revealTxid[1])

	require.Len(t, revealTx.TxOut, 1)
	gotRecipientScript, err := txscript.PayToAddrScript(recipient)
	require.NoError(t, err)
	require.Equal(t, gotRecipientScript, revealTx.TxOut[0].PkScript)

	parsed, err := envelope.ParseTransaction(revealTx, params.RollupName)
	require.NoError(t, err)
	require.NotNil(t, parsed)
	require.Equal(t, params.Signature, parsed.Signature)
	require.Equal(t, params.SequencerPublicKey, parsed.PublicKey)
	require.Equal(t, params.Body, parsed.Body)
}
