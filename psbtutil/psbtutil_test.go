package psbtutil

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/sovbtc/bitcoin-da/txbuilder"
)

func testAddress(t *testing.T) btcutil.Address {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pubKeyBytes := schnorr.SerializePubKey(priv.PubKey())
	addr, err := btcutil.NewAddressTaproot(pubKeyBytes, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	return addr
}

func TestExportCommitPSBT(t *testing.T) {
	addr := testAddress(t)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{1}, Index: 0}, nil, nil))
	tx.AddTxOut(&wire.TxOut{Value: 50_000, PkScript: []byte{}})

	utxos := []txbuilder.UTXO{{TxID: chainhash.Hash{1}, Vout: 0, Amount: 100_000}}

	pkt, err := ExportCommitPSBT(tx, utxos, addr)
	require.NoError(t, err)
	require.Len(t, pkt.Inputs, 1)
	require.NotNil(t, pkt.Inputs[0].WitnessUtxo)
	require.EqualValues(t, 100_000, pkt.Inputs[0].WitnessUtxo.Value)
}

func TestExportCommitPSBT_MismatchedInputCount(t *testing.T) {
	addr := testAddress(t)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{1}, Index: 0}, nil, nil))

	_, err := ExportCommitPSBT(tx, nil, addr)
	require.Error(t, err)
}

func TestExportAndExtractRevealPSBT(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	internalKey := schnorr.SerializePubKey(priv.PubKey())

	revealScript := []byte{txscript.OP_CHECKSIG}
	controlBlock := []byte{0xc0}

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{2}, Index: 0}, nil, nil))
	tx.AddTxOut(&wire.TxOut{Value: 1_000, PkScript: []byte{}})

	prevOut := &wire.TxOut{Value: 10_000, PkScript: []byte{txscript.OP_1, 0x20}}

	pkt, err := ExportRevealPSBT(tx, prevOut, revealScript, controlBlock, internalKey)
	require.NoError(t, err)
	require.Len(t, pkt.Inputs, 1)
	require.Equal(t, internalKey, pkt.Inputs[0].TaprootInternalKey)
	require.Len(t, pkt.Inputs[0].TaprootLeafScript, 1)

	sig, err := schnorr.Sign(priv, make([]byte, 32))
	require.NoError(t, err)
	pkt.Inputs[0].TaprootKeySpendSig = sig.Serialize()

	witness, err := ExtractRevealWitness(pkt)
	require.NoError(t, err)
	require.Len(t, witness, 3)
	require.Equal(t, sig.Serialize(), []byte(witness[0]))
	require.Equal(t, revealScript, []byte(witness[1]))
	require.Equal(t, controlBlock, []byte(witness[2]))
}

func TestExtractRevealWitness_Unsigned(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	internalKey := schnorr.SerializePubKey(priv.PubKey())

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{2}, Index: 0}, nil, nil))

	prevOut := &wire.TxOut{Value: 10_000, PkScript: []byte{txscript.OP_1, 0x20}}
	pkt, err := ExportRevealPSBT(tx, prevOut, []byte{txscript.OP_CHECKSIG}, []byte{0xc0}, internalKey)
	require.NoError(t, err)

	_, err = ExtractRevealWitness(pkt)
	require.Error(t, err)
}
