// Package psbtutil lets an external signer co-sign the commit/reveal
// pair this adapter builds, instead of requiring the sequencer's key to
// ever leave a single process.
package psbtutil

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/sovbtc/bitcoin-da/txbuilder"
)

// ExportCommitPSBT wraps an unsigned commit transaction as a PSBT packet,
// attaching each input's previous output so a signer can compute
// sighashes without a second round trip to the chain. fundingAddress is
// the single wallet address every input UTXO was funded at; mempool.space's
// address-UTXO endpoint doesn't echo back a scriptPubKey, so the caller
// that already knows which address it queried supplies it here.
func ExportCommitPSBT(tx *wire.MsgTx, utxos []txbuilder.UTXO, fundingAddress btcutil.Address) (*psbt.Packet, error) {
	if len(tx.TxIn) != len(utxos) {
		return nil, fmt.Errorf("psbtutil: %d inputs but %d UTXOs supplied", len(tx.TxIn), len(utxos))
	}

	pkt, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, fmt.Errorf("psbtutil: build packet: %w", err)
	}

	script, err := txscript.PayToAddrScript(fundingAddress)
	if err != nil {
		return nil, fmt.Errorf("psbtutil: funding address script: %w", err)
	}

	for i, utxo := range utxos {
		pkt.Inputs[i].WitnessUtxo = &wire.TxOut{
			Value:    utxo.Amount,
			PkScript: script,
		}
		pkt.Inputs[i].SighashType = txscript.SigHashDefault
	}

	return pkt, nil
}

// ExportRevealPSBT wraps an unsigned reveal transaction as a PSBT packet
// carrying the single taproot script-path input's leaf script, control
// block and the commit output it spends, so a remote signer can produce
// the reveal input's Schnorr script-path signature without reconstructing
// the taproot tree itself.
func ExportRevealPSBT(
	tx *wire.MsgTx,
	prevOut *wire.TxOut,
	revealScript []byte,
	controlBlock []byte,
	internalKey []byte,
) (*psbt.Packet, error) {
	if len(tx.TxIn) != 1 {
		return nil, fmt.Errorf("psbtutil: reveal transaction must have exactly one input, got %d", len(tx.TxIn))
	}

	pkt, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, fmt.Errorf("psbtutil: build packet: %w", err)
	}

	pkt.Inputs[0].WitnessUtxo = prevOut
	pkt.Inputs[0].SighashType = txscript.SigHashDefault
	pkt.Inputs[0].TaprootInternalKey = internalKey
	pkt.Inputs[0].TaprootLeafScript = []*psbt.TaprootTapLeafScript{{
		ControlBlock: controlBlock,
		Script:       revealScript,
		LeafVersion:  txscript.BaseLeafVersion,
	}}

	return pkt, nil
}

// ExtractRevealWitness reads back the signer's Schnorr signature from a
// signed reveal PSBT and assembles the final script-path witness
// (signature, leaf script, control block), in the layout
// CreateInscriptionTransactions would have produced itself.
func ExtractRevealWitness(pkt *psbt.Packet) (wire.TxWitness, error) {
	if len(pkt.Inputs) != 1 {
		return nil, fmt.Errorf("psbtutil: expected one input, got %d", len(pkt.Inputs))
	}
	in := pkt.Inputs[0]

	if len(in.TaprootLeafScript) != 1 {
		return nil, fmt.Errorf("psbtutil: expected one taproot leaf script, got %d", len(in.TaprootLeafScript))
	}
	leaf := in.TaprootLeafScript[0]

	var sig []byte
	switch {
	case len(in.TaprootScriptSpendSig) == 1:
		sig = in.TaprootScriptSpendSig[0].Signature
	case len(in.TaprootKeySpendSig) > 0:
		sig = in.TaprootKeySpendSig
	default:
		return nil, fmt.Errorf("psbtutil: reveal input has not been signed")
	}
	if len(sig) != schnorr.SignatureSize {
		return nil, fmt.Errorf("psbtutil: signature has unexpected length %d", len(sig))
	}

	return wire.TxWitness{sig, leaf.Script, leaf.ControlBlock}, nil
}

// FinalizeCommitInput copies a commit PSBT input's completed segwit
// witness onto the underlying unsigned transaction, after a standard
// BIP-141 signer has populated psbt.PInput.FinalScriptWitness.
func FinalizeCommitInput(pkt *psbt.Packet, index int) (*wire.MsgTx, error) {
	if index < 0 || index >= len(pkt.Inputs) {
		return nil, fmt.Errorf("psbtutil: input index %d out of range", index)
	}

	if err := psbt.Finalize(pkt, index); err != nil {
		return nil, fmt.Errorf("psbtutil: finalize input %d: %w", index, err)
	}

	return pkt.UnsignedTx, nil
}
