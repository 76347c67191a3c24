package txbuilder

import (
	"bytes"
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	goerrors "github.com/go-errors/errors"

	"github.com/sovbtc/bitcoin-da/envelope"
)

// maxFeeLoopIterations bounds the size-stable fee estimation loop. The
// loop is expected to converge in one or two passes; this is a generous
// ceiling that turns a pathological non-convergence into an error instead
// of an infinite loop.
const maxFeeLoopIterations = 16

// dustLimit is the minimum standard output value, in satoshis. Change
// below this is dropped into the fee rather than produced as an output.
const dustLimit = envelope.DustLimit

// txVersion is the transaction version used for both commit and reveal
// transactions.
const txVersion = 2

var zeroTxid chainhash.Hash

// estimateVsize builds a throwaway transaction carrying the given inputs
// and outputs, attaches a zero-filled witness sized like a real
// signature (and, for a reveal transaction, the real reveal script and
// control block), and returns its virtual size. This mirrors the
// reference builder's approach of estimating fees from a dummy-witness
// transaction rather than a hand-rolled size formula.
func estimateVsize(inputs []*wire.TxIn, outputs []*wire.TxOut, script, controlBlock []byte) int64 {
	tx := wire.NewMsgTx(txVersion)
	for _, in := range inputs {
		clone := *in
		tx.AddTxIn(&clone)
	}
	for _, out := range outputs {
		tx.AddTxOut(out)
	}

	witness := wire.TxWitness{bytes.Repeat([]byte{0}, schnorr.SignatureSize)}
	if script != nil && controlBlock != nil {
		witness = append(witness, script, controlBlock)
	}
	tx.TxIn[0].Witness = witness

	return txVsize(tx)
}

// witnessScaleFactor is Bitcoin's discount factor for witness data when
// computing a transaction's virtual size from its weight.
const witnessScaleFactor = 4

// txVsize computes a transaction's virtual size: weight, discounted by
// witnessScaleFactor and rounded up.
func txVsize(tx *wire.MsgTx) int64 {
	baseSize := int64(tx.SerializeSizeStripped())
	totalSize := int64(tx.SerializeSize())
	weight := baseSize*(witnessScaleFactor-1) + totalSize

	return (weight + (witnessScaleFactor - 1)) / witnessScaleFactor
}

func newTxIn(txid chainhash.Hash, vout uint32) *wire.TxIn {
	in := wire.NewTxIn(&wire.OutPoint{Hash: txid, Index: vout}, nil, nil)
	in.Sequence = wire.MaxTxInSequenceNum - 2 // opts into RBF, no locktime
	return in
}

// BuildCommitTransaction selects UTXOs and constructs the unsigned commit
// transaction that funds a reveal transaction's taproot output. It
// reruns fee estimation each time the chosen input set changes size,
// stopping once the virtual size stabilizes.
func BuildCommitTransaction(utxos []UTXO, recipient btcutil.Address, outputValue int64, feeRate float64) (*wire.MsgTx, error) {
	recipientScript, err := txscript.PayToAddrScript(recipient)
	if err != nil {
		return nil, goerrors.WrapPrefix(err, "commit tx: recipient script", 0)
	}

	var spendable []UTXO
	for _, u := range utxos {
		if u.Spendable && u.Solvable && u.Amount > dustLimit {
			spendable = append(spendable, u)
		}
	}
	if len(spendable) == 0 {
		return nil, ErrNoSpendableUTXOs
	}

	size := estimateVsize(
		[]*wire.TxIn{newTxIn(zeroTxid, 0)},
		[]*wire.TxOut{{Value: outputValue, PkScript: recipientScript}},
		nil, nil,
	)

	for i := 0; i < maxFeeLoopIterations; i++ {
		fee := int64(ceilF(float64(size) * feeRate))
		inputTotal := outputValue + fee

		chosen, sum, err := ChooseUTXOs(spendable, inputTotal)
		if err != nil {
			return nil, &InsufficientFunds{Requested: inputTotal, Available: sumAmounts(spendable)}
		}

		outputs := []*wire.TxOut{{Value: outputValue, PkScript: recipientScript}}
		if excess := sum - inputTotal; excess >= dustLimit {
			outputs = append(outputs, &wire.TxOut{Value: excess, PkScript: recipientScript})
		}

		inputs := make([]*wire.TxIn, len(chosen))
		for i, u := range chosen {
			inputs[i] = newTxIn(u.TxID, u.Vout)
		}

		newSize := estimateVsize(inputs, outputs, nil, nil)
		if newSize == size {
			tx := wire.NewMsgTx(txVersion)
			for _, in := range inputs {
				tx.AddTxIn(in)
			}
			for _, out := range outputs {
				tx.AddTxOut(out)
			}
			return tx, nil
		}

		size = newSize
	}

	return nil, ErrFeeLoopDiverged
}

// BuildRevealTransaction constructs the unsigned reveal transaction that
// spends a commit transaction's taproot output through the inscription
// script path.
func BuildRevealTransaction(
	inputUTXO *wire.TxOut,
	inputTxid chainhash.Hash,
	inputVout uint32,
	recipient btcutil.Address,
	outputValue int64,
	feeRate float64,
	revealScript []byte,
	controlBlock []byte,
) (*wire.MsgTx, error) {

	if inputUTXO.Value < dustLimit {
		return nil, ErrInputUTXOTooSmall
	}

	recipientScript, err := txscript.PayToAddrScript(recipient)
	if err != nil {
		return nil, goerrors.WrapPrefix(err, "reveal tx: recipient script", 0)
	}

	size := estimateVsize(
		[]*wire.TxIn{newTxIn(zeroTxid, 0)},
		[]*wire.TxOut{{Value: outputValue, PkScript: recipientScript}},
		revealScript, controlBlock,
	)

	for i := 0; i < maxFeeLoopIterations; i++ {
		fee := int64(ceilF(float64(size) * feeRate))
		inputTotal := outputValue + fee

		outputs := []*wire.TxOut{{Value: outputValue, PkScript: recipientScript}}
		if excess := inputUTXO.Value - inputTotal; excess >= dustLimit {
			outputs = append(outputs, &wire.TxOut{Value: excess, PkScript: recipientScript})
		}

		inputs := []*wire.TxIn{newTxIn(inputTxid, inputVout)}

		newSize := estimateVsize(inputs, outputs, revealScript, controlBlock)
		if newSize == size {
			tx := wire.NewMsgTx(txVersion)
			for _, in := range inputs {
				tx.AddTxIn(in)
			}
			for _, out := range outputs {
				tx.AddTxOut(out)
			}
			return tx, nil
		}

		size = newSize
	}

	return nil, ErrFeeLoopDiverged
}

// CreateInscriptionParams groups the inputs to CreateInscriptionTransactions.
type CreateInscriptionParams struct {
	RollupName         string
	Body               []byte
	Signature          []byte
	SequencerPublicKey []byte
	UTXOs              []UTXO
	Recipient          btcutil.Address
	CommitFeeRate      float64
	RevealFeeRate      float64
	Params             *chaincfg.Params

	// CommitPrivateKey is the taproot internal key for the commit
	// output. If nil, a fresh ephemeral key is generated with
	// btcec.NewPrivateKey. Callers that need a reproducible build (or
	// that want the key to come from a keyring rather than an ad hoc
	// RNG call) can supply one.
	CommitPrivateKey *btcec.PrivateKey
}

// CreateInscriptionTransactions builds the commit/reveal transaction pair
// for an inscription, mining nonces until the reveal transaction's txid
// starts with two zero bytes. Unless p.CommitPrivateKey is supplied, it
// builds a fresh ephemeral taproot internal key for the commit output;
// the private key never leaves this call. iterations reports how many
// nonces were tried before the proof-of-work target was met, for callers
// that want to track mining cost.
func CreateInscriptionTransactions(ctx context.Context, p CreateInscriptionParams) (commitTx, revealTx *wire.MsgTx, iterations int64, err error) {
	privKey := p.CommitPrivateKey
	if privKey == nil {
		privKey, err = btcec.NewPrivateKey()
		if err != nil {
			return nil, nil, 0, goerrors.WrapPrefix(err, "inscription: generate key", 0)
		}
	}
	internalKey := privKey.PubKey()

	bodyChunks := chunk(p.Body, envelope.MaxScriptElementSize)

	for nonce := int64(0); ; nonce++ {
		select {
		case <-ctx.Done():
			return nil, nil, 0, ctx.Err()
		default:
		}

		revealScript, err := buildRevealScript(internalKey, p.RollupName, p.Signature, p.SequencerPublicKey, nonce, bodyChunks)
		if err != nil {
			return nil, nil, 0, err
		}

		leaf := txscript.NewBaseTapLeaf(revealScript)
		tree := txscript.AssembleTaprootScriptTree(leaf)
		proof := tree.LeafMerkleProofs[0]
		controlBlock := proof.ToControlBlock(internalKey)
		controlBlockBytes, err := controlBlock.ToBytes()
		if err != nil {
			return nil, nil, 0, goerrors.WrapPrefix(err, "inscription: serialize control block", 0)
		}

		rootHash := tree.RootNode.TapHash()
		outputKey := txscript.ComputeTaprootOutputKey(internalKey, rootHash[:])

		commitAddress, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(outputKey), p.Params)
		if err != nil {
			return nil, nil, 0, goerrors.WrapPrefix(err, "inscription: commit address", 0)
		}

		unsignedCommit, err := BuildCommitTransaction(p.UTXOs, commitAddress, dustLimit, p.CommitFeeRate)
		if err != nil {
			return nil, nil, 0, err
		}

		outputToReveal := unsignedCommit.TxOut[0]
		commitTxid := unsignedCommit.TxHash()

		reveal, err := BuildRevealTransaction(
			outputToReveal, commitTxid, 0,
			p.Recipient, dustLimit, p.RevealFeeRate,
			revealScript, controlBlockBytes,
		)
		if err != nil {
			return nil, nil, 0, err
		}

		revealTxid := reveal.TxHash()
		if revealTxid[0] != 0 || revealTxid[1] != 0 {
			continue
		}

		prevFetcher := txscript.NewCannedPrevOutputFetcher(outputToReveal.PkScript, outputToReveal.Value)
		sigHashes := txscript.NewTxSigHashes(reveal, prevFetcher)

		sigHash, err := txscript.CalcTapscriptSignaturehash(
			sigHashes, txscript.SigHashDefault, reveal, 0, prevFetcher, leaf,
		)
		if err != nil {
			return nil, nil, 0, goerrors.WrapPrefix(err, "inscription: sighash", 0)
		}

		sig, err := schnorr.Sign(privKey, sigHash)
		if err != nil {
			return nil, nil, 0, goerrors.WrapPrefix(err, "inscription: sign reveal", 0)
		}

		reveal.TxIn[0].Witness = wire.TxWitness{
			sig.Serialize(),
			revealScript,
			controlBlockBytes,
		}

		// Defense in depth: confirm the taproot tweak we just spent
		// through actually matches the commit address we funded.
		tweakedKey := txscript.ComputeTaprootOutputKey(internalKey, rootHash[:])
		recoveredAddress, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(tweakedKey), p.Params)
		if err != nil {
			return nil, nil, 0, goerrors.WrapPrefix(err, "inscription: recovered address", 0)
		}
		if recoveredAddress.EncodeAddress() != commitAddress.EncodeAddress() {
			return nil, nil, 0, goerrors.Errorf("inscription: commit address mismatch after tweak")
		}

		return unsignedCommit, reveal, nonce + 1, nil
	}
}

// buildRevealScript assembles the reveal leaf script: an x-only pubkey
// CHECKSIG against the commit internal key, followed by the tagged
// envelope (rollup name, signature, public key, and the chunked,
// already-compressed body) guarded by a FALSE IF ... ENDIF so the
// envelope data never executes.
func buildRevealScript(internalKey *btcec.PublicKey, rollupName string, signature, publicKey []byte, nonce int64, bodyChunks [][]byte) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	b.AddData(schnorr.SerializePubKey(internalKey))
	b.AddOp(txscript.OP_CHECKSIG)
	b.AddOp(txscript.OP_FALSE)
	b.AddOp(txscript.OP_IF)
	b.AddData(envelope.RollupNameTag)
	b.AddData([]byte(rollupName))
	b.AddData(envelope.SignatureTag)
	b.AddData(signature)
	b.AddData(envelope.PublicKeyTag)
	b.AddData(publicKey)
	b.AddData(envelope.RandomTag)
	b.AddInt64(nonce)
	b.AddData(envelope.BodyTag)
	for _, chunk := range bodyChunks {
		b.AddData(chunk)
	}
	b.AddOp(txscript.OP_ENDIF)

	return b.Script()
}

func chunk(body []byte, size int) [][]byte {
	if len(body) == 0 {
		return nil
	}

	var chunks [][]byte
	for len(body) > 0 {
		n := size
		if n > len(body) {
			n = len(body)
		}
		chunks = append(chunks, body[:n])
		body = body[n:]
	}
	return chunks
}

func sumAmounts(utxos []UTXO) int64 {
	var sum int64
	for _, u := range utxos {
		sum += u.Amount
	}
	return sum
}

func ceilF(f float64) float64 {
	i := int64(f)
	if float64(i) < f {
		return float64(i + 1)
	}
	return float64(i)
}
