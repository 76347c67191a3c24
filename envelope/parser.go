package envelope

import (
	"bytes"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	goerrors "github.com/go-errors/errors"
)

// Parser error kinds. These mirror the distinct failure modes an envelope
// parse can hit; callers type-assert or errors.Is against the exported
// sentinels below rather than the wrapped goerrors value.
var (
	ErrInvalidRollupName       = goerrors.Errorf("parsed rollup name does not match expected rollup name")
	ErrEnvelopeHasNonPushOp    = goerrors.Errorf("envelope contains a non-push opcode")
	ErrEnvelopeHasIncorrectFormat = goerrors.Errorf("envelope is missing one or more required fields")
	ErrNonTapscriptWitness     = goerrors.Errorf("witness is not a tapscript spend")
	ErrIncorrectSignature      = goerrors.Errorf("signature does not verify against the embedded public key and body")
)

// envelope field indices, tracked from the position of the opening FALSE IF.
// Index 0 and 1 carry the rollup name tag and value, 2-3 the signature tag
// and value, 4-5 the public key tag and value, 6-7 the random tag and an
// ignored nonce value, 8 the body tag, and everything from 9 onward is a
// chunk of the compressed body.
const (
	idxRollupNameTag = iota
	idxRollupName
	idxSignatureTag
	idxSignature
	idxPublicKeyTag
	idxPublicKey
	idxRandomTag
	idxNonce
	idxBodyTag
	idxBodyStart
)

// ParseTransaction extracts a single tagged envelope from the tapscript
// witness of a reveal transaction, if one is present. It returns
// (nil, nil) when the transaction carries no witness, or when the witness
// has no tapscript leaf script to inspect — callers use this to skip
// irrelevant transactions without treating them as errors.
func ParseTransaction(tx *wire.MsgTx, rollupName string) (*ParsedInscription, error) {
	if len(tx.TxIn) == 0 {
		return nil, nil
	}

	for _, txIn := range tx.TxIn {
		script, err := tapscriptLeaf(txIn.Witness)
		if err != nil {
			return nil, err
		}
		if script == nil {
			continue
		}

		parsed, err := parseEnvelope(script, rollupName)
		if err != nil {
			return nil, err
		}
		if parsed != nil {
			return parsed, nil
		}
	}

	return nil, nil
}

// tapscriptLeaf pulls the tapscript leaf script out of a taproot
// script-path witness stack. A key-path spend, or any witness too short to
// be a script-path spend, yields (nil, nil): not every input of a relevant
// transaction need carry an envelope.
func tapscriptLeaf(witness wire.TxWitness) ([]byte, error) {
	if len(witness) < 2 {
		return nil, nil
	}

	// The control block is always the last witness element of a
	// script-path spend and starts with a version/parity byte in the
	// range taproot defines for leaf versions.
	controlBlock := witness[len(witness)-1]
	if len(controlBlock) == 0 || len(controlBlock) < 33 {
		return nil, nil
	}

	script := witness[len(witness)-2]

	return script, nil
}

// parseEnvelope walks the disassembled script looking for a single
// FALSE IF ... ENDIF envelope in tapscript. It returns (nil, nil) if no
// envelope opens at all, which callers treat as "not an inscription".
func parseEnvelope(script []byte, rollupName string) (*ParsedInscription, error) {
	tokenizer := txscript.MakeScriptTokenizer(0, script)

	insideEnvelope := false
	envelopeIndex := -1
	lastWasFalse := false

	var (
		body      bytes.Buffer
		signature []byte
		publicKey []byte
	)

	for tokenizer.Next() {
		op := tokenizer.Opcode()
		data := tokenizer.Data()

		if !insideEnvelope {
			// Look for FALSE (either OP_FALSE/OP_0, or an empty
			// data push) immediately followed by OP_IF.
			if op == txscript.OP_IF && lastWasFalse {
				insideEnvelope = true
				envelopeIndex = 0
				lastWasFalse = false
				continue
			}

			lastWasFalse = op == txscript.OP_FALSE ||
				(isPushOp(op) && len(data) == 0)
			continue
		}

		if op == txscript.OP_ENDIF {
			// Envelope closes. Only the first envelope in a
			// witness script is honored.
			break
		}

		// The nonce is written with a minimal integer push, which for
		// values 1-16 is a small-integer opcode rather than a data push.
		isNonceInt := envelopeIndex == idxNonce &&
			op >= txscript.OP_1 && op <= txscript.OP_16
		if !isPushOp(op) && !isNonceInt {
			return nil, goerrors.WrapPrefix(
				ErrEnvelopeHasNonPushOp, "envelope parse", 0)
		}

		switch envelopeIndex {
		case idxRollupNameTag:
			if !bytes.Equal(data, RollupNameTag) {
				return nil, goerrors.WrapPrefix(
					ErrEnvelopeHasIncorrectFormat, "envelope parse", 0)
			}
		case idxRollupName:
			if string(data) != rollupName {
				return nil, goerrors.WrapPrefix(
					ErrInvalidRollupName, "envelope parse", 0)
			}
		case idxSignatureTag:
			if !bytes.Equal(data, SignatureTag) {
				return nil, goerrors.WrapPrefix(
					ErrEnvelopeHasIncorrectFormat, "envelope parse", 0)
			}
		case idxSignature:
			signature = append([]byte(nil), data...)
		case idxPublicKeyTag:
			if !bytes.Equal(data, PublicKeyTag) {
				return nil, goerrors.WrapPrefix(
					ErrEnvelopeHasIncorrectFormat, "envelope parse", 0)
			}
		case idxPublicKey:
			publicKey = append([]byte(nil), data...)
		case idxRandomTag:
			if !bytes.Equal(data, RandomTag) {
				return nil, goerrors.WrapPrefix(
					ErrEnvelopeHasIncorrectFormat, "envelope parse", 0)
			}
		case idxNonce:
			// Nonce value is part of the proof-of-work mining
			// loop and is not used by the parser.
		case idxBodyTag:
			if !bytes.Equal(data, BodyTag) {
				return nil, goerrors.WrapPrefix(
					ErrEnvelopeHasIncorrectFormat, "envelope parse", 0)
			}
		default:
			// idxBodyStart and beyond: chunks of the body, in
			// order.
			body.Write(data)
		}

		envelopeIndex++
	}

	if err := tokenizer.Err(); err != nil {
		return nil, goerrors.WrapPrefix(err, "envelope parse", 0)
	}

	if !insideEnvelope {
		return nil, nil
	}

	if body.Len() == 0 || len(signature) == 0 || len(publicKey) == 0 {
		return nil, goerrors.WrapPrefix(
			ErrEnvelopeHasIncorrectFormat, "envelope parse", 0)
	}

	return &ParsedInscription{
		Body:      body.Bytes(),
		Signature: signature,
		PublicKey: publicKey,
	}, nil
}

func isPushOp(op byte) bool {
	return op <= txscript.OP_PUSHDATA4
}
