package envelope

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

const testRollupName = "test_rollup"

func witnessTx(script []byte) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	txIn := wire.NewTxIn(&wire.OutPoint{}, nil, nil)
	txIn.Witness = wire.TxWitness{
		script,
		bytes.Repeat([]byte{0xc0}, 33),
	}
	tx.AddTxIn(txIn)
	return tx
}

func buildEnvelope(t *testing.T, rollupTag, rollupName, sigTag []byte, signature, pubKeyTag, publicKey, randomTag, nonce, bodyTag []byte, bodyChunks ...[]byte) []byte {
	t.Helper()

	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_FALSE)
	b.AddOp(txscript.OP_IF)
	b.AddData(rollupTag)
	b.AddData([]byte(rollupName))
	b.AddData(sigTag)
	b.AddData(signature)
	b.AddData(pubKeyTag)
	b.AddData(publicKey)
	b.AddData(randomTag)
	b.AddData(nonce)
	b.AddData(bodyTag)
	for _, chunk := range bodyChunks {
		b.AddData(chunk)
	}
	b.AddOp(txscript.OP_ENDIF)
	b.AddOp(txscript.OP_CHECKSIG)

	script, err := b.Script()
	require.NoError(t, err)
	return script
}

func correctEnvelope(t *testing.T) ([]byte, []byte, []byte) {
	signature := bytes.Repeat([]byte{100}, 64)
	publicKey := bytes.Repeat([]byte{100}, 33)
	body := bytes.Repeat([]byte{100}, 200)

	script := buildEnvelope(
		t,
		RollupNameTag, testRollupName,
		SignatureTag, signature,
		PublicKeyTag, publicKey,
		RandomTag, []byte{1, 2, 3},
		BodyTag,
		body,
	)

	return script, signature, publicKey
}

func TestParseTransactionCorrect(t *testing.T) {
	script, signature, publicKey := correctEnvelope(t)

	parsed, err := ParseTransaction(witnessTx(script), testRollupName)
	require.NoError(t, err)
	require.NotNil(t, parsed)
	require.Equal(t, signature, parsed.Signature)
	require.Equal(t, publicKey, parsed.PublicKey)
	require.Equal(t, bytes.Repeat([]byte{100}, 200), parsed.Body)
}

func TestParseTransactionWrongRollupTag(t *testing.T) {
	script := buildEnvelope(
		t,
		[]byte("not_the_rollup_name_tag"), testRollupName,
		SignatureTag, bytes.Repeat([]byte{1}, 64),
		PublicKeyTag, bytes.Repeat([]byte{2}, 33),
		RandomTag, []byte{3},
		BodyTag,
		[]byte{4, 5, 6},
	)

	_, err := ParseTransaction(witnessTx(script), testRollupName)
	require.ErrorIs(t, err, ErrEnvelopeHasIncorrectFormat)
}

func TestParseTransactionWrongRollupName(t *testing.T) {
	script := buildEnvelope(
		t,
		RollupNameTag, "some_other_rollup",
		SignatureTag, bytes.Repeat([]byte{1}, 64),
		PublicKeyTag, bytes.Repeat([]byte{2}, 33),
		RandomTag, []byte{3},
		BodyTag,
		[]byte{4, 5, 6},
	)

	_, err := ParseTransaction(witnessTx(script), testRollupName)
	require.ErrorIs(t, err, ErrInvalidRollupName)
}

func TestParseTransactionLeaveOutTags(t *testing.T) {
	tests := map[string]func() []byte{
		"signature tag": func() []byte {
			return buildEnvelope(t,
				RollupNameTag, testRollupName,
				[]byte("not_signature"), bytes.Repeat([]byte{1}, 64),
				PublicKeyTag, bytes.Repeat([]byte{2}, 33),
				RandomTag, []byte{3},
				BodyTag, []byte{4},
			)
		},
		"public key tag": func() []byte {
			return buildEnvelope(t,
				RollupNameTag, testRollupName,
				SignatureTag, bytes.Repeat([]byte{1}, 64),
				[]byte("not_publickey"), bytes.Repeat([]byte{2}, 33),
				RandomTag, []byte{3},
				BodyTag, []byte{4},
			)
		},
		"random tag": func() []byte {
			return buildEnvelope(t,
				RollupNameTag, testRollupName,
				SignatureTag, bytes.Repeat([]byte{1}, 64),
				PublicKeyTag, bytes.Repeat([]byte{2}, 33),
				[]byte("not_random"), []byte{3},
				BodyTag, []byte{4},
			)
		},
		"body tag": func() []byte {
			return buildEnvelope(t,
				RollupNameTag, testRollupName,
				SignatureTag, bytes.Repeat([]byte{1}, 64),
				PublicKeyTag, bytes.Repeat([]byte{2}, 33),
				RandomTag, []byte{3},
				[]byte("not_body"), []byte{4},
			)
		},
	}

	for name, build := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTransaction(witnessTx(build()), testRollupName)
			require.ErrorIs(t, err, ErrEnvelopeHasIncorrectFormat)
		})
	}
}

func TestParseTransactionNonParseableTx(t *testing.T) {
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_FALSE)
	b.AddOp(txscript.OP_IF)
	b.AddData(RollupNameTag)
	b.AddData([]byte(testRollupName))
	b.AddOp(txscript.OP_DEPTH)
	b.AddOp(txscript.OP_ENDIF)
	script, err := b.Script()
	require.NoError(t, err)

	_, err = ParseTransaction(witnessTx(script), testRollupName)
	require.ErrorIs(t, err, ErrEnvelopeHasNonPushOp)
}

func TestParseTransactionOnlyChecksig(t *testing.T) {
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_CHECKSIG)
	script, err := b.Script()
	require.NoError(t, err)

	parsed, err := ParseTransaction(witnessTx(script), testRollupName)
	require.NoError(t, err)
	require.Nil(t, parsed)
}

func TestParseTransactionComplexEnvelope(t *testing.T) {
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_FALSE)
	b.AddOp(txscript.OP_IF)
	b.AddData(RollupNameTag)
	b.AddData([]byte(testRollupName))
	b.AddOp(txscript.OP_1)
	b.AddOp(txscript.OP_IF)
	b.AddData([]byte("nested"))
	b.AddOp(txscript.OP_ENDIF)
	b.AddOp(txscript.OP_ENDIF)
	script, err := b.Script()
	require.NoError(t, err)

	_, err = ParseTransaction(witnessTx(script), testRollupName)
	require.ErrorIs(t, err, ErrEnvelopeHasNonPushOp)
}

func TestParseTransactionTwoEnvelopes(t *testing.T) {
	first, signature, publicKey := correctEnvelope(t)

	b := txscript.NewScriptBuilder()
	b.AddOps(first)
	b.AddOp(txscript.OP_FALSE)
	b.AddOp(txscript.OP_IF)
	b.AddData(RollupNameTag)
	b.AddData([]byte("second_rollup_should_be_ignored"))
	b.AddOp(txscript.OP_ENDIF)
	script, err := b.Script()
	require.NoError(t, err)

	parsed, err := ParseTransaction(witnessTx(script), testRollupName)
	require.NoError(t, err)
	require.NotNil(t, parsed)
	require.Equal(t, signature, parsed.Signature)
	require.Equal(t, publicKey, parsed.PublicKey)
}

func TestParseTransactionBigPush(t *testing.T) {
	body := bytes.Repeat([]byte{7}, 6*512)

	var chunks [][]byte
	for len(body) > 0 {
		n := MaxScriptElementSize - 8
		if n > len(body) {
			n = len(body)
		}
		chunks = append(chunks, body[:n])
		body = body[n:]
	}

	script := buildEnvelope(
		t,
		RollupNameTag, testRollupName,
		SignatureTag, bytes.Repeat([]byte{1}, 64),
		PublicKeyTag, bytes.Repeat([]byte{2}, 33),
		RandomTag, []byte{3},
		BodyTag,
		chunks...,
	)

	parsed, err := ParseTransaction(witnessTx(script), testRollupName)
	require.NoError(t, err)
	require.NotNil(t, parsed)
	require.Len(t, parsed.Body, 6*512)
}
