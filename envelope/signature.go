package envelope

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	goerrors "github.com/go-errors/errors"
)

// compactSignatureSize is the length of a 64-byte R||S ECDSA signature,
// without the recovery byte a Bitcoin message signature normally carries.
const compactSignatureSize = 64

// sha256d is Bitcoin's double-SHA256.
func sha256d(data []byte) [32]byte {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}

// SignBlob signs a blob body with an ECDSA private key over sha256d(body),
// returning a 64-byte compact (R||S, no recovery byte) signature and the
// compressed public key it verifies under. This is the envelope's
// signature field, distinct from the Schnorr signature that authorizes
// spending the reveal transaction's taproot input.
func SignBlob(priv *btcec.PrivateKey, blob []byte) (signature, publicKey []byte, err error) {
	digest := sha256d(blob)

	sig := ecdsa.SignCompact(priv, digest[:], false)
	if len(sig) != compactSignatureSize+1 {
		return nil, nil, goerrors.Errorf("unexpected compact signature length %d", len(sig))
	}

	// SignCompact prefixes a recovery id; the envelope only ever carries
	// the raw R||S pair.
	return sig[1:], priv.PubKey().SerializeCompressed(), nil
}

// VerifyBlobSignature verifies a 64-byte compact ECDSA signature produced
// by SignBlob against the given compressed public key and blob body.
func VerifyBlobSignature(publicKey, blob, signature []byte) bool {
	if len(signature) != compactSignatureSize {
		return false
	}

	pubKey, err := btcec.ParsePubKey(publicKey)
	if err != nil {
		return false
	}

	var r, s btcec.ModNScalar
	if r.SetByteSlice(signature[:32]) {
		// SetByteSlice returns true on overflow.
		return false
	}
	if s.SetByteSlice(signature[32:64]) {
		return false
	}

	sig := ecdsa.NewSignature(&r, &s)

	digest := sha256d(blob)
	return sig.Verify(digest[:], pubKey)
}
