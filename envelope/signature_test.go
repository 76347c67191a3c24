package envelope

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyBlobRoundTrip(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	blob := []byte("rollup batch contents")

	sig, pubKey, err := SignBlob(priv, blob)
	require.NoError(t, err)
	require.Len(t, sig, compactSignatureSize)
	require.Len(t, pubKey, 33)

	require.True(t, VerifyBlobSignature(pubKey, blob, sig))
}

func TestVerifyBlobSignatureRejectsTamperedBody(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	blob := []byte("original body")
	sig, pubKey, err := SignBlob(priv, blob)
	require.NoError(t, err)

	require.False(t, VerifyBlobSignature(pubKey, []byte("tampered body"), sig))
}

func TestVerifyBlobSignatureRejectsWrongKey(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	other, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	blob := []byte("original body")
	sig, _, err := SignBlob(priv, blob)
	require.NoError(t, err)

	require.False(t, VerifyBlobSignature(other.PubKey().SerializeCompressed(), blob, sig))
}
