package client

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/sovbtc/bitcoin-da/daverifier"
)

func testSeed() []byte {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i + 7)
	}
	return seed
}

func newTestClient(t *testing.T) *Client {
	t.Helper()

	c, err := New(&Config{
		Network:    "regtest",
		RollupName: "test-rollup",
		DBPath:     ":memory:",
		Seed:       testSeed(),
	})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresRollupName(t *testing.T) {
	_, err := New(&Config{
		Network: "regtest",
		DBPath:  ":memory:",
		Seed:    testSeed(),
	})
	require.Error(t, err)
}

func TestNew_WiresComponents(t *testing.T) {
	c := newTestClient(t)
	require.NotNil(t, c.chainBridge)
	require.NotNil(t, c.keyRing)
	require.NotNil(t, c.store)
	require.NotNil(t, c.verifier)
	require.Equal(t, &chaincfg.RegressionNetParams, c.netParams)
}

func TestVerifyBlock_PersistsTip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	// A block containing a single, non-relevant transaction: the merkle
	// root is just that transaction's hash, and it contributes nothing
	// to the completeness proof.
	txHash := chainhash.Hash{0xaa}

	header := daverifier.BlockHeader{
		PrevHash:   chainhash.Hash{1},
		BlockHash:  chainhash.Hash{2},
		MerkleRoot: txHash,
	}
	inclusion := daverifier.InclusionProof{Txs: []chainhash.Hash{txHash}}

	cond, err := c.VerifyBlock(ctx, 1, header, nil, inclusion, nil)
	require.NoError(t, err)
	require.EqualValues(t, header.PrevHash, cond.PrevHash)
	require.EqualValues(t, header.BlockHash, cond.BlockHash)

	height, ok, err := c.Tip(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, height)
}
