package daverifier

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	goerrors "github.com/go-errors/errors"
)

// calculateMerkleRoot computes a Bitcoin block's transaction merkle root
// from an ordered list of transaction hashes, duplicating the last node
// of a level whenever that level has an odd number of nodes.
func calculateMerkleRoot(hashes []chainhash.Hash) (chainhash.Hash, error) {
	if len(hashes) == 0 {
		return chainhash.Hash{}, goerrors.Errorf("cannot compute merkle root of an empty tx list")
	}

	level := make([]chainhash.Hash, len(hashes))
	copy(level, hashes)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}

		next := make([]chainhash.Hash, len(level)/2)
		for i := range next {
			var buf [chainhash.HashSize * 2]byte
			copy(buf[:chainhash.HashSize], level[2*i][:])
			copy(buf[chainhash.HashSize:], level[2*i+1][:])
			next[i] = chainhash.DoubleHashH(buf[:])
		}

		level = next
	}

	return level[0], nil
}
