package daverifier

import (
	"bytes"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/sovbtc/bitcoin-da/envelope"
)

// powPrefix is the two zero bytes a relevant transaction's txid must
// start with.
var powPrefix = [2]byte{0, 0}

func isRelevant(hash chainhash.Hash) bool {
	return hash[0] == powPrefix[0] && hash[1] == powPrefix[1]
}

// Verifier reconstructs and validates the relevant-blob list for a single
// rollup, identified by rollup name, against a Bitcoin block's proofs.
type Verifier struct {
	RollupName string
}

// New constructs a Verifier for a rollup name.
func New(rollupName string) *Verifier {
	return &Verifier{RollupName: rollupName}
}

// VerifyRelevantTxList checks that blobs is exactly the set of blobs
// carried by the block's proof-of-work-tagged transactions, in order,
// with no extras and nothing missing, and that the inclusion proof's
// transaction list actually hashes to the block header's merkle root. On
// success it returns the block's validity condition for chaining against
// its neighbors.
func (v *Verifier) VerifyRelevantTxList(
	header *BlockHeader,
	blobs []*BlobWithSender,
	inclusion InclusionProof,
	completeness CompletenessProof,
) (ChainValidityCondition, error) {

	validity := ChainValidityCondition{
		PrevHash:  header.PrevHash,
		BlockHash: header.BlockHash,
	}

	blobIdx := 0
	prevIndexInInclusion := 0
	completenessHashes := make(map[chainhash.Hash]struct{}, len(completeness))

	for _, tx := range completeness {
		txHash := tx.TxHash()

		if !isRelevant(txHash) {
			return ChainValidityCondition{}, newValidationError(
				InvalidProof, "non-relevant tx found in completeness proof")
		}

		found := false
		for i := prevIndexInInclusion; i < len(inclusion.Txs); i++ {
			if inclusion.Txs[i] == txHash {
				found = true
				prevIndexInInclusion = i + 1
				break
			}
		}
		if !found {
			return ChainValidityCondition{}, newValidationError(
				InvalidProof, "tx in completeness proof is not found in DA block or order was not preserved")
		}

		completenessHashes[txHash] = struct{}{}

		parsed, err := envelope.ParseTransaction(tx, v.RollupName)
		if err != nil || parsed == nil {
			// Relevant (proof-of-work-tagged) but not one of ours,
			// or malformed: it still needs to be accounted for in
			// the completeness set above, but it contributes no
			// blob.
			continue
		}

		if !envelope.VerifyBlobSignature(parsed.PublicKey, parsed.Body, parsed.Signature) {
			continue
		}

		blobHash := sha256dHash(parsed.Body)

		if blobIdx >= len(blobs) {
			return ChainValidityCondition{}, newValidationError(
				InvalidProof, "valid blob was not found in blobs")
		}
		blob := blobs[blobIdx]
		blobIdx++

		if blob.Hash != blobHash {
			return ChainValidityCondition{}, newValidationError(
				InvalidProof, "blobs was tampered with")
		}
		if !bytes.Equal(blob.Sender, parsed.PublicKey) {
			return ChainValidityCondition{}, newValidationError(
				InvalidProof, "incorrect sender in blob")
		}

		decompressed, err := envelope.DecompressBlob(parsed.Body)
		if err != nil {
			return ChainValidityCondition{}, newValidationError(InvalidTx, err.Error())
		}
		if !bytes.Equal(decompressed, blob.Blob) {
			return ChainValidityCondition{}, newValidationError(
				InvalidProof, "blob content was modified")
		}
	}

	if blobIdx != len(blobs) {
		return ChainValidityCondition{}, newValidationError(
			InvalidProof, "completeness proof is incorrect")
	}

	for _, txHash := range inclusion.Txs {
		if !isRelevant(txHash) {
			continue
		}
		if _, ok := completenessHashes[txHash]; !ok {
			return ChainValidityCondition{}, newValidationError(
				InvalidProof, "relevant transaction in DA block was not included in completeness proof")
		}
		delete(completenessHashes, txHash)
	}

	if len(completenessHashes) != 0 {
		return ChainValidityCondition{}, newValidationError(
			InvalidProof, "non-relevant transaction found in completeness proof")
	}

	root, err := calculateMerkleRoot(inclusion.Txs)
	if err != nil {
		return ChainValidityCondition{}, newValidationError(InvalidProof, err.Error())
	}
	if root != header.MerkleRoot {
		return ChainValidityCondition{}, newValidationError(
			InvalidProof, "inclusion proof is incorrect")
	}

	return validity, nil
}

func sha256dHash(data []byte) [32]byte {
	return chainhash.DoubleHashH(data)
}
