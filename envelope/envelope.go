// Package envelope implements the tagged inscription envelope shared by the
// transaction builder and the reveal-transaction parser: tag constants,
// Brotli body compression, and the parsed-inscription result type.
package envelope

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	goerrors "github.com/go-errors/errors"
)

// Tag byte-strings. Builder and parser must agree on these exactly; any
// interoperable implementation adopts the identical byte strings.
var (
	RollupNameTag = []byte("rollup_name")
	SignatureTag  = []byte("signature")
	PublicKeyTag  = []byte("publickey")
	RandomTag     = []byte("random")
	BodyTag       = []byte("body")
)

// MaxScriptElementSize is Bitcoin's MAX_SCRIPT_ELEMENT_SIZE: the largest
// single data push allowed in a script. Body bytes are chunked at this size.
const MaxScriptElementSize = 520

// DustLimit is the minimum standard output value, in satoshis.
const DustLimit = 546

// Brotli compression parameters shared by the builder (compress) and the
// verifier (decompress).
const (
	brotliBufferSize = 4096
	brotliQuality    = 11
	brotliWindow     = 22
)

// ParsedInscription is the result of successfully parsing a reveal
// transaction's tapscript witness.
type ParsedInscription struct {
	// Body is the compressed blob body, reassembled from its chunked
	// pushes in envelope order.
	Body []byte

	// Signature is the 64-byte compact ECDSA signature over
	// sha256d(Body).
	Signature []byte

	// PublicKey is the compressed secp256k1 public key the signature
	// purports to verify under.
	PublicKey []byte
}

// ErrDecompressionFailed is returned when a Brotli stream fails to decode.
var ErrDecompressionFailed = goerrors.Errorf("decompression failed")

// CompressBlob compresses an arbitrary blob body with the envelope's fixed
// Brotli parameters. The builder always compresses a blob before embedding
// it in a reveal script.
//
// brotliBufferSize has no equivalent in the Go encoder (it sizes the Rust
// binding's internal write buffer, not the bitstream); only quality and
// window size affect the compressed output.
func CompressBlob(blob []byte) []byte {
	var buf bytes.Buffer
	w := brotli.NewWriterOptions(&buf, brotli.WriterOptions{
		Quality: brotliQuality,
		LGWin:   brotliWindow,
	})

	_, err := w.Write(blob)
	if err != nil {
		// A Vec/bytes.Buffer backed writer cannot fail on Write.
		panic(err)
	}
	if err := w.Close(); err != nil {
		panic(err)
	}

	return buf.Bytes()
}

// DecompressBlob decompresses a Brotli-compressed blob. It fails with
// ErrDecompressionFailed on malformed input; any other implementation must
// accept any valid Brotli stream.
func DecompressBlob(blob []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(blob))

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressionFailed, err)
	}

	return out, nil
}
