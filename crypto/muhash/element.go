package muhash

import (
	"crypto/sha256"
	"math/big"

	"golang.org/x/crypto/chacha20"
)

const (
	// ElementSize is the size in bytes of a group element, and of the
	// normalized serialization of a MuHash.
	ElementSize = elementBitSize / 8

	elementBitSize = 3072
	primeDiff      = 1103717
)

// prime is 2^3072 - 1103717, the largest 3072-bit safe prime. It must never
// be passed to anything that could modify it.
var prime = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), elementBitSize), big.NewInt(primeDiff))

// elementFromBytes maps an arbitrary byte string to a group element. The input
// is condensed with SHA-256, and the digest is used as a ChaCha20 key with an
// all-zero nonce. Keystream blocks 0 through 5 make up the 384-byte element,
// read as a little-endian integer.
func elementFromBytes(data []byte) *big.Int {
	var (
		key   = sha256.Sum256(data)
		nonce [chacha20.NonceSize]byte
		buf   [ElementSize]byte
	)
	stream, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		// Only reachable with a bad key or nonce length, which are fixed above.
		panic(err)
	}
	stream.XORKeyStream(buf[:], buf[:])

	return intFromLE(buf[:])
}

// intFromLE parses a little-endian unsigned integer.
func intFromLE(in []byte) *big.Int {
	be := make([]byte, len(in))
	for i, b := range in {
		be[len(in)-1-i] = b
	}
	return new(big.Int).SetBytes(be)
}

// putIntLE writes x into out as a little-endian unsigned integer, zero-padded
// to len(out). It panics if x does not fit.
func putIntLE(x *big.Int, out []byte) {
	x.FillBytes(out)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
}
