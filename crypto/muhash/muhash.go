// Package muhash implements MuHash3072, an incremental multiset hash.
//
// A MuHash commits to an unordered collection of byte strings in which
// elements may repeat. Elements can be inserted and removed in any order and
// the digest only depends on the resulting multiset. Accumulators built over
// disjoint parts of a set can be merged with Combine, which is how large sets
// are hashed in parallel.
//
// Removing an element that was never inserted is not detected. It produces a
// valid-looking digest that does not correspond to any real multiset.
package muhash

import (
	"crypto/sha256"
	"encoding/hex"
	"math/big"

	"github.com/pkg/errors"
)

const (
	// HashSize is the size in bytes of a finalized MuHash digest.
	HashSize = sha256.Size

	// SerializedSize is the size in bytes of the output of Serialize.
	SerializedSize = 2 * ElementSize
)

var (
	// ErrNonInvertible is returned when a denominator is zero modulo the
	// group order and has no inverse. This only happens if callers removed
	// elements that were never inserted.
	ErrNonInvertible = errors.New("muhash: denominator is not invertible")

	// ErrOverflow is returned when a serialized value is not a canonical
	// group element.
	ErrOverflow = errors.New("muhash: serialized value overflows the group")

	// EmptyHash is the digest of an empty MuHash.
	EmptyHash = Hash{
		0xc8, 0x55, 0x25, 0x46, 0x2f, 0xdc, 0xf3, 0x0a,
		0x2c, 0x18, 0xd6, 0xf4, 0xb9, 0x29, 0x23, 0x00,
		0x09, 0x74, 0x35, 0x5c, 0x24, 0x77, 0xf5, 0x95,
		0x94, 0xd2, 0xc2, 0x05, 0xa1, 0xd2, 0x5a, 0xdd,
	}
)

// Hash is the finalized digest of a MuHash. The array holds the raw SHA-256
// output; String reverses it into the display order used by Bitcoin-style
// tooling.
type Hash [HashSize]byte

// String returns the digest as hex in display (byte-reversed) order.
func (h Hash) String() string {
	var rev Hash
	for i := range h {
		rev[HashSize-1-i] = h[i]
	}
	return hex.EncodeToString(rev[:])
}

// RawHex returns the digest as hex in raw byte order.
func (h Hash) RawHex() string { return hex.EncodeToString(h[:]) }

// IsEqual returns true if target is the same as h.
func (h Hash) IsEqual(target *Hash) bool {
	if target == nil {
		return false
	}
	return h == *target
}

// HashFromString parses a digest in the display order produced by String.
func HashFromString(s string) (Hash, error) {
	var out Hash
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, errors.Wrap(err, "muhash: invalid hash encoding")
	} else if len(raw) != HashSize {
		return out, errors.Errorf("muhash: invalid hash length: wanted=%v, got=%v", HashSize, len(raw))
	}
	for i := range raw {
		out[HashSize-1-i] = raw[i]
	}
	return out, nil
}

// MuHash is a multiset accumulator. Use New to create one; the zero value is
// not usable.
//
// A MuHash is not safe for concurrent mutation. Independent goroutines should
// each build their own accumulator and merge them with Combine.
type MuHash struct {
	numerator   *big.Int
	denominator *big.Int
}

// New returns an accumulator for the empty multiset.
func New() *MuHash {
	return &MuHash{
		numerator:   big.NewInt(1),
		denominator: big.NewInt(1),
	}
}

// Reset returns the accumulator to the empty multiset.
func (mu *MuHash) Reset() {
	mu.numerator.SetInt64(1)
	mu.denominator.SetInt64(1)
}

// Clone returns a deep copy of the accumulator.
func (mu *MuHash) Clone() *MuHash {
	return &MuHash{
		numerator:   new(big.Int).Set(mu.numerator),
		denominator: new(big.Int).Set(mu.denominator),
	}
}

// Insert adds one copy of data to the multiset.
func (mu *MuHash) Insert(data []byte) {
	mulMod(mu.numerator, elementFromBytes(data))
}

// Remove removes one copy of data from the multiset. It is the caller's
// responsibility that data was inserted before.
func (mu *MuHash) Remove(data []byte) {
	mulMod(mu.denominator, elementFromBytes(data))
}

// Combine adds every element of other to mu. The result commits to the union
// of both multisets. other is not modified.
func (mu *MuHash) Combine(other *MuHash) {
	mulMod(mu.numerator, other.numerator)
	mulMod(mu.denominator, other.denominator)
}

// Divide removes every element of other from mu. The result commits to the
// difference of both multisets. other is not modified.
func (mu *MuHash) Divide(other *MuHash) {
	numerator, denominator := new(big.Int).Set(other.numerator), new(big.Int).Set(other.denominator)
	mulMod(mu.numerator, denominator)
	mulMod(mu.denominator, numerator)
}

// Combine returns the accumulator for the union of a and b, leaving both
// unchanged.
func Combine(a, b *MuHash) *MuHash {
	out := a.Clone()
	out.Combine(b)
	return out
}

// Difference returns the accumulator for a with every element of b removed,
// leaving both unchanged.
func Difference(a, b *MuHash) *MuHash {
	out := a.Clone()
	out.Divide(b)
	return out
}

// Equal returns true if mu and other commit to the same multiset, regardless
// of how their numerators and denominators were reached. A state with a zero
// denominator commits to no multiset and is only equal to an identical state.
func (mu *MuHash) Equal(other *MuHash) bool {
	if mu.denominator.Sign() == 0 || other.denominator.Sign() == 0 {
		return mu.numerator.Cmp(other.numerator) == 0 && mu.denominator.Cmp(other.denominator) == 0
	}
	left := new(big.Int).Mul(mu.numerator, other.denominator)
	left.Mod(left, prime)
	right := new(big.Int).Mul(other.numerator, mu.denominator)
	right.Mod(right, prime)
	return left.Cmp(right) == 0
}

// Normalize folds the denominator into the numerator, leaving the denominator
// at one. The committed multiset is unchanged.
func (mu *MuHash) Normalize() error {
	val, err := mu.value()
	if err != nil {
		return err
	}
	mu.numerator = val
	mu.denominator.SetInt64(1)
	return nil
}

// Digest returns the finalized hash of the multiset. It does not modify the
// accumulator and may be called any number of times.
func (mu *MuHash) Digest() (Hash, error) {
	val, err := mu.value()
	if err != nil {
		return Hash{}, err
	}
	var buf [ElementSize]byte
	putIntLE(val, buf[:])
	return sha256.Sum256(buf[:]), nil
}

// value returns numerator / denominator in the group, as a new integer.
func (mu *MuHash) value() (*big.Int, error) {
	if mu.denominator.Sign() == 0 {
		return nil, ErrNonInvertible
	}
	inv := new(big.Int).ModInverse(mu.denominator, prime)
	if inv == nil {
		return nil, ErrNonInvertible
	}
	inv.Mul(inv, mu.numerator)
	return inv.Mod(inv, prime), nil
}

// Serialize returns the full accumulator state: the numerator followed by the
// denominator, each as a 384-byte little-endian integer. Unlike
// SerializeCompact it never fails.
func (mu *MuHash) Serialize() []byte {
	out := make([]byte, SerializedSize)
	putIntLE(mu.numerator, out[:ElementSize])
	putIntLE(mu.denominator, out[ElementSize:])
	return out
}

// Deserialize parses the output of Serialize.
func Deserialize(raw []byte) (*MuHash, error) {
	if len(raw) != SerializedSize {
		return nil, errors.Errorf("muhash: serialized state has unexpected length: wanted=%v, got=%v", SerializedSize, len(raw))
	}
	numerator, err := parseElement(raw[:ElementSize])
	if err != nil {
		return nil, err
	}
	denominator, err := parseElement(raw[ElementSize:])
	if err != nil {
		return nil, err
	}
	return &MuHash{numerator: numerator, denominator: denominator}, nil
}

// SerializeCompact returns the normalized accumulator as a single 384-byte
// little-endian integer. The accumulator itself is not modified.
func (mu *MuHash) SerializeCompact() (*[ElementSize]byte, error) {
	val, err := mu.value()
	if err != nil {
		return nil, err
	}
	out := new([ElementSize]byte)
	putIntLE(val, out[:])
	return out, nil
}

// DeserializeCompact parses the output of SerializeCompact.
func DeserializeCompact(raw *[ElementSize]byte) (*MuHash, error) {
	numerator, err := parseElement(raw[:])
	if err != nil {
		return nil, err
	}
	return &MuHash{numerator: numerator, denominator: big.NewInt(1)}, nil
}

func parseElement(raw []byte) (*big.Int, error) {
	x := intFromLE(raw)
	if x.Cmp(prime) >= 0 {
		return nil, ErrOverflow
	}
	return x, nil
}

// mulMod sets x = x*y mod prime.
func mulMod(x, y *big.Int) {
	x.Mul(x, y)
	x.Mod(x, prime)
}
