// Package utxo implements the encoding of unspent transaction outputs that is
// committed to by a UTXO-set MuHash.
package utxo

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/Bren2010/muhash/crypto/muhash"
)

const (
	// TxIDSize is the size in bytes of a transaction id.
	TxIDSize = 32
	// OutpointSize is the encoded size of an Outpoint.
	OutpointSize = TxIDSize + 4

	maxHeight = 1<<31 - 1
)

var (
	// ErrInvalidEntry is returned for entries that can not be encoded or
	// parsed.
	ErrInvalidEntry = errors.New("utxo: invalid entry")
)

// Outpoint identifies a single output of a transaction.
type Outpoint struct {
	TxID  [TxIDSize]byte
	Index uint32
}

// Bytes returns the txid followed by the little-endian output index.
func (o Outpoint) Bytes() []byte {
	out := make([]byte, OutpointSize)
	copy(out, o.TxID[:])
	binary.LittleEndian.PutUint32(out[TxIDSize:], o.Index)
	return out
}

// Entry is an unspent output together with the metadata of the transaction
// that created it.
type Entry struct {
	Outpoint Outpoint
	Height   uint32 // Height of the block containing the transaction.
	Coinbase bool
	Amount   int64
	Script   []byte
}

// MarshalBinary returns the serialized entry: the outpoint, the height and
// coinbase flag packed as height*2+coinbase, the amount and the
// length-prefixed output script.
func (e *Entry) MarshalBinary() ([]byte, error) {
	if e.Height > maxHeight {
		return nil, errors.Wrapf(ErrInvalidEntry, "height too large: %v", e.Height)
	} else if e.Amount < 0 {
		return nil, errors.Wrapf(ErrInvalidEntry, "negative amount: %v", e.Amount)
	}

	buf := bytes.NewBuffer(make([]byte, 0, OutpointSize+4+8+9+len(e.Script)))
	buf.Write(e.Outpoint.Bytes())

	code := e.Height << 1
	if e.Coinbase {
		code |= 1
	}
	binary.Write(buf, binary.LittleEndian, code)
	binary.Write(buf, binary.LittleEndian, e.Amount)
	writeCompactSize(buf, uint64(len(e.Script)))
	buf.Write(e.Script)

	return buf.Bytes(), nil
}

// ParseEntry parses the output of MarshalBinary.
func ParseEntry(raw []byte) (*Entry, error) {
	buf := bytes.NewReader(raw)
	e := &Entry{}

	if _, err := io.ReadFull(buf, e.Outpoint.TxID[:]); err != nil {
		return nil, errors.Wrap(ErrInvalidEntry, "truncated txid")
	}
	var code uint32
	if err := binary.Read(buf, binary.LittleEndian, &e.Outpoint.Index); err != nil {
		return nil, errors.Wrap(ErrInvalidEntry, "truncated output index")
	} else if err := binary.Read(buf, binary.LittleEndian, &code); err != nil {
		return nil, errors.Wrap(ErrInvalidEntry, "truncated height")
	} else if err := binary.Read(buf, binary.LittleEndian, &e.Amount); err != nil {
		return nil, errors.Wrap(ErrInvalidEntry, "truncated amount")
	} else if e.Amount < 0 {
		return nil, errors.Wrapf(ErrInvalidEntry, "negative amount: %v", e.Amount)
	}
	e.Height, e.Coinbase = code>>1, code&1 == 1

	n, err := readCompactSize(buf)
	if err != nil {
		return nil, err
	} else if n != uint64(buf.Len()) {
		return nil, errors.Wrapf(ErrInvalidEntry, "script length mismatch: wanted=%v, got=%v", n, buf.Len())
	}
	e.Script = make([]byte, n)
	if _, err := io.ReadFull(buf, e.Script); err != nil {
		return nil, errors.Wrap(ErrInvalidEntry, "truncated script")
	}

	return e, nil
}

// AddToMuHash inserts the serialized entry into ms.
func AddToMuHash(ms *muhash.MuHash, e *Entry) error {
	raw, err := e.MarshalBinary()
	if err != nil {
		return err
	}
	ms.Insert(raw)
	return nil
}

// RemoveFromMuHash removes the serialized entry from ms.
func RemoveFromMuHash(ms *muhash.MuHash, e *Entry) error {
	raw, err := e.MarshalBinary()
	if err != nil {
		return err
	}
	ms.Remove(raw)
	return nil
}

func writeCompactSize(buf *bytes.Buffer, n uint64) {
	switch {
	case n < 0xfd:
		buf.WriteByte(byte(n))
	case n <= 0xffff:
		buf.WriteByte(0xfd)
		binary.Write(buf, binary.LittleEndian, uint16(n))
	case n <= 0xffffffff:
		buf.WriteByte(0xfe)
		binary.Write(buf, binary.LittleEndian, uint32(n))
	default:
		buf.WriteByte(0xff)
		binary.Write(buf, binary.LittleEndian, n)
	}
}

// readCompactSize reads a length prefix, rejecting encodings that are longer
// than necessary.
func readCompactSize(buf *bytes.Reader) (uint64, error) {
	prefix, err := buf.ReadByte()
	if err != nil {
		return 0, errors.Wrap(ErrInvalidEntry, "truncated script length")
	}

	var n, least uint64
	switch prefix {
	case 0xfd:
		var v uint16
		err, least = binary.Read(buf, binary.LittleEndian, &v), 0xfd
		n = uint64(v)
	case 0xfe:
		var v uint32
		err, least = binary.Read(buf, binary.LittleEndian, &v), 0x10000
		n = uint64(v)
	case 0xff:
		err, least = binary.Read(buf, binary.LittleEndian, &n), 0x100000000
	default:
		return uint64(prefix), nil
	}
	if err != nil {
		return 0, errors.Wrap(ErrInvalidEntry, "truncated script length")
	} else if n < least {
		return 0, errors.Wrap(ErrInvalidEntry, "non-canonical script length")
	}
	return n, nil
}
