package db

import (
	"sort"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const leveldbAccumulatorPrefix = "a"

func dup(in []byte) []byte {
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

// ldbConn is a wrapper around a base LevelDB database that handles batching
// writes between commits transparently. A nil value in the batch marks a
// pending delete.
type ldbConn struct {
	conn     *leveldb.DB
	readonly bool
	batch    map[string][]byte
}

func newLDBConn(conn *leveldb.DB, readonly bool) *ldbConn {
	return &ldbConn{conn, readonly, make(map[string][]byte)}
}

func (c *ldbConn) Get(key string) ([]byte, error) {
	if value, ok := c.batch[key]; ok {
		if value == nil {
			return nil, leveldb.ErrNotFound
		}
		return dup(value), nil
	}
	return c.conn.Get([]byte(key), nil)
}

func (c *ldbConn) Put(key string, value []byte) {
	if c.readonly {
		panic("connection is readonly")
	}
	c.batch[key] = dup(value)
}

func (c *ldbConn) Delete(key string) {
	if c.readonly {
		panic("connection is readonly")
	}
	c.batch[key] = nil
}

// Keys returns every key with the given prefix, including uncommitted ones.
func (c *ldbConn) Keys(prefix string) ([]string, error) {
	found := make(map[string]struct{})

	iter := c.conn.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	for iter.Next() {
		found[string(iter.Key())] = struct{}{}
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, err
	}

	for key, value := range c.batch {
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			continue
		} else if value == nil {
			delete(found, key)
		} else {
			found[key] = struct{}{}
		}
	}

	out := make([]string, 0, len(found))
	for key := range found {
		out = append(out, key)
	}
	sort.Strings(out)
	return out, nil
}

func (c *ldbConn) Commit() error {
	if c.readonly {
		panic("connection is readonly")
	}

	// The batch is dropped even if the write fails.
	b := new(leveldb.Batch)
	for key, value := range c.batch {
		if value == nil {
			b.Delete([]byte(key))
		} else {
			b.Put([]byte(key), value)
		}
	}
	c.batch = make(map[string][]byte)

	return c.conn.Write(b, nil)
}

// ldbAccumulatorStore implements the AccumulatorStore interface over a LevelDB
// database.
type ldbAccumulatorStore struct {
	conn *ldbConn
}

// NewLDBAccumulatorStore opens the LevelDB database at file, creating it if
// necessary and recovering it if it is corrupted.
func NewLDBAccumulatorStore(file string) (AccumulatorStore, error) {
	conn, err := leveldb.OpenFile(file, nil)
	if errors.IsCorrupted(err) {
		conn, err = leveldb.RecoverFile(file, nil)
	}
	if err != nil {
		return nil, err
	}
	return &ldbAccumulatorStore{newLDBConn(conn, false)}, nil
}

func (ldb *ldbAccumulatorStore) Clone() AccumulatorStore {
	return &ldbAccumulatorStore{newLDBConn(ldb.conn.conn, true)}
}

func (ldb *ldbAccumulatorStore) Get(name string) ([]byte, error) {
	raw, err := ldb.conn.Get(leveldbAccumulatorPrefix + name)
	if err == leveldb.ErrNotFound {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return raw, nil
}

func (ldb *ldbAccumulatorStore) Put(name string, data []byte) error {
	ldb.conn.Put(leveldbAccumulatorPrefix+name, data)
	return nil
}

func (ldb *ldbAccumulatorStore) Delete(name string) error {
	ldb.conn.Delete(leveldbAccumulatorPrefix + name)
	return nil
}

func (ldb *ldbAccumulatorStore) List() ([]string, error) {
	keys, err := ldb.conn.Keys(leveldbAccumulatorPrefix)
	if err != nil {
		return nil, err
	}
	for i, key := range keys {
		keys[i] = key[len(leveldbAccumulatorPrefix):]
	}
	return keys, nil
}

func (ldb *ldbAccumulatorStore) Commit() error {
	return ldb.conn.Commit()
}
