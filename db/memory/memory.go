// Package memory provides in-memory implementations of the database interfaces.
package memory

import (
	"errors"
	"sort"
	"sync"

	"github.com/Bren2010/muhash/db"
)

func dup(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// AccumulatorStore implements db.AccumulatorStore over a map. Writes are
// buffered until Commit, so clones only see committed data, the same as the
// LevelDB store.
type AccumulatorStore struct {
	// Data holds committed states. Tests may seed it before the store is
	// shared with other goroutines.
	Data    map[string][]byte
	Commits int
	// CommitErr, if set, is returned by Commit and the pending writes are
	// dropped.
	CommitErr error

	mu       *sync.RWMutex
	pending  map[string][]byte // A nil value marks a pending delete.
	readonly bool
}

func NewAccumulatorStore() *AccumulatorStore {
	return &AccumulatorStore{
		Data:    make(map[string][]byte),
		mu:      &sync.RWMutex{},
		pending: make(map[string][]byte),
	}
}

func (as *AccumulatorStore) Clone() db.AccumulatorStore {
	return &AccumulatorStore{Data: as.Data, mu: as.mu, readonly: true}
}

func (as *AccumulatorStore) Get(name string) ([]byte, error) {
	if value, ok := as.pending[name]; ok {
		return dup(value), nil
	}
	as.mu.RLock()
	defer as.mu.RUnlock()
	return dup(as.Data[name]), nil
}

func (as *AccumulatorStore) Put(name string, data []byte) error {
	if as.readonly {
		return errors.New("store is readonly")
	} else if data == nil {
		return errors.New("unable to store nil value")
	}
	as.pending[name] = dup(data)
	return nil
}

func (as *AccumulatorStore) Delete(name string) error {
	if as.readonly {
		return errors.New("store is readonly")
	}
	as.pending[name] = nil
	return nil
}

func (as *AccumulatorStore) List() ([]string, error) {
	found := make(map[string]struct{})
	as.mu.RLock()
	for name := range as.Data {
		found[name] = struct{}{}
	}
	as.mu.RUnlock()
	for name, value := range as.pending {
		if value == nil {
			delete(found, name)
		} else {
			found[name] = struct{}{}
		}
	}

	out := make([]string, 0, len(found))
	for name := range found {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (as *AccumulatorStore) Commit() error {
	if as.readonly {
		return errors.New("store is readonly")
	}
	defer func() { as.pending = make(map[string][]byte) }()
	if as.CommitErr != nil {
		return as.CommitErr
	}

	as.mu.Lock()
	defer as.mu.Unlock()
	for name, value := range as.pending {
		if value == nil {
			delete(as.Data, name)
		} else {
			as.Data[name] = value
		}
	}
	as.Commits++
	return nil
}
