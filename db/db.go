// Package db implements database wrappers that match a common interface.
package db

// AccumulatorStore is the interface a Tracker uses to persist named
// accumulator states.
type AccumulatorStore interface {
	// Clone returns a read-only clone of the current store, suitable for
	// distributing to child goroutines. A clone only sees committed data.
	Clone() AccumulatorStore

	// Get returns the serialized state stored under name, or nil if there is
	// none.
	Get(name string) ([]byte, error)
	Put(name string, data []byte) error
	Delete(name string) error
	// List returns the names of all stored states in lexicographic order.
	List() ([]string, error)

	Commit() error
}
