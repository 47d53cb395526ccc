package accumulator

import (
	"context"
	"regexp"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Bren2010/muhash/crypto/muhash"
	"github.com/Bren2010/muhash/db"
)

const maxNameLength = 128

var (
	// ErrInvalidName is returned for set names that are empty, too long, or
	// contain characters outside of [A-Za-z0-9._-].
	ErrInvalidName = errors.New("accumulator: invalid set name")

	nameRegexp = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

// ValidName returns true if name can be used to store a set.
func ValidName(name string) bool {
	return len(name) <= maxNameLength && nameRegexp.MatchString(name)
}

// Tracker maintains named accumulators persisted in a database. It is not safe
// for concurrent mutation; readers in other goroutines should use a Tracker
// over a clone of the store.
type Tracker struct {
	tx      db.AccumulatorStore
	workers int
	log     *logrus.Entry
}

// NewTracker returns a Tracker over tx. Batches of operations are hashed with
// the given number of workers; see Collector.Build.
func NewTracker(tx db.AccumulatorStore, workers int, log *logrus.Entry) *Tracker {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Tracker{tx: tx, workers: workers, log: log.WithField("component", "tracker")}
}

// Clone returns a read-only Tracker over a clone of the underlying store.
func (t *Tracker) Clone() *Tracker {
	return &Tracker{tx: t.tx.Clone(), workers: t.workers, log: t.log}
}

// Get returns a copy of the named accumulator. Sets that were never written
// are empty.
func (t *Tracker) Get(name string) (*muhash.MuHash, error) {
	if !ValidName(name) {
		return nil, errors.Wrapf(ErrInvalidName, "%q", name)
	}
	raw, err := t.tx.Get(name)
	if err != nil {
		return nil, errors.Wrapf(err, "loading set %q", name)
	} else if raw == nil {
		return muhash.New(), nil
	}
	ms, err := muhash.Deserialize(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing set %q", name)
	}
	return ms, nil
}

// Digest returns the digest of the named set.
func (t *Tracker) Digest(name string) (muhash.Hash, error) {
	ms, err := t.Get(name)
	if err != nil {
		return muhash.Hash{}, err
	}
	return ms.Digest()
}

// List returns the names of all stored sets.
func (t *Tracker) List() ([]string, error) {
	return t.tx.List()
}

// Apply inserts and removes the given elements from the named set, persists
// it, and returns its new digest. Nothing is stored if the resulting set has
// no valid digest.
func (t *Tracker) Apply(ctx context.Context, name string, inserts, removes [][]byte) (muhash.Hash, error) {
	ms, err := t.Get(name)
	if err != nil {
		return muhash.Hash{}, err
	}

	c := NewCollector()
	for _, elem := range inserts {
		c.Insert(elem)
	}
	for _, elem := range removes {
		c.Remove(elem)
	}
	batch, err := c.Build(ctx, t.workers)
	if err != nil {
		return muhash.Hash{}, err
	}
	ms.Combine(batch)

	h, err := t.store(name, ms)
	if err != nil {
		return muhash.Hash{}, err
	}
	t.log.WithFields(logrus.Fields{
		"set":     name,
		"inserts": len(inserts),
		"removes": len(removes),
		"digest":  h.String(),
	}).Debug("Applied batch.")
	return h, nil
}

// Merge adds every element of src to dst.
func (t *Tracker) Merge(dst, src string) (muhash.Hash, error) {
	return t.combine(dst, src, (*muhash.MuHash).Combine)
}

// Subtract removes every element of src from dst.
func (t *Tracker) Subtract(dst, src string) (muhash.Hash, error) {
	return t.combine(dst, src, (*muhash.MuHash).Divide)
}

func (t *Tracker) combine(dst, src string, f func(*muhash.MuHash, *muhash.MuHash)) (muhash.Hash, error) {
	dstMs, err := t.Get(dst)
	if err != nil {
		return muhash.Hash{}, err
	}
	srcMs, err := t.Get(src)
	if err != nil {
		return muhash.Hash{}, err
	}
	f(dstMs, srcMs)

	h, err := t.store(dst, dstMs)
	if err != nil {
		return muhash.Hash{}, err
	}
	t.log.WithFields(logrus.Fields{"set": dst, "source": src, "digest": h.String()}).Debug("Combined sets.")
	return h, nil
}

// Delete removes the named set. Deleting a set that does not exist is not an
// error.
func (t *Tracker) Delete(name string) error {
	if !ValidName(name) {
		return errors.Wrapf(ErrInvalidName, "%q", name)
	} else if err := t.tx.Delete(name); err != nil {
		return err
	} else if err := t.tx.Commit(); err != nil {
		return errors.Wrap(err, "committing delete")
	}
	t.log.WithField("set", name).Debug("Deleted set.")
	return nil
}

func (t *Tracker) store(name string, ms *muhash.MuHash) (muhash.Hash, error) {
	h, err := ms.Digest()
	if err != nil {
		return muhash.Hash{}, errors.Wrapf(err, "finalizing set %q", name)
	} else if err := t.tx.Put(name, ms.Serialize()); err != nil {
		return muhash.Hash{}, errors.Wrapf(err, "storing set %q", name)
	} else if err := t.tx.Commit(); err != nil {
		return muhash.Hash{}, errors.Wrap(err, "committing set")
	}
	return h, nil
}
