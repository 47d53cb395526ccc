package accumulator

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/Bren2010/muhash/crypto/muhash"
	"github.com/Bren2010/muhash/db/memory"
)

func TestTrackerApply(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAccumulatorStore()
	tr := NewTracker(store, 2, nil)

	h, err := tr.Digest("utxo")
	if err != nil {
		t.Fatal(err)
	} else if h != muhash.EmptyHash {
		t.Fatalf("unexpected digest for unknown set: %v", h)
	}

	a, b, c := random(), random(), random()
	if _, err := tr.Apply(ctx, "utxo", [][]byte{a, b}, nil); err != nil {
		t.Fatal(err)
	}
	h, err = tr.Apply(ctx, "utxo", [][]byte{c}, [][]byte{a})
	if err != nil {
		t.Fatal(err)
	}

	want := muhash.New()
	want.Insert(b)
	want.Insert(c)
	wantHash, err := want.Digest()
	if err != nil {
		t.Fatal(err)
	} else if h != wantHash {
		t.Fatalf("unexpected digest: wanted=%v, got=%v", wantHash, h)
	}
	if store.Commits != 2 {
		t.Fatalf("unexpected number of commits: %v", store.Commits)
	}

	// A clone reads the same state.
	h, err = tr.Clone().Digest("utxo")
	if err != nil {
		t.Fatal(err)
	} else if h != wantHash {
		t.Fatalf("clone read unexpected digest: %v", h)
	}

	names, err := tr.List()
	if err != nil {
		t.Fatal(err)
	} else if !reflect.DeepEqual(names, []string{"utxo"}) {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestTrackerMergeSubtract(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(memory.NewAccumulatorStore(), 1, nil)

	a, b := random(), random()
	if _, err := tr.Apply(ctx, "left", [][]byte{a}, nil); err != nil {
		t.Fatal(err)
	} else if _, err := tr.Apply(ctx, "right", [][]byte{b}, nil); err != nil {
		t.Fatal(err)
	}

	h, err := tr.Merge("left", "right")
	if err != nil {
		t.Fatal(err)
	}
	want := muhash.New()
	want.Insert(a)
	want.Insert(b)
	if wantHash, _ := want.Digest(); h != wantHash {
		t.Fatalf("unexpected merged digest: %v", h)
	}

	// The source set is unchanged.
	right, err := tr.Get("right")
	if err != nil {
		t.Fatal(err)
	}
	want = muhash.New()
	want.Insert(b)
	if !right.Equal(want) {
		t.Fatal("merge modified the source set")
	}

	h, err = tr.Subtract("left", "right")
	if err != nil {
		t.Fatal(err)
	}
	want = muhash.New()
	want.Insert(a)
	if wantHash, _ := want.Digest(); h != wantHash {
		t.Fatalf("unexpected digest after subtract: %v", h)
	}
}

func TestTrackerDelete(t *testing.T) {
	tr := NewTracker(memory.NewAccumulatorStore(), 1, nil)
	if _, err := tr.Apply(context.Background(), "s", [][]byte{random()}, nil); err != nil {
		t.Fatal(err)
	}
	if err := tr.Delete("s"); err != nil {
		t.Fatal(err)
	}
	h, err := tr.Digest("s")
	if err != nil {
		t.Fatal(err)
	} else if h != muhash.EmptyHash {
		t.Fatal("deleted set is not empty")
	}
	if err := tr.Delete("never-existed"); err != nil {
		t.Fatal(err)
	}
}

func TestTrackerInvalidName(t *testing.T) {
	tr := NewTracker(memory.NewAccumulatorStore(), 1, nil)
	for _, name := range []string{"", "a/b", "sp ace", strings.Repeat("x", maxNameLength+1)} {
		if _, err := tr.Digest(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Digest(%q): unexpected error: %v", name, err)
		}
		if _, err := tr.Apply(context.Background(), name, nil, nil); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Apply(%q): unexpected error: %v", name, err)
		}
		if err := tr.Delete(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Delete(%q): unexpected error: %v", name, err)
		}
	}
	for _, name := range []string{"a", "utxo-set_1.0", strings.Repeat("x", maxNameLength)} {
		if !ValidName(name) {
			t.Errorf("ValidName(%q) = false", name)
		}
	}
}

func TestTrackerCorruptState(t *testing.T) {
	store := memory.NewAccumulatorStore()
	store.Data["bad"] = []byte{1, 2, 3}
	tr := NewTracker(store, 1, nil)
	if _, err := tr.Digest("bad"); err == nil {
		t.Fatal("expected error for corrupt state")
	}
}

func TestTrackerNonInvertible(t *testing.T) {
	store := memory.NewAccumulatorStore()

	// A state whose denominator is zero.
	raw := muhash.New().Serialize()
	for i := muhash.ElementSize; i < len(raw); i++ {
		raw[i] = 0
	}
	store.Data["zero"] = raw

	tr := NewTracker(store, 1, nil)
	if _, err := tr.Apply(context.Background(), "zero", [][]byte{random()}, nil); !errors.Is(err, muhash.ErrNonInvertible) {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.Commits != 0 {
		t.Fatal("non-invertible state was committed")
	}
}

func TestTrackerFailedCommit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAccumulatorStore()
	tr := NewTracker(store, 1, nil)
	reader := tr.Clone()

	before, err := tr.Apply(ctx, "utxo", [][]byte{random()}, nil)
	if err != nil {
		t.Fatal(err)
	}

	store.CommitErr = errors.New("disk full")
	if _, err := tr.Apply(ctx, "utxo", [][]byte{random()}, nil); err == nil {
		t.Fatal("expected apply to fail")
	}
	store.CommitErr = nil

	// Neither the writer nor a reader sees the failed change, and the next
	// commit does not flush it.
	for _, r := range []*Tracker{tr, reader} {
		if h, err := r.Digest("utxo"); err != nil {
			t.Fatal(err)
		} else if h != before {
			t.Fatalf("failed change is visible: %v", h)
		}
	}
	if err := tr.Delete("other"); err != nil {
		t.Fatal(err)
	} else if h, err := reader.Digest("utxo"); err != nil {
		t.Fatal(err)
	} else if h != before {
		t.Fatalf("failed change was flushed by a later commit: %v", h)
	}
}
