package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Bren2010/muhash/accumulator"
	"github.com/Bren2010/muhash/crypto/muhash"
)

type mutationKind string

const (
	kindApply    mutationKind = "apply"
	kindMerge    mutationKind = "merge"
	kindSubtract mutationKind = "subtract"
	kindDelete   mutationKind = "delete"
)

type MutationRequest struct {
	Kind   mutationKind
	Set    string
	Source string // Only for merge and subtract.

	Inserts, Removes [][]byte

	Resp chan<- MutationResponse
}

type MutationResponse struct {
	Digest muhash.Hash
	Err    error
}

// mutator is a goroutine that receives mutation requests over `ch`, applies
// them to the tracker one at a time, and responds with the set's new digest.
func mutator(ctx context.Context, tracker *accumulator.Tracker, ch chan MutationRequest) {
	for {
		var req MutationRequest
		select {
		case <-ctx.Done():
			return
		case req = <-ch:
		}

		start := time.Now()
		res := mutate(ctx, tracker, req)
		mutationOps.WithLabelValues(string(req.Kind), fmt.Sprint(res.Err == nil)).Inc()
		mutationDur.Observe(float64(time.Since(start).Microseconds()))
		if req.Kind == kindApply {
			mutationSize.Observe(float64(len(req.Inserts) + len(req.Removes)))
		}

		select {
		case req.Resp <- res:
		default:
		}
	}
}

func mutate(ctx context.Context, tracker *accumulator.Tracker, req MutationRequest) MutationResponse {
	var (
		h   muhash.Hash
		err error
	)
	switch req.Kind {
	case kindApply:
		h, err = tracker.Apply(ctx, req.Set, req.Inserts, req.Removes)
	case kindMerge:
		h, err = tracker.Merge(req.Set, req.Source)
	case kindSubtract:
		h, err = tracker.Subtract(req.Set, req.Source)
	case kindDelete:
		err = tracker.Delete(req.Set)
		h = muhash.EmptyHash
	default:
		panic("unknown mutation kind: " + string(req.Kind))
	}
	return MutationResponse{h, err}
}
