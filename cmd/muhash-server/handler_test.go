package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Bren2010/muhash/accumulator"
	"github.com/Bren2010/muhash/crypto/muhash"
	"github.com/Bren2010/muhash/db/memory"
)

const (
	zero32 = "0000000000000000000000000000000000000000000000000000000000000000"
	one32  = "0100000000000000000000000000000000000000000000000000000000000000"
	two32  = "0200000000000000000000000000000000000000000000000000000000000000"
)

func newTestServer(t *testing.T) *httptest.Server {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := logrus.NewEntry(logrus.New())
	tracker := accumulator.NewTracker(memory.NewAccumulatorStore(), 2, log)
	ch := make(chan MutationRequest)
	go mutator(ctx, tracker, ch)

	h := &Handler{tracker: tracker.Clone(), ch: ch, log: log}
	srv := httptest.NewServer(newRouter(h))
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path string, body interface{}, out interface{}) int {
	t.Helper()

	var rd *bytes.Reader
	if body == nil {
		rd = bytes.NewReader(nil)
	} else if s, ok := body.(string); ok {
		rd = bytes.NewReader([]byte(s))
	} else {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()

	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			t.Fatal(err)
		}
	}
	return res.StatusCode
}

func TestMeta(t *testing.T) {
	srv := newTestServer(t)
	var meta MetaResponse
	if status := call(t, srv, http.MethodGet, "/v1/meta", nil, &meta); status != http.StatusOK {
		t.Fatalf("unexpected status: %v", status)
	} else if meta.EmptyDigest != muhash.EmptyHash.String() || meta.Algorithm != "muhash3072" {
		t.Fatalf("unexpected meta response: %+v", meta)
	}
}

func TestSetLifecycle(t *testing.T) {
	srv := newTestServer(t)

	var res SetResponse
	status := call(t, srv, http.MethodPost, "/v1/sets/utxo", MutateRequest{
		Insert: []string{zero32, one32},
		Remove: []string{two32},
	}, &res)
	if status != http.StatusOK {
		t.Fatalf("unexpected status: %v", status)
	} else if res.Digest != "10d312b100cbd32ada024a6646e40d3482fcff103668d2625f10002a607d5863" {
		t.Fatalf("unexpected digest: %v", res.Digest)
	}

	var got SetResponse
	if status := call(t, srv, http.MethodGet, "/v1/sets/utxo", nil, &got); status != http.StatusOK {
		t.Fatalf("unexpected status: %v", status)
	} else if got != res {
		t.Fatalf("read digest does not match: %+v", got)
	}

	// Put the removed element into another set and merge it back in.
	if status := call(t, srv, http.MethodPost, "/v1/sets/other", MutateRequest{Insert: []string{two32}}, nil); status != http.StatusOK {
		t.Fatalf("unexpected status: %v", status)
	}
	var list ListResponse
	if status := call(t, srv, http.MethodGet, "/v1/sets", nil, &list); status != http.StatusOK {
		t.Fatalf("unexpected status: %v", status)
	} else if !reflect.DeepEqual(list.Sets, []string{"other", "utxo"}) {
		t.Fatalf("unexpected set list: %v", list.Sets)
	}

	if status := call(t, srv, http.MethodPost, "/v1/sets/utxo/merge/other", nil, &got); status != http.StatusOK {
		t.Fatalf("unexpected status: %v", status)
	}
	want := muhash.New()
	want.Insert(make([]byte, 32))
	want.Insert(append([]byte{1}, make([]byte, 31)...))
	wantHash, err := want.Digest()
	if err != nil {
		t.Fatal(err)
	} else if got.Digest != wantHash.String() {
		t.Fatalf("unexpected digest after merge: %v", got.Digest)
	}

	if status := call(t, srv, http.MethodPost, "/v1/sets/utxo/subtract/other", nil, &got); status != http.StatusOK {
		t.Fatalf("unexpected status: %v", status)
	} else if got.Digest != res.Digest {
		t.Fatalf("unexpected digest after subtract: %v", got.Digest)
	}

	if status := call(t, srv, http.MethodDelete, "/v1/sets/utxo", nil, &got); status != http.StatusOK {
		t.Fatalf("unexpected status: %v", status)
	}
	if status := call(t, srv, http.MethodGet, "/v1/sets/utxo", nil, &got); status != http.StatusOK {
		t.Fatalf("unexpected status: %v", status)
	} else if got.Digest != muhash.EmptyHash.String() {
		t.Fatalf("deleted set is not empty: %v", got.Digest)
	}
}

func TestBadRequests(t *testing.T) {
	srv := newTestServer(t)

	for _, tc := range []struct {
		method, path string
		body         interface{}
		want         int
	}{
		{http.MethodPost, "/v1/sets/utxo", MutateRequest{Insert: []string{"zz"}}, http.StatusBadRequest},
		{http.MethodPost, "/v1/sets/utxo", "{not json", http.StatusBadRequest},
		{http.MethodPost, "/v1/sets/utxo", `{"insert": [], "extra": 1}`, http.StatusBadRequest},
		{http.MethodGet, "/v1/sets/" + strings.Repeat("x", 200), nil, http.StatusBadRequest},
		{http.MethodGet, "/v1/sets/a%20b", nil, http.StatusBadRequest},
		{http.MethodPost, "/v1/sets/utxo/merge/a%20b", nil, http.StatusBadRequest},
	} {
		var res ErrorResponse
		if status := call(t, srv, tc.method, tc.path, tc.body, &res); status != tc.want {
			t.Errorf("%v %v: unexpected status: wanted=%v, got=%v", tc.method, tc.path, tc.want, status)
		} else if res.Error == "" {
			t.Errorf("%v %v: missing error message", tc.method, tc.path)
		}
	}
}

func TestRequestTooLarge(t *testing.T) {
	log := logrus.NewEntry(logrus.New())
	h := &Handler{ch: make(chan MutationRequest), log: log}

	body := `{"insert": ["` + strings.Repeat("00", maxRequestSize/2) + `"]}`
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sets/utxo", strings.NewReader(body)))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("unexpected status: %v", rec.Code)
	}
}

func TestCanceledRequest(t *testing.T) {
	log := logrus.NewEntry(logrus.New())
	// Nothing reads from the channel, so the request waits until it is
	// canceled.
	h := &Handler{ch: make(chan MutationRequest), log: log}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodDelete, "/v1/sets/utxo", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, req)

	if rec.Code != statusClientClosedRequest {
		t.Fatalf("unexpected status: %v", rec.Code)
	}
}

func TestStatusCode(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want int
	}{
		{errors.Wrap(errBadRequest, "x"), http.StatusBadRequest},
		{errors.Wrap(accumulator.ErrInvalidName, "x"), http.StatusBadRequest},
		{errors.Wrap(errTooLarge, "x"), http.StatusRequestEntityTooLarge},
		{errors.Wrap(muhash.ErrNonInvertible, "x"), http.StatusConflict},
		{context.Canceled, statusClientClosedRequest},
		{errors.New("disk full"), http.StatusInternalServerError},
	} {
		if got := statusCode(tc.err); got != tc.want {
			t.Errorf("statusCode(%v): wanted=%v, got=%v", tc.err, tc.want, got)
		}
	}
}
