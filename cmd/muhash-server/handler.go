package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Bren2010/muhash/accumulator"
	"github.com/Bren2010/muhash/crypto/muhash"
)

const (
	maxRequestSize = 16 << 20

	// Not defined by net/http. Used when the client goes away before its
	// request completes.
	statusClientClosedRequest = 499
)

var (
	errBadRequest = errors.New("bad request")
	errTooLarge   = errors.New("request body too large")
)

type Handler struct {
	tracker *accumulator.Tracker // Read-only.
	ch      chan<- MutationRequest
	log     *logrus.Entry
}

type apiFunc func(req *http.Request) (interface{}, error)

type ErrorResponse struct {
	Error string `json:"error"`
}

// HandleAPI wraps an API endpoint, handling JSON encoding of the response and
// mapping errors to status codes.
func (h *Handler) HandleAPI(f apiFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		path := "unknown"
		if route := mux.CurrentRoute(req); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}

		res, err := f(req)
		status := http.StatusOK
		if err != nil {
			status = statusCode(err)
			if status == http.StatusInternalServerError {
				h.log.WithError(err).WithField("path", req.URL.Path).Error("Request failed.")
				res = ErrorResponse{Error: "internal server error"}
			} else {
				res = ErrorResponse{Error: err.Error()}
			}
		}
		requestCtr.WithLabelValues(path, fmt.Sprint(status)).Inc()

		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(status)
		if err := json.NewEncoder(rw).Encode(res); err != nil {
			h.log.WithError(err).Warn("Failed to write response.")
		}
	}
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, accumulator.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case errors.Is(err, muhash.ErrNonInvertible):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type MetaResponse struct {
	Algorithm       string `json:"algorithm"`
	HashAlgorithm   string `json:"hash_algorithm"`
	ExpansionCipher string `json:"expansion_cipher"`
	Modulus         string `json:"modulus"`
	DigestByteOrder string `json:"digest_byte_order"`
	EmptyDigest     string `json:"empty_digest"`
}

func (h *Handler) Meta(req *http.Request) (interface{}, error) {
	return MetaResponse{
		Algorithm:       "muhash3072",
		HashAlgorithm:   "sha256",
		ExpansionCipher: "chacha20",
		Modulus:         "2^3072 - 1103717",
		DigestByteOrder: "reversed",
		EmptyDigest:     muhash.EmptyHash.String(),
	}, nil
}

type ListResponse struct {
	Sets []string `json:"sets"`
}

func (h *Handler) List(req *http.Request) (interface{}, error) {
	names, err := h.tracker.List()
	if err != nil {
		return nil, err
	}
	return ListResponse{Sets: names}, nil
}

type SetResponse struct {
	Set    string `json:"set"`
	Digest string `json:"digest"`
}

func (h *Handler) Get(req *http.Request) (interface{}, error) {
	name := mux.Vars(req)["name"]
	digest, err := h.tracker.Digest(name)
	if err != nil {
		return nil, err
	}
	return SetResponse{Set: name, Digest: digest.String()}, nil
}

// MutateRequest is the body of a request to change a set. Elements are
// hex-encoded.
type MutateRequest struct {
	Insert []string `json:"insert"`
	Remove []string `json:"remove"`
}

func (h *Handler) Mutate(req *http.Request) (interface{}, error) {
	var body MutateRequest
	dec := json.NewDecoder(http.MaxBytesReader(nil, req.Body, maxRequestSize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errors.Wrapf(errTooLarge, "limit is %v bytes", tooLarge.Limit)
		}
		return nil, errors.Wrapf(errBadRequest, "failed to parse body: %v", err)
	}

	inserts, err := decodeElements(body.Insert)
	if err != nil {
		return nil, err
	}
	removes, err := decodeElements(body.Remove)
	if err != nil {
		return nil, err
	}
	return h.submit(req, MutationRequest{
		Kind:    kindApply,
		Set:     mux.Vars(req)["name"],
		Inserts: inserts,
		Removes: removes,
	})
}

func (h *Handler) Merge(req *http.Request) (interface{}, error) {
	vars := mux.Vars(req)
	return h.submit(req, MutationRequest{Kind: kindMerge, Set: vars["name"], Source: vars["src"]})
}

func (h *Handler) Subtract(req *http.Request) (interface{}, error) {
	vars := mux.Vars(req)
	return h.submit(req, MutationRequest{Kind: kindSubtract, Set: vars["name"], Source: vars["src"]})
}

func (h *Handler) Delete(req *http.Request) (interface{}, error) {
	return h.submit(req, MutationRequest{Kind: kindDelete, Set: mux.Vars(req)["name"]})
}

// submit sends a mutation to the mutator goroutine and waits for its result.
func (h *Handler) submit(req *http.Request, mr MutationRequest) (interface{}, error) {
	if !accumulator.ValidName(mr.Set) {
		return nil, errors.Wrapf(accumulator.ErrInvalidName, "%q", mr.Set)
	} else if mr.Source != "" && !accumulator.ValidName(mr.Source) {
		return nil, errors.Wrapf(accumulator.ErrInvalidName, "%q", mr.Source)
	}

	ctx := req.Context()
	resp := make(chan MutationResponse, 1)
	mr.Resp = resp

	select {
	case h.ch <- mr:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-resp:
		if res.Err != nil {
			return nil, res.Err
		}
		return SetResponse{Set: mr.Set, Digest: res.Digest.String()}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func decodeElements(in []string) ([][]byte, error) {
	out := make([][]byte, len(in))
	for i, s := range in {
		raw, err := hex.DecodeString(s)
		if err != nil {
			return nil, errors.Wrapf(errBadRequest, "element %v is not valid hex", i)
		}
		out[i] = raw
	}
	return out, nil
}
