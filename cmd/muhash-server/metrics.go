package main

import (
	"fmt"
	"net/http"
	"net/http/pprof"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "A metric with a constant '1' value labeled by version, and goversion.",
		},
		[]string{"version", "goversion"},
	)
	mutationOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mutation_operations",
			Help: "Incremented for each mutation of a set, labeled by kind and by success or failure.",
		},
		[]string{"kind", "success"},
	)
	mutationDur = prometheus.NewSummary(
		prometheus.SummaryOpts{
			Name: "mutation_duration",
			Help: "Summary of how long a mutation takes to complete, in microseconds.",
		},
	)
	mutationSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mutation_elements",
			Help:    "Number of elements inserted or removed by a single apply.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)
	requestCtr = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requests",
			Help: "Incremented for each API request received.",
		},
		[]string{"path", "status"},
	)
)

func init() {
	prometheus.MustRegister(buildInfo)
	prometheus.MustRegister(mutationOps)
	prometheus.MustRegister(mutationDur)
	prometheus.MustRegister(mutationSize)
	prometheus.MustRegister(requestCtr)
}

func metrics(addr string) {
	buildInfo.WithLabelValues(Version, GoVersion).Set(1)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(rw http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/" {
			fmt.Fprintln(rw, "Hi, I'm a muhash metrics and debugging server!")
		} else {
			rw.WriteHeader(404)
			fmt.Fprintln(rw, "404 not found")
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.HandleFunc("/debug/version", func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprintf(w, "Version: %s, GoVersion: %s", Version, GoVersion)
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	logrus.WithField("addr", addr).Info("Starting metrics server.")
	logrus.Fatal(srv.ListenAndServe())
}
