// Command muhash-server maintains named MuHash set commitments and serves
// their digests over an HTTP API. All changes to sets are sequenced through a
// single goroutine.
package main

import (
	"context"
	"flag"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/Bren2010/muhash/accumulator"
	"github.com/Bren2010/muhash/db"
)

var (
	Version   = "dev"
	GoVersion = runtime.Version()

	configFile = flag.String("config", "", "Location of config file.")
)

func newRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/meta", h.HandleAPI(h.Meta)).Methods(http.MethodGet)
	r.HandleFunc("/v1/sets", h.HandleAPI(h.List)).Methods(http.MethodGet)
	r.HandleFunc("/v1/sets/{name}", h.HandleAPI(h.Get)).Methods(http.MethodGet)
	r.HandleFunc("/v1/sets/{name}", h.HandleAPI(h.Mutate)).Methods(http.MethodPost)
	r.HandleFunc("/v1/sets/{name}", h.HandleAPI(h.Delete)).Methods(http.MethodDelete)
	r.HandleFunc("/v1/sets/{name}/merge/{src}", h.HandleAPI(h.Merge)).Methods(http.MethodPost)
	r.HandleFunc("/v1/sets/{name}/subtract/{src}", h.HandleAPI(h.Subtract)).Methods(http.MethodPost)
	return r
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	flag.Parse()

	// Load config from disk.
	if *configFile == "" {
		logrus.Fatalf("No config file provided, see --help.")
	}
	config, err := ReadConfig(*configFile)
	if err != nil {
		logrus.Fatalf("Failed to load config file: %v", err)
	}
	logrus.SetLevel(config.logLevel)
	log := logrus.WithField("prefix", "muhash-server")

	if config.MetricsAddr != "" {
		go metrics(config.MetricsAddr)
	}

	// Start the mutator thread.
	tx, err := db.NewLDBAccumulatorStore(config.DatabaseFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	tracker := accumulator.NewTracker(tx, config.Workers, log)
	ch := make(chan MutationRequest)

	go mutator(context.Background(), tracker, ch)

	// Setup handler for the API server.
	h := &Handler{tracker: tracker.Clone(), ch: ch, log: log}

	// Setup the API server.
	srv := &http.Server{
		Addr:      config.ServerAddr,
		Handler:   newRouter(h),
		TLSConfig: config.tlsConfig,

		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	log.WithField("addr", config.ServerAddr).Info("Starting API server.")
	if config.TLSConfig == nil {
		log.Fatal(srv.ListenAndServe())
	} else {
		log.Fatal(srv.ListenAndServeTLS("", ""))
	}
}
