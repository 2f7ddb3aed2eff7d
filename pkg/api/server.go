package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cbodonnell/tickstream/pkg/api/handlers"
	"github.com/cbodonnell/tickstream/pkg/api/middleware"
	"github.com/cbodonnell/tickstream/pkg/log"
	"github.com/cbodonnell/tickstream/pkg/repositories"
	"github.com/gorilla/mux"
)

type APIServer struct {
	server *http.Server
	tls    *TLSConfig
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewAPIServerOptions struct {
	Port  int
	TLS   *TLSConfig
	Peers handlers.PeerLister
	Acks  handlers.AckLister
	// Repository serves recorded frames. Recording routes are not
	// registered when it is nil.
	Repository repositories.Repository
}

// NewAPIServer creates a new http.Server for the debug API
func NewAPIServer(opts NewAPIServerOptions) *APIServer {
	r := mux.NewRouter()
	r.Use(middleware.Logging(), middleware.CORS())

	r.HandleFunc("/version", handlers.HandleVersion()).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/peers", handlers.HandleListPeers(opts.Peers, opts.Acks)).Methods(http.MethodGet, http.MethodOptions)
	if opts.Repository != nil {
		r.HandleFunc("/recordings", handlers.HandleListRecordings(opts.Repository)).Methods(http.MethodGet, http.MethodOptions)
		r.HandleFunc("/recordings/{recordingID}/frames", handlers.HandleListFrames(opts.Repository)).Methods(http.MethodGet, http.MethodOptions)
		r.HandleFunc("/recordings/{recordingID}/frames/{frameID:[0-9]+}", handlers.HandleGetFrame(opts.Repository)).Methods(http.MethodGet, http.MethodOptions)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: r,
	}
	return &APIServer{
		server: server,
		tls:    opts.TLS,
	}
}

// Handler returns the router, for serving the API from another listener.
func (s *APIServer) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the APIServer
func (s *APIServer) Start() {
	var listenAndServe func() error
	if s.tls != nil {
		log.Info("API server listening on %s with TLS", s.server.Addr)
		listenAndServe = func() error {
			return s.server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		log.Info("API server listening on %s", s.server.Addr)
		listenAndServe = s.server.ListenAndServe
	}
	if err := listenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("API server closed")
			return
		}
		log.Error("API server error: %v", err)
	}
}

// Stop stops the APIServer
func (s *APIServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
