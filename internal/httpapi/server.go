// Package httpapi exposes BorrowerRegistry over net/http + encoding/json:
// the surface that replaces the teacher's generated gRPC/gRPC-gateway server
// (internal/server/grpc.go), which depended on a .proto-compiled tree not
// present in the retrieved corpus. Handlers follow the same plain-JSON,
// explicit-status-code style the teacher already uses for its health
// endpoints.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"LiquidCore/internal/chainio"
	"LiquidCore/internal/observability"
	"LiquidCore/internal/registry"
	"LiquidCore/internal/watchlist"
)

// Server wires BorrowerRegistry operations onto HTTP routes.
type Server struct {
	registry      *registry.Registry
	marketReg     chainio.MarketRegistry
	prices        chainio.PriceLedger
	log           zerolog.Logger
	healthChecker *observability.HealthChecker

	// watchlist is optional: when nil, register/unregister only affect the
	// in-memory registry and do not survive a restart.
	watchlist *watchlist.Store

	mux *http.ServeMux
}

// NewServer builds a Server and registers its routes.
func NewServer(reg *registry.Registry, marketReg chainio.MarketRegistry, prices chainio.PriceLedger, log zerolog.Logger, health *observability.HealthChecker, wl *watchlist.Store) *Server {
	s := &Server{
		registry:      reg,
		marketReg:     marketReg,
		prices:        prices,
		log:           log,
		healthChecker: health,
		watchlist:     wl,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /register", s.handleRegister)
	s.mux.HandleFunc("POST /unregister", s.handleUnregister)
	s.mux.HandleFunc("POST /scan", s.handleScan)
	s.mux.HandleFunc("GET /verify/{address}", s.handleVerify)
	s.mux.HandleFunc("GET /healthz", s.healthChecker.LivenessHandler)
	s.mux.HandleFunc("GET /readyz", s.healthChecker.ReadinessHandler)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server on addr and blocks until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
