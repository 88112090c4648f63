// Package api serves open pieces over HTTP. Clients open a piece, read its
// versions, markers and materialized views, post edits, and follow edits
// made by others over a WebSocket.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/FocuswithJustin/Mensura/internal/catalog"
	"github.com/FocuswithJustin/Mensura/internal/logging"
	"github.com/FocuswithJustin/Mensura/internal/server"
	"github.com/FocuswithJustin/Mensura/internal/session"
)

// Server is the HTTP API over a workspace.
type Server struct {
	cfg     Config
	ws      *session.Workspace
	hub     *Hub
	catalog *catalog.Catalog
	limiter *RateLimiter
}

// New creates a server over ws. cat may be nil, which disables the catalog
// routes.
func New(cfg Config, ws *session.Workspace, cat *catalog.Catalog) *Server {
	if cfg.PiecesDir == "" {
		cfg.PiecesDir = "."
	}
	s := &Server{cfg: cfg, ws: ws, hub: NewHub(), catalog: cat}
	if cfg.EditsPerMinute > 0 {
		s.limiter = NewRateLimiter(RateLimiterConfig{
			RequestsPerMinute: cfg.EditsPerMinute,
			BurstSize:         cfg.EditBurst,
		})
	}
	ws.OnChange(s.hub.Notify)
	return s
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /pieces", s.handleListPieces)
	mux.HandleFunc("POST /pieces", s.handleOpenPiece)
	mux.HandleFunc("GET /pieces/{id}", s.handleGetPiece)
	mux.HandleFunc("DELETE /pieces/{id}", s.handleClosePiece)
	mux.HandleFunc("GET /pieces/{id}/versions", s.handleVersions)
	mux.HandleFunc("GET /pieces/{id}/versions/{vid}", s.handleMaterialize)
	mux.HandleFunc("GET /pieces/{id}/markers", s.handleMarkers)
	mux.HandleFunc("POST /pieces/{id}/edits", s.handleEdit)
	mux.HandleFunc("POST /pieces/{id}/consolidate", s.handleConsolidate)
	mux.HandleFunc("GET /pieces/{id}/export", s.handleExport)
	mux.HandleFunc("POST /pieces/{id}/catalog", s.handleCatalogIndex)
	mux.HandleFunc("GET /catalog", s.handleCatalogList)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	var h http.Handler = mux
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	h = AuthMiddleware(s.cfg.APIKey, h)
	h = logging.CombinedMiddleware(h)
	h = server.CORSMiddlewareWithConfig(server.CORSConfig{AllowedOrigins: s.cfg.AllowedOrigins}, h)
	h = server.SecurityHeadersWithCSP(server.APICSPConfig(), h)
	return h
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.hub.Run(ctx)
	if s.limiter != nil {
		go s.sweepLimiter(ctx, time.Minute)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.ServerStartup("api", "http", s.cfg.Port, "pieces_dir", s.cfg.PiecesDir)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	logging.Info("api server shutting down")
	return srv.Shutdown(shutdownCtx)
}

// sweepLimiter drops idle rate limit buckets every interval until ctx is
// done.
func (s *Server) sweepLimiter(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.Sweep()
		}
	}
}
