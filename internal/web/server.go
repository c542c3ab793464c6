// Package web serves the persona pipeline as a JSON HTTP API.
package web

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/facet/internal/app"
	"github.com/hpungsan/facet/internal/config"
)

// maxBodyBytes bounds request bodies. A maximal extraction input is about
// half a megabyte of text plus links.
const maxBodyBytes = 4 << 20

// NewServer creates and configures the HTTP server.
func NewServer(svc app.Services, cfg *config.Config, logger *zap.Logger, version string) *http.Server {
	logger = logger.Named("web")
	h := &Handlers{
		svc:     svc,
		dev:     cfg.IsDevelopment(),
		version: version,
		logger:  logger,
	}

	return &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           h.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (h *Handlers) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("POST /api/personas/extract", h.HandleExtract)
	mux.HandleFunc("POST /api/personas", h.HandleSave)
	mux.HandleFunc("GET /api/personas", h.HandleList)
	mux.HandleFunc("GET /api/personas/{id}", h.HandleGet)
	mux.HandleFunc("GET /api/personas/{id}/metadata", h.HandleMetadata)
	mux.HandleFunc("PUT /api/personas/{id}", h.HandleUpdate)
	mux.HandleFunc("DELETE /api/personas/{id}", h.HandleDelete)
	mux.HandleFunc("POST /api/personas/{id}/chat", h.HandleChat)
	mux.HandleFunc("GET /api/cache", h.HandleCacheStats)
	mux.HandleFunc("DELETE /api/cache", h.HandleCacheClear)

	var handler http.Handler = mux
	handler = securityHeaders(handler)
	handler = h.recoverer(handler)
	handler = requestLogger(h.logger)(handler)
	handler = requestID(handler)
	return handler
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, logger *zap.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("facet API listening", zap.String("addr", "http://"+srv.Addr))

	if strings.HasPrefix(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
