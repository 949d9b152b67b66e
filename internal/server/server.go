// Package server exposes a Manager over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/ryanm101/bundlereg/internal/bundle"
	"github.com/ryanm101/bundlereg/internal/fetch"
	"github.com/ryanm101/bundlereg/internal/logging"
	"github.com/ryanm101/bundlereg/internal/manager"
	"github.com/ryanm101/bundlereg/internal/registry"
	"github.com/ryanm101/bundlereg/internal/tracing"
)

// Server handles HTTP requests.
type Server struct {
	mgr *manager.Manager
	mux *http.ServeMux
}

// New creates a new server backed by mgr.
func New(mgr *manager.Manager) *Server {
	s := &Server{
		mgr: mgr,
		mux: http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := tracing.Extract(r.Context(), r.Header)
	ctx, span := tracing.StartSpan(ctx, r.Method+" "+r.URL.Path,
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r.WithContext(ctx))

	tracing.AddSpanAttributes(span, semconv.HTTPResponseStatusCode(rec.status))
	if rec.status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(rec.status))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /api/bundles", s.handleBundles)
	s.mux.HandleFunc("GET /api/bundles/{id}", s.handleBundle)
	s.mux.HandleFunc("GET /api/payloads/{filename}", s.handlePayload)
	s.mux.HandleFunc("POST /api/sync", s.handleSync)
	s.mux.HandleFunc("GET /api/cache", s.handleCache)
	s.mux.HandleFunc("DELETE /api/cache", s.handleUnload)
}

// ListenAndServe runs an http.Server on addr until ctx is done.
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 2 * time.Minute, // payload downloads
		IdleTimeout:  120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"platform": s.mgr.Platform(),
		"bundles":  s.mgr.Registry().Len(),
		"cached":   s.mgr.Cache().Len(),
	})
}

func (s *Server) handleBundles(w http.ResponseWriter, r *http.Request) {
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))

	entries := s.mgr.CompatibleBundles()
	if all {
		entries = s.mgr.AllBundles()
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleBundle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	md, err := s.mgr.Lookup(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, registry.Entry{ID: id, BundleMetadata: md})
}

func (s *Server) handlePayload(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	p, err := s.mgr.GetBundle(r.Context(), filename)
	if err != nil {
		writeError(w, err)
		return
	}

	body, err := p.Bytes()
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", p.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(p.Size(), 10))
	w.Header().Set("ETag", strconv.Quote(p.Digest))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type syncResponse struct {
	Sources []sourceResponse `json:"sources"`
	Entries int              `json:"entries"`
	Error   string           `json:"error,omitempty"`
}

type sourceResponse struct {
	URL       string `json:"url"`
	Entries   int    `json:"entries"`
	Added     int    `json:"added"`
	Replaced  int    `json:"replaced"`
	Discarded int    `json:"discarded"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	report, err := s.mgr.Sync(r.Context())

	resp := syncResponse{Entries: s.mgr.Registry().Len()}
	if report != nil {
		for _, src := range report.Sources {
			sr := sourceResponse{
				URL:       src.URL,
				Entries:   src.Entries,
				Added:     src.Added,
				Replaced:  src.Replaced,
				Discarded: src.Discarded,
			}
			if src.Err != nil {
				sr.Error = src.Err.Error()
			}
			resp.Sources = append(resp.Sources, sr)
		}
	}

	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleCache(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"files": s.mgr.Cache().Filenames(),
		"bytes": s.mgr.Cache().Size(),
	})
}

func (s *Server) handleUnload(w http.ResponseWriter, _ *http.Request) {
	n := s.mgr.UnloadAll()
	writeJSON(w, http.StatusOK, map[string]int{"unloaded": n})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, registry.ErrNotFound), fetch.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, fetch.ErrTransport), errors.Is(err, fetch.ErrDecode):
		status = http.StatusBadGateway
	case errors.Is(err, bundle.ErrReleased):
		status = http.StatusGone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	default:
		logging.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
