// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/poiesic/reviewrag/core"
	"github.com/poiesic/reviewrag/search"
)

// DefaultShutdownTimeout bounds graceful shutdown.
const DefaultShutdownTimeout = 10 * time.Second

// maxBodyBytes caps POST bodies.
const maxBodyBytes = 64 << 10

// Counter reports the number of stored entries for /healthz.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Server serves search and answer requests.
type Server struct {
	searcher        *search.Searcher
	answerer        *search.Answerer
	counter         Counter
	shutdownTimeout time.Duration
	logger          *slog.Logger
	mux             *http.ServeMux
}

// Option configures a Server.
type Option func(*Server) error

// WithAnswerer enables POST /answer.
func WithAnswerer(answerer *search.Answerer) Option {
	return func(s *Server) error {
		s.answerer = answerer
		return nil
	}
}

// WithCounter makes /healthz report the index size.
func WithCounter(counter Counter) Option {
	return func(s *Server) error {
		s.counter = counter
		return nil
	}
}

// WithShutdownTimeout sets how long in-flight requests get on shutdown.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(s *Server) error {
		if timeout <= 0 {
			return fmt.Errorf("shutdown timeout must be positive, got %s", timeout)
		}
		s.shutdownTimeout = timeout
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// New creates a Server backed by searcher.
func New(searcher *search.Searcher, opts ...Option) (*Server, error) {
	if searcher == nil {
		return nil, ErrSearcherRequired
	}
	s := &Server{
		searcher:        searcher,
		shutdownTimeout: DefaultShutdownTimeout,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "http-server")

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("GET /search", s.handleSearch)
	s.mux.HandleFunc("POST /answer", s.handleAnswer)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s, nil
}

// Handler returns the HTTP handler with CORS and request logging applied.
func (s *Server) Handler() http.Handler {
	return s.withCORS(s.withLogging(s.mux))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving", "addr", listener.Addr().String())
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

type documentJSON struct {
	ID       string       `json:"id"`
	Content  string       `json:"content"`
	Metadata metadataJSON `json:"metadata"`
	Score    float32      `json:"score"`
}

type metadataJSON struct {
	ProductName    string  `json:"product_name"`
	ProductRating  float64 `json:"product_rating"`
	ProductSummary string  `json:"product_summary"`
}

type searchResponse struct {
	Query        string         `json:"query"`
	Results      []documentJSON `json:"results"`
	ProcessingMs int64          `json:"processing_ms"`
}

type answerRequest struct {
	Question string `json:"question"`
	K        int    `json:"k"`
}

type answerResponse struct {
	Answer       string         `json:"answer"`
	Sources      []documentJSON `json:"sources"`
	ProcessingMs int64          `json:"processing_ms"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toJSON(results []core.SearchResult) []documentJSON {
	out := make([]documentJSON, len(results))
	for i, r := range results {
		meta := r.Document.Metadata
		out[i] = documentJSON{
			ID:      r.ID.String(),
			Content: r.Document.Content,
			Metadata: metadataJSON{
				ProductName:    meta.ProductName,
				ProductRating:  meta.ProductRating,
				ProductSummary: meta.ProductSummary,
			},
			Score: r.Score,
		}
	}
	return out
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	query := r.URL.Query().Get("q")
	k, err := parseK(r.URL.Query().Get("k"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	results, err := s.searcher.Search(r.Context(), query, k)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, searchResponse{
		Query:        query,
		Results:      toJSON(results),
		ProcessingMs: time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if s.answerer == nil {
		s.writeError(w, http.StatusNotImplemented, ErrAnswersDisabled)
		return
	}
	start := time.Now()

	var req answerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	answer, err := s.answerer.Answer(r.Context(), req.Question, req.K)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, answerResponse{
		Answer:       answer.Text,
		Sources:      toJSON(answer.Sources),
		ProcessingMs: time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.counter != nil {
		count, err := s.counter.Count(r.Context())
		if err != nil {
			s.writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		body["entries"] = count
	}
	s.writeJSON(w, http.StatusOK, body)
}

func parseK(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	k, err := strconv.Atoi(raw)
	if err != nil || k < 0 {
		return 0, fmt.Errorf("k must be a non-negative integer, got %q", raw)
	}
	return k, nil
}

// statusClientClosedRequest is reported when the caller went away before
// the response was ready.
const statusClientClosedRequest = 499

// statusFor maps domain errors onto HTTP status codes. Context errors are
// checked first since the domain errors wrap them.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, core.ErrQueryEmbedding):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrEmbedding), errors.Is(err, search.ErrGenerationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("failed to encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	switch {
	case status == statusClientClosedRequest:
		s.logger.Debug("client went away", "err", err)
		return
	case status >= http.StatusInternalServerError:
		s.logger.Error("request failed", "status", status, "err", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// withCORS allows any origin.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"remote", r.RemoteAddr)
	})
}
