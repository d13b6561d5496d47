package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ferry/internal/logging"
	"ferry/internal/metrics"
	"ferry/internal/records"
)

const shutdownTimeout = 5 * time.Second

// Server serves the read-only status API.
type Server struct {
	bind     string
	database string
	logger   *slog.Logger
	records  *RecordService
	metrics  *metrics.Metrics

	listener net.Listener
	server   *http.Server
}

// NewServer builds the router for reader. metrics may be nil, in which case
// /metrics answers 404 and HTTP requests are not counted.
func NewServer(bind, database string, reader RecordReader, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		bind:     strings.TrimSpace(bind),
		database: database,
		logger:   logging.NewComponentLogger(logger, "api"),
		records:  NewRecordService(reader),
		metrics:  m,
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the chi router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.metrics.Handler().ServeHTTP)
	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/records", s.handleRecords)
		r.Get("/records/{remoteID}", s.handleRecord)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Start listens on the configured address and serves until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	if s.bind == "" {
		return errors.New("api bind address is empty")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr reports the bound address once Start succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("api server shutdown incomplete", logging.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Database: s.database})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.records.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats query failed", logging.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.metrics.SetRecordStats(toRecordStats(stats))
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := s.records.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("record list failed", logging.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []Record{}
	}
	writeJSON(w, http.StatusOK, RecordListResponse{Records: list})
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	remoteID := strings.TrimSpace(chi.URLParam(r, "remoteID"))
	if remoteID == "" {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	rec, err := s.records.Describe(r.Context(), remoteID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	writeJSON(w, http.StatusOK, RecordResponse{Record: *rec})
}

func parseFilter(r *http.Request) (records.Filter, error) {
	var filter records.Filter
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("upload")); raw != "" {
		status, ok := records.ParseUploadStatus(raw)
		if !ok {
			return filter, fmt.Errorf("invalid upload status %q", raw)
		}
		filter.UploadStatus = status
	}
	if raw := strings.TrimSpace(query.Get("processing")); raw != "" {
		status, ok := records.ParseProcessingStatus(raw)
		if !ok {
			return filter, fmt.Errorf("invalid processing status %q", raw)
		}
		filter.ProcessingStatus = &status
	}
	if raw := strings.TrimSpace(query.Get("duplicates")); raw != "" {
		only, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid duplicates flag %q", raw)
		}
		filter.DuplicatesOnly = only
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, fmt.Errorf("invalid limit %q", raw)
		}
		filter.Limit = limit
	}
	return filter, nil
}

// toRecordStats maps the wire counts back so the records gauge matches what
// the API just reported.
func toRecordStats(stats StatsResponse) records.Stats {
	out := records.Stats{Total: stats.Total, Duplicates: stats.Duplicates}
	for _, pair := range stats.Pairs {
		upload, _ := records.ParseUploadStatus(pair.Upload)
		processing, _ := records.ParseProcessingStatus(pair.Processing)
		out.Pairs = append(out.Pairs, records.StatusPair{Upload: upload, Processing: processing, Count: pair.Count})
	}
	return out
}

// observe records request counts and latency by chi route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveHTTP(r.Method, route, status, time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
