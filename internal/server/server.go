// Package server exposes the classification pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/addrverify/internal/evidence"
	"github.com/sells-group/addrverify/internal/ingest"
	"github.com/sells-group/addrverify/internal/model"
)

// MaxBatch caps the number of addresses accepted in one request.
const MaxBatch = 100

// MaxBodyBytes caps the classify request body.
const MaxBodyBytes = 1 << 20

// Processor runs the signal stages over a batch of records and returns
// one bundle per record in input order.
type Processor interface {
	Run(ctx context.Context, records []model.Record) []*model.SignalBundle
}

// Decider labels a signal bundle.
type Decider interface {
	Decide(b *model.SignalBundle) model.Decision
}

// Server handles classification requests.
type Server struct {
	pipeline Processor
	engine   Decider
	timeout  time.Duration
	origins  []string
}

// Option configures a Server.
type Option func(*Server)

// WithRequestTimeout bounds the time spent classifying one request.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// WithAllowedOrigins sets the CORS allow list.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// New creates a Server.
func New(p Processor, d Decider, opts ...Option) *Server {
	s := &Server{
		pipeline: p,
		engine:   d,
		timeout:  2 * time.Minute,
		origins:  []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/v1/classify", s.handleClassify)
	return r
}

type classifyRequest struct {
	Address   string   `json:"address"`
	Addresses []string `json:"addresses"`
}

// ClassifyResult is one classified address.
type ClassifyResult struct {
	Decision model.Decision `json:"decision"`
	Evidence evidence.Row   `json:"evidence"`
}

type classifyResponse struct {
	Results []ClassifyResult `json:"results"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	addrs := req.Addresses
	if strings.TrimSpace(req.Address) != "" {
		addrs = append([]string{req.Address}, addrs...)
	}
	var records []model.Record
	for _, a := range addrs {
		if strings.TrimSpace(a) == "" {
			continue
		}
		records = append(records, ingest.NewRecord(len(records), a))
	}
	if len(records) == 0 {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}
	if len(records) > MaxBatch {
		writeError(w, http.StatusRequestEntityTooLarge, "too many addresses")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	bundles := s.pipeline.Run(ctx, records)
	resp := classifyResponse{Results: make([]ClassifyResult, 0, len(records))}
	for i, rec := range records {
		d := s.engine.Decide(bundles[i])
		resp.Results = append(resp.Results, ClassifyResult{
			Decision: d,
			Evidence: evidence.Assemble(rec, bundles[i], d),
		})
	}

	zap.L().Info("classify request complete",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Int("records", len(records)),
	)
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
