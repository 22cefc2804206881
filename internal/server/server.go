// Package server exposes the inference engine over HTTP: the forward
// pass, the single-layer step and the chunked protocol, plus read-only
// model and accumulator inspection. Bodies use the wire representation
// throughout: magnitude and sign vectors with a scale, signs as plain
// 0/1 integers.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/23skdu/longbow-bodkin/internal/config"
	"github.com/23skdu/longbow-bodkin/internal/engine"
	"github.com/23skdu/longbow-bodkin/internal/logger"
)

type Server struct {
	engine *engine.Engine
	cfg    *config.Config
	log    *logger.Logger
	srv    *http.Server
}

func New(e *engine.Engine, cfg *config.Config) *Server {
	return &Server{
		engine: e,
		cfg:    cfg,
		log:    logger.Log.WithComponent("server"),
	}
}

// Handler assembles the full route table: API routes behind auth, CORS
// and request logging, a service descriptor at the root.
func (s *Server) Handler() http.Handler {
	auth := NewAuthMiddleware(s.cfg.APIKey)
	cors := NewCORSMiddleware(s.cfg.AllowedOrigins)
	logging := NewLoggingMiddleware()

	api := http.NewServeMux()
	api.Handle("/api/v1/predict", auth.Authenticate(http.HandlerFunc(s.handlePredict)))
	api.Handle("/api/v1/predict/layer", auth.Authenticate(http.HandlerFunc(s.handlePredictLayer)))
	api.Handle("/api/v1/chunk/compute", auth.Authenticate(http.HandlerFunc(s.handleChunkCompute)))
	api.Handle("/api/v1/chunk/accumulate", auth.Authenticate(http.HandlerFunc(s.handleAccumulate)))
	api.Handle("/api/v1/chunk/finalize", auth.Authenticate(http.HandlerFunc(s.handleFinalize)))
	api.Handle("/api/v1/chunk/plan", auth.Authenticate(http.HandlerFunc(s.handlePlan)))
	api.Handle("/api/v1/model", auth.Authenticate(http.HandlerFunc(s.handleModel)))
	api.Handle("/api/v1/accumulators", auth.Authenticate(http.HandlerFunc(s.handleAccumulators)))

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.Handle("/api/", logging.Middleware(cors.Middleware(api)))
	return mux
}

// Start serves the API and blocks until the listener closes.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.log.Info("api listening", "addr", addr, "auth", s.cfg.AuthEnabled())
	return s.srv.ListenAndServe()
}

// Stop shuts the API listener down.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	g := s.engine.Graph()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "longbow-bodkin",
		"model":   s.engine.ModelName(),
		"layers":  g.NumLayers(),
		"scale":   g.Scale(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
