// Package httpapi exposes conversation turns and structured generation
// over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	orchestratorx "github.com/tanpawarit/Chative-Digital-Twin/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
	nodex "github.com/tanpawarit/Chative-Digital-Twin/agent/nodes/orchestrator"
	structuredx "github.com/tanpawarit/Chative-Digital-Twin/agent/structured"
	"github.com/tanpawarit/Chative-Digital-Twin/agent/transport"
	logx "github.com/tanpawarit/Chative-Digital-Twin/pkg/logger"
	metricsx "github.com/tanpawarit/Chative-Digital-Twin/pkg/metrics"
)

// Copywriter produces schema-checked objects for the copy endpoint.
type Copywriter interface {
	Generate(ctx context.Context, schemaName, prompt string) (map[string]any, error)
}

type Option func(*Server)

func WithMetrics(m *metricsx.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithCopywriter enables POST /v1/businesses/{businessID}/copy.
func WithCopywriter(c Copywriter, assembler nodex.BundleAssembler) Option {
	return func(s *Server) {
		s.copywriter = c
		s.assembler = assembler
	}
}

type Server struct {
	cfg        Config
	turns      *orchestratorx.Orchestrator
	copywriter Copywriter
	assembler  nodex.BundleAssembler
	metrics    *metricsx.Metrics
	upgrader   websocket.Upgrader
	logger     zerolog.Logger
}

func NewServer(cfg Config, turns *orchestratorx.Orchestrator, opts ...Option) (*Server, error) {
	if turns == nil {
		return nil, fmt.Errorf("%w: http server needs an orchestrator", contractx.ErrConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		turns:  turns,
		logger: logx.Component("http"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return s.cfg.originAllowed(r.Header.Get("Origin"))
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		hlog.NewHandler(s.logger),
		hlog.RequestIDHandler("req_id", "X-Request-Id"),
		hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
			hlog.FromRequest(r).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("size", size).
				Dur("duration", d).
				Msg("request")
		}),
		middleware.Recoverer,
		s.cors,
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/v1/businesses/{businessID}", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Get("/chat/ws", s.handleChatWS)
		if s.copywriter != nil && s.assembler != nil {
			r.Post("/copy", s.handleCopy)
		}
	})
	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info().Msg("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && len(s.cfg.AllowedOrigins) > 0 && s.cfg.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// chatRequest is the body of both chat routes. The business id in the
// path wins; a conflicting id in the body is rejected.
type chatRequest struct {
	BusinessID string                     `json:"business_id,omitempty"`
	Messages   []contractx.InboundMessage `json:"messages"`
}

func (b chatRequest) turnRequest(pathID string) (contractx.TurnRequest, error) {
	if b.BusinessID != "" && b.BusinessID != pathID {
		return contractx.TurnRequest{}, fmt.Errorf("%w: business id in body does not match the path", contractx.ErrValidation)
	}
	return contractx.TurnRequest{BusinessID: pathID, Messages: b.Messages}, nil
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: request body: %v", contractx.ErrValidation, err)
	}
	return nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	if err := s.decode(w, r, &body); err != nil {
		writeError(w, err)
		return
	}

	req, err := body.turnRequest(chi.URLParam(r, "businessID"))
	if err != nil {
		writeError(w, err)
		return
	}

	turn, err := s.turns.Prepare(r.Context(), req)
	if err != nil {
		hlog.FromRequest(r).Debug().Err(err).Msg("turn rejected")
		writeError(w, err)
		return
	}

	sse := transport.NewSSE(w)
	w.WriteHeader(http.StatusOK)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go sse.Heartbeat(ctx, s.cfg.HeartbeatInterval)

	if err := transport.Serve(ctx, s.turns.TurnTimeout(), sse, turn.Run); err != nil {
		hlog.FromRequest(r).Debug().
			Err(err).
			Str("turn_id", turn.ID).
			Str("business_id", turn.Bundle().BusinessID).
			Msg("turn ended with error")
	}
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	ws := transport.NewWebSocket(conn)
	defer ws.Close()

	var body chatRequest
	if err := ws.ReadRequest(&body); err != nil {
		if errors.Is(err, contractx.ErrValidation) {
			_ = ws.Fail(r.Context(), err)
		}
		return
	}

	req, err := body.turnRequest(chi.URLParam(r, "businessID"))
	if err != nil {
		_ = ws.Fail(r.Context(), err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ws.WatchClose(cancel)

	if err := transport.Serve(ctx, s.turns.TurnTimeout(), ws, func(ctx context.Context, sink contractx.EventSink) error {
		return s.turns.HandleTurn(ctx, req, sink)
	}); err != nil {
		hlog.FromRequest(r).Debug().Err(err).Msg("websocket turn ended with error")
	}
}

type copyRequest struct {
	Schema string `json:"schema"`
	Brief  string `json:"brief"`
}

type copyResponse struct {
	Schema string         `json:"schema"`
	Result map[string]any `json:"result"`
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	var body copyRequest
	if err := s.decode(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(body.Brief) == "" {
		writeError(w, fmt.Errorf("%w: brief is empty", contractx.ErrValidation))
		return
	}

	bundle, err := s.assembler.Assemble(r.Context(), chi.URLParam(r, "businessID"))
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.copywriter.Generate(r.Context(), body.Schema, structuredx.BusinessBrief(bundle, body.Brief))
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("schema", body.Schema).Msg("copy generation failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, copyResponse{Schema: body.Schema, Result: result})
}
