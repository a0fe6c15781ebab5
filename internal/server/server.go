// Package server is the thin HTTP front door over the pool and dispatcher.
// It owns no orchestration logic; it only decodes requests, routes them, and
// encodes outcomes.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/lishuo8109/weibopilot/api/schemas"
	"github.com/lishuo8109/weibopilot/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StateProvider is the pool surface the server reads from.
type StateProvider interface {
	Accounts() []string
	GetState(ctx context.Context, accountID string, nFollowing, nRecommend int) (*schemas.StateView, error)
	GetFeedback(ctx context.Context, accountID string, ref *schemas.ItemRef) (any, error)
	GetRecord(ctx context.Context, ref schemas.ItemRef) (*schemas.PostView, error)
}

// ActionDispatcher executes mutating commands.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, req schemas.CommandRequest) schemas.Outcome
}

// Server wires the HTTP routes to the pool and dispatcher.
type Server struct {
	provider   StateProvider
	dispatcher ActionDispatcher
	logger     *zap.Logger
	httpSrv    *http.Server
}

// New builds the server. Call Start to begin serving.
func New(cfg config.ServerConfig, provider StateProvider, dispatcher ActionDispatcher, logger *zap.Logger) *Server {
	s := &Server{
		provider:   provider,
		dispatcher: dispatcher,
		logger:     logger.Named("server"),
	}
	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Router assembles the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Post("/state", s.handleState)
	r.Post("/action", s.handleAction)
	r.Post("/feedback", s.handleFeedback)
	r.Post("/record", s.handleRecord)
	return r
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening.", zap.String("addr", s.httpSrv.Addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("Handled request.",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

type statePayload struct {
	AgentID    string `json:"agent_id"`
	NFollowing int    `json:"n_following"`
	NRecommend int    `json:"n_recommend"`
}

type feedbackPayload struct {
	AgentID string `json:"agent_id"`
	WeiboID string `json:"weibo_id,omitempty"`
}

type recordPayload struct {
	ObjectID string `json:"object_id"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"accounts": s.provider.Accounts(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	var payload statePayload
	if !s.decode(w, r, &payload) {
		return
	}
	if payload.NFollowing <= 0 {
		payload.NFollowing = 3
	}
	if payload.NRecommend <= 0 {
		payload.NRecommend = 3
	}

	state, err := s.provider.GetState(r.Context(), payload.AgentID, payload.NFollowing, payload.NRecommend)
	if err != nil {
		s.writeFailure(w, err, payload.AgentID, "get_state")
		return
	}
	writeJSON(w, http.StatusOK, schemas.Succeed(state))
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req schemas.CommandRequest
	if !s.decode(w, r, &req) {
		return
	}
	// The dispatcher never errors; every result is a uniform outcome.
	writeJSON(w, http.StatusOK, s.dispatcher.Dispatch(r.Context(), req))
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var payload feedbackPayload
	if !s.decode(w, r, &payload) {
		return
	}

	var ref *schemas.ItemRef
	if payload.WeiboID != "" {
		parsed, err := schemas.ParseItemRef(payload.WeiboID)
		if err != nil {
			// A bare item id refers to one of the agent's own posts.
			parsed = schemas.ItemRef{AccountID: payload.AgentID, ItemID: payload.WeiboID}
		}
		ref = &parsed
	}

	data, err := s.provider.GetFeedback(r.Context(), payload.AgentID, ref)
	if err != nil {
		s.writeFailure(w, err, payload.AgentID, "get_feedback")
		return
	}
	writeJSON(w, http.StatusOK, schemas.Succeed(data))
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	var payload recordPayload
	if !s.decode(w, r, &payload) {
		return
	}
	ref, err := schemas.ParseItemRef(payload.ObjectID)
	if err != nil {
		failure := schemas.NewFailure(schemas.FailValidation, "", "get_record", err.Error())
		writeJSON(w, http.StatusBadRequest, schemas.Fail(failure))
		return
	}

	view, err := s.provider.GetRecord(r.Context(), ref)
	if err != nil {
		s.writeFailure(w, err, "", "get_record")
		return
	}
	writeJSON(w, http.StatusOK, schemas.Succeed(view))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		failure := schemas.NewFailure(schemas.FailValidation, "", "decode_request", err.Error())
		writeJSON(w, http.StatusBadRequest, schemas.Fail(failure))
		return false
	}
	return true
}

// writeFailure maps failure kinds onto HTTP status codes while keeping the
// uniform outcome body.
func (s *Server) writeFailure(w http.ResponseWriter, err error, accountID, op string) {
	failure := schemas.FailureFrom(err, accountID, op)
	status := http.StatusInternalServerError
	switch failure.Kind {
	case schemas.FailNotFound:
		status = http.StatusNotFound
	case schemas.FailValidation:
		status = http.StatusBadRequest
	}
	writeJSON(w, status, schemas.Fail(failure))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
