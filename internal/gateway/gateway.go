// Package gateway exposes the dispatcher over HTTP: a synchronous
// invocation endpoint, a WebSocket channel, the MCP surface, tool and
// model discovery, and the image generation endpoints.
package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bananabit/fluxgate/internal/dispatch"
	"github.com/bananabit/fluxgate/internal/generate"
	"github.com/bananabit/fluxgate/internal/health"
	"github.com/bananabit/fluxgate/internal/model"
	"github.com/bananabit/fluxgate/internal/observe"
	"github.com/bananabit/fluxgate/internal/store"
	"github.com/bananabit/fluxgate/internal/tool"
)

// Server routes gateway traffic to the dispatcher and the generation
// service. Construct it with [New] and serve its [Server.Handler].
type Server struct {
	dispatcher *dispatch.Dispatcher
	generator  *generate.Service
	models     *model.Catalog
	health     *health.Handler
	metrics    *observe.Metrics
	log        *slog.Logger
	backlog    int

	handler http.Handler
}

// Option configures a [Server].
type Option func(*Server)

// WithHealth mounts the given health handler on the server mux.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics sets the metrics bundle used by the HTTP middleware and
// the WebSocket channel.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithChannelBacklog bounds the number of invocations a single
// WebSocket connection may have in flight or queued for delivery.
func WithChannelBacklog(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.backlog = n
		}
	}
}

// New assembles the gateway routes. The generation service may be nil,
// in which case the model and generation endpoints respond 404.
func New(d *dispatch.Dispatcher, gen *generate.Service, models *model.Catalog, opts ...Option) *Server {
	s := &Server{
		dispatcher: d,
		generator:  gen,
		models:     models,
		log:        slog.Default(),
		backlog:    32,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/tools", s.handleListTools)
	mux.HandleFunc("GET /mcp/tools", s.handleListTools)
	mux.HandleFunc("POST /api/v1/tools/{name}", s.handleInvoke)
	mux.HandleFunc("GET /ws", s.handleChannel)
	mux.Handle("/mcp", s.mcpHandler())
	if s.models != nil {
		mux.HandleFunc("GET /api/v1/models", s.handleListModels)
		mux.HandleFunc("GET /api/v1/models/{id}", s.handleGetModel)
	}
	if s.generator != nil {
		mux.HandleFunc("POST /api/v1/models/{id}/generate", s.handleGenerate)
		mux.HandleFunc("GET /api/v1/generations/{id}", s.handleGetGeneration)
	}
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.health != nil {
		s.health.Register(mux)
	}

	s.handler = observe.Middleware(s.metrics)(mux)
	return s
}

// Handler returns the fully assembled HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// invokeResponse is the body of a successful synchronous invocation.
type invokeResponse struct {
	ID     string `json:"id"`
	Tool   string `json:"tool"`
	Result any    `json:"result"`
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	args, err := decodeArgs(r)
	if err != nil {
		writeDispatchError(w, dispatch.Errorf(dispatch.KindValidation, "invalid request body: %v", err))
		return
	}

	inv := dispatch.NewInvocation(name, args)
	result, err := s.dispatcher.Dispatch(r.Context(), inv)
	if err != nil {
		writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invokeResponse{
		ID:     inv.CorrelationID,
		Tool:   name,
		Result: result,
	})
}

// decodeArgs reads the request body as a JSON object of tool arguments.
// An empty body means no arguments.
func decodeArgs(r *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(r.Body)
	args := make(map[string]any)
	if err := dec.Decode(&args); err != nil {
		if errors.Is(err, io.EOF) {
			return args, nil
		}
		return nil, err
	}
	return args, nil
}

// toolInfo is the discovery representation of a registered tool.
type toolInfo struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Params      []paramInfo `json:"params"`
}

type paramInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	descs := s.dispatcher.Registry().List()
	infos := make([]toolInfo, 0, len(descs))
	for _, d := range descs {
		infos = append(infos, describeTool(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": infos})
}

func describeTool(d *tool.Descriptor) toolInfo {
	info := toolInfo{
		Name:        d.Name,
		Description: d.Description,
		Params:      make([]paramInfo, 0, len(d.Params)),
	}
	for _, p := range d.Params {
		info.Params = append(info.Params, paramInfo{
			Name:        p.Name,
			Type:        string(p.Type),
			Required:    p.Required,
			Default:     p.Default,
			Description: p.Description,
		})
	}
	return info
}

func (s *Server) handleListModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": s.models.List()})
}

func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	m, err := s.models.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown_model", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generate.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "invalid request body: "+err.Error())
		return
	}

	gen, err := s.generator.Start(r.Context(), r.PathValue("id"), req)
	if err != nil {
		if errors.Is(err, model.ErrUnknownModel) {
			writeError(w, http.StatusNotFound, "unknown_model", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, gen)
}

func (s *Server) handleGetGeneration(w http.ResponseWriter, r *http.Request) {
	gen, err := s.generator.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, gen)
}

// statusForKind maps dispatcher error kinds to HTTP status codes.
func statusForKind(kind dispatch.Kind) int {
	switch kind {
	case dispatch.KindValidation:
		return http.StatusBadRequest
	case dispatch.KindUnknownTool:
		return http.StatusNotFound
	case dispatch.KindCapacity:
		return http.StatusTooManyRequests
	case dispatch.KindTimeout:
		return http.StatusGatewayTimeout
	case dispatch.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeDispatchError(w http.ResponseWriter, err error) {
	kind := dispatch.KindInternal
	msg := "internal error"
	if derr, ok := dispatch.AsError(err); ok {
		kind = derr.Kind
		msg = derr.Message
	}
	writeError(w, statusForKind(kind), kind.String(), msg)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Kind: kind, Message: msg}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
