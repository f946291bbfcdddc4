// Package server implements the Chat API Surface (C9): request
// entry, SSE emission, and persistence of messages and pipeline
// state, grounded on pkg/server/http.go's handler-registration shape
// generalized from a2a-go's JSON-RPC framing to the plain REST+SSE
// surface spec.md §6 defines.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/flowctl/convoy/agent"
	"github.com/flowctl/convoy/config"
	"github.com/flowctl/convoy/kb"
	"github.com/flowctl/convoy/kg"
	"github.com/flowctl/convoy/llm"
	"github.com/flowctl/convoy/pipeline"
	"github.com/flowctl/convoy/storage"
	"github.com/flowctl/convoy/tool"
	"github.com/flowctl/convoy/tool/mcpclient"
)


// Server wires every registered agent plus the C1/C2/C7/C8
// collaborators behind chi routes, per spec.md §6's External
// Interfaces.
type Server struct {
	cfg       *config.ServerConfig
	appCfg    *config.Config
	store     *storage.Store
	router    chi.Router
	http      *http.Server

	agents    map[string]agent.Agent
	pipelines map[string]*pipeline.Pipeline
	llmReg    *llm.Registry
	toolReg   *tool.Registry
	kbReg     *kb.Registry
	mcpHelper *mcpclient.Helper

	kgStore     kg.Store
	kgQuery     *kg.QueryEngine
	kgExtractor *kg.Extractor
	graphEnabled bool
}

// Deps bundles every collaborator New needs, built once at startup by
// cmd/convoyd and handed in so this package never constructs
// providers itself.
type Deps struct {
	Config      *config.Config
	Store       *storage.Store
	Agents      map[string]agent.Agent
	Pipelines   map[string]*pipeline.Pipeline
	LLMRegistry *llm.Registry
	ToolReg     *tool.Registry
	KBReg       *kb.Registry
	MCPHelper   *mcpclient.Helper
	KGStore     kg.Store
	KGExtractor *kg.Extractor
	GraphEnabled bool
}

// New builds a Server from Deps, registering every route up front.
func New(d Deps) *Server {
	serverCfg := &d.Config.Server
	s := &Server{
		cfg:          serverCfg,
		appCfg:       d.Config,
		store:        d.Store,
		agents:       d.Agents,
		pipelines:    d.Pipelines,
		llmReg:       d.LLMRegistry,
		toolReg:      d.ToolReg,
		kbReg:        d.KBReg,
		mcpHelper:    d.MCPHelper,
		kgStore:      d.KGStore,
		kgExtractor:  d.KGExtractor,
		graphEnabled: d.GraphEnabled,
	}
	if s.kgStore != nil {
		s.kgQuery = kg.NewQueryEngine(s.kgStore)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/", s.handleChat)
		r.Post("/stream", s.handleChatStream)
		r.Get("/pipeline_state", s.handlePipelineState)
		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions/{user_id}", s.handleListSessions)
		r.Get("/messages/{session_id}", s.handleMessages)
	})

	r.Route("/api/mcp", func(r chi.Router) {
		r.Get("/", s.handleMCPList)
		r.Get("/{server_name}/tools", s.handleMCPTools)
	})

	r.Route("/api/knowledge_base", func(r chi.Router) {
		r.Get("/", s.handleKBList)
		r.Post("/{kb_id}/documents", s.handleKBIngest)
		r.Get("/{kb_id}/query", s.handleKBQuery)
		r.Get("/{kb_id}/graph", s.handleKBGraphQuery)
	})

	r.Route("/api/flows", func(r chi.Router) {
		r.Get("/", s.handleFlowList)
		r.Get("/{flow_name}", s.handleFlowGet)
	})

	r.Route("/api/tools", func(r chi.Router) {
		r.Get("/", s.handleToolList)
		r.Post("/{name}/reset_score", s.handleToolResetScore)
	})

	if s.cfg.EnableWS {
		r.Get("/ws/{session_id}", s.handleWebSocket)
	}

	return r
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{
		Addr:        s.cfg.Addr,
		Handler:     s.router,
		ReadTimeout: time.Duration(s.cfg.ReadTimeoutSec) * time.Second,
		// No WriteTimeout: SSE/WS responses are long-lived.
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", s.cfg.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// newChunkID stamps a unique chunk_id per spec.md §6's wire shape,
// which ftypes.Chunk leaves for the emitting layer to fill.
func newChunkID() string { return uuid.NewString() }

func pipelineSnapshotKey(userID, agentName, sessionID string) string {
	return pipeline.SnapshotKey(userID, agentName, sessionID)
}

func (s *Server) agentFor(name string) (agent.Agent, error) {
	a, ok := s.agents[name]
	if !ok {
		return nil, fmt.Errorf("server: unknown agent %q", name)
	}
	return a, nil
}
