// Package server exposes the query engine over HTTP. One process can
// serve several storage backends; each request picks one by name.
package server

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ekb/internal/auth"
	"ekb/internal/engine"
	ekberrors "ekb/internal/errors"
	"ekb/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// Synthesizer restates a retrieval result through a language model. The
// model argument may override the configured one per call.
type Synthesizer interface {
	RewriteWithModel(ctx context.Context, question, model string, res *engine.Result) (string, error)
}

// Options configure the HTTP server.
type Options struct {
	// Engines maps backend names ("memory", "sqlite") to query engines.
	Engines map[string]*engine.Engine
	// DefaultBackend answers requests that do not name a backend.
	DefaultBackend string
	// Verifier guards the API with a bearer token. Nil disables auth.
	Verifier *auth.Verifier
	// Synth serves requests that ask for a rewritten answer. Nil means
	// synthesis is unavailable.
	Synth Synthesizer
	Log   *logging.Logger
}

// Server is the HTTP front end.
type Server struct {
	opts   Options
	router *gin.Engine
}

// askRequest is the POST /api/ask body.
type askRequest struct {
	Query      string `json:"query" binding:"required"`
	Backend    string `json:"backend"`
	Synthesize bool   `json:"synthesize"`
	Model      string `json:"model"`
}

// askResponse wraps a query result with its routing facts. The result is
// always the raw retrieval outcome; a synthesis failure only populates
// synthesis_error.
type askResponse struct {
	Backend        string         `json:"backend"`
	RequestID      string         `json:"requestId"`
	Result         *engine.Result `json:"result"`
	Synthesis      string         `json:"synthesis,omitempty"`
	SynthesisError string         `json:"synthesis_error,omitempty"`
}

// New builds the server and its routes.
func New(opts Options) *Server {
	if opts.Log == nil {
		opts.Log = logging.NewNop()
	}
	if opts.DefaultBackend == "" {
		opts.DefaultBackend = "sqlite"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{opts: opts, router: router}
	router.Use(s.requestID())

	router.GET("/api/health", s.handleHealth)

	api := router.Group("/api")
	api.Use(s.authenticate())
	api.POST("/ask", s.handleAsk)

	return s
}

// Router exposes the handler for tests and embedding.
func (s *Server) Router() *gin.Engine { return s.router }

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	s.opts.Log.Info("api server listening", map[string]any{"addr": addr})
	return s.router.Run(addr)
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("requestID", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.opts.Verifier.Enabled() {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || !s.opts.Verifier.Verify(token) {
			s.opts.Log.Warn("rejected unauthenticated request", map[string]any{
				"path":      c.Request.URL.Path,
				"requestId": c.GetString("requestID"),
			})
			writeError(c, http.StatusUnauthorized,
				ekberrors.New(ekberrors.Unauthorized, "missing or invalid bearer token", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	backends := make([]string, 0, len(s.opts.Engines))
	for name := range s.opts.Engines {
		backends = append(backends, name)
	}
	sort.Strings(backends)
	c.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"backends":    backends,
		"authEnabled": s.opts.Verifier.Enabled(),
	})
}

func (s *Server) handleAsk(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest,
			ekberrors.New(ekberrors.MalformedInput, "body must be JSON with a non-empty query", err))
		return
	}

	backend := req.Backend
	if backend == "" {
		backend = s.opts.DefaultBackend
	}
	eng, ok := s.opts.Engines[backend]
	if !ok {
		writeError(c, http.StatusBadRequest,
			ekberrors.New(ekberrors.MalformedInput, "unknown backend "+backend, nil))
		return
	}

	result, err := eng.Query(c.Request.Context(), req.Query)
	if err != nil {
		status := http.StatusInternalServerError
		if ekberrors.CodeOf(err) == ekberrors.MalformedInput {
			status = http.StatusBadRequest
		}
		writeError(c, status, ekberrors.FromError(err))
		return
	}

	resp := askResponse{
		Backend:   backend,
		RequestID: c.GetString("requestID"),
		Result:    result,
	}
	if req.Synthesize {
		if s.opts.Synth == nil {
			resp.SynthesisError = "synthesis is not configured"
		} else if text, synthErr := s.opts.Synth.RewriteWithModel(
			c.Request.Context(), req.Query, req.Model, result); synthErr != nil {
			resp.SynthesisError = synthErr.Error()
			s.opts.Log.Warn("synthesis failed", map[string]any{
				"requestId": resp.RequestID,
				"error":     synthErr.Error(),
			})
		} else {
			resp.Synthesis = text
		}
	}

	s.opts.Log.Info("query answered", map[string]any{
		"requestId": c.GetString("requestID"),
		"backend":   backend,
		"type":      result.QueryType,
		"warnings":  len(result.Warnings),
	})
	c.JSON(http.StatusOK, resp)
}

func writeError(c *gin.Context, status int, err *ekberrors.EkbError) {
	c.JSON(status, gin.H{"error": err})
}
