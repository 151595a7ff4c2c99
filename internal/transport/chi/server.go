// Package chi exposes the chat, search and knowledge use cases over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	gochi "github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	domknow "github.com/kailas-cloud/ragchat/internal/domain/knowledge"
	"github.com/kailas-cloud/ragchat/internal/domain/knowledge/metadata"
	"github.com/kailas-cloud/ragchat/internal/domain/search/result"
	logpkg "github.com/kailas-cloud/ragchat/internal/logger"
	"github.com/kailas-cloud/ragchat/internal/metrics"
	chatuc "github.com/kailas-cloud/ragchat/internal/usecase/chat"
	healthuc "github.com/kailas-cloud/ragchat/internal/usecase/health"
	knowledgeuc "github.com/kailas-cloud/ragchat/internal/usecase/knowledge"
	searchuc "github.com/kailas-cloud/ragchat/internal/usecase/search"
	"github.com/kailas-cloud/ragchat/internal/version"
)

// Searcher runs hybrid retrieval.
type Searcher interface {
	HybridSearch(ctx context.Context, query string, limit int) ([]result.Result, error)
}

// Chatter streams grounded answers.
type Chatter interface {
	Stream(ctx context.Context, query string, useKnowledgeBase bool, sink chatuc.Sink) error
}

// KnowledgeBase manages stored documents.
type KnowledgeBase interface {
	Add(ctx context.Context, content string, meta metadata.Map) (string, error)
	AddBatch(ctx context.Context, items []knowledgeuc.Item) ([]string, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit, offset int) ([]domknow.Document, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Server holds the HTTP handlers.
type Server struct {
	chat      Chatter
	search    Searcher
	knowledge KnowledgeBase
	health    HealthChecker
	logger    *zap.Logger
	now       func() time.Time
}

// NewServer creates an HTTP API server.
func NewServer(
	chat Chatter,
	search Searcher,
	knowledge KnowledgeBase,
	health HealthChecker,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		chat:      chat,
		search:    search,
		knowledge: knowledge,
		health:    health,
		logger:    logger,
		now:       time.Now,
	}
}

// Routes builds the router with the standard middleware chain.
func (s *Server) Routes(allowedOrigins []string) http.Handler {
	r := gochi.NewRouter()
	r.Use(Recoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(RequestLogger(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(metrics.Middleware())

	r.Get("/", s.Info)
	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r gochi.Router) {
		r.Post("/search", s.Chat)
		r.Route("/knowledge", func(r gochi.Router) {
			r.Post("/search", s.SearchKnowledge)
			r.Post("/add", s.AddKnowledge)
			r.Post("/batch", s.AddKnowledgeBatch)
			r.Get("/list", s.ListKnowledge)
			r.Delete("/{id}", s.DeleteKnowledge)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "route not found")
	})
	return r
}

// Info handles GET /.
func (s *Server) Info(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "ragchat knowledge base API",
		"version": version.Version,
		"endpoints": map[string]string{
			"search":    "POST /api/search - stream an answer grounded in the knowledge base",
			"knowledge": "POST /api/knowledge/{search,add,batch}, GET /api/knowledge/list, DELETE /api/knowledge/{id}",
			"health":    "GET /health",
		},
		"status":    "running",
		"timestamp": s.now().UTC(),
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, healthResponse{
		Status:    string(report.Status),
		Timestamp: s.now().UTC(),
		Checks:    checks,
	})
}

// Chat handles POST /api/search: retrieval results and answer deltas as SSE.
// Failures after the stream has started are reported as an error event
// without the [DONE] terminator.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, codeInvalidInput, "query is required")
		return
	}
	useKB := req.UseKnowledgeBase == nil || *req.UseKnowledgeBase

	ctx := r.Context()
	log := logpkg.FromContextOr(ctx, s.logger)
	sink := newSSESink(w)

	if err := s.chat.Stream(ctx, req.Query, useKB, sink); err != nil {
		if ctx.Err() != nil {
			log.Info("client disconnected during stream", zap.Error(err))
			return
		}
		log.Error("chat stream failed", zap.Error(err))
		if werr := sink.fail(searchFailedMessage); werr != nil {
			log.Debug("write error event", zap.Error(werr))
		}
		return
	}
	if err := sink.done(); err != nil {
		log.Debug("write done marker", zap.Error(err))
	}
}

// SearchKnowledge handles POST /api/knowledge/search. A ?limit= query
// parameter overrides the body limit; limits above the configured maximum
// are capped.
func (s *Server) SearchKnowledge(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &req.Limit); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid limit: "+err.Error())
		return
	}

	results, err := s.search.HybridSearch(r.Context(), req.Query, req.Limit)
	if err != nil {
		s.handleDomainError(w, r, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Success: true,
		Results: resultsToDTO(results),
		Context: searchuc.FormatContext(results),
	})
}

// AddKnowledge handles POST /api/knowledge/add.
func (s *Server) AddKnowledge(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id, err := s.knowledge.Add(r.Context(), req.Content, req.Metadata)
	if err != nil {
		s.handleDomainError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, addResponse{Success: true, ID: id})
}

// AddKnowledgeBatch handles POST /api/knowledge/batch.
func (s *Server) AddKnowledgeBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	items := make([]knowledgeuc.Item, len(req.Items))
	for i, it := range req.Items {
		items[i] = knowledgeuc.Item{Content: it.Content, Metadata: it.Metadata}
	}

	ids, err := s.knowledge.AddBatch(r.Context(), items)
	if err != nil {
		s.handleDomainError(w, r, err, ids)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, batchResponse{Success: true, IDs: ids})
}

// DeleteKnowledge handles DELETE /api/knowledge/{id}.
func (s *Server) DeleteKnowledge(w http.ResponseWriter, r *http.Request) {
	if err := s.knowledge.Delete(r.Context(), gochi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// ListKnowledge handles GET /api/knowledge/list?limit=&offset=.
func (s *Server) ListKnowledge(w http.ResponseWriter, r *http.Request) {
	var limit, offset int
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "limit", q, &limit); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid limit: "+err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "offset", q, &offset); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid offset: "+err.Error())
		return
	}

	docs, err := s.knowledge.List(r.Context(), limit, offset)
	if err != nil {
		s.handleDomainError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Success: true, Data: documentsToDTO(docs)})
}

const maxBodyBytes = 8 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, codeBadRequest, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, codeBadRequest, invalidBodyPrefix+err.Error())
		return false
	}
	return true
}
