// Package mcp exposes knowledge search and ingestion as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragchat/internal/domain"
	"github.com/kailas-cloud/ragchat/internal/domain/knowledge/metadata"
	"github.com/kailas-cloud/ragchat/internal/domain/search/result"
	chatuc "github.com/kailas-cloud/ragchat/internal/usecase/chat"
	searchuc "github.com/kailas-cloud/ragchat/internal/usecase/search"
	"github.com/kailas-cloud/ragchat/internal/version"
)

// ServerName is the MCP server name.
const ServerName = "ragchat"

// Searcher runs hybrid retrieval.
type Searcher interface {
	HybridSearch(ctx context.Context, query string, limit int) ([]result.Result, error)
}

// Adder stores a knowledge document.
type Adder interface {
	Add(ctx context.Context, content string, meta metadata.Map) (string, error)
}

// Asker answers a question in one shot.
type Asker interface {
	Ask(ctx context.Context, query string, useKnowledgeBase bool) (chatuc.Answer, error)
}

// Server wraps the MCP server with the use cases it exposes.
type Server struct {
	mcp    *server.MCPServer
	search Searcher
	adder  Adder
	asker  Asker
	logger *zap.Logger
}

// NewServer registers the tools. asker may be nil, which leaves ask_knowledge out.
func NewServer(search Searcher, adder Adder, asker Asker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		mcp:    server.NewMCPServer(ServerName, version.Version),
		search: search,
		adder:  adder,
		asker:  asker,
		logger: logger,
	}

	s.mcp.AddTool(searchKnowledgeTool(), s.handleSearchKnowledge)
	s.mcp.AddTool(addKnowledgeTool(), s.handleAddKnowledge)
	if asker != nil {
		s.mcp.AddTool(askKnowledgeTool(), s.handleAskKnowledge)
	}
	return s
}

// ServeStdio serves MCP over stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	if err := server.ServeStdio(s.mcp); err != nil {
		return fmt.Errorf("serve stdio: %w", err)
	}
	return nil
}

func searchKnowledgeTool() mcp.Tool {
	return mcp.NewTool("search_knowledge",
		mcp.WithDescription("Hybrid (semantic + keyword) search over the knowledge base. "+
			"Returns ranked passages and the joined context text."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language query")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results, 0 selects the server default; values above the server maximum are capped")),
	)
}

func addKnowledgeTool() mcp.Tool {
	return mcp.NewTool("add_knowledge",
		mcp.WithDescription("Embed a passage and store it in the knowledge base. Returns the new document id."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Passage text")),
		mcp.WithObject("metadata", mcp.Description("Free-form JSON metadata stored with the passage")),
	)
}

func askKnowledgeTool() mcp.Tool {
	return mcp.NewTool("ask_knowledge",
		mcp.WithDescription("Answer a question, grounded in the knowledge base unless use_knowledge_base is false."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Question to answer")),
		mcp.WithBoolean("use_knowledge_base", mcp.Description("Retrieve context first (default true)")),
	)
}

type searchPayload struct {
	Results []resultPayload `json:"results"`
	Context string          `json:"context"`
}

type resultPayload struct {
	ID       string       `json:"id"`
	Score    float64      `json:"score"`
	Content  string       `json:"content"`
	Metadata metadata.Map `json:"metadata,omitempty"`
}

type askPayload struct {
	Answer  string          `json:"answer"`
	Results []resultPayload `json:"results,omitempty"`
}

func (s *Server) handleSearchKnowledge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return mcp.NewToolResultError("invalid arguments format, expected an object"), nil
	}
	// A blank query is still searched; the embedding provider decides.
	query, ok := args["query"].(string)
	if !ok {
		return mcp.NewToolResultError("query is required"), nil
	}
	limit, err := intArg(args, "limit")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	results, err := s.search.HybridSearch(ctx, query, limit)
	if err != nil {
		return s.toolError("search_knowledge", err), nil
	}

	return jsonResult(searchPayload{
		Results: toPayload(results),
		Context: searchuc.FormatContext(results),
	})
}

func (s *Server) handleAddKnowledge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return mcp.NewToolResultError("invalid arguments format, expected an object"), nil
	}
	content, _ := args["content"].(string)

	meta, err := metadataArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	id, err := s.adder.Add(ctx, content, meta)
	if err != nil {
		return s.toolError("add_knowledge", err), nil
	}
	return jsonResult(map[string]any{"success": true, "id": id})
}

func (s *Server) handleAskKnowledge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return mcp.NewToolResultError("invalid arguments format, expected an object"), nil
	}
	query, _ := args["query"].(string)
	useKB := true
	if v, ok := args["use_knowledge_base"].(bool); ok {
		useKB = v
	}

	ans, err := s.asker.Ask(ctx, query, useKB)
	if err != nil {
		return s.toolError("ask_knowledge", err), nil
	}
	return jsonResult(askPayload{Answer: ans.Text, Results: toPayload(ans.Results)})
}

// toolError reports err to the client as a tool-level error. Internals are
// hidden behind the domain sentinel text.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	s.logger.Warn("tool call failed", zap.String("tool", tool), zap.Error(err))

	if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrNotFound) {
		return mcp.NewToolResultError(err.Error())
	}
	for _, sentinel := range []error{
		domain.ErrEmbeddingFailed,
		domain.ErrStoreUnavailable,
		domain.ErrLLMFailed,
		domain.ErrDimensionMismatch,
	} {
		if errors.Is(err, sentinel) {
			return mcp.NewToolResultError(tool + " failed: " + sentinel.Error())
		}
	}
	return mcp.NewToolResultError(tool + " failed: internal error")
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

func toPayload(rs []result.Result) []resultPayload {
	out := make([]resultPayload, len(rs))
	for i := range rs {
		out[i] = resultPayload{
			ID:       rs[i].ID(),
			Score:    rs[i].Score(),
			Content:  rs[i].Content(),
			Metadata: rs[i].Metadata(),
		}
	}
	return out
}

// intArg reads an optional integer. JSON numbers arrive as float64.
func intArg(args map[string]any, key string) (int, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return 0, nil
	}
	f, ok := raw.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return int(f), nil
}

func metadataArg(args map[string]any) (metadata.Map, error) {
	raw, ok := args["metadata"]
	if !ok || raw == nil {
		return nil, nil
	}
	if _, isObj := raw.(map[string]any); !isObj {
		return nil, errors.New("metadata must be an object")
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	meta, err := metadata.Parse(b)
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	return meta, nil
}
