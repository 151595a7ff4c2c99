package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/ragchat/internal/domain"
	"github.com/kailas-cloud/ragchat/internal/domain/search/result"
	"github.com/kailas-cloud/ragchat/internal/usecase/search"
)

const groundedPrompt = `You are a helpful assistant. Answer the user's question using the knowledge base content below. If the knowledge base does not contain the answer, say honestly that you don't know.

Knowledge base content:
%s

Answer concisely and accurately.`

const genericPrompt = "You are a helpful assistant. Answer the user's question professionally and accurately."

// Answer is a complete, non-streamed reply.
type Answer struct {
	Text    string
	Results []result.Result
}

// Service answers questions with optional knowledge-base grounding.
type Service struct {
	search Searcher
	llm    LLM
}

// New creates a chat service.
func New(s Searcher, llm LLM) *Service {
	return &Service{search: s, llm: llm}
}

// Stream retrieves context (when useKnowledgeBase is set), hands the ranked
// results to sink, then streams LLM deltas into sink.
// Retrieval ignores cancellation of ctx; the token stream stops when ctx is done.
func (s *Service) Stream(ctx context.Context, query string, useKnowledgeBase bool, sink Sink) error {
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: query is required", domain.ErrInvalidInput)
	}

	var knowledge string
	if useKnowledgeBase {
		results, err := s.retrieve(ctx, query)
		if err != nil {
			return err
		}
		if err := sink.Results(results); err != nil {
			return fmt.Errorf("emit results: %w", err)
		}
		knowledge = search.FormatContext(results)
	}

	if err := s.llm.Stream(ctx, BuildMessages(query, knowledge), sink.Delta); err != nil {
		return fmt.Errorf("stream completion: %w", err)
	}
	return nil
}

// Ask is Stream without streaming: it returns the whole reply at once.
func (s *Service) Ask(ctx context.Context, query string, useKnowledgeBase bool) (Answer, error) {
	if strings.TrimSpace(query) == "" {
		return Answer{}, fmt.Errorf("%w: query is required", domain.ErrInvalidInput)
	}

	var ans Answer
	var knowledge string
	if useKnowledgeBase {
		results, err := s.retrieve(ctx, query)
		if err != nil {
			return Answer{}, err
		}
		ans.Results = results
		knowledge = search.FormatContext(results)
	}

	text, err := s.llm.Complete(ctx, BuildMessages(query, knowledge))
	if err != nil {
		return Answer{}, fmt.Errorf("complete: %w", err)
	}
	ans.Text = text
	return ans, nil
}

func (s *Service) retrieve(ctx context.Context, query string) ([]result.Result, error) {
	results, err := s.search.HybridSearch(context.WithoutCancel(ctx), query, 0)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	return results, nil
}

// BuildMessages returns the system and user turns for query.
// A non-empty knowledge text selects the grounded system prompt.
func BuildMessages(query, knowledge string) []domain.ChatMessage {
	system := genericPrompt
	if knowledge != "" {
		system = fmt.Sprintf(groundedPrompt, knowledge)
	}
	return []domain.ChatMessage{
		{Role: domain.ChatRoleSystem, Content: system},
		{Role: domain.ChatRoleUser, Content: query},
	}
}
