package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	domknow "github.com/kailas-cloud/ragchat/internal/domain/knowledge"
	"github.com/kailas-cloud/ragchat/internal/domain/knowledge/metadata"
	"github.com/kailas-cloud/ragchat/internal/domain/search/result"
	chatuc "github.com/kailas-cloud/ragchat/internal/usecase/chat"
	healthuc "github.com/kailas-cloud/ragchat/internal/usecase/health"
	knowledgeuc "github.com/kailas-cloud/ragchat/internal/usecase/knowledge"
)

type mockChatter struct {
	streamFn func(ctx context.Context, query string, useKB bool, sink chatuc.Sink) error
}

func (m *mockChatter) Stream(ctx context.Context, query string, useKB bool, sink chatuc.Sink) error {
	return m.streamFn(ctx, query, useKB, sink)
}

type mockSearcher struct {
	searchFn func(ctx context.Context, query string, limit int) ([]result.Result, error)
}

func (m *mockSearcher) HybridSearch(ctx context.Context, query string, limit int) ([]result.Result, error) {
	return m.searchFn(ctx, query, limit)
}

type mockKnowledge struct {
	addFn      func(ctx context.Context, content string, meta metadata.Map) (string, error)
	addBatchFn func(ctx context.Context, items []knowledgeuc.Item) ([]string, error)
	deleteFn   func(ctx context.Context, id string) error
	listFn     func(ctx context.Context, limit, offset int) ([]domknow.Document, error)
}

func (m *mockKnowledge) Add(ctx context.Context, content string, meta metadata.Map) (string, error) {
	return m.addFn(ctx, content, meta)
}

func (m *mockKnowledge) AddBatch(ctx context.Context, items []knowledgeuc.Item) ([]string, error) {
	return m.addBatchFn(ctx, items)
}

func (m *mockKnowledge) Delete(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}

func (m *mockKnowledge) List(ctx context.Context, limit, offset int) ([]domknow.Document, error) {
	return m.listFn(ctx, limit, offset)
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

var fixedNow = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

type testDeps struct {
	chat      *mockChatter
	search    *mockSearcher
	knowledge *mockKnowledge
	health    *mockHealth
}

func newTestHandler(t *testing.T, deps testDeps) http.Handler {
	t.Helper()
	if deps.chat == nil {
		deps.chat = &mockChatter{}
	}
	if deps.search == nil {
		deps.search = &mockSearcher{}
	}
	if deps.knowledge == nil {
		deps.knowledge = &mockKnowledge{}
	}
	if deps.health == nil {
		deps.health = &mockHealth{}
	}
	s := NewServer(deps.chat, deps.search, deps.knowledge, deps.health, zap.NewNop())
	s.now = func() time.Time { return fixedNow }
	return s.Routes([]string{"*"})
}

func doRequest(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			if err := json.NewEncoder(&buf).Encode(b); err != nil {
				t.Fatalf("encode body: %v", err)
			}
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return v
}
