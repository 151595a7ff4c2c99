package chi

import (
	"time"

	domknow "github.com/kailas-cloud/ragchat/internal/domain/knowledge"
	"github.com/kailas-cloud/ragchat/internal/domain/knowledge/metadata"
	"github.com/kailas-cloud/ragchat/internal/domain/search/result"
)

type chatRequest struct {
	Query            string `json:"query"`
	UseKnowledgeBase *bool  `json:"useKnowledgeBase"`
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResponse struct {
	Success bool         `json:"success"`
	Results []resultItem `json:"results"`
	Context string       `json:"context"`
}

type addRequest struct {
	Content  string       `json:"content"`
	Metadata metadata.Map `json:"metadata"`
}

type addResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

type batchRequest struct {
	Items []addRequest `json:"items"`
}

type batchResponse struct {
	Success bool     `json:"success"`
	IDs     []string `json:"ids"`
}

type listResponse struct {
	Success bool           `json:"success"`
	Data    []documentItem `json:"data"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Success bool     `json:"success"`
	Code    string   `json:"code"`
	Error   string   `json:"error"`
	IDs     []string `json:"ids,omitempty"` // batch items stored before the failure
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

type resultItem struct {
	ID       string       `json:"id"`
	Score    float64      `json:"score"`
	Content  string       `json:"content"`
	Metadata metadata.Map `json:"metadata"`
}

type documentItem struct {
	ID        string       `json:"id"`
	Content   string       `json:"content"`
	Metadata  metadata.Map `json:"metadata"`
	Timestamp time.Time    `json:"timestamp"`
}

// SSE payloads.
type (
	resultsEvent struct {
		Type    string       `json:"type"` // searchResults
		Results []resultItem `json:"results"`
	}
	contentEvent struct {
		Type    string `json:"type"` // content
		Content string `json:"content"`
	}
	errorEvent struct {
		Type  string `json:"type"` // error
		Error string `json:"error"`
	}
)

func resultsToDTO(rs []result.Result) []resultItem {
	items := make([]resultItem, len(rs))
	for i := range rs {
		items[i] = resultItem{
			ID:       rs[i].ID(),
			Score:    rs[i].Score(),
			Content:  rs[i].Content(),
			Metadata: nonNilMeta(rs[i].Metadata()),
		}
	}
	return items
}

func documentsToDTO(docs []domknow.Document) []documentItem {
	items := make([]documentItem, len(docs))
	for i := range docs {
		items[i] = documentItem{
			ID:        docs[i].ID(),
			Content:   docs[i].Content(),
			Metadata:  nonNilMeta(docs[i].Metadata()),
			Timestamp: docs[i].Timestamp(),
		}
	}
	return items
}

func nonNilMeta(m metadata.Map) metadata.Map {
	if m == nil {
		return metadata.Map{}
	}
	return m
}
