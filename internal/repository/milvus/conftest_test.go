package milvus

import (
	"context"
	"testing"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	domknow "github.com/kailas-cloud/ragchat/internal/domain/knowledge"
)

// mockClient implements milvusClient for tests.
type mockClient struct {
	hasCollectionFn      func(ctx context.Context, name string) (bool, error)
	describeCollectionFn func(ctx context.Context, name string) (*entity.Collection, error)
	createCollectionFn   func(ctx context.Context, schema *entity.Schema) error
	createIndexFn        func(ctx context.Context, name, field string, idx entity.Index) error
	loadCollectionFn     func(ctx context.Context, name string) error
	searchFn             func(ctx context.Context, expr string, vectors []entity.Vector, topK int) ([]mclient.SearchResult, error)
	upsertFn             func(ctx context.Context, columns ...entity.Column) error
	deleteFn             func(ctx context.Context, expr string) error
	queryFn              func(ctx context.Context, expr string, fields []string) (mclient.ResultSet, error)
	closed               bool
}

func (m *mockClient) HasCollection(ctx context.Context, name string) (bool, error) {
	if m.hasCollectionFn != nil {
		return m.hasCollectionFn(ctx, name)
	}
	return false, nil
}

func (m *mockClient) DescribeCollection(ctx context.Context, name string) (*entity.Collection, error) {
	if m.describeCollectionFn != nil {
		return m.describeCollectionFn(ctx, name)
	}
	return &entity.Collection{Name: name}, nil
}

func (m *mockClient) CreateCollection(
	ctx context.Context, schema *entity.Schema, _ int32, _ ...mclient.CreateCollectionOption,
) error {
	if m.createCollectionFn != nil {
		return m.createCollectionFn(ctx, schema)
	}
	return nil
}

func (m *mockClient) CreateIndex(
	ctx context.Context, name string, field string, idx entity.Index, _ bool, _ ...mclient.IndexOption,
) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, name, field, idx)
	}
	return nil
}

func (m *mockClient) LoadCollection(ctx context.Context, name string, _ bool, _ ...mclient.LoadCollectionOption) error {
	if m.loadCollectionFn != nil {
		return m.loadCollectionFn(ctx, name)
	}
	return nil
}

func (m *mockClient) Search(
	ctx context.Context, _ string, _ []string, expr string, _ []string,
	vectors []entity.Vector, _ string, _ entity.MetricType, topK int,
	_ entity.SearchParam, _ ...mclient.SearchQueryOptionFunc,
) ([]mclient.SearchResult, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, expr, vectors, topK)
	}
	return nil, nil
}

func (m *mockClient) Upsert(ctx context.Context, _ string, _ string, columns ...entity.Column) (entity.Column, error) {
	if m.upsertFn != nil {
		return nil, m.upsertFn(ctx, columns...)
	}
	return nil, nil
}

func (m *mockClient) Delete(ctx context.Context, _ string, _ string, expr string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, expr)
	}
	return nil
}

func (m *mockClient) Query(
	ctx context.Context, _ string, _ []string, expr string, fields []string, _ ...mclient.SearchQueryOptionFunc,
) (mclient.ResultSet, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, expr, fields)
	}
	return mclient.ResultSet{}, nil
}

func (m *mockClient) Close() error {
	m.closed = true
	return nil
}

func testSpec() domknow.CollectionSpec {
	return domknow.CollectionSpec{Name: "kb", Dimension: 3, Metric: domknow.MetricCosine}
}

func newTestRepo(t *testing.T) (*Repo, *mockClient) {
	t.Helper()
	mc := &mockClient{}
	repo, err := New(mc, testSpec())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return repo, mc
}

func schemaWithDim(dim string) *entity.Collection {
	return &entity.Collection{
		Name: "kb",
		Schema: &entity.Schema{
			CollectionName: "kb",
			Fields: []*entity.Field{
				{Name: fieldID, DataType: entity.FieldTypeVarChar, PrimaryKey: true},
				{Name: fieldVector, DataType: entity.FieldTypeFloatVector, TypeParams: map[string]string{entity.TypeParamDim: dim}},
			},
		},
	}
}
