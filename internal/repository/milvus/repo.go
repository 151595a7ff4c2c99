// Package milvus implements the knowledge repository over a Milvus collection.
package milvus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/kailas-cloud/ragchat/internal/domain"
	domknow "github.com/kailas-cloud/ragchat/internal/domain/knowledge"
	"github.com/kailas-cloud/ragchat/internal/domain/knowledge/metadata"
	"github.com/kailas-cloud/ragchat/internal/domain/search/filter"
	"github.com/kailas-cloud/ragchat/internal/domain/search/result"
)

// Collection field names.
const (
	fieldID        = "id"
	fieldVector    = "vector"
	fieldContent   = filter.ContentField
	fieldMetadata  = "metadata"
	fieldTimestamp = "timestamp"

	maxIDLength      = 64
	maxContentLength = 65535
	maxTimeLength    = 64
)

var outputFields = []string{fieldContent, fieldMetadata, fieldTimestamp}

// milvusClient is the subset of mclient.Client the repository needs (ISP).
//
//nolint:interfacebloat // collection lifecycle + CRUD + search
type milvusClient interface {
	HasCollection(ctx context.Context, collName string) (bool, error)
	DescribeCollection(ctx context.Context, collName string) (*entity.Collection, error)
	CreateCollection(ctx context.Context, schema *entity.Schema, shardsNum int32, opts ...mclient.CreateCollectionOption) error
	CreateIndex(ctx context.Context, collName string, fieldName string, idx entity.Index, async bool, opts ...mclient.IndexOption) error
	LoadCollection(ctx context.Context, collName string, async bool, opts ...mclient.LoadCollectionOption) error
	Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string,
		vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int,
		sp entity.SearchParam, opts ...mclient.SearchQueryOptionFunc) ([]mclient.SearchResult, error)
	Upsert(ctx context.Context, collName string, partitionName string, columns ...entity.Column) (entity.Column, error)
	Delete(ctx context.Context, collName string, partitionName string, expr string) error
	Query(ctx context.Context, collectionName string, partitionNames []string, expr string, outputFields []string,
		opts ...mclient.SearchQueryOptionFunc) (mclient.ResultSet, error)
	Close() error
}

// Config holds Milvus connection settings.
type Config struct {
	Address  string
	Username string
	Password string
	DBName   string
}

// NewClient dials Milvus.
func NewClient(ctx context.Context, cfg Config) (mclient.Client, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, fmt.Errorf("address is required")
	}
	cli, err := mclient.NewClient(ctx, mclient.Config{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.DBName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}
	return cli, nil
}

// Repo is bound to one Milvus collection.
type Repo struct {
	cli         milvusClient
	spec        domknow.CollectionSpec
	metric      entity.MetricType
	searchParam entity.SearchParam
}

// New creates a Milvus-backed knowledge repository.
func New(cli milvusClient, spec domknow.CollectionSpec) (*Repo, error) {
	if cli == nil {
		return nil, errors.New("milvus client is nil")
	}
	metric, err := metricType(spec.Metric)
	if err != nil {
		return nil, err
	}
	sp, err := entity.NewIndexAUTOINDEXSearchParam(1)
	if err != nil {
		return nil, err
	}
	return &Repo{cli: cli, spec: spec, metric: metric, searchParam: sp}, nil
}

// Collection returns the bound collection description.
func (r *Repo) Collection() domknow.CollectionSpec { return r.spec }

// Ping checks connectivity by probing the collection.
func (r *Repo) Ping(ctx context.Context) error {
	if _, err := r.cli.HasCollection(ctx, r.spec.Name); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// Close releases the client connection.
func (r *Repo) Close() {
	_ = r.cli.Close()
}

// EnsureCollection creates and loads the collection if absent. An existing
// collection with a different vector dimension yields domain.ErrDimensionMismatch.
func (r *Repo) EnsureCollection(ctx context.Context) error {
	exists, err := r.cli.HasCollection(ctx, r.spec.Name)
	if err != nil {
		return storeErr("has collection", err)
	}

	if exists {
		coll, err := r.cli.DescribeCollection(ctx, r.spec.Name)
		if err != nil {
			return storeErr("describe collection", err)
		}
		if err := r.checkSchema(coll); err != nil {
			return err
		}
	} else {
		if err := r.cli.CreateCollection(ctx, r.schema(), entity.DefaultShardNumber); err != nil {
			return storeErr("create collection", err)
		}
		idx, err := entity.NewIndexAUTOINDEX(r.metric)
		if err != nil {
			return fmt.Errorf("build index: %w", err)
		}
		if err := r.cli.CreateIndex(ctx, r.spec.Name, fieldVector, idx, false); err != nil {
			return storeErr("create index", err)
		}
	}

	if err := r.cli.LoadCollection(ctx, r.spec.Name, false); err != nil {
		return storeErr("load collection", err)
	}
	return nil
}

func (r *Repo) checkSchema(coll *entity.Collection) error {
	if coll == nil || coll.Schema == nil {
		return fmt.Errorf("collection %s has no schema", r.spec.Name)
	}
	for _, f := range coll.Schema.Fields {
		if f.Name != fieldVector {
			continue
		}
		dim, err := strconv.Atoi(f.TypeParams[entity.TypeParamDim])
		if err != nil {
			return fmt.Errorf("parse vector dimension: %w", err)
		}
		if dim != r.spec.Dimension {
			return fmt.Errorf("%w: collection %s has dimension %d, configured %d",
				domain.ErrDimensionMismatch, r.spec.Name, dim, r.spec.Dimension)
		}
		return nil
	}
	return fmt.Errorf("collection %s has no %q field", r.spec.Name, fieldVector)
}

func (r *Repo) schema() *entity.Schema {
	return &entity.Schema{
		CollectionName: r.spec.Name,
		Description:    "ragchat knowledge base",
		Fields: []*entity.Field{
			{
				Name:       fieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{entity.TypeParamMaxLength: strconv.Itoa(maxIDLength)},
			},
			{
				Name:       fieldVector,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{entity.TypeParamDim: strconv.Itoa(r.spec.Dimension)},
			},
			{
				Name:       fieldContent,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{entity.TypeParamMaxLength: strconv.Itoa(maxContentLength)},
			},
			{
				Name:     fieldMetadata,
				DataType: entity.FieldTypeJSON,
			},
			{
				Name:       fieldTimestamp,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{entity.TypeParamMaxLength: strconv.Itoa(maxTimeLength)},
			},
		},
	}
}

// Query runs an ANN search with an optional content pre-filter.
// Results are ordered by similarity, highest first.
func (r *Repo) Query(
	ctx context.Context, vector []float32, limit int, filters filter.Expression,
) ([]result.Result, error) {
	if err := r.spec.CheckVector(vector); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDimensionMismatch, err)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", domain.ErrInvalidInput)
	}

	res, err := r.cli.Search(
		ctx,
		r.spec.Name,
		[]string{},
		BuildExpr(filters),
		outputFields,
		[]entity.Vector{entity.FloatVector(vector)},
		fieldVector,
		r.metric,
		limit,
		r.searchParam,
	)
	if err != nil {
		return nil, storeErr("search "+r.spec.Name, err)
	}
	if len(res) == 0 {
		return nil, nil
	}

	results, err := r.parseSearchResult(res[0])
	if err != nil {
		return nil, storeErr("parse search result", err)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score() > results[j].Score()
	})
	return results, nil
}

func (r *Repo) parseSearchResult(sr mclient.SearchResult) ([]result.Result, error) {
	if sr.Err != nil {
		return nil, sr.Err
	}
	if sr.ResultCount == 0 || sr.IDs == nil {
		return nil, nil
	}

	contentCol := columnByName(sr.Fields, fieldContent)
	metaCol := columnByName(sr.Fields, fieldMetadata)

	results := make([]result.Result, 0, sr.ResultCount)
	for i := 0; i < sr.ResultCount; i++ {
		id, err := sr.IDs.GetAsString(i)
		if err != nil {
			return nil, fmt.Errorf("read id %d: %w", i, err)
		}
		var score float64
		if i < len(sr.Scores) {
			score = r.similarity(float64(sr.Scores[i]))
		}
		results = append(results, result.New(id, score, stringAt(contentCol, i), metaAt(metaCol, i)))
	}
	return results, nil
}

// similarity maps a Milvus score to higher-is-better. COSINE and IP are already
// similarities; L2 is a distance.
func (r *Repo) similarity(score float64) float64 {
	if r.metric == entity.L2 {
		return 1 / (1 + score)
	}
	return score
}

// Upsert writes a document. The vector length must match the collection.
func (r *Repo) Upsert(ctx context.Context, doc domknow.Document) error {
	if err := r.spec.CheckVector(doc.Vector()); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDimensionMismatch, err)
	}
	metaJSON, err := metadata.Encode(doc.Metadata())
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	_, err = r.cli.Upsert(
		ctx,
		r.spec.Name,
		"",
		entity.NewColumnVarChar(fieldID, []string{doc.ID()}),
		entity.NewColumnFloatVector(fieldVector, r.spec.Dimension, [][]float32{doc.Vector()}),
		entity.NewColumnVarChar(fieldContent, []string{doc.Content()}),
		entity.NewColumnJSONBytes(fieldMetadata, [][]byte{metaJSON}),
		entity.NewColumnVarChar(fieldTimestamp, []string{doc.Timestamp().UTC().Format(time.RFC3339Nano)}),
	)
	if err != nil {
		return storeErr("upsert "+doc.ID(), err)
	}
	return nil
}

// Delete removes a document by id.
func (r *Repo) Delete(ctx context.Context, id string) error {
	expr := fmt.Sprintf(`%s in ["%s"]`, fieldID, escapeString(id))

	rs, err := r.cli.Query(ctx, r.spec.Name, []string{}, expr, []string{fieldID}, mclient.WithLimit(1))
	if err != nil {
		return storeErr("query "+id, err)
	}
	if col := columnByName(rs, fieldID); col == nil || col.Len() == 0 {
		return domain.ErrNotFound
	}

	if err := r.cli.Delete(ctx, r.spec.Name, "", expr); err != nil {
		return storeErr("delete "+id, err)
	}
	return nil
}

// Scroll pages through stored documents by offset.
func (r *Repo) Scroll(ctx context.Context, limit, offset int) ([]domknow.Document, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", domain.ErrInvalidInput)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", domain.ErrInvalidInput)
	}

	rs, err := r.cli.Query(
		ctx, r.spec.Name, []string{}, fieldID+` != ""`,
		[]string{fieldID, fieldContent, fieldMetadata, fieldTimestamp},
		mclient.WithLimit(int64(limit)), mclient.WithOffset(int64(offset)),
	)
	if err != nil {
		return nil, storeErr("scroll "+r.spec.Name, err)
	}

	idCol := columnByName(rs, fieldID)
	if idCol == nil {
		return []domknow.Document{}, nil
	}
	contentCol := columnByName(rs, fieldContent)
	metaCol := columnByName(rs, fieldMetadata)
	tsCol := columnByName(rs, fieldTimestamp)

	docs := make([]domknow.Document, 0, idCol.Len())
	for i := 0; i < idCol.Len(); i++ {
		docs = append(docs, domknow.Reconstruct(
			stringAt(idCol, i),
			stringAt(contentCol, i),
			metaAt(metaCol, i),
			parseTimestamp(stringAt(tsCol, i)),
			nil,
		))
	}
	return docs, nil
}

// Count returns the number of stored documents.
func (r *Repo) Count(ctx context.Context) (int, error) {
	rs, err := r.cli.Query(ctx, r.spec.Name, []string{}, "", []string{"count(*)"})
	if err != nil {
		return 0, storeErr("count "+r.spec.Name, err)
	}
	col := columnByName(rs, "count(*)")
	if col == nil || col.Len() == 0 {
		return 0, nil
	}
	n, err := col.GetAsInt64(0)
	if err != nil {
		return 0, fmt.Errorf("parse count: %w", err)
	}
	return int(n), nil
}

// BuildExpr renders a filter expression as a Milvus boolean expression:
// every token of every condition must appear in the field (infix LIKE).
// An empty expression renders as "" (no filter).
func BuildExpr(expr filter.Expression) string {
	var parts []string
	for _, cond := range expr.Must() {
		for _, tok := range cond.Tokens() {
			parts = append(parts, fmt.Sprintf(`%s like "%%%s%%"`, cond.Field(), escapeLike(tok)))
		}
	}
	return strings.Join(parts, " and ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

var stringEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func escapeString(s string) string { return stringEscaper.Replace(s) }

func metricType(name string) (entity.MetricType, error) {
	switch name {
	case "", domknow.MetricCosine:
		return entity.COSINE, nil
	case domknow.MetricL2:
		return entity.L2, nil
	case domknow.MetricIP:
		return entity.IP, nil
	}
	return "", fmt.Errorf("unsupported metric %q", name)
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

func columnByName(cols mclient.ResultSet, name string) entity.Column {
	for _, c := range cols {
		if c != nil && c.Name() == name {
			return c
		}
	}
	return nil
}

func stringAt(col entity.Column, i int) string {
	if col == nil {
		return ""
	}
	v, _ := col.GetAsString(i)
	return v
}

// metaAt reads a JSON column cell; malformed JSON becomes an empty map.
func metaAt(col entity.Column, i int) metadata.Map {
	if col == nil {
		return metadata.Map{}
	}
	v, err := col.Get(i)
	if err != nil {
		return metadata.Map{}
	}
	var raw []byte
	switch t := v.(type) {
	case []byte:
		raw = t
	case string:
		raw = []byte(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return metadata.Map{}
		}
		raw = b
	}
	m, err := metadata.Parse(raw)
	if err != nil {
		return metadata.Map{}
	}
	return m
}

func parseTimestamp(raw string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}
