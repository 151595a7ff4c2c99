package ragchat

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragchat/internal/backend"
	"github.com/kailas-cloud/ragchat/internal/db"
)

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	driver       string
	addrs        []string
	username     string
	password     string
	keyPrefix    string
	collection   string
	dimensions   int
	metric       string
	algorithm    db.VectorAlgorithm
	hnswM        int
	hnswEF       int
	embedder     Embedder
	openai       *openAIConfig
	cache        bool
	defaultLimit int
	maxLimit     int
	discount     float64
	maxBatchSize int
	logger       *zap.Logger
	metricsReg   prometheus.Registerer
}

type openAIConfig struct {
	apiKey  string
	baseURL string
	model   string
}

func defaultConfig() *clientConfig {
	return &clientConfig{
		keyPrefix:  "ragchat:",
		collection: "knowledge-base",
		dimensions: 1536,
		metric:     "cosine",
	}
}

// WithValkey uses a Valkey server with valkey-search. Text matching is not
// available there, so searches run vector-only.
func WithValkey(addr, password string) Option {
	return func(c *clientConfig) {
		c.driver = backend.DriverValkey
		c.addrs = []string{addr}
		c.password = password
	}
}

// WithRedis uses a Redis 8+ server with the Query Engine.
func WithRedis(addr, password string) Option {
	return func(c *clientConfig) {
		c.driver = backend.DriverRedis
		c.addrs = []string{addr}
		c.password = password
	}
}

// WithMilvus uses a Milvus server.
func WithMilvus(addr, username, password string) Option {
	return func(c *clientConfig) {
		c.driver = backend.DriverMilvus
		c.addrs = []string{addr}
		c.username = username
		c.password = password
	}
}

// WithCollection names the knowledge collection and its vector dimension.
func WithCollection(name string, dimensions int) Option {
	return func(c *clientConfig) {
		c.collection = name
		c.dimensions = dimensions
	}
}

// WithMetric sets the distance metric: cosine (default), l2 or ip.
func WithMetric(metric string) Option {
	return func(c *clientConfig) { c.metric = metric }
}

// WithKeyPrefix sets the key namespace on Valkey/Redis.
func WithKeyPrefix(prefix string) Option {
	return func(c *clientConfig) { c.keyPrefix = prefix }
}

// WithHNSW sets HNSW index parameters for Valkey/Redis.
func WithHNSW(m, efConstruction int) Option {
	return func(c *clientConfig) {
		c.hnswM = m
		c.hnswEF = efConstruction
	}
}

// WithFlatIndex builds the Valkey/Redis vector field with FLAT instead of HNSW.
// It only affects a collection created by this client.
func WithFlatIndex() Option {
	return func(c *clientConfig) { c.algorithm = db.VectorFlat }
}

// WithEmbedder plugs in a custom embedding provider.
func WithEmbedder(e Embedder) Option {
	return func(c *clientConfig) { c.embedder = e }
}

// WithOpenAI uses an OpenAI-compatible embeddings endpoint. An empty baseURL
// selects the OpenAI default.
func WithOpenAI(apiKey, baseURL, model string) Option {
	return func(c *clientConfig) {
		c.openai = &openAIConfig{apiKey: apiKey, baseURL: baseURL, model: model}
	}
}

// WithEmbeddingCache memoizes vectors in the Valkey/Redis store. Ignored on Milvus.
func WithEmbeddingCache() Option {
	return func(c *clientConfig) { c.cache = true }
}

// WithSearchLimits sets the default and maximum hybrid search limit.
func WithSearchLimits(defaultLimit, maxLimit int) Option {
	return func(c *clientConfig) {
		c.defaultLimit = defaultLimit
		c.maxLimit = maxLimit
	}
}

// WithTextDiscount sets the factor applied to text-only hits during fusion.
func WithTextDiscount(d float64) Option {
	return func(c *clientConfig) { c.discount = d }
}

// WithMaxBatchSize caps AddKnowledgeBatch.
func WithMaxBatchSize(n int) Option {
	return func(c *clientConfig) { c.maxBatchSize = n }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = l }
}

// WithPrometheus registers SDK operation metrics on reg. Disabled by default.
func WithPrometheus(reg prometheus.Registerer) Option {
	return func(c *clientConfig) { c.metricsReg = reg }
}
