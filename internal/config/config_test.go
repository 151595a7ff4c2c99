package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_InvalidDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = "qdrant"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}

	expected := `database.driver must be valkey, redis or milvus, got "qdrant"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_ValidDrivers(t *testing.T) {
	for _, driver := range []string{DriverValkey, DriverRedis, DriverMilvus} {
		t.Run("driver="+driver, func(t *testing.T) {
			cfg := validConfig()
			cfg.Database.Driver = driver

			if err := cfg.Validate(); err != nil {
				t.Fatalf("unexpected error for driver %q: %v", driver, err)
			}
		})
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Addrs = nil

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing addrs")
	}
}

func TestValidate_InvalidMetric(t *testing.T) {
	cfg := validConfig()
	cfg.Collection.Metric = "hamming"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported metric")
	}
}

func TestValidate_InvalidAlgorithm(t *testing.T) {
	cfg := validConfig()
	cfg.Collection.Algorithm = "ivf"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported algorithm")
	}
}

func TestValidate_DefaultLimitAboveMax(t *testing.T) {
	cfg := validConfig()
	cfg.Search.DefaultLimit = 50
	cfg.Search.MaxLimit = 20

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when default_limit exceeds max_limit")
	}
}

func TestValidate_TextDiscountAboveOne(t *testing.T) {
	cfg := validConfig()
	cfg.Search.TextDiscount = 1.5

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for text_discount > 1")
	}
}

func TestValidate_CacheRequiresKVStore(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = DriverMilvus
	cfg.Embedding.Cache = true

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for embedding cache on milvus")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 120 {
		t.Errorf("expected WriteTimeoutSec=120, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Database.Driver != DriverValkey {
		t.Errorf("expected Driver=valkey, got %q", cfg.Database.Driver)
	}
	if cfg.Database.KeyPrefix != "ragchat:" {
		t.Errorf("expected KeyPrefix='ragchat:', got %q", cfg.Database.KeyPrefix)
	}
	if cfg.Collection.Name != "knowledge-base" {
		t.Errorf("expected collection name knowledge-base, got %q", cfg.Collection.Name)
	}
	if cfg.Collection.Dimensions != 1536 {
		t.Errorf("expected Dimensions=1536, got %d", cfg.Collection.Dimensions)
	}
	if cfg.Collection.Metric != "cosine" {
		t.Errorf("expected Metric=cosine, got %q", cfg.Collection.Metric)
	}
	if cfg.Collection.Algorithm != "hnsw" {
		t.Errorf("expected Algorithm=hnsw, got %q", cfg.Collection.Algorithm)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("expected embedding model text-embedding-3-small, got %q", cfg.Embedding.Model)
	}
	if cfg.LLM.Model != "gpt-3.5-turbo" {
		t.Errorf("expected llm model gpt-3.5-turbo, got %q", cfg.LLM.Model)
	}
	if cfg.LLM.Temperature != 0.7 {
		t.Errorf("expected Temperature=0.7, got %v", cfg.LLM.Temperature)
	}
	if cfg.LLM.MaxTokens != 2000 {
		t.Errorf("expected MaxTokens=2000, got %d", cfg.LLM.MaxTokens)
	}
	if cfg.Search.DefaultLimit != 10 {
		t.Errorf("expected DefaultLimit=10, got %d", cfg.Search.DefaultLimit)
	}
	if cfg.Search.TextDiscount != 0.8 {
		t.Errorf("expected TextDiscount=0.8, got %v", cfg.Search.TextDiscount)
	}
	if cfg.Knowledge.DefaultListLimit != 100 {
		t.Errorf("expected DefaultListLimit=100, got %d", cfg.Knowledge.DefaultListLimit)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 || cfg.CORS.AllowedOrigins[0] != "*" {
		t.Errorf("expected wildcard CORS origin, got %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Logging.MaxSizeMB != 0 {
		t.Errorf("rotation defaults must stay unset without a log file, got %d", cfg.Logging.MaxSizeMB)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:       HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Database:   DatabaseConfig{Driver: DriverMilvus, KeyPrefix: "custom:"},
		Collection: CollectionConfig{Name: "kb", Dimensions: 1024},
		Embedding:  EmbeddingConfig{APIKey: "emb-key"},
		LLM:        LLMConfig{APIKey: "llm-key"},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Database.Driver != DriverMilvus {
		t.Errorf("expected Driver=milvus, got %q", cfg.Database.Driver)
	}
	if cfg.Collection.Dimensions != 1024 {
		t.Errorf("expected Dimensions=1024, got %d", cfg.Collection.Dimensions)
	}
	if cfg.LLM.APIKey != "llm-key" {
		t.Errorf("expected llm key to be kept, got %q", cfg.LLM.APIKey)
	}
}

func TestApplyDefaults_LLMInheritsEmbeddingCredentials(t *testing.T) {
	cfg := Config{Embedding: EmbeddingConfig{APIKey: "shared", BaseURL: "https://api.example.com/v1"}}
	cfg.ApplyDefaults()

	if cfg.LLM.APIKey != "shared" {
		t.Errorf("expected llm api key 'shared', got %q", cfg.LLM.APIKey)
	}
	if cfg.LLM.BaseURL != "https://api.example.com/v1" {
		t.Errorf("expected llm base url to be inherited, got %q", cfg.LLM.BaseURL)
	}
}

func TestApplyDefaults_LogRotation(t *testing.T) {
	cfg := Config{Logging: LoggingConfig{File: "/var/log/ragchat.log"}}
	cfg.ApplyDefaults()

	if cfg.Logging.MaxSizeMB != 100 || cfg.Logging.MaxBackups != 5 || cfg.Logging.MaxAgeDays != 30 {
		t.Errorf("unexpected rotation defaults: %+v", cfg.Logging)
	}
}

func TestParse_ExpandsEnvVars(t *testing.T) {
	t.Setenv("RAGCHAT_TEST_KEY", "sk-test")

	doc := []byte(`
http:
  port: ${RAGCHAT_TEST_PORT:-9090}
database:
  addrs: ["localhost:6379"]
embedding:
  api_key: ${RAGCHAT_TEST_KEY}
`)
	cfg, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected port 9090 from default, got %d", cfg.HTTP.Port)
	}
	if cfg.Embedding.APIKey != "sk-test" {
		t.Errorf("expected api key from env, got %q", cfg.Embedding.APIKey)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("http: [unclosed"))
	if err == nil || !strings.Contains(err.Error(), "failed to parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestParse_ValidationError(t *testing.T) {
	_, err := Parse([]byte("http:\n  port: 8080\n"))
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("expected validation error, got %v", err)
	}
}
