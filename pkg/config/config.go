package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Gate policies accepted by RAG_GATE_POLICY.
const (
	GatePolicyIntent   = "intent"
	GatePolicyClassify = "classify"
	GatePolicyNone     = "none"
)

// LLM providers accepted by LLM_PROVIDER.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

type Config struct {
	AppName   string
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Metrics   MetricsConfig
	LLM       LLMConfig
	RAG       RAGConfig
	Upload    UploadConfig
	Chat      ChatConfig
	SignedURL SignedURLConfig
	Reindex   ReindexConfig
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Host       string
	Port       int
	Password   string
	DB         int
	DefaultTTL time.Duration
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig toggles the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// LLMConfig describes how to reach the generative backend.
type LLMConfig struct {
	Provider       string
	Host           string
	Model          string
	FallbackModels []string
	AnalysisModel  string
	Timeout        time.Duration
	OpenAIKey      string
	OpenAIBaseURL  string
}

// RAGConfig tunes chunking, indexing and context assembly.
type RAGConfig struct {
	DocumentsDir         string
	IndexDir             string
	ChunkWords           int
	WordsPerPage         int
	ChunkMaxChars        int
	ContextMaxChars      int
	TopKPerDocument      int
	GatePolicy           string
	GateConcurrency      int
	IndexReadConcurrency int
	PreviewCacheTTL      time.Duration
}

// UploadConfig bounds document uploads.
type UploadConfig struct {
	MaxBytes          int64
	TextSnapshotChars int
}

// ChatConfig bounds chat input.
type ChatConfig struct {
	MaxContentChars int
	TitleMaxChars   int
}

// SignedURLConfig configures citation download links.
type SignedURLConfig struct {
	Secret string
	TTL    time.Duration
}

// ReindexConfig sizes the background reindex worker pool.
type ReindexConfig struct {
	Workers    int
	MaxRetries int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.AppName = v.GetString("APP_NAME")
	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:            v.GetString("DB_HOST"),
		Port:            v.GetInt("DB_PORT"),
		User:            v.GetString("DB_USER"),
		Password:        v.GetString("DB_PASSWORD"),
		Name:            v.GetString("DB_NAME"),
		SSLMode:         v.GetString("DB_SSL_MODE"),
		MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
		ConnMaxLifetime: parseDuration(v.GetString("DB_CONN_MAX_LIFETIME"), time.Hour),
	}

	cfg.Redis = RedisConfig{
		Host:       v.GetString("REDIS_HOST"),
		Port:       v.GetInt("REDIS_PORT"),
		Password:   v.GetString("REDIS_PASSWORD"),
		DB:         v.GetInt("REDIS_DB"),
		DefaultTTL: parseDuration(v.GetString("REDIS_DEFAULT_TTL"), 5*time.Minute),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Metrics = MetricsConfig{
		Enabled: v.GetBool("METRICS_ENABLED"),
		Path:    v.GetString("METRICS_PATH"),
	}

	model := v.GetString("OLLAMA_MODEL")
	analysisModel := v.GetString("RAG_ANALYSIS_MODEL")
	if analysisModel == "" {
		analysisModel = model
	}
	cfg.LLM = LLMConfig{
		Provider:       strings.ToLower(v.GetString("LLM_PROVIDER")),
		Host:           strings.TrimRight(v.GetString("OLLAMA_HOST"), "/"),
		Model:          model,
		FallbackModels: splitAndTrim(v.GetString("OLLAMA_FALLBACK_ORDER")),
		AnalysisModel:  analysisModel,
		Timeout:        parseDuration(v.GetString("OLLAMA_TIMEOUT"), 60*time.Second),
		OpenAIKey:      v.GetString("OPENAI_API_KEY"),
		OpenAIBaseURL:  v.GetString("OPENAI_BASE_URL"),
	}

	cfg.RAG = RAGConfig{
		DocumentsDir:         v.GetString("DOCUMENTS_DIR"),
		IndexDir:             v.GetString("RAG_INDEX_DIR"),
		ChunkWords:           v.GetInt("RAG_CHUNK_WORDS"),
		WordsPerPage:         v.GetInt("RAG_WORDS_PER_PAGE"),
		ChunkMaxChars:        v.GetInt("RAG_CHUNK_MAX_CHARS"),
		ContextMaxChars:      v.GetInt("RAG_CONTEXT_MAX_CHARS"),
		TopKPerDocument:      v.GetInt("RAG_TOP_K_PER_DOCUMENT"),
		GatePolicy:           strings.ToLower(v.GetString("RAG_GATE_POLICY")),
		GateConcurrency:      v.GetInt("RAG_GATE_CONCURRENCY"),
		IndexReadConcurrency: v.GetInt("RAG_INDEX_READ_CONCURRENCY"),
		PreviewCacheTTL:      parseDuration(v.GetString("RAG_PREVIEW_CACHE_TTL"), 2*time.Minute),
	}

	maxUpload := v.GetInt64("UPLOAD_MAX_BYTES")
	if maxUpload <= 0 {
		maxUpload = 20 * 1024 * 1024
	}
	cfg.Upload = UploadConfig{
		MaxBytes:          maxUpload,
		TextSnapshotChars: v.GetInt("UPLOAD_TEXT_SNAPSHOT_CHARS"),
	}

	cfg.Chat = ChatConfig{
		MaxContentChars: v.GetInt("CHAT_MAX_CONTENT_CHARS"),
		TitleMaxChars:   v.GetInt("CHAT_TITLE_MAX_CHARS"),
	}

	cfg.SignedURL = SignedURLConfig{
		Secret: v.GetString("SIGNED_URL_SECRET"),
		TTL:    parseDuration(v.GetString("SIGNED_URL_TTL"), 15*time.Minute),
	}

	cfg.Reindex = ReindexConfig{
		Workers:    v.GetInt("REINDEX_WORKERS"),
		MaxRetries: v.GetInt("REINDEX_MAX_RETRIES"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "EagleDocs API")
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "eagledocs")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 10)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "1h")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_DEFAULT_TTL", "5m")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "eagledocs")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("METRICS_PATH", "/metrics")

	v.SetDefault("LLM_PROVIDER", ProviderOllama)
	v.SetDefault("OLLAMA_HOST", "http://localhost:11434")
	v.SetDefault("OLLAMA_MODEL", "gpt-oss:20b")
	v.SetDefault("OLLAMA_FALLBACK_ORDER", "")
	v.SetDefault("OLLAMA_TIMEOUT", "60s")
	v.SetDefault("RAG_ANALYSIS_MODEL", "")
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_BASE_URL", "")

	v.SetDefault("DOCUMENTS_DIR", "./data/documents")
	v.SetDefault("RAG_INDEX_DIR", "./data/rag-index")
	v.SetDefault("RAG_CHUNK_WORDS", 400)
	v.SetDefault("RAG_WORDS_PER_PAGE", 500)
	v.SetDefault("RAG_CHUNK_MAX_CHARS", 1400)
	v.SetDefault("RAG_CONTEXT_MAX_CHARS", 10000)
	v.SetDefault("RAG_TOP_K_PER_DOCUMENT", 3)
	v.SetDefault("RAG_GATE_POLICY", GatePolicyIntent)
	v.SetDefault("RAG_GATE_CONCURRENCY", 4)
	v.SetDefault("RAG_INDEX_READ_CONCURRENCY", 8)
	v.SetDefault("RAG_PREVIEW_CACHE_TTL", "2m")

	v.SetDefault("UPLOAD_MAX_BYTES", 20*1024*1024)
	v.SetDefault("UPLOAD_TEXT_SNAPSHOT_CHARS", 2000)

	v.SetDefault("CHAT_MAX_CONTENT_CHARS", 4000)
	v.SetDefault("CHAT_TITLE_MAX_CHARS", 255)

	v.SetDefault("SIGNED_URL_SECRET", "dev_documents_secret")
	v.SetDefault("SIGNED_URL_TTL", "15m")

	v.SetDefault("REINDEX_WORKERS", 2)
	v.SetDefault("REINDEX_MAX_RETRIES", 2)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
