package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/nikhilbhutani/docqa/pkg/chunker"
	"github.com/nikhilbhutani/docqa/pkg/textextract"
)

var ErrInvalidChunking = errors.New("chunk overlap must be smaller than chunk size")

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Auth        AuthConfig
	LLM         LLMConfig
	Embedding   EmbeddingConfig
	RAG         RAGConfig
	VectorStore VectorStoreConfig
	Session     SessionConfig
	Storage     StorageConfig
	Upload      UploadConfig
}

type ServerConfig struct {
	Host      string
	Port      int
	RateLimit float64 // requests per second per client; 0 disables limiting
	RateBurst int

	// CORSOrigins lists browser origins allowed to call the API; "*" allows any.
	CORSOrigins []string
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
}

type LLMConfig struct {
	OpenAIKey        string
	OpenAIBaseURL    string
	AnthropicKey     string
	OllamaURL        string
	DefaultProvider  string
	DefaultModel     string
	FallbackProvider string
	MaxRetries       int
	MaxOutputTokens  int
	Temperature      float64
	TopP             float64
}

type EmbeddingConfig struct {
	Provider  string // "openai" or "ollama"
	Model     string
	Dimension int
	CacheTTL  time.Duration // 0 disables the redis query-embedding cache
}

type RAGConfig struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
	MinScore     float64
}

type VectorStoreConfig struct {
	Backend    string // "pgvector", "qdrant" or "memory"
	QdrantHost string
	QdrantPort int
	Collection string
}

type SessionConfig struct {
	Backend string // "file" or "redis"
	Dir     string
	TTL     time.Duration // redis only; 0 keeps sessions until deleted
}

type StorageConfig struct {
	Backend     string // "local" or "supabase"
	SupabaseURL string
	SupabaseKey string
	Bucket      string
}

type UploadConfig struct {
	Dir               string
	MetadataDir       string
	MaxContentLength  int64
	AllowedExtensions []string
}

func Load() (*Config, error) {
	// A missing .env file is fine; the process environment still applies.
	_ = godotenv.Load()

	port, err := getEnvInt("SERVER_PORT", 5000)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	rateLimit, err := getEnvFloat("RATE_LIMIT_RPS", 100)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	rateBurst, err := getEnvInt("RATE_LIMIT_BURST", 200)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxRetries, err := getEnvInt("LLM_MAX_RETRIES", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
	}

	maxOutputTokens, err := getEnvInt("MAX_OUTPUT_TOKENS", 1024)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_OUTPUT_TOKENS: %w", err)
	}

	temperature, err := getEnvFloat("LLM_TEMPERATURE", 0.2)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_TEMPERATURE: %w", err)
	}

	topP, err := getEnvFloat("LLM_TOP_P", 0.95)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_TOP_P: %w", err)
	}

	dimension, err := getEnvInt("EMBEDDING_DIMENSION", 1536)
	if err != nil {
		return nil, fmt.Errorf("invalid EMBEDDING_DIMENSION: %w", err)
	}

	embedCacheTTL, err := getEnvDuration("EMBEDDING_CACHE_TTL", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid EMBEDDING_CACHE_TTL: %w", err)
	}

	chunking := chunker.DefaultOptions()
	chunkSize, err := getEnvInt("CHUNK_SIZE", chunking.ChunkSize)
	if err != nil {
		return nil, fmt.Errorf("invalid CHUNK_SIZE: %w", err)
	}

	chunkOverlap, err := getEnvInt("CHUNK_OVERLAP", chunking.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("invalid CHUNK_OVERLAP: %w", err)
	}

	topK, err := getEnvInt("RAG_TOP_K", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid RAG_TOP_K: %w", err)
	}

	minScore, err := getEnvFloat("RAG_MIN_SCORE", 0.1)
	if err != nil {
		return nil, fmt.Errorf("invalid RAG_MIN_SCORE: %w", err)
	}

	qdrantPort, err := getEnvInt("QDRANT_PORT", 6334)
	if err != nil {
		return nil, fmt.Errorf("invalid QDRANT_PORT: %w", err)
	}

	sessionTTL, err := getEnvDuration("SESSION_TTL", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
	}

	maxContentLength, err := getEnvInt("MAX_CONTENT_LENGTH", 16<<20)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_CONTENT_LENGTH: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			Port:        port,
			RateLimit:   rateLimit,
			RateBurst:   rateBurst,
			CORSOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		LLM: LLMConfig{
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			OllamaURL:        getEnv("OLLAMA_URL", ""),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "openai"),
			DefaultModel:     getEnv("LLM_DEFAULT_MODEL", "gpt-4o-mini"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			MaxRetries:       maxRetries,
			MaxOutputTokens:  maxOutputTokens,
			Temperature:      temperature,
			TopP:             topP,
		},
		Embedding: EmbeddingConfig{
			Provider:  getEnv("EMBEDDING_PROVIDER", "openai"),
			Model:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimension: dimension,
			CacheTTL:  embedCacheTTL,
		},
		RAG: RAGConfig{
			ChunkSize:    chunkSize,
			ChunkOverlap: chunkOverlap,
			TopK:         topK,
			MinScore:     minScore,
		},
		VectorStore: VectorStoreConfig{
			Backend:    getEnv("VECTOR_BACKEND", "pgvector"),
			QdrantHost: getEnv("QDRANT_HOST", "localhost"),
			QdrantPort: qdrantPort,
			Collection: getEnv("VECTOR_COLLECTION", "documents"),
		},
		Session: SessionConfig{
			Backend: getEnv("SESSION_BACKEND", "file"),
			Dir:     getEnv("SESSIONS_DIR", "static/json"),
			TTL:     sessionTTL,
		},
		Storage: StorageConfig{
			Backend:     getEnv("STORAGE_BACKEND", "local"),
			SupabaseURL: getEnv("SUPABASE_URL", ""),
			SupabaseKey: getEnv("SUPABASE_SERVICE_KEY", ""),
			Bucket:      getEnv("STORAGE_BUCKET", "documents"),
		},
		Upload: UploadConfig{
			Dir:               getEnv("UPLOAD_FOLDER", "static/assets/uploads"),
			MetadataDir:       getEnv("VECTORDB_PATH", "data"),
			MaxContentLength:  int64(maxContentLength),
			AllowedExtensions: extensions(getEnvList("ALLOWED_EXTENSIONS", []string{"pdf"})),
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate rejects configurations the core cannot run with. The chunk
// overlap check guards the chunker's stride against becoming non-positive.
func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE=%d", ErrInvalidChunking, c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("%w: CHUNK_SIZE=%d CHUNK_OVERLAP=%d", ErrInvalidChunking, c.RAG.ChunkSize, c.RAG.ChunkOverlap)
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("RAG_TOP_K must be positive, got %d", c.RAG.TopK)
	}
	if c.RAG.MinScore < 0 || c.RAG.MinScore >= 1 {
		return fmt.Errorf("RAG_MIN_SCORE must be in [0,1), got %g", c.RAG.MinScore)
	}
	for _, ext := range c.Upload.AllowedExtensions {
		if !slices.Contains(textextract.SupportedTypes(), ext) {
			return fmt.Errorf("ALLOWED_EXTENSIONS: no text extractor for %q", ext)
		}
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSION must be positive, got %d", c.Embedding.Dimension)
	}

	var missing []string
	switch c.VectorStore.Backend {
	case "pgvector":
		if c.Database.URL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case "qdrant":
		if c.VectorStore.QdrantHost == "" {
			missing = append(missing, "QDRANT_HOST")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown VECTOR_BACKEND %q", c.VectorStore.Backend)
	}

	switch c.Session.Backend {
	case "file":
	case "redis":
		if c.Redis.Addr == "" {
			missing = append(missing, "REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.Session.Backend)
	}

	if c.Storage.Backend == "supabase" && (c.Storage.SupabaseURL == "" || c.Storage.SupabaseKey == "") {
		missing = append(missing, "SUPABASE_URL", "SUPABASE_SERVICE_KEY")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// extensions normalizes ".PDF" and "pdf" to "pdf".
func extensions(in []string) []string {
	out := make([]string, 0, len(in))
	for _, ext := range in {
		out = append(out, strings.TrimPrefix(strings.ToLower(ext), "."))
	}
	return out
}
