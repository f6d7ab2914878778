package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resume-gpt/internal/ai"
	"github.com/spigell/resume-gpt/internal/ai/gemini"
	"github.com/spigell/resume-gpt/internal/ai/huggingface"
	"github.com/spigell/resume-gpt/internal/ai/openai"
	"github.com/spigell/resume-gpt/internal/ai/stub"
	"github.com/spigell/resume-gpt/internal/analyzer"
	"github.com/spigell/resume-gpt/internal/cache"
	"github.com/spigell/resume-gpt/internal/extraction"
	"github.com/spigell/resume-gpt/internal/matching"
	"github.com/spigell/resume-gpt/internal/secrets"
	"github.com/spigell/resume-gpt/internal/storage"
)

type Config struct {
	Generation *GenerationConfig `mapstructure:"generation"`
	Embedding  *EmbeddingConfig  `mapstructure:"embedding"`
	Matching   *MatchingConfig   `mapstructure:"matching"`
	Cache      *CacheConfig      `mapstructure:"cache"`
	Database   *DatabaseConfig   `mapstructure:"database"`
	Server     *ServerConfig     `mapstructure:"server"`
	Uploads    *UploadsConfig    `mapstructure:"uploads"`
}

type GenerationConfig struct {
	Provider     string        `mapstructure:"provider"`
	Model        string        `mapstructure:"model"`
	BaseURL      string        `mapstructure:"base-url"`
	APIKey       string        `mapstructure:"api-key"`
	APIKeyFile   string        `mapstructure:"api-key-file"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max-retries"`
	MaxLogLength int           `mapstructure:"max-log-length"`
}

type EmbeddingConfig struct {
	Provider  string        `mapstructure:"provider"`
	Model     string        `mapstructure:"model"`
	URL       string        `mapstructure:"url"`
	Token     string        `mapstructure:"token"`
	TokenFile string        `mapstructure:"token-file"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type MatchingConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity-threshold"`
}

type CacheConfig struct {
	Enabled bool              `mapstructure:"enabled"`
	TTL     time.Duration     `mapstructure:"ttl"`
	Redis   cache.RedisConfig `mapstructure:"redis"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type UploadsConfig struct {
	// Dir keeps uploaded resume files. Empty disables storing them.
	Dir string `mapstructure:"dir"`
}

const (
	providerGroq        = "groq"
	providerOpenAI      = "openai"
	providerGemini      = "gemini"
	providerHuggingFace = "huggingface"
	providerStub        = "stub"
)

// Skills the offline stub generator recognizes.
var (
	stubTechnicalSkills = []string{
		"Go", "Python", "Java", "JavaScript", "TypeScript", "React", "Node.js",
		"SQL", "PostgreSQL", "MySQL", "Redis", "Kafka", "Docker", "Kubernetes",
		"Terraform", "AWS", "GCP", "Linux", "Git", "gRPC", "REST",
	}
	stubSoftSkills = []string{
		"Communication", "Teamwork", "Leadership", "Mentoring",
		"Problem solving", "Ownership", "Time management",
	}
)

func setDefaults() {
	viper.SetDefault("generation.provider", providerGroq)
	viper.SetDefault("generation.timeout", "30s")
	viper.SetDefault("generation.max-retries", 2)
	viper.SetDefault("generation.max-log-length", 200)
	viper.SetDefault("embedding.provider", providerHuggingFace)
	viper.SetDefault("embedding.timeout", "30s")
	viper.SetDefault("matching.similarity-threshold", matching.DefaultThreshold)
	viper.SetDefault("cache.enabled", false)
	viper.SetDefault("cache.ttl", "24h")
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("server.address", ":8000")
	viper.SetDefault("uploads.dir", "uploads")
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config == nil {
		config = &Config{}
	}
	if config.Generation == nil {
		config.Generation = &GenerationConfig{}
	}
	if config.Embedding == nil {
		config.Embedding = &EmbeddingConfig{}
	}
	if config.Matching == nil {
		config.Matching = &MatchingConfig{}
	}
	if config.Cache == nil {
		config.Cache = &CacheConfig{}
	}
	if config.Database == nil {
		config.Database = &DatabaseConfig{}
	}
	if config.Server == nil {
		config.Server = &ServerConfig{}
	}
	if config.Uploads == nil {
		config.Uploads = &UploadsConfig{}
	}

	return config, nil
}

func normalizeProvider(p, fallback string) string {
	p = strings.TrimSpace(strings.ToLower(p))
	if p == "" {
		return fallback
	}
	return p
}

func newGenerator(ctx context.Context, cfg *GenerationConfig, logger *zap.Logger) (ai.Generator, error) {
	provider := normalizeProvider(cfg.Provider, providerGroq)

	keyEnv := map[string]string{
		providerGroq:   "GROQ_API_KEY",
		providerOpenAI: "OPENAI_API_KEY",
		providerGemini: "GEMINI_API_KEY",
	}

	switch provider {
	case providerStub:
		return stub.NewGenerator(stub.KeywordResponder(stubTechnicalSkills, stubSoftSkills,
			"Describe measurable results for every skill the job description asks for.")), nil
	case providerGroq, providerOpenAI:
		apiKey, err := secrets.Load(secrets.Source{
			Name:  provider + " api key",
			File:  cfg.APIKeyFile,
			Env:   keyEnv[provider],
			Value: cfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set generation.api-key-file or %s)", err, keyEnv[provider])
		}

		baseURL, model := cfg.BaseURL, cfg.Model
		if provider == providerGroq {
			if baseURL == "" {
				baseURL = openai.GroqBaseURL
			}
			if model == "" {
				model = openai.DefaultGroqModel
			}
		}

		return openai.NewGenerator(openai.Config{
			APIKey:     apiKey,
			BaseURL:    baseURL,
			Model:      model,
			MaxRetries: cfg.MaxRetries,
		}, logger)
	case providerGemini:
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			File:  cfg.APIKeyFile,
			Env:   keyEnv[provider],
			Value: cfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set generation.api-key-file or GEMINI_API_KEY)", err)
		}

		return gemini.NewGenerator(ctx, apiKey, cfg.Model, cfg.MaxRetries, logger)
	default:
		return nil, fmt.Errorf("unsupported generation provider: %s", cfg.Provider)
	}
}

func newEmbedder(cfg *EmbeddingConfig, logger *zap.Logger) (ai.Embedder, error) {
	provider := normalizeProvider(cfg.Provider, providerHuggingFace)

	switch provider {
	case providerStub:
		return &stub.Embedder{Fallback: stub.Trigrams, ModelName: "trigrams"}, nil
	case providerHuggingFace:
		token, err := secrets.Load(secrets.Source{
			Name:  "hugging face token",
			File:  cfg.TokenFile,
			Env:   "HF_TOKEN",
			Value: cfg.Token,
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set embedding.token-file or HF_TOKEN)", err)
		}

		client := huggingface.New(token, cfg.Model, cfg.Timeout, logger)
		if cfg.URL != "" {
			client.URL = cfg.URL
		}
		return client, nil
	case providerOpenAI:
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "openai api key",
			File:  cfg.TokenFile,
			Env:   "OPENAI_API_KEY",
			Value: cfg.Token,
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set embedding.token-file or OPENAI_API_KEY)", err)
		}

		return openai.NewEmbedder(openai.Config{
			APIKey:  apiKey,
			BaseURL: cfg.URL,
			Model:   cfg.Model,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// newCacheStore returns nil when caching is disabled.
func newCacheStore(ctx context.Context, cfg *CacheConfig, logger *zap.Logger) (cache.Store, func(), error) {
	if !cfg.Enabled {
		return nil, func() {}, nil
	}

	if cfg.Redis.Address == "" {
		logger.Info("caching in memory", zap.String("hint", "set cache.redis.address or REDIS_ADDR to share the cache"))
		return cache.NewMemoryStore(), func() {}, nil
	}

	store, err := cache.NewRedisStore(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("caching in redis", zap.String("address", cfg.Redis.Address))
	return store, func() { _ = store.Close() }, nil
}

func newMatcher(ctx context.Context, config *Config, logger *zap.Logger) (*matching.Matcher, func(), error) {
	generator, err := newGenerator(ctx, config.Generation, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("building generator: %w", err)
	}

	embedder, err := newEmbedder(config.Embedding, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("building embedder: %w", err)
	}

	store, closeCache, err := newCacheStore(ctx, config.Cache, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("building cache: %w", err)
	}

	skillExtractor := extraction.New(generator, config.Generation.Timeout, config.Generation.MaxLogLength, logger)

	var extractor matching.Extractor = skillExtractor
	if store != nil {
		extractor = cache.NewExtractor(skillExtractor, store, config.Cache.TTL, logger)
		embedder = cache.NewEmbedder(embedder, store, config.Cache.TTL, logger)
	}

	matcher := matching.New(extractor, embedder, generator, matching.Options{
		Threshold:         config.Matching.SimilarityThreshold,
		EmbeddingTimeout:  config.Embedding.Timeout,
		GenerationTimeout: config.Generation.Timeout,
		MaxLogLength:      config.Generation.MaxLogLength,
	}, logger)

	logger.Debug("matcher ready",
		zap.String("generator", generator.Model()),
		zap.String("embedder", embedder.Model()),
		zap.Float64("similarity_threshold", matcher.Threshold()),
	)

	return matcher, closeCache, nil
}

// openStore returns a nil Store when no database is configured.
func openStore(config *Config, logger *zap.Logger) (analyzer.Store, func(), error) {
	if config.Database.DSN == "" {
		return nil, func() {}, nil
	}

	store, err := storage.Open(config.Database.DSN, viper.GetBool("debug"), logger)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

var errNoDatabase = errors.New("database is not configured (set database.dsn or DATABASE_URL)")

func newService(ctx context.Context, config *Config, store analyzer.Store, logger *zap.Logger) (*analyzer.Service, func(), error) {
	matcher, closeMatcher, err := newMatcher(ctx, config, logger)
	if err != nil {
		return nil, nil, err
	}

	return analyzer.New(matcher, store, logger), closeMatcher, nil
}
