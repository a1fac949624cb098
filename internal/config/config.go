package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

// DatabaseConfig selects the relational store. Driver is "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	Path            string        `mapstructure:"path"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogLevel        string        `mapstructure:"log_level"`
}

// DSN returns the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return c.URL
	}
	return c.Path
}

// WorkerConfig controls one batch runner invocation and the handlers it drives.
type WorkerConfig struct {
	MaxJobs          int    `mapstructure:"max_jobs"`
	FetchLimit       int    `mapstructure:"fetch_limit"`
	ChunkSize        int    `mapstructure:"chunk_size"`
	ChunkOverlap     int    `mapstructure:"chunk_overlap"`
	MinContentLength int    `mapstructure:"min_content_length"`
	TargetCategory   string `mapstructure:"target_category"`
	ErrorMaxLength   int    `mapstructure:"error_max_length"`
	// SummaryFallbackChars bounds the full-text excerpt used when a bill has no summary.
	SummaryFallbackChars int `mapstructure:"summary_fallback_chars"`
	// ProfileSampleSize bounds the contributions sampled for a donor's employer/occupation.
	ProfileSampleSize int `mapstructure:"profile_sample_size"`
}

// Validate checks the numeric limits of the worker.
func (c *WorkerConfig) Validate() error {
	if c.MaxJobs <= 0 {
		return fmt.Errorf("worker: max_jobs must be positive")
	}
	if c.FetchLimit <= 0 {
		return fmt.Errorf("worker: fetch_limit must be positive")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("worker: chunk_size must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("worker: chunk_overlap must be in [0, chunk_size)")
	}
	if c.MinContentLength < 0 {
		return fmt.Errorf("worker: min_content_length must not be negative")
	}
	if c.TargetCategory == "" {
		return fmt.Errorf("worker: target_category is required")
	}
	if c.ErrorMaxLength <= 0 {
		return fmt.Errorf("worker: error_max_length must be positive")
	}
	if c.SummaryFallbackChars <= 0 {
		return fmt.Errorf("worker: summary_fallback_chars must be positive")
	}
	if c.ProfileSampleSize <= 0 {
		return fmt.Errorf("worker: profile_sample_size must be positive")
	}
	return nil
}

type QdrantConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
}

// StorageConfig configures the S3-compatible bucket holding bill full texts.
type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate checks everything except the embedding credential, which is verified
// separately so the API server can still come up without it.
func (c *Config) Validate() error {
	if err := c.Worker.Validate(); err != nil {
		return err
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database: url is required for postgres")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database: path is required for sqlite")
		}
	default:
		return fmt.Errorf("database: unknown driver %q", c.Database.Driver)
	}
	return nil
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("embedding.api_key", "EMBEDDING_API_KEY", "OPENAI_API_KEY")
	v.BindEnv("embedding.base_url", "EMBEDDING_BASE_URL")
	v.BindEnv("embedding.model", "EMBEDDING_MODEL")
	v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.format", "LOG_FORMAT")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.path", "./data/civicembed.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("embedding.provider", "openai-compatible")
	v.SetDefault("embedding.model", DefaultEmbeddingModel)
	v.SetDefault("embedding.base_url", DefaultEmbeddingBaseURL)
	v.SetDefault("embedding.dimensions", DefaultEmbeddingDimensions)
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("embedding.max_attempts", 5)
	v.SetDefault("embedding.base_delay", 500*time.Millisecond)
	v.SetDefault("embedding.max_delay", 8*time.Second)
	v.SetDefault("embedding.timeout", 60*time.Second)
	v.SetDefault("embedding.requests_per_second", 0.0)

	v.SetDefault("worker.max_jobs", 100)
	v.SetDefault("worker.fetch_limit", 25)
	v.SetDefault("worker.chunk_size", 1400)
	v.SetDefault("worker.chunk_overlap", 200)
	v.SetDefault("worker.min_content_length", 20)
	v.SetDefault("worker.target_category", "individual")
	v.SetDefault("worker.error_max_length", 500)
	v.SetDefault("worker.summary_fallback_chars", 1800)
	v.SetDefault("worker.profile_sample_size", 200)

	v.SetDefault("qdrant.enabled", false)
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection", "civic_embeddings")

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.bucket", "bill-texts")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
