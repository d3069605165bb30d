package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/soundprediction/linkpath/pkg/types"
)

// Config holds all configuration for the application
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Search configuration
	Search SearchConfig `mapstructure:"search"`

	// Classifier configuration
	Classifier ClassifierConfig `mapstructure:"classifier"`

	// Cache configuration
	Cache CacheConfig `mapstructure:"cache"`

	// Wiki transport configuration
	Wiki WikiConfig `mapstructure:"wiki"`

	// Alert configuration
	Alert AlertConfig `mapstructure:"alert"`

	// CircuitBreaker configuration
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// AlertConfig holds configuration for alerting
type AlertConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	SMTPHost string   `mapstructure:"smtp_host" validate:"required_if=Enabled true"`
	SMTPPort int      `mapstructure:"smtp_port" validate:"gte=0,lte=65535"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// CircuitBreakerConfig holds configuration for circuit breaking
type CircuitBreakerConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"` // in seconds
	Timeout          int     `mapstructure:"timeout"`  // in seconds
	ReadyToTripRatio float64 `mapstructure:"ready_to_trip_ratio" validate:"gte=0,lte=1"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"gte=1,lte=65535"`
	Mode string `mapstructure:"mode" validate:"oneof=debug release test"` // gin mode
}

// SearchConfig holds path search configuration
type SearchConfig struct {
	MaxDepth         int `mapstructure:"max_depth" validate:"gte=0,lte=10"`
	LayerConcurrency int `mapstructure:"layer_concurrency" validate:"gte=1"`
}

// ClassifierConfig holds configuration for the batched person classifier
type ClassifierConfig struct {
	ChunkSize   int           `mapstructure:"chunk_size" validate:"gte=1,lte=50"`
	Concurrency int           `mapstructure:"concurrency" validate:"gte=1"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// CacheConfig holds cache backend and TTL configuration
type CacheConfig struct {
	Backend           string        `mapstructure:"backend" validate:"oneof=memory badger"`
	NeighborsTTL      time.Duration `mapstructure:"neighbors_ttl"`
	ExternalIDTTL     time.Duration `mapstructure:"external_id_ttl"`
	ClassificationTTL time.Duration `mapstructure:"classification_ttl"`
}

// WikiConfig holds configuration for the MediaWiki and Wikidata transports
type WikiConfig struct {
	APIURL            string        `mapstructure:"api_url" validate:"required,url"`
	WikidataURL       string        `mapstructure:"wikidata_url" validate:"required,url"`
	UserAgent         string        `mapstructure:"user_agent"`
	LinksTimeout      time.Duration `mapstructure:"links_timeout" validate:"gt=0"`
	PagePropsTimeout  time.Duration `mapstructure:"pageprops_timeout" validate:"gt=0"`
	ResolveTimeout    time.Duration `mapstructure:"resolve_timeout" validate:"gt=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"` // 0 disables rate limiting
	Burst             int           `mapstructure:"burst" validate:"gte=0"`
	MaxRetries        int           `mapstructure:"max_retries" validate:"gte=0"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	// Fixture is a YAML graph served instead of the live services.
	Fixture string `mapstructure:"fixture"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Set defaults
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Override with environment variables if present
	if err := overrideWithEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks every field constraint and reports the first violation as
// a *types.ConfigurationError.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return types.NewConfigurationError(fe.Namespace(), fmt.Sprintf("value %v fails %q", fe.Value(), fe.Tag()))
	}
	return types.NewConfigurationError("config", err.Error())
}

// setDefaults sets default configuration values
func setDefaults() {
	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	// Server defaults
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 3000)
	viper.SetDefault("server.mode", "release")

	// Search defaults
	viper.SetDefault("search.max_depth", 4)
	viper.SetDefault("search.layer_concurrency", 6)

	// Classifier defaults
	viper.SetDefault("classifier.chunk_size", 50)
	viper.SetDefault("classifier.concurrency", 6)
	viper.SetDefault("classifier.timeout", 15*time.Second)

	// Cache defaults
	viper.SetDefault("cache.backend", "memory")
	viper.SetDefault("cache.neighbors_ttl", time.Hour)
	viper.SetDefault("cache.external_id_ttl", 24*time.Hour)
	viper.SetDefault("cache.classification_ttl", 24*time.Hour)

	// Wiki defaults
	viper.SetDefault("wiki.api_url", "https://en.wikipedia.org/w/api.php")
	viper.SetDefault("wiki.wikidata_url", "https://www.wikidata.org/w/api.php")
	viper.SetDefault("wiki.user_agent", "linkpath/1.0 (https://github.com/soundprediction/linkpath)")
	viper.SetDefault("wiki.links_timeout", 20*time.Second)
	viper.SetDefault("wiki.pageprops_timeout", 15*time.Second)
	viper.SetDefault("wiki.resolve_timeout", 10*time.Second)
	viper.SetDefault("wiki.requests_per_second", 20.0)
	viper.SetDefault("wiki.burst", 10)
	viper.SetDefault("wiki.max_retries", 2)
	viper.SetDefault("wiki.initial_backoff", 500*time.Millisecond)
	viper.SetDefault("wiki.max_backoff", 5*time.Second)

	// Circuit breaker defaults
	viper.SetDefault("circuit_breaker.enabled", true)
	viper.SetDefault("circuit_breaker.max_requests", 1)
	viper.SetDefault("circuit_breaker.interval", 60)
	viper.SetDefault("circuit_breaker.timeout", 30)
	viper.SetDefault("circuit_breaker.ready_to_trip_ratio", 0.6)

	// Alert defaults
	viper.SetDefault("alert.enabled", false)
	viper.SetDefault("alert.smtp_port", 587)
}

// overrideWithEnv overrides config with environment variables
func overrideWithEnv(config *Config) error {
	// Remote services
	if api := os.Getenv("WIKI_API"); api != "" {
		config.Wiki.APIURL = api
	}
	if api := os.Getenv("WIKIDATA_API"); api != "" {
		config.Wiki.WikidataURL = api
	}
	if path := os.Getenv("LINKPATH_FIXTURE"); path != "" {
		config.Wiki.Fixture = path
	}

	// Cache TTLs, in seconds
	if err := envSeconds("CACHE_TTL_LINKS", &config.Cache.NeighborsTTL); err != nil {
		return err
	}
	if err := envSeconds("CACHE_TTL_WIKIBASE", &config.Cache.ExternalIDTTL); err != nil {
		return err
	}
	if err := envSeconds("CACHE_TTL_ISPERSON", &config.Cache.ClassificationTTL); err != nil {
		return err
	}

	// Classifier
	if err := envInt("CHUNK_SIZE", &config.Classifier.ChunkSize); err != nil {
		return err
	}
	if err := envInt("CONCURRENCY", &config.Classifier.Concurrency); err != nil {
		return err
	}

	// Server settings
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if err := envInt("PORT", &config.Server.Port); err != nil {
		return err
	}

	// Log settings
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}

	return nil
}

func envInt(name string, dst *int) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return types.NewConfigurationError(name, fmt.Sprintf("%q is not an integer", raw))
	}
	*dst = n
	return nil
}

func envSeconds(name string, dst *time.Duration) error {
	var n int
	if err := envInt(name, &n); err != nil {
		return err
	}
	if os.Getenv(name) != "" {
		*dst = time.Duration(n) * time.Second
	}
	return nil
}

// LoadEnv loads environment variables from a .env file, searching up the
// directory tree from the working directory. A missing file is not an error.
func LoadEnv() error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}

	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			return godotenv.Load(envPath)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return nil
}
