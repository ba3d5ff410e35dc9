package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const envPrefix = "INTERVIEWPREP"

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `mapstructure:"basic_config"`
	Databases   map[string]DatabaseConfig `mapstructure:"databases"`
	Redis       RedisConfig               `mapstructure:"redis"`
	Providers   map[string]ProviderConfig `mapstructure:"providers"`
	Interview   InterviewConfig           `mapstructure:"interview"`
	Analysis    AnalysisConfig            `mapstructure:"analysis"`
	Storage     StorageConfig             `mapstructure:"storage"`
	Speech      SpeechConfig              `mapstructure:"speech"`
	Support     SupportConfig             `mapstructure:"support"`
	Search      SearchConfig              `mapstructure:"search"`
}

type BasicConfig struct {
	ServerAddress      string   `mapstructure:"server_address"`
	LogLevel           string   `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	AllowedOrigins     []string `mapstructure:"allowed_origins"`
	AdminToken         string   `mapstructure:"admin_token"`
	SpoolDir           string   `mapstructure:"spool_dir"`
	SpoolTTL           int      `mapstructure:"spool_ttl"`            // minutes
	SpoolCleanInterval int      `mapstructure:"spool_clean_interval"` // minutes
	MinWorkers         int      `mapstructure:"min_workers" validate:"gte=0"`
	MaxWorkers         int      `mapstructure:"max_workers" validate:"gte=0"`
	QueueSize          int      `mapstructure:"queue_size" validate:"gte=0"`
	WorkerIdleTimeout  int      `mapstructure:"worker_idle_timeout"` // minutes
	TokenTTL           int      `mapstructure:"token_ttl"`           // hours
	ResultsCacheTTL    int      `mapstructure:"results_cache_ttl"`   // seconds
}

type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"db_name"`
	Params   string `mapstructure:"params"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Disabled bool   `mapstructure:"disabled"`
}

type ProviderConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
}

// InterviewConfig holds the session classification and abuse thresholds.
type InterviewConfig struct {
	MinTranscriptChars int `mapstructure:"min_transcript_chars" validate:"gt=0"`
	WarnThreshold      int `mapstructure:"warn_threshold" validate:"gt=0"`
	SuspendThreshold   int `mapstructure:"suspend_threshold" validate:"gtfield=WarnThreshold"`
}

type AnalysisConfig struct {
	Mode      string `mapstructure:"mode" validate:"oneof=model remote"`
	Provider  string `mapstructure:"provider"`
	RemoteURL string `mapstructure:"remote_url" validate:"required_if=Mode remote"`
	APIKey    string `mapstructure:"api_key"`
	Timeout   int    `mapstructure:"timeout"` // seconds

	// FunctionKey guards this instance's own analyze-interview endpoint.
	FunctionKey string `mapstructure:"function_key"`
}

type StorageConfig struct {
	Driver        string `mapstructure:"driver" validate:"oneof=s3 local"`
	Bucket        string `mapstructure:"bucket" validate:"required_if=Driver s3"`
	Region        string `mapstructure:"region"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	LocalDir      string `mapstructure:"local_dir"`
	SigningSecret string `mapstructure:"signing_secret" validate:"required_if=Driver local"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

type SpeechConfig struct {
	DeepgramKey   string `mapstructure:"deepgram_key"`
	DeepgramModel string `mapstructure:"deepgram_model"`
	DeepgramURL   string `mapstructure:"deepgram_url"`
	SarvamKey     string `mapstructure:"sarvam_key"`
	SarvamModel   string `mapstructure:"sarvam_model"`
	SarvamURL     string `mapstructure:"sarvam_url"`
}

type SupportConfig struct {
	SendgridKey string `mapstructure:"sendgrid_key"`
	FromEmail   string `mapstructure:"from_email" validate:"omitempty,email"`
	ToEmail     string `mapstructure:"to_email" validate:"omitempty,email"`
}

type SearchConfig struct {
	GoogleAPIKey         string `mapstructure:"google_api_key"`
	GoogleSearchEngineID string `mapstructure:"google_search_engine_id"`
}

// Load reads configuration from the provided path (defaults to config.json).
// Environment variables prefixed with INTERVIEWPREP_ override file values.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(absPath)
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", absPath, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	baseDir := filepath.Dir(absPath)
	for name, db := range cfg.Databases {
		if isSQLite(name) && db.DSN != "" && db.DSN != ":memory:" && !filepath.IsAbs(db.DSN) {
			db.DSN = filepath.Join(baseDir, db.DSN)
			cfg.Databases[name] = db
		}
	}
	return &cfg, nil
}

// Validate checks struct-level constraints of an already decoded config.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config required")
	}
	if len(cfg.Databases) == 0 {
		return fmt.Errorf("at least one database must be configured")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// Default returns a config populated with the same defaults Load applies.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("basic_config.server_address", ":8090")
	v.SetDefault("basic_config.log_level", "info")
	v.SetDefault("basic_config.spool_dir", "./data/spool")
	v.SetDefault("basic_config.spool_ttl", 24*60)
	v.SetDefault("basic_config.spool_clean_interval", 60)
	v.SetDefault("basic_config.min_workers", 2)
	v.SetDefault("basic_config.max_workers", 8)
	v.SetDefault("basic_config.queue_size", 64)
	v.SetDefault("basic_config.worker_idle_timeout", 5)
	v.SetDefault("basic_config.token_ttl", 24)
	v.SetDefault("basic_config.results_cache_ttl", 300)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("interview.min_transcript_chars", 50)
	v.SetDefault("interview.warn_threshold", 3)
	v.SetDefault("interview.suspend_threshold", 5)

	v.SetDefault("analysis.mode", "model")
	v.SetDefault("analysis.provider", "openai")
	v.SetDefault("analysis.timeout", 60)

	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local_dir", "./data/recordings")

	v.SetDefault("speech.deepgram_model", "nova-2")
	v.SetDefault("speech.deepgram_url", "https://api.deepgram.com")
	v.SetDefault("speech.sarvam_model", "bulbul:v2")
	v.SetDefault("speech.sarvam_url", "https://api.sarvam.ai")
}

func isSQLite(name string) bool {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return true
	}
	return false
}
