package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App          AppSettings          `mapstructure:"app"`
	Postgres     PostgresSettings     `mapstructure:"postgres"`
	SQLite       SQLiteSettings       `mapstructure:"sqlite"`
	Identity     IdentitySettings     `mapstructure:"identity"`
	Redis        RedisSettings        `mapstructure:"redis"`
	Sessions     SessionSettings      `mapstructure:"sessions"`
	Kafka        KafkaSettings        `mapstructure:"kafka"`
	GRPC         GRPCSettings         `mapstructure:"grpc"`
	Telemetry    TelemetrySettings    `mapstructure:"telemetry"`
	RateLimit    RateLimitSettings    `mapstructure:"rate_limit"`
	Argon2       Argon2Settings       `mapstructure:"argon2"`
	LLM          LLMSettings          `mapstructure:"llm"`
	Registration RegistrationSettings `mapstructure:"registration"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	// LogLevel overrides the level implied by Env.
	LogLevel string `mapstructure:"log_level"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	// AllowedOrigins lists the sites allowed to embed the web chat.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type GRPCSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	Schema            string        `mapstructure:"schema"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// SQLiteSettings configures the single-node identity store.
type SQLiteSettings struct {
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// IdentitySettings selects the farmer directory backend.
type IdentitySettings struct {
	Backend string        `mapstructure:"backend"` // postgres | sqlite
	Timeout time.Duration `mapstructure:"timeout"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
}

// SessionSettings configures where registration sessions live.
type SessionSettings struct {
	Backend           string        `mapstructure:"backend"` // redis | memory
	KeyPrefix         string        `mapstructure:"key_prefix"`
	TerminalRetention time.Duration `mapstructure:"terminal_retention"`
	// LeaseTTL bounds a turn's hold on a session across processes.
	LeaseTTL time.Duration `mapstructure:"lease_ttl"`
}

// KafkaSettings configures Kafka producer
type KafkaSettings struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// RateLimitSettings configures rate limiting windows and max attempts per endpoint
type RateLimitSettings struct {
	WindowDuration     time.Duration `mapstructure:"window_duration"`
	TurnMaxAttempts    int           `mapstructure:"turn_max_attempts"`
	WebhookMaxAttempts int           `mapstructure:"webhook_max_attempts"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// LLMSettings configures the extraction model.
type LLMSettings struct {
	Provider        string        `mapstructure:"provider"` // gemini | none
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Temperature     float32       `mapstructure:"temperature"`
	MaxOutputTokens int32         `mapstructure:"max_output_tokens"`
	HistoryLimit    int           `mapstructure:"history_limit"`
}

// RegistrationSettings tunes the onboarding conversation.
type RegistrationSettings struct {
	IdleWindow          time.Duration `mapstructure:"idle_window"`
	SweepInterval       time.Duration `mapstructure:"sweep_interval"`
	DigressionThreshold int           `mapstructure:"digression_threshold"`
	FallbackLocale      string        `mapstructure:"fallback_locale"`
	SupportedLocales    []string      `mapstructure:"supported_locales"`
	FuzzyThreshold      float64       `mapstructure:"fuzzy_threshold"`
	FuzzyLimit          int           `mapstructure:"fuzzy_limit"`
	WebhookDedupTTL     time.Duration `mapstructure:"webhook_dedup_ttl"`
	WebhookProvider     string        `mapstructure:"webhook_provider"` // twilio | meta
	WebhookVerifyToken  string        `mapstructure:"webhook_verify_token"`
}

type TelemetrySettings struct {
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("ONBOARDING")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.log_level",
		"app.host",
		"app.port",
		"app.allowed_origins",
		"grpc.enabled",
		"grpc.host",
		"grpc.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.schema",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"sqlite.path",
		"sqlite.busy_timeout",
		"identity.backend",
		"identity.timeout",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"sessions.backend",
		"sessions.key_prefix",
		"sessions.terminal_retention",
		"sessions.lease_ttl",
		"kafka.enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"telemetry.tracing_enabled",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"rate_limit.window_duration",
		"rate_limit.turn_max_attempts",
		"rate_limit.webhook_max_attempts",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"llm.provider",
		"llm.api_key",
		"llm.model",
		"llm.timeout",
		"llm.temperature",
		"llm.max_output_tokens",
		"llm.history_limit",
		"registration.idle_window",
		"registration.sweep_interval",
		"registration.digression_threshold",
		"registration.fallback_locale",
		"registration.supported_locales",
		"registration.fuzzy_threshold",
		"registration.fuzzy_limit",
		"registration.webhook_dedup_ttl",
		"registration.webhook_provider",
		"registration.webhook_verify_token",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects combinations the service cannot start with.
func (c *AppConfig) Validate() error {
	switch c.Identity.Backend {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("identity.backend must be postgres or sqlite, got %q", c.Identity.Backend)
	}
	switch c.Sessions.Backend {
	case "redis", "memory":
	default:
		return fmt.Errorf("sessions.backend must be redis or memory, got %q", c.Sessions.Backend)
	}
	if c.Sessions.Backend == "redis" {
		// A turn may wait on the model and on two farmer directory calls.
		if floor := c.LLM.Timeout + 2*c.Identity.Timeout; c.Sessions.LeaseTTL <= floor {
			return fmt.Errorf("sessions.lease_ttl must exceed %s (llm.timeout + 2 x identity.timeout)", floor)
		}
	}
	switch c.LLM.Provider {
	case "gemini":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm.api_key is required for provider gemini")
		}
	case "none", "":
	default:
		return fmt.Errorf("llm.provider must be gemini or none, got %q", c.LLM.Provider)
	}
	if c.Registration.IdleWindow <= 0 {
		return fmt.Errorf("registration.idle_window must be positive")
	}
	switch c.Registration.WebhookProvider {
	case "twilio", "meta":
	default:
		return fmt.Errorf("registration.webhook_provider must be twilio or meta, got %q", c.Registration.WebhookProvider)
	}
	if c.Registration.FallbackLocale == "" {
		return fmt.Errorf("registration.fallback_locale is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "farmer-onboarding")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.allowed_origins", []string{"*"})

	v.SetDefault("grpc.enabled", true)
	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "onboarding")
	v.SetDefault("postgres.password", "onboarding_password")
	v.SetDefault("postgres.database", "farmers")
	v.SetDefault("postgres.schema", "onboarding")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("sqlite.path", "./data/farmers.db")
	v.SetDefault("sqlite.busy_timeout", "5s")

	v.SetDefault("identity.backend", "postgres")
	v.SetDefault("identity.timeout", "3s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)

	v.SetDefault("sessions.backend", "redis")
	v.SetDefault("sessions.key_prefix", "onboarding:session")
	v.SetDefault("sessions.terminal_retention", "24h")
	v.SetDefault("sessions.lease_ttl", "30s")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "onboarding")

	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "farmer-onboarding")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.turn_max_attempts", 30)
	v.SetDefault("rate_limit.webhook_max_attempts", 60)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("llm.provider", "none")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.timeout", "8s")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_output_tokens", 512)
	v.SetDefault("llm.history_limit", 12)

	v.SetDefault("registration.idle_window", "30m")
	v.SetDefault("registration.sweep_interval", "1m")
	v.SetDefault("registration.digression_threshold", 3)
	v.SetDefault("registration.fallback_locale", "en")
	v.SetDefault("registration.supported_locales", []string{"en", "sl", "es"})
	v.SetDefault("registration.fuzzy_threshold", 0.6)
	v.SetDefault("registration.fuzzy_limit", 3)
	v.SetDefault("registration.webhook_dedup_ttl", "24h")
	v.SetDefault("registration.webhook_provider", "twilio")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "ONBOARDING_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
