package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/gyeh/billadj/internal/retry"
)

// Config holds all runtime configuration for a billadj process.
type Config struct {
	DSN        string `mapstructure:"dsn"`
	LogFormat  string `mapstructure:"log_format" validate:"oneof=text json"` // "text" or "json"
	LogLevel   string `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	ListenAddr string `mapstructure:"listen_addr" validate:"required"`
	RedisURL   string `mapstructure:"redis_url"`

	OpenAIKey     string  `mapstructure:"openai_api_key"`
	OpenAIModel   string  `mapstructure:"openai_model" validate:"required"`
	OpenAIBaseURL string  `mapstructure:"openai_base_url"`
	OracleRPS     float64 `mapstructure:"oracle_rps" validate:"gte=0"`

	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0,lte=20"`
	BaseDelay  time.Duration `mapstructure:"base_delay" validate:"gt=0"`
	MaxDelay   time.Duration `mapstructure:"max_delay" validate:"gtefield=BaseDelay"`
	MaxJitter  time.Duration `mapstructure:"max_jitter" validate:"gte=0"`

	ChunkSize int `mapstructure:"chunk_size" validate:"gte=1,lte=500"`
	Workers   int `mapstructure:"workers" validate:"gte=1,lte=256"`

	PolicyDir        string `mapstructure:"policy_dir"`
	ReferenceParquet string `mapstructure:"reference_parquet"`

	Retention time.Duration `mapstructure:"retention" validate:"gte=0"`
	ResultTTL time.Duration `mapstructure:"result_ttl" validate:"gte=0"`
}

// envAliases are accepted in addition to the BILLADJ_ prefixed names.
var envAliases = map[string][]string{
	"dsn":             {"DATABASE_URL"},
	"redis_url":       {"REDIS_URL"},
	"openai_api_key":  {"OPENAI_API_KEY"},
	"openai_base_url": {"OPENAI_BASE_URL"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dsn", "")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_level", "info")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("redis_url", "")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_model", "gpt-4o-mini")
	v.SetDefault("openai_base_url", "")
	v.SetDefault("oracle_rps", 5.0)
	v.SetDefault("max_retries", retry.DefaultConfig.MaxRetries)
	v.SetDefault("base_delay", retry.DefaultConfig.BaseDelay)
	v.SetDefault("max_delay", retry.DefaultConfig.MaxDelay)
	v.SetDefault("max_jitter", retry.DefaultConfig.MaxJitter)
	v.SetDefault("chunk_size", 50)
	v.SetDefault("workers", 8)
	v.SetDefault("policy_dir", "")
	v.SetDefault("reference_parquet", "")
	v.SetDefault("retention", 72*time.Hour)
	v.SetDefault("result_ttl", 30*24*time.Hour)
}

// Load reads defaults, then the YAML file at path (if any), then the
// environment. Later sources win. Command-line flags are applied by the
// caller on top of the returned Config.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BILLADJ")
	v.AutomaticEnv()
	for key, aliases := range envAliases {
		names := append([]string{"BILLADJ_" + strings.ToUpper(key)}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

var configValidate = validator.New()

// Validate checks value ranges and returns an error describing every
// violation.
func (c *Config) Validate() error {
	err := configValidate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fmt.Sprintf("%s: failed %s %s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
}

// ValidateWithDSN additionally requires a database connection string.
func (c *Config) ValidateWithDSN() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.DSN == "" {
		return fmt.Errorf("--dsn or DATABASE_URL is required")
	}
	return nil
}

// RetryConfig returns the retry settings for outbound calls.
func (c *Config) RetryConfig() retry.Config {
	return retry.Config{
		MaxRetries: c.MaxRetries,
		BaseDelay:  c.BaseDelay,
		MaxDelay:   c.MaxDelay,
		MaxJitter:  c.MaxJitter,
	}
}
