package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config mirrors configs/config.yaml. Secrets (API keys, JWT secret,
// passwords) come from environment variables, which override the file.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	TTS      TTSConfig      `mapstructure:"tts"`
	Sessions SessionsConfig `mapstructure:"sessions"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Bucket          string `mapstructure:"bucket"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type GeminiConfig struct {
	APIKey          string  `mapstructure:"api_key"`
	Model           string  `mapstructure:"model"`
	Temperature     float32 `mapstructure:"temperature"`
	MaxOutputTokens int     `mapstructure:"max_output_tokens"`
	TimeoutSeconds  int     `mapstructure:"timeout_seconds"`
}

type TTSConfig struct {
	APIKey  string `mapstructure:"api_key"`
	VoiceID string `mapstructure:"voice_id"`
	ModelID string `mapstructure:"model_id"`
}

type SessionsConfig struct {
	// PersistDebounceMillis is how long appends coalesce before the
	// durable write fires.
	PersistDebounceMillis int `mapstructure:"persist_debounce_millis"`
}

// Load reads configs/config.yaml (or the file named by path) and applies
// environment overrides with the ARIMEDIKA_ prefix, e.g.
// ARIMEDIKA_GEMINI_API_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ARIMEDIKA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", "8080")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "arimedika")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("minio.bucket", "medical-documents")
	v.SetDefault("sessions.persist_debounce_millis", 1000)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine when env vars carry the settings.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
