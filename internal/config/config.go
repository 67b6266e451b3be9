package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvDevelopment = "development"

type Config struct {
	HTTPPort        string
	DatabasePath    string
	UploadDir       string
	Environment     string
	JWTSecret       string
	GeminiAPIKey    string
	GeminiModel     string
	GenerateTimeout time.Duration
}

// Load reads configuration from the environment (with an optional local .env
// file). A missing JWT secret is an error: the process must refuse to start
// rather than run half-configured. The Gemini key is optional; without it the
// agent system is simply unavailable.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env is optional

	v := viper.New()
	v.SetDefault("http_port", "8080")
	v.SetDefault("database_path", "knowledgevault.db")
	v.SetDefault("upload_dir", "/tmp/uploads")
	v.SetDefault("environment", EnvDevelopment)
	v.SetDefault("gemini_model", "gemini-2.5-flash")
	v.SetDefault("generate_timeout", 30*time.Second)
	v.AutomaticEnv()

	cfg := &Config{
		HTTPPort:        v.GetString("http_port"),
		DatabasePath:    v.GetString("database_path"),
		UploadDir:       v.GetString("upload_dir"),
		Environment:     v.GetString("environment"),
		JWTSecret:       v.GetString("jwt_secret"),
		GeminiAPIKey:    v.GetString("gemini_api_key"),
		GeminiModel:     v.GetString("gemini_model"),
		GenerateTimeout: v.GetDuration("generate_timeout"),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if cfg.GenerateTimeout <= 0 {
		return nil, fmt.Errorf("GENERATE_TIMEOUT must be positive")
	}
	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}
