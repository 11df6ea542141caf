package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location, relative to the working
// directory.
const ConfigPath = "config.yaml"

// Path returns the config file location: the CLINSUM_CONFIG environment
// variable when set, ConfigPath otherwise.
func Path() string {
	if p := strings.TrimSpace(os.Getenv("CLINSUM_CONFIG")); p != "" {
		return p
	}
	return ConfigPath
}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port          string `yaml:"port"`
	LogLevel      string `yaml:"logLevel"`
	AllowedOrigin string `yaml:"allowedOrigin"`

	DatabaseURL   string `yaml:"databaseURL"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	TokenSecret     string `yaml:"tokenSecret"`
	AccessTokenTTL  string `yaml:"accessTokenTTL"`
	RefreshTokenTTL string `yaml:"refreshTokenTTL"`
	CookieDomain    string `yaml:"cookieDomain"`
	CookieSecure    bool   `yaml:"cookieSecure"`

	GeminiAPIKey          string `yaml:"geminiApiKey"`
	GeminiModel           string `yaml:"geminiModel"`
	SummaryTimeoutSeconds int    `yaml:"summaryTimeoutSeconds"`
	SummaryInputChars     int    `yaml:"summaryInputChars"`

	OCRCommand        string `yaml:"ocrCommand"`
	OCRTimeoutSeconds int    `yaml:"ocrTimeoutSeconds"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	MaxTextChars   int   `yaml:"maxTextChars"`
	MaxUploadBytes int64 `yaml:"maxUploadBytes"`

	SignupRateLimitPerMinute    int `yaml:"signupRateLimitPerMinute"`
	LoginRateLimitPerMinute     int `yaml:"loginRateLimitPerMinute"`
	RefreshRateLimitPerMinute   int `yaml:"refreshRateLimitPerMinute"`
	SummarizeRateLimitPerMinute int `yaml:"summarizeRateLimitPerMinute"`

	TrustedProxies string `yaml:"trustedProxies"`
}

// Load reads config from path (defaults to config.yaml) and applies
// environment overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("CLINSUM_TOKEN_SECRET"); v != "" {
		cfg.TokenSecret = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GeminiAPIKey = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		cfg.GeminiModel = v
	}
	if v := os.Getenv("CLINSUM_OCR_COMMAND"); v != "" {
		cfg.OCRCommand = v
	}
	if v := os.Getenv("CLINSUM_OCR_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.OCRTimeoutSeconds = n
		}
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("CLINSUM_ALLOWED_ORIGIN"); v != "" {
		cfg.AllowedOrigin = v
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if len(strings.TrimSpace(cfg.TokenSecret)) < 32 {
		return errors.New("config: tokenSecret must be at least 32 characters (set in config.yaml or CLINSUM_TOKEN_SECRET)")
	}
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return errors.New("config: geminiApiKey is required (set in config.yaml or GEMINI_API_KEY)")
	}
	if strings.TrimSpace(cfg.OCRCommand) == "" {
		return errors.New("config: ocrCommand is required (set in config.yaml or CLINSUM_OCR_COMMAND)")
	}
	if cfg.OCRTimeoutSeconds < 0 {
		return errors.New("config: ocrTimeoutSeconds must be >= 0")
	}
	if strings.TrimSpace(cfg.MinioEndpoint) == "" || strings.TrimSpace(cfg.MinioBucket) == "" {
		return errors.New("config: minioEndpoint and minioBucket are required")
	}
	if cfg.MaxTextChars < 0 {
		return errors.New("config: maxTextChars must be >= 0")
	}
	if cfg.SummaryInputChars < 0 {
		return errors.New("config: summaryInputChars must be >= 0")
	}
	if _, err := ParseTTL(cfg.AccessTokenTTL); err != nil {
		return fmt.Errorf("config: accessTokenTTL: %w", err)
	}
	if _, err := ParseTTL(cfg.RefreshTokenTTL); err != nil {
		return fmt.Errorf("config: refreshTokenTTL: %w", err)
	}
	return nil
}

// ParseTTL parses a duration string; empty means "use the default" and
// yields zero.
func ParseTTL(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("must be positive")
	}
	return d, nil
}

// TrustedProxyList splits the configured comma-separated proxy entries.
func (c FileConfig) TrustedProxyList() []string {
	if strings.TrimSpace(c.TrustedProxies) == "" {
		return nil
	}
	parts := strings.Split(c.TrustedProxies, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
