package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"hexmirror/internal/models"
)

const (
	DefaultAPIURL         = "https://hex.pm/api"
	DefaultRepoURL        = "https://repo.hex.pm"
	DefaultDestDir        = "repo.hex.pm"
	DefaultManifestFile   = "hexpm.json"
	DefaultConcurrency    = 100
	DefaultMaxAttempts    = 3
	DefaultRequestTimeout = 60 * time.Second
	DefaultGracePeriod    = 10 * time.Second
)

type Config struct {
	// Mirror settings
	APIURL         string
	RepoURL        string
	DestDir        string
	ManifestFile   string
	Concurrency    int
	PageSize       int
	MaxAttempts    int
	RequestTimeout time.Duration
	GracePeriod    time.Duration

	// S3 publish target
	ApiURL     string
	AccessKey  string
	SecretKey  string
	BucketName string
	Region     string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn(".env file not found, using environment variables only")
	}

	concurrency, err := getEnvInt("MIRROR_CONCURRENCY", DefaultConcurrency)
	if err != nil {
		return nil, err
	}
	pageSize, err := getEnvInt("MIRROR_PAGE_SIZE", 0)
	if err != nil {
		return nil, err
	}
	maxAttempts, err := getEnvInt("MIRROR_MAX_ATTEMPTS", DefaultMaxAttempts)
	if err != nil {
		return nil, err
	}
	timeout, err := getEnvDuration("MIRROR_REQUEST_TIMEOUT", DefaultRequestTimeout)
	if err != nil {
		return nil, err
	}
	grace, err := getEnvDuration("MIRROR_GRACE_PERIOD", DefaultGracePeriod)
	if err != nil {
		return nil, err
	}

	config := &Config{
		APIURL:         getEnv("HEX_API_URL", DefaultAPIURL),
		RepoURL:        getEnv("HEX_REPO_URL", DefaultRepoURL),
		DestDir:        getEnv("MIRROR_DIR", DefaultDestDir),
		ManifestFile:   getEnv("MIRROR_MANIFEST_FILE", DefaultManifestFile),
		Concurrency:    concurrency,
		PageSize:       pageSize,
		MaxAttempts:    maxAttempts,
		RequestTimeout: timeout,
		GracePeriod:    grace,

		ApiURL:     getEnv("API_URL", ""),
		AccessKey:  getEnv("ACCESS_KEY", ""),
		SecretKey:  getEnv("SECRET_KEY", ""),
		BucketName: getEnv("BUCKET_NAME", ""),
		Region:     getEnv("REGION", ""),
	}

	return config, nil
}

// Validate checks the mirror settings. It never touches the network.
func (c *Config) Validate() error {
	if c.DestDir == "" {
		return &models.ConfigurationError{Field: "destination", Reason: "must not be empty"}
	}
	if info, err := os.Stat(c.DestDir); err == nil && !info.IsDir() {
		return &models.ConfigurationError{Field: "destination", Reason: fmt.Sprintf("%s is not a directory", c.DestDir)}
	}
	if c.Concurrency < 1 {
		return &models.ConfigurationError{Field: "concurrency", Reason: fmt.Sprintf("must be at least 1, got %d", c.Concurrency)}
	}
	if c.MaxAttempts < 1 {
		return &models.ConfigurationError{Field: "max-attempts", Reason: fmt.Sprintf("must be at least 1, got %d", c.MaxAttempts)}
	}
	if c.PageSize < 0 {
		return &models.ConfigurationError{Field: "page-size", Reason: "must not be negative"}
	}
	if c.RequestTimeout <= 0 {
		return &models.ConfigurationError{Field: "timeout", Reason: "must be positive"}
	}
	if c.GracePeriod < 0 {
		return &models.ConfigurationError{Field: "grace-period", Reason: "must not be negative"}
	}
	if err := validateBaseURL("api-url", c.APIURL); err != nil {
		return err
	}
	return validateBaseURL("repo-url", c.RepoURL)
}

func validateBaseURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return &models.ConfigurationError{Field: field, Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &models.ConfigurationError{Field: field, Reason: fmt.Sprintf("unsupported scheme in %q", raw)}
	}
	if u.Host == "" {
		return &models.ConfigurationError{Field: field, Reason: fmt.Sprintf("missing host in %q", raw)}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &models.ConfigurationError{Field: key, Reason: fmt.Sprintf("invalid integer %q", value)}
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, &models.ConfigurationError{Field: key, Reason: fmt.Sprintf("invalid duration %q", value)}
	}
	return d, nil
}
