package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// DefaultAPIURL is the public GitHub REST endpoint.
const DefaultAPIURL = "https://api.github.com"

type Config struct {
	// GitHub
	APIURL     string // GITHUB_API_URL
	Token      string // GITHUB_TOKEN; empty in App mode
	Repository string // "owner/name", used when the payload does not carry one
	EventPath  string // GITHUB_EVENT_PATH

	// GitHub App mode (optional)
	AppID          int64
	InstallationID int64  // used when the payload does not carry one
	PrivateKeyPEM  []byte // decoded PEM
	WebhookSecret  []byte // verifies queued deliveries when set

	// Runtime
	WorkDir   string // parent of per-run working directories
	LogLevel  string // debug|info|warn|error
	LogFormat string // json|text
	Debug     bool   // RUNNER_DEBUG=1

	// Worker (serve)
	ListenPort           string // ":8080"
	AWSRegion            string
	SQSQueueURL          string
	SQSMaxMessages       int32
	SQSWaitTimeSeconds   int32
	SQSVisibilityTimeout int32
	SQSDeleteOn4xx       bool
}

// AppMode reports whether the GitHub App installation flow should be used
// instead of a plain token.
func (c *Config) AppMode() bool {
	return c.AppID != 0 && len(c.PrivateKeyPEM) > 0
}

// Load reads the process environment once. Every other component receives
// the resulting *Config and never looks at the environment itself.
func Load() (*Config, error) {
	cfg := &Config{
		APIURL:     strings.TrimRight(envOr("GITHUB_API_URL", DefaultAPIURL), "/"),
		Token:      os.Getenv("GITHUB_TOKEN"),
		Repository: os.Getenv("GITHUB_REPOSITORY"),
		EventPath:  os.Getenv("GITHUB_EVENT_PATH"),

		WorkDir:   os.Getenv("WORK_DIR"),
		LogLevel:  strings.ToLower(envOr("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(os.Getenv("LOG_FORMAT")),
		Debug:     os.Getenv("RUNNER_DEBUG") == "1",

		ListenPort:           envOr("LISTEN_PORT", ":8080"),
		AWSRegion:            envOr("AWS_REGION", "eu-north-1"),
		SQSQueueURL:          os.Getenv("SQS_QUEUE_URL"),
		SQSMaxMessages:       safeInt32(envOrInt("SQS_MAX_MESSAGES", 10)),
		SQSWaitTimeSeconds:   safeInt32(envOrInt("SQS_WAIT_TIME_SECONDS", 10)),
		SQSVisibilityTimeout: safeInt32(envOrInt("SQS_VISIBILITY_TIMEOUT", 120)),
		SQSDeleteOn4xx:       envOrBool("SQS_DELETE_ON_4XX", true),
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	if s := os.Getenv("GITHUB_WEBHOOK_SECRET"); s != "" {
		cfg.WebhookSecret = []byte(s)
	}

	if cfg.Repository != "" && !strings.Contains(cfg.Repository, "/") {
		return nil, fmt.Errorf("GITHUB_REPOSITORY must look like owner/name, got %q", cfg.Repository)
	}

	if appIDStr := os.Getenv("GITHUB_APP_ID"); appIDStr != "" {
		pemB64 := os.Getenv("GITHUB_APP_PRIVATE_KEY_PEM_BASE64")
		if pemB64 == "" {
			return nil, errors.New("GITHUB_APP_PRIVATE_KEY_PEM_BASE64 is required when GITHUB_APP_ID is set")
		}
		appID, err := strconv.ParseInt(appIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("GITHUB_APP_ID: %w", err)
		}
		pem, err := base64.StdEncoding.DecodeString(pemB64)
		if err != nil {
			return nil, fmt.Errorf("GITHUB_APP_PRIVATE_KEY_PEM_BASE64: %w", err)
		}
		cfg.AppID = appID
		cfg.PrivateKeyPEM = pem
		if instStr := os.Getenv("GITHUB_APP_INSTALLATION_ID"); instStr != "" {
			inst, err := strconv.ParseInt(instStr, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("GITHUB_APP_INSTALLATION_ID: %w", err)
			}
			cfg.InstallationID = inst
		}
	}

	if cfg.Token == "" && !cfg.AppMode() {
		return nil, errors.New("GITHUB_TOKEN or GITHUB_APP_ID + GITHUB_APP_PRIVATE_KEY_PEM_BASE64 are required")
	}
	return cfg, nil
}

// ValidateWorker checks the settings only serve mode needs: at least one
// delivery source, the SQS queue or the signed webhook endpoint.
func (c *Config) ValidateWorker() error {
	if c.SQSQueueURL == "" && len(c.WebhookSecret) == 0 {
		return errors.New("SQS_QUEUE_URL or GITHUB_WEBHOOK_SECRET is required")
	}
	return nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envOrInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y":
			return true
		case "0", "false", "f", "no", "n":
			return false
		}
	}
	return def
}

// safeInt32 clamps n into the int32 range.
func safeInt32(n int) int32 {
	switch {
	case n > math.MaxInt32:
		return math.MaxInt32
	case n < math.MinInt32:
		return math.MinInt32
	}
	return int32(n)
}
