package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/retry"
)

// Duplicate canonical name policies.
const (
	DuplicatesWarn  = "warn"
	DuplicatesError = "error"
)

type Config struct {
	Provider string
	Auth     AuthConfig

	// Sync layout
	BackupsDir      string
	RemoteDir       string
	ArchiveExt      string
	DryRun          bool
	DuplicatePolicy string

	HTTPTimeout time.Duration

	Yadisk YadiskConfig
	Azure  AzureConfig
	S3     S3Config
	GDrive GDriveConfig

	// Polling of asynchronous remote operations (e.g. permanent delete of a large file).
	PollMaxAttempts  int
	PollInitialDelay time.Duration
	PollMaxDelay     time.Duration
	PollMultiplier   float64
	PollEnableJitter bool
}

type AuthConfig struct {
	Method    string // "token" or "file"
	Token     string // only if Method == token
	TokenFile string // only if Method == file
}

type YadiskConfig struct {
	APIURL string
}

type AzureConfig struct {
	Account   string
	Container string
	SASToken  string
	Endpoint  string

	ClientID     string
	ClientSecret string
	TenantID     string
}

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

type GDriveConfig struct {
	AccessToken string
}

// DefaultYadiskAPIURL is the public Yandex.Disk REST endpoint.
const DefaultYadiskAPIURL = "https://cloud-api.yandex.net/v1/disk"

// Load reads config from environment variables, applies defaults and validates.
func Load() (Config, error) {
	get := func(key, def string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return def
	}

	parseInt := func(key string, def int) int {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				return n
			}
		}
		return def
	}

	parseDur := func(key string, def time.Duration) time.Duration {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			if d, err := time.ParseDuration(v); err == nil {
				return d
			}
		}
		return def
	}

	parseFloat := func(key string, def float64) float64 {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
				return f
			}
		}
		return def
	}

	parseBool := func(key string, def bool) bool {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "y", "on":
				return true
			case "0", "false", "no", "n", "off":
				return false
			}
		}
		return def
	}

	// -------------------------
	// Auth parsing (fallbacks)
	// -------------------------
	method := strings.ToLower(strings.TrimSpace(get("AUTH_METHOD", "")))
	tokenEnv := strings.TrimSpace(get("YADISK_TOKEN", ""))
	tokenFile := strings.TrimSpace(get("YADISK_TOKEN_FILE", ""))

	if method == "" {
		method = "token"
		if tokenEnv == "" && tokenFile != "" {
			method = "file"
		}
	}

	auth := AuthConfig{Method: method}
	switch method {
	case "token":
		auth.Token = tokenEnv
	case "file":
		auth.TokenFile = tokenFile
		if auth.TokenFile == "" {
			return Config{}, errors.New("auth method file requires YADISK_TOKEN_FILE")
		}
	default:
		return Config{}, errors.New("unsupported auth method: " + method)
	}

	cfg := Config{
		Provider: strings.ToLower(strings.TrimSpace(get("SYNC_PROVIDER", "yadisk"))),
		Auth:     auth,

		BackupsDir:      strings.TrimSpace(get("BACKUPS_DIR", "backups")),
		RemoteDir:       strings.TrimSpace(get("REMOTE_DIR", "app:/mc/backups")),
		ArchiveExt:      get("ARCHIVE_EXT", ".tgz"),
		DryRun:          parseBool("SYNC_DRY_RUN", false),
		DuplicatePolicy: strings.ToLower(strings.TrimSpace(get("SYNC_DUPLICATE_POLICY", DuplicatesWarn))),

		HTTPTimeout: parseDur("HTTP_TIMEOUT", 30*time.Second),

		Yadisk: YadiskConfig{
			APIURL: strings.TrimRight(get("YADISK_API_URL", DefaultYadiskAPIURL), "/"),
		},

		Azure: AzureConfig{
			Account:      get("AZURE_STORAGE_ACCOUNT", ""),
			Container:    get("AZURE_STORAGE_CONTAINER", ""),
			SASToken:     get("AZURE_STORAGE_SAS", ""),
			Endpoint:     get("AZURE_BLOB_ENDPOINT", ""),
			ClientID:     get("AZURE_CLIENT_ID", ""),
			ClientSecret: get("AZURE_CLIENT_SECRET", ""),
			TenantID:     get("AZURE_TENANT_ID", ""),
		},

		S3: S3Config{
			Bucket:    get("S3_BUCKET", ""),
			Region:    get("S3_REGION", "us-east-1"),
			Endpoint:  get("S3_ENDPOINT", ""),
			AccessKey: get("S3_ACCESS_KEY", ""),
			SecretKey: get("S3_SECRET_KEY", ""),
		},

		GDrive: GDriveConfig{
			AccessToken: strings.TrimSpace(get("GDRIVE_ACCESS_TOKEN", "")),
		},

		PollMaxAttempts:  parseInt("OPERATION_POLL_MAX_ATTEMPTS", retry.Default.MaxAttempts),
		PollInitialDelay: parseDur("OPERATION_POLL_INITIAL_DELAY", retry.Default.InitialDelay),
		PollMaxDelay:     parseDur("OPERATION_POLL_MAX_DELAY", retry.Default.MaxDelay),
		PollMultiplier:   parseFloat("OPERATION_POLL_MULTIPLIER", retry.Default.Multiplier),
		PollEnableJitter: parseBool("OPERATION_POLL_JITTER", retry.Default.Jitter),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate checks layout and provider-specific requirements.
func (c *Config) validate() error {
	if c.BackupsDir == "" {
		return errors.New("BACKUPS_DIR must not be empty")
	}
	if c.RemoteDir == "" {
		return errors.New("REMOTE_DIR must not be empty")
	}
	switch c.DuplicatePolicy {
	case DuplicatesWarn, DuplicatesError:
	default:
		return errors.New("unsupported duplicate policy: " + c.DuplicatePolicy)
	}

	switch c.Provider {
	case "yadisk":
		// Token presence is checked by the auth provider so that a token file is read lazily.
		if c.Yadisk.APIURL == "" {
			return errors.New("yadisk: YADISK_API_URL must not be empty")
		}
	case "azure":
		if c.Azure.Account == "" || c.Azure.Container == "" {
			return errors.New("azure: AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_CONTAINER are required")
		}
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("s3: S3_BUCKET is required")
		}
	case "gdrive":
		if c.GDrive.AccessToken == "" {
			return errors.New("gdrive: GDRIVE_ACCESS_TOKEN is required")
		}
	default:
		return errors.New("unsupported provider: " + c.Provider)
	}
	return nil
}

// PollOptions converts polling-related config values to retry.Options.
func (c Config) PollOptions() retry.Options {
	return retry.Options{
		MaxAttempts:  c.PollMaxAttempts,
		InitialDelay: c.PollInitialDelay,
		MaxDelay:     c.PollMaxDelay,
		Multiplier:   c.PollMultiplier,
		Jitter:       c.PollEnableJitter,
	}
}
