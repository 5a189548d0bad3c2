package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	MarkSeenAtFetch   = "fetch"
	MarkSeenAtPersist = "persist"
)

type Config struct {
	DBDriver    string
	DBPath      string
	DatabaseURL string
	OutputDir   string

	MailProvider  string
	MailFolder    string
	MailFetchMax  int
	MailMarkSeen  string
	MailRecipient string
	MailFailedDir string

	IMAPHost               string
	IMAPPort               int
	IMAPSecure             bool
	IMAPUser               string
	IMAPPassword           string
	IMAPAuthTimeoutMs      int
	IMAPInsecureSkipVerify bool

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string
	GmailRateLimitRPS int

	ListenerIntervalSec   int
	ListenerRunTimeoutSec int
	ListenerRunOnStart    bool
	TriggerWaitSec        int

	RedisURL      string
	RunLockKey    string
	RunLockTTLSec int

	ContractorDefaultRole string

	HTTPAddr string

	LogLevel  string
	LogFormat string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBPath:      getEnv("DB_PATH", filepath.Join(cwd, "data", "bids.db")),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		OutputDir:   getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		MailProvider:  strings.ToLower(getEnv("MAIL_PROVIDER", "imap")),
		MailFolder:    getEnv("BID_EMAIL_FOLDER", "INBOX"),
		MailFetchMax:  getEnvInt("MAIL_FETCH_MAX", 0),
		MailMarkSeen:  strings.ToLower(getEnv("MAIL_MARK_SEEN_AT", MarkSeenAtFetch)),
		MailRecipient: getEnv("MAIL_RECIPIENT", ""),
		MailFailedDir: getEnv("MAIL_FAILED_DIR", ""),

		IMAPHost:               getEnv("IMAP_HOST", ""),
		IMAPPort:               getEnvInt("IMAP_PORT", 993),
		IMAPSecure:             getEnvBool("IMAP_SECURE", true),
		IMAPUser:               getEnv("IMAP_USER", ""),
		IMAPPassword:           getEnv("IMAP_PASSWORD", ""),
		IMAPAuthTimeoutMs:      getEnvInt("IMAP_AUTH_TIMEOUT_MS", 10000),
		IMAPInsecureSkipVerify: getEnvBool("IMAP_INSECURE_SKIP_VERIFY", false),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),
		GmailRateLimitRPS: getEnvInt("GMAIL_RATE_LIMIT_RPS", 5),

		ListenerIntervalSec:   getEnvInt("LISTENER_INTERVAL_SEC", 300),
		ListenerRunTimeoutSec: getEnvInt("LISTENER_RUN_TIMEOUT_SEC", 120),
		ListenerRunOnStart:    getEnvBool("LISTENER_RUN_ON_START", true),
		TriggerWaitSec:        getEnvInt("TRIGGER_WAIT_SEC", 30),

		RedisURL:      getEnv("REDIS_URL", ""),
		RunLockKey:    getEnv("RUN_LOCK_KEY", "bidintake:ingest-lock"),
		RunLockTTLSec: getEnvInt("RUN_LOCK_TTL_SEC", 600),

		ContractorDefaultRole: getEnv("CONTRACTOR_DEFAULT_ROLE", "USER"),

		HTTPAddr: getEnv("HTTP_ADDR", ":3000"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),
	}
	if cfg.MailRecipient == "" {
		cfg.MailRecipient = cfg.IMAPUser
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the enumerated settings. Provider credentials are checked
// by the connector that needs them.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "sqlite":
	case "postgres":
		if err := c.Require("DATABASE_URL", c.DatabaseURL); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	switch c.MailProvider {
	case "imap", "gmail":
	default:
		return fmt.Errorf("unsupported MAIL_PROVIDER: %s", c.MailProvider)
	}
	switch c.MailMarkSeen {
	case MarkSeenAtFetch, MarkSeenAtPersist:
	default:
		return fmt.Errorf("unsupported MAIL_MARK_SEEN_AT: %s", c.MailMarkSeen)
	}
	if c.ListenerIntervalSec <= 0 {
		return fmt.Errorf("LISTENER_INTERVAL_SEC must be positive")
	}
	return nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func (c Config) ListenerInterval() time.Duration {
	return time.Duration(c.ListenerIntervalSec) * time.Second
}

func (c Config) RunTimeout() time.Duration {
	return time.Duration(c.ListenerRunTimeoutSec) * time.Second
}

func (c Config) TriggerWait() time.Duration {
	return time.Duration(c.TriggerWaitSec) * time.Second
}

func (c Config) IMAPAuthTimeout() time.Duration {
	return time.Duration(c.IMAPAuthTimeoutMs) * time.Millisecond
}

func (c Config) RunLockTTL() time.Duration {
	return time.Duration(c.RunLockTTLSec) * time.Second
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
