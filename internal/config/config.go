package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Fingerprint store backends.
const (
	StoreS3    = "s3"
	StoreMinio = "minio"
)

// Config holds all configuration values.
type Config struct {
	// Reporting
	SlackChannel     string
	SlackSecretID    string
	SlackSecretField string

	// Fingerprint store
	Store          string
	Bucket         string
	SitesChecksum  string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioSecure    bool

	// AWS
	AWSRegion string

	// Service discovery
	Namespace      string
	ServiceName    string
	CheckAttribute string

	// Grouping
	Concurrency   int
	Relatedness   float64
	ExcludeRegex  string
	PollInterval  time.Duration
	PollRateLimit float64 // DescribeExecution calls per second across all jobs, 0 = unlimited
	BatchTimeout  time.Duration
	BatchTimezone string

	// Run history (SurrealDB), disabled when URL is empty
	HistoryURL       string
	HistoryNamespace string
	HistoryDatabase  string
	HistoryUser      string
	HistoryPass      string

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Single-run lock for cron invocations
	LockFile string
}

// Defaults match the production Holmes deployment.
func Defaults() Config {
	return Config{
		SlackSecretID:    "SlackApps",
		SlackSecretField: "HolmesBotUserOAuthToken",

		Store:         StoreS3,
		Bucket:        "umccr-fingerprint-prod",
		SitesChecksum: "ad0e523b19164b9af4dda86c90462f6a",
		MinioSecure:   true,

		Namespace:      "umccr",
		ServiceName:    "fingerprint",
		CheckAttribute: "checkStepsArn",

		Concurrency:   5,
		Relatedness:   0.75,
		ExcludeRegex:  ".*(NTC_|PTC_).*",
		PollInterval:  5 * time.Second,
		BatchTimeout:  14 * time.Minute,
		BatchTimezone: "UTC",

		HistoryNamespace: "holmes",
		HistoryDatabase:  "report",
		HistoryUser:      "root",
		HistoryPass:      "root",

		LogFile:  "/tmp/holmes-report.log",
		LogLevel: slog.LevelInfo,
		LockFile: "/tmp/holmes-report.lock",
	}
}

// Load reads configuration from defaults, an optional YAML file named by
// HOLMES_CONFIG_FILE, then environment variables. A .env file in the working
// directory is loaded into the environment first when present.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Defaults()
	if path := os.Getenv("HOLMES_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.SlackChannel = getEnv("HOLMES_SLACK_CHANNEL", c.SlackChannel)
	c.SlackSecretID = getEnv("HOLMES_SLACK_SECRET_ID", c.SlackSecretID)
	c.SlackSecretField = getEnv("HOLMES_SLACK_SECRET_FIELD", c.SlackSecretField)

	c.Store = strings.ToLower(getEnv("HOLMES_STORE", c.Store))
	c.Bucket = getEnv("HOLMES_BUCKET", c.Bucket)
	c.SitesChecksum = getEnv("HOLMES_SITES_CHECKSUM", c.SitesChecksum)
	c.MinioEndpoint = getEnv("HOLMES_MINIO_ENDPOINT", c.MinioEndpoint)
	c.MinioAccessKey = getEnv("HOLMES_MINIO_ACCESS_KEY", c.MinioAccessKey)
	c.MinioSecretKey = getEnv("HOLMES_MINIO_SECRET_KEY", c.MinioSecretKey)
	c.MinioSecure = getEnv("HOLMES_MINIO_SECURE", strconv.FormatBool(c.MinioSecure)) == "true"

	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)

	c.Namespace = getEnv("HOLMES_NAMESPACE", c.Namespace)
	c.ServiceName = getEnv("HOLMES_SERVICE_NAME", c.ServiceName)
	c.CheckAttribute = getEnv("HOLMES_CHECK_ATTRIBUTE", c.CheckAttribute)

	var err error
	if c.Concurrency, err = getEnvInt("HOLMES_CONCURRENCY", c.Concurrency); err != nil {
		return err
	}
	if c.Relatedness, err = getEnvFloat("HOLMES_RELATEDNESS", c.Relatedness); err != nil {
		return err
	}
	c.ExcludeRegex = getEnv("HOLMES_EXCLUDE_REGEX", c.ExcludeRegex)
	if c.PollInterval, err = getEnvDuration("HOLMES_POLL_INTERVAL", c.PollInterval); err != nil {
		return err
	}
	if c.PollRateLimit, err = getEnvFloat("HOLMES_POLL_RATE_LIMIT", c.PollRateLimit); err != nil {
		return err
	}
	if c.BatchTimeout, err = getEnvDuration("HOLMES_BATCH_TIMEOUT", c.BatchTimeout); err != nil {
		return err
	}
	c.BatchTimezone = getEnv("HOLMES_BATCH_TIMEZONE", c.BatchTimezone)

	c.HistoryURL = getEnv("HOLMES_HISTORY_URL", c.HistoryURL)
	c.HistoryNamespace = getEnv("HOLMES_HISTORY_NAMESPACE", c.HistoryNamespace)
	c.HistoryDatabase = getEnv("HOLMES_HISTORY_DATABASE", c.HistoryDatabase)
	c.HistoryUser = getEnv("HOLMES_HISTORY_USER", c.HistoryUser)
	c.HistoryPass = getEnv("HOLMES_HISTORY_PASS", c.HistoryPass)

	c.LogFile = getEnv("HOLMES_LOG_FILE", c.LogFile)
	if v := os.Getenv("HOLMES_LOG_LEVEL"); v != "" {
		c.LogLevel = parseLogLevel(v)
	}
	c.LockFile = getEnv("HOLMES_LOCK_FILE", c.LockFile)
	return nil
}

// fileConfig is the YAML representation. Unset keys leave defaults alone.
type fileConfig struct {
	Slack struct {
		Channel     string `yaml:"channel"`
		SecretID    string `yaml:"secret_id"`
		SecretField string `yaml:"secret_field"`
	} `yaml:"slack"`
	Store struct {
		Kind          string `yaml:"kind"`
		Bucket        string `yaml:"bucket"`
		SitesChecksum string `yaml:"sites_checksum"`
		Endpoint      string `yaml:"endpoint"`
		AccessKey     string `yaml:"access_key"`
		SecretKey     string `yaml:"secret_key"`
		Secure        *bool  `yaml:"secure"`
	} `yaml:"store"`
	Discovery struct {
		Namespace string `yaml:"namespace"`
		Service   string `yaml:"service"`
		Attribute string `yaml:"attribute"`
	} `yaml:"discovery"`
	Grouping struct {
		Concurrency   int     `yaml:"concurrency"`
		Relatedness   float64 `yaml:"relatedness"`
		Exclude       string  `yaml:"exclude"`
		PollInterval  string  `yaml:"poll_interval"`
		PollRateLimit float64 `yaml:"poll_rate_limit"`
		Timeout       string  `yaml:"timeout"`
		Timezone      string  `yaml:"timezone"`
	} `yaml:"grouping"`
	History struct {
		URL       string `yaml:"url"`
		Namespace string `yaml:"namespace"`
		Database  string `yaml:"database"`
		User      string `yaml:"user"`
		Pass      string `yaml:"pass"`
	} `yaml:"history"`
	Region   string `yaml:"region"`
	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`
	LockFile string `yaml:"lock_file"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.SlackChannel, f.Slack.Channel)
	setString(&c.SlackSecretID, f.Slack.SecretID)
	setString(&c.SlackSecretField, f.Slack.SecretField)

	setString(&c.Store, strings.ToLower(f.Store.Kind))
	setString(&c.Bucket, f.Store.Bucket)
	setString(&c.SitesChecksum, f.Store.SitesChecksum)
	setString(&c.MinioEndpoint, f.Store.Endpoint)
	setString(&c.MinioAccessKey, f.Store.AccessKey)
	setString(&c.MinioSecretKey, f.Store.SecretKey)
	if f.Store.Secure != nil {
		c.MinioSecure = *f.Store.Secure
	}

	setString(&c.Namespace, f.Discovery.Namespace)
	setString(&c.ServiceName, f.Discovery.Service)
	setString(&c.CheckAttribute, f.Discovery.Attribute)

	if f.Grouping.Concurrency != 0 {
		c.Concurrency = f.Grouping.Concurrency
	}
	if f.Grouping.Relatedness != 0 {
		c.Relatedness = f.Grouping.Relatedness
	}
	setString(&c.ExcludeRegex, f.Grouping.Exclude)
	if f.Grouping.PollRateLimit != 0 {
		c.PollRateLimit = f.Grouping.PollRateLimit
	}
	if f.Grouping.PollInterval != "" {
		if c.PollInterval, err = time.ParseDuration(f.Grouping.PollInterval); err != nil {
			return fmt.Errorf("parse config file %s: poll_interval: %w", path, err)
		}
	}
	if f.Grouping.Timeout != "" {
		if c.BatchTimeout, err = time.ParseDuration(f.Grouping.Timeout); err != nil {
			return fmt.Errorf("parse config file %s: timeout: %w", path, err)
		}
	}
	setString(&c.BatchTimezone, f.Grouping.Timezone)

	setString(&c.HistoryURL, f.History.URL)
	setString(&c.HistoryNamespace, f.History.Namespace)
	setString(&c.HistoryDatabase, f.History.Database)
	setString(&c.HistoryUser, f.History.User)
	setString(&c.HistoryPass, f.History.Pass)

	setString(&c.AWSRegion, f.Region)
	setString(&c.LogFile, f.LogFile)
	if f.LogLevel != "" {
		c.LogLevel = parseLogLevel(f.LogLevel)
	}
	setString(&c.LockFile, f.LockFile)
	return nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.Relatedness < 0 || c.Relatedness > 1 {
		return fmt.Errorf("relatedness must be within [0,1], got %g", c.Relatedness)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.PollRateLimit < 0 {
		return fmt.Errorf("poll rate limit must not be negative, got %g", c.PollRateLimit)
	}
	if _, err := regexp.Compile(c.ExcludeRegex); err != nil {
		return fmt.Errorf("exclude regex: %w", err)
	}
	if _, err := time.LoadLocation(c.BatchTimezone); err != nil {
		return fmt.Errorf("batch timezone: %w", err)
	}
	switch c.Store {
	case StoreS3:
	case StoreMinio:
		if c.MinioEndpoint == "" {
			return errors.New("minio store requires HOLMES_MINIO_ENDPOINT")
		}
	default:
		return fmt.Errorf("unknown fingerprint store %q", c.Store)
	}
	return nil
}

// Location returns the timezone batch days are computed in.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.BatchTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
