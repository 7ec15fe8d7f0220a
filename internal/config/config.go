// Package config provides centralized configuration for the e2e login helpers.
// It loads configuration from a .env file, environment variables, and CLI flags,
// validates it, and provides defaults that match a locally running stack.
//
// Real environment variables always win over .env entries.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kuitang/e2eauth/internal/crypto"
	"github.com/kuitang/e2eauth/internal/urlutil"
)

const (
	DefaultAPIBaseURL = "http://localhost:8000"
	DefaultBaseURL    = "http://localhost:3000"

	// Seeded test account of the application under test.
	DefaultUsername = "admin@example.com"
	DefaultPassword = "testpass123"

	DriverPlaywright = "playwright"
	DriverRod        = "rod"

	defaultStateFile = "auth-state.json"
	defaultEnvFile   = ".env"
	defaultAWSRegion = "us-east-1"
)

// Config holds all login-helper configuration.
type Config struct {
	// Endpoints
	APIBaseURL string // API_BASE_URL
	BaseURL    string // BASE_URL, site root of the application under test

	// Test account
	Username string // E2E_USERNAME
	Password string // E2E_PASSWORD

	// Browser
	Driver   string // E2E_DRIVER: playwright | rod
	Headless bool   // E2E_HEADLESS

	// Bounds for soft waits and the token request
	ElementTimeout     time.Duration // E2E_ELEMENT_TIMEOUT
	NavigationTimeout  time.Duration // E2E_NAVIGATION_TIMEOUT
	NetworkIdleTimeout time.Duration // E2E_NETWORK_IDLE_TIMEOUT
	HTTPTimeout        time.Duration // E2E_HTTP_TIMEOUT

	// Login pacing per account; LoginRPS <= 0 disables it
	LoginRPS   float64 // E2E_LOGIN_RPS
	LoginBurst int     // E2E_LOGIN_BURST

	// Artifacts (storage-state files, failure screenshots)
	ArtifactsDir       string // ARTIFACTS_DIR
	ArtifactsBucket    string // ARTIFACTS_BUCKET
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY
	S3UsePathStyle     bool   // S3_USE_PATH_STYLE
	ArtifactsKey       string // ARTIFACTS_KEY, 32-byte key (hex or base64) sealing uploads

	// CLI
	StateFile string
	Upload    bool
}

// Flags are the command-line overrides accepted by cmd/authstate.
type Flags struct {
	Driver  string
	Headed  bool
	Out     string
	Upload  bool
	EnvFile string
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ParseFlags parses CLI flags from args (normally os.Args[1:]).
func ParseFlags(args []string, output io.Writer) (Flags, error) {
	var f Flags
	set := flag.NewFlagSet("authstate", flag.ContinueOnError)
	if output != nil {
		set.SetOutput(output)
	}
	set.StringVar(&f.Driver, "driver", "", "Browser driver: playwright or rod (overrides E2E_DRIVER)")
	set.BoolVar(&f.Headed, "headed", false, "Show the browser window")
	set.StringVar(&f.Out, "out", defaultStateFile, "Where to write the storage-state JSON")
	set.BoolVar(&f.Upload, "upload", false, "Also upload the storage state to the artifact store")
	set.StringVar(&f.EnvFile, "env-file", defaultEnvFile, "Optional dotenv file loaded before reading the environment")
	if err := set.Parse(args); err != nil {
		return Flags{}, err
	}
	return f, nil
}

// LoadConfig loads configuration from the dotenv file, environment variables and flag values.
func LoadConfig(f Flags) (*Config, error) {
	if err := loadEnvFile(f.EnvFile); err != nil {
		return nil, err
	}

	cfg := FromEnv()

	if f.Driver != "" {
		cfg.Driver = strings.ToLower(strings.TrimSpace(f.Driver))
	}
	if f.Headed {
		cfg.Headless = false
	}
	if f.Out != "" {
		cfg.StateFile = f.Out
	}
	cfg.Upload = f.Upload

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// APIBaseURLFromEnv returns API_BASE_URL, normalized, or DefaultAPIBaseURL.
func APIBaseURLFromEnv() string {
	return urlutil.NormalizeBaseURL(getEnvOrDefault("API_BASE_URL", DefaultAPIBaseURL))
}

// BaseURLFromEnv returns BASE_URL, normalized, or DefaultBaseURL.
func BaseURLFromEnv() string {
	return urlutil.NormalizeBaseURL(getEnvOrDefault("BASE_URL", DefaultBaseURL))
}

// FromEnv reads configuration from the environment only, applying defaults.
// Test harnesses use it directly; it does not validate.
func FromEnv() *Config {
	cfg := &Config{}

	cfg.APIBaseURL = APIBaseURLFromEnv()
	cfg.BaseURL = BaseURLFromEnv()

	cfg.Username = getEnvOrDefault("E2E_USERNAME", DefaultUsername)
	cfg.Password = getEnvOrDefault("E2E_PASSWORD", DefaultPassword)

	cfg.Driver = strings.ToLower(getEnvOrDefault("E2E_DRIVER", DriverPlaywright))
	cfg.Headless = parseBoolOrDefault("E2E_HEADLESS", true)

	cfg.ElementTimeout = parseDurationOrDefault("E2E_ELEMENT_TIMEOUT", 5*time.Second)
	cfg.NavigationTimeout = parseDurationOrDefault("E2E_NAVIGATION_TIMEOUT", 10*time.Second)
	cfg.NetworkIdleTimeout = parseDurationOrDefault("E2E_NETWORK_IDLE_TIMEOUT", 10*time.Second)
	cfg.HTTPTimeout = parseDurationOrDefault("E2E_HTTP_TIMEOUT", 30*time.Second)

	cfg.LoginRPS = parseFloat64OrDefault("E2E_LOGIN_RPS", 2)
	cfg.LoginBurst = parseIntOrDefault("E2E_LOGIN_BURST", 5)

	cfg.ArtifactsDir = strings.TrimSpace(os.Getenv("ARTIFACTS_DIR"))
	cfg.ArtifactsBucket = strings.TrimSpace(os.Getenv("ARTIFACTS_BUCKET"))
	cfg.AWSEndpointS3 = strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL_S3"))
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultAWSRegion)
	cfg.AWSAccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	cfg.AWSSecretAccessKey = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))
	cfg.S3UsePathStyle = parseBoolOrDefault("S3_USE_PATH_STYLE", false)
	cfg.ArtifactsKey = strings.TrimSpace(os.Getenv("ARTIFACTS_KEY"))

	cfg.StateFile = defaultStateFile
	return cfg
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []string

	if !urlutil.IsHTTPURL(c.APIBaseURL) {
		errs = append(errs, fmt.Sprintf("API_BASE_URL must be an absolute http(s) URL, got %q", c.APIBaseURL))
	}
	if !urlutil.IsHTTPURL(c.BaseURL) {
		errs = append(errs, fmt.Sprintf("BASE_URL must be an absolute http(s) URL, got %q", c.BaseURL))
	}

	if c.Username == "" {
		errs = append(errs, "E2E_USERNAME must not be empty")
	}
	if c.Password == "" {
		errs = append(errs, "E2E_PASSWORD must not be empty")
	}

	switch c.Driver {
	case DriverPlaywright, DriverRod:
	default:
		errs = append(errs, fmt.Sprintf("E2E_DRIVER must be %q or %q, got %q", DriverPlaywright, DriverRod, c.Driver))
	}

	if c.ElementTimeout <= 0 {
		errs = append(errs, "E2E_ELEMENT_TIMEOUT must be positive")
	}
	if c.NavigationTimeout <= 0 {
		errs = append(errs, "E2E_NAVIGATION_TIMEOUT must be positive")
	}
	if c.NetworkIdleTimeout <= 0 {
		errs = append(errs, "E2E_NETWORK_IDLE_TIMEOUT must be positive")
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, "E2E_HTTP_TIMEOUT must be positive")
	}
	if c.LoginRPS > 0 && c.LoginBurst < 1 {
		errs = append(errs, "E2E_LOGIN_BURST must be at least 1 when E2E_LOGIN_RPS is set")
	}

	if c.ArtifactsBucket != "" && (c.AWSAccessKeyID == "") != (c.AWSSecretAccessKey == "") {
		errs = append(errs, "AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
	}
	if c.ArtifactsKey != "" {
		if _, err := crypto.ParseMasterKey(c.ArtifactsKey); err != nil {
			errs = append(errs, "ARTIFACTS_KEY must be 32 bytes, hex or base64 encoded")
		}
	}
	if c.Upload && !c.HasArtifactStore() {
		errs = append(errs, "--upload requires ARTIFACTS_BUCKET or ARTIFACTS_DIR")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// HasArtifactStore reports whether any artifact destination is configured.
func (c *Config) HasArtifactStore() bool {
	return c.ArtifactsBucket != "" || c.ArtifactsDir != ""
}

// PrintStartupSummary prints a human-readable summary of the configuration to w.
func (c *Config) PrintStartupSummary(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "authstate starting...")
	fmt.Fprintf(w, "  API:       %s\n", c.APIBaseURL)
	fmt.Fprintf(w, "  Site:      %s\n", c.BaseURL)
	fmt.Fprintf(w, "  Account:   %s\n", c.Username)
	fmt.Fprintf(w, "  Driver:    %s (headless=%t)\n", c.Driver, c.Headless)
	if c.LoginRPS > 0 {
		fmt.Fprintf(w, "  Pacing:    %.2f logins/s, burst %d\n", c.LoginRPS, c.LoginBurst)
	} else {
		fmt.Fprintln(w, "  Pacing:    disabled")
	}

	switch {
	case c.ArtifactsBucket != "":
		fmt.Fprintf(w, "  Artifacts: s3://%s (sealed=%t)\n", c.ArtifactsBucket, c.ArtifactsKey != "")
	case c.ArtifactsDir != "":
		fmt.Fprintf(w, "  Artifacts: %s (sealed=%t)\n", c.ArtifactsDir, c.ArtifactsKey != "")
	default:
		fmt.Fprintln(w, "  Artifacts: disabled")
	}
	fmt.Fprintf(w, "  State:     %s\n", c.StateFile)
	fmt.Fprintln(w, "")
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
