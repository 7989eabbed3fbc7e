// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC as the process timezone; analysis uses ANALYSIS_TIMEZONE.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Scan environment for _FILE suffix variables and resolve them via the
//     SecretProvider, injecting the values back into the environment.
//  4. Use envconfig to process struct tags and populate the Config struct.
//  5. Populate BuildInfo from linker-injected variables.
//  6. Validate the struct using go-playground/validator.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig to aid debugging.
// It wraps a ConfigErrorType and an underlying error message.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// secretFileSuffix marks pointer variables: LLM_API_KEY_FILE names the file
// holding LLM_API_KEY.
const secretFileSuffix = "_FILE"

// envLookup is a function type for looking up environment variables.
// It matches the signature of os.LookupEnv and allows injection for testing.
type envLookup func(key string) (string, bool)

// envSet is a function type for setting environment variables.
// It matches the signature of os.Setenv and allows injection for testing.
type envSet func(key, value string) error

// environ is a function type for listing all environment variables.
// It matches the signature of os.Environ and allows injection for testing.
type environ func() []string

// loaderDeps holds the injectable dependencies for the loader, enabling
// testing without mutating global state.
type loaderDeps struct {
	lookupEnv envLookup
	setEnv    envSet
	environ   environ
	dotenv    []string
}

// defaultDeps returns the standard OS-backed dependencies.
func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
	}
}

// LoadConfig loads and validates the configuration. A nil provider reads
// secret files from disk.
func LoadConfig(provider SecretProvider, dotenvFiles ...string) (*Config, error) {
	deps := defaultDeps()
	deps.dotenv = dotenvFiles
	return loadConfigWithDeps(provider, deps)
}

// loadConfigWithDeps is the internal implementation of LoadConfig that accepts
// injectable dependencies for testing.
func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	// Step 1: Enforce UTC timezone to prevent drift bugs.
	time.Local = time.UTC

	// Step 2: Load .env file (non-fatal if absent). godotenv does NOT
	// override existing environment variables.
	_ = godotenv.Load(deps.dotenv...)

	// Step 3: Resolve *_FILE secrets.
	if provider == nil {
		provider = FileSecretProvider{}
	}
	if err := resolveSecretFiles(provider, deps); err != nil {
		return nil, err
	}

	// Step 4: Process envconfig tags to populate the Config struct.
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	// Step 5: Populate build metadata from linker-injected variables.
	cfg.Build = NewBuildInfo()

	// Step 6: Validate the populated struct.
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs the struct validation rules plus the cross-field checks.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	if cfg.MQTT.Password.IsSet() && cfg.MQTT.Username == "" {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "MQTT_PASSWORD requires MQTT_USERNAME",
		}
	}
	if cfg.LLM.Enabled() && !cfg.LLM.APIKey.IsSet() && cfg.Environment != "local" {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "LLM_API_KEY is required when LLM_ENDPOINT is set outside local",
		}
	}
	return nil
}

// resolveSecretFiles scans the environment for variables ending in _FILE,
// reads the referenced secrets via the provider, and injects them back into
// the environment so that envconfig can process them.
//
// If the target variable is already set in the environment (via direct env
// var or .env file), resolution is skipped for that variable. This respects
// the priority chain: OS Environment > Dotenv > secret file.
func resolveSecretFiles(provider SecretProvider, deps loaderDeps) error {
	pathToTarget := make(map[string]string)
	var paths []string

	for _, envEntry := range deps.environ() {
		key, path, ok := strings.Cut(envEntry, "=")
		if !ok || !strings.HasSuffix(key, secretFileSuffix) || path == "" {
			continue
		}
		target := strings.TrimSuffix(key, secretFileSuffix)
		if _, exists := deps.lookupEnv(target); exists {
			continue
		}
		pathToTarget[path] = target
		paths = append(paths, path)
	}

	if len(paths) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resolved, err := provider.GetSecrets(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: fmt.Sprintf("failed to resolve %d secret files", len(paths)),
			Err:     err,
		}
	}

	var missing []string
	for _, path := range paths {
		target := pathToTarget[path]
		value, ok := resolved[path]
		if !ok {
			missing = append(missing, target)
			continue
		}
		if err := deps.setEnv(target, value); err != nil {
			return &ConfigError{
				Type:    ErrSecretResolution,
				Message: fmt.Sprintf("failed to set resolved value for %s", target),
				Err:     err,
			}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: fmt.Sprintf("secret files not found for: %s", strings.Join(missing, ", ")),
		}
	}
	return nil
}
