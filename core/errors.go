package core

import (
	"errors"
	"fmt"
)

// ConfigError represents a configuration-related error with actionable instructions.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeEnvFileMissing     = "ENV_FILE_MISSING"
	ErrCodeConfigFileInvalid  = "CONFIG_FILE_INVALID"
	ErrCodeInvalidAPIURL      = "INVALID_API_URL"
	ErrCodeInvalidValue       = "INVALID_VALUE"
	ErrCodeBackendUnreachable = "BACKEND_UNREACHABLE"
	ErrCodeMissingConfig      = "MISSING_CONFIG"
)

// ErrEnvFileMissing returns an error for missing .env file
func ErrEnvFileMissing(path string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeEnvFileMissing,
		Message: fmt.Sprintf("Configuration file not found: %s", path),
		Action:  "Create a .env file or export the variables in the environment",
	}
}

// ErrConfigFileInvalid returns an error for a YAML config file that could not be read.
func ErrConfigFileInvalid(path string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeConfigFileInvalid,
		Message: fmt.Sprintf("Cannot read config file %s: %s", path, reason),
		Action:  "Fix the YAML syntax or remove the --config flag",
	}
}

// ErrInvalidAPIURL returns an error for an unusable backend base URL.
func ErrInvalidAPIURL(url string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidAPIURL,
		Message: fmt.Sprintf("Invalid API_URL '%s': %s", url, reason),
		Action:  "Set API_URL to the enhancement backend (e.g., http://localhost:8000)",
	}
}

// ErrInvalidValue returns an error for a setting outside its allowed range.
func ErrInvalidValue(varName, value, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidValue,
		Message: fmt.Sprintf("Invalid %s '%s': %s", varName, value, reason),
		Action:  fmt.Sprintf("Correct %s in your .env or config file", varName),
	}
}

// ErrBackendUnreachable returns an error when the enhancement backend cannot be reached
func ErrBackendUnreachable(url string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeBackendUnreachable,
		Message: fmt.Sprintf("Cannot reach enhancement backend at %s: %s", url, reason),
		Action:  "Start the backend or check API_URL. For self-signed certificates, set ALLOW_SELF_SIGNED_CERTS=true",
	}
}

// ErrMissingConfig returns an error for missing required configuration
func ErrMissingConfig(varName string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingConfig,
		Message: fmt.Sprintf("Missing required configuration: %s", varName),
		Action:  fmt.Sprintf("Set %s in your .env file", varName),
	}
}

// IsConfigError checks if an error is, or wraps, a ConfigError and returns it if so
func IsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error if it's a ConfigError
func GetErrorCode(err error) string {
	if configErr, ok := IsConfigError(err); ok {
		return configErr.Code
	}
	return ""
}
