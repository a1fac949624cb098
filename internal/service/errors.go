package service

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch is returned when the remote API answers with vectors
	// whose length differs from the configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrRecordNotFound is returned when a job points at a source record that does not exist.
	ErrRecordNotFound = errors.New("source record not found")

	// ErrUnsupportedDomain is returned for jobs whose domain has no handler.
	ErrUnsupportedDomain = errors.New("unsupported job domain")

	// ErrNotConfigured is returned by entry points started without a usable embedding configuration.
	ErrNotConfigured = errors.New("embedding worker is not configured")
)

// ConfigError reports a configuration problem detected at startup.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// RemoteError is a non-success answer from the embedding API.
type RemoteError struct {
	StatusCode int
	Body       string
	Transient  bool
	Attempts   int
}

func (e *RemoteError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.Body == "" {
		return fmt.Sprintf("embedding API %s error: status %d after %d attempt(s)", kind, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("embedding API %s error: status %d after %d attempt(s): %s", kind, e.StatusCode, e.Attempts, e.Body)
}
