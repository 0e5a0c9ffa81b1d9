package provider

import "fmt"

// ConfigError reports invalid credentials or a missing zone at Init
// time. It is fatal for that provider instance only; other providers
// keep operating.
type ConfigError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: configuration error: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: configuration error: %s", e.Provider, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ValidationError reports a structurally malformed desired spec. It is
// recorded in the batch result and the rest of the batch proceeds.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// APIError reports a vendor-side failure (network, auth, rate limit,
// remote validation). StatusCode and Code carry whatever the vendor
// returned; either may be zero/empty.
type APIError struct {
	Provider   string
	Operation  string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s: %s failed", e.Provider, e.Operation)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Code != "" {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error { return e.Err }
