// Package errors provides typed errors for the openusage plugin engine.
//
// This package defines the error kinds surfaced by discovery, installation,
// manifest loading, the host API surface, and the plugin runtime. All error
// types implement the standard error interface and support errors.Is() and
// errors.As() from the standard library and cockroachdb/errors.
//
// None of these kinds is fatal to the host process. Filesystem and manifest
// errors degrade to partial results, permission and capability errors are
// returned to the invoking plugin, and runtime faults are isolated to the
// plugin that raised them.
package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Field   string // Which config field has the issue
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
	}
	return "config error: " + e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewConfigErrorWithCause creates a new ConfigError with an underlying cause.
func NewConfigErrorWithCause(field, message string, cause error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Cause: cause}
}

// FilesystemError represents a create, read, or copy failure.
// It is always recoverable: callers log it and continue with partial results.
type FilesystemError struct {
	Op   string // e.g., "mkdir", "readdir", "copy"
	Path string
	Err  error
}

// Error implements the error interface.
func (e *FilesystemError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("filesystem %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("filesystem %s %s failed", e.Op, e.Path)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *FilesystemError) Unwrap() error {
	return e.Err
}

// NewFilesystemError creates a new FilesystemError.
func NewFilesystemError(op, path string, err error) *FilesystemError {
	return &FilesystemError{Op: op, Path: path, Err: err}
}

// ManifestError represents a missing, malformed, or incomplete plugin manifest.
// Dir is the plugin directory name so users can locate the offending plugin.
type ManifestError struct {
	Dir     string
	Field   string // Offending manifest field, empty for parse failures
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ManifestError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("manifest in %s: %s: %s", e.Dir, e.Field, e.Message)
	}
	return fmt.Sprintf("manifest in %s: %s", e.Dir, e.Message)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *ManifestError) Unwrap() error {
	return e.Cause
}

// NewManifestError creates a new ManifestError.
func NewManifestError(dir, field, message string) *ManifestError {
	return &ManifestError{Dir: dir, Field: field, Message: message}
}

// WithCause adds an underlying cause to the ManifestError.
func (e *ManifestError) WithCause(cause error) *ManifestError {
	e.Cause = cause
	return e
}

// DuplicateIdentityError is returned when a manifest declares an identity
// that is already present in the catalog. The later entry is rejected.
type DuplicateIdentityError struct {
	ID       string
	Dir      string // Directory of the rejected plugin
	FirstDir string // Directory of the plugin that kept the identity
}

// Error implements the error interface.
func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("plugin id %q in %s already provided by %s", e.ID, e.Dir, e.FirstDir)
}

// NewDuplicateIdentityError creates a new DuplicateIdentityError.
func NewDuplicateIdentityError(id, dir, firstDir string) *DuplicateIdentityError {
	return &DuplicateIdentityError{ID: id, Dir: dir, FirstDir: firstDir}
}

// PermissionDeniedError is returned to a plugin that invokes a capability
// it did not declare in its manifest.
type PermissionDeniedError struct {
	Plugin     string
	Capability string
}

// Error implements the error interface.
func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: plugin %s did not declare capability %s", e.Plugin, e.Capability)
}

// NewPermissionDeniedError creates a new PermissionDeniedError.
func NewPermissionDeniedError(plugin, capability string) *PermissionDeniedError {
	return &PermissionDeniedError{Plugin: plugin, Capability: capability}
}

// NotSupportedError is returned when a plugin invokes a capability the host
// does not provide, e.g. an older host running a newer plugin.
type NotSupportedError struct {
	Capability string
}

// Error implements the error interface.
func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("capability %s is not supported by this host", e.Capability)
}

// NewNotSupportedError creates a new NotSupportedError.
func NewNotSupportedError(capability string) *NotSupportedError {
	return &NotSupportedError{Capability: capability}
}

// RuntimeFaultError represents an uncaught failure inside a plugin's
// execution. It is isolated to that plugin, which transitions to Error.
type RuntimeFaultError struct {
	Plugin    string
	Operation string // e.g., "load", "activate", "probe"
	Message   string
	Cause     error
}

// Error implements the error interface.
func (e *RuntimeFaultError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("plugin %s faulted during %s: %s", e.Plugin, e.Operation, e.Message)
	}
	return fmt.Sprintf("plugin %s faulted: %s", e.Plugin, e.Message)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *RuntimeFaultError) Unwrap() error {
	return e.Cause
}

// NewRuntimeFaultError creates a new RuntimeFaultError.
func NewRuntimeFaultError(plugin, operation, message string, cause error) *RuntimeFaultError {
	return &RuntimeFaultError{Plugin: plugin, Operation: operation, Message: message, Cause: cause}
}

// HostCallError represents a failed host-side effect of a granted capability,
// for example an HTTP request that could not be completed.
type HostCallError struct {
	Capability string
	StatusCode int // HTTP status code if applicable
	Message    string
	Retryable  bool
	Cause      error
}

// Error implements the error interface.
func (e *HostCallError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("host %s failed (HTTP %d): %s", e.Capability, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("host %s failed: %s", e.Capability, e.Message)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *HostCallError) Unwrap() error {
	return e.Cause
}

// NewHostCallError creates a new HostCallError.
func NewHostCallError(capability, message string) *HostCallError {
	return &HostCallError{Capability: capability, Message: message}
}

// NewHostCallErrorWithStatus creates a new HostCallError with HTTP status code.
func NewHostCallErrorWithStatus(capability string, statusCode int, message string) *HostCallError {
	return &HostCallError{
		Capability: capability,
		StatusCode: statusCode,
		Message:    message,
		Retryable:  isRetryableHTTPStatus(statusCode),
	}
}

// NewHostCallErrorWithCause creates a new HostCallError with an underlying cause.
func NewHostCallErrorWithCause(capability, message string, cause error, retryable bool) *HostCallError {
	return &HostCallError{
		Capability: capability,
		Message:    message,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// PluginError represents errors related to plugin lifecycle management.
type PluginError struct {
	Plugin    string
	Operation string // e.g., "Activate", "Deactivate", "Invoke"
	Message   string
	Cause     error
}

// Error implements the error interface.
func (e *PluginError) Error() string {
	if e.Plugin != "" {
		return fmt.Sprintf("plugin %s %s failed: %s", e.Plugin, e.Operation, e.Message)
	}
	return fmt.Sprintf("plugin %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *PluginError) Unwrap() error {
	return e.Cause
}

// NewPluginError creates a new PluginError.
func NewPluginError(plugin, operation, message string) *PluginError {
	return &PluginError{Plugin: plugin, Operation: operation, Message: message}
}

// WithCause adds an underlying cause to the PluginError.
func (e *PluginError) WithCause(cause error) *PluginError {
	e.Cause = cause
	return e
}

// IsRetryable checks if an error or any error in its chain is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var hostErr *HostCallError
	if errors.As(err, &hostErr) {
		return hostErr.Retryable
	}

	return false
}

// IsConfigError checks if an error or any error in its chain is a ConfigError.
func IsConfigError(err error) bool {
	var configErr *ConfigError
	return errors.As(err, &configErr)
}

// IsFilesystemError checks if an error or any error in its chain is a FilesystemError.
func IsFilesystemError(err error) bool {
	var fsErr *FilesystemError
	return errors.As(err, &fsErr)
}

// IsManifestError checks if an error or any error in its chain is a ManifestError.
func IsManifestError(err error) bool {
	var manifestErr *ManifestError
	return errors.As(err, &manifestErr)
}

// IsDuplicateIdentity checks if an error or any error in its chain is a DuplicateIdentityError.
func IsDuplicateIdentity(err error) bool {
	var dupErr *DuplicateIdentityError
	return errors.As(err, &dupErr)
}

// IsPermissionDenied checks if an error or any error in its chain is a PermissionDeniedError.
func IsPermissionDenied(err error) bool {
	var permErr *PermissionDeniedError
	return errors.As(err, &permErr)
}

// IsNotSupported checks if an error or any error in its chain is a NotSupportedError.
func IsNotSupported(err error) bool {
	var nsErr *NotSupportedError
	return errors.As(err, &nsErr)
}

// IsRuntimeFault checks if an error or any error in its chain is a RuntimeFaultError.
func IsRuntimeFault(err error) bool {
	var faultErr *RuntimeFaultError
	return errors.As(err, &faultErr)
}

// IsHostCallError checks if an error or any error in its chain is a HostCallError.
func IsHostCallError(err error) bool {
	var hostErr *HostCallError
	return errors.As(err, &hostErr)
}

// IsPluginError checks if an error or any error in its chain is a PluginError.
func IsPluginError(err error) bool {
	var pluginErr *PluginError
	return errors.As(err, &pluginErr)
}

// isRetryableHTTPStatus returns true for HTTP status codes that are typically retryable.
func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}

// Re-export commonly used functions from cockroachdb/errors for convenience.
// This allows consumers to use ouerrors.Wrap() instead of importing two packages.
var (
	// New creates a new error with the given message.
	New = errors.New

	// Newf creates a new error with formatted message.
	Newf = errors.Newf

	// Wrap wraps an error with additional context.
	Wrap = errors.Wrap

	// Wrapf wraps an error with formatted additional context.
	Wrapf = errors.Wrapf

	// Is reports whether any error in err's chain matches target.
	Is = errors.Is

	// As finds the first error in err's chain that matches target.
	As = errors.As

	// Cause returns the root cause of an error.
	Cause = errors.Cause
)
