package errors

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "filesystem with cause",
			err:      NewFilesystemError("copy", "/tmp/a", errors.New("disk full")),
			expected: "filesystem copy /tmp/a: disk full",
		},
		{
			name:     "filesystem without cause",
			err:      &FilesystemError{Op: "mkdir", Path: "/tmp/b"},
			expected: "filesystem mkdir /tmp/b failed",
		},
		{
			name:     "manifest with field",
			err:      NewManifestError("alpha", "version", "must be valid semver"),
			expected: "manifest in alpha: version: must be valid semver",
		},
		{
			name:     "manifest without field",
			err:      NewManifestError("beta", "", "no manifest file found"),
			expected: "manifest in beta: no manifest file found",
		},
		{
			name:     "duplicate identity",
			err:      NewDuplicateIdentityError("claude", "claude-copy", "claude"),
			expected: `plugin id "claude" in claude-copy already provided by claude`,
		},
		{
			name:     "permission denied",
			err:      NewPermissionDeniedError("alpha", "fs.readText"),
			expected: "permission denied: plugin alpha did not declare capability fs.readText",
		},
		{
			name:     "not supported",
			err:      NewNotSupportedError("gpu.render"),
			expected: "capability gpu.render is not supported by this host",
		},
		{
			name:     "runtime fault with operation",
			err:      NewRuntimeFaultError("alpha", "probe", "boom", nil),
			expected: "plugin alpha faulted during probe: boom",
		},
		{
			name:     "runtime fault without operation",
			err:      NewRuntimeFaultError("alpha", "", "boom", nil),
			expected: "plugin alpha faulted: boom",
		},
		{
			name:     "host call with status",
			err:      NewHostCallErrorWithStatus("http.request", 503, "unavailable"),
			expected: "host http.request failed (HTTP 503): unavailable",
		},
		{
			name:     "plugin error without plugin",
			err:      NewPluginError("", "Activate", "no catalog"),
			expected: "plugin Activate failed: no catalog",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestErrorKinds_ErrorsAs(t *testing.T) {
	cause := errors.New("underlying cause")

	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"filesystem", NewFilesystemError("readdir", "/x", cause), IsFilesystemError},
		{"manifest", NewManifestError("dir", "", "bad").WithCause(cause), IsManifestError},
		{"duplicate", NewDuplicateIdentityError("a", "b", "c"), IsDuplicateIdentity},
		{"permission", NewPermissionDeniedError("a", "env.get"), IsPermissionDenied},
		{"not supported", NewNotSupportedError("x"), IsNotSupported},
		{"runtime fault", NewRuntimeFaultError("a", "load", "bad", cause), IsRuntimeFault},
		{"host call", NewHostCallError("http.request", "bad"), IsHostCallError},
		{"plugin", NewPluginError("a", "Invoke", "bad").WithCause(cause), IsPluginError},
		{"config", NewConfigErrorWithCause("log.level", "bad", cause), IsConfigError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := errors.Wrap(tt.err, "operation failed")
			if !tt.check(wrapped) {
				t.Errorf("kind check should find %T in wrapped chain", tt.err)
			}
			if tt.check(errors.New("plain")) {
				t.Error("kind check should not match a plain error")
			}
		})
	}
}

func TestErrorKinds_ErrorsIs(t *testing.T) {
	sentinel := errors.New("sentinel error")

	chained := []error{
		NewFilesystemError("copy", "/a", sentinel),
		NewManifestError("dir", "", "bad").WithCause(sentinel),
		NewRuntimeFaultError("a", "probe", "bad", sentinel),
		NewHostCallErrorWithCause("http.request", "bad", sentinel, false),
		NewPluginError("a", "Activate", "bad").WithCause(sentinel),
	}

	for _, err := range chained {
		if !errors.Is(err, sentinel) {
			t.Errorf("errors.Is() should find sentinel through %T", err)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("x"), false},
		{"429", NewHostCallErrorWithStatus("http.request", 429, "slow down"), true},
		{"503 wrapped", errors.Wrap(NewHostCallErrorWithStatus("http.request", 503, "down"), "ctx"), true},
		{"404", NewHostCallErrorWithStatus("http.request", 404, "missing"), false},
		{"explicit retryable cause", NewHostCallErrorWithCause("http.request", "reset", errors.New("eof"), true), true},
		{"permission denied", NewPermissionDeniedError("a", "b"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetry(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	t.Run("succeeds after retryable failures", func(t *testing.T) {
		attempts := 0
		got, err := Retry(context.Background(), cfg, func() (int, error) {
			attempts++
			if attempts < 3 {
				return 0, NewHostCallErrorWithStatus("http.request", 503, "down")
			}
			return 42, nil
		})
		if err != nil {
			t.Fatalf("Retry() error = %v", err)
		}
		if got != 42 || attempts != 3 {
			t.Errorf("Retry() = %d after %d attempts, want 42 after 3", got, attempts)
		}
	})

	t.Run("stops on non-retryable error", func(t *testing.T) {
		attempts := 0
		_, err := Retry(context.Background(), cfg, func() (int, error) {
			attempts++
			return 0, NewHostCallErrorWithStatus("http.request", 400, "bad request")
		})
		if err == nil || attempts != 1 {
			t.Errorf("Retry() attempts = %d, err = %v; want 1 attempt and an error", attempts, err)
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		attempts := 0
		_, err := Retry(context.Background(), cfg, func() (string, error) {
			attempts++
			return "", NewHostCallErrorWithStatus("http.request", 500, "boom")
		})
		if err == nil || !strings.Contains(err.Error(), "failed after 3 retries") {
			t.Errorf("Retry() error = %v, want exhaustion error", err)
		}
		if attempts != 4 {
			t.Errorf("attempts = %d, want 4", attempts)
		}
	})

	t.Run("honours cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Retry(ctx, cfg, func() (int, error) { return 1, nil })
		if err == nil {
			t.Error("Retry() should fail on a cancelled context")
		}
	})
}

func TestCalculateBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	max := 400 * time.Millisecond

	for attempt := 0; attempt < 6; attempt++ {
		d := CalculateBackoff(base, max, attempt, 0)
		if d > max {
			t.Errorf("attempt %d: delay %v exceeds max %v", attempt, d, max)
		}
	}
	if d := CalculateBackoff(base, max, 1, 0); d != 200*time.Millisecond {
		t.Errorf("attempt 1 without jitter = %v, want 200ms", d)
	}
}

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains []string
	}{
		{"nil", nil, nil},
		{"manifest entry", NewManifestError("beta", "entry", "entry point plugin.lua does not exist"), []string{"beta", "entry file exists"}},
		{"duplicate", NewDuplicateIdentityError("claude", "claude-2", "claude"), []string{"claude-2", "unique id"}},
		{"permission", NewPermissionDeniedError("alpha", "http.request"), []string{"alpha", `"http.request"`}},
		{"fault", errors.Wrap(NewRuntimeFaultError("alpha", "probe", "attempt to index nil", nil), "probe"), []string{"disabled for this session"}},
		{"config", NewConfigError("log.level", "unknown level"), []string{"log.level", "config.toml"}},
		{"plain", errors.New("plain failure"), []string{"plain failure"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatUserError(tt.err)
			if tt.err == nil && got != "" {
				t.Errorf("FormatUserError(nil) = %q, want empty", got)
			}
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("FormatUserError() = %q, want it to contain %q", got, want)
				}
			}
		})
	}
}
