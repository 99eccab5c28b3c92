package hostapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	ouerrors "openusage.dev/openusage/pkg/errors"
)

func (s *Surface) handleLog(ctx context.Context, caller Caller, args Args) (any, error) {
	level, err := args.OptionalString(CapabilityLog, "level", "info")
	if err != nil {
		return nil, err
	}
	msg, err := args.String(CapabilityLog, "message")
	if err != nil {
		return nil, err
	}

	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, ouerrors.NewHostCallError(string(CapabilityLog), fmt.Sprintf("unknown log level %q", level))
	}

	s.logger.Log(ctx, lvl, msg, "plugin", caller.PluginID)
	return nil, nil
}

func (s *Surface) handleFSExists(_ context.Context, _ Caller, args Args) (any, error) {
	path, err := args.String(CapabilityFSExists, "path")
	if err != nil {
		return nil, err
	}
	expanded, err := s.expandPath(path)
	if err != nil {
		return nil, ouerrors.NewHostCallErrorWithCause(string(CapabilityFSExists), "cannot expand path", err, false)
	}
	_, statErr := os.Stat(expanded)
	return statErr == nil, nil
}

func (s *Surface) handleFSReadText(_ context.Context, _ Caller, args Args) (any, error) {
	path, err := args.String(CapabilityFSReadText, "path")
	if err != nil {
		return nil, err
	}
	expanded, err := s.expandPath(path)
	if err != nil {
		return nil, ouerrors.NewHostCallErrorWithCause(string(CapabilityFSReadText), "cannot expand path", err, false)
	}

	f, err := os.Open(expanded)
	if err != nil {
		return nil, ouerrors.NewHostCallErrorWithCause(string(CapabilityFSReadText), "cannot open "+path, err, false)
	}
	defer f.Close()

	// Read one byte past the limit to detect oversized files without a stat race.
	data, err := io.ReadAll(io.LimitReader(f, s.maxReadBytes+1))
	if err != nil {
		return nil, ouerrors.NewHostCallErrorWithCause(string(CapabilityFSReadText), "cannot read "+path, err, false)
	}
	if int64(len(data)) > s.maxReadBytes {
		return nil, ouerrors.NewHostCallError(string(CapabilityFSReadText),
			fmt.Sprintf("%s exceeds the %d byte read limit", path, s.maxReadBytes))
	}
	return string(data), nil
}

func (s *Surface) handleEnvGet(_ context.Context, _ Caller, args Args) (any, error) {
	name, err := args.String(CapabilityEnvGet, "name")
	if err != nil {
		return nil, err
	}
	value, ok := s.lookupEnv(name)
	if !ok {
		return nil, nil
	}
	return value, nil
}

// expandPath expands a leading ~ to the user's home directory.
func (s *Surface) expandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return filepath.Clean(path), nil
	}
	home, err := s.homeDir()
	if err != nil {
		return "", err
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}
