package errors

import (
	"fmt"
	"strings"
)

// FormatUserError returns a user-friendly error message with actionable guidance.
// It examines the error chain and provides context-appropriate help text.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var configErr *ConfigError
	if As(err, &configErr) {
		return formatConfigError(configErr)
	}

	var manifestErr *ManifestError
	if As(err, &manifestErr) {
		return formatManifestError(manifestErr)
	}

	var dupErr *DuplicateIdentityError
	if As(err, &dupErr) {
		return formatDuplicateIdentityError(dupErr)
	}

	var permErr *PermissionDeniedError
	if As(err, &permErr) {
		return formatPermissionDeniedError(permErr)
	}

	var faultErr *RuntimeFaultError
	if As(err, &faultErr) {
		return formatRuntimeFaultError(faultErr)
	}

	// Default: return the error message as-is
	return err.Error()
}

// formatConfigError formats a ConfigError with actionable guidance.
func formatConfigError(err *ConfigError) string {
	var b strings.Builder

	if err.Field != "" {
		fmt.Fprintf(&b, "Configuration error in '%s': %s\n", err.Field, err.Message)
	} else {
		fmt.Fprintf(&b, "Configuration error: %s\n", err.Message)
	}

	b.WriteString("\nTo fix this:\n")
	b.WriteString("  • Check your config file: ~/.config/openusage/config.toml\n")
	b.WriteString("  • Run 'openusage config' to print the effective configuration\n")

	if err.Cause != nil {
		fmt.Fprintf(&b, "\nUnderlying error: %v", err.Cause)
	}

	return b.String()
}

// formatManifestError points the user at the plugin directory that was skipped.
func formatManifestError(err *ManifestError) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Plugin '%s' was skipped: %s\n", err.Dir, err.Message)

	b.WriteString("\nTo fix this:\n")
	switch err.Field {
	case "entry":
		b.WriteString("  • Make sure the entry file exists inside the plugin directory\n")
		b.WriteString("  • Entry paths must be relative and must not leave the plugin directory\n")
	case "version":
		b.WriteString("  • Use a semantic version such as 1.2.0\n")
	case "id":
		b.WriteString("  • Use a lowercase id made of letters, digits, '-' or '_'\n")
	case "requirements.host":
		b.WriteString("  • Update the plugin or the host so the host API requirement is met\n")
	default:
		b.WriteString("  • Add a plugin.json (or manifest.yaml) declaring id, version, entry and capabilities\n")
		b.WriteString("  • Run 'openusage plugins validate <dir>' to check a single plugin\n")
	}

	if err.Cause != nil {
		fmt.Fprintf(&b, "\nUnderlying error: %v", err.Cause)
	}

	return b.String()
}

func formatDuplicateIdentityError(err *DuplicateIdentityError) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Plugin '%s' was skipped: id %q is already used by '%s'\n", err.Dir, err.ID, err.FirstDir)
	b.WriteString("\nTo fix this:\n")
	b.WriteString("  • Give each plugin a unique id in its manifest\n")
	b.WriteString("  • Remove the stale copy from the plugins directory\n")

	return b.String()
}

func formatPermissionDeniedError(err *PermissionDeniedError) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Plugin '%s' tried to use '%s' without declaring it\n", err.Plugin, err.Capability)
	b.WriteString("\nTo fix this:\n")
	fmt.Fprintf(&b, "  • Add %q to the capabilities list in the plugin manifest\n", err.Capability)
	b.WriteString("  • Run 'openusage capabilities' to list what the host provides\n")

	return b.String()
}

func formatRuntimeFaultError(err *RuntimeFaultError) string {
	var b strings.Builder

	if err.Operation != "" {
		fmt.Fprintf(&b, "Plugin '%s' failed during %s: %s\n", err.Plugin, err.Operation, err.Message)
	} else {
		fmt.Fprintf(&b, "Plugin '%s' failed: %s\n", err.Plugin, err.Message)
	}

	b.WriteString("\nThe plugin has been disabled for this session. Other plugins are unaffected.\n")
	b.WriteString("\nTo troubleshoot:\n")
	b.WriteString("  • Run with --verbose for the plugin's log output\n")
	b.WriteString("  • Check the plugin's entry file for uncaught errors\n")

	if err.Cause != nil {
		fmt.Fprintf(&b, "\nUnderlying error: %v", err.Cause)
	}

	return b.String()
}
