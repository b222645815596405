package sphinx

import (
	"context"
	"os/exec"
	"regexp"
	"strings"
)

// DetectVersion attempts to detect the version of a sphinx-build executable.
// Returns the version string (e.g., "8.1.3") or empty string if detection fails.
// This is best-effort and will not error if sphinx is unavailable.
func DetectVersion(ctx context.Context, bin string) string {
	if _, err := exec.LookPath(bin); err != nil {
		return ""
	}

	// #nosec G204 -- executable path comes from the venv manager
	cmd := exec.CommandContext(ctx, bin, "--version")
	output, err := cmd.Output()
	if err != nil {
		return ""
	}

	// Expected format examples:
	//   sphinx-build 8.1.3
	//   Sphinx (sphinx-build) 7.2.6
	return parseVersion(string(output))
}

// parseVersion extracts the semantic version from sphinx-build version output.
func parseVersion(output string) string {
	versionRegex := regexp.MustCompile(`(\d+\.\d+\.\d+)`)
	matches := versionRegex.FindStringSubmatch(output)
	if len(matches) >= 2 {
		return matches[1]
	}
	return strings.TrimSpace(output)
}
