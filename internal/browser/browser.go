// Package browser opens URLs in the user's default browser.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"
)

// openCommand returns the platform launcher and leading args.
func openCommand() (string, []string, error) {
	switch runtime.GOOS {
	case "darwin":
		return "open", nil, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler"}, nil
	case "linux":
		return "xdg-open", nil, nil
	default:
		return "", nil, fmt.Errorf("no browser launcher for %s", runtime.GOOS)
	}
}

// Open launches the default browser for the given URL (file:// URLs included).
func Open(url string) error {
	name, args, err := openCommand()
	if err != nil {
		return err
	}
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("browser launcher not found: %w", err)
	}
	// #nosec G204 -- launcher name is fixed per platform, not user-controlled
	return exec.Command(name, append(args, url)...).Start()
}
