package shared

import (
	"fmt"
	"os/exec"
	"runtime"
)

var getRuntime = func() string { return runtime.GOOS }

// browserCommands maps GOOS to the launcher used for OAuth consent pages.
var browserCommands = map[string][]string{
	"darwin":  {"open"},
	"linux":   {"xdg-open"},
	"freebsd": {"xdg-open"},
	"windows": {"rundll32", "url.dll,FileProtocolHandler"},
}

// BrowserCommand returns the command that opens url on the current platform.
func BrowserCommand(url string) (*exec.Cmd, error) {
	launcher, ok := browserCommands[getRuntime()]
	if !ok {
		return nil, fmt.Errorf("%w: no browser launcher for %s", ErrServiceUnavailable, getRuntime())
	}
	args := append(append([]string{}, launcher[1:]...), url)
	return exec.Command(launcher[0], args...), nil
}

// OpenBrowser opens the default system browser to the specified URL.
func OpenBrowser(url string) error {
	cmd, err := BrowserCommand(url)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
