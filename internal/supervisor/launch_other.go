//go:build !darwin

package supervisor

import "errors"

// openTerminalWindowPlatform is unsupported on non-macOS hosts: it starts
// nothing and returns an error, so only the background strategy launches a
// runner there.
func openTerminalWindowPlatform(command []string, cwd string) error {
	return errors.New("terminal-attached launch is only supported on macOS")
}
