//go:build darwin

package supervisor

import (
	"fmt"
	"os/exec"
	"strings"
)

// openTerminalWindowPlatform asks Terminal.app (falling back to iTerm2) to
// open a new window running command in cwd, grounded on the AppleScript
// idiom in victorarias-attn's internal/wrapper/window_darwin.go.
func openTerminalWindowPlatform(command []string, cwd string) error {
	shellCmd := strings.Join(quoteAll(command), " ")
	script := fmt.Sprintf(`tell application "Terminal"
    activate
    do script "cd %s && %s"
end tell`, shellQuote(cwd), shellCmd)

	cmd := exec.Command("osascript", "-e", script)
	if err := cmd.Run(); err == nil {
		return nil
	}

	itermScript := fmt.Sprintf(`tell application "iTerm2"
    activate
    set newWindow to (create window with default profile)
    tell current session of newWindow
        write text "cd %s && %s"
    end tell
end tell`, shellQuote(cwd), shellCmd)
	return exec.Command("osascript", "-e", itermScript).Run()
}

func quoteAll(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = shellQuote(a)
	}
	return out
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
