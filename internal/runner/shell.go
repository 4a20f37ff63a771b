package runner

import "strings"

// shellEscape quotes command for interpolation into a POSIX shell command
// line by wrapping it in single quotes and escaping any single quotes it
// contains.
func shellEscape(command string) string {
	return "'" + strings.ReplaceAll(command, "'", `'\''`) + "'"
}
