//go:build !unix

package archiver

import "io/fs"

// isExecutable always reports true on non-POSIX platforms, which have
// no executable permission bit of their own.
func isExecutable(_ fs.FileInfo) bool {
	return true
}
