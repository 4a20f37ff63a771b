// Package archiver builds a reproducible tar archive of a task's input
// paths and derives a content hash identifying the archive, independent
// of filesystem traversal order.
package archiver

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/banksean/toast/internal/hasher"
	"github.com/banksean/toast/internal/toasterr"
)

// Create packs the union of inputPaths (host-relative, rooted at
// sourceDir) into a tar archive written to w, whose entry names are
// relative to the container filesystem root (destDir, an absolute
// container-side path, is prepended to each input path). It returns the
// content hash of the archive. cancel, if closed, aborts the operation
// with toasterr.Interrupted.
func Create(w io.Writer, inputPaths, excludedPaths []string, sourceDir, destDir string, cancel <-chan struct{}) (string, error) {
	var contentHashes []string
	visited := map[string]bool{}

	builder := tar.NewWriter(w)

	destRel := stripRoot(destDir)
	if err := addDirectory(builder, destRel); err != nil {
		return "", err
	}
	visited[destRel] = true

	excludedRel := make([]string, len(excludedPaths))
	for i, p := range excludedPaths {
		excludedRel[i] = stripRoot(path.Join(destDir, p))
	}

	for _, inputPath := range inputPaths {
		select {
		case <-cancel:
			return "", toasterr.Interrupted
		default:
		}

		inputPathHost := filepath.Join(sourceDir, filepath.FromSlash(inputPath))

		info, err := os.Lstat(inputPathHost)
		if err != nil {
			return "", toasterr.System(fmt.Sprintf("Unable to fetch filesystem metadata for `%s`.", inputPathHost), err)
		}

		if info.IsDir() {
			err := filepath.WalkDir(inputPathHost, func(entryPathHost string, d fs.DirEntry, err error) error {
				select {
				case <-cancel:
					return toasterr.Interrupted
				default:
				}
				if err != nil {
					return toasterr.System(fmt.Sprintf("Unable to traverse directory `%s`.", inputPathHost), err)
				}

				relFromSource, err := filepath.Rel(sourceDir, entryPathHost)
				if err != nil {
					return toasterr.System(fmt.Sprintf("Unable to relativize path `%s` with respect to `%s`.", entryPathHost, sourceDir), err)
				}
				entryRel := stripRoot(path.Join(destDir, filepath.ToSlash(relFromSource)))

				entryInfo, err := d.Info()
				if err != nil {
					return toasterr.System(fmt.Sprintf("Unable to fetch filesystem metadata for `%s`.", entryPathHost), err)
				}

				if d.IsDir() && pathExcluded(excludedRel, entryRel) {
					return filepath.SkipDir
				}

				return addPath(builder, &contentHashes, visited, excludedRel, entryPathHost, entryRel, entryInfo)
			})
			if err != nil {
				return "", err
			}
		} else {
			relFromSource, err := filepath.Rel(sourceDir, inputPathHost)
			if err != nil {
				return "", toasterr.System(fmt.Sprintf("Unable to relativize path `%s` with respect to `%s`.", inputPathHost, sourceDir), err)
			}
			entryRel := stripRoot(path.Join(destDir, filepath.ToSlash(relFromSource)))
			if err := addPath(builder, &contentHashes, visited, excludedRel, inputPathHost, entryRel, info); err != nil {
				return "", err
			}
		}
	}

	sort.Strings(contentHashes)
	combined := ""
	for _, h := range contentHashes {
		combined = hasher.Combine(combined, h)
	}

	if err := builder.Close(); err != nil {
		return "", toasterr.System("Error writing tar archive.", err)
	}

	return combined, nil
}

// stripRoot makes an absolute container path relative to the filesystem
// root, since tar archives must contain only relative paths.
func stripRoot(absPath string) string {
	return strings.TrimPrefix(path.Clean(absPath), "/")
}

func pathExcluded(excludedRel []string, entryRel string) bool {
	for _, ex := range excludedRel {
		if entryRel == ex || strings.HasPrefix(entryRel, ex+"/") {
			return true
		}
	}
	return false
}

func canAddPath(visited map[string]bool, excludedRel []string, entryRel string) bool {
	if visited[entryRel] {
		return false
	}
	visited[entryRel] = true
	return !pathExcluded(excludedRel, entryRel)
}

func addPath(builder *tar.Writer, contentHashes *[]string, visited map[string]bool, excludedRel []string, hostPath, entryRel string, info fs.FileInfo) error {
	if !canAddPath(visited, excludedRel, entryRel) {
		return nil
	}

	if parent := path.Dir(entryRel); parent != "." && parent != entryRel {
		var ancestors []string
		for a := parent; a != "." && a != "/"; a = path.Dir(a) {
			ancestors = append(ancestors, a)
		}
		for i := len(ancestors) - 1; i >= 0; i-- {
			if canAddPath(visited, excludedRel, ancestors[i]) {
				if err := addDirectory(builder, ancestors[i]); err != nil {
					return err
				}
			}
		}
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(hostPath)
		if err != nil {
			return toasterr.System(fmt.Sprintf("Unable to read target of symbolic link `%s`.", hostPath), err)
		}
		*contentHashes = append(*contentHashes, hasher.Combine(hasher.HashString(entryRel), hasher.HashString(target)))
		return addSymlink(builder, entryRel, target)

	case info.IsDir():
		*contentHashes = append(*contentHashes, hasher.HashString(entryRel))
		return addDirectory(builder, entryRel)

	case info.Mode().IsRegular():
		executable := isExecutable(info)
		file, err := os.Open(hostPath)
		if err != nil {
			return toasterr.System(fmt.Sprintf("Unable to open file `%s`.", hostPath), err)
		}
		defer file.Close()

		contentHash, err := hasher.HashBytes(file)
		if err != nil {
			return toasterr.System(fmt.Sprintf("Unable to hash file `%s`.", hostPath), err)
		}
		xbit := "-x"
		if executable {
			xbit = "+x"
		}
		*contentHashes = append(*contentHashes, hasher.Combine(hasher.Combine(hasher.HashString(entryRel), contentHash), xbit))

		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return toasterr.System(fmt.Sprintf("Unable to seek file `%s`.", hostPath), err)
		}
		return addFile(builder, entryRel, file, info.Size(), executable)

	default:
		return toasterr.User(fmt.Sprintf("`%s` is not a file, directory, or symbolic link.", hostPath), nil)
	}
}

func addFile(builder *tar.Writer, entryRel string, r io.Reader, size int64, executable bool) error {
	mode := int64(0o666)
	if executable {
		mode = 0o777
	}
	header := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     entryRel,
		Mode:     mode,
		Size:     size,
	}
	if err := builder.WriteHeader(header); err != nil {
		return toasterr.System("Error appending data to tar archive.", err)
	}
	if _, err := io.Copy(builder, r); err != nil {
		return toasterr.System("Error appending data to tar archive.", err)
	}
	return nil
}

func addSymlink(builder *tar.Writer, entryRel, target string) error {
	header := &tar.Header{
		Typeflag: tar.TypeSymlink,
		Name:     entryRel,
		Linkname: target,
		Mode:     0o777,
	}
	if err := builder.WriteHeader(header); err != nil {
		return toasterr.System("Error appending symbolic link to tar archive.", err)
	}
	return nil
}

func addDirectory(builder *tar.Writer, entryRel string) error {
	if entryRel == "" || entryRel == "." {
		return nil
	}
	header := &tar.Header{
		Typeflag: tar.TypeDir,
		Name:     entryRel + "/",
		Mode:     0o777,
	}
	if err := builder.WriteHeader(header); err != nil {
		return toasterr.System("Error appending data to tar archive.", err)
	}
	return nil
}
