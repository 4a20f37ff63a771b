package container

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/banksean/toast/internal/toasterr"
)

// placeStagedPath moves (or, failing that, copies) the path staged at
// source into destination. Renaming can fail across filesystem
// boundaries, e.g. when the staging directory lives on an in-memory
// tmpfs; in that case the file, directory tree, or symlink is copied
// instead.
func placeStagedPath(source, destination string) error {
	info, err := os.Lstat(source)
	if err != nil {
		return toasterr.System(fmt.Sprintf("Unable to fetch filesystem metadata for `%s`.", source), err)
	}

	if info.IsDir() {
		return placeStagedDir(source, destination)
	}

	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return toasterr.System(fmt.Sprintf("Unable to create directory `%s`.", filepath.Dir(destination)), err)
	}
	return renameOrCopyEntry(source, destination, info)
}

func placeStagedDir(source, destination string) error {
	return filepath.WalkDir(source, func(entryPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return toasterr.System(fmt.Sprintf("Unable to traverse directory `%s`.", source), err)
		}

		rel, err := filepath.Rel(source, entryPath)
		if err != nil {
			return toasterr.System(fmt.Sprintf("Unable to relativize path `%s`.", entryPath), err)
		}
		destPath := filepath.Join(destination, rel)

		if d.IsDir() {
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return toasterr.System(fmt.Sprintf("Unable to create directory `%s`.", destPath), err)
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return toasterr.System(fmt.Sprintf("Unable to fetch filesystem metadata for `%s`.", entryPath), err)
		}
		return renameOrCopyEntry(entryPath, destPath, info)
	})
}

// renameOrCopyEntry moves a single file or symlink (never a directory) to
// destination, copying instead if the rename fails.
func renameOrCopyEntry(source, destination string, info fs.FileInfo) error {
	if err := os.Rename(source, destination); err == nil {
		return nil
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(source)
		if err != nil {
			return toasterr.System(fmt.Sprintf("Unable to read target of symbolic link `%s`.", source), err)
		}
		if err := os.Symlink(target, destination); err != nil {
			return toasterr.System(fmt.Sprintf("Unable to create symbolic link at `%s`.", destination), err)
		}
		return nil
	}

	return copyFile(source, destination, info)
}

func copyFile(source, destination string, info fs.FileInfo) error {
	in, err := os.Open(source)
	if err != nil {
		return toasterr.System(fmt.Sprintf("Unable to open `%s`.", source), err)
	}
	defer in.Close()

	out, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return toasterr.System(fmt.Sprintf("Unable to create `%s`.", destination), err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return toasterr.System(fmt.Sprintf("Unable to move or copy file `%s` to destination `%s`.", source, destination), err)
	}
	return nil
}
