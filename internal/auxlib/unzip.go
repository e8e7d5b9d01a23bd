package auxlib

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// unzip extracts a zip archive into dir, rejecting entries that would
// escape it.
func unzip(archive, dir string) error {
	reader, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer reader.Close()

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	for _, file := range reader.File {
		if err := extractEntry(file, dir); err != nil {
			return fmt.Errorf("entry %s: %w", file.Name, err)
		}
	}
	return nil
}

func extractEntry(file *zip.File, dir string) error {
	dest := filepath.Join(dir, filepath.FromSlash(file.Name))
	if !strings.HasPrefix(dest, filepath.Clean(dir)+string(os.PathSeparator)) {
		return fmt.Errorf("path escapes extraction root")
	}

	if file.FileInfo().IsDir() {
		return os.MkdirAll(dest, 0o750)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return err
	}

	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, file.Mode().Perm()|0o200)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, src)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	return err
}
