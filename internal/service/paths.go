package service

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const previewSize = 4096

// resolveUnderRoot canonicalizes a client-supplied path and verifies it
// stays inside the allowed root after symlink resolution. Every
// path-accepting entry point goes through here before any filesystem read.
func (s *AttributionService) resolveUnderRoot(path string) (string, error) {
	if path == "" {
		return "", NewErrInvalidPath(path, "empty path")
	}
	if !filepath.IsAbs(path) {
		return "", NewErrInvalidPath(path, "path must be absolute")
	}

	resolved, err := filepath.EvalSymlinks(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", NewErrPathNotFound(path)
		}
		return "", NewErrInvalidPath(path, err.Error())
	}

	if resolved != s.root && !strings.HasPrefix(resolved, s.root+string(filepath.Separator)) {
		return "", NewErrPathOutsideRoot(path)
	}
	return resolved, nil
}

// resolveLogFile additionally requires a non-empty regular file.
func (s *AttributionService) resolveLogFile(path string) (string, error) {
	resolved, err := s.resolveUnderRoot(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", NewErrPathNotFound(path)
	}
	if !info.Mode().IsRegular() {
		return "", NewErrNotRegularFile(path)
	}
	if info.Size() == 0 {
		return "", NewErrEmptyFile(path)
	}
	return resolved, nil
}

// ReadPreview returns the first 4KB of a file. Read-only; no cache
// interaction.
func (s *AttributionService) ReadPreview(path string) (string, error) {
	resolved, err := s.resolveLogFile(path)
	if err != nil {
		return "", err
	}

	f, err := os.Open(resolved)
	if err != nil {
		return "", NewErrPathNotFound(path)
	}
	defer f.Close()

	buf := make([]byte, previewSize)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return "", NewErrInvalidPath(path, err.Error())
	}
	return string(buf[:n]), nil
}
