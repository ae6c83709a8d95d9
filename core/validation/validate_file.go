package validation

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// FileExistsError indicates a missing or unusable path.
type FileExistsError struct {
	Path    string
	Message string
}

func (e *FileExistsError) Error() string {
	return e.Message
}

// CheckFileExists returns nil when path names an existing regular file.
func CheckFileExists(path string) error {
	if path == "" {
		return &FileExistsError{Path: path, Message: "file path cannot be empty"}
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &FileExistsError{Path: path, Message: fmt.Sprintf("file not found: %s", path)}
		}
		return &FileExistsError{Path: path, Message: fmt.Sprintf("error checking file %s: %v", path, err)}
	}
	if info.IsDir() {
		return &FileExistsError{Path: path, Message: fmt.Sprintf("path is a directory, not a file: %s", path)}
	}
	return nil
}

// CheckDirWritable creates dir if needed and proves a file can be written in it.
func CheckDirWritable(dir string) error {
	if dir == "" {
		return &FileExistsError{Path: dir, Message: "directory path cannot be empty"}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &FileExistsError{Path: dir, Message: fmt.Sprintf("cannot create directory %s: %v", dir, err)}
	}

	check, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return &FileExistsError{Path: dir, Message: fmt.Sprintf("directory not writable %s: %v", dir, err)}
	}
	name := check.Name()
	check.Close()
	os.Remove(name)
	return nil
}

// chromeCandidates are the executable names chromedp also searches for.
var chromeCandidates = []string{
	"headless_shell",
	"headless-shell",
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"chrome",
}

// FindChrome returns the configured executable, or the first Chrome-family
// binary on PATH.
func FindChrome(configured string) (string, error) {
	if configured != "" {
		if err := CheckFileExists(configured); err != nil {
			return "", err
		}
		return filepath.Clean(configured), nil
	}
	for _, name := range chromeCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no Chrome or Chromium executable found on PATH")
}
