package validation

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// FileError describes a missing or unusable file.
type FileError struct {
	Path    string
	Message string
}

func (e *FileError) Error() string {
	return e.Message
}

// CheckFileExists returns a *FileError unless path names a regular file.
func CheckFileExists(path string) error {
	if path == "" {
		return &FileError{Path: path, Message: "file path cannot be empty"}
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &FileError{Path: path, Message: fmt.Sprintf("file not found: %s", path)}
	case err != nil:
		return &FileError{Path: path, Message: fmt.Sprintf("error checking file %s: %v", path, err)}
	case info.IsDir():
		return &FileError{Path: path, Message: fmt.Sprintf("path is a directory, not a file: %s", path)}
	}
	return nil
}
