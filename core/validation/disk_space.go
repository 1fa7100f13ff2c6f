package validation

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// MinHistoryFreeBytes is the free space wanted next to the history database.
const MinHistoryFreeBytes uint64 = 100 * humanize.MiByte

// DiskSpace is the capacity of the filesystem holding a path.
type DiskSpace struct {
	Path  string
	Total uint64
	Free  uint64
}

// String renders the free and total space, e.g. "12 GiB free of 50 GiB".
func (d DiskSpace) String() string {
	return fmt.Sprintf("%s free of %s", humanize.IBytes(d.Free), humanize.IBytes(d.Total))
}

// DiskSpaceError reports too little free space.
type DiskSpaceError struct {
	Path      string
	Required  uint64
	Available uint64
}

func (e *DiskSpaceError) Error() string {
	return fmt.Sprintf("insufficient disk space at %s: need %s, have %s free",
		e.Path, humanize.IBytes(e.Required), humanize.IBytes(e.Available))
}

// GetDiskSpace measures the filesystem holding path. A path that does not
// exist yet, such as a database about to be created, is measured at its
// nearest existing ancestor.
func GetDiskSpace(path string) (DiskSpace, error) {
	dir, err := existingDir(path)
	if err != nil {
		return DiskSpace{}, err
	}
	total, free, err := getDiskSpace(dir)
	if err != nil {
		return DiskSpace{}, fmt.Errorf("failed to get disk space for %s: %w", dir, err)
	}
	return DiskSpace{Path: dir, Total: total, Free: free}, nil
}

// CheckDiskSpace returns a *DiskSpaceError when fewer than required bytes
// are free at path.
func CheckDiskSpace(path string, required uint64) (DiskSpace, error) {
	space, err := GetDiskSpace(path)
	if err != nil {
		return space, err
	}
	if space.Free < required {
		return space, &DiskSpaceError{Path: space.Path, Required: required, Available: space.Free}
	}
	return space, nil
}

func existingDir(path string) (string, error) {
	if path == "" {
		path = "."
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		info, err := os.Stat(abs)
		if err == nil {
			if info.IsDir() {
				return abs, nil
			}
			return filepath.Dir(abs), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("cannot access path %s: %w", abs, err)
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("no existing parent for %s", path)
		}
		abs = parent
	}
}
