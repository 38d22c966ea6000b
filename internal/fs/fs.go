package fs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	cp "github.com/otiai10/copy"
)

// MoveFile moves a file or directory from src to dst.
// If the move fails due to being on different devices and fallbackCopy is true,
// it will fall back to copy and delete.
func MoveFile(src, dst string, fallbackCopy bool) error {
	// Ensure the destination directory exists
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	// Try rename(2) first
	if err := os.Rename(src, dst); err != nil {
		if !fallbackCopy {
			return fmt.Errorf("failed to move file: %w", err)
		}

		// Fallback to copy and delete
		if err := cp.Copy(src, dst, cp.Options{PreserveTimes: true}); err != nil {
			return fmt.Errorf("failed to copy file: %w", err)
		}

		// If copy succeeds, remove the original
		if err := os.RemoveAll(src); err != nil {
			// If we can't remove the source, try to remove the copy
			_ = os.RemoveAll(dst)
			return fmt.Errorf("failed to remove source after copy: %w", err)
		}
	}

	return nil
}

// CopyFile copies src to dst preserving timestamps, creating parent
// directories as needed. Existing destinations are not overwritten.
func CopyFile(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	if err := cp.Copy(src, dst, cp.Options{PreserveTimes: true}); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}
	return nil
}

// IsDirEmpty reports whether dir contains no entries.
func IsDirEmpty(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		return false, err
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if err == io.EOF {
		return true, nil
	}
	return false, err
}

// RemoveIfEmpty deletes dir when it holds no entries. A missing dir is
// not an error.
func RemoveIfEmpty(dir string) error {
	empty, err := IsDirEmpty(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !empty {
		return nil
	}
	return os.Remove(dir)
}
