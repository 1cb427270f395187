package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// NewID returns a random UUID v4 string.
func NewID() string {
	return uuid.NewString()
}

// NewScratchDir creates a private directory named <prefix>-<uuid> under base.
// An empty base means os.TempDir(). The caller owns removal.
func NewScratchDir(base, prefix string) (string, error) {
	if base == "" {
		base = os.TempDir()
	}
	if err := MakeDir(base); err != nil {
		return "", fmt.Errorf("creating scratch base %s: %w", base, err)
	}
	dir := filepath.Join(base, prefix+"-"+uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating scratch dir: %w", err)
	}
	return dir, nil
}

// RemoveDirAsync deletes dir in a background goroutine. Failures are passed to
// onErr when it is non-nil and otherwise ignored. The returned channel is
// closed once removal has been attempted.
func RemoveDirAsync(dir string, onErr func(error)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if dir == "" {
			return
		}
		if err := DeleteDir(dir); err != nil && onErr != nil {
			onErr(err)
		}
	}()
	return done
}
