package recorder

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxNameAttempts = 10000

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// normalizeFileName trims and sanitizes name and ensures a .wav extension.
// An empty name becomes recording-<unix millis>-<uuid>.
func normalizeFileName(name string, now time.Time) string {
	base := strings.TrimSpace(name)
	if base == "" {
		base = fmt.Sprintf("recording-%d-%s", now.UnixMilli(), uuid.NewString())
	}
	base = unsafeNameChars.ReplaceAllString(base, "_")
	if strings.HasSuffix(strings.ToLower(base), ".wav") {
		return base
	}
	return base + ".wav"
}

// resolveOutputPath picks the destination for a new recording in dir.
// Generated names are unique already; chosen names get a -N suffix on collision.
func resolveOutputPath(dir, name string, now time.Time) (string, error) {
	path := filepath.Join(dir, normalizeFileName(name, now))
	if strings.TrimSpace(name) == "" {
		return path, nil
	}
	return uniquePath(path)
}

func uniquePath(path string) (string, error) {
	exists, err := pathExists(path)
	if err != nil || !exists {
		return path, err
	}

	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for n := 1; n < maxNameAttempts; n++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, n, ext)
		exists, err := pathExists(candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", ErrNoUniqueName
}

func pathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check %s: %w", path, err)
}
