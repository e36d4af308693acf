package audio

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Locator finds a backend executable in a fixed order: explicit override,
// environment variable, development and packaged layouts, then PATH.
type Locator struct {
	Name     string
	Override string
	EnvVar   string
	// DevDirs and PackagedDirs are searched in that order, or reversed when Packaged
	DevDirs      []string
	PackagedDirs []string
	Packaged     bool
	// SearchPath adds an exec.LookPath lookup after the directory candidates
	SearchPath bool
}

// NewLocator returns a locator with the standard layouts for name:
// ./<name>/bin and ./<name> for development, next to the running binary when packaged.
func NewLocator(name, override, envVar string, packaged bool) Locator {
	l := Locator{
		Name:       name,
		Override:   override,
		EnvVar:     envVar,
		Packaged:   packaged,
		SearchPath: true,
	}

	if cwd, err := os.Getwd(); err == nil {
		l.DevDirs = append(l.DevDirs,
			filepath.Join(cwd, name, "bin"),
			filepath.Join(cwd, name),
		)
	}

	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		l.PackagedDirs = append(l.PackagedDirs,
			filepath.Join(dir, name, "bin"),
			filepath.Join(dir, name),
			dir,
			filepath.Join(dir, "..", "lib", "kartoza-audio-capture"),
		)
	}

	return l
}

func (l Locator) exeName() string {
	if runtime.GOOS == "windows" && !strings.HasSuffix(strings.ToLower(l.Name), ".exe") {
		return l.Name + ".exe"
	}
	return l.Name
}

func (l Locator) explicit() (string, string) {
	if p := strings.TrimSpace(l.Override); p != "" {
		return p, "override"
	}
	if l.EnvVar != "" {
		if p := strings.TrimSpace(os.Getenv(l.EnvVar)); p != "" {
			return p, l.EnvVar
		}
	}
	return "", ""
}

// Candidates lists the directory-layout paths in search order
func (l Locator) Candidates() []string {
	first, second := l.DevDirs, l.PackagedDirs
	if l.Packaged {
		first, second = second, first
	}

	exe := l.exeName()
	var out []string
	for _, dir := range append(append([]string{}, first...), second...) {
		out = append(out, filepath.Join(dir, exe))
	}
	return out
}

// Resolve returns the first usable executable. An explicit override or
// environment path that is not executable fails immediately.
func (l Locator) Resolve() (string, error) {
	if p, source := l.explicit(); p != "" {
		if err := checkExecutable(p); err != nil {
			return "", fmt.Errorf("%w: %s from %s is not accessible: %w", ErrBackendUnavailable, p, source, err)
		}
		return p, nil
	}

	candidates := l.Candidates()
	for _, c := range candidates {
		if checkExecutable(c) == nil {
			return c, nil
		}
	}

	if l.SearchPath {
		if p, err := exec.LookPath(l.exeName()); err == nil {
			return p, nil
		}
		candidates = append(candidates, "$PATH")
	}

	return "", fmt.Errorf("%w: %s not found (searched %s)", ErrBackendUnavailable, l.Name, strings.Join(candidates, ", "))
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file")
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0111 == 0 {
		return fmt.Errorf("not executable")
	}
	return nil
}
