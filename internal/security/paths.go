// Package security confines client-supplied file names to a data
// directory and turns free-form names into safe file names.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for names that resolve outside their root.
var ErrOutsideRoot = errors.New("path escapes root directory")

// canonical resolves symlinks in path. Paths that do not exist yet are
// resolved through their deepest existing ancestor, so a symlinked parent
// cannot smuggle a new file out of the root.
func canonical(path string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved, nil
	}
	var rest []string
	for dir := path; ; {
		parent := filepath.Dir(dir)
		rest = append([]string{filepath.Base(dir)}, rest...)
		if parent == dir {
			return path, nil
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		dir = parent
	}
}

// ResolveWithin joins a relative name onto root and returns the canonical
// absolute path. It fails if name is absolute or the result, after
// resolving symlinks, lies outside root.
func ResolveWithin(root, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrOutsideRoot)
	}
	if filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("%w: %s is absolute", ErrOutsideRoot, name)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root %s: %w", root, err)
	}
	canonicalRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root %s: %w", root, err)
	}
	path, err := canonical(filepath.Join(canonicalRoot, name))
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(canonicalRoot, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, name)
	}
	return path, nil
}

// maxFilenameLen bounds names produced by SanitizeFilename.
const maxFilenameLen = 128

// SanitizeFilename maps s to a name made only of ASCII letters, digits,
// '.', '_' and '-'. Runs of other characters become a single underscore;
// leading and trailing dots and underscores are dropped. An empty result
// becomes "unnamed".
func SanitizeFilename(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		ok := r == '.' || r == '_' || r == '-' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			pending = true
			continue
		}
		if pending && b.Len() > 0 {
			b.WriteByte('_')
		}
		pending = false
		b.WriteRune(r)
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unnamed"
	}
	return out
}
