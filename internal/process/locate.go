package process

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IsExecutableFile reports whether path is a regular file with an execute bit set.
func IsExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}

// Locate searches every root recursively for an executable file named name.
// Roots that do not exist are skipped and unreadable directories are ignored.
// When several candidates exist under a root, the shallowest one wins; earlier
// roots take precedence over later ones.
func Locate(name string, roots []string) (string, bool) {
	if name == "" || strings.ContainsRune(name, filepath.Separator) {
		return "", false
	}

	for _, root := range roots {
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			continue
		}

		pattern := filepath.Join(escapeMeta(filepath.Clean(root)), "**", escapeMeta(name))
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			continue
		}

		sort.Slice(matches, func(i, j int) bool {
			di, dj := strings.Count(matches[i], string(filepath.Separator)), strings.Count(matches[j], string(filepath.Separator))
			if di != dj {
				return di < dj
			}
			return matches[i] < matches[j]
		})

		for _, match := range matches {
			if IsExecutableFile(match) {
				return match, true
			}
		}
	}
	return "", false
}

// escapeMeta escapes glob metacharacters so s matches literally.
func escapeMeta(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`*?[]{}\`, r) {
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Resolution is the executable chosen for one launch.
type Resolution struct {
	Path       string `json:"path"`
	Discovered bool   `json:"discovered"`
}

// isRegularFile reports whether path exists and is a regular file.
func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// resolveExecutable returns configured when it exists as a regular file,
// otherwise the first executable with the same base name under roots.
// A configured file without an execute bit is kept and fails at launch.
func resolveExecutable(configured string, roots []string) (Resolution, error) {
	if isRegularFile(configured) {
		return Resolution{Path: configured}, nil
	}
	if found, ok := Locate(filepath.Base(configured), roots); ok {
		return Resolution{Path: found, Discovered: true}, nil
	}
	return Resolution{}, fmt.Errorf("%w: %s (searched %s)", ErrExecutableNotFound, configured, strings.Join(roots, ", "))
}
