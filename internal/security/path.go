package security

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/chibi-ai/chibi/internal/chibierr"
)

// ValidateFilePath implements spec §4.3's validate_file_path: it expands a
// leading "~", resolves symlinks, and accepts the result only if it is
// equal to or a descendant of one of allowedPaths (already canonicalised
// or not — both sides are canonicalised here). An empty allowedPaths
// denies everything.
func ValidateFilePath(path string, allowedPaths []string) (string, error) {
	expanded, err := expandHome(path)
	if err != nil {
		return "", chibierr.Wrap(chibierr.InvalidInput, "expand home", err)
	}

	canonical, err := filepath.EvalSymlinks(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return "", chibierr.Wrap(chibierr.NotFound, path, err)
		}
		return "", chibierr.Wrap(chibierr.InvalidInput, "resolve path", err)
	}

	if len(allowedPaths) == 0 {
		return "", chibierr.New(chibierr.PermissionDenied, "no allowed paths configured")
	}

	for _, root := range allowedPaths {
		rootExpanded, err := expandHome(root)
		if err != nil {
			continue
		}
		rootCanonical, err := filepath.EvalSymlinks(rootExpanded)
		if err != nil {
			continue
		}
		if isWithin(canonical, rootCanonical) {
			return canonical, nil
		}
	}

	return "", chibierr.New(chibierr.PermissionDenied, "path outside allowed roots: "+path)
}

func isWithin(path, root string) bool {
	if path == root {
		return true
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func expandHome(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
