// Package files implements the file-tool category: read, write, edit, and
// apply_patch, every one of them routed through the security gate's
// validate_file_path before touching disk. Grounded on the teacher's
// internal/tools/files package, retargeted from a single workspace root
// onto spec §4.3's allowlist model.
package files

import (
	"path/filepath"

	"github.com/chibi-ai/chibi/internal/security"
)

// Resolver validates a caller-supplied path against the configured
// allowlist and returns its canonical form.
type Resolver struct {
	AllowedPaths []string
}

// Resolve delegates to security.ValidateFilePath; the target path must
// already exist.
func (r Resolver) Resolve(path string) (string, error) {
	return security.ValidateFilePath(path, r.AllowedPaths)
}

// ResolveForWrite validates the target's parent directory (which must
// exist and fall within the allowlist) and returns the canonical path
// for a file that may not exist yet.
func (r Resolver) ResolveForWrite(path string) (string, error) {
	dir := filepath.Dir(path)
	canonicalDir, err := security.ValidateFilePath(dir, r.AllowedPaths)
	if err != nil {
		return "", err
	}
	return filepath.Join(canonicalDir, filepath.Base(path)), nil
}
