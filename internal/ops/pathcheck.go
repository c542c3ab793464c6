package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/facet/internal/config"
	"github.com/hpungsan/facet/internal/errors"
)

// PathCheckMode indicates whether the path check is for reading or writing.
type PathCheckMode int

const (
	PathCheckRead  PathCheckMode = iota // import
	PathCheckWrite                      // export
)

// PathPolicy decides where export files may be read and written.
type PathPolicy struct {
	// ExportsDir is always allowed and holds default export files.
	ExportsDir   string
	AllowedPaths []string
	// AllowUnsafe lifts the directory restriction. Symlinks stay rejected.
	AllowUnsafe bool
}

// PathPolicyFromConfig reads the export settings of cfg.
func PathPolicyFromConfig(cfg *config.Config) PathPolicy {
	return PathPolicy{
		ExportsDir:   cfg.ExportsDir,
		AllowedPaths: cfg.AllowedPaths,
		AllowUnsafe:  cfg.AllowUnsafePaths,
	}
}

func invalidPath(msg string) error {
	return errors.NewValidation(msg, errors.FieldError{Field: "path", Message: msg})
}

// ValidatePath checks an export or import path:
// no ".." components, a .jsonl extension, the file directly inside an allowed
// directory (no subdirectories), and no symlinked parent or file.
//
// Requiring the file to sit directly in an allowed directory leaves no
// intermediate component that could be swapped for a symlink between this
// check and the O_NOFOLLOW open.
func ValidatePath(path string, mode PathCheckMode, policy PathPolicy) error {
	if path == "" {
		return invalidPath("path is required")
	}
	if containsTraversal(path) {
		return invalidPath("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	if filepath.Ext(cleaned) != ".jsonl" {
		return invalidPath("path must have .jsonl extension")
	}

	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return invalidPath(fmt.Sprintf("invalid path: %v", err))
	}

	if !policy.AllowUnsafe {
		allowedDirs, err := policy.allowedDirs()
		if err != nil {
			return err
		}

		parentDir := filepath.Dir(absPath)
		if !isDirectlyInAllowedDir(parentDir, allowedDirs) {
			return invalidPath(fmt.Sprintf(
				"file must be directly in an allowed directory (no subdirectories); allowed: %v", allowedDirs))
		}

		if info, err := os.Lstat(parentDir); err == nil && info.Mode()&os.ModeSymlink != 0 {
			return invalidPath("parent directory must not be a symlink")
		}
	}

	if mode == PathCheckRead {
		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			return errors.NewNotFound("file", path)
		}
	}

	if info, err := os.Lstat(absPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return invalidPath("path must not be a symlink")
	}

	return nil
}

// allowedDirs returns the allowed directories, absolute and with symlinked
// entries resolved.
func (p PathPolicy) allowedDirs() ([]string, error) {
	var dirs []string
	if p.ExportsDir != "" {
		dirs = append(dirs, p.ExportsDir)
	}
	for _, d := range p.AllowedPaths {
		if filepath.IsAbs(d) {
			dirs = append(dirs, filepath.Clean(d))
		}
	}

	result := make([]string, 0, len(dirs))
	for _, d := range dirs {
		abs, err := filepath.Abs(filepath.Clean(d))
		if err != nil {
			return nil, invalidPath(fmt.Sprintf("invalid allowed path: %v", err))
		}
		if info, err := os.Lstat(abs); err == nil && info.Mode()&os.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(abs)
			if err != nil {
				return nil, invalidPath(fmt.Sprintf("cannot resolve symlink in allowed path: %v", err))
			}
			abs = resolved
		}
		result = append(result, abs)
	}
	return result, nil
}

func isDirectlyInAllowedDir(parentDir string, allowedDirs []string) bool {
	parentDir = filepath.Clean(parentDir)
	for _, dir := range allowedDirs {
		if parentDir == filepath.Clean(dir) {
			return true
		}
	}
	return false
}

func containsTraversal(path string) bool {
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	if filepath.Separator != '/' {
		for _, part := range strings.Split(path, "/") {
			if part == ".." {
				return true
			}
		}
	}
	return false
}
