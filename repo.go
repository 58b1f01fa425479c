package graft

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// Repository is the engine's boundary to source text. Indexing reads
// through it and committed mutations write through it, so callers can
// interpose an overlay (editor buffers, a VFS, a dry-run capture)
// without touching the engine.
type Repository interface {
	// Read returns the current bytes of a file.
	Read(path string) ([]byte, error)
	// Write replaces a file's bytes, creating it if needed.
	Write(path string, content []byte) error
	// Remove deletes a file.
	Remove(path string) error
	// ListFiles returns all regular files under root, honoring the
	// repository's ignore rules.
	ListFiles(root string) ([]string, error)
}

// OSRepository reads and writes the real filesystem. Discovery uses git
// ls-files when root is a git work tree, falling back to a filesystem
// walk that honors .gitignore.
type OSRepository struct{}

func (OSRepository) Read(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (OSRepository) Write(path string, content []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir: %w", err)
		}
	}
	return os.WriteFile(path, content, 0o644)
}

func (OSRepository) Remove(path string) error {
	return os.Remove(path)
}

func (r OSRepository) ListFiles(root string) ([]string, error) {
	paths, err := r.gitListFiles(root)
	if err == nil {
		return paths, nil
	}
	// Not a git repo or git unavailable.
	return r.walkListFiles(root)
}

// gitListFiles uses git ls-files to discover tracked and untracked (but
// not ignored) files under root.
func (OSRepository) gitListFiles(root string) ([]string, error) {
	// --cached: tracked, --others: untracked, --exclude-standard:
	// respect .gitignore, .git/info/exclude, global excludes.
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		paths = append(paths, filepath.Join(root, line))
	}
	return paths, nil
}

// skipDirs are always excluded from the walk fallback.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
}

// walkListFiles discovers files by walking the filesystem, skipping
// hidden directories, the usual dependency directories, and anything a
// .gitignore at root excludes.
func (OSRepository) walkListFiles(root string) ([]string, error) {
	var ignore *gitignore.GitIgnore
	if gi, err := gitignore.CompileIgnoreFile(filepath.Join(root, ".gitignore")); err == nil {
		ignore = gi
	}

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			if ignore != nil && rel != "." && ignore.MatchesPath(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if ignore != nil && ignore.MatchesPath(rel) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}
