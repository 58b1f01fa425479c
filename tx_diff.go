package graft

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sourcegraph/go-diff/diff"
)

// DiffText renders the staged edits as a unified diff against the
// current file contents, without applying anything.
func (tx *Tx) DiffText() (string, error) {
	tx.e.mu.RLock()
	defer tx.e.mu.RUnlock()
	if tx.closed {
		return "", ErrTxClosed
	}

	rewritten, err := tx.applyStaged()
	if err != nil {
		return "", err
	}

	paths := make([]string, 0, len(rewritten))
	for path := range rewritten {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var sb strings.Builder
	for _, path := range paths {
		var before string
		if !tx.creates[path] {
			content, err := tx.e.repo.Read(path)
			if err != nil {
				return "", fmt.Errorf("tx %s: read %s: %w", tx.id, path, err)
			}
			before = string(content)
		}
		after := string(rewritten[path])
		if before == after {
			continue
		}
		text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(before),
			B:        difflib.SplitLines(after),
			FromFile: "a/" + path,
			ToFile:   "b/" + path,
			Context:  3,
		})
		if err != nil {
			return "", fmt.Errorf("tx %s: diff %s: %w", tx.id, path, err)
		}
		sb.WriteString(text)
	}
	for _, path := range tx.removes {
		content, err := tx.e.repo.Read(path)
		if err != nil {
			continue
		}
		text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(content)),
			B:        nil,
			FromFile: "a/" + path,
			ToFile:   "/dev/null",
			Context:  3,
		})
		if err != nil {
			return "", fmt.Errorf("tx %s: diff %s: %w", tx.id, path, err)
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

// Diff returns the staged changes as parsed per-file diffs, for callers
// that want hunks and stats rather than text.
func (tx *Tx) Diff() ([]*diff.FileDiff, error) {
	text, err := tx.DiffText()
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}
	fds, err := diff.ParseMultiFileDiff([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("tx %s: parse diff: %w", tx.id, err)
	}
	return fds, nil
}
