package graft

import (
	"context"
	"crypto/sha256"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jward/graft/internal/lang"
	"github.com/jward/graft/internal/store"
)

// parseItem holds everything a parallel extraction worker needs, and
// receives its output.
type parseItem struct {
	path     string
	ext      lang.Extractor
	content  []byte
	hash     string
	existing *store.File

	graph *lang.FileGraph
}

// indexFilesParallel indexes files in three phases:
//
//	Phase A (serial):   read content, hash check against the store.
//	Phase B (parallel): parse and extract, one tree-sitter parser per task.
//	Phase C (serial):   commit graphs and fold blast radii, in input order.
//
// Only phase B runs concurrently; all store access stays on the calling
// goroutine, which holds the engine write lock.
func (e *Engine) indexFilesParallel(ctx context.Context, paths []string) error {
	if e.blastRadius == nil {
		e.blastRadius = make(map[int64]bool)
	}

	// ---- Phase A: serial preparation ----
	var items []*parseItem
	var errs []error
	for _, path := range paths {
		item, skip, err := e.prepareFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("prepare %s: %w", path, err))
			continue
		}
		if skip {
			continue
		}
		items = append(items, item)
	}

	// ---- Phase B: parallel extraction ----
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	var mu sync.Mutex
	for _, item := range items {
		g.Go(func() error {
			graph, err := e.extract(gctx, item.ext, item.path, item.content)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("extract %s: %w", item.path, err))
				mu.Unlock()
				return nil // keep going; per-file errors are collected
			}
			item.graph = graph
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// ---- Phase C: serial commit, in input order for determinism ----
	for _, item := range items {
		if item.graph == nil {
			continue
		}
		if err := e.commitGraph(item.path, item.ext.Language(), item.content, item.hash, item.existing, item.graph); err != nil {
			errs = append(errs, fmt.Errorf("commit %s: %w", item.path, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("parallel indexing had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}

// prepareFile does phase A for one file. skip means unsupported,
// filtered out, or unchanged.
func (e *Engine) prepareFile(path string) (*parseItem, bool, error) {
	ext, ok := e.registry.ForFile(path)
	if !ok {
		return nil, true, nil
	}
	if e.languages != nil && !e.languages[ext.Language()] {
		return nil, true, nil
	}

	content, err := e.repo.Read(path)
	if err != nil {
		return nil, false, fmt.Errorf("read file: %w", err)
	}
	hash := fmt.Sprintf("%x", sha256.Sum256(content))

	existing, err := e.store.FileByPath(path)
	if err != nil {
		return nil, false, fmt.Errorf("lookup file: %w", err)
	}
	if existing != nil && existing.Hash == hash {
		return nil, true, nil
	}

	return &parseItem{
		path:     path,
		ext:      ext,
		content:  content,
		hash:     hash,
		existing: existing,
	}, false, nil
}
