package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jward/graft"
	"github.com/spf13/cobra"
)

var (
	flagDB     string
	flagConfig string
	flagFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "graft",
	Short:         "Codebase graph engine with reference-consistent refactoring",
	Long:          "Graft indexes source code with tree-sitter into a resolved symbol graph, answers semantic queries over it, and applies rename/move/delete refactorings that keep every reference consistent.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: .graft/index.db relative to repo root)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: .graft.yml at repo root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format: json|text")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(scriptCmd)
}

var (
	flagForce     bool
	flagLanguages string
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a repository into the symbol graph",
	Long:  "Parses source files with tree-sitter, extracts symbols and references, resolves them, and writes the graph to the SQLite database.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "delete database and reindex from scratch")
	indexCmd.Flags().StringVar(&flagLanguages, "languages", "", "comma-separated language filter (e.g. go,typescript)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	start := time.Now()

	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	repoRoot := findRepoRoot(targetDir)
	dbPath := resolveDBPath(repoRoot)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}
	if flagForce {
		if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing database for --force: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Cleared database: %s\n", dbPath)
	}

	engine, err := openEngine(repoRoot, dbPath)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx := context.Background()

	extractStart := time.Now()
	if err := engine.IndexDirectory(ctx, targetDir); err != nil {
		return fmt.Errorf("indexing: %w", err)
	}
	extractDuration := time.Since(extractStart)

	resolveStart := time.Now()
	if err := engine.Resolve(ctx); err != nil {
		return fmt.Errorf("resolving: %w", err)
	}
	resolveDuration := time.Since(resolveStart)

	fmt.Fprintf(os.Stderr, "Indexed %s in %s (extract: %s, resolve: %s)\n",
		targetDir,
		time.Since(start).Round(time.Millisecond),
		extractDuration.Round(time.Millisecond),
		resolveDuration.Round(time.Millisecond),
	)
	fmt.Fprintf(os.Stderr, "Database: %s\n", dbPath)
	return nil
}

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Keep the graph synchronized with the filesystem",
	Long:  "Indexes the target directory, then watches for changes and incrementally reindexes and re-resolves until interrupted.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targetDir, err := resolveTargetDir(args)
		if err != nil {
			return err
		}
		engine, _, err := openSynced(targetDir)
		if err != nil {
			return err
		}
		defer engine.Close()

		fmt.Fprintf(os.Stderr, "Watching %s\n", targetDir)
		return engine.Watch(cmd.Context(), targetDir)
	},
}

var scriptCmd = &cobra.Command{
	Use:   "script <file.risor> [path]",
	Short: "Run a Risor analysis script against the graph",
	Long:  "Synchronizes the graph for the target directory, evaluates the script with the query host functions bound, and prints its final value.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		targetDir, err := resolveTargetDir(args[1:])
		if err != nil {
			return err
		}
		engine, _, err := openSynced(targetDir)
		if err != nil {
			return err
		}
		defer engine.Close()

		result, err := engine.RunScript(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return output(os.Stdout, result, func() {
			fmt.Fprintln(os.Stdout, result)
		})
	},
}

// openEngine builds an Engine on the given database with the repo's
// config file applied.
func openEngine(repoRoot, dbPath string) (*graft.Engine, error) {
	cfgPath := flagConfig
	if cfgPath == "" {
		cfgPath = filepath.Join(repoRoot, ".graft.yml")
	}
	cfg, err := graft.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	cfg.StorePath = dbPath
	if flagLanguages != "" {
		var langs []string
		for _, l := range strings.Split(flagLanguages, ",") {
			langs = append(langs, strings.TrimSpace(l))
		}
		cfg.Languages = langs
	}
	engine, err := graft.New(graft.WithConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return engine, nil
}

// openSynced opens the engine for targetDir and brings the graph up to
// date, so queries and mutations see current source.
func openSynced(targetDir string) (*graft.Engine, string, error) {
	repoRoot := findRepoRoot(targetDir)
	dbPath := resolveDBPath(repoRoot)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, "", fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}
	engine, err := openEngine(repoRoot, dbPath)
	if err != nil {
		return nil, "", err
	}
	ctx := context.Background()
	if err := engine.IndexDirectory(ctx, targetDir); err != nil {
		engine.Close()
		return nil, "", fmt.Errorf("indexing: %w", err)
	}
	if err := engine.Resolve(ctx); err != nil {
		engine.Close()
		return nil, "", fmt.Errorf("resolving: %w", err)
	}
	return engine, repoRoot, nil
}

// resolveTargetDir returns the absolute path of the directory to work on.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the database path from the --db flag or the default.
func resolveDBPath(repoRoot string) string {
	if flagDB != "" {
		if filepath.IsAbs(flagDB) {
			return flagDB
		}
		return filepath.Join(repoRoot, flagDB)
	}
	return filepath.Join(repoRoot, ".graft", "index.db")
}
