package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/jward/graft"
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the symbol graph",
}

var flagUnusedAll bool

func init() {
	queryCmd.AddCommand(
		querySymbolCmd,
		queryDefinitionCmd,
		queryUsagesCmd,
		queryCallersCmd,
		queryCalleesCmd,
		queryDepsCmd,
		queryDependentsCmd,
		querySupersCmd,
		querySubsCmd,
		queryUnresolvedCmd,
		queryCyclesCmd,
		queryUnusedCmd,
		queryOutlineCmd,
	)
	queryUnusedCmd.Flags().BoolVar(&flagUnusedAll, "all", false, "include unexported symbols")
}

// withQuery opens a synchronized engine rooted at the working directory
// and hands its QueryBuilder to fn.
func withQuery(fn func(e *graft.Engine, q *graft.QueryBuilder) error) error {
	targetDir, err := resolveTargetDir(nil)
	if err != nil {
		return err
	}
	engine, _, err := openSynced(targetDir)
	if err != nil {
		return err
	}
	defer engine.Close()
	return fn(engine, engine.Query())
}

func parseSymbolID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid symbol id %q", arg)
	}
	return id, nil
}

// pathIndex maps file IDs to paths for display.
func pathIndex(q *graft.QueryBuilder) (map[int64]string, error) {
	files, err := q.Files()
	if err != nil {
		return nil, err
	}
	paths := make(map[int64]string, len(files))
	for _, f := range files {
		paths[f.ID] = f.Path
	}
	return paths, nil
}

func symbolsToCLI(syms []*graft.Symbol, paths map[int64]string) []CLISymbol {
	out := make([]CLISymbol, 0, len(syms))
	for _, s := range syms {
		out = append(out, CLISymbol{
			ID:       s.ID,
			Name:     s.Name,
			Kind:     s.Kind,
			Exported: s.Exported,
			File:     paths[s.FileID],
			Line:     s.StartLine,
			Col:      s.StartCol,
		})
	}
	return out
}

func refsToCLI(refs []*graft.Ref, paths map[int64]string) []CLIRef {
	out := make([]CLIRef, 0, len(refs))
	for _, r := range refs {
		out = append(out, CLIRef{
			ID:         r.ID,
			Name:       r.Name,
			Qualifier:  r.Qualifier,
			Context:    r.Context,
			File:       paths[r.FileID],
			Line:       r.StartLine,
			Col:        r.StartCol,
			FailReason: r.FailReason,
		})
	}
	return out
}

func locationsToCLI(locs []graft.Location) []CLILocation {
	out := make([]CLILocation, 0, len(locs))
	for _, l := range locs {
		out = append(out, CLILocation{File: l.File, Line: l.StartLine, Col: l.StartCol})
	}
	return out
}

func callEdgesToCLI(q *graft.QueryBuilder, edges []*graft.CallEdge) ([]CLICallEdge, error) {
	out := make([]CLICallEdge, 0, len(edges))
	for _, e := range edges {
		cli := CLICallEdge{CalleeID: e.CalleeSymbolID}
		if callee, err := q.SymbolByID(e.CalleeSymbolID); err != nil {
			return nil, err
		} else if callee != nil {
			cli.CalleeName = callee.Name
		}
		if e.CallerSymbolID != nil {
			cli.CallerID = *e.CallerSymbolID
			if caller, err := q.SymbolByID(*e.CallerSymbolID); err != nil {
				return nil, err
			} else if caller != nil {
				cli.CallerName = caller.Name
			}
		}
		out = append(out, cli)
	}
	return out, nil
}

var querySymbolCmd = &cobra.Command{
	Use:   "symbol <name>",
	Short: "Find declarations by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery(func(e *graft.Engine, q *graft.QueryBuilder) error {
			syms, err := q.SymbolsByName(args[0])
			if err != nil {
				return err
			}
			paths, err := pathIndex(q)
			if err != nil {
				return err
			}
			cli := symbolsToCLI(syms, paths)
			return output(os.Stdout, cli, func() { formatSymbolsText(os.Stdout, cli) })
		})
	},
}

var queryDefinitionCmd = &cobra.Command{
	Use:   "definition <file> <line> <col>",
	Short: "Find the definition of the name at a position",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		line, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid line %q", args[1])
		}
		col, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid col %q", args[2])
		}
		return withQuery(func(e *graft.Engine, q *graft.QueryBuilder) error {
			locs, err := q.DefinitionAt(args[0], line, col)
			if err != nil {
				return err
			}
			cli := locationsToCLI(locs)
			return output(os.Stdout, cli, func() { formatLocationsText(os.Stdout, cli) })
		})
	},
}

var queryUsagesCmd = &cobra.Command{
	Use:   "usages <symbol-id>",
	Short: "List every reference bound to a symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseSymbolID(args[0])
		if err != nil {
			return err
		}
		return withQuery(func(e *graft.Engine, q *graft.QueryBuilder) error {
			locs, err := q.UsagesOf(id)
			if err != nil {
				return err
			}
			cli := locationsToCLI(locs)
			return output(os.Stdout, cli, func() { formatLocationsText(os.Stdout, cli) })
		})
	},
}

var queryCallersCmd = &cobra.Command{
	Use:   "callers <symbol-id>",
	Short: "List call graph edges into a function",
	Args:  cobra.ExactArgs(1),
	RunE:  makeCallEdgeCmd(func(q *graft.QueryBuilder, id int64) ([]*graft.CallEdge, error) { return q.CallersOf(id) }),
}

var queryCalleesCmd = &cobra.Command{
	Use:   "callees <symbol-id>",
	Short: "List call graph edges out of a function",
	Args:  cobra.ExactArgs(1),
	RunE:  makeCallEdgeCmd(func(q *graft.QueryBuilder, id int64) ([]*graft.CallEdge, error) { return q.CalleesOf(id) }),
}

func makeCallEdgeCmd(get func(*graft.QueryBuilder, int64) ([]*graft.CallEdge, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := parseSymbolID(args[0])
		if err != nil {
			return err
		}
		return withQuery(func(e *graft.Engine, q *graft.QueryBuilder) error {
			edges, err := get(q, id)
			if err != nil {
				return err
			}
			cli, err := callEdgesToCLI(q, edges)
			if err != nil {
				return err
			}
			return output(os.Stdout, cli, func() { formatCallEdgesText(os.Stdout, cli) })
		})
	}
}

var queryDepsCmd = &cobra.Command{
	Use:   "deps <file>",
	Short: "List a file's imports",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery(func(e *graft.Engine, q *graft.QueryBuilder) error {
			f, err := q.FileByPath(args[0])
			if err != nil {
				return err
			}
			if f == nil {
				return fmt.Errorf("file not indexed: %s", args[0])
			}
			imports, err := q.Dependencies(f.ID)
			if err != nil {
				return err
			}
			cli := make([]CLIImport, 0, len(imports))
			for _, imp := range imports {
				cli = append(cli, CLIImport{
					Source:       imp.Source,
					ImportedName: imp.ImportedName,
					LocalAlias:   imp.LocalAlias,
					Kind:         imp.Kind,
					File:         f.Path,
				})
			}
			return output(os.Stdout, cli, func() { formatImportsText(os.Stdout, cli) })
		})
	},
}

var queryDependentsCmd = &cobra.Command{
	Use:   "dependents <source>",
	Short: "List imports of a module across all files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery(func(e *graft.Engine, q *graft.QueryBuilder) error {
			imports, err := q.Dependents(args[0])
			if err != nil {
				return err
			}
			paths, err := pathIndex(q)
			if err != nil {
				return err
			}
			cli := make([]CLIImport, 0, len(imports))
			for _, imp := range imports {
				cli = append(cli, CLIImport{
					Source:       imp.Source,
					ImportedName: imp.ImportedName,
					LocalAlias:   imp.LocalAlias,
					Kind:         imp.Kind,
					File:         paths[imp.FileID],
				})
			}
			return output(os.Stdout, cli, func() { formatImportsText(os.Stdout, cli) })
		})
	},
}

var querySupersCmd = &cobra.Command{
	Use:   "supers <symbol-id>",
	Short: "List a type's transitive superclasses",
	Args:  cobra.ExactArgs(1),
	RunE:  makeHierarchyCmd(func(q *graft.QueryBuilder, id int64) ([]*graft.Symbol, error) { return q.Superclasses(id) }),
}

var querySubsCmd = &cobra.Command{
	Use:   "subs <symbol-id>",
	Short: "List a type's transitive subclasses",
	Args:  cobra.ExactArgs(1),
	RunE:  makeHierarchyCmd(func(q *graft.QueryBuilder, id int64) ([]*graft.Symbol, error) { return q.Subclasses(id) }),
}

func makeHierarchyCmd(get func(*graft.QueryBuilder, int64) ([]*graft.Symbol, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := parseSymbolID(args[0])
		if err != nil {
			return err
		}
		return withQuery(func(e *graft.Engine, q *graft.QueryBuilder) error {
			syms, err := get(q, id)
			if err != nil {
				return err
			}
			paths, err := pathIndex(q)
			if err != nil {
				return err
			}
			cli := symbolsToCLI(syms, paths)
			return output(os.Stdout, cli, func() { formatSymbolsText(os.Stdout, cli) })
		})
	}
}

var queryUnresolvedCmd = &cobra.Command{
	Use:   "unresolved",
	Short: "List references the resolver could not bind",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery(func(e *graft.Engine, q *graft.QueryBuilder) error {
			refs, err := q.UnresolvedRefs()
			if err != nil {
				return err
			}
			paths, err := pathIndex(q)
			if err != nil {
				return err
			}
			cli := refsToCLI(refs, paths)
			return output(os.Stdout, cli, func() { formatRefsText(os.Stdout, cli) })
		})
	},
}

var queryCyclesCmd = &cobra.Command{
	Use:   "cycles",
	Short: "List import cycles between indexed files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery(func(e *graft.Engine, q *graft.QueryBuilder) error {
			cycles, err := q.ImportCycles()
			if err != nil {
				return err
			}
			return output(os.Stdout, cycles, func() { formatCyclesText(os.Stdout, cycles) })
		})
	},
}

var queryUnusedCmd = &cobra.Command{
	Use:   "unused",
	Short: "List symbols nothing references",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery(func(e *graft.Engine, q *graft.QueryBuilder) error {
			syms, err := q.UnusedSymbols(flagUnusedAll)
			if err != nil {
				return err
			}
			paths, err := pathIndex(q)
			if err != nil {
				return err
			}
			cli := symbolsToCLI(syms, paths)
			return output(os.Stdout, cli, func() { formatSymbolsText(os.Stdout, cli) })
		})
	},
}

var queryOutlineCmd = &cobra.Command{
	Use:   "outline <file>",
	Short: "Show a file's declarations as a tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery(func(e *graft.Engine, q *graft.QueryBuilder) error {
			nodes, err := q.FileOutline(args[0])
			if err != nil {
				return err
			}
			cli := outlineToCLI(nodes)
			return output(os.Stdout, cli, func() { formatOutlineText(os.Stdout, cli, "") })
		})
	},
}

func outlineToCLI(nodes []*graft.OutlineNode) []CLIOutlineNode {
	out := make([]CLIOutlineNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, CLIOutlineNode{
			Name:     n.Symbol.Name,
			Kind:     n.Symbol.Kind,
			Line:     n.Symbol.StartLine,
			Children: outlineToCLI(n.Children),
		})
	}
	return out
}
