package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

func validateFormat(format string) error {
	switch format {
	case "json", "text":
		return nil
	default:
		return fmt.Errorf("invalid format %q (expected json or text)", format)
	}
}

// output writes v as JSON, or calls text when --format=text.
func output(w io.Writer, v any, text func()) error {
	if flagFormat == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text()
	return nil
}

// CLI view structs: flat, JSON-friendly projections of graph rows.

type CLISymbol struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Exported bool   `json:"exported"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Col      int    `json:"col"`
}

type CLILocation struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Col  int    `json:"col"`
}

type CLIRef struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Qualifier  string `json:"qualifier,omitempty"`
	Context    string `json:"context"`
	File       string `json:"file"`
	Line       int    `json:"line"`
	Col        int    `json:"col"`
	FailReason string `json:"fail_reason,omitempty"`
}

type CLICallEdge struct {
	CallerID   int64  `json:"caller_id,omitempty"`
	CallerName string `json:"caller_name,omitempty"`
	CalleeID   int64  `json:"callee_id"`
	CalleeName string `json:"callee_name"`
}

type CLIImport struct {
	Source       string `json:"source"`
	ImportedName string `json:"imported_name,omitempty"`
	LocalAlias   string `json:"local_alias,omitempty"`
	Kind         string `json:"kind"`
	File         string `json:"file"`
}

type CLIOutlineNode struct {
	Name     string           `json:"name"`
	Kind     string           `json:"kind"`
	Line     int              `json:"line"`
	Children []CLIOutlineNode `json:"children,omitempty"`
}

func formatSymbolsText(w io.Writer, syms []CLISymbol) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tKIND\tEXPORTED\tFILE\tLINE")
	for _, s := range syms {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s\t%d\n",
			s.ID, s.Name, s.Kind, s.Exported, s.File, s.Line)
	}
	tw.Flush()
}

func formatLocationsText(w io.Writer, locs []CLILocation) {
	for _, loc := range locs {
		fmt.Fprintf(w, "%s:%d:%d\n", loc.File, loc.Line, loc.Col)
	}
}

func formatRefsText(w io.Writer, refs []CLIRef) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCONTEXT\tFILE\tLINE\tREASON")
	for _, r := range refs {
		name := r.Name
		if r.Qualifier != "" {
			name = r.Qualifier + "." + name
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", name, r.Context, r.File, r.Line, r.FailReason)
	}
	tw.Flush()
}

func formatCallEdgesText(w io.Writer, edges []CLICallEdge) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CALLER\tCALLEE")
	for _, e := range edges {
		caller := "<file scope>"
		if e.CallerName != "" {
			caller = fmt.Sprintf("%s (#%d)", e.CallerName, e.CallerID)
		}
		fmt.Fprintf(tw, "%s\t%s (#%d)\n", caller, e.CalleeName, e.CalleeID)
	}
	tw.Flush()
}

func formatImportsText(w io.Writer, imports []CLIImport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tNAME\tKIND\tFILE")
	for _, imp := range imports {
		name := imp.ImportedName
		if imp.LocalAlias != "" {
			name += " as " + imp.LocalAlias
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", imp.Source, name, imp.Kind, imp.File)
	}
	tw.Flush()
}

func formatCyclesText(w io.Writer, cycles [][]string) {
	for i, cycle := range cycles {
		fmt.Fprintf(w, "cycle %d:\n", i+1)
		for _, path := range cycle {
			fmt.Fprintf(w, "  %s\n", path)
		}
	}
	if len(cycles) == 0 {
		fmt.Fprintln(w, "no import cycles")
	}
}

func formatOutlineText(w io.Writer, nodes []CLIOutlineNode, indent string) {
	for _, n := range nodes {
		fmt.Fprintf(w, "%s%s %s (line %d)\n", indent, n.Kind, n.Name, n.Line)
		formatOutlineText(w, n.Children, indent+"  ")
	}
}
