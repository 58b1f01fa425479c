package main

import (
	"fmt"
	"os"

	"github.com/jward/graft"
	"github.com/spf13/cobra"
)

var (
	flagDryRun      bool
	flagDeleteForce bool
)

func init() {
	for _, cmd := range []*cobra.Command{renameCmd, moveCmd, deleteCmd} {
		cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "print the diff instead of applying")
	}
	deleteCmd.Flags().BoolVar(&flagDeleteForce, "force", false, "delete even if references are still bound")
}

// runTx synchronizes the graph, stages one mutation, and either prints
// the diff (--dry-run) or commits it.
func runTx(cmd *cobra.Command, stage func(tx *graft.Tx) error) error {
	targetDir, err := resolveTargetDir(nil)
	if err != nil {
		return err
	}
	engine, _, err := openSynced(targetDir)
	if err != nil {
		return err
	}
	defer engine.Close()

	tx := engine.Begin()
	if err := stage(tx); err != nil {
		tx.Rollback()
		return err
	}

	diffText, err := tx.DiffText()
	if err != nil {
		tx.Rollback()
		return err
	}
	if flagDryRun {
		tx.Rollback()
		fmt.Fprint(os.Stdout, diffText)
		return nil
	}
	if err := tx.Commit(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprint(os.Stderr, diffText)
	return nil
}

var renameCmd = &cobra.Command{
	Use:   "rename <symbol-id> <new-name>",
	Short: "Rename a symbol and every reference to it",
	Long:  "Renames the declaration and all bound references, including names inside import clauses. Fails without changing anything if the new name conflicts.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseSymbolID(args[0])
		if err != nil {
			return err
		}
		return runTx(cmd, func(tx *graft.Tx) error {
			return tx.Rename(id, args[1])
		})
	},
}

var moveCmd = &cobra.Command{
	Use:   "move <symbol-id> <target-file>",
	Short: "Move a symbol's declaration to another file",
	Long:  "Cuts the declaration from its file, appends it to the target, and repairs the imports of every file still using the symbol.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseSymbolID(args[0])
		if err != nil {
			return err
		}
		return runTx(cmd, func(tx *graft.Tx) error {
			return tx.MoveToFile(id, args[1])
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <symbol-id>",
	Short: "Delete a symbol's declaration",
	Long:  "Removes the whole declaration. Fails if references are still bound to the symbol, unless --force is given.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseSymbolID(args[0])
		if err != nil {
			return err
		}
		return runTx(cmd, func(tx *graft.Tx) error {
			return tx.Delete(id, flagDeleteForce)
		})
	},
}
