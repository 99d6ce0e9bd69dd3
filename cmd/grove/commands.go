package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"grove"
)

// outFlags control what each workload command dumps after its run.
type outFlags struct {
	print   bool
	dotPath string
	scan    bool
}

func addOutFlags(cmd *cobra.Command, out *outFlags) {
	f := cmd.Flags()
	f.BoolVar(&out.print, "print", false, "dump every node after the run")
	f.StringVar(&out.dotPath, "dot", "", "write a Graphviz digraph to this file")
	f.BoolVar(&out.scan, "scan", false, "range-scan the whole tree after the run")
}

func newLoadCommand(flags *rootFlags) *cobra.Command {
	var file string
	var out outFlags

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Insert every integer key listed in a file",
		RunE: func(c *cobra.Command, args []string) error {
			return withTree(flags, &out, func(tree *grove.BTree) error {
				return tree.InsertFromFile(file)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "keys file, one integer per token")
	cmd.MarkFlagRequired("file")
	addOutFlags(cmd, &out)
	return cmd
}

func newRemoveCommand(flags *rootFlags) *cobra.Command {
	var file, loadFile string
	var out outFlags

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Populate from --load, then remove every key listed in a file",
		RunE: func(c *cobra.Command, args []string) error {
			return withTree(flags, &out, func(tree *grove.BTree) error {
				if loadFile != "" {
					if err := tree.InsertFromFile(loadFile); err != nil {
						return err
					}
				}
				return tree.RemoveFromFile(file)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "keys file, one integer per token")
	cmd.Flags().StringVar(&loadFile, "load", "", "keys file inserted before removal")
	cmd.MarkFlagRequired("file")
	addOutFlags(cmd, &out)
	return cmd
}

func newBatchCommand(flags *rootFlags) *cobra.Command {
	var file string
	var out outFlags

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run a mixed workload of \"i <key>\" and \"d <key>\" lines",
		RunE: func(c *cobra.Command, args []string) error {
			return withTree(flags, &out, func(tree *grove.BTree) error {
				return tree.BatchOpsFromFile(file)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "operations file")
	cmd.MarkFlagRequired("file")
	addOutFlags(cmd, &out)
	return cmd
}

func newGetCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Look up one integer key in an existing index",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			v, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return err
			}

			tree, closeTree, err := attachTree(flags)
			if err != nil {
				return err
			}
			defer closeTree()

			rid, found, err := tree.Get(grove.Int64Key(v, tree.KeySize()))
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("key %d not found", v)
			}
			fmt.Printf("%d %s\n", v, rid)
			return nil
		},
	}
	return cmd
}

func newPrintCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "print",
		Short: "Dump every node of an existing index",
		RunE: func(c *cobra.Command, args []string) error {
			tree, closeTree, err := attachTree(flags)
			if err != nil {
				return err
			}
			defer closeTree()

			return tree.PrintTree(os.Stdout)
		},
	}
	return cmd
}

func newDrawCommand(flags *rootFlags) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "draw",
		Short: "Emit an existing index as a Graphviz digraph",
		RunE: func(c *cobra.Command, args []string) error {
			tree, closeTree, err := attachTree(flags)
			if err != nil {
				return err
			}
			defer closeTree()

			if outPath == "" {
				return tree.DrawDot(os.Stdout)
			}
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if err := tree.DrawDot(f); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

// withTree builds a fresh tree, runs the workload, then emits
// whatever dumps were requested.
func withTree(flags *rootFlags, out *outFlags, run func(*grove.BTree) error) error {
	tree, closeTree, err := createTree(flags)
	if err != nil {
		return err
	}
	defer closeTree()

	if err := run(tree); err != nil {
		return err
	}

	if out.print {
		if err := tree.PrintTree(os.Stdout); err != nil {
			return err
		}
	}
	if out.dotPath != "" {
		f, err := os.Create(out.dotPath)
		if err != nil {
			return err
		}
		if err := tree.DrawDot(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	if out.scan {
		it, err := tree.Begin()
		if err != nil {
			return err
		}
		defer it.Close()
		for !it.IsEnd() {
			fmt.Printf("%d %s\n", grove.DecodeInt64Key(it.Key()), it.Value())
			if err := it.Next(); err != nil {
				return err
			}
		}
	}
	return nil
}
