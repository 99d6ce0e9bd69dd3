package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"grove"
	"grove/internal/base"
	"grove/internal/buffer"
	"grove/internal/storage"
)

// headerPageID is where every grove index file keeps its header
// record: the first page the create path allocates.
const headerPageID base.PageID = 0

// rootFlags are shared by every subcommand.
type rootFlags struct {
	dbPath      string
	keySize     int
	leafMax     int
	internalMax int
	poolFrames  int
	verbose     bool
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "grove",
		Short: "Drive and inspect a grove B+tree index",
		Long: `
Bulk drivers and inspectors for the grove B+tree index. The workload
commands (load, remove, batch) recreate the index file and feed it
keys; the inspection commands (get, print, draw) attach to the file a
previous run left behind.
`,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.dbPath, "db", "grove.db", "index file")
	pf.IntVar(&flags.keySize, "key-size", 8, "fixed key width in bytes (workload commands)")
	pf.IntVar(&flags.leafMax, "leaf-max", 0, "max pairs per leaf (0 = fit page)")
	pf.IntVar(&flags.internalMax, "internal-max", 0, "max slots per internal node (0 = fit page)")
	pf.IntVar(&flags.poolFrames, "pool-frames", buffer.DefaultPoolSize, "buffer pool frames")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "log index operations to stderr")

	cmd.AddCommand(newLoadCommand(flags))
	cmd.AddCommand(newRemoveCommand(flags))
	cmd.AddCommand(newBatchCommand(flags))
	cmd.AddCommand(newGetCommand(flags))
	cmd.AddCommand(newPrintCommand(flags))
	cmd.AddCommand(newDrawCommand(flags))
	return cmd
}

func (f *rootFlags) options() []grove.Option {
	opts := []grove.Option{grove.WithKeySize(f.keySize)}
	if f.leafMax > 0 {
		opts = append(opts, grove.WithLeafMaxSize(f.leafMax))
	}
	if f.internalMax > 0 {
		opts = append(opts, grove.WithInternalMaxSize(f.internalMax))
	}
	if f.verbose {
		// grove.Logger matches *slog.Logger's method set directly.
		opts = append(opts, grove.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, nil))))
	}
	return opts
}

func (f *rootFlags) openPool() (*buffer.Pool, error) {
	disk, err := storage.Open(f.dbPath)
	if err != nil {
		return nil, err
	}
	pool, err := buffer.New(f.poolFrames, disk)
	if err != nil {
		disk.Close()
		return nil, err
	}
	return pool, nil
}

// createTree recreates the index file and builds a fresh tree over
// it. The returned cleanup flushes the pool and closes storage.
func createTree(flags *rootFlags) (*grove.BTree, func() error, error) {
	if err := os.Remove(flags.dbPath); err != nil && !os.IsNotExist(err) {
		return nil, nil, err
	}

	pool, err := flags.openPool()
	if err != nil {
		return nil, nil, err
	}

	hg, headerID, err := pool.NewPage()
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	hg.Drop()

	tree, err := grove.New("grove", headerID, pool, grove.DefaultCompare, flags.options()...)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return tree, pool.Close, nil
}

// attachTree opens the tree a previous run recorded in the index
// file; the node layout is read back from the pages.
func attachTree(flags *rootFlags) (*grove.BTree, func() error, error) {
	if _, err := os.Stat(flags.dbPath); err != nil {
		return nil, nil, fmt.Errorf("index file %s: %w (run load or batch first)", flags.dbPath, err)
	}

	pool, err := flags.openPool()
	if err != nil {
		return nil, nil, err
	}

	tree, err := grove.Open("grove", headerPageID, pool, grove.DefaultCompare, flags.options()...)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return tree, pool.Close, nil
}
