package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tetratelabs/bitzero/internal/bitstream"
	"github.com/tetratelabs/bitzero/internal/ir/bitcode"
)

func newDumpCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dump <file.bc>",
		Short: "Print the block and record tree of a bitcode file",
		Long: `Print every block of a bitcode file with its records, indented by nesting
level. Records are shown as "<code> [operands]".

Example:
  bitzero dump hello.bc`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(cmd, opts, args[0])
		},
	}
}

func runDump(cmd *cobra.Command, opts *rootOptions, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return wrapExitError(exitCommandError, "error reading bitcode", err)
	}
	blocks, err := bitstream.Decode(data)
	if err != nil {
		return wrapExitError(exitCommandError, "invalid bitcode", err)
	}
	opts.logger(cmd).Debug("decoded bitstream", "path", path, "blocks", len(blocks))

	out := cmd.OutOrStdout()
	d := &dumper{w: out, color: isTerminal(out)}
	for _, b := range blocks {
		d.block(b, 0)
	}
	return d.err
}

// isTerminal is true when w is a terminal, which enables colored output.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

const (
	colorBlock = "\x1b[1;36m"
	colorReset = "\x1b[0m"
)

// dumper writes a block tree. The first write error is kept and stops
// further output.
type dumper struct {
	w     io.Writer
	color bool
	err   error
}

func (d *dumper) printf(depth int, format string, args ...interface{}) {
	if d.err != nil {
		return
	}
	_, d.err = fmt.Fprintf(d.w, strings.Repeat("  ", depth)+format+"\n", args...)
}

func (d *dumper) block(b *bitstream.Block, depth int) {
	name := bitcode.BlockName(b.ID)
	if d.color {
		name = colorBlock + name + colorReset
	}
	d.printf(depth, "%s (%d)", name, b.ID)
	for _, e := range b.Entries {
		if e.Block != nil {
			d.block(e.Block, depth+1)
		} else {
			d.printf(depth+1, "%s", e.Record)
		}
	}
}
