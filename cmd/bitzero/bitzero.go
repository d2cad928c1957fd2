package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tetratelabs/bitzero/internal/version"
)

func main() {
	os.Exit(doMain(os.Args[1:], os.Stdout, os.Stderr))
}

// doMain is separated out for the purpose of unit testing. It returns the
// exit code.
func doMain(args []string, stdOut, stdErr io.Writer) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdOut)
	cmd.SetErr(stdErr)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(stdErr, "error: %v\n", err)
		return exitCode(err)
	}
	return exitSuccess
}

// rootOptions holds the flags shared by all commands.
type rootOptions struct {
	verbose    bool
	configPath string
}

// logger returns a logger writing to the error stream of cmd. Debug
// messages are only shown with --verbose.
func (o *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "bitzero",
		Short:         "bitzero interprets LLVM bitcode",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log decoding and instantiation at debug level")
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML configuration file")

	cmd.AddCommand(newDumpCommand(opts))
	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of bitzero",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.GetBitzeroVersion())
		},
	}
}
