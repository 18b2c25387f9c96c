package main

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "bounce-sim",
		Short: "Run the betrusted boot-to-loop firmware on a simulated board",
		Long: `Boot the firmware runtime against an in-memory board: heap bootstrap,
display bring-up and the bounce loop, with the debug scratch printed at
the end the way a probe would read it.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "echo the UART console at debug level")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewScratchCommand())

	return cmd
}
