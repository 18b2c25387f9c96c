package main

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"betrusted/failstop"
	"betrusted/firmware"
	"betrusted/hal/sim"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Frames int
	Config string
	PNG    string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Boot the firmware and run the bounce loop",
		Long: `Boot the firmware against the simulated board and step the loop for a
fixed number of frames. A fault halts the simulated core; the debug
scratch is printed either way.

Example:
  bounce-sim run --frames 200 --png last.png
  bounce-sim run --config board.yaml --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSim(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().IntVarP(&opts.Frames, "frames", "n", 100, "number of frames to run")
	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "board description (YAML)")
	cmd.Flags().StringVar(&opts.PNG, "png", "", "write the last frame to this PNG file")

	return cmd
}

func runSim(opts *RunOptions, out, console io.Writer) error {
	if opts.Frames < 0 {
		return errors.Errorf("frames must not be negative, got %d", opts.Frames)
	}

	cfg := DefaultBoardConfig()
	if opts.Config != "" {
		var err error
		if cfg, err = LoadBoardConfig(opts.Config); err != nil {
			return err
		}
	}

	board, err := sim.NewBoard(cfg.SimOptions())
	if err != nil {
		return err
	}

	fwCfg := cfg.Firmware()
	if opts.Verbose {
		fwCfg.LogLevel = logrus.DebugLevel
	}

	halter := failstop.NewGoexitHalter()
	handler := failstop.NewHandler(&failstop.Scratch{}, halter, nil)

	// The core runs on its own goroutine so a halt only stops it.
	finished := make(chan *firmware.Runtime, 1)
	go func() {
		var r *firmware.Runtime
		handler.Guard(func() error {
			var err error
			r, err = firmware.Boot(board.Board, board.Symbols, fwCfg, handler)
			return err
		})
		for i := 0; i < opts.Frames; i++ {
			handler.Guard(r.Step)
		}
		finished <- r
	}()

	var r *firmware.Runtime
	select {
	case r = <-finished:
	case <-halter.Done():
	}

	if opts.Verbose {
		fmt.Fprint(console, board.UART.String())
	}

	fmt.Fprintf(out, "transfers: %d\n", board.LCD.Transfers())
	fmt.Fprintln(out, "scratch:")
	printScratch(out, handler.Scratch.Snapshot())

	if r == nil {
		code := failstop.Code(handler.Scratch.Word(failstop.SlotFaultCode))
		return errors.Errorf("core halted: %s", code)
	}

	if opts.PNG != "" {
		if err := r.Display().Framebuffer().SavePNG(opts.PNG); err != nil {
			return errors.Wrap(err, "save frame")
		}
		fmt.Fprintf(out, "frame written to %s\n", opts.PNG)
	}
	return nil
}
