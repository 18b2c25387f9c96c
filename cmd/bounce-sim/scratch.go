package main

import (
	"fmt"
	"io"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"betrusted/failstop"
)

var slotNames = map[int]string{
	failstop.SlotFaultCode:     "fault code",
	failstop.SlotConfigStatus:  "sram config status",
	failstop.SlotAllocFailSize: "alloc failure size",
	failstop.SlotHeapStart:     "heap start",
	failstop.SlotHeapSize:      "heap size",
}

var faultCodes = []failstop.Code{
	failstop.CodePanic,
	failstop.CodeAllocFailure,
	failstop.CodePeripheralsTaken,
	failstop.CodeDeviceIO,
	failstop.CodeBoot,
}

// NewScratchCommand creates the scratch command.
func NewScratchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scratch",
		Short: "Describe the debug scratch layout and fault codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "slots:")
			for slot := 0; slot < failstop.ScratchWords; slot++ {
				fmt.Fprintf(out, "  %d  %s\n", slot, slotName(slot))
			}
			fmt.Fprintln(out, "fault codes:")
			for _, code := range faultCodes {
				fmt.Fprintf(out, "  %#08x  %s\n", uint32(code), code)
			}
			return nil
		},
	}
}

func slotName(slot int) string {
	return lo.ValueOr(slotNames, slot, "unused")
}

// printScratch writes a snapshot the way the probe tool lays it out.
func printScratch(out io.Writer, snap [failstop.ScratchWords]uint32) {
	for slot, word := range snap {
		desc := slotName(slot)
		if slot == failstop.SlotFaultCode {
			desc = fmt.Sprintf("%s (%s)", desc, failstop.Code(word))
		}
		fmt.Fprintf(out, "  [%d] %#08x  %s\n", slot, word, desc)
	}
}
