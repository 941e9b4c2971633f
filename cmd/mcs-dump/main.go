// Command mcs-dump prints the records of one or more .mcs trace files:
// direction, capture time, frame length, packet id and a bounded hex
// preview. Frames captured after a compression toggle still carry their
// envelope; pass --threshold to decode it.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/1nfdev/mcbuild/mcs"
	"github.com/1nfdev/mcbuild/mcwire"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var hexBytes int
	var threshold int
	cmd := &cobra.Command{
		Use:          "mcs-dump <trace.mcs> [...]",
		Short:        "Inspect .mcs proxy trace files",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if err := dumpFile(path, hexBytes, threshold); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&hexBytes, "hex", 32, "hex preview length in bytes, 0 to disable")
	cmd.Flags().IntVar(&threshold, "threshold", -1, "compression threshold active in the capture, -1 for none")
	return cmd
}

var (
	clientTag = color.New(color.FgRed).Sprint("C")
	serverTag = color.New(color.FgCyan).Sprint("S")
)

func dumpFile(path string, hexBytes, threshold int) error {
	r, err := mcs.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	fmt.Printf("== %s\n", path)
	for n := 0; ; n++ {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			fmt.Printf("%d records\n", n)
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: record %d: %w", path, n, err)
		}
		printRecord(n, rec, hexBytes, threshold)
	}
}

func printRecord(n int, rec mcs.Record, hexBytes, threshold int) {
	tag := serverTag
	if rec.FromClient {
		tag = clientTag
	}

	body, err := mcwire.DecodeBody(rec.Frame, threshold >= 0)
	if err != nil {
		fmt.Printf("%6d %s %s len=%-6d (envelope error: %v)\n",
			n, tag, rec.At.Format("15:04:05.000000"), len(rec.Frame), err)
		return
	}
	id, idLen, err := mcwire.ReadVarInt(body)
	idField := "??"
	if err == nil && idLen > 0 {
		idField = fmt.Sprintf("%02x", id)
		body = body[idLen:]
	}

	line := fmt.Sprintf("%6d %s %s %s len=%-6d", n, tag, rec.At.Format("15:04:05.000000"), idField, len(rec.Frame))
	if hexBytes > 0 {
		preview := body
		if len(preview) > hexBytes {
			preview = preview[:hexBytes]
		}
		line += fmt.Sprintf("  % x", preview)
	}
	fmt.Println(line)
}
