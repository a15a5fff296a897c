package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/ntbridge/ntbridge-go/cmd/ntbridge/capture"
	"github.com/ntbridge/ntbridge-go/pkg/log"
)

const captureUsage = `Usage:
  ntbridge capture view [flags] <file>
  ntbridge capture stats <file>

Commands:
  view     Print capture events in human-readable format
  stats    Show statistics about a capture file
`

func runCapture(args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, captureUsage)
		return errors.New("missing capture command")
	}

	switch args[0] {
	case "view":
		return runCaptureView(args[1:], out)
	case "stats":
		if len(args) != 2 {
			return errors.New("usage: ntbridge capture stats <file>")
		}
		return capture.RunStats(args[1], out)
	case "-h", "--help", "help":
		fmt.Fprint(out, captureUsage)
		return nil
	default:
		return fmt.Errorf("unknown capture command: %s", args[0])
	}
}

func runCaptureView(args []string, out io.Writer) error {
	flagSet := pflag.NewFlagSet("ntbridge capture view", pflag.ContinueOnError)
	layer := flagSet.String("layer", "", "only show events of this layer (transport, wire, session)")
	direction := flagSet.String("direction", "", "only show events in this direction (in, out)")
	category := flagSet.String("category", "", "only show events of this category (message, control, state, error)")
	connID := flagSet.String("conn-id", "", "only show events of this connection")
	since := flagSet.Duration("since", 0, "only show events within this window before the last event")

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return errors.New("usage: ntbridge capture view [flags] <file>")
	}
	path := flagSet.Arg(0)

	filter := log.Filter{ConnectionID: *connID}
	if *layer != "" {
		l, err := capture.ParseLayer(*layer)
		if err != nil {
			return err
		}
		filter.Layer = &l
	}
	if *direction != "" {
		d, err := capture.ParseDirection(*direction)
		if err != nil {
			return err
		}
		filter.Direction = &d
	}
	if *category != "" {
		c, err := capture.ParseCategory(*category)
		if err != nil {
			return err
		}
		filter.Category = &c
	}
	if *since > 0 {
		stats, err := capture.Collect(path)
		if err != nil {
			return err
		}
		start := stats.TimeRange.End.Add(-*since)
		filter.TimeStart = &start
	}

	return capture.RunView(path, filter, out)
}

