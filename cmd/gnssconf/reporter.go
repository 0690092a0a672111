// cmd/gnssconf/reporter.go
package main

import (
	"fmt"
	"io"

	"gnss-configurator/internal/model"
)

// consoleReporter prints the progress of a command line run as the frames
// are handled
type consoleReporter struct {
	out     io.Writer
	verbose bool
}

func (r *consoleReporter) Publish(event model.RunEvent) {
	switch event.Type {
	case model.EventFrameSent, model.EventFrameFailed, model.EventFrameEncoded:
	default:
		return
	}

	record, _ := event.Data["record"].(string)
	fmt.Fprintln(r.out, record)

	// a dry run always shows what would have been sent
	if r.verbose || event.Type == model.EventFrameEncoded {
		if hex, _ := event.Data["hex"].(string); hex != "" {
			fmt.Fprintln(r.out, hex)
		}
		fmt.Fprintln(r.out, "---")
	}

	if event.Type == model.EventFrameFailed {
		reason, _ := event.Data["error"].(string)
		fmt.Fprintf(r.out, "E: error sending frame: %s\n", reason)
	}
}
