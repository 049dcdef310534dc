// Package sink delivers commentary lines to their destinations.
package sink

import (
	"fmt"
	"io"

	"github.com/slipstreamco/slipcast/internal/bus"
)

// Sink delivers one outbound line. Delivery failures are reported to the
// caller; they are never fatal to the engine.
type Sink interface {
	Name() string
	Deliver(line bus.Line) error
}

// Console writes lines to a writer, normally stdout.
type Console struct {
	w io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Name() string { return "console" }

func (c *Console) Deliver(line bus.Line) error {
	var err error
	switch line.Kind {
	case bus.LineNarration:
		_, err = fmt.Fprintf(c.w, "[%s] %s\n", line.Handle, line.Text)
	default:
		_, err = fmt.Fprintf(c.w, "[%s] --- %s ---\n%s\n", line.Handle, line.Kind, line.Text)
	}
	if err != nil {
		return fmt.Errorf("write console line: %w", err)
	}
	return nil
}
