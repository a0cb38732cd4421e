// Package prompt asks operators for confirmation and draws progress bars
// when attached to a terminal.
package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Confirmer asks yes/no questions on a line-oriented reader.
type Confirmer struct {
	In          io.Reader
	Out         io.Writer
	Interactive bool // false declines every question without reading
	AssumeYes   bool // approve without asking
}

// NewTerminal returns a Confirmer on stdin/stderr that is interactive only
// when stdin is a terminal.
func NewTerminal(assumeYes bool) *Confirmer {
	return &Confirmer{
		In:          os.Stdin,
		Out:         os.Stderr,
		Interactive: term.IsTerminal(int(os.Stdin.Fd())),
		AssumeYes:   assumeYes,
	}
}

// Confirm prints message and waits for y/yes. It matches types.ConfirmFunc.
func (c *Confirmer) Confirm(ctx context.Context, message string) (bool, error) {
	if c.AssumeYes {
		return true, nil
	}
	if !c.Interactive {
		slog.Warn("confirmation needed but input is not a terminal; pass --yes to approve", "question", message)
		return false, nil
	}

	fmt.Fprintf(c.Out, "%s [y/N]: ", message)

	answer := make(chan string, 1)
	errc := make(chan error, 1)
	go func() {
		line, err := bufio.NewReader(c.In).ReadString('\n')
		if err != nil && line == "" {
			errc <- err
			return
		}
		answer <- line
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(c.Out)
		return false, ctx.Err()
	case err := <-errc:
		if err == io.EOF {
			return false, nil
		}
		return false, err
	case line := <-answer:
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}
