package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/serroba/shortify/internal/container"
	"go.uber.org/zap"
)

const interactiveHelp = `Enter a URL, optionally followed by an alias, to shorten it.
Commands:
  :history        list recent links
  :remove <id>    remove one entry
  :clear          clear the local history
  :sync           merge the service's links into the history
  :help           show this help
  :quit           exit`

// runInteractive reads submissions and commands from in until EOF, :quit
// or ctx is cancelled.
func runInteractive(ctx context.Context, options *container.Options, in io.Reader, out io.Writer) error {
	a, err := newApp(options)
	if err != nil {
		return err
	}
	defer a.shutdown()

	if err := a.startSession(ctx, true); err != nil {
		return err
	}

	lines := make(chan string)
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
	}()

	fmt.Fprintln(out, interactiveHelp)

	for {
		fmt.Fprint(out, "> ")

		select {
		case <-ctx.Done():
			fmt.Fprintln(out)

			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)

				return nil
			}

			if quit := a.handleLine(ctx, strings.TrimSpace(line), out); quit {
				return nil
			}
		}
	}
}

// handleLine executes one line of input and reports whether to quit.
// Failures are printed and never end the loop.
func (a *app) handleLine(ctx context.Context, line string, out io.Writer) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case ":quit", ":q", ":exit":
		return true
	case ":help", ":h":
		fmt.Fprintln(out, interactiveHelp)
	case ":history", ":ls":
		if err := printHistory(out, a.session.History()); err != nil {
			a.logger.Error("failed to print history", zap.Error(err))
		}
	case ":remove", ":rm":
		if len(fields) != 2 {
			fmt.Fprintln(out, "usage: :remove <id>")

			return false
		}

		if a.session.Remove(ctx, fields[1]) {
			fmt.Fprintln(out, "Removed", fields[1])
		} else {
			fmt.Fprintf(out, "No history entry with id %q\n", fields[1])
		}
	case ":clear":
		a.session.Clear(ctx)
		fmt.Fprintln(out, "History cleared")
	case ":sync":
		if err := a.session.Refresh(ctx); err != nil {
			fmt.Fprintln(out, "Error:", err)
		}

		if err := printHistory(out, a.session.History()); err != nil {
			a.logger.Error("failed to print history", zap.Error(err))
		}
	default:
		if strings.HasPrefix(fields[0], ":") {
			fmt.Fprintf(out, "Unknown command %s, try :help\n", fields[0])

			return false
		}

		alias := ""
		if len(fields) > 1 {
			alias = fields[1]
		}

		res, err := a.session.Submit(ctx, fields[0], alias)
		if err != nil {
			fmt.Fprintln(out, "Error:", strings.ReplaceAll(err.Error(), "\n", "; "))

			return false
		}

		fmt.Fprintln(out, res.Entry.ShortURL)
	}

	return false
}
