package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/serroba/shortify/internal/container"
)

const stopTimeout = 5 * time.Second

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, options *container.Options) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		hooks.OnStart(func() {
			defer close(done)
			defer cancel()

			if err := runInteractive(ctx, options, os.Stdin, os.Stdout); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			cancel()

			select {
			case <-done:
			case <-time.After(stopTimeout):
			}
		})
	})

	root := cli.Root()
	root.Use = "shortify"
	root.Short = "Shorten URLs and keep a history of your recent links"
	root.Long = "Shorten URLs through a shortening service and keep a history of your recent links.\n" +
		"Run without a command for interactive mode."

	root.AddCommand(
		shortenCommand(),
		historyCommand(),
		removeCommand(),
		clearCommand(),
		syncCommand(),
		watchCommand(),
		statusCommand(),
	)

	cli.Run()
}
