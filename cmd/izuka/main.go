// Command izuka runs the tool-calling agent and the OpenAI-compatible
// facade server.
//
// Usage:
//
//	izuka serve --addr :8080
//	izuka agent run --thread 1 "your question"
//	izuka agent resume --thread 1
//	izuka agent threads
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "izuka",
		Short:         "Graph-driven tool-calling agent with an OpenAI-compatible facade",
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(agentCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
