// Command agentrt is the runtime's entrypoint: a multi-channel agent
// gateway combining the MCP client pool, session store, episodic memory,
// Omega router, turn engine, and dispatch fabric into one serving process.
//
// Basic usage:
//
//	agentrt serve --config agentrt.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := &cobra.Command{
		Use:   "agentrt",
		Short: "Multi-channel LLM agent runtime",
	}
	root.AddCommand(newServeCommand())
	root.AddCommand(newVersionCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("agentrt %s (%s)\n", version, commit)
			return nil
		},
	}
}
