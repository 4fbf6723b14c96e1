// Package main provides the entry point for the webmapper CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webmapper",
		Short: "Map the link structure of a website",
		Long: `webmapper discovers the structure of a website by following
hyperlinks from a seed URL. It records each page's status and outbound
link count, flags endpoints that accept parameters (query strings and
HTML forms), and exports the resulting graph as CSV, JSON, Graphviz DOT,
or a Markdown report.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
