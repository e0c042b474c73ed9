package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "hopper",
		Short:         "Inspect the article package intake ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(newListCommand())
	root.AddCommand(newShowCommand())
	root.AddCommand(newStatsCommand())
	root.AddCommand(newRemoveCommand())
	root.AddCommand(newReportsCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "hopper:", err)
		os.Exit(1)
	}
}
