// Command docsmesh runs the documentation assistant: an HTTP gateway that
// streams agent progress as Server-Sent Events, a one-shot terminal client and
// maintenance commands for the documentation store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/docsmesh/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "docsmesh",
	Short:         "Documentation assistant with streaming tool use",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
