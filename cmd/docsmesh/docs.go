package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/docsmesh/docs"
)

var docsMustInclude []string

func init() {
	docsListCmd.Flags().StringSliceVar(&docsMustInclude, "must-include", nil, "only list URLs containing one of these terms")
	docsCmd.AddCommand(docsImportCmd, docsListCmd)
	rootCmd.AddCommand(docsCmd)
}

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage the documentation store",
}

var docsImportCmd = &cobra.Command{
	Use:   "import <file.jsonl>",
	Short: "Import documentation chunks from a JSON Lines file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		n, err := store.ImportJSONL(cmd.Context(), f)
		if err != nil {
			return fmt.Errorf("import %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d chunks.\n", n)
		return nil
	},
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored documentation pages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		pages, err := store.ListPages(cmd.Context(), docsMustInclude)
		if err != nil {
			return err
		}
		if len(pages) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No pages found.")
			return nil
		}
		for _, p := range pages {
			fmt.Fprintln(cmd.OutOrStdout(), p.URL)
		}
		return nil
	},
}

func openStore() (*docs.SQLiteStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return docs.OpenSQLite(cfg.Docs.DBPath)
}
