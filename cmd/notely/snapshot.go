package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/notely/internal/platform"
	"github.com/aretw0/notely/pkg/snapshot"
)

var (
	snapPattern string
	snapReplace bool
)

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export the store to a JSON, YAML or CSV file",
	Long:  `Export writes every key matching --pattern to file. The format follows the extension.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		host, err := openHost()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		s, err := snapshot.WriteFile(context.Background(), host.Service(platform.KindCLI), args[0], snapshot.Options{Pattern: snapPattern})
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		fmt.Printf("Exported %d key(s) to %s.\n", len(s.Items), args[0])
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import a snapshot or a raw storage dump",
	Long: `Import writes the keys of file in a single change, so every open context
sees one update. With --replace, matching keys missing from the file are removed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		host, err := openHost()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		n, err := snapshot.ReadFile(context.Background(), host.Service(platform.KindCLI), args[0], snapshot.Options{
			Pattern: snapPattern,
			Replace: snapReplace,
		})
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}
		fmt.Printf("Imported %d key(s).\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	for _, c := range []*cobra.Command{exportCmd, importCmd} {
		c.Flags().StringVar(&snapPattern, "pattern", "", "Only keys matching this glob")
	}
	importCmd.Flags().BoolVar(&snapReplace, "replace", false, "Remove matching keys absent from the file")
}
