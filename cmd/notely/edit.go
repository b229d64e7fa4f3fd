package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	editTitle string
	editText  string
)

var editCmd = &cobra.Command{
	Use:   "edit [index]",
	Short: "Replace title and text of a note",
	Long:  `Edit rewrites title and text of the note at index and keeps its type and creation time.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		host, err := openHost()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		ctx := context.Background()
		viewer := host.Popup(nil)
		defer viewer.Close()
		if err := viewer.Open(ctx); err != nil {
			return fmt.Errorf("%s", viewer.Error())
		}

		// Unset flags keep the current value.
		title, text := editTitle, editText
		for _, item := range viewer.Visible() {
			if item.OriginalIndex != idx {
				continue
			}
			if !cmd.Flags().Changed("title") {
				title = item.Title
			}
			if !cmd.Flags().Changed("text") {
				text = item.Text
			}
		}

		if err := viewer.Edit(ctx, idx, title, text); err != nil {
			return fmt.Errorf("edit note: %w", err)
		}
		fmt.Printf("Note #%d updated.\n", idx)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(editCmd)
	editCmd.Flags().StringVar(&editTitle, "title", "", "New title")
	editCmd.Flags().StringVar(&editText, "text", "", "New text")
}
