package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete [index]",
	Short: "Delete the note stored at index",
	Long:  `Delete removes the note at the stored position shown by "notely list". An index past the end is a no-op.`,
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

		if err := viewer.Delete(ctx, idx); err != nil {
			return fmt.Errorf("delete note: %w", err)
		}
		fmt.Printf("Note #%d deleted.\n", idx)
		return nil
	},
}

func parseIndex(arg string) (int, error) {
	idx, err := strconv.Atoi(arg)
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("invalid index %q", arg)
	}
	return idx, nil
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
