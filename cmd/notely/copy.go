package main

import (
	"context"
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
)

// systemClipboard writes to the OS clipboard.
type systemClipboard struct{}

func (systemClipboard) WriteAll(text string) error {
	return clipboard.WriteAll(text)
}

var copyCmd = &cobra.Command{
	Use:   "copy [index]",
	Short: "Copy the text of a note to the clipboard",
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
		viewer := host.Popup(systemClipboard{})
		defer viewer.Close()
		if err := viewer.Open(context.Background()); err != nil {
			return fmt.Errorf("%s", viewer.Error())
		}

		if err := viewer.Copy(idx); err != nil {
			return err
		}
		if viewer.CopiedIndex() != idx {
			return fmt.Errorf("clipboard unavailable")
		}
		fmt.Println("Copied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(copyCmd)
}
