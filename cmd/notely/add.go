package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/notely/internal/platform"
	"github.com/aretw0/notely/pkg/content"
	"github.com/aretw0/notely/pkg/core"
)

var (
	addTitle   string
	addText    string
	addType    string
	addMinutes int
)

// addCmd saves a note the way the page widget form does.
var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a note or a reminder",
	Long: `Add appends a note to the shared list. A note of type "notification"
with --minutes arms a reminder that the background daemon presents once due.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		host, err := openHost()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		page := host.Content(host.ContextName(platform.KindCLI))
		defer page.Close()

		res, err := page.Save(context.Background(), content.Form{
			Title:   addTitle,
			Text:    addText,
			Type:    core.NoteType(addType),
			Minutes: addMinutes,
		})
		if err != nil {
			if content.IsStorageUnavailable(err) {
				return fmt.Errorf("%s", content.AlertStorageUnavailable)
			}
			return err
		}

		fmt.Printf("Note #%d saved (%s).\n", res.Index, res.Note.Type)
		if res.AlarmID != "" {
			if res.Armed {
				fmt.Printf("Reminder %s armed for %d minute(s).\n", res.AlarmID, addMinutes)
			} else {
				fmt.Printf("Reminder %s could not be armed.\n", res.AlarmID)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringVar(&addTitle, "title", "", "Note title")
	addCmd.Flags().StringVar(&addText, "text", "", "Note text")
	addCmd.Flags().StringVarP(&addType, "type", "t", string(core.NoteJournal), "Note type (journal, todo, notification)")
	addCmd.Flags().IntVarP(&addMinutes, "minutes", "m", 0, "Reminder delay in minutes (notification only)")
}
