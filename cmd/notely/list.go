package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/aretw0/notely/pkg/core"
	"github.com/aretw0/notely/pkg/popup"
)

var (
	listJSON  bool
	listQuery string
	listSort  string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes like the popup viewer",
	Long: `List shows the notes filtered and sorted by the popup preferences.
--query and --sort change those preferences, so the popup opens with them too.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
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
		if cmd.Flags().Changed("query") {
			if err := viewer.SetQuery(ctx, listQuery); err != nil {
				return err
			}
		}
		if cmd.Flags().Changed("sort") {
			if err := viewer.SetSort(ctx, core.SortBy(listSort)); err != nil {
				return err
			}
		}

		items := viewer.Visible()
		if listJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(items)
		}

		if viewer.State() == popup.StateEmpty {
			fmt.Println("No notes.")
			return nil
		}
		printNotes(items)
		return nil
	},
}

func printNotes(items []popup.Item) {
	bold := color.New(color.Bold).SprintFunc()
	reminder := color.New(color.FgYellow).SprintFunc()

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.MaxColWidth = 60
	tbl.Wrap = true
	tbl.AddRow(bold("#"), bold("Type"), bold("Created"), bold("Title"), bold("Text"))
	for _, item := range items {
		kind := string(item.Type)
		if item.Type == core.NoteNotification {
			kind = reminder(kind)
		}
		created := "-"
		if item.CreatedAt != nil {
			created = time.UnixMilli(*item.CreatedAt).Format("2006-01-02 15:04")
		}
		tbl.AddRow(item.OriginalIndex, kind, created, item.Title, item.Text)
	}
	_, _ = fmt.Fprintln(color.Output, tbl)
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	listCmd.Flags().StringVarP(&listQuery, "query", "q", "", "Filter by title or text")
	listCmd.Flags().StringVarP(&listSort, "sort", "s", "", "Sort order (date_desc, date_asc, title_asc, title_desc)")
}
