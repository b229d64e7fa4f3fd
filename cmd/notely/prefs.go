package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/notely/internal/platform"
	"github.com/aretw0/notely/pkg/core"
)

var (
	prefsQuery string
	prefsSort  string
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or change the popup preferences",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		host, err := openHost()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		ctx := context.Background()
		p := host.Prefs(host.Service(platform.KindCLI))

		current, err := p.PopupPrefs(ctx)
		if err != nil {
			return err
		}
		changed := false
		if cmd.Flags().Changed("query") {
			current.Query = prefsQuery
			changed = true
		}
		if cmd.Flags().Changed("sort") {
			current.SortBy = core.SortBy(prefsSort)
			changed = true
		}
		if changed {
			if err := p.SetPopupPrefs(ctx, current); err != nil {
				return err
			}
		}

		fmt.Printf("query: %q\nsort:  %s\n", current.Query, current.SortBy)
		return nil
	},
}

var optionsCmd = &cobra.Command{
	Use:   "options [on|off]",
	Short: "Show or toggle the floating button of page widgets",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		host, err := openHost()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		ctx := context.Background()
		p := host.Prefs(host.Service(platform.KindOptions))

		if len(args) == 1 {
			var enabled bool
			switch args[0] {
			case "on", "true":
				enabled = true
			case "off", "false":
			default:
				return fmt.Errorf("expected on or off, got %q", args[0])
			}
			if err := p.SetFloatingButton(ctx, enabled); err != nil {
				return err
			}
		}

		state := "off"
		if p.FloatingButton(ctx) {
			state = "on"
		}
		fmt.Printf("floating button: %s\n", state)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(prefsCmd)
	rootCmd.AddCommand(optionsCmd)
	prefsCmd.Flags().StringVarP(&prefsQuery, "query", "q", "", "Remembered search query")
	prefsCmd.Flags().StringVarP(&prefsSort, "sort", "s", "", "Remembered sort order")
}
