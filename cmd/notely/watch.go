package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aretw0/notely/internal/platform"
	"github.com/aretw0/notely/pkg/adapters/lifecycle"
	"github.com/aretw0/notely/pkg/core"
)

var watchPattern string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print every change written to the store",
	Long: `Watch follows the store and prints each change set as it is propagated,
including writes made by other processes sharing the store directory.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		host, err := openHost()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		changes, err := host.Service(platform.KindCLI).Watch(ctx, watchPattern)
		if err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		src := lifecycle.NewSource(changes)
		if err := src.Start(ctx); err != nil {
			return err
		}

		stamp := color.New(color.Faint).SprintFunc()
		fmt.Fprintf(os.Stderr, "Watching %q (Ctrl+C to stop)\n", watchPattern)
		for event := range src.Events() {
			cs, ok := event.(core.ChangeSet)
			if !ok {
				continue
			}
			origin := cs.Origin
			if origin == "" {
				origin = "external"
			}
			for _, key := range cs.Keys() {
				verb := "set"
				if cs.Changes[key].Removed() {
					verb = "removed"
				}
				fmt.Fprintf(color.Output, "%s %-8s %s by %s\n", stamp(time.UnixMilli(cs.Timestamp).Format("15:04:05")), verb, key, origin)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchPattern, "pattern", "*", "Keys to follow (glob)")
}
