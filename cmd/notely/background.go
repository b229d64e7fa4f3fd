package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/notely"
	"github.com/aretw0/notely/pkg/adapters/notify"
	"github.com/aretw0/notely/pkg/content"
	"github.com/aretw0/notely/pkg/core"
)

const pageTarget = "page"

var (
	bgPage        bool
	bgStopTimeout time.Duration
)

var backgroundCmd = &cobra.Command{
	Use:   "background",
	Short: "Run the background daemon that fires reminders",
	Long: `Background runs the controller of the shared store: it presents due
reminders on the terminal and logs every change written by other contexts.

With --page it also hosts a page widget. Type "toggle" on stdin to send the
global keyboard command that opens the widget form, and "close" to close it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sink := notify.NewConsoleSink(nil)
		host, err := openHost(notely.WithSink(notify.Multi{sink, notify.NewLogSink(logger)}))
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		bg := host.Background()
		if err := bg.Start(ctx); err != nil {
			return fmt.Errorf("start background: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), bgStopTimeout)
			defer cancel()
			if err := bg.Stop(stopCtx); err != nil {
				logger.Error("background stop failed", "error", err)
			}
		}()

		if bgPage {
			page := host.Content(pageTarget)
			defer page.Close()
			if page.Boot(ctx) {
				fmt.Fprintln(os.Stderr, "Page widget ready, floating button shown.")
			}
			host.Router.SetActive(pageTarget)
			go readCommands(ctx, bg.HandleCommand, page)
		}

		fmt.Fprintln(os.Stderr, "Background running (Ctrl+C to stop)")
		<-ctx.Done()
		return nil
	},
}

// readCommands forwards stdin lines to the keyboard command handler.
func readCommands(ctx context.Context, handle func(context.Context, string), page *content.Widget) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		switch strings.TrimSpace(scanner.Text()) {
		case "toggle", "t":
			handle(ctx, core.CommandToggleForm)
			select {
			case <-page.Opened():
				fmt.Println("form open")
			case <-time.After(time.Second):
				fmt.Println("form did not open")
			}
		case "close":
			page.ClosePanel()
			fmt.Println("form closed")
		case "":
		default:
			fmt.Fprintln(os.Stderr, `unknown command, try "toggle" or "close"`)
		}
	}
}

func init() {
	rootCmd.AddCommand(backgroundCmd)
	backgroundCmd.Flags().BoolVar(&bgPage, "page", false, "Host a page widget driven from stdin")
	backgroundCmd.Flags().DurationVar(&bgStopTimeout, "stop-timeout", 5*time.Second, "Graceful shutdown timeout")
}
