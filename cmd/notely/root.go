package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aretw0/notely"
	"github.com/aretw0/notely/internal/platform"
)

var (
	verbose   bool
	storePath string
	adapter   string

	cfg    platform.Config
	logger *slog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "notely",
	Short: "Notes and deferred reminders shared across isolated contexts",
	Long: `Notely keeps a list of notes in a shared key-value store.
Every context (background daemon, page widget, popup viewer, this CLI)
sees the writes of the others, and reminders fire in the background
daemon even when nothing else is running.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := platform.LoadConfig(viper.New())
		if err != nil {
			return err
		}
		cfg = loaded
		if cmd.Flags().Changed("path") {
			cfg.Path = storePath
		} else if wd, err := os.Getwd(); err == nil {
			cfg.Path = platform.LocalStorePath(wd, cfg.Path)
		}
		if cmd.Flags().Changed("adapter") {
			cfg.Adapter = adapter
		}

		level := cfg.Level()
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openHost builds the host every command acts through.
func openHost(extra ...notely.Option) (*notely.Host, error) {
	opts := append(cfg.Options(), notely.WithLogger(logger))
	opts = append(opts, extra...)
	return notely.New(cfg.Path, opts...)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&storePath, "path", "p", platform.DefaultPath, "Store directory")
	rootCmd.PersistentFlags().StringVar(&adapter, "adapter", "fs", "Storage adapter (fs, memory)")
}
