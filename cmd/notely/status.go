package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aretw0/introspection"
	"github.com/spf13/cobra"

	"github.com/aretw0/notely/internal/platform"
	"github.com/aretw0/notely/pkg/adapters/fs"
	"github.com/aretw0/notely/pkg/adapters/schedule"
)

var statusDiagram bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show capabilities and component state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		host, err := openHost()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}

		report := map[string]any{
			"path":         host.Path,
			"capabilities": host.Capabilities,
			"service":      host.Service(platform.KindCLI).State(),
		}
		if intro, ok := host.Store.(introspection.Introspectable); ok {
			report["store"] = intro.State()
		}
		if intro, ok := host.Scheduler.(introspection.Introspectable); ok {
			report["scheduler"] = intro.State()
		}

		if statusDiagram {
			config := introspection.DefaultDiagramConfig()
			config.SecondaryID = "notely"
			config.SecondaryLabel = "Host Topology"
			fmt.Println(introspection.TreeDiagram(buildHostTree(host), config))
			return nil
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	},
}

type hostNode struct {
	Name     string
	Status   string
	Metadata map[string]string
	Children []hostNode
}

// buildHostTree maps component state onto introspection statuses.
func buildHostTree(host *platform.Host) hostNode {
	store := hostNode{Name: "Store", Status: "running", Metadata: map[string]string{"type": "container"}}
	if state, ok := stateOf[fs.StoreState](host.Store); ok {
		store.Metadata["path"] = state.Path
		store.Metadata["keys"] = fmt.Sprintf("%d", state.Keys)
		watcher := "suspended"
		if state.WatcherActive {
			watcher = "running"
		}
		store.Children = append(store.Children, hostNode{Name: "Watcher", Status: watcher, Metadata: map[string]string{"type": "goroutine"}})
	}
	if !host.Capabilities.Storage {
		store.Status = "failed"
	}

	sched := hostNode{Name: "Scheduler", Status: "suspended", Metadata: map[string]string{"type": "process"}}
	if state, ok := stateOf[schedule.SchedulerState](host.Scheduler); ok {
		sched.Metadata["pending"] = fmt.Sprintf("%d", state.Pending)
		sched.Metadata["fired"] = fmt.Sprintf("%d", state.Fired)
		if state.Running {
			sched.Status = "running"
		}
	}
	if !host.Capabilities.Scheduler {
		sched.Status = "failed"
	}

	return hostNode{
		Name:     "Host",
		Status:   "running",
		Metadata: map[string]string{"type": "container", "path": host.Path},
		Children: []hostNode{store, sched},
	}
}

func stateOf[T any](v any) (T, bool) {
	var zero T
	intro, ok := v.(introspection.Introspectable)
	if !ok {
		return zero, false
	}
	state, ok := intro.State().(T)
	return state, ok
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusDiagram, "diagram", false, "Print a Mermaid diagram instead of JSON")
}
