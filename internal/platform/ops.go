package platform

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"

	"github.com/aretw0/notely/pkg/adapters/fs"
	"github.com/aretw0/notely/pkg/adapters/memory"
	"github.com/aretw0/notely/pkg/adapters/schedule"
	"github.com/aretw0/notely/pkg/core"
)

// SchedulerDirName is the subdirectory of the store holding armed timers.
const SchedulerDirName = "scheduler"

// Init opens the store selected by the options. The uri argument is
// adapter-specific: a directory for "fs", ignored for "memory".
func Init(uri string, opts ...Option) (core.Store, error) {
	o := applyOptions(opts)
	store, _, err := initStore(uri, o)
	return store, err
}

// initStore returns the store and, for directory-backed stores, the resolved path.
func initStore(uri string, o *options) (core.Store, string, error) {
	if o.store != nil {
		return o.store, "", nil
	}

	switch o.adapter {
	case "memory":
		return memory.NewStore(memory.WithClock(o.clock)), "", nil
	case "fs", "":
		store, path, err := initFS(uri, o)
		if err != nil {
			return nil, "", err
		}
		if err := store.Initialize(context.Background()); err != nil {
			return nil, "", err
		}
		return store, path, nil
	default:
		return nil, "", fmt.Errorf("unknown adapter: %s", o.adapter)
	}
}

// initFS handles the path resolution and configuration of the filesystem store.
func initFS(path string, o *options) (*fs.Store, string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, "", fmt.Errorf("expand %s: %w", path, err)
	}

	tempDir, _ := o.config["temp_dir"].(bool)
	mustExist, _ := o.config["must_exist"].(bool)
	isReadOnly, _ := o.config["read_only"].(bool)
	lockTimeout, _ := o.config["lock_timeout"].(time.Duration)
	errorHandler, _ := o.config["watcher_error_handler"].(func(error))

	// Default to true (safe) if not present.
	devSafety := true
	if val, ok := o.config["dev_safety"].(bool); ok {
		devSafety = val
	}
	bypassSafety := isReadOnly || !devSafety

	useTemp := tempDir || (IsDevRun() && !bypassSafety)
	resolvedPath := ResolveStorePath(expanded, useTemp)

	if o.logger != nil && IsDevRun() {
		if bypassSafety {
			if isReadOnly {
				o.logger.Debug("running in READ-ONLY mode (bypassing dev sandbox)", "path", resolvedPath)
			} else {
				o.logger.Warn("running in UNSAFE mode (bypassing dev sandbox)", "path", resolvedPath)
			}
		} else {
			o.logger.Debug("running in SAFE mode (dev sandbox enabled)", "path", resolvedPath)
		}
	}
	if o.logger != nil && useTemp {
		o.logger.Warn("running in SAFE MODE (Dev/Test)", "original_path", path, "resolved_path", resolvedPath)
	}

	store := fs.NewStore(fs.Config{
		Path:         resolvedPath,
		ReadOnly:     isReadOnly,
		MustExist:    mustExist,
		LockTimeout:  lockTimeout,
		Logger:       o.logger,
		ErrorHandler: errorHandler,
		Clock:        o.clock,
	})
	return store, resolvedPath, nil
}

// initScheduler returns the injected scheduler, a durable one next to a
// directory store, or an in-memory one.
func initScheduler(storePath string, o *options) core.Scheduler {
	if o.scheduler != nil {
		return o.scheduler
	}
	if storePath == "" {
		return memory.NewScheduler()
	}
	return schedule.New(schedule.Config{
		Path:   filepath.Join(storePath, SchedulerDirName),
		Logger: o.logger,
		Clock:  o.clock,
	})
}
