package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Re-run the checks whenever a protocol file changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			logger, err := a.logger()
			if err != nil {
				return err
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer watcher.Close()
			if err := watcher.Add(dir); err != nil {
				return err
			}

			runChecks := func() {
				files, err := protocolFiles(dir)
				if err != nil {
					logger.Error("scan failed", "dir", dir, "error", err)
					return
				}
				if len(files) == 0 {
					logger.Warn("no .scr files", "dir", dir)
					return
				}
				ws, err := loadWorkspace(files, a.cfg.InlineDepth)
				if err != nil {
					logger.Error("load failed", "error", err)
					return
				}
				for _, rep := range checkAll(ws, a.cfg.SafetyBudget) {
					if rep.failed() {
						logger.Error("verification failed", "protocol", rep.Protocol)
					} else {
						logger.Info("verified", "protocol", rep.Protocol, "states", rep.Explored)
					}
				}
			}

			logger.Info("watching", "dir", dir)
			runChecks()

			// Editors fire several events per save; a short quiet period
			// coalesces them into one run.
			var pending <-chan time.Time
			for {
				select {
				case ev, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if !strings.HasSuffix(ev.Name, ".scr") {
						continue
					}
					if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
						continue
					}
					logger.Info("changed", "file", filepath.Base(ev.Name))
					pending = time.After(150 * time.Millisecond)
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					logger.Error("watch error", "error", err)
				case <-pending:
					pending = nil
					runChecks()
				}
			}
		},
	}
	return cmd
}

// protocolFiles lists the .scr files directly under dir.
func protocolFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".scr") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}
