package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/wolfsblu/stoca/internal/analyzer"
	"github.com/wolfsblu/stoca/pkg/log"
)

const defaultPollInterval = 5 * time.Second

// followCmd represents the follow command.
func followCmd() *cobra.Command {
	var logPath string

	cmd := &cobra.Command{
		Use:   "follow",
		Short: "Watches a combat log and re-renders statistics as it grows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, closer, errSetup := setup(cmd.Context())
			if errSetup != nil {
				return errSetup
			}

			defer closer()

			if logPath != "" {
				conf.Analysis.CombatlogFile = logPath
			}

			if conf.Analysis.CombatlogFile == "" {
				return ErrNoCombatLog
			}

			pollInterval := defaultPollInterval
			if parsed, errParse := time.ParseDuration(conf.Follow.PollInterval); errParse == nil && parsed > 0 {
				pollInterval = parsed
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			handler := analyzer.NewHandler(conf.Analysis, pollInterval)

			go handler.Start(ctx)
			go watchCombatLog(ctx, conf.Analysis.CombatlogFile, handler)

			for {
				select {
				case <-ctx.Done():
					return nil
				case info := <-handler.Info():
					if len(info.Combats) == 0 {
						continue
					}

					fmt.Fprintf(os.Stdout, "\n%d combats\n", len(info.Combats))
					renderCombat(os.Stdout, info.Combats[len(info.Combats)-1])
				}
			}
		},
	}

	cmd.Flags().StringVarP(&logPath, "log", "l", "", "combat log file, overrides analysis.combatlog_file")

	return cmd
}

// watchCombatLog requests a refresh whenever the log file changes. The
// watch is on the containing directory because the game client recreates
// the file on log rotation. The handler coalesces event bursts, so a chatty
// filesystem only costs one update pass.
func watchCombatLog(ctx context.Context, path string, handler *analyzer.Handler) {
	watcher, errWatcher := fsnotify.NewWatcher()
	if errWatcher != nil {
		slog.Error("Failed to create filesystem watcher, relying on polling", log.ErrAttr(errWatcher))

		return
	}

	defer log.Closer(watcher)

	if errAdd := watcher.Add(filepath.Dir(path)); errAdd != nil {
		slog.Error("Failed to watch combat log directory, relying on polling", log.ErrAttr(errAdd))

		return
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if event.Name != path {
				continue
			}

			if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
				handler.Refresh()
			}
		case errWatch, ok := <-watcher.Errors:
			if !ok {
				return
			}

			slog.Warn("Filesystem watcher error", log.ErrAttr(errWatch))
		case <-ctx.Done():
			return
		}
	}
}
