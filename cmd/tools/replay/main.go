package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tracker/internal/config"
	"tracker/internal/deadletter"
	"tracker/internal/storage"

	"github.com/spf13/cobra"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

var (
	dir        string
	configPath string
	prefix     string
	dryRun     bool
)

var rootCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-put dead-lettered records into the configured object store",
	Long: `Reads dead-letter segments written by the tracker and writes every record
back to the object store under its original key.

Examples:
  # Inspect segments without writing
  replay --dir ./deadletter --dry-run

  # Replay into the store described by a config file
  replay --dir ./deadletter --config tracker.yaml`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runReplay(ctx)
	},
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVarP(&dir, "dir", "d", "", "dead-letter directory")
	rootCmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_FILE"), "config file path")
	rootCmd.Flags().StringVar(&prefix, "prefix", "", "segment file prefix (default deadletter)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print entries without writing")
	_ = rootCmd.MarkFlagRequired("dir")
}

func runReplay(ctx context.Context) error {
	playback, err := deadletter.NewPlayback(dir, prefix)
	if err != nil {
		return err
	}

	if dryRun {
		count := 0
		err := playback.Run(ctx, func(path string, e deadletter.Entry) error {
			count++
			fmt.Printf("%s\t%d bytes\t%s\t%s\n", e.Key, len(e.Value), e.ReceivedAt.Format(time.RFC3339Nano), path)
			return nil
		})
		fmt.Printf("entries: %d\n", count)
		return err
	}

	cfg, err := config.Read(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateStore(); err != nil {
		return err
	}

	store, err := storage.Open(ctx, cfg.Storage())
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logs.Errorf("close store, err: %+v", err)
		}
	}()

	var replayed, bytes int
	err = playback.Run(ctx, func(path string, e deadletter.Entry) error {
		putCtx, cancel := context.WithTimeout(ctx, cfg.Store.Timeout)
		defer cancel()
		if err := store.Put(putCtx, e.Key, e.Value); err != nil {
			return errors.Wrapf(err, "replay %s from %s", e.Key, path)
		}
		replayed++
		bytes += len(e.Value)
		return nil
	})
	logs.Infof("replayed %d records (%d bytes) from %s", replayed, bytes, dir)
	return err
}
