package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kiratut/v4/internal/app"
)

var (
	startWorkers   int
	startChunkSize int
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the dispatcher, scheduler, and health sampler in the foreground",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
	startCmd.Flags().IntVar(&startWorkers, "workers", 0, "override task_dispatcher.max_workers")
	startCmd.Flags().IntVar(&startChunkSize, "chunk-size", 0, "override task_dispatcher.chunk_size")
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Bootstrap(ctx, configPath, app.Overrides{Workers: startWorkers, ChunkSize: startChunkSize})
	if err != nil {
		return withExitCode(exitError, err)
	}
	defer a.Close()

	if err := a.WritePIDFile(ctx); err != nil {
		a.Log.Warn("start: write pid file", zap.Error(err))
	}

	a.Log.Info("start: running in foreground",
		zap.Int("max_workers", a.Config.TaskDispatcher.MaxWorkers),
		zap.Int("chunk_size", a.Config.TaskDispatcher.ChunkSize))

	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		return withExitCode(exitError, err)
	}
	return nil
}
