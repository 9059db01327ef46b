package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"threatfeed/internal/jobs"
	"threatfeed/internal/scheduler"
	"threatfeed/worker"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion scheduler and workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ingestor, store, cleanup, err := buildIngestor(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		tick, err := time.ParseDuration(cfg.Ingest.TickInterval)
		if err != nil {
			return err
		}

		inflight := scheduler.NewInFlight()
		ws := []worker.Worker{}

		var dispatcher scheduler.Dispatcher
		if cfg.Ingest.DirectDispatch {
			slog.Info("job queue disabled, dispatching fetches in-process")
			dispatcher = &scheduler.DirectDispatcher{Run: ingestor.IngestSource, InFlight: inflight}
		} else {
			qd := jobs.NewQueueDispatcher(cfg.Redis)
			defer qd.Close()
			dispatcher = qd
			ws = append(ws, jobs.NewServer(cfg.Redis, cfg.Ingest.WorkerConcurrency, ingestor, inflight))
		}

		sched := scheduler.New(store, dispatcher, tick, inflight)
		ws = append(ws, sched)

		mgr := worker.NewManager(ws...)

		// Signal handling for systemd
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			s := <-sigc
			log.Printf("received signal: %s, shutting down", s)
			cancel()
		}()

		return mgr.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
