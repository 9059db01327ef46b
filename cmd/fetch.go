package cmd

import (
	"context"
	"fmt"

	"threatfeed/internal/scheduler"

	"github.com/spf13/cobra"
)

var fetchAll bool

// fetchCmd runs an immediate fetch cycle through the scheduler's trigger
// path, bypassing its due-check.
var fetchCmd = &cobra.Command{
	Use:   "fetch [source-id]",
	Short: "Manually trigger ingestion for a source (or all enabled sources)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !fetchAll {
			return fmt.Errorf("pass a source id or --all")
		}
		cfg := GetConfig()
		ctx := context.Background()

		ingestor, store, cleanup, err := buildIngestor(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		inflight := scheduler.NewInFlight()
		dispatcher := &scheduler.InlineDispatcher{Run: ingestor.IngestSource, InFlight: inflight}
		sched := scheduler.New(store, dispatcher, 0, inflight)

		if !fetchAll {
			src, err := store.GetSource(ctx, args[0])
			if err != nil {
				return err
			}
			sched.Trigger(ctx, *src)
		} else {
			sources, err := store.ListEnabledSources(ctx)
			if err != nil {
				return err
			}
			for _, src := range sources {
				sched.Trigger(ctx, src)
			}
		}

		if dispatcher.Failures > 0 {
			return fmt.Errorf("%d fetch(es) failed", dispatcher.Failures)
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchAll, "all", false, "fetch every enabled source")
	rootCmd.AddCommand(fetchCmd)
}
