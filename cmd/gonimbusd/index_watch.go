package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/3leaps/gonimbus/pkg/eventbus"
	"github.com/3leaps/gonimbus/pkg/output"
)

var indexWatchCmd = &cobra.Command{
	Use:   "watch <profile> <bucket>",
	Short: "Stream indexing progress for a bucket as JSONL",
	Long: `watch subscribes to the process-wide progress bus and writes one
JSONL record per update, using the gonimbus.progress.v1 and
gonimbus.summary.v1 record shapes. It exits once the named job reaches
a terminal status or the context is cancelled.`,
	Args: cobra.ExactArgs(2),
	RunE: runIndexWatch,
}

func init() {
	indexCmd.AddCommand(indexWatchCmd)
}

func runIndexWatch(cmd *cobra.Command, args []string) error {
	profile, bucket := args[0], args[1]

	writer := output.NewJSONLWriter(os.Stdout, uuid.NewString(), "s3")
	defer func() { _ = writer.Close() }()

	progressCh, unsubscribe := appCore.Bus().SubscribeIndexProgress()
	defer unsubscribe()

	ctx := cmd.Context()
	start := time.Now()
	var lastObjects int64

	if err := writer.WriteProgress(ctx, &output.ProgressRecord{
		Phase:  output.PhaseStarting,
		Prefix: bucket,
	}); err != nil {
		return fmt.Errorf("write starting record: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-progressCh:
			if !ok {
				return nil
			}
			if ev.Profile != profile || ev.Bucket != bucket {
				continue
			}

			lastObjects = ev.ObjectsIndexed

			phase := output.PhaseListing
			if ev.IsComplete {
				phase = output.PhaseComplete
			}
			if err := writer.WriteProgress(ctx, &output.ProgressRecord{
				Phase:        phase,
				ObjectsFound: ev.ObjectsIndexed,
				Prefix:       bucket,
			}); err != nil {
				return fmt.Errorf("write progress record: %w", err)
			}

			if ev.Status == eventbus.StatusFailed {
				if err := writer.WriteError(ctx, &output.ErrorRecord{
					Code:    output.ErrCodeInternal,
					Message: ev.Error,
					Prefix:  bucket,
				}); err != nil {
					return fmt.Errorf("write error record: %w", err)
				}
			}

			switch ev.Status {
			case eventbus.StatusCompleted, eventbus.StatusPartial, eventbus.StatusCancelled, eventbus.StatusFailed:
			default:
				continue
			}

			return writer.WriteSummary(ctx, &output.SummaryRecord{
				ObjectsFound:  lastObjects,
				Duration:      time.Since(start),
				DurationHuman: time.Since(start).Round(time.Second).String(),
				Prefixes:      []string{bucket},
				Errors: func() int64 {
					if ev.Status == eventbus.StatusFailed {
						return 1
					}
					return 0
				}(),
			})
		}
	}
}
