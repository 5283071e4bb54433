package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/your-org/pitchview/internal/models"
	"github.com/your-org/pitchview/internal/queue"
	"github.com/your-org/pitchview/internal/series"
	"github.com/your-org/pitchview/internal/storage"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var mirror bool
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List analysed videos, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var records []models.HistorySummary
			if mirror {
				err := ctx.withDatabase(func(db *storage.PostgresStore) error {
					var err error
					records, err = db.ListRecords(cmd.Context(), limit)
					return err
				})
				if err != nil {
					return err
				}
			} else {
				client, err := ctx.backendClient()
				if err != nil {
					return err
				}
				records, err = client.ListHistory(cmd.Context())
				if err != nil {
					return err
				}
				if limit > 0 && len(records) > limit {
					records = records[:limit]
				}
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No analyses found")
				return nil
			}
			fmt.Fprintln(out, renderTable(summaryHeaders(), buildSummaryRows(records), nil))
			return nil
		},
	}

	cmd.Flags().BoolVar(&mirror, "mirror", false, "Read from the local database mirror")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of records")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a record and its per-frame metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := ctx.record(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, formatRecordHeader(rec))
			if len(rec.AllMetrics) == 0 {
				fmt.Fprintln(out, "No frame metrics stored")
				return nil
			}
			headers := metricHeaders("Frame", ctx.lengthUnit())
			rows := buildFrameRows(series.FromHistory(rec.AllMetrics))
			fmt.Fprintln(out, renderTable(headers, rows, repeatAlign(alignRight, alignRight, len(headers))))
			return nil
		},
	}
}

func newCompareCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "compare <id1> [id2]",
		Short: "Compare the metrics of two records aligned by frame number",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.record(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var bMetrics []models.FrameMetrics
			second := gap
			if len(args) == 2 {
				b, err := ctx.record(cmd.Context(), args[1])
				if err != nil {
					return err
				}
				bMetrics = b.AllMetrics
				second = b.ID.String()
			}

			cmp := series.Compare(a.AllMetrics, bMetrics)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Comparing %s with %s over %d frames\n", a.ID, second, len(cmp.Labels))
			headers := []string{"Metric", "Mean " + a.ID.String(), "Frames", "Mean " + second, "Frames", "Δ"}
			fmt.Fprintln(out, renderTable(headers, buildCompareRows(cmp, ctx.lengthUnit()), repeatAlign(alignLeft, alignRight, len(headers))))
			return nil
		},
	}
}

func newSimilarCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "similar <id>",
		Short: "Find mirrored pitches with the closest metric profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var matches []storage.SimilarMatch
			err := ctx.withDatabase(func(db *storage.PostgresStore) error {
				var err error
				matches, err = db.SimilarRecords(cmd.Context(), args[0], limit)
				return err
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(matches) == 0 {
				fmt.Fprintf(out, "No pitches similar to %s\n", args[0])
				return nil
			}
			headers := []string{"ID", "Filename", "Prediction", "Distance"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}
			fmt.Fprintln(out, renderTable(headers, buildSimilarRows(matches), aligns))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Maximum number of matches")
	return cmd
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var opts queue.WatchOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow analysis status changes as they happen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.NATS.Enabled() {
				return fmt.Errorf("nats is not configured (set nats.url or PV_NATS_URL)")
			}

			consumer, err := queue.NewConsumer(cfg.NATS.URL)
			if err != nil {
				return err
			}
			defer consumer.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			done, err := consumer.ConsumeAnalysis(runCtx, opts, func(_ context.Context, ev models.AnalysisEvent) error {
				fmt.Fprintln(out, formatEvent(ev))
				return nil
			})
			if err != nil {
				return err
			}
			<-done
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.JobID, "job", "", "Only follow this job id")
	cmd.Flags().BoolVar(&opts.FromStart, "from-start", false, "Replay retained events first")
	cmd.Flags().StringVar(&opts.Durable, "durable", "", "Durable consumer name")
	return cmd
}
