package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"courtdata-backend/lib/telemetry"
	"courtdata-backend/lib/workqueue"
	"courtdata-backend/services/crawler"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(workerCmd)
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Polls the work queue and processes case batches until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		otel, err := telemetry.SetupFromEnv(ctx, "crawlerd-worker")
		if err != nil {
			slog.Warn("telemetry disabled", "err", err)
		} else {
			defer func() {
				if err := otel.Shutdown(context.Background()); err != nil {
					slog.Warn("telemetry shutdown failed", "err", err)
				}
			}()
		}
		telemetry.InstrumentPerfStats(ctx)

		cfg := readConfig()
		service, queue := buildService(ctx, cfg)
		if queue == nil {
			fatalerr("worker requires a queue", errors.New("queue.queue_url is not configured"))
		}

		slog.Info("worker polling for case batches")
		for {
			messages, err := queue.Receive(ctx, 10, 20*time.Second)
			if err != nil {
				if ctx.Err() != nil {
					slog.Info("worker stopping")
					return
				}
				slog.Error("failed to receive from queue", "err", err)
				continue
			}

			for _, message := range messages {
				if err := processMessage(ctx, service, queue, message); err != nil {
					// leave the message for redelivery after the
					// visibility timeout
					slog.Error("failed to process batch", "err", err)
				}
			}
		}
	},
}

func processMessage(ctx context.Context, service *crawler.Service, queue *workqueue.Queue, message workqueue.Message) error {
	batch, err := crawler.DecodeWorkBatch(message.Body)
	if err != nil {
		return err
	}

	summary, err := service.ProcessBatch(ctx, batch)
	if err != nil {
		return err
	}
	slog.Info(
		"processed batch",
		"county", summary.County,
		"stored", summary.CasesProcessed,
		"unchanged", summary.CasesUnchanged,
		"records", summary.RecordsStored,
	)

	return queue.Delete(ctx, message.Receipt)
}
