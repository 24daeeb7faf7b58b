package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/FitLedger/FitLedger/app/models"
	"github.com/FitLedger/FitLedger/app/repository"
	"github.com/FitLedger/FitLedger/internal/pkg/s3archive"
)

// processMarkerPruneJob deletes idempotency markers past retention. The
// delete is a range predicate, so overlapping or repeated runs are harmless.
func (q *Queue) processMarkerPruneJob(ctx context.Context, job *Job) error {
	payload, err := MarkerPruneJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid marker prune payload: %w", err)
	}

	cutoff := payload.Cutoff
	if cutoff.IsZero() {
		cutoff = time.Now().Add(-models.ProcessedRequestRetention)
	}

	repo := repository.GetGlobalFactory().GetOrderRepository()
	deleted, err := repo.DeleteProcessedRequestsBefore(cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune processed requests: %w", err)
	}

	if deleted > 0 {
		log.Infof("[Maintenance] Pruned %d idempotency markers older than %s", deleted, cutoff.UTC().Format(time.RFC3339))
	}
	return nil
}

// processLedgerArchiveJob exports one month of completed orders to the S3
// archive. Skipped silently when the archive is not configured.
func (q *Queue) processLedgerArchiveJob(ctx context.Context, job *Job) error {
	payload, err := LedgerArchiveJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid ledger archive payload: %w", err)
	}

	cfg, err := s3archive.LoadConfig()
	if err != nil {
		return fmt.Errorf("invalid S3 archive configuration: %w", err)
	}
	if !cfg.IsEnabled() {
		log.Debug("[Maintenance] S3 archive disabled, skipping ledger export")
		return nil
	}

	client, err := s3archive.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create S3 archive client: %w", err)
	}

	start := payload.MonthStart()
	end := start.AddDate(0, 1, 0)

	repo := repository.GetGlobalFactory().GetOrderRepository()
	orders, err := repo.ListCompletedBetween(start, end)
	if err != nil {
		return fmt.Errorf("failed to load completed orders: %w", err)
	}

	key, err := client.ArchiveOrders(ctx, start, orders)
	if err != nil {
		return err
	}

	log.Infof("[Maintenance] Archived %d completed orders to %s", len(orders), key)
	return nil
}
