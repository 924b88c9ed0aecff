package postgres

import (
	"context"
	"time"

	"cvdcollector/internal/binance/memorystore"
	"cvdcollector/metrics"

	"go.uber.org/zap"
)

// Archive adapts the Postgres client to the flush sink interface, giving
// the collector an optional third durable target alongside the CSV stores.
type Archive struct {
	client  *PostgresClient
	timeout time.Duration
	logger  *zap.Logger
}

func NewArchive(client *PostgresClient, timeout time.Duration, logger *zap.Logger) *Archive {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Archive{client: client, timeout: timeout, logger: logger}
}

// Persist inserts the batch with a bounded timeout. Failures are reported
// to the scheduler and counted; the CSV targets are unaffected.
func (a *Archive) Persist(batch []memorystore.Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	if err := a.client.InsertSnapshots(ctx, batch); err != nil {
		metrics.FlushTargetFailures.WithLabelValues("archive").Inc()
		a.logger.Error("snapshot archive insert failed", zap.Error(err))
		return err
	}
	return nil
}
