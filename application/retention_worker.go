package application

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// TransactionPurger deletes ledger entries older than a cutoff
type TransactionPurger interface {
	PurgeTransactionsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionWorker periodically drops transaction history past the
// retention window
type RetentionWorker struct {
	purger    TransactionPurger
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
}

// NewRetentionWorker creates a worker keeping retentionDays of history
func NewRetentionWorker(purger TransactionPurger, retentionDays int) *RetentionWorker {
	return &RetentionWorker{
		purger:    purger,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		interval:  time.Hour,
		now:       time.Now,
	}
}

// Start begins the retention worker
func (w *RetentionWorker) Start(ctx context.Context) func() {
	stopChan := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		log.WithFields(log.Fields{
			"retention": w.retention,
			"interval":  w.interval,
		}).Info("Retention worker started")

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			w.RunOnce(ctx)

			select {
			case <-ctx.Done():
				log.Info("Retention worker shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Info("Retention worker shutting down (stop requested)...")
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		close(stopChan)
		<-done
	}
}

// RunOnce purges everything older than the retention window
func (w *RetentionWorker) RunOnce(ctx context.Context) int64 {
	if w.retention <= 0 {
		return 0
	}

	cutoff := w.now().Add(-w.retention)
	deleted, err := w.purger.PurgeTransactionsOlderThan(ctx, cutoff)
	if err != nil {
		log.WithError(err).Error("Failed to purge old transactions")
		return 0
	}
	if deleted > 0 {
		log.WithFields(log.Fields{
			"deleted": deleted,
			"cutoff":  cutoff.Format(time.RFC3339),
		}).Info("Purged old transactions")
	}
	return deleted
}
