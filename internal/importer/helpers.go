package importer

import (
	"context"
	"errors"
	"time"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/metrics"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/streamfile"
)

// withRetry runs fn up to maxRetry times with exponential backoff. Context
// errors are not retried.
func (im *Importer) withRetry(ctx context.Context, operation string, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < im.cfg.MaxRetry; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if attempt == im.cfg.MaxRetry-1 {
			break
		}

		im.log.Warn("operation failed, retrying", "operation", operation, "attempt", attempt+1, "error", err)
		if m := metrics.Get(); m != nil {
			labels := im.labels()
			labels.Operation = operation
			m.IncRetryAttempts(labels)
		}

		backoff := time.Duration(im.cfg.BackoffMs*(1<<attempt)) * time.Millisecond
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// labels returns the metric labels for this importer.
func (im *Importer) labels() metrics.Labels {
	return metrics.Labels{
		Network:    im.cfg.Network,
		Format:     im.cfg.Format,
		SourceType: im.cfg.SourceType,
		Backend:    im.cfg.StorageBackend,
	}
}

// failedCheck names the validation check a rejection came from.
func failedCheck(err error) string {
	var verr *streamfile.ValidationError
	if errors.As(err, &verr) {
		return string(verr.Check)
	}
	return "build"
}

// gasUsed sums the contract gas reported by a file's items.
func gasUsed(f *streamfile.StreamFile) uint64 {
	var total uint64
	for _, item := range f.Items {
		if item.Record != nil && item.Record.ContractResult != nil {
			total += item.Record.ContractResult.GasUsed
		}
	}
	return total
}
