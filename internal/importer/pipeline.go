package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/checkpoint"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/logging"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/metrics"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/streamfile"
)

// pipeline builds files concurrently and commits them in source order.
//
//	source -> dispatcher -> workQueue -> workers -> resultChan -> sequencer
type pipeline struct {
	im         *Importer
	workers    int
	workQueue  chan FileTask
	resultChan chan FileResult
	log        *slog.Logger

	inFlight  atomic.Int64
	committed []CommitResult
}

func newPipeline(im *Importer) *pipeline {
	return &pipeline{
		im:         im,
		workers:    im.cfg.Workers,
		workQueue:  make(chan FileTask, im.cfg.QueueSize),
		resultChan: make(chan FileResult, im.cfg.QueueSize),
		log:        im.log.With("component", "pipeline"),
	}
}

func (p *pipeline) run(ctx context.Context, after *streamfile.FileName) error {
	g, gctx := errgroup.WithContext(ctx)

	p.log.Info("starting import", "workers", p.workers, "queue_size", cap(p.workQueue))

	g.Go(func() error {
		return p.dispatcherLoop(gctx, after)
	})

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.workerLoop(gctx, id)
		}(i)
	}
	go func() {
		wg.Wait()
		close(p.resultChan)
	}()

	g.Go(func() error {
		return p.sequencerLoop(gctx)
	})

	err := g.Wait()
	// Unblock any worker still waiting to send.
	for range p.resultChan {
	}
	return err
}

// dispatcherLoop numbers files in source order and hands them to workers.
func (p *pipeline) dispatcherLoop(ctx context.Context, after *streamfile.FileName) error {
	defer close(p.workQueue)

	files, errs := p.im.src.Stream(ctx, after)
	var seq int64
	for raw := range files {
		task := FileTask{Seq: seq, Raw: raw, Sent: time.Now()}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p.workQueue <- task:
		}
		seq++
		if m := metrics.Get(); m != nil {
			m.SetWorkerQueueDepth(float64(len(p.workQueue)))
		}
	}

	if err := <-errs; err != nil {
		if m := metrics.Get(); m != nil {
			m.IncSourceErrors(p.im.labels())
		}
		return fmt.Errorf("source: %w", err)
	}
	p.log.Debug("dispatcher done", "files", seq)
	return nil
}

func (p *pipeline) workerLoop(ctx context.Context, workerID int) {
	for task := range p.workQueue {
		if ctx.Err() != nil {
			return
		}
		p.trackInFlight(1)
		result := p.processTask(workerID, task)
		p.trackInFlight(-1)
		select {
		case p.resultChan <- result:
		case <-ctx.Done():
			return
		}
	}
}

// trackInFlight counts files being decoded across all workers.
func (p *pipeline) trackInFlight(delta int64) {
	n := p.inFlight.Add(delta)
	if m := metrics.Get(); m != nil {
		m.SetInFlightFiles(float64(n))
	}
}

// processTask decodes one file. Build failures are deterministic and are
// not retried.
func (p *pipeline) processTask(workerID int, task FileTask) FileResult {
	buildID := uuid.New().String()
	log := logging.WorkerLogger(workerID).With(
		"correlation_id", logging.GenerateCorrelationID(),
		"file", task.Raw.Name.Name,
		"seq", task.Seq,
		"build_id", buildID,
	)

	start := time.Now()
	file, err := p.im.reader.Read(task.Raw.Name.Canonical(), task.Raw.Data)
	if err != nil {
		log.Error("stream file build failed", "error", err)
		return FileResult{Task: task, Err: fmt.Errorf("build %s: %w", task.Raw.Name.Name, err)}
	}
	elapsed := time.Since(start)
	file.ExpectedHash = task.Raw.ExpectedHash

	log.Debug("stream file built", "items", len(file.Items), "duration_ms", elapsed.Milliseconds())
	if m := metrics.Get(); m != nil {
		labels := p.im.labels()
		m.ObserveFileBuildDuration(labels, elapsed.Seconds())
		m.ObserveFileItems(labels, float64(len(file.Items)))
		m.ObserveFileBytes(labels, float64(len(task.Raw.Data)))
	}

	return FileResult{
		Task: task,
		Built: &BuiltFile{
			File:     file,
			BuildID:  buildID,
			BuiltAt:  time.Now().UTC(),
			Duration: elapsed,
		},
	}
}

// sequencerLoop commits results in Seq order. A failed result only stops
// the run once every file before it has been committed.
func (p *pipeline) sequencerLoop(ctx context.Context) error {
	pending := make(map[int64]FileResult)
	var next int64
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case result, ok := <-p.resultChan:
			if !ok {
				if len(pending) > 0 {
					return fmt.Errorf("%w: next=%d pending=%d", ErrSequenceGap, next, len(pending))
				}
				p.log.Info("import complete", "committed", len(p.committed), "duration", time.Since(start).String())
				return nil
			}
			pending[result.Task.Seq] = result

			for {
				r, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				next++

				if r.Err != nil {
					if m := metrics.Get(); m != nil {
						labels := p.im.labels()
						labels.Check = failedCheck(r.Err)
						m.IncFilesFailed(labels)
					}
					return r.Err
				}

				res, err := p.im.commit(ctx, r.Built)
				if err != nil {
					return err
				}
				p.committed = append(p.committed, *res)

				if m := metrics.Get(); m != nil {
					m.SetSequencerPending(float64(len(pending)))
					if secs := time.Since(start).Seconds(); secs > 0 {
						m.SetFilesPerSecond(float64(len(p.committed))/secs)
					}
				}
			}
		}
	}
}

// commit validates a built file against the last accepted one and
// persists it. Only the sequencer calls commit.
func (im *Importer) commit(ctx context.Context, built *BuiltFile) (*CommitResult, error) {
	file := built.File
	if file.Format == streamfile.FormatRecord {
		if im.previous != nil {
			file.Index = im.previous.Index + 1
		} else {
			file.Index = 0
		}
	}
	log := logging.FileLogger(built.BuildID, im.cfg.Network, file.Name, file.Index)
	start := time.Now()

	if err := im.validator.Validate(file, im.previous); err != nil {
		log.Error("stream file rejected", "error", err)
		if m := metrics.Get(); m != nil {
			labels := im.labels()
			labels.Check = failedCheck(err)
			m.IncFilesFailed(labels)
		}
		return nil, err
	}

	result := &CommitResult{Name: file.Name, Index: file.Index, Items: len(file.Items)}

	exists, err := im.catalog.Exists(ctx, im.cfg.Network, file.Name)
	if err != nil {
		log.Warn("catalog existence check failed", "error", err)
	} else if exists {
		log.Info("skipping stream file (already cataloged)")
		if m := metrics.Get(); m != nil {
			m.IncFilesSkipped(im.labels())
		}
		result.Skipped = true
		im.accept(ctx, file, log)
		return result, nil
	}

	if im.store != nil {
		pub, err := im.archive(ctx, built)
		if err != nil {
			if m := metrics.Get(); m != nil {
				m.IncStorageErrors(im.labels())
			}
			return nil, fmt.Errorf("archive %s: %w", file.Name, err)
		}
		result.StorageURI = pub.URI
	}

	rec := metadataRecord(im.cfg.Network, built, result.StorageURI)
	err = im.withRetry(ctx, "catalog_record", func(ctx context.Context) error {
		return im.catalog.RecordStreamFile(ctx, rec)
	})
	if err != nil {
		if m := metrics.Get(); m != nil {
			m.IncCatalogErrors(im.labels())
		}
		return nil, fmt.Errorf("catalog %s: %w", file.Name, err)
	}

	im.accept(ctx, file, log)

	if m := metrics.Get(); m != nil {
		labels := im.labels()
		m.IncFilesProcessed(labels)
		m.AddItemsProcessed(labels, float64(len(file.Items)))
		m.AddUnresolvedParents(labels, float64(file.Unresolved))
		m.AddErrataApplied(labels, float64(file.Corrected))
		m.AddGasUsed(labels, float64(gasUsed(file)))
		m.ObserveFileCommitDuration(labels, time.Since(start).Seconds())
	}

	log.Info("stream file committed",
		"items", len(file.Items),
		"unresolved_parents", file.Unresolved,
		"storage_uri", result.StorageURI,
	)
	return result, nil
}

// accept makes file the chain head and records the checkpoint.
func (im *Importer) accept(ctx context.Context, file *streamfile.StreamFile, log *slog.Logger) {
	im.previous = file

	cp := checkpoint.FromStreamFile(im.cfg.ImporterID, im.cfg.Network, file)
	if err := im.checkpoint.Save(ctx, cp); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("failed to save checkpoint", "error", err)
	}
	if m := metrics.Get(); m != nil {
		m.SetLastFile(im.labels(), file.Index, file.ConsensusEnd)
	}
}
