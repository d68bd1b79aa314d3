package mirror

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"hexmirror/internal/models"
)

const DefaultConcurrency = 100

// FetchFunc returns the full body at url. Errors of type
// *models.ArtifactFetchError with Transient false are not retried.
type FetchFunc func(ctx context.Context, url string) ([]byte, error)

// WriteFunc persists data at relPath and returns the bytes written.
type WriteFunc func(ctx context.Context, relPath string, data []byte) (int64, error)

// Pool runs work items with at most Concurrency fetches in flight. Each item
// produces exactly one FetchResult; a failing item never affects another.
type Pool struct {
	Concurrency    int
	Retry          RetryPolicy
	RequestTimeout time.Duration
	// GracePeriod is how long in-flight items may keep running after ctx is
	// cancelled before they are aborted.
	GracePeriod time.Duration
	Fetch       FetchFunc
	Write       WriteFunc
}

// Run blocks until every item has a result. Cancelling ctx stops dispatch
// immediately; items never started are reported as cancelled.
func (p *Pool) Run(ctx context.Context, items []WorkItem) models.RunSummary {
	limit := p.Concurrency
	if limit < 1 {
		limit = DefaultConcurrency
	}

	results := make([]models.FetchResult, len(items))

	workCtx, abort := context.WithCancel(context.WithoutCancel(ctx))
	defer abort()
	stopGrace := context.AfterFunc(ctx, func() {
		slog.Warn("cancellation requested, waiting for in-flight downloads", "grace_period", p.GracePeriod)
		t := time.NewTimer(p.GracePeriod)
		defer t.Stop()
		select {
		case <-t.C:
			abort()
		case <-workCtx.Done():
		}
	})
	defer stopGrace()

	sem := semaphore.NewWeighted(int64(limit))
	var wg sync.WaitGroup

	for i, item := range items {
		if acquire(ctx, sem) != nil {
			for j := i; j < len(items); j++ {
				results[j] = cancelledResult(items[j], 0, "not started: run cancelled")
			}
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = p.process(workCtx, i+1, len(items), item)
		}()
	}
	wg.Wait()

	return models.Summarize(results)
}

// acquire never hands out a slot once ctx is done, even if one was free.
func acquire(ctx context.Context, sem *semaphore.Weighted) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		sem.Release(1)
		return err
	}
	return nil
}

func (p *Pool) process(ctx context.Context, n, total int, item WorkItem) models.FetchResult {
	data, attempts, err := fetchWithRetry(ctx, item.RemoteURL, p.Fetch, p.Retry, p.RequestTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return cancelledResult(item, attempts, "aborted: "+err.Error())
		}
		slog.Warn("download failed", "path", item.RemotePath, "attempts", attempts, "error", err)
		return models.FetchResult{
			RemotePath: item.RemotePath,
			RemoteURL:  item.RemoteURL,
			Outcome:    models.OutcomeFailed,
			Attempts:   attempts,
			Reason:     err.Error(),
		}
	}

	written, err := p.Write(ctx, item.RemotePath, data)
	if err != nil {
		var we *models.ArtifactWriteError
		if !errors.As(err, &we) {
			err = &models.ArtifactWriteError{Path: item.RemotePath, Err: err}
		}
		slog.Warn("write failed", "path", item.RemotePath, "error", err)
		return models.FetchResult{
			RemotePath: item.RemotePath,
			RemoteURL:  item.RemoteURL,
			Outcome:    models.OutcomeFailed,
			Attempts:   attempts,
			Reason:     err.Error(),
		}
	}

	slog.Info("downloaded", "progress", progress(n, total), "path", item.RemotePath, "bytes", written)
	return models.FetchResult{
		RemotePath:   item.RemotePath,
		RemoteURL:    item.RemoteURL,
		Outcome:      models.OutcomeSucceeded,
		BytesWritten: written,
		Attempts:     attempts,
	}
}

func cancelledResult(item WorkItem, attempts int, reason string) models.FetchResult {
	return models.FetchResult{
		RemotePath: item.RemotePath,
		RemoteURL:  item.RemoteURL,
		Outcome:    models.OutcomeCancelled,
		Attempts:   attempts,
		Reason:     reason,
	}
}
