package mirror

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"hexmirror/internal/models"
)

// RetryPolicy bounds how often one artifact fetch is attempted.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

func (p RetryPolicy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.Reset()
	return b
}

type attemptKind int

const (
	attemptSuccess attemptKind = iota
	attemptTransient
	attemptPermanent
)

// attempt is the tagged outcome of a single fetch call.
type attempt struct {
	kind attemptKind
	data []byte
	err  error
}

func classify(data []byte, err error) attempt {
	if err == nil {
		return attempt{kind: attemptSuccess, data: data}
	}
	var fe *models.ArtifactFetchError
	if errors.As(err, &fe) && !fe.Transient {
		return attempt{kind: attemptPermanent, err: err}
	}
	return attempt{kind: attemptTransient, err: err}
}

// fetchWithRetry runs fetch until it succeeds, fails permanently, exhausts
// the policy or ctx is done. Each call gets its own timeout.
func fetchWithRetry(ctx context.Context, url string, fetch FetchFunc, policy RetryPolicy, timeout time.Duration) ([]byte, int, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	b := policy.newBackOff()

	for n := 1; ; n++ {
		a := classify(callWithTimeout(ctx, url, fetch, timeout))
		switch a.kind {
		case attemptSuccess:
			return a.data, n, nil
		case attemptPermanent:
			return nil, n, a.err
		}
		if n >= maxAttempts || ctx.Err() != nil {
			return nil, n, a.err
		}

		t := time.NewTimer(b.NextBackOff())
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, n, a.err
		case <-t.C:
		}
	}
}

func callWithTimeout(ctx context.Context, url string, fetch FetchFunc, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fetch(ctx, url)
}
