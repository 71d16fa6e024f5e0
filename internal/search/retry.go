// Copyright 2025 Alan Matykiewicz
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the
// Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alan-mat/exqa/internal/pipeline"
	"github.com/cenkalti/backoff/v4"
)

type retryRetriever struct {
	next       pipeline.Retriever
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

// WithRetry wraps r so that connectivity failures are retried up to
// maxRetries times with exponential backoff. Query errors are returned
// immediately. A maxRetries of zero returns r unchanged.
func WithRetry(r pipeline.Retriever, maxRetries int) pipeline.Retriever {
	if maxRetries <= 0 {
		return r
	}
	return &retryRetriever{
		next:       r,
		maxRetries: uint64(maxRetries),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
}

func (r *retryRetriever) Retrieve(ctx context.Context, question string, index string, size int) ([]string, error) {
	var (
		passages []string
		lastErr  error
	)
	op := func() error {
		res, err := r.next.Retrieve(ctx, question, index, size)
		if err != nil {
			lastErr = err
			if !IsConnectivity(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		passages = res
		return nil
	}

	notify := func(err error, d time.Duration) {
		slog.Warn("retrying search request", "index", index, "backoff", d, "err", err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), r.maxRetries), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		// a cancelled context ends the loop with ctx.Err()
		if lastErr != nil && !errors.Is(err, lastErr) {
			return nil, fmt.Errorf("%w: %w", lastErr, err)
		}
		return nil, err
	}
	return passages, nil
}

// Close closes the wrapped retriever if it holds a connection.
func (r *retryRetriever) Close() error {
	if c, ok := r.next.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
