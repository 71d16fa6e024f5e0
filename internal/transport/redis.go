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

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alan-mat/exqa/internal/eval"
	"github.com/redis/go-redis/v9"
)

const (
	traceKeyPrefix  = "exqa:run:"
	reportKeyPrefix = "exqa:report:"
)

type RedisTransport struct {
	rdb *redis.Client
}

func NewRedisTransport(rdb *redis.Client) *RedisTransport {
	return &RedisTransport{
		rdb: rdb,
	}
}

func (t *RedisTransport) SetTrace(ctx context.Context, trace *RunTrace) error {
	if len(trace.ID) == 0 {
		return fmt.Errorf("invalid run ID")
	}
	key := traceKeyPrefix + trace.ID

	_, err := t.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, trace)
		pipe.Expire(ctx, key, TraceExpiry)
		return nil
	})
	return err
}

func (t *RedisTransport) GetTrace(ctx context.Context, runID string) (*RunTrace, error) {
	res := t.rdb.HGetAll(ctx, traceKeyPrefix+runID)
	fields, err := res.Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	var trace RunTrace
	if err := res.Scan(&trace); err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	return &trace, nil
}

func (t *RedisTransport) SetProgress(ctx context.Context, runID string, done int) error {
	return t.rdb.HSet(ctx, traceKeyPrefix+runID, "done", done).Err()
}

func (t *RedisTransport) SetReport(ctx context.Context, runID string, report *eval.Report) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return t.rdb.Set(ctx, reportKeyPrefix+runID, string(reportJSON), TraceExpiry).Err()
}

func (t *RedisTransport) GetReport(ctx context.Context, runID string) (*eval.Report, error) {
	reportJSON, err := t.rdb.Get(ctx, reportKeyPrefix+runID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var report eval.Report
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to deserialize report: %w", err)
	}
	return &report, nil
}
