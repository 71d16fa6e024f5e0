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

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alan-mat/exqa/internal/config"
	"github.com/alan-mat/exqa/internal/eval"
	"github.com/alan-mat/exqa/internal/pipeline"
	"github.com/alan-mat/exqa/internal/reader"
	"github.com/alan-mat/exqa/internal/search"
	"github.com/alan-mat/exqa/internal/tasks"
	"github.com/alan-mat/exqa/internal/transport"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

func runEvaluate(ctx context.Context, conf *config.Config, cmd *evaluateCmd) error {
	if cmd.Async {
		return enqueueEvaluate(ctx, conf, cmd)
	}

	mode, err := eval.ParseMode(cmd.Pipeline)
	if err != nil {
		return err
	}

	examples, err := eval.Prepare(cmd.DatasetPath, cmd.ValSetSize)
	if err != nil {
		return err
	}
	slog.Info("dataset is loaded and shuffled", "path", cmd.DatasetPath, "samples", len(examples))

	var retriever pipeline.Retriever
	if mode.NeedsRetriever() {
		r, err := search.New(ctx, conf)
		if err != nil {
			return fmt.Errorf("failed to initialize retriever: %w", err)
		}
		defer closeRetriever(r)
		retriever = r
	}

	var rd pipeline.Reader
	if mode.NeedsReader() {
		rd = reader.New(conf.Reader, cmd.ModelName)
	}

	d, err := eval.NewDriver(retriever, rd, eval.Options{
		Mode:        mode,
		IndexName:   cmd.IndexName,
		ContextSize: cmd.ContextSize,
		Model:       cmd.ModelName,
		Workers:     cmd.Workers,
		RunID:       uuid.NewString(),
	})
	if err != nil {
		return err
	}

	report, err := d.Run(ctx, examples)
	if err != nil {
		return err
	}

	if cmd.Output != "" {
		if err := report.WriteFile(cmd.Output); err != nil {
			return err
		}
		slog.Info("report written", "path", cmd.Output)
	}
	return nil
}

func enqueueEvaluate(ctx context.Context, conf *config.Config, cmd *evaluateCmd) error {
	if err := conf.RequireTransport(); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Transport.Addr,
		Username: conf.Transport.Username,
		Password: conf.Transport.Password,
		DB:       conf.Transport.DB,
	})
	defer rdb.Close()

	client := asynq.NewClientFromRedisClient(rdb)
	defer client.Close()

	id, err := tasks.EnqueueEvaluation(ctx, client, transport.NewRedisTransport(rdb), tasks.EvaluatePayload{
		Mode:        cmd.Pipeline,
		DatasetPath: cmd.DatasetPath,
		ValSetSize:  cmd.ValSetSize,
		ContextSize: cmd.ContextSize,
		IndexName:   cmd.IndexName,
		Model:       cmd.ModelName,
		Workers:     cmd.Workers,
	})
	if err != nil {
		return err
	}

	fmt.Println(id)
	return nil
}
