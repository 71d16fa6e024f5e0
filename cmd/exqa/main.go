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
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alan-mat/exqa/internal/config"
	"github.com/alan-mat/exqa/internal/eval"
	"github.com/alan-mat/exqa/internal/pipeline"
	"github.com/alan-mat/exqa/internal/reader"
	"github.com/alan-mat/exqa/internal/search"
	"github.com/alan-mat/exqa/server"
	"github.com/alan-mat/exqa/worker"
	"github.com/alexflint/go-arg"
)

const (
	ProgramName   = "EXQA"
	Version       = "v0.1.0"
	RepositoryUrl = "github.com/alan-mat/exqa"
)

type serveCmd struct{}

type workerCmd struct{}

type evaluateCmd struct {
	Pipeline    string `arg:"--pipeline,required" help:"part of the pipeline to evaluate: retrieval, reader or e2e"`
	ValSetSize  int    `arg:"--val-set-size" help:"evaluate only the first N examples after shuffling, 0 uses the whole set"`
	ContextSize int    `arg:"--context-size,required" help:"number of passages retrieved per question"`
	DatasetPath string `arg:"--dataset-path,required" help:"path of the validation set"`
	IndexName   string `arg:"--index-name" default:"squad_dedup_validation" help:"index holding the validation contexts"`
	ModelName   string `arg:"--model-name" default:"distilbert-base-uncased-distilled-squad" help:"reader model checkpoint"`
	Workers     int    `arg:"--workers" default:"4" help:"number of examples evaluated concurrently"`
	Output      string `arg:"--output,-o" help:"write the report as JSON to this file"`
	Async       bool   `arg:"--async" help:"queue the run on the worker instead of running it here"`
}

func (cmd *evaluateCmd) validate() error {
	if _, err := eval.ParseMode(cmd.Pipeline); err != nil {
		return err
	}
	if _, err := os.Stat(cmd.DatasetPath); err != nil {
		return errors.New("given dataset path does not exist")
	}
	if cmd.ContextSize < 0 {
		return errors.New("context size must not be negative")
	}
	if cmd.ValSetSize < 0 {
		return errors.New("validation set size must not be negative")
	}
	return nil
}

type args struct {
	Config string `arg:"--config,-c" default:"configs/config.yaml" help:"path of the config file"`

	Server   *serveCmd    `arg:"subcommand:serve" help:"start the extraction server"`
	Evaluate *evaluateCmd `arg:"subcommand:evaluate" help:"evaluate the pipeline on a labelled dataset"`
	Worker   *workerCmd   `arg:"subcommand:work" help:"start a worker for queued evaluations"`
}

func (args) Version() string {
	return fmt.Sprintf("%s %s", ProgramName, Version)
}

func (args) Epilogue() string {
	return fmt.Sprintf("For more information visit %s", RepositoryUrl)
}

func main() {
	var args args

	p, err := arg.NewParser(arg.Config{Program: strings.ToLower(ProgramName)}, &args)
	if err != nil {
		log.Fatalf("there was an error in the definition of the Go struct: %v", err)
	}
	p.MustParse(os.Args[1:])

	if p.Subcommand() == nil {
		p.WriteUsage(os.Stdout)
		os.Exit(0)
	}

	if cmd, ok := p.Subcommand().(*evaluateCmd); ok {
		if err := cmd.validate(); err != nil {
			p.FailSubcommand(err.Error(), "evaluate")
		}
	}

	conf, err := config.Load(args.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(conf.Logging, os.Stdout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd := p.Subcommand().(type) {
	case *serveCmd:
		err = startServer(ctx, conf)
	case *evaluateCmd:
		err = runEvaluate(ctx, conf, cmd)
	case *workerCmd:
		err = startWorker(conf)
	default:
		p.FailSubcommand("unrecognized command", p.SubcommandNames()...)
	}

	if err != nil {
		slog.Error("command failed", "command", strings.Join(p.SubcommandNames(), " "), "err", err)
		stop()
		os.Exit(1)
	}
}

func newLogger(conf config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(conf.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if conf.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func startServer(ctx context.Context, conf *config.Config) error {
	r, err := search.New(ctx, conf)
	if err != nil {
		return fmt.Errorf("failed to initialize retriever: %w", err)
	}
	defer closeRetriever(r)

	rd := reader.New(conf.Reader, conf.Hyperparams.ModelCheckpoint)
	p := pipeline.New(r, rd, pipeline.Params{
		IndexName:   conf.Hyperparams.IndexName,
		ContextSize: conf.Hyperparams.Size(),
		Threshold:   conf.Hyperparams.Threshold(),
	})

	srv := server.New(conf, p)
	return srv.Serve(ctx)
}

func startWorker(conf *config.Config) error {
	w := worker.New(conf)
	return w.Start()
}

func closeRetriever(r pipeline.Retriever) {
	if c, ok := r.(io.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close retriever", "err", err)
		}
	}
}
