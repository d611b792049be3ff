// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/jeranaias/llmbridge/internal/engine"
	"github.com/jeranaias/llmbridge/internal/logging"
	"github.com/jeranaias/llmbridge/internal/storage"
)

// Version information (set at build time).
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// Streams are the process streams Run reads and writes. Tests substitute
// buffers; a nil In means os.Stdin.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Run executes the llmbridge command line.
func Run(ctx context.Context, argv []string, st Streams) error {
	if st.Out == nil {
		st.Out = os.Stdout
	}
	if st.Err == nil {
		st.Err = os.Stderr
	}

	args, err := ParseArgs(argv, storage.DefaultPath())
	if err != nil {
		return err
	}
	if args.Help {
		fmt.Fprint(st.Out, Usage)
		return nil
	}
	if args.Version {
		fmt.Fprintf(st.Out, "llmbridge %s (%s)\n", Version, GitCommit)
		return nil
	}

	var opts []engine.Option
	if args.ProjectDir != "" {
		opts = append(opts, engine.WithProjectDir(args.ProjectDir))
	}

	var transcripts *storage.TranscriptStore
	if args.Transcripts != "" {
		transcripts, err = storage.Open(args.Transcripts)
		if err != nil {
			return err
		}
		defer transcripts.Close()
		opts = append(opts, engine.WithTranscripts(transcripts))
	}

	e := engine.New(opts...)
	if args.Debug {
		if err := e.Set("debug", "true"); err != nil {
			return err
		}
	}
	if err := configure(ctx, e, args); err != nil {
		return err
	}

	if args.Watch {
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := e.WatchConfig(watchCtx, args.ConfigPath); err != nil && !errors.Is(err, context.Canceled) {
				logging.L().Warn("config watcher stopped", zap.Error(err))
			}
		}()
	}

	s := NewSession(e, transcripts, st.Out)
	s.ResolveTimeout = args.Timeout

	if args.Prompt != "" {
		return s.chat(ctx, args.Prompt)
	}

	var reader LineReader
	if st.In == nil && IsTTY() {
		reader = NewLineEditor(DefaultHistoryFile(), commandNames())
	} else {
		in := st.In
		if in == nil {
			in = os.Stdin
		}
		reader = NewPlainReader(in, nil)
	}
	defer reader.Close()

	s.PrintWelcome()
	return s.Run(ctx, reader)
}

// configure applies the startup flags in dependency order: overrides first
// so that the config file's model is validated against them.
func configure(ctx context.Context, e *engine.Engine, args Args) error {
	if args.ModelsFile != "" {
		if err := e.LoadModelOverrides(args.ModelsFile); err != nil {
			return err
		}
	}
	if args.ConfigPath != "" {
		if err := e.LoadConfig(ctx, args.ConfigPath); err != nil {
			return err
		}
	}
	if args.Provider != "" {
		if err := e.SetProvider(ctx, args.Provider); err != nil {
			return err
		}
	}
	return nil
}
