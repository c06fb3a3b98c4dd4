package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/markis/ragsearch/internal/args"
	"github.com/markis/ragsearch/internal/client"
	"github.com/markis/ragsearch/internal/config"
	"github.com/markis/ragsearch/internal/render"
)

// main function to parse arguments and run one search.
func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}

	a, err := args.ParseArgs(ctx, *cfg)
	if errors.Is(err, args.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	a.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}

	logger := newLogger(cfg.LogLevel)

	searcher, err := client.New(cfg, client.WithLogger(logger))
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	renderer, err := render.NewTerminalRenderer(os.Stdout, os.Stderr, cfg.Render, cfg.Render.Format == "plain")
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	searcher.Search(ctx, client.Query{
		Text:       a.Query,
		SearchUUID: a.SearchUUID,
		Related:    cfg.Related,
	}, renderer.Handlers())

	if err := renderer.Finish(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		fmt.Fprintf(os.Stderr, "Error: search timed out after %s\n", cfg.Timeout)
		return 1
	}
	if ctx.Err() != nil {
		return 130
	}
	if renderer.Status() != 0 {
		return 1
	}
	return 0
}
