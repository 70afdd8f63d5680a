package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"merlin/internal/journal"
	"merlin/internal/logger"
	"merlin/internal/render"
	"merlin/internal/server"
	"merlin/internal/trace"
	"merlin/internal/types"
)

var version = "dev"

const usage = `usage: merlin <command> [flags]

commands:
  analyze      run one analysis and print a summary table
  dump         run one analysis and print the result bundle as JSON
  serve        serve the HTTP API
  cache clear  remove every cached entry
  journal summarize
               write the CSV summary of one journaled day
  version      print the version
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	if err := initializeSystem(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = trace.Shutdown(shutdownCtx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch args[0] {
	case "analyze":
		err = analyzeCmd(ctx, args[1:], stdout, render.Text)
	case "dump":
		err = analyzeCmd(ctx, args[1:], stdout, render.JSON)
	case "serve":
		err = serveCmd(ctx, args[1:])
	case "cache":
		err = cacheCmd(ctx, args[1:], stdout)
	case "journal":
		err = journalCmd(ctx, args[1:], stdout)
	case "version":
		fmt.Fprintln(stdout, version)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return 0
}

func analyzeCmd(ctx context.Context, args []string, stdout io.Writer, write func(io.Writer, types.ResultBundle) error) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to config file")
	exchange := fs.String("exchange", "", "exchange (default from config)")
	symbol := fs.String("symbol", "", "symbol, e.g. BTC/USDT (default from config)")
	timeframe := fs.String("timeframe", "", "candle timeframe (default from config)")
	limit := fs.Int("limit", 0, "number of candles (default from config)")
	noSentiment := fs.Bool("no-sentiment", false, "skip sentiment collection")
	noInsight := fs.Bool("no-insight", false, "skip the insight provider")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := buildApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.close()

	req := a.pipeline.Defaults()
	if *exchange != "" {
		req.Exchange = *exchange
	}
	if *symbol != "" {
		req.Symbol = *symbol
	}
	if *timeframe != "" {
		req.Timeframe = *timeframe
	}
	if *limit != 0 {
		req.Limit = *limit
	}
	req.DisableSentiment = *noSentiment
	req.SkipInsight = *noInsight

	bundle, err := a.pipeline.Run(ctx, req)
	if err != nil {
		return err
	}
	return write(stdout, bundle)
}

func serveCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to config file")
	addr := fs.String("addr", "", "listen address (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := buildApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.close()

	listen := a.cfg.Server.Addr
	if *addr != "" {
		listen = *addr
	}
	srv := server.New(a.pipeline,
		server.WithAddr(listen),
		server.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout),
		server.WithVersion(version),
		server.WithMetrics(a.metrics),
		server.WithHealthCheck("cache", a.cache.Ping),
	)
	logger.Info(ctx, "Starting HTTP API", "addr", listen, "version", version)
	return srv.ListenAndServe(ctx)
}

func cacheCmd(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 || args[0] != "clear" {
		return fmt.Errorf("usage: merlin cache clear [--config path]")
	}
	fs := flag.NewFlagSet("cache clear", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to config file")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := loadConfig(ctx, *configPath)
	if err != nil {
		return err
	}
	cacheStore, err := openCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer cacheStore.Close()

	if err := cacheStore.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	fmt.Fprintf(stdout, "Cleared %s cache\n", cfg.Cache.Backend)
	return nil
}

func journalCmd(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 || args[0] != "summarize" {
		return fmt.Errorf("usage: merlin journal summarize [--date YYYY-MM-DD] [--config path]")
	}
	fs := flag.NewFlagSet("journal summarize", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to config file")
	date := fs.String("date", "", "UTC day to summarize (default today)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := loadConfig(ctx, *configPath)
	if err != nil {
		return err
	}
	day := time.Now().UTC()
	if *date != "" {
		if day, err = time.Parse("2006-01-02", *date); err != nil {
			return fmt.Errorf("invalid --date %q: %w", *date, err)
		}
	}

	path, err := journal.New(cfg.Journal.Dir).Summarize(day)
	if err != nil {
		return fmt.Errorf("summarize journal: %w", err)
	}
	if path == "" {
		fmt.Fprintf(stdout, "No journal entries for %s\n", day.Format("2006-01-02"))
		return nil
	}
	logger.Info(ctx, "Journal summary written", "path", path)
	fmt.Fprintln(stdout, path)
	return nil
}
