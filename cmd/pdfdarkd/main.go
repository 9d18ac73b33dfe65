package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/wudi/pdfdark/convert"
	"github.com/wudi/pdfdark/observability"
	"github.com/wudi/pdfdark/server"
	"github.com/wudi/pdfdark/theme"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pdfdarkd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := server.DefaultConfig()
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address (default from $PORT)")
	flag.Int64Var(&cfg.MaxUploadBytes, "max-upload", cfg.MaxUploadBytes, "maximum upload size in bytes")
	flag.IntVar(&cfg.MaxConns, "max-conns", cfg.MaxConns, "maximum concurrent connections")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "per-conversion timeout")
	flag.StringVar(&cfg.AllowOrigin, "allow-origin", cfg.AllowOrigin, "CORS origin (empty disables CORS)")
	workers := flag.Int("workers", 0, "concurrent units per conversion (0 = GOMAXPROCS)")
	themesPath := flag.String("themes", "", "JSON file with additional themes")
	debug := flag.Bool("debug", false, "development logging")
	flag.Parse()

	var (
		zl  *zap.Logger
		err error
	)
	if *debug {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}
	defer zl.Sync()

	reg, err := theme.NewRegistry()
	if *themesPath != "" {
		reg, err = theme.LoadFile(*themesPath)
	}
	if err != nil {
		return err
	}
	conv := convert.New(convert.Config{
		Workers:  *workers,
		Logger:   observability.NewZapLogger(zl.Named("convert")),
		Registry: reg,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.New(cfg, conv, zl.Named("http")).ListenAndServe(ctx)
}
