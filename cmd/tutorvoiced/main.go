// Command tutorvoiced runs the voice session headless behind an HTTP
// control API with a server-sent event stream and Prometheus metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"tutorvoice/internal/api"
	"tutorvoice/internal/bootstrap"
	"tutorvoice/internal/logger"
)

type options struct {
	listen     string
	configPath string
	logLevel   string
	connect    bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("tutorvoiced", pflag.ContinueOnError)
	fs.StringVarP(&opts.listen, "listen", "l", "", "HTTP listen address (overrides TUTORVOICE_LISTEN)")
	fs.StringVarP(&opts.configPath, "config", "c", "", "YAML config file (overrides TUTORVOICE_CONFIG)")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.BoolVar(&opts.connect, "connect", false, "open the voice session at startup")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		logger.Error("tutorvoiced exited", "err", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	if opts.configPath != "" {
		if err := os.Setenv("TUTORVOICE_CONFIG", opts.configPath); err != nil {
			return err
		}
	}
	if opts.logLevel != "" {
		if err := os.Setenv("LOG_LEVEL", opts.logLevel); err != nil {
			return err
		}
	}

	events := api.NewBroadcaster(64)
	services, err := bootstrap.Build(events)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer services.Close()

	listen := services.Config.API.Listen
	if opts.listen != "" {
		listen = opts.listen
	}

	router := api.SetupRouter(api.NewAPI(services.Controller, events), services.Metrics.Handler())
	server := &http.Server{
		Addr:              listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("control API listening", "addr", listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if opts.connect {
		if err := services.Controller.Connect(ctx); err != nil {
			logger.Warn("initial connect failed", "err", err)
		}
	}

	return g.Wait()
}
