package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/yndnr/restorepoint-go/internal/config"
	"github.com/yndnr/restorepoint-go/internal/core/service"
	"github.com/yndnr/restorepoint-go/internal/infra/buildinfo"
	"github.com/yndnr/restorepoint-go/internal/infra/confloader"
	"github.com/yndnr/restorepoint-go/internal/infra/shutdown"
	"github.com/yndnr/restorepoint-go/internal/project"
	"github.com/yndnr/restorepoint-go/internal/server/autosave"
	"github.com/yndnr/restorepoint-go/internal/server/httpserver"
	"github.com/yndnr/restorepoint-go/internal/server/httpserver/handler"
	"github.com/yndnr/restorepoint-go/internal/storage/capability"
	"github.com/yndnr/restorepoint-go/internal/storage/legacy"
	"github.com/yndnr/restorepoint-go/internal/telemetry/logger"
	"github.com/yndnr/restorepoint-go/internal/telemetry/metric"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr, metric.Global()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run starts the daemon and blocks until ctx is done or a termination
// signal arrives.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, reg *metric.Registry) error {
	fs := flag.NewFlagSet("restorepointd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configFile  = fs.String("config", "", "Path to configuration file")
		storageDir  = fs.String("dir", "", "Restore point storage directory (storage.dir)")
		documentDir = fs.String("document", "", "Document directory to protect (document.dir)")
		httpAddr    = fs.String("http", "", "API and metrics listen address (http.addr)")
		showVersion = fs.Bool("version", false, "Show version information")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Fprintln(stdout, "restorepointd", buildinfo.String())
		return nil
	}

	overrides := make(map[string]any)
	for key, value := range map[string]string{
		"storage.dir":  *storageDir,
		"document.dir": *documentDir,
		"http.addr":    *httpAddr,
	} {
		if value != "" {
			overrides[key] = value
		}
	}
	cfg, loader, err := config.Load(*configFile, overrides)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: stderr,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(log)

	info := buildinfo.Get()
	log.Info("starting restorepointd",
		"version", info.Version,
		"commit", info.Commit,
		"config", *configFile,
		"document", cfg.Document.Dir,
		"storage", cfg.Storage.Dir)

	sh := shutdown.NewHandler(shutdownTimeout, log)

	handle, err := openStorage(ctx, cfg, reg, log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	sh.OnShutdown("storage", func(context.Context) error { return handle.Close() })

	doc := project.NewDir(cfg.Document.Dir, project.WithLogger(log))
	rp := service.NewRestorePoints(handle, service.Config{
		MaxRetained:       cfg.Storage.MaxRetained,
		MinCreateDuration: cfg.Scheduler.ServiceMinCreateDuration(),
		Serializer:        doc,
		Deserializer:      doc,
		Legacy:            legacy.File(cfg.Legacy.Path),
		Logger:            log,
		Metrics:           reg,
	})

	var saver *autosave.Autosaver
	if rp.IsSupported() {
		saver, err = autosave.New(rp, cfg.Document.Dir, autosave.Config{
			Interval: cfg.Scheduler.Interval,
			Logger:   log,
			Metrics:  reg,
		})
		if err != nil {
			sh.Shutdown()
			return fmt.Errorf("watch document: %w", err)
		}
		sh.OnShutdown("autosave", func(context.Context) error { return saver.Stop() })
	}

	if cfg.HTTP.Addr != "" {
		if err := serveHTTP(cfg, rp, saver, reg, log, sh); err != nil {
			sh.Shutdown()
			return err
		}
	}

	if *configFile != "" {
		if err := watchConfig(*configFile, loader, log, sh); err != nil {
			log.Warn("config hot reload disabled", "error", err)
		}
	}

	log.Info("restorepointd started")
	if err := sh.Wait(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	log.Info("restorepointd stopped")
	return nil
}

// openStorage opens the backend. An unsupported host is not an error: the
// daemon keeps serving health and status.
func openStorage(ctx context.Context, cfg *config.Config, reg *metric.Registry, log *slog.Logger) (*capability.Handle, error) {
	var secret []byte
	if cfg.Storage.SealSecret != "" {
		secret = []byte(cfg.Storage.SealSecret)
	}
	handle, err := capability.Open(ctx, capability.Options{
		Kind:       cfg.Storage.Backend,
		Dir:        cfg.Storage.Dir,
		SealSecret: secret,
		Registerer: reg.Registerer(),
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}
	if !handle.Supported() {
		log.Error("restore points unsupported on this host", "error", handle.Err())
		return handle, nil
	}
	if err := reg.Registerer().Register(metric.NewStorageCollector(handle.Backend(), log)); err != nil {
		log.Warn("storage collector not registered", "error", err)
	}
	log.Info("storage opened", "backend", handle.Kind(), "dir", cfg.Storage.Dir)
	return handle, nil
}

func serveHTTP(
	cfg *config.Config,
	rp *service.RestorePoints,
	saver *autosave.Autosaver,
	reg *metric.Registry,
	log *slog.Logger,
	sh *shutdown.Handler,
) error {
	opts := []handler.Option{handler.WithLogger(log)}
	if saver != nil {
		opts = append(opts, handler.WithAutosave(saver))
	}

	routerCfg := httpserver.DefaultRouterConfig()
	routerCfg.API = handler.New(rp, opts...)
	routerCfg.Metrics = reg.Handler()
	routerCfg.Logger = log
	routerCfg.RateLimit = cfg.HTTP.RateLimit
	routerCfg.TrustProxy = cfg.HTTP.TrustProxy
	srv := httpserver.New(cfg.HTTP.Addr, httpserver.NewRouter(routerCfg))

	l, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTP.Addr, err)
	}
	go func() {
		log.Info("HTTP server listening", "addr", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()
	sh.OnShutdown("http", srv.Shutdown)
	return nil
}

// watchConfig reloads the log level when the configuration file changes.
// Other settings need a restart.
func watchConfig(path string, loader *confloader.Loader, log *slog.Logger, sh *shutdown.Handler) error {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return err
	}
	if err := w.Watch(path); err != nil {
		w.Stop()
		return err
	}
	w.OnChange(func(string) {
		cfg, err := config.Reload(loader)
		if err != nil {
			log.Warn("config reload rejected", "error", err)
			return
		}
		if err := logger.SetLevel(cfg.Log.Level); err != nil {
			log.Warn("log level not applied", "error", err)
			return
		}
		log.Info("config reloaded", "log_level", cfg.Log.Level)
	})
	w.StartAsync()
	sh.OnShutdown("config watcher", func(context.Context) error { return w.Stop() })
	return nil
}
