//go:build !js || !wasm

// Command ait-devhost serves the host side of the bridge over a websocket
// for local development, or calls one capability and prints the result.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nmxmxh/aitbridge/internal/devhost"
	"github.com/nmxmxh/aitbridge/kernel/core/bridge"
	"github.com/nmxmxh/aitbridge/kernel/core/capability"
	"github.com/nmxmxh/aitbridge/kernel/core/storage"
	"github.com/nmxmxh/aitbridge/kernel/core/transport"
	"github.com/nmxmxh/aitbridge/kernel/utils"
)

func main() {
	var (
		addr        = flag.String("addr", "127.0.0.1:8787", "listen address for the devhost")
		storagePath = flag.String("storage", "", "brotli snapshot file backing the mock storage")
		version     = flag.String("version", devhost.DefaultVersion, "host bridge version announced to clients")
		origins     = flag.String("origins", "", "comma separated origins allowed to connect")
		logLevel    = flag.String("log-level", "info", "debug, info, warn or error")

		call    = flag.String("call", "", "call one capability and print its result")
		options = flag.String("options", "", "JSON options for -call")
		url     = flag.String("url", "", "devhost websocket for -call; in-process script host when empty")
		script  = flag.String("script", "", "host script for the in-process script host")
		events  = flag.Int("events", 3, "events to print before stopping a stream")
		timeout = flag.Duration("timeout", 10*time.Second, "how long -call waits")
		list    = flag.Bool("list", false, "list capabilities and exit")
	)
	flag.Parse()

	logger := utils.NewLogger(utils.LoggerConfig{
		Level:     utils.ParseLogLevel(*logLevel),
		Component: "ait-devhost",
		Output:    os.Stderr,
		Colorize:  true,
	})
	utils.SetGlobalLogger(logger)
	defer logger.Sync()

	var err error
	switch {
	case *list:
		listCapabilities()
	case *call != "":
		err = runCall(callOptions{
			capability: *call,
			options:    *options,
			url:        *url,
			script:     *script,
			events:     *events,
			timeout:    *timeout,
		}, logger)
	default:
		err = serve(*addr, *storagePath, *version, *origins, logger)
	}
	if err != nil {
		logger.Error("ait-devhost failed", utils.Err(err))
		os.Exit(1)
	}
}

func listCapabilities() {
	for _, d := range capability.All() {
		family := "platform"
		if d.Legacy {
			family = "legacy"
		}
		fmt.Printf("%-45s %-8s %-9s %s\n", d.Name, d.Kind, family, d.Tag)
	}
}

func serve(addr, storagePath, version, origins string, logger *utils.Logger) error {
	store := storage.New(storage.WithLogger(logger.Named("storage")))
	if storagePath != "" {
		var err error
		if store, err = storage.Open(storagePath, storage.WithLogger(logger.Named("storage"))); err != nil {
			return err
		}
	}

	mockCfg := capability.DefaultMockConfig()
	mockCfg.Store = store
	mockCfg.Logger = logger.Named("mock")

	var allowed []string
	if origins != "" {
		allowed = strings.Split(origins, ",")
	}
	srv := devhost.NewServer(capability.NewMockResponder(mockCfg), devhost.Options{
		Version:        version,
		AllowedOrigins: allowed,
		Logger:         logger.Named("devhost"),
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", srv)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(srv.Stats())
	})
	httpServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	shutdown := utils.NewGracefulShutdown(10*time.Second, logger.Named("shutdown"))
	if storagePath != "" {
		shutdown.Register("storage", func(context.Context) error { return store.Flush() })
	}
	shutdown.Register("devhost", srv.Shutdown)
	shutdown.Register("http", httpServer.Shutdown)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Devhost listening", utils.String("addr", addr), utils.String("version", version))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	return shutdown.Shutdown(context.Background())
}

type callOptions struct {
	capability string
	options    string
	url        string
	script     string
	events     int
	timeout    time.Duration
}

func runCall(opts callOptions, logger *utils.Logger) error {
	desc, ok := capability.Lookup(opts.capability)
	if !ok {
		return fmt.Errorf("unknown capability %q", opts.capability)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	br, closeBoundary, err := connect(ctx, opts, logger)
	if err != nil {
		return err
	}
	defer closeBoundary()
	defer br.Close()

	var raw json.RawMessage
	if opts.options != "" {
		raw = json.RawMessage(opts.options)
	}

	if desc.Kind != capability.KindStream {
		v, err := desc.Invoke(ctx, br.Dispatcher(), raw)
		if err != nil {
			return err
		}
		return printJSON(v)
	}

	got := make(chan interface{}, opts.events)
	sub, err := desc.Subscribe(ctx, br.Dispatcher(), raw, func(v interface{}) {
		select {
		case got <- v:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer sub.Stop()

	for i := 0; i < opts.events; i++ {
		select {
		case v := <-got:
			if err := printJSON(v); err != nil {
				return err
			}
		case <-sub.Done():
			return sub.Err()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// connect builds a real-mode bridge over a devhost or an in-process
// script host.
func connect(ctx context.Context, opts callOptions, logger *utils.Logger) (*bridge.Bridge, func(), error) {
	cfg := bridge.DefaultConfig()
	cfg.Mode = bridge.ModeReal

	if opts.url != "" {
		b, err := transport.DialDevhost(ctx, opts.url, nil, transport.DevhostOptions{Logger: logger.Named("client")})
		if err != nil {
			return nil, nil, err
		}
		br, err := newBridge(cfg, b, logger)
		if err != nil {
			_ = b.Close()
			return nil, nil, err
		}
		b.SetResultHandler(br.OnResult)
		b.SetErrorHandler(func(id, msg string) {
			br.Table().Abort(id, fmt.Errorf("%w: %s", bridge.ErrHostRejected, msg))
		})
		b.SetClosedHandler(func(err error) { br.Table().AbortAll(err) })
		return br, func() { _ = b.Close() }, nil
	}

	hostOpts := transport.ScriptHostOptions{Console: true, Logger: logger.Named("script")}
	if opts.script != "" {
		src, err := os.ReadFile(opts.script)
		if err != nil {
			return nil, nil, utils.WrapErrorf(err, "read host script %s", opts.script)
		}
		hostOpts.Source = string(src)
	}
	h, err := transport.NewScriptHost(hostOpts)
	if err != nil {
		return nil, nil, err
	}
	br, err := newBridge(cfg, h, logger)
	if err != nil {
		_ = h.Close()
		return nil, nil, err
	}
	h.SetResultHandler(br.OnResult)
	return br, func() { _ = h.Close() }, nil
}

func newBridge(cfg bridge.Config, b bridge.Boundary, logger *utils.Logger) (*bridge.Bridge, error) {
	br, err := bridge.New(cfg, b, nil, logger.Named("bridge"))
	if err != nil {
		return nil, err
	}
	if err := capability.Register(br.Registry()); err != nil {
		_ = br.Close()
		return nil, err
	}
	return br, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
