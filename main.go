package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/socks6d/internal/config"
	"github.com/die-net/socks6d/internal/dialer"
	"github.com/die-net/socks6d/internal/logger"
	"github.com/die-net/socks6d/internal/observe"
	"github.com/die-net/socks6d/internal/proxy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	def := config.Default()
	fl := *def

	configPath := pflag.String("config", "", "YAML config file. Flags given on the command line override it.")
	pflag.StringVar(&fl.SOCKS6Listen, "socks6-listen", def.SOCKS6Listen, "SOCKS6 proxy listen address. Empty disables.")
	pflag.StringVar(&fl.SOCKS5Listen, "socks5-listen", def.SOCKS5Listen, "SOCKS5 proxy listen address (e.g. 127.0.0.1:1081). Empty disables.")
	pflag.StringVar(&fl.DebugListen, "debug-listen", def.DebugListen, "Debug HTTP listen address exposing /debug/pprof (e.g. 127.0.0.1:6060). Empty disables.")
	pflag.DurationVar(&fl.DialTimeout, "dial-timeout", def.DialTimeout, "Timeout for outbound DNS lookup and TCP connect")
	pflag.DurationVar(&fl.NegotiationTimeout, "negotiation-timeout", def.NegotiationTimeout, "Timeout for protocol negotiation to set up connection")
	pflag.DurationVar(&fl.IdleTimeout, "idle-timeout", def.IdleTimeout, "Close a relayed connection after no bytes move either way for this long. 0 disables.")
	pflag.StringVar(&fl.TCPKeepAlive, "tcp-keepalive", def.TCPKeepAlive, "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
	pflag.BoolVar(&fl.ReusePort, "reuse-port", def.ReusePort, "Set SO_REUSEPORT on listeners")
	pflag.StringSliceVar(&fl.Observe.Upstream, "observe-upstream", def.Observe.Upstream, fmt.Sprintf("Observers applied to client-to-destination bytes, in order. One of %v", observe.Names()))
	pflag.StringSliceVar(&fl.Observe.Downstream, "observe-downstream", def.Observe.Downstream, "Observers applied to destination-to-client bytes, in order")
	pflag.StringVar(&fl.Log.Level, "log-level", def.Log.Level, "Log level: debug|info|warn|error")
	pflag.StringVar(&fl.Log.Format, "log-format", def.Log.Format, "Log format: console|text|json")

	if !proxy.ReusePortSupported {
		_ = pflag.CommandLine.MarkHidden("reuse-port")
	}

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	cfg, err := loadConfig(*configPath, &fl)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	slog.SetDefault(log)

	ka, _ := cfg.KeepAlive()
	pipeline, _ := cfg.Pipeline()

	pcfg := proxy.Config{
		NegotiationTimeout: cfg.NegotiationTimeout,
		IdleTimeout:        cfg.IdleTimeout,
		Dialer: dialer.NewDirectDialer(dialer.Config{
			DialTimeout: cfg.DialTimeout,
			KeepAlive:   ka,
		}),
		Observers: pipeline,
		Logger:    log,
	}
	lcfg := proxy.ListenConfig{KeepAlive: ka, ReusePort: cfg.ReusePort}

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DebugListen != "" {
		debugSrv := &http.Server{Handler: http.DefaultServeMux} //nolint:gosec // Not concerned about timeouts on debug port.
		lc := net.ListenConfig{KeepAliveConfig: ka}
		debugLn, err := lc.Listen(ctx, "tcp", cfg.DebugListen)
		if err != nil {
			return fmt.Errorf("debug listen: %w", err)
		}
		context.AfterFunc(ctx, func() {
			_ = debugSrv.Close()
			_ = debugLn.Close()
		})

		g.Go(func() error {
			if err := debugSrv.Serve(debugLn); err != nil {
				return fmt.Errorf("debug serve: %w", err)
			}
			return nil
		})
		log.Info("debug listening", "addr", debugLn.Addr().String())
	}

	if cfg.SOCKS6Listen != "" {
		ln, err := proxy.ListenTCP(ctx, "tcp", cfg.SOCKS6Listen, lcfg)
		if err != nil {
			return fmt.Errorf("socks6 listen: %w", err)
		}
		s6 := proxy.NewSOCKS6Server(ctx, pcfg)
		context.AfterFunc(ctx, func() {
			_ = ln.Close()
		})

		g.Go(func() error {
			if err := s6.Serve(ln); err != nil {
				return fmt.Errorf("socks6 serve: %w", err)
			}
			return nil
		})
		log.Info("socks6 proxy listening", "addr", ln.Addr().String())
	}

	if cfg.SOCKS5Listen != "" {
		ln, err := proxy.ListenTCP(ctx, "tcp", cfg.SOCKS5Listen, lcfg)
		if err != nil {
			return fmt.Errorf("socks5 listen: %w", err)
		}
		s5 := proxy.NewSOCKS5Server(ctx, pcfg)
		context.AfterFunc(ctx, func() {
			_ = ln.Close()
		})

		g.Go(func() error {
			if err := s5.Serve(ln); err != nil {
				return fmt.Errorf("socks5 serve: %w", err)
			}
			return nil
		})
		log.Info("socks5 proxy listening", "addr", ln.Addr().String())
	}

	err = g.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	log.Info("shutting down")
	return err
}

// loadConfig returns fl as is without a config file. Otherwise it loads the
// file and overlays only the flags given on the command line.
func loadConfig(path string, fl *config.Config) (*config.Config, error) {
	if path == "" {
		return fl, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	overrides := map[string]func(){
		"socks6-listen":       func() { cfg.SOCKS6Listen = fl.SOCKS6Listen },
		"socks5-listen":       func() { cfg.SOCKS5Listen = fl.SOCKS5Listen },
		"debug-listen":        func() { cfg.DebugListen = fl.DebugListen },
		"dial-timeout":        func() { cfg.DialTimeout = fl.DialTimeout },
		"negotiation-timeout": func() { cfg.NegotiationTimeout = fl.NegotiationTimeout },
		"idle-timeout":        func() { cfg.IdleTimeout = fl.IdleTimeout },
		"tcp-keepalive":       func() { cfg.TCPKeepAlive = fl.TCPKeepAlive },
		"reuse-port":          func() { cfg.ReusePort = fl.ReusePort },
		"observe-upstream":    func() { cfg.Observe.Upstream = fl.Observe.Upstream },
		"observe-downstream":  func() { cfg.Observe.Downstream = fl.Observe.Downstream },
		"log-level":           func() { cfg.Log.Level = fl.Log.Level },
		"log-format":          func() { cfg.Log.Format = fl.Log.Format },
	}
	pflag.Visit(func(f *pflag.Flag) {
		if set, ok := overrides[f.Name]; ok {
			set()
		}
	})
	return cfg, nil
}
