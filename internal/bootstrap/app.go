// Package bootstrap is busd's compile-time dependency-injection
// composition root. It isolates dependency construction and flag
// parsing from main, leaving cmd/busd with little more than a call to
// Run.
package bootstrap

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hongxinliu/shame-go/internal/bus"
	"github.com/hongxinliu/shame-go/internal/config"
	"github.com/hongxinliu/shame-go/internal/logging"
	"github.com/hongxinliu/shame-go/internal/metrics"
	"github.com/hongxinliu/shame-go/internal/transport/grpchealth"
)

// version is set at build time via ldflags.
var version = "dev"

// App holds every dependency Wire assembles. It is the root object
// of busd's dependency graph.
type App struct {
	Config  *config.Config
	Log     logging.Logger
	Bus     *bus.Bus
	Metrics *metrics.Collector
	Health  *grpchealth.Server
}

// Run parses flags, wires the application, and blocks until a
// termination signal arrives. A metrics or health server that exits
// early is logged and does not end Run.
//
// Returns:
//   - int: exit code (0 for clean shutdown, 1 for error).
func Run() int {
	configPath := flag.String("config", "/etc/shame/busd.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("busd %s\n", version)
		return 0
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	app, err := InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}
	defer app.Bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	if err := app.Bus.Start(ctx); err != nil {
		return fmt.Errorf("start bus: %w", err)
	}
	app.Log.Info("bus started", "multicast_addr", cfg.Bus.MulticastAddr, "multicast_port", cfg.Bus.MulticastPort)

	if cfg.Metrics.Enabled {
		go func() {
			if err := app.Metrics.Serve(cfg.Metrics.Addr); err != nil && err != http.ErrServerClosed {
				app.Log.Error("metrics server exited", "error", err)
			}
		}()
	}

	if cfg.Health.Enabled {
		go func() {
			if err := app.Health.Serve(cfg.Health.Addr); err != nil {
				app.Log.Error("health server exited", "error", err)
			}
		}()
		app.Health.SetServing("", true)
	}

	for {
		sig := <-sigCh
		if sig == syscall.SIGHUP {
			app.Log.Info("received SIGHUP, ignoring (no reloadable state)")
			continue
		}
		app.Log.Info("received signal, shutting down", "signal", sig.String())
		break
	}

	if cfg.Health.Enabled {
		app.Health.SetServing("", false)
		app.Health.Stop()
	}
	return app.Bus.Stop()
}
