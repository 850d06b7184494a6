//go:build wireinject

package bootstrap

import (
	"github.com/google/wire"

	"github.com/hongxinliu/shame-go/internal/config"
)

// InitializeApp creates the application with all dependencies wired.
// This function is the injector that Wire will generate code for.
//
// Params:
//   - cfg: the loaded configuration.
//
// Returns:
//   - *App: the fully wired application.
//   - error: any error during dependency construction.
func InitializeApp(cfg *config.Config) (*App, error) {
	wire.Build(
		// Ambient: logger every subsystem derives from.
		provideLogger,

		// Observability: Prometheus collector and gRPC health service,
		// constructed before the bus since the bus reports into the
		// collector.
		provideMetrics,
		provideHealthServer,

		// Domain: the bus itself (socket, udpm, shm wired internally).
		provideBus,

		// Bootstrap: final App struct.
		NewApp,
	)
	return nil, nil
}
