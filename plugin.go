package dpp

import "context"

// PluginConfig carries the runtime context handed to plugins at
// initialization.
type PluginConfig struct {
	// Config is the run configuration driving the service. Plugins must
	// treat it as read-only.
	Config *Config

	// Logger is the service logger.
	Logger Logger

	// Trigger requests a reduction. Only meaningful in watch mode;
	// otherwise it is a no-op.
	Trigger func()
}

// Plugin extends the service with background behavior, such as watching
// the input directory or pruning the work directory.
type Plugin interface {
	// Name returns the plugin identifier used in logs.
	Name() string

	// Initialize starts the plugin. The context is cancelled when the
	// service stops; long-running work belongs in goroutines tied to it.
	Initialize(ctx context.Context, cfg PluginConfig) error

	// Shutdown stops the plugin and waits for its goroutines.
	Shutdown(ctx context.Context) error
}
