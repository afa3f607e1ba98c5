package workdirclean

import "github.com/fastpdi/dpp"

// WithWorkDirClean returns a dpp Option that enables automatic work
// directory cleanup. When enabled, the plugin periodically checks the
// stage artifact directories and removes the oldest artifacts once they
// exceed the configured high watermark.
//
// Usage:
//
//	s, err := dpp.New(cfg,
//	    workdirclean.WithWorkDirClean(workdirclean.Config{
//	        CheckInterval: time.Hour,
//	        HighWatermark: 8 << 30, // 8 GiB
//	        LowWatermark:  6 << 30, // 6 GiB
//	    }),
//	)
func WithWorkDirClean(cfg Config) dpp.Option {
	plugin := New(cfg)
	return dpp.WithPlugin(plugin)
}

// WithDefaultWorkDirClean returns a dpp Option that enables cleanup with
// default settings (check hourly, high watermark 8GiB, low watermark 6GiB).
//
// Usage:
//
//	s, err := dpp.New(cfg, workdirclean.WithDefaultWorkDirClean())
func WithDefaultWorkDirClean() dpp.Option {
	return WithWorkDirClean(DefaultConfig())
}
