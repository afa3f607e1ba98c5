package ingestwatcher

import "github.com/fastpdi/dpp"

// WithIngestWatcher returns a dpp Option that enables input-directory
// watching. Combine with dpp.WithWatch(); without watch mode the triggers
// it sends are ignored.
//
// Usage:
//
//	s, err := dpp.New(cfg,
//	    dpp.WithWatch(),
//	    ingestwatcher.WithIngestWatcher(ingestwatcher.Config{
//	        DebounceDelay: 10 * time.Second,
//	    }),
//	)
func WithIngestWatcher(cfg Config) dpp.Option {
	plugin := New(cfg)
	return dpp.WithPlugin(plugin)
}
