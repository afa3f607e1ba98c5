package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/fastpdi/dpp"
	"github.com/fastpdi/dpp/internal/cliconfig"
	"github.com/fastpdi/dpp/pkg/log"
	"github.com/fastpdi/dpp/plugins/ingestwatcher"
	"github.com/fastpdi/dpp/plugins/workdirclean"
)

const helpDescription = `
Reduce FastPDI dual-camera polarimetric imaging sequences to Stokes maps.

Highlights:
  - Resumes interrupted reductions: finished stage artifacts are reused,
    only work invalidated by parameter changes is redone.
  - One TOML file describes the whole reduction; stage sections left out
    are simply skipped.
  - Watch mode re-reduces automatically as new raw cubes arrive.
`

var longHelp = strings.TrimSpace(helpDescription)

var exampleUsage = strings.TrimSpace(`
  dpp --config night1.toml
  dpp --config night1.toml --input-dir /data/raw/2026-08-30 --watch
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	logger := cliconfig.Logger()

	root := &cobra.Command{
		Use:     "dpp",
		Short:   "Reduce FastPDI polarimetric imaging sequences to Stokes maps",
		Long:    longHelp,
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load config file first (default $HOME/.dpp/config.toml),
			// then apply env and flag overrides.
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			// Build set of changed flags
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			runCfg := &dpp.Config{}
			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				loaded, err := dpp.LoadConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				runCfg = loaded
				cliconfig.ApplyFileConfig(&cfg, runCfg, changed)
			}

			// Environment variables (DPP_*) override file config but are
			// overridden by flags (checked via changed map).
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}
			cfg.Overlay(runCfg)

			logger.Info().Interface("config", cfg).Msg("configuration")

			adapter := log.NewZerologAdapterWithLogger(logger)

			opts := []dpp.Option{
				dpp.WithLogger(adapter),
				workdirclean.WithDefaultWorkDirClean(),
			}
			if cfg.Watch {
				opts = append(opts,
					dpp.WithWatch(),
					ingestwatcher.WithIngestWatcher(ingestwatcher.DefaultConfig()),
				)
			}

			service, err := dpp.New(runCfg, opts...)
			if err != nil {
				return fmt.Errorf("create service: %w", err)
			}

			// Setup signal handling for graceful shutdown
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			if err := service.Start(ctx); err != nil {
				return fmt.Errorf("start service: %w", err)
			}

			// Poll for completion (one-shot mode stops itself)
			doneCh := make(chan struct{})
			go func() {
				ticker := time.NewTicker(100 * time.Millisecond)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						status := service.Status()
						if status == dpp.StateStopped || status == dpp.StateCrashed {
							close(doneCh)
							return
						}
					}
				}
			}()

			crashed := false
			select {
			case <-sigCh:
				logger.Info().Msg("received signal, stopping...")
				if err := service.Stop(); err != nil {
					return fmt.Errorf("stop service: %w", err)
				}
			case <-doneCh:
				if service.Status() == dpp.StateCrashed {
					crashed = true
				}
			}

			if report, runErr := service.LastReport(); report != nil {
				logger.Info().
					Str("run_id", report.RunID).
					Int("products", len(report.Products)).
					Msg("last run")
				if runErr != nil && !crashed {
					logger.Warn().Err(runErr).Msg("last run finished with errors")
				}
			}
			if crashed {
				_, runErr := service.LastReport()
				if runErr != nil {
					return fmt.Errorf("reduction failed: %w", runErr)
				}
				return fmt.Errorf("reduction failed")
			}
			return nil
		},
	}

	// Flags
	root.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.dpp/config.toml)")
	root.Flags().StringVar(&cfg.Name, "name", cfg.Name, "run name, used as filename stem for reports and products")
	root.Flags().StringVar(&cfg.InputDir, "input-dir", cfg.InputDir, "directory containing raw cube files")
	root.Flags().StringVar(&cfg.WorkDir, "work-dir", cfg.WorkDir, "directory for per-stage intermediate artifacts")
	root.Flags().StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "directory for Stokes products and the run report")

	root.Flags().IntVar(&cfg.Workers, "workers", cfg.Workers, "per-stage concurrency (0 = from CPU count)")
	root.Flags().BoolVar(&cfg.DualCamera, "dual-camera", cfg.DualCamera, "reduce both camera branches")
	root.Flags().BoolVar(&cfg.Coronagraphic, "coronagraphic", cfg.Coronagraphic, "use satellite-spot windows for selection and registration")

	root.Flags().StringVar(&cfg.MetricsDB, "metrics-db", cfg.MetricsDB, "sqlite file collecting run reports across runs")
	root.Flags().StringVar(&cfg.DiagDir, "diag-dir", cfg.DiagDir, "directory for HTML diagnostic charts")

	root.Flags().BoolVar(&cfg.Watch, "watch", cfg.Watch, "keep running and re-reduce when new raw cubes arrive")

	if err := root.Execute(); err != nil {
		logger.Error().Err(err).Msg("dpp")
		os.Exit(1)
	}
}
