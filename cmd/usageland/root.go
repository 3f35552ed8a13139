package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/usageland/internal/config"
	"github.com/dunamismax/usageland/internal/domain"
	"github.com/dunamismax/usageland/internal/landing"
	"github.com/dunamismax/usageland/internal/logger"
	"github.com/dunamismax/usageland/internal/storage"
	"github.com/dunamismax/usageland/internal/telemetry"
	"github.com/dunamismax/usageland/internal/usage"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flagKeys binds command-line flags to config keys.
var flagKeys = map[string]string{
	"api-base-url": "api.base_url",
	"timeout":      "api.timeout",
	"max-attempts": "api.max_attempts",
	"driver":       "storage.driver",
	"container":    "storage.container",
	"prefix":       "storage.prefix",
	"local-dir":    "storage.local_dir",
	"log-level":    "log.level",
	"log-format":   "log.format",
}

type options struct {
	start      string
	end        string
	configFile string
}

func newRootCommand(clock clockwork.Clock) *cobra.Command {
	var opts options
	v := config.NewViper()

	cmd := &cobra.Command{
		Use:   "usageland",
		Short: "Land daily product usage records in blob storage",
		Long: `usageland fetches one usage document per calendar day from the product
usage API and writes it to raw/product_usage/<date>.json in blob storage,
overwriting any previous copy. The first failing day stops the run.

Without --start and --end the previous UTC day is landed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), v, opts, clock, cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.start, "start", "", "First day to land (YYYY-MM-DD)")
	flags.StringVar(&opts.end, "end", "", "Last day to land, inclusive (YYYY-MM-DD); defaults to --start")
	flags.StringVar(&opts.configFile, "config", "", "Optional config file (yaml, json, toml or .env)")
	flags.String("api-base-url", "", "Usage API base URL (or set USAGE_API_BASE_URL)")
	flags.Duration("timeout", 0, "Per-request timeout; 0 waits indefinitely (or set USAGE_API_TIMEOUT)")
	flags.Int("max-attempts", 0, "Attempts per day for transient API failures (or set USAGE_API_MAX_ATTEMPTS)")
	flags.String("driver", "", "Storage driver: azure, minio, file or mem (or set STORAGE_DRIVER)")
	flags.String("container", "", "Blob container (or set STORAGE_CONTAINER)")
	flags.String("prefix", "", "Object key prefix (or set STORAGE_PREFIX)")
	flags.String("local-dir", "", "Output directory for the file driver (or set STORAGE_LOCAL_DIR)")
	flags.String("log-level", "", "Log level (or set LOG_LEVEL)")
	flags.String("log-format", "", "Log format: json or console (or set LOG_FORMAT)")

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag --%s: %v", name, err))
		}
	}
	return cmd
}

// loggedError marks an error that run already wrote to the structured log.
type loggedError struct {
	err error
}

func (e *loggedError) Error() string { return e.err.Error() }

func (e *loggedError) Unwrap() error { return e.err }

func run(ctx context.Context, v *viper.Viper, opts options, clock clockwork.Clock, stderr io.Writer) error {
	if err := config.ReadFile(v, opts.configFile); err != nil {
		return err
	}
	cfg := config.Load(v)

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		return err
	}

	if err := land(ctx, log, cfg, opts, clock); err != nil {
		log.Error().Err(err).Msg("usageland failed")
		return &loggedError{err: err}
	}
	return nil
}

func land(ctx context.Context, log zerolog.Logger, cfg config.Config, opts options, clock clockwork.Clock) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	rng, err := resolveRange(opts.start, opts.end, clock)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "usageland",
		Exporter:     cfg.Telemetry.TraceExporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	client, err := usage.NewClient(cfg.API.ClientConfig())
	if err != nil {
		return err
	}

	writer, err := storage.Open(ctx, cfg.Storage.WriterConfig())
	if err != nil {
		return err
	}
	defer func() {
		if err := writer.Close(); err != nil {
			log.Warn().Err(err).Msg("storage close failed")
		}
	}()

	runner, err := landing.NewRunner(log, client, writer, cfg.Storage.Prefix)
	if err != nil {
		return err
	}

	log.Info().
		Str("endpoint", client.Endpoint()).
		Str("driver", cfg.Storage.Driver).
		Str("container", cfg.Storage.Container).
		Msg("starting usageland")

	_, runErr := runner.Run(ctx, rng)

	pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := runner.Metrics().Push(pushCtx, cfg.Telemetry.PushgatewayURL); err != nil {
		log.Warn().Err(err).Msg("metrics push failed")
	}

	return runErr
}

// resolveRange turns the --start/--end flags into a range. With neither set
// it lands yesterday in UTC.
func resolveRange(start, end string, clock clockwork.Clock) (domain.DateRange, error) {
	if start == "" && end == "" {
		yesterday := domain.DateOf(clock.Now().UTC()).AddDays(-1)
		return domain.DateRange{Start: yesterday, End: yesterday}, nil
	}
	if start == "" {
		return domain.DateRange{}, errors.New("--start is required when --end is set")
	}
	if end == "" {
		end = start
	}

	s, err := domain.ParseDate(start)
	if err != nil {
		return domain.DateRange{}, err
	}
	e, err := domain.ParseDate(end)
	if err != nil {
		return domain.DateRange{}, err
	}
	return domain.DateRange{Start: s, End: e}, nil
}
