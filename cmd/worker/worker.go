// Package worker implements the worker command: the job queue that runs
// detection jobs, plus the control API that submits them.
package worker

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/yardwatch/yardwatch/internal/api"
	"github.com/yardwatch/yardwatch/internal/conf"
	"github.com/yardwatch/yardwatch/internal/datastore"
	"github.com/yardwatch/yardwatch/internal/debounce"
	"github.com/yardwatch/yardwatch/internal/dispatch"
	"github.com/yardwatch/yardwatch/internal/framesource"
	"github.com/yardwatch/yardwatch/internal/incident"
	"github.com/yardwatch/yardwatch/internal/inference/tflite"
	"github.com/yardwatch/yardwatch/internal/jobqueue"
	"github.com/yardwatch/yardwatch/internal/logger"
	"github.com/yardwatch/yardwatch/internal/notify"
	"github.com/yardwatch/yardwatch/internal/observability"
	"github.com/yardwatch/yardwatch/internal/observability/metrics"
	"github.com/yardwatch/yardwatch/internal/runner"
	"github.com/yardwatch/yardwatch/internal/stopsignal"
)

// jobStopTimeout bounds how long shutdown waits for jobs to release their
// cameras and mark recordings stopped.
const jobStopTimeout = 30 * time.Second

// Command creates the worker command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run detection jobs and the control API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return Run(cmd.Context(), settings)
		},
	}

	cmd.Flags().StringVar(&settings.API.Listen, "listen", viper.GetString("api.listen"), "Control API listen address")
	cmd.Flags().IntVar(&settings.JobQueue.MaxJobs, "max-jobs", viper.GetInt("jobqueue.max_jobs"), "Maximum concurrent detection jobs")
	_ = viper.BindPFlags(cmd.Flags())
	return cmd
}

// Run starts every worker component and blocks until ctx is cancelled or a
// component fails.
func Run(ctx context.Context, settings *conf.Settings) error {
	log := logger.Global().Module("worker")

	store, err := datastore.Open(&settings.Database, log.Module("datastore"))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var (
		detectorMetrics *metrics.DetectorMetrics
		registry        *observability.Metrics
	)
	if settings.Telemetry.Metrics {
		if registry, err = observability.NewMetrics(); err != nil {
			return err
		}
		detectorMetrics = registry.Detector
	}

	notifier, err := notify.FromSettings(&settings.Notify, log.Module("notify"))
	if err != nil {
		return err
	}
	defer func() { _ = notifier.Close() }()

	stops, err := stopsignal.Open(&settings.StopSignal, log.Module("stopsignal"))
	if err != nil {
		return err
	}
	defer func() { _ = stops.Close() }()

	persister := incident.NewPersister(store.Incidents(), notifier, log.Module("incident"))
	defer persister.Wait()

	gate := debounce.NewGate(debounce.Config{
		Window:     settings.Debounce.Window,
		CacheTTL:   settings.Debounce.CacheTTL,
		MaxEntries: settings.Debounce.MaxEntries,
	}, store.Incidents(), log.Module("debounce"))

	detections := runner.New(runner.ConfigFromSettings(&settings.Detection), runner.Deps{
		Catalog:   store.Catalog(),
		Frames:    framesource.NewAcquirer(&settings.FrameSource, log.Module("framesource")),
		Models:    tflite.NewLoader(&settings.Inference, log.Module("inference")),
		Gate:      gate,
		Persister: persister,
		Stops:     stops,
		Metrics:   detectorMetrics,
		Log:       log.Module("runner"),
	})

	queue := jobqueue.NewJobQueueWithOptions(settings.JobQueue.MaxJobs, jobqueue.DefaultMaxArchivedJobs, log.Module("jobqueue"))
	if settings.JobQueue.ProcessingInterval > 0 {
		queue.SetProcessingInterval(settings.JobQueue.ProcessingInterval)
	}

	dispatcher := dispatch.New(store.Catalog(), queue, detections, stops,
		settings.Detection.MaxRetries, settings.Detection.RetryBackoff, log.Module("dispatch"))

	g, gctx := errgroup.WithContext(ctx)

	queue.StartWithContext(gctx)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("stopping job queue", logger.Int("running", queue.Stats().RunningJobs))
		return queue.StopWithTimeout(jobStopTimeout)
	})

	if settings.API.Enabled {
		opts := []api.ServerOption{
			api.WithLogger(log.Module("api")),
			api.WithDispatcher(dispatcher),
			api.WithJobs(queue),
			api.WithCatalog(store.Catalog()),
			api.WithIncidents(store.Incidents()),
			api.WithHealthCheck(func(ctx context.Context) error {
				sqlDB, err := store.DB.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			}),
		}
		if registry != nil {
			opts = append(opts, api.WithMetrics(registry.Handler()))
		}
		server := api.New(&settings.API, opts...)
		g.Go(func() error { return server.Run(gctx) })
	}

	log.Info("worker started",
		logger.Int("max_jobs", queue.GetMaxJobs()),
		logger.String("stop_backend", settings.StopSignal.Backend),
		logger.Bool("api", settings.API.Enabled),
		logger.Bool("metrics", registry != nil),
		logger.Int("notifiers", notifier.Len()))

	err = g.Wait()
	log.Info("worker stopped")
	return err
}
