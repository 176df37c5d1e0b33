package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"alertrules/internal/actions"
	"alertrules/internal/buffer"
	"alertrules/internal/clock"
	"alertrules/internal/config"
	"alertrules/internal/eventstore"
	"alertrules/internal/ingest"
	"alertrules/internal/logging"
	"alertrules/internal/metrics"
	"alertrules/internal/notify"
	"alertrules/internal/notifyqueue"
	"alertrules/internal/processor"
	"alertrules/internal/rates"
	"alertrules/internal/redisconn"
	"alertrules/internal/rules"
	"alertrules/internal/suppression"
	"alertrules/internal/telemetry"

	"github.com/redis/go-redis/v9"
)

const (
	singleModeEventTTL      = 24 * time.Hour
	singleModeRateRetention = 61 * 24 * time.Hour
	singleModeHistoryLimit  = 10000
	suppressionCacheSize    = 100000
)

// rateBackend records rate samples and answers windowed queries.
type rateBackend interface {
	rates.Recorder
	Handlers() rates.Handlers
}

// Service composes runtime dependencies and process lifecycle.
// Params: config source and shared runtime components.
// Returns: runnable rule-processing service.
type Service struct {
	source          config.ConfigSource
	cfg             config.Config
	logger          *slog.Logger
	closeLog        func()
	shutdownTracing func(context.Context) error
	clock           clock.Clock

	registry    *rules.Registry
	repo        *rules.Repository
	redis       *redis.Client
	suppression suppression.Store
	history     suppression.HistoryRecorder
	buffer      buffer.Buffer
	rates       rateBackend
	events      eventstore.Store
	dispatcher  *dispatcherRef
	sender      *notify.Dispatcher
	pipeline    *Pipeline
	delayed     *processor.DelayedProcessor
	scheduler   *Scheduler

	httpSrv   *http.Server
	natsSub   interface{ Close() error }
	kafka     *ingest.KafkaConsumer
	notifyQ   interface{ Close() error }
	notifyPub notifyqueue.Producer
	readyFlag atomic.Bool
	wg        sync.WaitGroup
}

// ErrBatchNeedsCluster rejects one-shot batch runs against an in-process buffer.
var ErrBatchNeedsCluster = errors.New("delayed batch runs need service.mode = \"cluster\": single mode keeps the buffer in process memory")

// NewService builds service instance from config source.
// Params: startup context, config source, and clock implementation.
// Returns: initialized service or setup error.
func NewService(ctx context.Context, source config.ConfigSource, clk clock.Clock) (*Service, error) {
	return newService(ctx, source, clk, func(s *Service) []func(context.Context) error {
		return []func(context.Context) error{
			s.buildRules,
			s.buildBackends,
			s.buildProcessors,
			s.buildNotifyProducer,
			s.buildNotifyWorker,
			s.buildHTTPServer,
			s.buildNATSSubscriber,
			s.buildKafkaConsumer,
		}
	})
}

// NewBatchService builds only what one delayed batch needs: rules, shared
// backends, processors, and the notify producer. It starts no ingest
// transport and no queue worker, so it never joins a consumer group.
// Params: startup context, config source, and clock implementation.
// Returns: service for ProcessProject, or ErrBatchNeedsCluster in single mode.
func NewBatchService(ctx context.Context, source config.ConfigSource, clk clock.Clock) (*Service, error) {
	return newService(ctx, source, clk, func(s *Service) []func(context.Context) error {
		return []func(context.Context) error{
			s.requireClusterMode,
			s.buildRules,
			s.buildBackends,
			s.buildProcessors,
			s.buildNotifyProducer,
		}
	})
}

func newService(ctx context.Context, source config.ConfigSource, clk clock.Clock, plan func(*Service) []func(context.Context) error) (*Service, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	logger, closeLog, err := logging.New(cfg.Log, cfg.Service.Name)
	if err != nil {
		return nil, err
	}
	service := &Service{
		source:   source,
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		clock:    clk,
	}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, cfg.Service.Name)
	if err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	service.shutdownTracing = shutdownTracing

	for _, step := range plan(service) {
		if err := step(ctx); err != nil {
			service.cleanupInitResources()
			return nil, err
		}
	}
	return service, nil
}

// Run starts service lifecycle and blocks until shutdown signal.
// Params: root context for service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 2)
	go func() {
		s.logger.Info("http server starting", "listen", s.cfg.Ingest.HTTP.Listen)
		err := s.httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server failed: %w", err)
		}
	}()

	if s.kafka != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.kafka.Run(runCtx); err != nil {
				errChan <- fmt.Errorf("kafka consumer failed: %w", err)
			}
		}()
	}

	if s.cfg.Delayed.Enabled {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.scheduler.Run(runCtx)
		}()
	}

	if s.cfg.Service.ReloadEnabled {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ticker := time.NewTicker(time.Duration(s.cfg.Service.ReloadIntervalSec) * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-runCtx.Done():
					return
				case <-ticker.C:
					if err := s.Reload(); err != nil {
						s.logger.Error("reload failed", "error", err.Error())
					}
				}
			}
		}()
	}

	s.readyFlag.Store(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case <-ctx.Done():
	case <-sigChan:
	case runErr = <-errChan:
	}
	cancel()
	s.wg.Wait()
	if err := s.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// ProcessProject runs one delayed batch for project outside the scheduler.
// Params: context and project id.
// Returns: delayed run report.
func (s *Service) ProcessProject(ctx context.Context, projectID int64) processor.Report {
	return s.delayed.ProcessProject(ctx, projectID)
}

// Pipeline exposes the ingest sink.
func (s *Service) Pipeline() *Pipeline {
	return s.pipeline
}

// Handler exposes the HTTP router.
func (s *Service) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Close releases every resource without running the service.
func (s *Service) Close() error {
	return s.shutdown()
}

// Reload loads a new config snapshot and swaps rules and notify senders.
// Params: none.
// Returns: load, validation, or apply error; the old snapshot stays active on error.
func (s *Service) Reload() error {
	next, err := config.LoadSnapshot(s.source)
	if err != nil {
		return err
	}
	if isSingleMode(next) != isSingleMode(s.cfg) {
		return errors.New("service.mode change requires restart")
	}
	list := config.DomainRules(next)
	if err := ValidateRules(s.registry, list); err != nil {
		return err
	}
	sender, err := notify.NewDispatcher(next.Notify, s.logger)
	if err != nil {
		return err
	}
	s.repo.Replace(list)
	s.sender = sender
	s.dispatcher.swap(actions.NewDispatcher(sender, s.notifyPub, s.clock, s.logger))
	s.cfg.Rule = next.Rule
	s.cfg.Notify.Telegram = next.Notify.Telegram
	s.cfg.Notify.HTTP = next.Notify.HTTP
	s.logger.Info("configuration reloaded", "rules", s.repo.Len())
	return nil
}

// shutdown closes runtime resources in dependency order.
// Params: none.
// Returns: first close error.
func (s *Service) shutdown() error {
	s.readyFlag.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var firstErr error
	closeOne := func(name string, fn func() error) {
		if err := fn(); err != nil {
			s.logger.Error(name+" close failed", "error", err.Error())
			if firstErr == nil {
				firstErr = fmt.Errorf("%s close: %w", name, err)
			}
		}
	}

	if s.httpSrv != nil {
		closeOne("http server", func() error { return s.httpSrv.Shutdown(ctx) })
	}
	if s.natsSub != nil {
		closeOne("nats subscriber", s.natsSub.Close)
	}
	if s.kafka != nil {
		closeOne("kafka consumer", s.kafka.Close)
	}
	if s.notifyQ != nil {
		closeOne("notify queue worker", s.notifyQ.Close)
	}
	if s.notifyPub != nil {
		closeOne("notify queue producer", s.notifyPub.Close)
	}
	if s.buffer != nil {
		closeOne("buffer", s.buffer.Close)
	}
	if s.events != nil {
		closeOne("event store", s.events.Close)
	}
	if s.suppression != nil {
		closeOne("suppression store", s.suppression.Close)
	}
	if s.history != nil {
		closeOne("fire history", s.history.Close)
	}
	if s.redis != nil {
		closeOne("redis", s.redis.Close)
	}
	if s.shutdownTracing != nil {
		closeOne("tracing", func() error { return s.shutdownTracing(ctx) })
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
	return firstErr
}

// cleanupInitResources closes partially initialized resources on startup failures.
// Params: none.
// Returns: all acquired resources closed best-effort.
func (s *Service) cleanupInitResources() {
	if s.httpSrv != nil {
		_ = s.httpSrv.Close()
		s.httpSrv = nil
	}
	_ = s.shutdown()
}

// buildRules creates the registry and loads validated rules.
func (s *Service) buildRules(context.Context) error {
	registry, err := BuildRegistry()
	if err != nil {
		return err
	}
	list := config.DomainRules(s.cfg)
	if err := ValidateRules(registry, list); err != nil {
		return err
	}
	s.registry = registry
	s.repo = rules.NewRepository(list)
	return nil
}

// buildBackends selects state backends for the service mode.
// Single mode keeps everything in memory; cluster mode shares Redis and NATS.
func (s *Service) buildBackends(ctx context.Context) error {
	leaseTTL := time.Duration(s.cfg.Delayed.DrainLockSec) * time.Second
	if isSingleMode(s.cfg) {
		s.suppression = suppression.NewMemoryStore()
		s.history = suppression.NewMemoryHistory(singleModeHistoryLimit)
		s.buffer = buffer.NewMemoryBuffer(s.clock, leaseTTL, s.logger)
		s.rates = rates.NewMemoryStore(singleModeRateRetention)
		s.events = eventstore.NewMemoryStore(singleModeEventTTL, s.clock)
		return nil
	}

	client, err := redisconn.Open(ctx, s.cfg.Redis)
	if err != nil {
		return err
	}
	s.redis = client
	prefix := s.cfg.Redis.KeyPrefix
	s.buffer = buffer.NewRedisBuffer(client, prefix, leaseTTL, s.clock, s.logger)
	s.rates = rates.NewRedisStore(client, prefix, time.Duration(s.cfg.Redis.RateRetentionSec)*time.Second)
	s.events = eventstore.NewRedisStore(client, prefix, time.Duration(s.cfg.Redis.EventTTLSec)*time.Second, s.logger)

	stateCfg := config.DeriveStateNATSConfig(s.cfg)
	store, err := suppression.NewNATSStore(stateCfg)
	if err != nil {
		return err
	}
	cacheTTL := time.Duration(s.cfg.Service.SuppressionCacheSec) * time.Second
	s.suppression = suppression.NewCachedStore(store, cacheTTL, suppressionCacheSize, s.clock)
	history, err := suppression.NewNATSHistory(stateCfg)
	if err != nil {
		return err
	}
	s.history = history
	return nil
}

// buildProcessors wires fast and delayed processors, dispatcher, and pipeline.
func (s *Service) buildProcessors(context.Context) error {
	sender, err := notify.NewDispatcher(s.cfg.Notify, s.logger)
	if err != nil {
		return err
	}
	s.sender = sender
	s.dispatcher = newDispatcherRef(actions.NewDispatcher(sender, nil, s.clock, s.logger))

	deps := processor.Deps{
		Rules:       s.repo,
		Registry:    s.registry,
		Suppression: s.suppression,
		History:     s.history,
		Buffer:      s.buffer,
		Clock:       s.clock,
		Logger:      s.logger,
	}
	fast := processor.NewRuleProcessor(deps)
	s.delayed = processor.NewDelayedProcessor(deps, s.rates.Handlers(), s.events, s.dispatcher, s.cfg.Delayed.QueryConcurrency)
	s.pipeline = NewPipeline(s.events, s.rates, fast, s.dispatcher, s.logger)
	s.scheduler = NewScheduler(
		s.buffer,
		s.delayed,
		time.Duration(s.cfg.Delayed.IntervalSec)*time.Second,
		s.cfg.Delayed.ProjectBatch,
		s.cfg.Delayed.ProjectConcurrency,
		s.logger,
	)
	return nil
}

func (s *Service) requireClusterMode(context.Context) error {
	if isSingleMode(s.cfg) {
		return ErrBatchNeedsCluster
	}
	return nil
}

// buildNotifyProducer routes dispatch through the notify queue when enabled.
func (s *Service) buildNotifyProducer(context.Context) error {
	if isSingleMode(s.cfg) || !s.cfg.Notify.Queue.Enabled {
		return nil
	}
	producer, err := notifyqueue.NewNATSProducer(s.cfg.Notify.Queue)
	if err != nil {
		return err
	}
	s.notifyPub = producer
	s.dispatcher.swap(actions.NewDispatcher(s.sender, producer, s.clock, s.logger))
	return nil
}

// buildNotifyWorker subscribes the queue worker that delivers jobs.
func (s *Service) buildNotifyWorker(context.Context) error {
	if isSingleMode(s.cfg) || !s.cfg.Notify.Queue.Enabled {
		return nil
	}
	worker, err := notifyqueue.NewNATSWorker(s.cfg.Notify.Queue, s.logger, s.dispatcher.Deliver)
	if err != nil {
		return err
	}
	s.notifyQ = worker
	return nil
}

// buildHTTPServer wires router with ingest, health, and metrics endpoints.
func (s *Service) buildHTTPServer(context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Ingest.HTTP.HealthPath, func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ok"))
	})
	mux.HandleFunc(s.cfg.Ingest.HTTP.ReadyPath, func(writer http.ResponseWriter, _ *http.Request) {
		if !s.readyFlag.Load() {
			writer.WriteHeader(http.StatusServiceUnavailable)
			_, _ = writer.Write([]byte("not-ready"))
			return
		}
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ready"))
	})
	if s.cfg.Metrics.Enabled {
		mux.Handle(s.cfg.Metrics.Path, metrics.Handler())
	}
	if s.cfg.Ingest.HTTP.Enabled {
		mux.Handle(s.cfg.Ingest.HTTP.IngestPath, ingest.NewHTTPHandler(s.pipeline, s.cfg.Ingest.HTTP.MaxBodyBytes, s.logger))
	}

	s.httpSrv = &http.Server{
		Addr:              s.cfg.Ingest.HTTP.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

// buildNATSSubscriber starts NATS ingest when enabled.
func (s *Service) buildNATSSubscriber(context.Context) error {
	if isSingleMode(s.cfg) || !s.cfg.Ingest.NATS.Enabled {
		return nil
	}
	subscriber, err := ingest.NewNATSSubscriber(s.cfg.Ingest.NATS, s.pipeline, s.logger)
	if err != nil {
		return err
	}
	s.natsSub = subscriber
	return nil
}

// buildKafkaConsumer prepares Kafka ingest when enabled; Run starts it.
func (s *Service) buildKafkaConsumer(context.Context) error {
	if isSingleMode(s.cfg) || !s.cfg.Ingest.Kafka.Enabled {
		return nil
	}
	consumer, err := ingest.NewKafkaConsumer(s.cfg.Ingest.Kafka, s.pipeline, s.logger)
	if err != nil {
		return err
	}
	s.kafka = consumer
	return nil
}

func isSingleMode(cfg config.Config) bool {
	return config.NormalizeServiceMode(cfg.Service.Mode) == config.ServiceModeSingle
}
