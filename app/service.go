// Package app wires the dispatch service to its gateway, stores, metrics and
// HTTP surfaces from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kilianp07/ocppfleet/api/operations"
	"github.com/kilianp07/ocppfleet/config"
	"github.com/kilianp07/ocppfleet/core/dispatch"
	coremetrics "github.com/kilianp07/ocppfleet/core/metrics"
	coremon "github.com/kilianp07/ocppfleet/core/monitoring"
	"github.com/kilianp07/ocppfleet/core/ocpp"
	"github.com/kilianp07/ocppfleet/core/oplog"
	"github.com/kilianp07/ocppfleet/infra/logger"
	"github.com/kilianp07/ocppfleet/infra/metrics"
	"github.com/kilianp07/ocppfleet/infra/monitoring"
	"github.com/kilianp07/ocppfleet/infra/mqtt"
	"github.com/kilianp07/ocppfleet/infra/sim"
	"github.com/kilianp07/ocppfleet/infra/webhook"
	"github.com/kilianp07/ocppfleet/internal/eventbus"
)

// Service owns every long lived component of the process.
type Service struct {
	Dispatch *dispatch.Service
	Rules    *ocpp.Rules

	cfg     *config.Config
	gateway dispatch.Gateway
	store   oplog.Store
	sink    coremetrics.Sink
	bus     *eventbus.Bus
	reaper  *cron.Cron
	hook    *webhook.Notifier
	api     *http.Server
	log     logger.Logger
}

// New creates a Service from the configuration. Nothing runs until Run.
func New(cfg *config.Config) (*Service, error) {
	log := logger.New("service")
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	rules := ocpp.DefaultRules()
	gw, err := newGateway(cfg, rules)
	if err != nil {
		return nil, err
	}
	store, err := oplog.Open(cfg.Oplog)
	if err != nil {
		closeGateway(gw)
		return nil, fmt.Errorf("oplog: %w", err)
	}
	sink, err := coremetrics.NewSink(cfg.Metrics.Sinks)
	if err != nil {
		closeGateway(gw)
		closeStore(store)
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	bus := eventbus.New()
	exec := dispatch.NewExecutor(cfg.Dispatch.ExecutorConfig(), logger.New("executor"), bus)
	svc, err := dispatch.NewService(cfg.Dispatch, rules, exec, gw, store, bus, logger.New("dispatch"))
	if err != nil {
		_ = exec.Shutdown(context.Background())
		closeGateway(gw)
		closeStore(store)
		return nil, fmt.Errorf("dispatch service: %w", err)
	}

	reaper := cron.New()
	if _, err := reaper.AddFunc(cfg.Dispatch.ReapSchedule, func() { svc.Reap(time.Now()) }); err != nil {
		_ = svc.Shutdown(context.Background())
		closeGateway(gw)
		closeStore(store)
		return nil, fmt.Errorf("reap schedule: %w", err)
	}

	s := &Service{
		Dispatch: svc,
		Rules:    rules,
		cfg:      cfg,
		gateway:  gw,
		store:    store,
		sink:     sink,
		bus:      bus,
		reaper:   reaper,
		log:      log,
	}
	if cfg.Webhook.Enabled() {
		s.hook = webhook.NewNotifier(cfg.Webhook)
	}
	if cfg.API.Enabled() {
		s.api = &http.Server{
			Addr:              cfg.API.Address,
			Handler:           operations.NewRouter(svc, store, cfg.API.Token),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return s, nil
}

func newGateway(cfg *config.Config, rules *ocpp.Rules) (dispatch.Gateway, error) {
	switch cfg.Gateway {
	case config.GatewaySimulated:
		return sim.NewGateway(sim.Accept, rules), nil
	case config.GatewayMQTT, "":
		gw, err := mqtt.NewPahoGateway(cfg.MQTT, rules)
		if err != nil {
			return nil, fmt.Errorf("mqtt gateway: %w", err)
		}
		return gw, nil
	default:
		return nil, fmt.Errorf("unknown gateway %q", cfg.Gateway)
	}
}

// Run starts the background components and blocks until ctx is done or the
// API listener fails.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	collected := metrics.StartEventCollector(ctx, s.bus, s.sink)
	notified := closedChan()
	if s.hook != nil {
		notified = s.hook.Start(ctx, s.bus)
	}
	s.reaper.Start()
	if addr := s.cfg.Metrics.PromAddress; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	errc := make(chan error, 1)
	if s.api != nil {
		go func() {
			s.log.Infof("operator API listening on %s", s.api.Addr)
			if err := s.api.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("api server: %w", err)
			}
		}()
	}
	var err error
	select {
	case <-ctx.Done():
	case err = <-errc:
	}
	cancel()
	<-collected
	<-notified
	return err
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Close stops accepting operations, drains in flight calls within the
// configured grace period and releases every resource.
func (s *Service) Close(ctx context.Context) error {
	var errs []error
	<-s.reaper.Stop().Done()
	if s.api != nil {
		if err := s.api.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("api shutdown: %w", err))
		}
	}
	if err := s.Dispatch.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.bus.Close()
	closeGateway(s.gateway)
	if err := closeStore(s.store); err != nil {
		errs = append(errs, fmt.Errorf("oplog close: %w", err))
	}
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}

func closeGateway(gw dispatch.Gateway) {
	if d, ok := gw.(interface{ Disconnect() }); ok {
		d.Disconnect()
	}
}

func closeStore(store oplog.Store) error {
	if store == nil {
		return nil
	}
	return store.Close()
}
