package factory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/iulianpascalau/gpu-rack-telemetry/common"
	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/aggregator"
	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/api"
	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/config"
	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/detector"
	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/ingest"
	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/publisher"
	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/scheduler"
	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/storage"
)

// Store defines the complete durable store capability assembled by this factory
type Store interface {
	ingest.Storer
	aggregator.Storer
	detector.Storer
	publisher.Storer
	scheduler.Storer
	api.Storage
	Close() error
}

type componentsHandler struct {
	store               Store
	ingestor            api.Ingestor
	engine              scheduler.Aggregator
	detector            scheduler.Detector
	publisher           scheduler.Publisher
	runner              Runner
	server              Server
	aggregationInterval time.Duration
	mutCancel           sync.Mutex
	cancel              func()
}

// NewComponentsHandler creates a new components handler
func NewComponentsHandler(
	sqlitePath string,
	serviceKeyApi string,
	scadaApiKey string,
	authUsername string,
	authPassword string,
	cfg config.Config,
) (*componentsHandler, error) {
	store, err := storage.NewSQLiteStorage(sqlitePath, cfg.RetentionSeconds)
	if err != nil {
		return nil, err
	}

	ingestor, err := ingest.NewIngestor(store, cfg.ClockSkewSeconds)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	engine, err := aggregator.NewEngine(store, cfg.LookbackWindowSeconds, cfg.HeartbeatStaleThresholdSeconds)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	rules := []detector.Rule{
		detector.NewOverTemperatureRule(cfg.TemperatureCriticalThreshold),
		detector.NewUnresponsiveRule(cfg.HeartbeatStaleThresholdSeconds, cfg.HeartbeatCriticalThresholdSeconds),
		detector.NewFaultReportedRule(cfg.HeartbeatStaleThresholdSeconds),
		detector.NewLinkDownRule(),
	}
	abnormalityDetector, err := detector.NewDetector(store, rules, cfg.RenotifyIntervalSeconds)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	scadaClient := publisher.NewHTTPScadaClient(
		cfg.Scada.Endpoint,
		scadaApiKey,
		time.Duration(cfg.Scada.TimeoutSeconds)*time.Second,
	)
	scadaPublisher, err := publisher.NewScadaPublisher(publisher.ArgsScadaPublisher{
		Client:                         scadaClient,
		Storage:                        store,
		CircuitBreakerFailureThreshold: cfg.Scada.CircuitBreakerFailureThreshold,
		CircuitBreakerCooldown:         time.Duration(cfg.Scada.CircuitBreakerCooldownSeconds) * time.Second,
		MaxPublishRetries:              cfg.Scada.MaxPublishRetries,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	runner, err := scheduler.NewRunner(scheduler.ArgsRunner{
		Storage:            store,
		Aggregator:         engine,
		Detector:           abnormalityDetector,
		Publisher:          scadaPublisher,
		HolderID:           uuid.NewString(),
		LeaseTTLSeconds:    cfg.LeaseTTLSeconds,
		LeaseRenewInterval: time.Duration(cfg.LeaseRenewSeconds) * time.Second,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	serverArgs := api.ArgsWebServer{
		ServiceKeyApi:  serviceKeyApi,
		AuthUsername:   authUsername,
		AuthPassword:   authPassword,
		ListenAddress:  cfg.ListenAddress,
		Ingestor:       ingestor,
		Storage:        store,
		GeneralHandler: api.CORSMiddleware,
	}

	server, err := api.NewServer(serverArgs)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &componentsHandler{
		store:               store,
		ingestor:            ingestor,
		engine:              engine,
		detector:            abnormalityDetector,
		publisher:           scadaPublisher,
		runner:              runner,
		server:              server,
		aggregationInterval: time.Duration(cfg.AggregationIntervalSeconds) * time.Second,
	}, nil
}

// GetStore returns the storage component
func (ch *componentsHandler) GetStore() Store {
	return ch.store
}

// GetIngestor returns the ingestor component
func (ch *componentsHandler) GetIngestor() api.Ingestor {
	return ch.ingestor
}

// GetRunner returns the cycle runner component
func (ch *componentsHandler) GetRunner() Runner {
	return ch.runner
}

// GetServer returns the server component
func (ch *componentsHandler) GetServer() Server {
	return ch.server
}

// Start starts the inner components
func (ch *componentsHandler) Start() {
	ch.mutCancel.Lock()
	defer ch.mutCancel.Unlock()

	if ch.cancel != nil {
		return
	}

	var ctx context.Context
	ctx, ch.cancel = context.WithCancel(context.Background())

	ch.server.Start()
	common.CronJobStarter(ctx, ch.runner.Process, ch.aggregationInterval)
}

// Close closes the inner components
func (ch *componentsHandler) Close() {
	ch.mutCancel.Lock()
	defer ch.mutCancel.Unlock()

	if ch.cancel != nil {
		ch.cancel()
		ch.cancel = nil
	}

	_ = ch.server.Close()
	_ = ch.store.Close()
}
