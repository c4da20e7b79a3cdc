package injector

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/wire"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/zeusync/sheetsync/internal/config"
	"github.com/zeusync/sheetsync/internal/core/observability/log"
	"github.com/zeusync/sheetsync/internal/relay"
)

// ProviderSet builds a relay server from a Config. External services are
// only connected when configured.
var ProviderSet = wire.NewSet(
	ProvideLogger,
	ProvideRegistry,
	ProvideMetrics,
	ProvideRedis,
	ProvideSnapshotStore,
	ProvideStore,
	ProvideBroker,
	ProvidePresence,
	ProvideExporter,
	ProvideHub,
	ProvideAuthenticator,
	ProvideServer,
)

func ProvideLogger(cfg config.Config) (log.Log, error) {
	return log.NewWithOptions(cfg.Logging())
}

func ProvideRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry
}

func ProvideMetrics(registry *prometheus.Registry) *relay.Metrics {
	return relay.NewMetrics(registry)
}

// ProvideRedis returns nil when no Redis address is configured.
func ProvideRedis(cfg config.Config, logger log.Log) (redis.UniversalClient, func(), error) {
	if cfg.Redis.Addr == "" {
		return nil, func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, errors.Wrap(err, "failed to connect to redis")
	}
	logger.Info("Connected to redis", log.String("addr", cfg.Redis.Addr))
	return rdb, func() { _ = rdb.Close() }, nil
}

// ProvideSnapshotStore returns nil when no MySQL DSN is configured.
func ProvideSnapshotStore(cfg config.Config, logger log.Log) (relay.SnapshotStore, func(), error) {
	if cfg.MySQL.DSN == "" {
		return nil, func() {}, nil
	}
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open mysql")
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snapshots := relay.NewMySQLSnapshots(db)
	if err = snapshots.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, errors.Wrap(err, "failed to migrate snapshot table")
	}
	logger.Info("Connected to mysql")
	return snapshots, func() { _ = db.Close() }, nil
}

// ProvideStore orders documents in Redis when available so that several
// nodes can share them, in process memory otherwise.
func ProvideStore(cfg config.Config, rdb redis.UniversalClient, snapshots relay.SnapshotStore) relay.Store {
	if rdb != nil {
		return relay.NewRedisStore(rdb, true)
	}
	return relay.NewMemoryStore(cfg.Server.Shards, snapshots)
}

func ProvideBroker(rdb redis.UniversalClient) relay.Broker {
	if rdb != nil {
		return relay.NewRedisBroker(rdb)
	}
	return relay.NewLocalBroker()
}

func ProvidePresence(rdb redis.UniversalClient) relay.Presence {
	if rdb != nil {
		return relay.NewRedisPresence(rdb)
	}
	return relay.NewMemoryPresence()
}

// ProvideExporter returns nil when no Kafka broker is configured.
func ProvideExporter(cfg config.Config, logger log.Log) (relay.Exporter, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, func() {}, nil
	}
	producer, err := relay.NewKafkaProducer(cfg.Kafka.Brokers)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create kafka producer")
	}

	opt := relay.DefaultKafkaExporterOptions()
	opt.QueueSize = cfg.Kafka.QueueSize
	opt.Workers = cfg.Kafka.Workers
	opt.MaxRetry = cfg.Kafka.MaxRetry
	exporter := relay.NewKafkaExporter(producer, cfg.Kafka.Topic, opt, logger)
	return exporter, func() {
		_ = exporter.Close()
		_ = producer.Close()
	}, nil
}

func ProvideHub(cfg config.Config, store relay.Store, broker relay.Broker, presence relay.Presence, exporter relay.Exporter, metrics *relay.Metrics, logger log.Log) *relay.Hub {
	return relay.NewHub(relay.HubConfig{
		Store:    store,
		Broker:   broker,
		Presence: presence,
		Exporter: exporter,
		Metrics:  metrics,
		Logger:   logger,
		Shards:   cfg.Server.Shards,
		FanOut:   cfg.Server.FanOut,
	})
}

func ProvideAuthenticator(cfg config.Config) *relay.Authenticator {
	return relay.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
}

func ProvideServer(cfg config.Config, hub *relay.Hub, auth *relay.Authenticator, registry *prometheus.Registry, logger log.Log) *relay.Server {
	return relay.NewServer(cfg.Relay(), hub, auth, registry, logger)
}
