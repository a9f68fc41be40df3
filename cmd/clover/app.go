package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/repositories/graphedge"
	"github.com/Ramsey-B/clover/internal/repositories/graphnode"
	"github.com/Ramsey-B/clover/internal/repositories/identitylink"
	"github.com/Ramsey-B/clover/internal/repositories/resolutioncandidate"
	"github.com/Ramsey-B/clover/internal/repositories/resolutionrun"
	"github.com/Ramsey-B/clover/internal/repositories/sourcerecord"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/health"
	"github.com/Ramsey-B/clover/pkg/identity"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/loader"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/materializer"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
	cloverredis "github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/resolution"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

const (
	lockPrefix     = "clover:resolution:"
	cacheKeyPrefix = "clover:"
)

// app owns every connection and the services built on top of them.
type app struct {
	cfg    config.Config
	logger ectologger.Logger
	runner *startup.Runner

	db       database.DB
	redis    *cloverredis.Client
	graph    *graph.Client
	producer *kafka.Producer

	shutdownTracing func(context.Context) error

	checker      *health.Checker
	orchestrator *resolution.Orchestrator
	identity     *identity.Service
}

// newApp connects to every configured dependency, retrying with backoff, then wires
// the services. migrate controls whether pending migrations run on connect.
func newApp(ctx context.Context, cfg config.Config, logger ectologger.Logger, migrate bool) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		runner:  startup.NewRunner(logger, cfg.StartupMaxAttempts),
		checker: health.NewChecker(cfg.Version),
	}

	if cfg.OtelEndpoint != "" {
		a.runner.Add(startup.Func{
			Name:    "tracing",
			OnStart: a.startTracing,
			OnStop: func(ctx context.Context) error {
				return a.shutdownTracing(ctx)
			},
		})
	}
	a.runner.Add(startup.Func{
		Name: "postgres",
		OnStart: func(ctx context.Context) error {
			return a.startDatabase(ctx, migrate)
		},
		OnStop: func(ctx context.Context) error {
			return a.db.Close()
		},
	})
	if cfg.RedisHost != "" {
		a.runner.Add(startup.Func{
			Name:    "redis",
			OnStart: a.startRedis,
			OnStop: func(ctx context.Context) error {
				return a.redis.Close()
			},
		})
	}
	if cfg.GraphDBHost != "" {
		a.runner.Add(startup.Func{
			Name:    "graph",
			OnStart: a.startGraph,
			OnStop: func(ctx context.Context) error {
				return a.graph.Close(ctx)
			},
		})
	}
	if cfg.KafkaProducerEnabled {
		a.runner.Add(startup.Func{
			Name: "kafka-producer",
			OnStart: func(ctx context.Context) error {
				a.producer = kafka.NewProducer(kafka.ProducerConfig{
					Brokers:      cfg.KafkaBrokers,
					Topic:        cfg.KafkaOutputTopic,
					BatchSize:    cfg.KafkaBatchSize,
					BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
					RequiredAcks: cfg.KafkaRequiredAcks,
					Compression:  cfg.KafkaCompression,
				}, logger)
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return a.producer.Close()
			},
		})
	}

	if err := a.runner.Start(ctx); err != nil {
		_ = a.runner.Stop(context.Background())
		return nil, err
	}

	a.wire()
	return a, nil
}

func (a *app) Close(ctx context.Context) error {
	return a.runner.Stop(ctx)
}

func (a *app) startTracing(ctx context.Context) error {
	exporter, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
		Endpoint: a.cfg.OtelEndpoint,
		Protocol: a.cfg.OtelProtocol,
		Insecure: a.cfg.OtelInsecure,
	})
	if err != nil {
		return fmt.Errorf("create otlp exporter: %w", err)
	}
	a.shutdownTracing = tracing.Setup(a.cfg.AppName, exporter)
	return nil
}

func (a *app) startDatabase(ctx context.Context, migrate bool) error {
	db, err := database.Open(ctx, database.ConnectionConfig{
		Driver:          a.cfg.DatabaseDriver,
		Host:            a.cfg.DatabaseHost,
		Port:            a.cfg.DatabasePort,
		User:            a.cfg.DatabaseUserName,
		Password:        a.cfg.DatabasePassword,
		Name:            a.cfg.DatabaseName,
		SSLMode:         a.cfg.DatabaseSSLMode,
		MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
	}, a.logger)
	if err != nil {
		return err
	}
	a.db = db
	a.checker.Register("postgres", true, db.PingContext)

	if !migrate {
		return nil
	}
	return a.migrator(false).MigrateDB(db, a.cfg.DatabaseName)
}

func (a *app) migrator(down bool) *database.MigrationService {
	return database.NewMigrationService(a.logger, &database.MigrationConfig{
		MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
		Version:             uint(a.cfg.DatabaseMigrationVersion),
		Force:               a.cfg.DatabaseMigrationForce,
		Down:                down,
	})
}

func (a *app) startRedis(ctx context.Context) error {
	client, err := cloverredis.NewClient(ctx, cloverredis.Config{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	}, a.logger)
	if err != nil {
		return err
	}
	a.redis = client
	a.checker.Register("redis", false, client.Ping)
	return nil
}

func (a *app) startGraph(ctx context.Context) error {
	client, err := graph.NewClient(graph.Config{
		Host:     a.cfg.GraphDBHost,
		Port:     a.cfg.GraphDBPort,
		Username: a.cfg.GraphDBUser,
		Password: a.cfg.GraphDBPassword,
	}, a.logger)
	if err != nil {
		return err
	}
	if err := client.Ping(ctx); err != nil {
		_ = client.Close(ctx)
		return fmt.Errorf("graph database unreachable: %w", err)
	}
	a.graph = client
	a.checker.Register("graph", false, client.Ping)
	return nil
}

// wire builds the resolution and identity services over the open connections.
func (a *app) wire() {
	logger := a.logger

	sources := sourcerecord.NewRepository(a.db, logger, sourceTables(a.cfg.Tables()))
	runs := resolutionrun.NewRepository(a.db, logger)
	candidates := resolutioncandidate.NewRepository(a.db, logger)
	edges := graphedge.NewRepository(a.db, logger)

	recordLoader := loader.NewLoader(sources, logger, loader.Config{
		Sources:     models.Sources,
		Concurrency: a.cfg.SourceLoadConcurrency,
	})

	mat := materializer.New(graphnode.NewRepository(a.db, logger), edges, identitylink.NewRepository(a.db, logger), logger)
	if a.graph != nil {
		projector := graph.NewProjector(a.graph, logger)
		if err := projector.EnsureIndexes(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to create graph indexes")
		}
		mat = mat.WithProjector(projector)
	}

	var cache identity.Cache
	if a.redis != nil {
		cache = cloverredis.NewJSONCache(a.redis, cacheKeyPrefix, a.cfg.SummaryCacheTTL)
	}
	a.identity = identity.NewService(recordLoader, merging.NewMerger(edges, a.cfg.Priority(), logger), cache, logger).
		WithRowCounter(sources)

	deps := resolution.Dependencies{
		Loader:       recordLoader,
		Matcher:      matching.NewEngine(logger, matching.Config{CommonNameThreshold: a.cfg.CommonNameThreshold}),
		Runs:         runs,
		Candidates:   candidates,
		Materializer: mat,
		Transactor:   a.db,
		Cache:        a.identity,
	}
	if a.redis != nil {
		deps.Locker = cloverredis.NewLocker(a.redis, lockPrefix, a.cfg.LockTTL, a.cfg.LockWait)
	}
	if a.producer != nil {
		deps.Notifier = events.NewEmitter(a.producer, logger)
	}

	a.orchestrator = resolution.NewOrchestrator(deps, logger, resolution.Config{
		ChunkSize:          a.cfg.CandidateChunkSize,
		AutoApplyThreshold: a.cfg.AutoApplyThreshold,
	})
}

// sourceTables overlays configured table names onto the bundled layout. Optional
// columns are only assumed for tables that keep their default name.
func sourceTables(names map[models.Source]string) map[models.Source]sourcerecord.Table {
	defaults := sourcerecord.DefaultTables()
	tables := make(map[models.Source]sourcerecord.Table, len(names))
	for source, name := range names {
		if name == "" {
			continue
		}
		table, ok := defaults[source]
		if !ok || table.Name != name {
			table = sourcerecord.Table{Name: name}
		}
		tables[source] = table
	}
	return tables
}
