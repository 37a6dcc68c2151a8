package main

import (
	"context"
	"flag"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gocql/gocql"
	"github.com/oklog/run"
	"github.com/peterbourgon/ff"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/version"
	rediscli "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/tarun-engg-dpm/offerings/pkg/cassandra"
	"github.com/tarun-engg-dpm/offerings/pkg/claims"
	"github.com/tarun-engg-dpm/offerings/pkg/configs"
	"github.com/tarun-engg-dpm/offerings/pkg/file"
	"github.com/tarun-engg-dpm/offerings/pkg/memory"
	"github.com/tarun-engg-dpm/offerings/pkg/redis"
	"github.com/tarun-engg-dpm/offerings/pkg/transport/http"
)

func main() {
	config := parseConfig()
	logger := createLogger(config)

	// metrics
	metrics := prometheus.NewRegistry()
	metrics.MustRegister(
		version.NewCollector("offerings"),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	catalog, err := file.NewCatalogService(config.OffersFile, logger)
	if err != nil {
		logger.Fatalf("error creating offer catalog: %v", err)
	}

	cancel := make(chan struct{})

	var g run.Group

	granter, err := createGranter(config, logger, &g, cancel)
	if err != nil {
		logger.Fatalf("could not create claim granter: %v", err)
	}

	ledger, err := createLedger(config, logger)
	if err != nil {
		logger.Fatalf("could not create grant ledger: %v", err)
	}

	claimsService := claims.NewService(catalog, granter, ledger, logger, metrics, time.Now, config.ResetHour)

	{
		claimsServer := http.New(
			claimsService,
			logger,
			metrics,
			http.WithListen(config.HttpAddr))

		g.Add(func() error {
			return claimsServer.Start()
		}, func(err error) {
			claimsServer.Stop(err)
		})
	}
	{
		mux := nethttp.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics, promhttp.HandlerOpts{}))
		debugServer := &nethttp.Server{Addr: config.DebugAddr, Handler: mux}

		g.Add(func() error {
			logger.Infof("debug server listening on %s", config.DebugAddr)
			return debugServer.ListenAndServe()
		}, func(error) {
			debugServer.Close()
		})
	}
	{
		g.Add(func() error {
			c := make(chan os.Signal, 1)
			signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
			sig := <-c
			return fmt.Errorf("received signal %s", sig)
		}, func(error) {
			close(cancel)
		})
	}

	logger.Info("exit ", g.Run())
}

func parseConfig() configs.Config {
	fs := flag.NewFlagSet("offerings", flag.ExitOnError)
	var (
		httpAddress       = fs.String("http-addr", ":8082", "http address for the claims api")
		debugAddress      = fs.String("debug-addr", ":8083", "debug address for metrics")
		datastore         = fs.String("datastore", "redis", "counter datastore (redis/memory)")
		redisAddress      = fs.String("redis-address", "", "redis address")
		redisDatabase     = fs.Int("redis-database", 0, "redis database")
		redisPassword     = fs.String("redis-password", "", "redis password")
		cassandraHost     = fs.String("cassandra-host", "", "cassandra host for the grant ledger (empty disables it)")
		cassandraKeyspace = fs.String("cassandra-keyspace", "svc_offerings", "cassandra keyspace")
		offersFile        = fs.String("offers-file", "./env/offers.yaml", "offers file")
		resetHour         = fs.Int("reset-hour", 1, "hour of day (local) at which claim counters expire")
		logLevel          = fs.String("log-level", "info", "log level (panic, fatal, error, warn, info, debug, trace)")
	)
	ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("OFFERINGS"))

	var config configs.Config
	{
		config.HttpAddr = *httpAddress
		config.DebugAddr = *debugAddress
		config.Datastore = *datastore
		config.Redis.Address = *redisAddress
		config.Redis.Database = *redisDatabase
		config.Redis.Password = *redisPassword
		config.Cassandra.Hosts = *cassandraHost
		config.Cassandra.Keyspace = *cassandraKeyspace
		config.OffersFile = *offersFile
		config.ResetHour = *resetHour
		config.LogLevel = *logLevel
	}

	return config
}

func createLogger(config configs.Config) *logrus.Logger {
	logger := logrus.StandardLogger()
	level, err := logrus.ParseLevel(config.LogLevel)
	if err != nil {
		level = logrus.ErrorLevel
	}

	logger.Infof("setting log level to %v", level)
	logger.SetLevel(level)

	return logger
}

func createGranter(config configs.Config, logger *logrus.Logger, g *run.Group, cancel chan struct{}) (claims.Granter, error) {
	switch config.Datastore {
	case "redis":
		redisClient := rediscli.NewClient(&rediscli.Options{
			Addr:     config.Redis.Address,
			DB:       config.Redis.Database,
			Password: config.Redis.Password,
		})

		if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
			return nil, fmt.Errorf("could not connect to redis : %w", err)
		}

		return redis.NewGranter(redisClient, logger), nil

	case "memory":
		store := memory.NewStore(logger, time.Now, 30*time.Second)
		g.Add(func() error {
			return store.Run(cancel)
		}, func(error) {})

		return claims.NewStoreGranter(store), nil

	default:
		return nil, fmt.Errorf("invalid datastore %s", config.Datastore)
	}
}

func createLedger(config configs.Config, logger *logrus.Logger) (claims.GrantLedger, error) {
	if config.Cassandra.Hosts == "" {
		return claims.NoopLedger{}, nil
	}

	cluster := gocql.NewCluster(config.Cassandra.Hosts)
	cluster.Keyspace = config.Cassandra.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("could not create cassandra session : %w", err)
	}

	return cassandra.NewLedger(logger, session), nil
}
