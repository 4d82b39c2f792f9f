package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/spf13/pflag"

	"github.com/fluxcd/provisioner/pkg/bus"
	"github.com/fluxcd/provisioner/pkg/bus/nats"
	"github.com/fluxcd/provisioner/pkg/config"
	"github.com/fluxcd/provisioner/pkg/db"
	"github.com/fluxcd/provisioner/pkg/entity"
	"github.com/fluxcd/provisioner/pkg/eventlog"
	"github.com/fluxcd/provisioner/pkg/http/server"
	"github.com/fluxcd/provisioner/pkg/index"
	"github.com/fluxcd/provisioner/pkg/proxy"
	"github.com/fluxcd/provisioner/pkg/release"
	"github.com/fluxcd/provisioner/pkg/scheduler"
)

func main() {
	// Flag domain.
	fs := pflag.NewFlagSet("default", pflag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "DESCRIPTION\n")
		fmt.Fprintf(os.Stderr, "  provisioner installs, updates and deletes Helm releases through deployment proxies.\n")
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "FLAGS\n")
		fs.PrintDefaults()
	}
	flags := config.RegisterFlags(fs)
	fs.Parse(os.Args[1:])

	// Logger component.
	var logger log.Logger
	{
		logger = log.NewLogfmtLogger(os.Stderr)
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = log.With(logger, "caller", log.DefaultCaller)
	}

	cfg, err := flags.Config()
	if err != nil {
		logger.Log("stage", "config", "err", err)
		os.Exit(1)
	}

	tags := eventlog.DefaultTags
	owned := tags.Select(cfg.Shards)
	logger.Log("shards", fmt.Sprint(owned))

	// Event log, offsets and index; in memory, or in the database,
	// in which case we must fail if we can't reach it, because
	// everything depends on it.
	var (
		eventStore  eventlog.Store
		offsetStore eventlog.OffsetStore
		indexStore  index.Store
	)
	{
		inMemory, err := db.IsMemory(cfg.DatabaseSource)
		if err != nil {
			logger.Log("stage", "db init", "err", err)
			os.Exit(1)
		}
		if inMemory {
			mem := eventlog.NewMemoryStore(tags)
			eventStore, offsetStore = mem, mem
			indexStore = index.NewMemoryStore()
			logger.Log("db", "memory")
		} else {
			conn, err := db.Open(cfg.DatabaseSource)
			var applied int
			if err == nil {
				applied, err = db.Migrate(conn)
			}
			if err != nil {
				logger.Log("stage", "db init", "err", err)
				os.Exit(1)
			}
			logger.Log("migrations", "success", "applied", applied)
			defer conn.Close()
			sqlStore := eventlog.NewSQLStore(conn, tags)
			eventStore, offsetStore = sqlStore, sqlStore
			indexStore = index.NewSQLStore(conn)
		}
		eventStore = eventlog.InstrumentedStore(eventStore)
		indexStore = index.InstrumentedStore(indexStore)
	}

	registry := entity.NewRegistry(
		release.NewEntity(cfg.InstancePrefix),
		eventStore,
		cfg.PassivateAfter,
		log.With(logger, "component", "entities"),
	)
	defer registry.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	shutdown := make(chan struct{})
	shutdownWg := &sync.WaitGroup{}

	// Consumers of the log; the index feeds the scheduler, the
	// forwarder feeds the bus.
	consume := func(c *eventlog.Consumer) {
		shutdownWg.Add(1)
		go func() {
			defer shutdownWg.Done()
			ticker := time.NewTicker(cfg.ProjectionInterval)
			defer ticker.Stop()
			c.Consume(ctx, ticker.C)
		}()
	}
	consume(&eventlog.Consumer{
		Name:    index.ConsumerName,
		Tags:    owned,
		Log:     eventStore,
		Offsets: offsetStore,
		Handle:  (&index.Projector{Index: indexStore}).Handle,
		Logger:  log.With(logger, "component", "index"),
	})

	errc := make(chan error)

	// Message bus component.
	if cfg.NATSURL != "" {
		busLogger := log.With(logger, "component", "bus")
		messageBus, err := nats.NewMessageBus(cfg.NATSURL, nats.Subjects{
			Intents:     cfg.IntentSubject,
			Projections: cfg.ProjectionSubject,
			QueueGroup:  cfg.QueueGroup,
		}, busLogger)
		if err != nil {
			logger.Log("component", "bus", "err", err)
			os.Exit(1)
		}
		defer messageBus.Close()
		logger.Log("bus", cfg.NATSURL)

		consume(&eventlog.Consumer{
			Name:    bus.ForwarderName,
			Tags:    owned,
			Log:     eventStore,
			Offsets: offsetStore,
			Handle:  (&bus.Forwarder{Log: eventStore, Publisher: messageBus}).Handle,
			Logger:  busLogger,
		})

		done := make(chan error, 1)
		messageBus.Subscribe(ctx, registry, done)
		go func() {
			if err := <-done; err != nil && ctx.Err() == nil {
				errc <- fmt.Errorf("bus subscription: %s", err)
			}
		}()
	} else {
		logger.Log("bus", "none", "intents", "HTTP only")
	}

	// Scheduler component.
	{
		sched := &scheduler.Scheduler{
			Entities: registry,
			Index:    indexStore,
			Proxies: proxy.NewManager(cfg.ProxyTimeout, proxy.Credentials{
				Username: cfg.ProxyUsername,
				Password: cfg.ProxyPassword,
			}),
			Tags:            owned,
			InitialDelay:    cfg.SchedulerInitialDelay,
			ExecuteInterval: cfg.ExecuteInterval,
			MonitorInterval: cfg.MonitorInterval,
			Logger:          log.With(logger, "component", "scheduler"),
		}
		shutdownWg.Add(1)
		go sched.Loop(shutdown, shutdownWg)
	}

	// Mechanical components.
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	// HTTP transport component.
	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: server.NewHandler(registry, server.NewRouter()),
	}
	go func() {
		logger.Log("addr", cfg.Listen)
		errc <- srv.ListenAndServe()
	}()

	// Go!
	logger.Log("exiting", <-errc)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	close(shutdown)
	cancel()
	shutdownWg.Wait()
}
