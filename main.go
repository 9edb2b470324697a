package main

import (
	"context"
	"expvar"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"deployhook/internal"
	"deployhook/pkg/api"
	"deployhook/pkg/dispatch"
	"deployhook/pkg/gitsync"
	"deployhook/pkg/notify"
	"deployhook/pkg/storage"
	"deployhook/pkg/storage/journal"
	"deployhook/pkg/worker"
	"deployhook/webhook"

	"github.com/ThreeDotsLabs/watermill/message"
)

func main() {
	logger := internal.NewLogger("server")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	config, err := internal.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	filter, err := internal.NewFilterEngine(config.Filters, logger)
	if err != nil {
		logger.Fatalf("compile filters: %v", err)
	}

	publisher, err := internal.NewPublisher(config.Watermill)
	if err != nil {
		logger.Fatalf("publisher: %v", err)
	}
	defer publisher.Close()

	syncLogger := internal.NewLogger("gitsync")
	engine := gitsync.NewEngine(syncLogger.Printf)

	dispatcher, err := dispatch.New(dispatch.Config{
		Token:      config.Git.Token,
		DeployRoot: config.Git.DeployRoot,
		Engine:     engine,
		Logger:     internal.NewLogger("dispatch"),
	})
	if err != nil {
		logger.Fatalf("dispatcher: %v", err)
	}
	registerNotifiers(dispatcher, config, logger)

	var store storage.Store
	if config.Storage.Enabled {
		store, err = journal.Open(journal.Config{
			Driver:      config.Storage.Driver,
			DSN:         config.Storage.DSN,
			Table:       config.Storage.Table,
			AutoMigrate: config.Storage.AutoMigrate,
		})
		if err != nil {
			logger.Fatalf("journal: %v", err)
		}
		defer store.Close()
	}

	sub, err := deliverySubscriber(publisher, config.Watermill)
	if err != nil {
		logger.Fatalf("subscriber: %v", err)
	}

	consumer, err := worker.New(worker.Config{
		Subscriber:  sub,
		Topic:       config.Git.Topic,
		Concurrency: config.Git.Concurrency,
		Dispatcher:  dispatcher,
		Filter:      filter,
		Journal:     store,
		Logger:      internal.NewLogger("worker"),
		SyncTimeout: time.Duration(config.Git.SyncTimeoutMS) * time.Millisecond,
	})
	if err != nil {
		logger.Fatalf("worker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := consumer.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("worker stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()

	if config.Providers.GitHub.Enabled {
		ghHandler, err := webhook.NewGitHubHandler(
			config.Providers.GitHub.Secret,
			config.Git.Topic,
			publisher,
			logger,
		)
		if err != nil {
			logger.Fatalf("github handler: %v", err)
		}
		mux.Handle(config.Providers.GitHub.Path, ghHandler)
		logger.Printf("github webhook enabled on %s", config.Providers.GitHub.Path)
	}

	if config.Providers.GitLab.Enabled {
		glHandler, err := webhook.NewGitLabHandler(
			config.Providers.GitLab.Secret,
			config.Git.Topic,
			publisher,
			logger,
		)
		if err != nil {
			logger.Fatalf("gitlab handler: %v", err)
		}
		mux.Handle(config.Providers.GitLab.Path, glHandler)
		logger.Printf("gitlab webhook enabled on %s", config.Providers.GitLab.Path)
	}

	if config.Providers.Bitbucket.Enabled {
		bbHandler, err := webhook.NewBitbucketHandler(
			config.Providers.Bitbucket.Secret,
			config.Git.Topic,
			publisher,
			logger,
		)
		if err != nil {
			logger.Fatalf("bitbucket handler: %v", err)
		}
		mux.Handle(config.Providers.Bitbucket.Path, bbHandler)
		logger.Printf("bitbucket webhook enabled on %s", config.Providers.Bitbucket.Path)
	}

	if config.Server.MetricsEnabled {
		mux.Handle(config.Server.MetricsPath, expvar.Handler())
	}

	if store != nil {
		mux.Handle("/api/syncs", &api.SyncRecordsHandler{Store: store, Logger: logger})
	}

	var handler http.Handler = mux
	if config.Server.MaxBodyBytes > 0 {
		handler = maxBodyHandler(handler, config.Server.MaxBodyBytes)
	}
	if config.Server.RateLimitRPS > 0 {
		handler = internal.NewRateLimitHandler(handler, config.Server.RateLimitRPS, config.Server.RateLimitBurst, 10*time.Minute)
	}

	addr := ":" + strconv.Itoa(config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       time.Duration(config.Server.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout:      time.Duration(config.Server.WriteTimeoutMS) * time.Millisecond,
		IdleTimeout:       time.Duration(config.Server.IdleTimeoutMS) * time.Millisecond,
		ReadHeaderTimeout: time.Duration(config.Server.ReadHeaderMS) * time.Millisecond,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Printf("listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen: %v", err)
		}
	}()

	<-shutdown
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
	if err := consumer.Close(); err != nil {
		logger.Printf("worker close: %v", err)
	}
}

// registerNotifiers wires commit-status listeners for every provider that
// has a token, and the deployment hook when configured.
func registerNotifiers(dispatcher *dispatch.Dispatcher, config internal.Config, logger *log.Logger) {
	notifyLogger := internal.NewLogger("notify")

	if token := config.Providers.GitHub.Token; token != "" {
		gh, err := notify.NewGitHubNotifier(token, config.Providers.GitHub.BaseURL)
		if err != nil {
			logger.Fatalf("github notifier: %v", err)
		}
		dispatcher.AddListener(notify.Listener(gh, notifyLogger))
		if config.Git.CreateDeploys {
			dispatcher.SetDeploy(func(ctx context.Context, task *gitsync.Task) {
				if err := gh.CreateDeployment(ctx, task); err != nil {
					notifyLogger.Printf("create deployment for %s failed: %v", task.Repo.FullName(), err)
				}
			})
		}
	}

	if token := config.Providers.GitLab.Token; token != "" {
		gl, err := notify.NewGitLabNotifier(token, config.Providers.GitLab.BaseURL)
		if err != nil {
			logger.Fatalf("gitlab notifier: %v", err)
		}
		dispatcher.AddListener(notify.Listener(gl, notifyLogger))
	}

	if token := config.Providers.Bitbucket.Token; token != "" {
		dispatcher.AddListener(notify.Listener(notify.NewBitbucketNotifier(token), notifyLogger))
	}
}

// deliverySubscriber prefers the in-process subscriber when the transport
// offers one, and otherwise builds a driver-specific subscriber.
func deliverySubscriber(publisher internal.Publisher, cfg internal.WatermillConfig) (message.Subscriber, error) {
	if provider, ok := publisher.(internal.SubscriberProvider); ok {
		if sub := provider.Subscriber(); sub != nil {
			return sub, nil
		}
	}
	return worker.BuildSubscriber(cfg)
}

func maxBodyHandler(next http.Handler, limit int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}
