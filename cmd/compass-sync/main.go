package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"compass_sync/internal/config"
	"compass_sync/internal/fetcher"
	"compass_sync/internal/logger"
	"compass_sync/internal/notify"
	"compass_sync/internal/queue"
	"compass_sync/internal/repository"
	"compass_sync/internal/server"
	"compass_sync/internal/storage"
	"compass_sync/internal/syncer"
	"compass_sync/internal/worker"
)

func main() {
	logger.Init()
	defer logger.Log.Info("Application stopped")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Загрузка конфигурации
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Log.Fatalf("Config load error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Log.Fatalf("Config validation error: %v", err)
	}

	// Хранилище записей и содержимого вложений
	store, err := storage.Open(ctx, storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: time.Duration(cfg.Storage.BusyTimeoutMS) * time.Millisecond,
	})
	if err != nil {
		logger.Log.Fatalf("Storage open error: %v", err)
	}
	defer store.Close()

	var blobs storage.BlobStore = store
	if cfg.Blobs.Driver == "minio" {
		blobs, err = storage.OpenMinio(ctx, storage.MinioConfig{
			Endpoint:  cfg.Blobs.Endpoint,
			AccessKey: cfg.Blobs.AccessKey,
			SecretKey: cfg.Blobs.SecretKey,
			Bucket:    cfg.Blobs.Bucket,
			UseSSL:    cfg.Blobs.UseSSL,
		})
		if err != nil {
			logger.Log.Fatalf("MinIO open error: %v", err)
		}
	}

	news := repository.NewNewsItems(store)
	messages := repository.NewMessages(store)
	attachments := repository.NewAttachments(store, blobs)

	client, err := fetcher.NewClient(cfg.Compass)
	if err != nil {
		logger.Log.Fatalf("Compass client error: %v", err)
	}

	// Уведомления уходят в RabbitMQ, если он настроен, иначе в stdout (логи тогда в stderr)
	var publisher notify.Publisher
	if cfg.RabbitMQ.URL != "" {
		producer, err := queue.NewProducer(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
		if err != nil {
			logger.Log.Fatalf("RabbitMQ producer error: %v", err)
		}
		defer producer.Close()
		publisher = producer
	} else {
		logger.SetOutput(os.Stderr)
		publisher = notify.NewWriterPublisher(os.Stdout)
	}

	wrk := worker.NewWorker(
		syncer.New(client, messages, news, attachments),
		notify.NewComposer(cfg.Notify.Sender, cfg.Notify.Recipients, news),
		publisher,
	)

	// Без расписания выполняется один проход
	if cfg.Schedule == "" {
		if _, err := wrk.RunPass(ctx); err != nil {
			logger.Log.Errorf("Pass failed: %v", err)
			store.Close()
			os.Exit(1)
		}
		return
	}

	var httpServer *http.Server
	if cfg.HTTPAddr != "" {
		srv := server.NewServer(news, messages, attachments, store)
		httpServer = &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Handler()}
		go func() {
			logger.Log.Infof("Starting HTTP server on %s", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logger.Log.Fatalf("Server error: %v", err)
			}
		}()
	}

	// Периодический опрос до сигнала завершения
	err = fetcher.StartPolling(ctx, cfg.Schedule, func(ctx context.Context) {
		if _, err := wrk.RunPass(ctx); err != nil {
			logger.Log.Errorf("Pass failed: %v", err)
		}
	})
	if err != nil {
		logger.Log.Errorf("Poller error: %v", err)
	}

	logger.Log.Info("Shutting down...")
	if httpServer != nil {
		ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := httpServer.Shutdown(ctxShutdown); err != nil {
			logger.Log.Errorf("Forced shutdown: %v", err)
		}
	}
}
