// Точка входа Image Module — модуля управления изображениями объектов.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/arendadom/image-module/internal/api/handlers"
	"github.com/arendadom/image-module/internal/api/middleware"
	"github.com/arendadom/image-module/internal/config"
	"github.com/arendadom/image-module/internal/database"
	"github.com/arendadom/image-module/internal/repository"
	"github.com/arendadom/image-module/internal/server"
	"github.com/arendadom/image-module/internal/service"
	"github.com/arendadom/image-module/internal/session"
	"github.com/arendadom/image-module/internal/storage/blob"
	"github.com/arendadom/image-module/internal/storage/pathgen"
	"github.com/arendadom/image-module/internal/storage/variant"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Image Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("storage_backend", cfg.StorageBackend),
		slog.String("public_base_url", cfg.PublicBaseURL),
	)

	ctx := context.Background()

	// --- Инициализация компонентов ---

	// 1. База данных: миграции схемы и пул соединений
	if err := database.Migrate(ctx, cfg, logger); err != nil {
		logger.Error("Ошибка миграции схемы БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к БД", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 2. Бэкенд объектного хранилища
	var (
		backend        blob.Store
		storageChecker handlers.ReadinessChecker
	)
	switch cfg.StorageBackend {
	case config.BackendGCS:
		gcs, gcsErr := blob.NewGCSStore(ctx, cfg.GCSBucket, cfg.StorageTimeout)
		if gcsErr != nil {
			logger.Error("Ошибка инициализации GCS-хранилища",
				slog.String("bucket", cfg.GCSBucket),
				slog.String("error", gcsErr.Error()),
			)
			os.Exit(1)
		}
		backend = gcs
		storageChecker = gcs
	default:
		disk, diskErr := blob.NewDiskStore(cfg.DataDir)
		if diskErr != nil {
			logger.Error("Ошибка инициализации дискового хранилища",
				slog.String("data_dir", cfg.DataDir),
				slog.String("error", diskErr.Error()),
			)
			os.Exit(1)
		}
		backend = disk
		storageChecker = disk
	}

	store := blob.NewRetryStore(backend, cfg.StorageRetryMax, cfg.StorageRetryDelay, logger)

	// 3. Генератор путей и ключей
	paths := pathgen.New(cfg.PublicBaseURL)

	// 4. Реестр временных сессий
	registry := session.NewRegistry(cfg.SessionTTL, logger)

	// 5. Репозиторий метаданных
	repo := repository.NewImageRepository(pool)

	// 6. Сервисы
	processor := variant.New(cfg.MaxFileSize)
	uploadSvc := service.NewUploadService(processor, store, registry, paths, logger)
	migrateSvc := service.NewMigrationService(repo, store, registry, paths, cfg.MigrateConcurrency, logger)
	entityUploadSvc := service.NewEntityUploadService(uploadSvc, migrateSvc, logger)
	querySvc := service.NewQueryService(repo, store, paths, cfg.CacheSize, cfg.CacheTTL, logger)

	// 7. Фоновая очистка просроченных сессий
	sweepSvc := service.NewSweepService(registry, store, paths, cfg.SweepInterval, logger)
	sweepSvc.Start(ctx)

	// 8. Handlers и роутер
	tempHandler := handlers.NewTempHandler(registry, uploadSvc, paths, cfg.MaxFileSize, logger)
	imagesHandler := handlers.NewImagesHandler(migrateSvc, entityUploadSvc, querySvc, registry, paths, cfg.MaxFileSize, logger)
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), storageChecker, registry)

	router := handlers.NewRouter(
		tempHandler,
		imagesHandler,
		healthHandler,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)

	// 9. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, router)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// --- Graceful shutdown фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")
	sweepSvc.Stop()

	logger.Info("Image Module остановлен")
}
