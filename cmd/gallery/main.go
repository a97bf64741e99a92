// Точка входа галереи: HTTP API, хранение изображений и таблицы записей.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bigkaa/gallery/internal/api/handlers"
	"github.com/bigkaa/gallery/internal/config"
	"github.com/bigkaa/gallery/internal/fetcher"
	"github.com/bigkaa/gallery/internal/identity"
	"github.com/bigkaa/gallery/internal/server"
	"github.com/bigkaa/gallery/internal/service"
	"github.com/bigkaa/gallery/internal/storage/backup"
	"github.com/bigkaa/gallery/internal/storage/photostore"
	"github.com/bigkaa/gallery/internal/storage/recordstore"
	"github.com/bigkaa/gallery/internal/storage/wal"
	"github.com/bigkaa/gallery/internal/validator"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	logger := config.SetupLogger(cfg)
	logger.Info("Галерея запускается",
		slog.String("version", config.Version),
		slog.String("env", cfg.Env),
		slog.String("addr", cfg.Addr()),
		slog.String("data_dir", cfg.DataDir),
	)
	if cfg.Secret == config.DefaultSecret && cfg.Env == config.EnvProduction {
		logger.Warn("GALLERY_SECRET не задан, используется ключ по умолчанию")
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Галерея остановлена")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// --- Хранилища ---

	// 1. Таблица записей db.json
	records, err := recordstore.Open(cfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("инициализация таблицы записей: %w", err)
	}

	// 2. Хранилище изображений
	blobs, err := photostore.New(cfg.PhotoDir)
	if err != nil {
		return fmt.Errorf("инициализация хранилища изображений: %w", err)
	}

	// 3. WAL загрузок и разбор незавершённых транзакций
	walEngine, err := wal.New(cfg.WALDir, logger)
	if err != nil {
		return fmt.Errorf("инициализация WAL: %w", err)
	}
	if _, err := service.RecoverIngestions(walEngine, records, blobs, logger); err != nil {
		return fmt.Errorf("восстановление WAL: %w", err)
	}

	// 4. Резервные копии после вставок
	backups := backup.NewScheduler(backup.Options{
		Dir:    cfg.BackupDir,
		Env:    cfg.Env,
		Delay:  cfg.BackupDelay,
		Window: cfg.BackupWindow,
	}, records, logger)
	records.SetBackupScheduler(backups)

	// --- Сервисы ---

	ingestSvc := service.NewIngestService(
		identity.New(cfg.Secret),
		fetcher.New(fetcher.Options{
			Timeout:      cfg.FetchTimeout,
			MaxBytes:     cfg.MaxFileSize,
			AllowPrivate: cfg.AllowPrivateHosts,
		}, logger),
		validator.New(cfg.AllowedMIMETypes, cfg.MaxFileSize),
		blobs,
		records,
		walEngine,
		logger,
	)
	photoSvc := service.NewPhotoService(records, blobs, logger)

	ctx := context.Background()
	reconcileSvc := service.NewReconcileService(records, blobs, walEngine, cfg.ReconcileInterval, cfg.OrphanGrace, logger)
	reconcileSvc.Start(ctx)

	// --- HTTP ---

	apiHandler := handlers.NewAPIHandler(
		handlers.NewPhotosHandler(ingestSvc, photoSvc, logger),
		handlers.NewSystemHandler(cfg.Env, records, blobs, diskUsageFn(cfg.PhotoDir), logger),
		handlers.NewMaintenanceHandler(reconcileSvc),
		handlers.NewHealthHandler(cfg.PhotoDir, cfg.WALDir, records),
		handlers.NewStaticHandler(cfg.PhotoDir, cfg.ClientDir),
		cfg.RateLimit,
	)

	srvErr := server.New(cfg, logger, apiHandler).Run(ctx)

	// --- Остановка фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")
	reconcileSvc.Stop()

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := backups.Stop(stopCtx); err != nil {
		logger.Warn("Не все резервные копии записаны", slog.String("error", err.Error()))
	}

	return srvErr
}

// diskUsageFn возвращает функцию для получения информации об ёмкости диска.
func diskUsageFn(dir string) handlers.DiskUsageFunc {
	return func() (int64, int64, int64, error) {
		return getDiskUsage(dir)
	}
}
