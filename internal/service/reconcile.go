// reconcile.go — фоновая сверка файлов изображений с таблицей записей.
//
// Обнаруживает проблемы:
//   - orphaned_blob: файл изображения без записи (например, после падения
//     между сохранением файла и вставкой записи). Удаляется, если старше
//     порога и не участвует в незавершённой загрузке.
//   - missing_blob: запись без файла изображения
//   - foreign_file: файл, имя которого не похоже на <id>.<ext>
//
// Запускается как горутина с периодическим тикером (GALLERY_RECONCILE_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/gallery/internal/identity"
	"github.com/bigkaa/gallery/internal/storage/photostore"
	"github.com/bigkaa/gallery/internal/storage/recordstore"
	"github.com/bigkaa/gallery/internal/storage/wal"
)

var (
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gallery_reconcile_runs_total",
		Help: "Общее количество запусков сверки",
	})

	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gallery_reconcile_issues_total",
		Help: "Общее количество проблем, обнаруженных сверкой",
	}, []string{"type"})

	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gallery_reconcile_duration_seconds",
		Help:    "Длительность сверки в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})
)

// walRetention — сколько хранить завершённые записи WAL.
const walRetention = 24 * time.Hour

// Типы проблем сверки.
const (
	IssueOrphanedBlob = "orphaned_blob"
	IssueMissingBlob  = "missing_blob"
	IssueForeignFile  = "foreign_file"
)

// ReconcileIssue — проблема, найденная сверкой.
type ReconcileIssue struct {
	Type        string `json:"type"`
	Path        string `json:"path"`
	PhotoID     string `json:"photo_id,omitempty"`
	Description string `json:"description"`
	// Removed — файл удалён в ходе сверки
	Removed bool `json:"removed,omitempty"`
}

// ReconcileSummary — количество проблем по типам.
type ReconcileSummary struct {
	OrphanedBlobs int `json:"orphaned_blobs"`
	MissingBlobs  int `json:"missing_blobs"`
	ForeignFiles  int `json:"foreign_files"`
	Removed       int `json:"removed"`
	Ok            int `json:"ok"`
}

// ReconcileReport — результат одного запуска сверки.
type ReconcileReport struct {
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    time.Time        `json:"completed_at"`
	BlobsChecked   int              `json:"blobs_checked"`
	RecordsChecked int              `json:"records_checked"`
	Issues         []ReconcileIssue `json:"issues"`
	Summary        ReconcileSummary `json:"summary"`
	// Error — сверка прервана (таблица или директория недоступны)
	Error string `json:"error,omitempty"`
}

// ReconcileService — сервис фоновой сверки хранилища.
type ReconcileService struct {
	records   *recordstore.Store
	blobs     *photostore.Store
	walEngine *wal.WAL
	interval  time.Duration
	grace     time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewReconcileService создаёт сервис сверки.
func NewReconcileService(
	records *recordstore.Store,
	blobs *photostore.Store,
	walEngine *wal.WAL,
	interval time.Duration,
	grace time.Duration,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		records:   records,
		blobs:     blobs,
		walEngine: walEngine,
		interval:  interval,
		grace:     grace,
		logger:    logger.With(slog.String("component", "reconcile")),
		now:       time.Now,
	}
}

// Start запускает фоновую горутину сверки. При нулевом интервале не делает ничего.
func (rs *ReconcileService) Start(ctx context.Context) {
	if rs.interval <= 0 {
		rs.logger.Info("Фоновая сверка отключена")
		return
	}

	rsCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel
	rs.done = make(chan struct{})

	go rs.run(rsCtx)

	rs.logger.Info("Сверка запущена",
		slog.String("interval", rs.interval.String()),
	)
}

// Stop останавливает фоновую сверку и ждёт выхода горутины.
func (rs *ReconcileService) Stop() {
	if rs.cancel == nil {
		return
	}
	rs.cancel()
	<-rs.done
	rs.logger.Info("Сверка остановлена")
}

// IsInProgress возвращает true, если сверка выполняется.
func (rs *ReconcileService) IsInProgress() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.inProcess
}

func (rs *ReconcileService) run(ctx context.Context) {
	defer close(rs.done)

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rs.RunOnce()
		}
	}
}

// RunOnce выполняет один цикл сверки.
// Если сверка уже выполняется, возвращает nil, true.
func (rs *ReconcileService) RunOnce() (*ReconcileReport, bool) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		rs.logger.Warn("Сверка уже выполняется, пропуск")
		return nil, true
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	report := &ReconcileReport{
		StartedAt: rs.now().UTC(),
		Issues:    []ReconcileIssue{},
	}
	rs.logger.Info("Сверка начата")

	if err := rs.reconcile(report); err != nil {
		report.Error = err.Error()
		rs.logger.Error("Сверка прервана", slog.String("error", err.Error()))
	}

	if _, err := rs.walEngine.Cleanup(walRetention); err != nil {
		rs.logger.Warn("Ошибка очистки WAL", slog.String("error", err.Error()))
	}

	report.CompletedAt = rs.now().UTC()
	duration := report.CompletedAt.Sub(report.StartedAt)

	for _, issue := range report.Issues {
		switch issue.Type {
		case IssueOrphanedBlob:
			report.Summary.OrphanedBlobs++
		case IssueMissingBlob:
			report.Summary.MissingBlobs++
		case IssueForeignFile:
			report.Summary.ForeignFiles++
		}
		if issue.Removed {
			report.Summary.Removed++
		}
		reconcileIssuesTotal.WithLabelValues(issue.Type).Inc()
	}
	report.Summary.Ok = max(report.RecordsChecked-report.Summary.MissingBlobs, 0)

	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(duration.Seconds())

	rs.logger.Info("Сверка завершена",
		slog.Int("blobs_checked", report.BlobsChecked),
		slog.Int("records_checked", report.RecordsChecked),
		slog.Int("issues", len(report.Issues)),
		slog.Int("removed", report.Summary.Removed),
		slog.Duration("duration", duration),
	)

	return report, false
}

// reconcile сравнивает содержимое директории изображений с таблицей записей.
func (rs *ReconcileService) reconcile(report *ReconcileReport) error {
	// Файлы незавершённых загрузок не трогаем: запись может появиться в любой момент
	pending, err := rs.walEngine.Pending()
	if err != nil {
		return err
	}
	inflight := make(map[string]bool, len(pending))
	for _, e := range pending {
		inflight[e.Blob] = true
	}

	blobs, err := rs.blobs.List()
	if err != nil {
		return err
	}
	photos, err := rs.records.List()
	if err != nil {
		return err
	}
	report.BlobsChecked = len(blobs)
	report.RecordsChecked = len(photos)

	known := make(map[string]string, len(photos))
	for _, p := range photos {
		known[p.FileName()] = p.ID
	}

	onDisk := make(map[string]bool, len(blobs))
	for _, b := range blobs {
		onDisk[b.Name] = true
		if _, ok := known[b.Name]; ok {
			continue
		}

		id, _, ok := photostore.SplitName(b.Name)
		if !ok || !identity.Valid(id) {
			report.Issues = append(report.Issues, ReconcileIssue{
				Type:        IssueForeignFile,
				Path:        b.Name,
				Description: "Файл в директории изображений не похож на <id>.<ext>",
			})
			continue
		}

		issue := ReconcileIssue{
			Type:        IssueOrphanedBlob,
			Path:        b.Name,
			PhotoID:     id,
			Description: "Файл изображения без записи",
		}
		if !inflight[b.Name] && rs.now().Sub(b.ModTime) > rs.grace {
			if err := rs.blobs.DeleteName(b.Name); err != nil {
				rs.logger.Warn("Не удалось удалить файл-сироту",
					slog.String("blob", b.Name),
					slog.String("error", err.Error()),
				)
			} else {
				issue.Removed = true
			}
		}
		report.Issues = append(report.Issues, issue)
	}

	for _, p := range photos {
		if !onDisk[p.FileName()] {
			report.Issues = append(report.Issues, ReconcileIssue{
				Type:        IssueMissingBlob,
				Path:        p.FileName(),
				PhotoID:     p.ID,
				Description: "Запись без файла изображения",
			})
		}
	}

	return nil
}
