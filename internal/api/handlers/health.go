// health.go — обработчики health endpoints для проб оркестратора.
package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bigkaa/gallery/internal/config"
	"github.com/bigkaa/gallery/internal/domain/model"
)

const (
	statusOK   = "ok"
	statusFail = "fail"
)

// PhotoLister — чтение таблицы записей (проверка готовности, /api/info).
type PhotoLister interface {
	List() ([]*model.Photo, error)
}

// HealthHandler реализует /health/live и /health/ready.
type HealthHandler struct {
	version  string
	photoDir string
	walDir   string
	records  PhotoLister
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(photoDir, walDir string, records PhotoLister) *HealthHandler {
	return &HealthHandler{
		version:  config.Version,
		photoDir: photoDir,
		walDir:   walDir,
		records:  records,
	}
}

// HealthLive обрабатывает GET /health/live. Зависимости не проверяет.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    statusOK,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "gallery",
	})
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет: директорию изображений, таблицу записей, директорию WAL.
// Недоступный WAL даёт degraded без 503: чтение галереи продолжает работать.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	overall := statusOK
	httpStatus := http.StatusOK

	photosCheck := checkWritable(h.photoDir, "Директория изображений недоступна для записи")
	recordsCheck := h.checkRecords()
	walCheck := checkWritable(h.walDir, "Директория WAL недоступна для записи")

	if photosCheck["status"] != statusOK || recordsCheck["status"] != statusOK {
		overall = statusFail
		httpStatus = http.StatusServiceUnavailable
	} else if walCheck["status"] != statusOK {
		overall = "degraded"
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    overall,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "gallery",
		"checks": map[string]any{
			"photos":  photosCheck,
			"records": recordsCheck,
			"wal":     walCheck,
		},
	})
}

func (h *HealthHandler) checkRecords() map[string]any {
	photos, err := h.records.List()
	if err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Таблица записей недоступна: " + err.Error(),
		}
	}
	return map[string]any{
		"status": statusOK,
		"photos": len(photos),
	}
}

// checkWritable проверяет запись в директорию через пробный файл.
func checkWritable(dir, failMessage string) map[string]any {
	testFile := filepath.Join(dir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": failMessage + ": " + err.Error(),
		}
	}
	_ = os.Remove(testFile)
	return map[string]any{"status": statusOK}
}
