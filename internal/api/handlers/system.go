// system.go — обработчик GET /api/info (информация об экземпляре галереи).
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/gallery/internal/api/errors"
	"github.com/bigkaa/gallery/internal/config"
)

// UsageReporter — суммарный размер сохранённых изображений.
type UsageReporter interface {
	Usage() (int64, error)
}

// DiskUsageFunc возвращает ёмкость файловой системы с данными.
type DiskUsageFunc func() (total, used, available int64, err error)

// SystemHandler — обработчик системных endpoints.
type SystemHandler struct {
	env       string
	records   PhotoLister
	blobs     UsageReporter
	diskUsage DiskUsageFunc
	logger    *slog.Logger
}

// NewSystemHandler создаёт обработчик системных endpoints.
// Если diskUsage равен nil, поля disk_* не заполняются.
func NewSystemHandler(env string, records PhotoLister, blobs UsageReporter, diskUsage DiskUsageFunc, logger *slog.Logger) *SystemHandler {
	return &SystemHandler{
		env:       env,
		records:   records,
		blobs:     blobs,
		diskUsage: diskUsage,
		logger:    logger.With(slog.String("component", "system_handler")),
	}
}

type infoResponse struct {
	Version       string `json:"version"`
	Env           string `json:"env"`
	Photos        int    `json:"photos"`
	PhotoBytes    int64  `json:"photo_bytes"`
	DiskTotal     int64  `json:"disk_total,omitempty"`
	DiskUsed      int64  `json:"disk_used,omitempty"`
	DiskAvailable int64  `json:"disk_available,omitempty"`
}

// GetInfo обрабатывает GET /api/info.
func (h *SystemHandler) GetInfo(w http.ResponseWriter, _ *http.Request) {
	resp := infoResponse{
		Version: config.Version,
		Env:     h.env,
	}

	photos, err := h.records.List()
	if err != nil {
		h.logger.Error("Ошибка чтения таблицы записей", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Could not read the gallery")
		return
	}
	resp.Photos = len(photos)

	if resp.PhotoBytes, err = h.blobs.Usage(); err != nil {
		h.logger.Warn("Ошибка подсчёта размера изображений", slog.String("error", err.Error()))
	}

	if h.diskUsage != nil {
		total, used, available, err := h.diskUsage()
		if err != nil {
			h.logger.Warn("Ошибка получения ёмкости диска", slog.String("error", err.Error()))
		} else {
			resp.DiskTotal, resp.DiskUsed, resp.DiskAvailable = total, used, available
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
