// photos.go — обработчики /api/photos: список, добавление, изменение, удаление.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/gallery/internal/api/errors"
	"github.com/bigkaa/gallery/internal/domain/model"
	"github.com/bigkaa/gallery/internal/service"
	"github.com/bigkaa/gallery/internal/storage/recordstore"
)

// maxRequestBody — ограничение тела JSON-запроса.
const maxRequestBody = 1 << 20

// Ingester добавляет фотографию по URL.
type Ingester interface {
	AddPhoto(ctx context.Context, url string, tags, topics []string) (*model.Photo, error)
}

// PhotoManager — операции над существующими фотографиями.
type PhotoManager interface {
	List() (model.Gallery, error)
	Update(id string, tags, topics []string) error
	Delete(id string) error
}

// PhotosHandler — обработчик /api/photos.
type PhotosHandler struct {
	ingest Ingester
	photos PhotoManager
	logger *slog.Logger
}

// NewPhotosHandler создаёт обработчик фотографий.
func NewPhotosHandler(ingest Ingester, photos PhotoManager, logger *slog.Logger) *PhotosHandler {
	return &PhotosHandler{
		ingest: ingest,
		photos: photos,
		logger: logger.With(slog.String("component", "photos_handler")),
	}
}

type addPhotoRequest struct {
	Photo struct {
		Src    string   `json:"src"`
		Tags   []string `json:"tags"`
		Topics []string `json:"topics"`
	} `json:"photo"`
}

type updatePhotoRequest struct {
	Photo struct {
		Hash   string   `json:"hash"`
		Tags   []string `json:"tags"`
		Topics []string `json:"topics"`
	} `json:"photo"`
}

type photoResponse struct {
	Photo model.PhotoView `json:"photo"`
}

// List обрабатывает GET /api/photos.
func (h *PhotosHandler) List(w http.ResponseWriter, _ *http.Request) {
	gallery, err := h.photos.List()
	if err != nil {
		h.logger.Error("Ошибка чтения галереи", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Could not read the gallery")
		return
	}
	writeJSON(w, http.StatusOK, gallery)
}

// Add обрабатывает POST /api/photos.
// Любая ошибка добавления — 500 с сообщением для пользователя.
func (h *PhotosHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addPhotoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.InternalError(w, "Invalid request body")
		return
	}

	photo, err := h.ingest.AddPhoto(r.Context(), req.Photo.Src, req.Photo.Tags, req.Photo.Topics)
	if err != nil {
		var ie *service.IngestError
		if errors.As(err, &ie) {
			apierrors.InternalError(w, ie.Message)
			return
		}
		h.logger.Error("Ошибка добавления фотографии", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Could not store the photo")
		return
	}

	writeJSON(w, http.StatusOK, photoResponse{Photo: photo.View()})
}

// Update обрабатывает PUT /api/photos. Меняются только tags и topics;
// отсутствующее в теле поле остаётся прежним, [] очищает его.
func (h *PhotosHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updatePhotoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.BadRequest(w, "Invalid request body")
		return
	}
	if req.Photo.Hash == "" {
		apierrors.BadRequest(w, "Photo hash is required")
		return
	}

	if err := h.photos.Update(req.Photo.Hash, req.Photo.Tags, req.Photo.Topics); err != nil {
		if errors.Is(err, recordstore.ErrNotFound) {
			apierrors.NotFound(w, "Photo not found")
			return
		}
		h.logger.Error("Ошибка изменения фотографии",
			slog.String("photo_id", req.Photo.Hash),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Could not update the photo")
		return
	}

	writeJSON(w, http.StatusOK, struct{}{})
}

// Delete обрабатывает DELETE /api/photos/{hash}. Неизвестный hash — тоже 200.
func (h *PhotosHandler) Delete(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")

	if err := h.photos.Delete(hash); err != nil {
		h.logger.Error("Ошибка удаления фотографии",
			slog.String("photo_id", hash),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Could not delete the photo")
		return
	}

	writeJSON(w, http.StatusOK, struct{}{})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
