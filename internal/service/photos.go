// photos.go — чтение, изменение и удаление фотографий.
package service

import (
	"fmt"
	"log/slog"

	"github.com/bigkaa/gallery/internal/domain/model"
	"github.com/bigkaa/gallery/internal/storage/photostore"
	"github.com/bigkaa/gallery/internal/storage/recordstore"
)

// PhotoService — операции над существующими фотографиями.
type PhotoService struct {
	records *recordstore.Store
	blobs   *photostore.Store
	logger  *slog.Logger
}

// NewPhotoService создаёт сервис фотографий.
func NewPhotoService(records *recordstore.Store, blobs *photostore.Store, logger *slog.Logger) *PhotoService {
	return &PhotoService{
		records: records,
		blobs:   blobs,
		logger:  logger.With(slog.String("component", "photo_service")),
	}
}

// List возвращает галерею: все фотографии и объединённые списки тем и тегов.
func (s *PhotoService) List() (model.Gallery, error) {
	photos, err := s.records.List()
	if err != nil {
		return model.Gallery{}, err
	}
	photosTotal.Set(float64(len(photos)))
	return model.NewGallery(photos), nil
}

// Update заменяет теги и темы фотографии. Не переданный (nil) список
// не меняется. Для неизвестного id возвращает recordstore.ErrNotFound.
func (s *PhotoService) Update(id string, tags, topics []string) error {
	if err := s.records.Update(id, normalizeIfSet(tags), normalizeIfSet(topics)); err != nil {
		return err
	}
	s.logger.Info("Фотография обновлена", slog.String("photo_id", id))
	return nil
}

// Delete удаляет запись и файл изображения. Неизвестный id — no-op.
// Сначала удаляется запись: при сбое на втором шаге остаётся файл-сирота,
// которого подберёт сверка.
func (s *PhotoService) Delete(id string) error {
	removed, err := s.records.Remove(id)
	if err != nil {
		return err
	}
	if removed == nil {
		return nil
	}

	if err := s.blobs.Delete(removed.ID, removed.Extension); err != nil {
		return fmt.Errorf("запись удалена, файл остался: %w", err)
	}

	photosTotal.Dec()
	s.logger.Info("Фотография удалена", slog.String("photo_id", id))
	return nil
}

// normalizeIfSet нормализует переданный список и сохраняет nil как "не передан".
func normalizeIfSet(labels []string) []string {
	if labels == nil {
		return nil
	}
	return model.NormalizeLabels(labels)
}
