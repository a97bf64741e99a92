// Пакет service — бизнес-логика галереи.
// ingest.go — добавление фотографии по URL.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bigkaa/gallery/internal/domain/model"
	"github.com/bigkaa/gallery/internal/fetcher"
	"github.com/bigkaa/gallery/internal/identity"
	"github.com/bigkaa/gallery/internal/storage/photostore"
	"github.com/bigkaa/gallery/internal/storage/recordstore"
	"github.com/bigkaa/gallery/internal/storage/wal"
	"github.com/bigkaa/gallery/internal/validator"
)

// Коды ошибок добавления фотографии.
const (
	CodeFetchFailed          = "fetch_failed"
	CodeUnknownType          = "unknown_type"
	CodeUnsupportedType      = "unsupported_type"
	CodeTooLarge             = "too_large"
	CodeUnreadableDimensions = "unreadable_dimensions"
	CodeStorageFailed        = "storage_failed"
)

// Сообщения для пользователя. Клиент показывает их как есть.
var ingestMessages = map[string]string{
	CodeFetchFailed:          "That looks like a bad URL",
	CodeUnknownType:          "We cannot determine the type of file you've sent",
	CodeUnsupportedType:      "Looks like the file type is not supported",
	CodeTooLarge:             "File is too large",
	CodeUnreadableDimensions: "Cannot determine image dimensions",
	CodeStorageFailed:        "Could not store the photo",
}

// IngestError — ошибка добавления фотографии с сообщением для пользователя.
type IngestError struct {
	Code    string
	Message string
	Err     error
}

func (e *IngestError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

func newIngestError(code string, err error) *IngestError {
	return &IngestError{Code: code, Message: ingestMessages[code], Err: err}
}

// validationCode сопоставляет ошибку валидатора коду.
func validationCode(err error) string {
	switch {
	case errors.Is(err, validator.ErrUnknownType):
		return CodeUnknownType
	case errors.Is(err, validator.ErrUnsupportedType):
		return CodeUnsupportedType
	case errors.Is(err, validator.ErrTooLarge):
		return CodeTooLarge
	case errors.Is(err, validator.ErrUnreadableDimensions):
		return CodeUnreadableDimensions
	default:
		return CodeStorageFailed
	}
}

// ingestResult — результат одного выполнения, разделяемый между
// конкурентными вызовами с тем же идентификатором.
type ingestResult struct {
	photo   *model.Photo
	created bool
}

// IngestService — добавление фотографий по URL.
type IngestService struct {
	ids       *identity.Deriver
	fetcher   *fetcher.Fetcher
	validator *validator.Validator
	blobs     *photostore.Store
	records   *recordstore.Store
	walEngine *wal.WAL
	inflight  singleflight.Group
	logger    *slog.Logger
}

// NewIngestService создаёт сервис добавления фотографий.
func NewIngestService(
	ids *identity.Deriver,
	f *fetcher.Fetcher,
	v *validator.Validator,
	blobs *photostore.Store,
	records *recordstore.Store,
	walEngine *wal.WAL,
	logger *slog.Logger,
) *IngestService {
	return &IngestService{
		ids:       ids,
		fetcher:   f,
		validator: v,
		blobs:     blobs,
		records:   records,
		walEngine: walEngine,
		logger:    logger.With(slog.String("component", "ingest_service")),
	}
}

// AddPhoto добавляет фотографию по URL.
//
// Поток:
//  1. id = HMAC(url)
//  2. Запись уже есть — возвращается как есть (tags/topics вызова отбрасываются)
//  3. Fetch → Validate → WAL Begin → Persist → Insert → WAL Commit
//
// Вставка записи идёт последним шагом: при любой ошибке до неё файл удаляется
// и запись не появляется. Конкурентные вызовы с одним id выполняются один раз.
// Ошибка всегда *IngestError.
func (s *IngestService) AddPhoto(ctx context.Context, url string, tags, topics []string) (*model.Photo, error) {
	start := time.Now()
	id := s.ids.Derive(url)

	// Результат разделяется между ожидающими: отмена одного клиента
	// не должна обрывать загрузку для остальных. Время ограничено таймаутом Fetcher.
	shared := context.WithoutCancel(ctx)

	v, err, joined := s.inflight.Do(id, func() (any, error) {
		return s.ingest(shared, id, url, model.NormalizeLabels(tags), model.NormalizeLabels(topics))
	})
	ingestDurationSeconds.Observe(time.Since(start).Seconds())

	if err != nil {
		var ie *IngestError
		if !errors.As(err, &ie) {
			ie = newIngestError(CodeStorageFailed, err)
		}
		ingestTotal.WithLabelValues(ie.Code).Inc()
		return nil, ie
	}

	res := v.(*ingestResult)
	result := "duplicate"
	if res.created && !joined {
		result = "created"
	}
	ingestTotal.WithLabelValues(result).Inc()

	return res.photo.Clone(), nil
}

func (s *IngestService) ingest(ctx context.Context, id, url string, tags, topics []string) (*ingestResult, error) {
	existing, err := s.records.Find(id)
	if err == nil {
		s.logger.Debug("Фотография уже добавлена", slog.String("photo_id", id))
		return &ingestResult{photo: existing}, nil
	}
	if !errors.Is(err, recordstore.ErrNotFound) {
		return nil, newIngestError(CodeStorageFailed, err)
	}

	fetched, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, newIngestError(CodeFetchFailed, err)
	}
	defer fetched.Cleanup()

	info, err := s.validator.Validate(fetched.Path)
	if err != nil {
		s.logger.Info("Скачанный файл отклонён",
			slog.String("photo_id", id),
			slog.String("declared_type", fetched.DeclaredType),
			slog.String("error", err.Error()),
		)
		return nil, newIngestError(validationCode(err), err)
	}

	blob := model.FileName(id, info.Extension)
	entry, err := s.walEngine.Begin(wal.OpPhotoIngest, id, blob)
	if err != nil {
		return nil, newIngestError(CodeStorageFailed, err)
	}

	// rollback удаляет сохранённый файл и закрывает транзакцию
	rollback := func(cause error) *IngestError {
		if err := s.blobs.Delete(id, info.Extension); err != nil {
			s.logger.Error("Ошибка удаления файла при откате",
				slog.String("blob", blob),
				slog.String("error", err.Error()),
			)
		}
		if err := s.walEngine.Rollback(entry.TransactionID); err != nil {
			s.logger.Error("Ошибка отката WAL",
				slog.String("tx_id", entry.TransactionID),
				slog.String("error", err.Error()),
			)
		}
		s.logger.Error("Ошибка сохранения фотографии",
			slog.String("photo_id", id),
			slog.String("error", cause.Error()),
		)
		return newIngestError(CodeStorageFailed, cause)
	}

	if _, err := s.blobs.Persist(fetched.Path, id, info.Extension); err != nil {
		return nil, rollback(err)
	}

	photo := &model.Photo{
		ID:        id,
		SourceURL: url,
		Extension: info.Extension,
		Width:     info.Width,
		Height:    info.Height,
		Topics:    topics,
		Tags:      tags,
	}

	if err := s.records.Insert(photo); err != nil {
		if !errors.Is(err, recordstore.ErrAlreadyExists) {
			return nil, rollback(err)
		}
		// Запись появилась в обход этого процесса: побеждает существующая
		return s.adoptExisting(id, info.Extension, entry.TransactionID)
	}

	s.commit(entry.TransactionID)
	photosTotal.Inc()

	s.logger.Info("Фотография добавлена",
		slog.String("photo_id", id),
		slog.String("mime", info.MIME),
		slog.Int("width", info.Width),
		slog.Int("height", info.Height),
		slog.Int64("size", info.Size),
	)

	return &ingestResult{photo: photo, created: true}, nil
}

// adoptExisting возвращает запись, вставленную параллельно. Свой файл
// удаляется, если у существующей записи другое расширение.
//
// Сюда попадает только вставка в обход этого процесса (внешний писатель
// db.json): внутри процесса загрузки одного id сериализует singleflight.
// При совпадении расширения файл записи уже заменён только что скачанным,
// и его размеры могут не совпасть с width/height записи, если содержимое
// по URL изменилось между двумя загрузками.
func (s *IngestService) adoptExisting(id, ext, txID string) (*ingestResult, error) {
	existing, err := s.records.Find(id)
	if err != nil {
		return nil, newIngestError(CodeStorageFailed, err)
	}
	if existing.Extension != ext {
		if err := s.blobs.Delete(id, ext); err != nil {
			s.logger.Error("Ошибка удаления лишнего файла",
				slog.String("blob", model.FileName(id, ext)),
				slog.String("error", err.Error()),
			)
		}
	}
	s.commit(txID)
	return &ingestResult{photo: existing}, nil
}

func (s *IngestService) commit(txID string) {
	if err := s.walEngine.Commit(txID); err != nil {
		s.logger.Error("Ошибка коммита WAL",
			slog.String("tx_id", txID),
			slog.String("error", err.Error()),
		)
	}
}

// RecoverIngestions разбирает незавершённые загрузки после рестарта.
// Если запись о фотографии есть, транзакция коммитится. Иначе файл,
// оставшийся без записи, удаляется и транзакция откатывается.
// Возвращает количество обработанных транзакций.
func RecoverIngestions(walEngine *wal.WAL, records *recordstore.Store, blobs *photostore.Store, logger *slog.Logger) (int, error) {
	log := logger.With(slog.String("component", "ingest_recovery"))

	pending, err := walEngine.Pending()
	if err != nil {
		return 0, fmt.Errorf("чтение WAL: %w", err)
	}

	for _, entry := range pending {
		log.Warn("Обнаружена незавершённая загрузка",
			slog.String("tx_id", entry.TransactionID),
			slog.String("photo_id", entry.PhotoID),
			slog.String("blob", entry.Blob),
			slog.Time("started_at", entry.StartedAt),
		)

		_, findErr := records.Find(entry.PhotoID)
		switch {
		case findErr == nil:
			err = walEngine.Commit(entry.TransactionID)
		case errors.Is(findErr, recordstore.ErrNotFound):
			if delErr := blobs.DeleteName(entry.Blob); delErr != nil {
				return 0, fmt.Errorf("удаление %s: %w", entry.Blob, delErr)
			}
			err = walEngine.Rollback(entry.TransactionID)
		default:
			return 0, findErr
		}
		if err != nil {
			return 0, err
		}
	}

	if len(pending) > 0 {
		log.Info("Восстановление загрузок завершено", slog.Int("recovered", len(pending)))
	}
	return len(pending), nil
}
