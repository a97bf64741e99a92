// Пакет recordstore — таблица записей о фотографиях в JSON-файле (db.json).
//
// Файл — единственный источник истины: каждая операция заново читает его
// с диска и не доверяет состоянию в памяти между вызовами. Изменения
// записываются атомарно (temp → fsync → rename), циклы
// чтение-изменение-запись сериализуются мьютексом внутри процесса.
package recordstore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"sync"

	"github.com/bigkaa/gallery/internal/domain/model"
	"github.com/bigkaa/gallery/internal/storage/jsonfile"
)

var (
	// ErrNotFound — записи с таким идентификатором нет.
	ErrNotFound = errors.New("запись не найдена")
	// ErrAlreadyExists — запись с таким идентификатором уже есть.
	ErrAlreadyExists = errors.New("запись уже существует")
)

// document — формат db.json.
type document struct {
	Photos []*model.Photo `json:"photos"`
}

// BackupScheduler получает уведомление после каждой вставки.
type BackupScheduler interface {
	Schedule()
}

// Store — хранилище записей в JSON-файле.
type Store struct {
	path   string
	mu     sync.Mutex
	backup BackupScheduler
	logger *slog.Logger
}

// Open открывает хранилище. Если файла нет, создаётся пустая таблица.
// Существующий файл проверяется на читаемость.
func Open(path string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		logger: logger.With(slog.String("component", "recordstore")),
	}

	_, err := s.load()
	if errors.Is(err, fs.ErrNotExist) {
		if err := jsonfile.Write(path, document{Photos: []*model.Photo{}}); err != nil {
			return nil, fmt.Errorf("создание %s: %w", path, err)
		}
		s.logger.Info("Создана пустая таблица записей", slog.String("path", path))
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// SetBackupScheduler подключает планировщик резервных копий.
// Вызывается при сборке зависимостей до начала обслуживания запросов.
func (s *Store) SetBackupScheduler(b BackupScheduler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backup = b
}

// Path возвращает путь к файлу таблицы.
func (s *Store) Path() string {
	return s.path
}

// List возвращает все записи в порядке вставки.
func (s *Store) List() ([]*model.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Photos, nil
}

// Find возвращает запись по идентификатору или ErrNotFound.
func (s *Store) Find(id string) (*model.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	if i := indexOf(doc.Photos, id); i >= 0 {
		return doc.Photos[i], nil
	}
	return nil, ErrNotFound
}

// Insert добавляет запись в конец таблицы.
// Повторная вставка того же идентификатора возвращает ErrAlreadyExists.
func (s *Store) Insert(p *model.Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if indexOf(doc.Photos, p.ID) >= 0 {
		return fmt.Errorf("%s: %w", p.ID, ErrAlreadyExists)
	}

	doc.Photos = append(doc.Photos, p.Clone())
	if err := s.save(doc); err != nil {
		return err
	}

	if s.backup != nil {
		s.backup.Schedule()
	}
	return nil
}

// Update заменяет tags и topics записи. nil означает "поле не передано"
// и оставляет текущее значение, пустой срез очищает поле.
// Остальные поля не меняются. Для отсутствующего идентификатора возвращает ErrNotFound.
func (s *Store) Update(id string, tags, topics []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	i := indexOf(doc.Photos, id)
	if i < 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}

	if tags != nil {
		doc.Photos[i].Tags = slices.Clone(tags)
	}
	if topics != nil {
		doc.Photos[i].Topics = slices.Clone(topics)
	}
	return s.save(doc)
}

// Remove удаляет запись. Отсутствие записи не является ошибкой.
// Возвращает удалённую запись или nil.
func (s *Store) Remove(id string) (*model.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	i := indexOf(doc.Photos, id)
	if i < 0 {
		return nil, nil
	}

	removed := doc.Photos[i]
	doc.Photos = slices.Delete(doc.Photos, i, i+1)
	if err := s.save(doc); err != nil {
		return nil, err
	}
	return removed, nil
}

// Snapshot возвращает текущее содержимое таблицы в формате db.json.
// Используется планировщиком резервных копий.
func (s *Store) Snapshot() (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// load читает таблицу с диска. Вызывается под мьютексом.
func (s *Store) load() (*document, error) {
	var doc document
	if err := jsonfile.Read(s.path, &doc); err != nil {
		return nil, err
	}
	if doc.Photos == nil {
		doc.Photos = []*model.Photo{}
	}
	return &doc, nil
}

// save атомарно записывает таблицу. Вызывается под мьютексом.
func (s *Store) save(doc *document) error {
	if err := jsonfile.Write(s.path, doc); err != nil {
		s.logger.Error("Ошибка записи таблицы записей",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

func indexOf(photos []*model.Photo, id string) int {
	return slices.IndexFunc(photos, func(p *model.Photo) bool { return p.ID == id })
}
