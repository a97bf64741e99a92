// Пакет photostore — хранилище проверенных изображений на диске.
// Файл изображения называется <id>.<ext>, путь однозначно выводится
// из идентификатора и расширения, публичный URL — photos/<id>.<ext>.
package photostore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bigkaa/gallery/internal/domain/model"
)

// URLPrefix — префикс публичного URL изображений.
const URLPrefix = "photos/"

// Store — управление файлами изображений на диске.
type Store struct {
	// dir — директория хранения изображений (GALLERY_PHOTO_DIR)
	dir string
}

// Blob — файл в директории хранилища.
type Blob struct {
	// Name — имя файла (<id>.<ext>)
	Name    string
	Size    int64
	ModTime time.Time
}

// New создаёт Store. Создаёт директорию, если она не существует.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию изображений %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Persist копирует проверенный файл tmpPath в хранилище под именем <id>.<ext>
// и возвращает публичный URL. Источник не удаляется, поэтому повтор безопасен.
//
// Паттерн: temp файл → копирование → fsync → atomic rename.
func (s *Store) Persist(tmpPath, id, ext string) (string, error) {
	src, err := os.Open(tmpPath)
	if err != nil {
		return "", fmt.Errorf("ошибка открытия исходного файла: %w", err)
	}
	defer src.Close()

	name := model.FileName(id, ext)
	fullPath := filepath.Join(s.dir, name)

	f, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	partPath := f.Name()

	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(partPath)
		return "", fmt.Errorf("ошибка копирования данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(partPath)
		return "", fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(partPath)
		return "", fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Chmod(partPath, 0o644); err != nil {
		os.Remove(partPath)
		return "", fmt.Errorf("ошибка установки прав: %w", err)
	}

	if err := os.Rename(partPath, fullPath); err != nil {
		os.Remove(partPath)
		return "", fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return PublicURL(id, ext), nil
}

// Delete удаляет файл изображения. Отсутствие файла ошибкой не считается.
func (s *Store) Delete(id, ext string) error {
	err := os.Remove(s.Path(id, ext))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", model.FileName(id, ext), err)
	}
	return nil
}

// DeleteName удаляет файл по имени внутри хранилища (для сверки).
func (s *Store) DeleteName(name string) error {
	if name != filepath.Base(name) {
		return fmt.Errorf("недопустимое имя файла %q", name)
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", name, err)
	}
	return nil
}

// Exists проверяет наличие файла изображения.
func (s *Store) Exists(id, ext string) bool {
	_, err := os.Stat(s.Path(id, ext))
	return err == nil
}

// Path возвращает абсолютный путь к файлу изображения.
func (s *Store) Path(id, ext string) string {
	return filepath.Join(s.dir, model.FileName(id, ext))
}

// Dir возвращает директорию хранилища.
func (s *Store) Dir() string {
	return s.dir
}

// List возвращает файлы хранилища. Служебные (.*) и временные (*.tmp) пропускаются.
func (s *Store) List() ([]Blob, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения директории %s: %w", s.dir, err)
	}

	blobs := make([]Blob, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Файл мог быть удалён между ReadDir и Info
			continue
		}
		blobs = append(blobs, Blob{Name: name, Size: info.Size(), ModTime: info.ModTime()})
	}
	return blobs, nil
}

// Usage возвращает суммарный размер файлов хранилища в байтах.
func (s *Store) Usage() (int64, error) {
	blobs, err := s.List()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, b := range blobs {
		total += b.Size
	}
	return total, nil
}

// PublicURL возвращает путь, по которому статический сервер отдаёт изображение.
func PublicURL(id, ext string) string {
	return URLPrefix + model.FileName(id, ext)
}

// SplitName разбирает имя файла <id>.<ext>. ok=false, если имя не подходит.
func SplitName(name string) (id, ext string, ok bool) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return "", "", false
	}
	return name[:i], name[i+1:], true
}
