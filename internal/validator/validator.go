// Пакет validator — проверка скачанного файла как допустимого изображения.
//
// Тип определяется только по содержимому (magic numbers), заявленному
// Content-Type не доверяем. Порядок проверок фиксирован:
// определение типа → список допустимых типов → размер → размеры изображения.
// Каждая проверка прерывает цепочку при первой ошибке.
package validator

import (
	"errors"
	"fmt"
	"image"
	"os"
	"slices"
	"strings"

	// Декодеры для image.DecodeConfig
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Ошибки валидации.
var (
	// ErrUnknownType — по содержимому не удалось определить тип файла.
	ErrUnknownType = errors.New("тип файла не определён")
	// ErrUnsupportedType — тип определён, но не входит в список допустимых.
	ErrUnsupportedType = errors.New("тип файла не поддерживается")
	// ErrTooLarge — размер файла на диске превышает лимит.
	ErrTooLarge = errors.New("файл слишком большой")
	// ErrUnreadableDimensions — размеры изображения не удалось извлечь.
	ErrUnreadableDimensions = errors.New("не удалось определить размеры изображения")
)

// Info — результат успешной проверки.
type Info struct {
	// MIME — определённый по содержимому MIME-тип
	MIME string
	// Extension — расширение без точки ("png", "jpg", "gif")
	Extension string
	// Width, Height — размеры изображения в пикселях
	Width  int
	Height int
	// Size — размер файла в байтах
	Size int64
}

// Validator проверяет файлы. Безопасен для конкурентного использования.
type Validator struct {
	allowed []string
	maxSize int64
}

// New создаёт Validator со списком допустимых MIME-типов и максимальным размером.
func New(allowedMIMETypes []string, maxSize int64) *Validator {
	allowed := make([]string, 0, len(allowedMIMETypes))
	for _, mt := range allowedMIMETypes {
		allowed = append(allowed, strings.ToLower(strings.TrimSpace(mt)))
	}
	return &Validator{allowed: allowed, maxSize: maxSize}
}

// Validate проверяет файл по пути path.
func (v *Validator) Validate(path string) (*Info, error) {
	// 1. Тип по содержимому
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownType, err)
	}
	if mt.Is("application/octet-stream") {
		return nil, ErrUnknownType
	}
	mime := baseMIME(mt.String())

	// 2. Список допустимых типов
	if !v.isAllowed(mt) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mime)
	}

	// 3. Размер по фактическим байтам на диске
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if stat.Size() > v.maxSize {
		return nil, fmt.Errorf("%w: %d байт при максимуме %d", ErrTooLarge, stat.Size(), v.maxSize)
	}

	// 4. Размеры изображения
	width, height, err := decodeDimensions(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableDimensions, err)
	}

	return &Info{
		MIME:      mime,
		Extension: strings.TrimPrefix(mt.Extension(), "."),
		Width:     width,
		Height:    height,
		Size:      stat.Size(),
	}, nil
}

// isAllowed учитывает алиасы mimetype (например, image/jpg для image/jpeg).
func (v *Validator) isAllowed(mt *mimetype.MIME) bool {
	return slices.ContainsFunc(v.allowed, mt.Is)
}

// decodeDimensions читает только заголовок изображения.
func decodeDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, fmt.Errorf("некорректные размеры %dx%d", cfg.Width, cfg.Height)
	}
	return cfg.Width, cfg.Height, nil
}

// baseMIME отбрасывает параметры ("text/plain; charset=utf-8" → "text/plain").
func baseMIME(s string) string {
	if i := strings.IndexByte(s, ';'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
