// Пакет model — доменные модели галереи.
// Photo — запись о фотографии, используется как in-memory представление
// и как элемент массива photos в db.json.
package model

import (
	"slices"
	"strings"
)

// Photo — запись о фотографии.
// Имена JSON-полей совпадают с форматом db.json, который уже лежит на дисках.
type Photo struct {
	// ID — HMAC исходного URL, ключ записи. Не меняется.
	ID string `json:"hash"`

	// SourceURL — URL, присланный пользователем. Не меняется.
	SourceURL string `json:"src"`

	// Extension — расширение, определённое по содержимому файла ("png", "jpg").
	Extension string `json:"extension"`

	// Width, Height — размеры изображения в пикселях.
	Width  int `json:"width"`
	Height int `json:"height"`

	// Topics, Tags — изменяемые списки строк в порядке добавления.
	Topics []string `json:"topics"`
	Tags   []string `json:"tags"`
}

// FileName возвращает имя файла изображения в хранилище: <id>.<ext>.
func (p *Photo) FileName() string {
	return FileName(p.ID, p.Extension)
}

// FileName собирает имя файла изображения из идентификатора и расширения.
func FileName(id, ext string) string {
	return id + "." + ext
}

// Clone возвращает глубокую копию записи.
func (p *Photo) Clone() *Photo {
	c := *p
	c.Topics = slices.Clone(p.Topics)
	c.Tags = slices.Clone(p.Tags)
	return &c
}

// PhotoView — представление фотографии в HTTP API.
type PhotoView struct {
	Hash   string   `json:"hash"`
	URL    string   `json:"url"`
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Topics []string `json:"topics"`
	Tags   []string `json:"tags"`
}

// View преобразует запись в API-представление.
// url всегда имеет вид photos/<hash>.<extension>.
func (p *Photo) View() PhotoView {
	return PhotoView{
		Hash:   p.ID,
		URL:    "photos/" + p.FileName(),
		Width:  p.Width,
		Height: p.Height,
		Topics: nonNil(p.Topics),
		Tags:   nonNil(p.Tags),
	}
}

// Gallery — содержимое галереи для GET /api/photos.
type Gallery struct {
	Topics []string    `json:"topics"`
	Tags   []string    `json:"tags"`
	Photos []PhotoView `json:"photos"`
}

// NewGallery собирает галерею из записей: topics и tags — объединение
// по всем фотографиям без повторов, отсортированное лексикографически.
func NewGallery(photos []*Photo) Gallery {
	g := Gallery{
		Topics: []string{},
		Tags:   []string{},
		Photos: make([]PhotoView, 0, len(photos)),
	}
	for _, p := range photos {
		g.Photos = append(g.Photos, p.View())
		g.Topics = append(g.Topics, p.Topics...)
		g.Tags = append(g.Tags, p.Tags...)
	}
	slices.Sort(g.Topics)
	g.Topics = slices.Compact(g.Topics)
	slices.Sort(g.Tags)
	g.Tags = slices.Compact(g.Tags)
	return g
}

// NormalizeLabels обрезает пробелы и отбрасывает пустые строки.
// Порядок сохраняется, повторы допустимы. Всегда возвращает не-nil срез.
func NormalizeLabels(labels []string) []string {
	result := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l != "" {
			result = append(result, l)
		}
	}
	return result
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
