// static.go — раздача сохранённых изображений и собранного клиента.
package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// FatalClientMessage отдаётся вместо index.html, если клиент не собран.
const FatalClientMessage = "Fatal Error: Either run webpack development server or execute the build command."

// StaticHandler раздаёт /photos/* и клиентское приложение.
type StaticHandler struct {
	photoDir  string
	clientDir string
	photos    http.Handler
	client    http.Handler
}

// NewStaticHandler создаёт обработчик статики.
func NewStaticHandler(photoDir, clientDir string) *StaticHandler {
	return &StaticHandler{
		photoDir:  photoDir,
		clientDir: clientDir,
		photos:    http.StripPrefix("/photos", http.FileServer(http.Dir(photoDir))),
		client:    http.FileServer(http.Dir(clientDir)),
	}
}

// Photos обрабатывает GET /photos/*. Листинг директории не отдаётся.
func (h *StaticHandler) Photos(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/") {
		http.NotFound(w, r)
		return
	}
	h.photos.ServeHTTP(w, r)
}

// Client обрабатывает GET /*: существующий файл сборки отдаётся как есть,
// остальные пути получают index.html (маршрутизация на стороне клиента).
func (h *StaticHandler) Client(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && h.isClientFile(r.URL.Path) {
		h.client.ServeHTTP(w, r)
		return
	}

	index := filepath.Join(h.clientDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(FatalClientMessage))
		return
	}
	http.ServeFile(w, r, index)
}

// isClientFile проверяет, что путь указывает на обычный файл внутри сборки.
func (h *StaticHandler) isClientFile(urlPath string) bool {
	name := filepath.Join(h.clientDir, filepath.FromSlash(filepath.Clean("/"+urlPath)))
	info, err := os.Stat(name)
	return err == nil && !info.IsDir()
}
