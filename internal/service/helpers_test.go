package service

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bigkaa/gallery/internal/fetcher"
	"github.com/bigkaa/gallery/internal/identity"
	"github.com/bigkaa/gallery/internal/storage/photostore"
	"github.com/bigkaa/gallery/internal/storage/recordstore"
	"github.com/bigkaa/gallery/internal/storage/wal"
	"github.com/bigkaa/gallery/internal/validator"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pngBytes возвращает PNG заданного размера.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: uint8(x), A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("ошибка кодирования PNG: %v", err)
	}
	return buf.Bytes()
}

// resource — содержимое, которое отдаёт тестовый сервер по пути.
type resource struct {
	contentType string
	body        []byte
	status      int
	// gate — если задан, ответ ждёт закрытия канала
	gate chan struct{}
}

// remote — тестовый удалённый сервер с подсчётом запросов по путям.
type remote struct {
	srv *httptest.Server

	mu        sync.Mutex
	resources map[string]resource
	hits      map[string]*atomic.Int32
}

func newRemote(t *testing.T) *remote {
	t.Helper()
	r := &remote{
		resources: make(map[string]resource),
		hits:      make(map[string]*atomic.Int32),
	}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		res, ok := r.resources[req.URL.Path]
		counter := r.hits[req.URL.Path]
		r.mu.Unlock()

		if !ok {
			http.NotFound(w, req)
			return
		}
		counter.Add(1)
		if res.gate != nil {
			<-res.gate
		}
		if res.contentType != "" {
			w.Header().Set("Content-Type", res.contentType)
		}
		if res.status != 0 {
			w.WriteHeader(res.status)
		}
		w.Write(res.body)
	}))
	t.Cleanup(r.srv.Close)
	return r
}

// serve регистрирует ресурс и возвращает его URL.
func (r *remote) serve(path string, res resource) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources[path] = res
	r.hits[path] = &atomic.Int32{}
	return r.srv.URL + path
}

func (r *remote) hitCount(path string) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits[path].Load()
}

// testEnv — собранный набор сервисов поверх временной директории.
type testEnv struct {
	ids       *identity.Deriver
	records   *recordstore.Store
	blobs     *photostore.Store
	walEngine *wal.WAL
	ingest    *IngestService
	photos    *PhotoService
}

func newTestEnv(t *testing.T, maxSize int64) *testEnv {
	t.Helper()
	dir := t.TempDir()
	logger := testLogger()

	records, err := recordstore.Open(filepath.Join(dir, "db.json"), logger)
	if err != nil {
		t.Fatalf("ошибка открытия таблицы: %v", err)
	}
	blobs, err := photostore.New(filepath.Join(dir, "photos"))
	if err != nil {
		t.Fatalf("ошибка создания хранилища: %v", err)
	}
	walEngine, err := wal.New(filepath.Join(dir, "wal"), logger)
	if err != nil {
		t.Fatalf("ошибка создания WAL: %v", err)
	}

	ids := identity.New("test-secret")
	f := fetcher.New(fetcher.Options{
		TempDir:      t.TempDir(),
		Timeout:      5 * time.Second,
		MaxBytes:     maxSize,
		AllowPrivate: true,
	}, logger)
	v := validator.New([]string{"image/png", "image/jpeg", "image/gif"}, maxSize)

	return &testEnv{
		ids:       ids,
		records:   records,
		blobs:     blobs,
		walEngine: walEngine,
		ingest:    NewIngestService(ids, f, v, blobs, records, walEngine, logger),
		photos:    NewPhotoService(records, blobs, logger),
	}
}

// blobNames возвращает имена файлов в хранилище изображений.
func (e *testEnv) blobNames(t *testing.T) []string {
	t.Helper()
	list, err := e.blobs.List()
	if err != nil {
		t.Fatalf("ошибка List: %v", err)
	}
	names := make([]string, 0, len(list))
	for _, b := range list {
		names = append(names, b.Name)
	}
	return names
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("ошибка записи %s: %v", path, err)
	}
}
