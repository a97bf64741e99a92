package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/gallery/internal/fetcher"
	"github.com/bigkaa/gallery/internal/storage/recordstore"
	"github.com/bigkaa/gallery/internal/storage/wal"
	"github.com/bigkaa/gallery/internal/validator"
)

func TestAddPhoto_PNG(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	r := newRemote(t)
	url := r.serve("/a.png", resource{contentType: "image/png", body: pngBytes(t, 100, 50)})

	photo, err := env.ingest.AddPhoto(context.Background(), url, []string{"x"}, []string{})
	if err != nil {
		t.Fatalf("ошибка AddPhoto: %v", err)
	}

	if photo.ID != env.ids.Derive(url) {
		t.Errorf("id: ожидался HMAC URL, получено %s", photo.ID)
	}
	if photo.Width != 100 || photo.Height != 50 || photo.Extension != "png" {
		t.Errorf("ожидалось 100x50 png, получено %dx%d %s", photo.Width, photo.Height, photo.Extension)
	}
	if !slices.Equal(photo.Tags, []string{"x"}) || photo.Topics == nil || len(photo.Topics) != 0 {
		t.Errorf("tags/topics: получено %v / %v", photo.Tags, photo.Topics)
	}
	if photo.SourceURL != url {
		t.Errorf("src: получено %s", photo.SourceURL)
	}
	if !env.blobs.Exists(photo.ID, "png") {
		t.Error("файл изображения не сохранён")
	}

	stored, err := env.records.Find(photo.ID)
	if err != nil {
		t.Fatalf("запись не найдена: %v", err)
	}
	if stored.Width != 100 || !slices.Equal(stored.Tags, []string{"x"}) {
		t.Errorf("запись отличается: %+v", stored)
	}

	gallery, err := env.photos.List()
	if err != nil {
		t.Fatalf("ошибка List: %v", err)
	}
	if len(gallery.Photos) != 1 || !slices.Equal(gallery.Tags, []string{"x"}) {
		t.Errorf("галерея: %+v", gallery)
	}
	if gallery.Photos[0].URL != "photos/"+photo.ID+".png" {
		t.Errorf("url: получено %s", gallery.Photos[0].URL)
	}

	if pending, _ := env.walEngine.Pending(); len(pending) != 0 {
		t.Errorf("после успеха не должно остаться pending транзакций: %d", len(pending))
	}
}

func TestAddPhoto_DuplicateIsNoOp(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	r := newRemote(t)
	url := r.serve("/dup.png", resource{body: pngBytes(t, 10, 10)})

	first, err := env.ingest.AddPhoto(context.Background(), url, []string{"x"}, []string{"t1"})
	if err != nil {
		t.Fatalf("первый вызов: %v", err)
	}
	second, err := env.ingest.AddPhoto(context.Background(), url, []string{"y"}, []string{"t2"})
	if err != nil {
		t.Fatalf("второй вызов: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("ожидался тот же id")
	}
	if !slices.Equal(second.Tags, []string{"x"}) || !slices.Equal(second.Topics, []string{"t1"}) {
		t.Errorf("существующие tags/topics должны сохраниться: %v / %v", second.Tags, second.Topics)
	}
	if n := r.hitCount("/dup.png"); n != 1 {
		t.Errorf("повторная загрузка не должна скачивать файл: %d запросов", n)
	}

	photos, _ := env.records.List()
	if len(photos) != 1 {
		t.Errorf("ожидалась одна запись, получено %d", len(photos))
	}
}

func TestAddPhoto_TextDeclaredAsPNG(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	r := newRemote(t)
	url := r.serve("/fake.png", resource{
		contentType: "image/png",
		body:        []byte("this is definitely not an image, just some plain text\n"),
	})

	_, err := env.ingest.AddPhoto(context.Background(), url, nil, nil)

	var ie *IngestError
	if !errors.As(err, &ie) {
		t.Fatalf("ожидалась IngestError, получено %v", err)
	}
	if ie.Code != CodeUnknownType && ie.Code != CodeUnsupportedType {
		t.Errorf("ожидалась ошибка типа, получен код %s", ie.Code)
	}
	if photos, _ := env.records.List(); len(photos) != 0 {
		t.Errorf("запись не должна создаваться: %d", len(photos))
	}
	if names := env.blobNames(t); len(names) != 0 {
		t.Errorf("файл не должен оставаться: %v", names)
	}
}

func TestAddPhoto_Errors(t *testing.T) {
	tests := []struct {
		name     string
		res      resource
		maxSize  int64
		wantCode string
		wantMsg  string
		wantIs   error
	}{
		{
			name:     "404",
			res:      resource{status: 404, body: []byte("nope")},
			maxSize:  1 << 20,
			wantCode: CodeFetchFailed,
			wantMsg:  "That looks like a bad URL",
			wantIs:   fetcher.ErrFetch,
		},
		{
			name:     "слишком большой",
			res:      resource{body: nil}, // заполняется ниже
			maxSize:  64,
			wantCode: CodeTooLarge,
			wantMsg:  "File is too large",
			wantIs:   validator.ErrTooLarge,
		},
		{
			name:     "битый PNG",
			res:      resource{body: append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)},
			maxSize:  1 << 20,
			wantCode: CodeUnreadableDimensions,
			wantMsg:  "Cannot determine image dimensions",
			wantIs:   validator.ErrUnreadableDimensions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.maxSize)
			r := newRemote(t)
			res := tt.res
			if res.body == nil {
				res.body = pngBytes(t, 64, 64)
			}
			url := r.serve("/img", res)

			_, err := env.ingest.AddPhoto(context.Background(), url, nil, nil)

			var ie *IngestError
			if !errors.As(err, &ie) {
				t.Fatalf("ожидалась IngestError, получено %v", err)
			}
			if ie.Code != tt.wantCode || ie.Message != tt.wantMsg {
				t.Errorf("ожидалось %s/%q, получено %s/%q", tt.wantCode, tt.wantMsg, ie.Code, ie.Message)
			}
			if !errors.Is(err, tt.wantIs) {
				t.Errorf("ошибка должна оборачивать %v: %v", tt.wantIs, err)
			}
			if names := env.blobNames(t); len(names) != 0 {
				t.Errorf("файл не должен оставаться: %v", names)
			}
		})
	}
}

func TestAddPhoto_BadURL(t *testing.T) {
	env := newTestEnv(t, 1<<20)

	_, err := env.ingest.AddPhoto(context.Background(), "not a url", nil, nil)
	var ie *IngestError
	if !errors.As(err, &ie) || ie.Code != CodeFetchFailed {
		t.Fatalf("ожидалась fetch_failed, получено %v", err)
	}
}

func TestAddPhoto_NormalizesLabels(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	r := newRemote(t)
	url := r.serve("/n.png", resource{body: pngBytes(t, 3, 3)})

	photo, err := env.ingest.AddPhoto(context.Background(), url, []string{" a ", "", "b"}, []string{"  "})
	if err != nil {
		t.Fatalf("ошибка AddPhoto: %v", err)
	}
	if !slices.Equal(photo.Tags, []string{"a", "b"}) || len(photo.Topics) != 0 {
		t.Errorf("получено tags=%v topics=%v", photo.Tags, photo.Topics)
	}
}

// TestAddPhoto_ConcurrentSameURL проверяет, что одновременные вызовы с одним
// URL скачивают файл один раз и создают одну запись.
func TestAddPhoto_ConcurrentSameURL(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	r := newRemote(t)
	gate := make(chan struct{})
	url := r.serve("/slow.png", resource{body: pngBytes(t, 20, 10), gate: gate})

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)

	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			p, err := env.ingest.AddPhoto(context.Background(), url, []string{"c"}, nil)
			errs[i] = err
			if p != nil {
				results[i] = p.ID
			}
		}(i)
	}

	// Ждём первого запроса, даём остальным присоединиться и отпускаем сервер
	deadline := time.Now().Add(5 * time.Second)
	for r.hitCount("/slow.png") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("вызов %d: %v", i, err)
		}
		if results[i] != env.ids.Derive(url) {
			t.Errorf("вызов %d: неожиданный id %s", i, results[i])
		}
	}
	if n := r.hitCount("/slow.png"); n != 1 {
		t.Errorf("ожидался один запрос к серверу, получено %d", n)
	}
	photos, _ := env.records.List()
	if len(photos) != 1 {
		t.Errorf("ожидалась одна запись, получено %d", len(photos))
	}
}

func TestAddPhoto_ReturnsCopy(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	r := newRemote(t)
	url := r.serve("/c.png", resource{body: pngBytes(t, 2, 2)})

	p, err := env.ingest.AddPhoto(context.Background(), url, []string{"x"}, nil)
	if err != nil {
		t.Fatalf("ошибка AddPhoto: %v", err)
	}
	p.Tags[0] = "mutated"

	again, _ := env.ingest.AddPhoto(context.Background(), url, nil, nil)
	if again.Tags[0] != "x" {
		t.Errorf("изменение результата не должно влиять на хранилище: %v", again.Tags)
	}
}

func TestRecoverIngestions(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	logger := testLogger()

	// Загрузка, упавшая между сохранением файла и вставкой записи
	orphanID := env.ids.Derive("http://example.com/orphan.png")
	src := t.TempDir() + "/src"
	writeFile(t, src, pngBytes(t, 4, 4))
	if _, err := env.blobs.Persist(src, orphanID, "png"); err != nil {
		t.Fatalf("ошибка Persist: %v", err)
	}
	orphanTx, _ := env.walEngine.Begin(wal.OpPhotoIngest, orphanID, orphanID+".png")

	// Загрузка, упавшая после вставки, но до коммита
	r := newRemote(t)
	url := r.serve("/done.png", resource{body: pngBytes(t, 4, 4)})
	done, err := env.ingest.AddPhoto(context.Background(), url, nil, nil)
	if err != nil {
		t.Fatalf("ошибка AddPhoto: %v", err)
	}
	doneTx, _ := env.walEngine.Begin(wal.OpPhotoIngest, done.ID, done.FileName())

	n, err := RecoverIngestions(env.walEngine, env.records, env.blobs, logger)
	if err != nil {
		t.Fatalf("ошибка восстановления: %v", err)
	}
	if n != 2 {
		t.Errorf("ожидалось 2 транзакции, получено %d", n)
	}

	if env.blobs.Exists(orphanID, "png") {
		t.Error("файл без записи должен быть удалён")
	}
	if !env.blobs.Exists(done.ID, "png") {
		t.Error("файл с записью должен остаться")
	}
	if _, err := env.records.Find(done.ID); errors.Is(err, recordstore.ErrNotFound) {
		t.Error("запись не должна пропасть")
	}

	if e, _ := env.walEngine.Get(orphanTx.TransactionID); e.Status != wal.StatusRolledBack {
		t.Errorf("сирота: ожидался rolled_back, получен %s", e.Status)
	}
	if e, _ := env.walEngine.Get(doneTx.TransactionID); e.Status != wal.StatusCommitted {
		t.Errorf("завершённая: ожидался committed, получен %s", e.Status)
	}
}
