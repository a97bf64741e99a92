// Пакет fetcher — потоковое скачивание удалённого ресурса во временный файл.
//
// Тело ответа не буферизуется в памяти: оно копируется прямо в файл,
// причём не более MaxBytes+1 байт, чтобы ограничить занимаемое место на диске
// и при этом оставить валидатору возможность увидеть превышение лимита.
// Любая сетевая ошибка сворачивается в ErrFetch: причина логируется,
// но вызывающему коду она не нужна: исход в любом случае один.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrFetch — ресурс не удалось скачать (некорректный URL, недоступен, обрыв передачи).
var ErrFetch = errors.New("не удалось скачать ресурс")

var fetchBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "gallery_fetch_bytes_total",
	Help: "Общее количество байт, скачанных при загрузке фотографий",
})

// Options — параметры Fetcher.
type Options struct {
	// TempDir — директория временных файлов ("" — системная)
	TempDir string
	// Timeout — общий таймаут одного скачивания (соединение, заголовки, тело)
	Timeout time.Duration
	// MaxBytes — сколько байт имеет смысл читать (0 — без ограничения).
	// Читается MaxBytes+1, превышение обнаруживает валидатор.
	MaxBytes int64
	// AllowPrivate — разрешить loopback и частные адреса назначения
	AllowPrivate bool
}

// Result — скачанный ресурс во временном файле.
type Result struct {
	// Path — путь к временному файлу
	Path string
	// Size — количество записанных байт
	Size int64
	// DeclaredType — Content-Type из ответа (только для логов, не доверяем)
	DeclaredType string
}

// Cleanup удаляет временный файл. Повторный вызов безопасен.
func (r *Result) Cleanup() {
	if r == nil || r.Path == "" {
		return
	}
	_ = os.Remove(r.Path)
}

// Fetcher скачивает ресурсы по HTTP(S).
type Fetcher struct {
	client *http.Client
	opts   Options
	logger *slog.Logger
}

// New создаёт Fetcher. Если AllowPrivate не задан, соединения
// с loopback/частными адресами отклоняются на этапе dial,
// что покрывает и DNS-имена, и редиректы.
func New(opts Options, logger *slog.Logger) *Fetcher {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	if !opts.AllowPrivate {
		dialer.Control = denyPrivateAddresses
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: opts.Timeout,
	}

	return &Fetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:   opts,
		logger: logger.With(slog.String("component", "fetcher")),
	}
}

// Fetch скачивает rawURL во временный файл.
// При любой ошибке временный файл удаляется, а ошибка оборачивает ErrFetch.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, f.fail(rawURL, fmt.Errorf("разбор URL: %w", err))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, f.fail(rawURL, fmt.Errorf("неподдерживаемая схема %q", u.Scheme))
	}
	if u.Host == "" {
		return nil, f.fail(rawURL, errors.New("в URL нет хоста"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, f.fail(rawURL, fmt.Errorf("создание запроса: %w", err))
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, f.fail(rawURL, fmt.Errorf("запрос: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, f.fail(rawURL, fmt.Errorf("неуспешный статус %d", resp.StatusCode))
	}

	tmp, err := os.CreateTemp(f.opts.TempDir, "gallery-fetch-*")
	if err != nil {
		// Локальная проблема, но для пользователя исход тот же
		return nil, f.fail(rawURL, fmt.Errorf("создание временного файла: %w", err))
	}
	result := &Result{
		Path:         tmp.Name(),
		DeclaredType: resp.Header.Get("Content-Type"),
	}

	var body io.Reader = resp.Body
	if f.opts.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.opts.MaxBytes+1)
	}

	size, err := io.Copy(tmp, body)
	if err != nil {
		tmp.Close()
		result.Cleanup()
		return nil, f.fail(rawURL, fmt.Errorf("передача прервана после %d байт: %w", size, err))
	}
	if err := tmp.Close(); err != nil {
		result.Cleanup()
		return nil, f.fail(rawURL, fmt.Errorf("закрытие временного файла: %w", err))
	}
	result.Size = size
	fetchBytesTotal.Add(float64(size))

	f.logger.Debug("Ресурс скачан",
		slog.String("url", rawURL),
		slog.Int64("size", size),
		slog.String("declared_type", result.DeclaredType),
	)

	return result, nil
}

// fail логирует причину и возвращает ошибку, оборачивающую ErrFetch.
func (f *Fetcher) fail(rawURL string, cause error) error {
	f.logger.Info("Ошибка скачивания",
		slog.String("url", rawURL),
		slog.String("error", cause.Error()),
	)
	return fmt.Errorf("%w: %w", ErrFetch, cause)
}
