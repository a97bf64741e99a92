package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/gallery/internal/config"
)

type testRoutes struct{}

func (testRoutes) Register(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})
	r.Get("/panic", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewRouter_Routes(t *testing.T) {
	h := NewRouter(testLogger(), testRoutes{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Errorf("ожидалось 200 pong, получено %d %q", rec.Code, rec.Body.String())
	}
}

func TestNewRouter_Metrics(t *testing.T) {
	h := NewRouter(testLogger(), testRoutes{})

	// Запрос, чтобы счётчик HTTP-метрик получил значение
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "gallery_http_requests_total") {
		t.Error("в /metrics нет gallery_http_requests_total")
	}
}

func TestNewRouter_RecoversPanic(t *testing.T) {
	h := NewRouter(testLogger(), testRoutes{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("ожидался 500, получен %d", rec.Code)
	}
}

func TestRun_ShutdownOnCancel(t *testing.T) {
	// Свободный порт
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ошибка listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	cfg := &config.Config{
		Host:            "127.0.0.1",
		Port:            port,
		FetchTimeout:    time.Second,
		ShutdownTimeout: 2 * time.Second,
	}
	srv := New(cfg, testLogger(), testRoutes{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	// Ждём, пока сервер начнёт принимать соединения
	url := "http://" + cfg.Addr() + "/ping"
	var ok bool
	for range 50 {
		resp, err := http.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			ok = resp.StatusCode == http.StatusOK
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !ok {
		cancel()
		t.Fatal("сервер не ответил на /ping")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("неожиданная ошибка Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run не завершился после отмены контекста")
	}
}
