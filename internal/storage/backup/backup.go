// Пакет backup — отложенные резервные копии таблицы записей.
//
// Вставки в пределах одного окна (по умолчанию 5 минут) объединяются в одну
// запись: ключ копии — время, округлённое вниз до границы окна, и пока запись
// для ключа ожидает таймера, повторные вызовы Schedule ничего не делают.
// Копии пишутся в <dir>/db.<env>.<unix-millis>.json и не удаляются.
package backup

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/gallery/internal/storage/jsonfile"
)

var backupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gallery_backups_total",
	Help: "Количество записанных резервных копий db.json",
}, []string{"result"})

// Snapshotter — источник содержимого резервной копии.
type Snapshotter interface {
	Snapshot() (any, error)
}

// Options — параметры планировщика.
type Options struct {
	// Dir — директория резервных копий
	Dir string
	// Env — метка окружения в имени файла
	Env string
	// Delay — задержка между вставкой и записью копии
	Delay time.Duration
	// Window — окно объединения
	Window time.Duration
}

// Scheduler планирует и записывает резервные копии.
type Scheduler struct {
	opts   Options
	source Snapshotter
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending map[time.Time]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

// NewScheduler создаёт планировщик.
func NewScheduler(opts Options, source Snapshotter, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		opts:    opts,
		source:  source,
		logger:  logger.With(slog.String("component", "backup")),
		now:     time.Now,
		pending: make(map[time.Time]*time.Timer),
	}
}

// Schedule планирует запись копии для текущего окна.
// Не блокирует вызывающего: запись выполняется в фоне после задержки.
func (s *Scheduler) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	key := s.now().Truncate(s.opts.Window)
	if _, ok := s.pending[key]; ok {
		return
	}

	s.wg.Add(1)
	s.pending[key] = time.AfterFunc(s.opts.Delay, func() { s.fire(key) })
}

// Stop отменяет ожидающие таймеры, сразу записывает их копии и ждёт
// завершения всех записей. После Stop новые вызовы Schedule игнорируются.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	var flush []time.Time
	for key, timer := range s.pending {
		// Если таймер уже сработал, запись выполнит fire
		if timer.Stop() {
			delete(s.pending, key)
			flush = append(flush, key)
		}
	}
	s.mu.Unlock()

	for _, key := range flush {
		s.write(key)
		s.wg.Done()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if len(flush) > 0 {
			s.logger.Info("Ожидающие резервные копии записаны при остановке",
				slog.Int("count", len(flush)),
			)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ожидание записи резервных копий: %w", ctx.Err())
	}
}

// FileName возвращает имя файла копии для ключа окна.
func FileName(env string, key time.Time) string {
	return fmt.Sprintf("db.%s.%d.json", env, key.UnixMilli())
}

func (s *Scheduler) fire(key time.Time) {
	defer s.wg.Done()

	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()

	s.write(key)
}

// write снимает текущее состояние таблицы и атомарно пишет копию.
// Поздняя вставка в то же окно перезаписывает файл более свежим снимком.
func (s *Scheduler) write(key time.Time) {
	path := filepath.Join(s.opts.Dir, FileName(s.opts.Env, key))

	snap, err := s.source.Snapshot()
	if err != nil {
		backupsTotal.WithLabelValues("error").Inc()
		s.logger.Error("Ошибка чтения таблицы для резервной копии",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := jsonfile.Write(path, snap); err != nil {
		backupsTotal.WithLabelValues("error").Inc()
		s.logger.Error("Ошибка записи резервной копии",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return
	}

	backupsTotal.WithLabelValues("ok").Inc()
	s.logger.Debug("Резервная копия записана", slog.String("path", path))
}
