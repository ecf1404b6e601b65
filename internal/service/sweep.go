// sweep.go — сервис фоновой очистки осиротевших временных изображений.
//
// Временное изображение становится сиротой, когда сессия покинута:
// пользователь загрузил файлы, но так и не сохранил сущность. Sweep
// периодически извлекает истёкшие сессии из реестра и удаляет их
// варианты из временной области хранилища.
//
// Запускается как горутина с периодическим тикером (IM_SWEEP_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arendadom/image-module/internal/domain/model"
	"github.com/arendadom/image-module/internal/session"
	"github.com/arendadom/image-module/internal/storage/blob"
	"github.com/arendadom/image-module/internal/storage/pathgen"
)

// Prometheus метрики sweep
var (
	// sweepRunsTotal — количество запусков sweep.
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "im_sweep_runs_total",
		Help: "Общее количество запусков очистки временной области",
	})

	// sweepSessionsTotal — количество зачищенных сессий.
	sweepSessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "im_sweep_sessions_total",
		Help: "Общее количество истёкших сессий, зачищенных sweep",
	})

	// sweepObjectsTotal — количество удалённых временных объектов.
	sweepObjectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "im_sweep_objects_total",
		Help: "Общее количество временных объектов, удалённых sweep",
	})

	// sweepDurationSeconds — длительность выполнения sweep.
	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "im_sweep_duration_seconds",
		Help:    "Длительность очистки временной области в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// SweepResult — результат одного запуска sweep.
type SweepResult struct {
	// Sessions — количество зачищенных сессий
	Sessions int
	// Objects — количество удалённых временных объектов
	Objects int
	// Errors — количество ошибок удаления
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
}

// SweepService — сервис очистки осиротевших временных изображений.
type SweepService struct {
	registry *session.Registry
	store    *blob.RetryStore
	paths    *pathgen.Generator
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex // защита от параллельного запуска RunOnce
	running bool       // флаг работы фонового процесса
	cancel  context.CancelFunc
}

// NewSweepService создаёт сервис очистки.
func NewSweepService(
	registry *session.Registry,
	store *blob.RetryStore,
	paths *pathgen.Generator,
	interval time.Duration,
	logger *slog.Logger,
) *SweepService {
	return &SweepService{
		registry: registry,
		store:    store,
		paths:    paths,
		interval: interval,
		logger:   logger.With(slog.String("component", "sweep")),
	}
}

// Start запускает фоновую горутину sweep с периодическим тикером.
// Вызывается один раз при старте приложения.
func (s *SweepService) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	go s.run(sweepCtx)

	s.logger.Info("Sweep запущен",
		slog.String("interval", s.interval.String()),
	)
}

// Stop останавливает фоновый процесс sweep.
func (s *SweepService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
	s.logger.Info("Sweep остановлен")
}

// run — основной цикл фоновой горутины.
func (s *SweepService) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один цикл очистки.
// Потокобезопасен: использует mutex для защиты от параллельного запуска.
//
// Истёкшие сессии извлекаются из реестра атомарно (PopExpired), после
// чего их временные объекты удаляются из хранилища. Ошибка удаления
// объекта не прерывает цикл: недоудалённые объекты не имеют живых
// ссылок и безвредны до следующего запуска.
func (s *SweepService) RunOnce(ctx context.Context) *SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result := &SweepResult{}

	s.logger.Debug("Sweep запуск начат")

	expired := s.registry.PopExpired(time.Now().UTC())
	for _, sess := range expired {
		for _, img := range sess.Images {
			for _, size := range model.Sizes {
				key := s.paths.TempKey(sess.Token, img.ImageID, size)
				if err := s.store.Delete(ctx, key); err != nil {
					s.logger.Error("Sweep: ошибка удаления временного объекта",
						slog.String("key", key),
						slog.String("error", err.Error()),
					)
					result.Errors++
					continue
				}
				result.Objects++
			}
		}
		result.Sessions++

		s.logger.Debug("Sweep: сессия зачищена",
			slog.String("session", sess.Token),
			slog.Int("images", len(sess.Images)),
		)
	}

	result.Duration = time.Since(start)

	// Обновляем Prometheus метрики
	sweepRunsTotal.Inc()
	sweepSessionsTotal.Add(float64(result.Sessions))
	sweepObjectsTotal.Add(float64(result.Objects))
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	if result.Sessions > 0 || result.Errors > 0 {
		s.logger.Info("Sweep завершён",
			slog.Int("sessions", result.Sessions),
			slog.Int("objects", result.Objects),
			slog.Int("errors", result.Errors),
			slog.Duration("duration", result.Duration),
		)
	}

	return result
}
