// retry.go — декоратор Store с ограниченным retry загрузок.
// Ретраятся только transient-ошибки, с экспоненциальным backoff;
// количество попыток и базовая задержка задаются конфигурацией.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики retry-слоя хранилища.
var (
	storageRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "im_storage_put_retries_total",
		Help: "Общее количество повторных попыток загрузки в хранилище",
	})
	storagePutFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "im_storage_put_failures_total",
		Help: "Общее количество окончательно проваленных загрузок (по типу ошибки)",
	}, []string{"kind"})
)

// maxBackoff — потолок задержки между попытками.
const maxBackoff = 5 * time.Second

// PutResult — результат загрузки с retry.
type PutResult struct {
	// Bytes — количество записанных байт
	Bytes int64
	// Attempts — сколько попыток потребовалось (1 = без retry)
	Attempts int
}

// RetryStore — Store с ограниченным retry для Put.
// Остальные операции делегируются внутреннему хранилищу как есть:
// Exists/Info/Delete дёшевы и идемпотентны, Copy ретраит координатор
// миграции на уровне повторного вызова.
type RetryStore struct {
	Store

	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
}

// NewRetryStore оборачивает хранилище retry-логикой.
// maxAttempts — общее число попыток (минимум 1), baseDelay — задержка
// перед второй попыткой, далее удваивается до maxBackoff.
func NewRetryStore(inner Store, maxAttempts int, baseDelay time.Duration, logger *slog.Logger) *RetryStore {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryStore{
		Store:       inner,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		logger:      logger.With(slog.String("component", "blob_retry")),
	}
}

// PutWithRetry загружает объект с ограниченным retry.
// Transient-ошибки ретраятся с экспоненциальным backoff, невосстановимые
// (ErrPermanent, отменённый контекст) проваливаются сразу. Каждая попытка
// начинается с начала данных, поэтому принимается []byte, а не io.Reader.
func (rs *RetryStore) PutWithRetry(ctx context.Context, key string, data []byte, contentType string) (*PutResult, error) {
	var lastErr error

	for attempt := 1; attempt <= rs.maxAttempts; attempt++ {
		size, err := rs.Store.Put(ctx, key, bytes.NewReader(data), contentType)
		if err == nil {
			return &PutResult{Bytes: size, Attempts: attempt}, nil
		}
		lastErr = err

		if !IsTransient(err) {
			storagePutFailuresTotal.WithLabelValues("permanent").Inc()
			return nil, fmt.Errorf("загрузка %s (попытка %d, без retry): %w", key, attempt, err)
		}

		if attempt == rs.maxAttempts {
			break
		}

		delay := rs.backoff(attempt)
		rs.logger.Warn("Transient-ошибка загрузки, повтор",
			slog.String("key", key),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		storageRetriesTotal.Inc()

		select {
		case <-ctx.Done():
			storagePutFailuresTotal.WithLabelValues("cancelled").Inc()
			return nil, fmt.Errorf("загрузка %s прервана: %w", key, ctx.Err())
		case <-time.After(delay):
		}
	}

	storagePutFailuresTotal.WithLabelValues("transient").Inc()
	return nil, fmt.Errorf("загрузка %s провалена после %d попыток: %w", key, rs.maxAttempts, lastErr)
}

// backoff возвращает задержку перед попыткой attempt+1:
// baseDelay * 2^(attempt-1), не более maxBackoff.
func (rs *RetryStore) backoff(attempt int) time.Duration {
	delay := rs.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}
