// Пакет service — бизнес-логика модуля изображений.
// upload.go — сервис загрузки изображений во временную область.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/arendadom/image-module/internal/api/errors"
	"github.com/arendadom/image-module/internal/domain/model"
	"github.com/arendadom/image-module/internal/session"
	"github.com/arendadom/image-module/internal/storage/blob"
	"github.com/arendadom/image-module/internal/storage/pathgen"
	"github.com/arendadom/image-module/internal/storage/variant"
)

// Бизнес-метрики загрузки
var (
	// uploadsTotal — количество загруженных файлов по результату.
	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "im_uploads_total",
			Help: "Количество файлов, загруженных во временную область",
		},
		[]string{"result"},
	)
)

// UploadFile — один файл пакетной загрузки.
type UploadFile struct {
	// Filename — оригинальное имя файла
	Filename string
	// Data — содержимое файла
	Data []byte
}

// UploadService — сервис загрузки изображений во временную область.
// Каждый файл проходит через процессор вариантов, после чего все четыре
// варианта записываются во временную область хранилища и регистрируются
// в сессии.
type UploadService struct {
	processor *variant.Processor
	store     *blob.RetryStore
	registry  *session.Registry
	paths     *pathgen.Generator
	logger    *slog.Logger
}

// NewUploadService создаёт сервис загрузки.
func NewUploadService(
	processor *variant.Processor,
	store *blob.RetryStore,
	registry *session.Registry,
	paths *pathgen.Generator,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		processor: processor,
		store:     store,
		registry:  registry,
		paths:     paths,
		logger:    logger.With(slog.String("component", "upload_service")),
	}
}

// UploadBatch загружает пакет файлов во временную область сессии.
// Файлы независимы: ошибка одного не прерывает остальные,
// результат по каждому файлу возвращается отдельно.
//
// Поток по файлу:
//  1. Генерация вариантов (валидация типа, размера, декодирование)
//  2. Запись четырёх вариантов во временную область (с ретраями)
//  3. Регистрация изображения в сессии
//
// При ошибке записи уже загруженные варианты файла удаляются:
// частично загруженных изображений во временной области не остаётся.
func (s *UploadService) UploadBatch(ctx context.Context, token string, files []UploadFile) []model.UploadFileResult {
	results := make([]model.UploadFileResult, 0, len(files))
	for _, f := range files {
		results = append(results, s.uploadOne(ctx, token, f))
	}
	return results
}

// uploadOne обрабатывает один файл пакета.
func (s *UploadService) uploadOne(ctx context.Context, token string, f UploadFile) model.UploadFileResult {
	fail := func(code, message string) model.UploadFileResult {
		uploadsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("Файл отклонён",
			slog.String("filename", f.Filename),
			slog.String("code", code),
			slog.String("error", message),
		)
		return model.UploadFileResult{
			Filename:  f.Filename,
			Success:   false,
			ErrorCode: code,
			Error:     message,
		}
	}

	// 1. Генерируем варианты
	processed, err := s.processor.Process(f.Data)
	if err != nil {
		switch {
		case errors.Is(err, variant.ErrFileTooLarge):
			return fail(apierrors.CodeFileTooLarge, err.Error())
		case errors.Is(err, variant.ErrUnsupportedMediaType):
			return fail(apierrors.CodeUnsupportedMediaType, err.Error())
		case errors.Is(err, variant.ErrDecode):
			return fail(apierrors.CodeDecodeError, err.Error())
		default:
			return fail(apierrors.CodeInternalError, err.Error())
		}
	}

	// Идентификатор назначается процессором вместе с вариантами
	imageID := processed.ImageID

	// 2. Записываем варианты во временную область.
	// При ошибке удаляем уже загруженные ключи этого изображения.
	var uploaded []string
	rollback := func() {
		for _, key := range uploaded {
			if delErr := s.store.Delete(ctx, key); delErr != nil {
				s.logger.Error("Ошибка отката временного варианта",
					slog.String("key", key),
					slog.String("error", delErr.Error()),
				)
			}
		}
	}

	var originalSize int64
	for _, v := range processed.Variants {
		key := s.paths.TempKey(token, imageID, v.Size)
		put, err := s.store.PutWithRetry(ctx, key, v.Data, "image/jpeg")
		if err != nil {
			rollback()
			s.logger.Error("Ошибка записи временного варианта",
				slog.String("image_id", imageID),
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			return fail(apierrors.CodeStorageError, fmt.Sprintf("ошибка записи в хранилище: %s", err))
		}
		uploaded = append(uploaded, key)
		if v.Size == model.SizeOriginal {
			originalSize = put.Bytes
		}
	}

	// 3. Регистрируем изображение в сессии
	info := &model.TempImageInfo{
		ImageID:          imageID,
		OriginalFilename: f.Filename,
		Size:             originalSize,
		MimeType:         processed.MimeType,
		Width:            processed.Width,
		Height:           processed.Height,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.registry.Add(token, info); err != nil {
		rollback()
		return fail(apierrors.CodeInvalidSession, "сессия загрузки не найдена")
	}

	uploadsTotal.WithLabelValues("success").Inc()
	s.logger.Info("Изображение загружено во временную область",
		slog.String("image_id", imageID),
		slog.String("session", token),
		slog.String("filename", f.Filename),
		slog.Int("width", processed.Width),
		slog.Int("height", processed.Height),
	)

	return model.UploadFileResult{
		Filename: f.Filename,
		Success:  true,
		ImageID:  imageID,
	}
}

// RemoveTempImage удаляет временное изображение: все четыре варианта
// из хранилища и запись из сессии. Отсутствующее изображение — не ошибка
// хранилища, удаление идемпотентно.
func (s *UploadService) RemoveTempImage(ctx context.Context, token, imageID string) error {
	for _, size := range model.Sizes {
		key := s.paths.TempKey(token, imageID, size)
		if err := s.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("ошибка удаления временного варианта %s: %w", key, err)
		}
	}
	s.registry.Remove(token, imageID)

	s.logger.Info("Временное изображение удалено",
		slog.String("image_id", imageID),
		slog.String("session", token),
	)
	return nil
}
