// Пакет variant — генерация размерных вариантов загруженного изображения.
//
// Один входной файл → четыре варианта (original, large, medium, thumbnail),
// каждый перекодирован в JPEG и хранится как отдельный объект.
// Валидация (allow-list MIME-типов, потолок размера в байтах)
// выполняется до декодирования.
package variant

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // регистрация PNG-декодера
	"net/http"
	"strings"

	"github.com/disintegration/gift"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp" // регистрация WebP-декодера

	"github.com/arendadom/image-module/internal/domain/model"
)

// jpegQuality — качество перекодирования всех вариантов.
const jpegQuality = 90

// Ошибки валидации и обработки. Провал одного файла в батче
// не прерывает обработку соседних — разбор ошибок у вызывающего кода.
var (
	// ErrUnsupportedMediaType — MIME-тип вне allow-list.
	ErrUnsupportedMediaType = errors.New("неподдерживаемый тип изображения")
	// ErrFileTooLarge — превышен потолок размера файла.
	ErrFileTooLarge = errors.New("файл превышает максимальный размер")
	// ErrDecode — файл не декодируется как изображение.
	ErrDecode = errors.New("ошибка декодирования изображения")
)

// allowedMimeTypes — allow-list входных MIME-типов.
var allowedMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Variant — один сгенерированный размерный вариант.
type Variant struct {
	// Size — размерный tier
	Size model.Size
	// Data — JPEG-данные варианта
	Data []byte
	// Width, Height — размеры варианта в пикселях
	Width  int
	Height int
}

// Result — результат обработки одного файла.
type Result struct {
	// ImageID — назначенный идентификатор изображения (UUID v4)
	ImageID string
	// MimeType — определённый MIME-тип исходного файла
	MimeType string
	// Width, Height — размеры оригинала в пикселях
	Width  int
	Height int
	// Variants — ровно четыре варианта в порядке model.Sizes
	Variants []Variant
}

// Processor — генератор размерных вариантов.
type Processor struct {
	maxFileSize int64
}

// New создаёт процессор с потолком размера входного файла в байтах.
func New(maxFileSize int64) *Processor {
	return &Processor{maxFileSize: maxFileSize}
}

// Process валидирует файл и производит полный набор вариантов.
//
// Порядок:
//  1. Проверка размера (до декодирования)
//  2. Определение MIME-типа по содержимому + allow-list
//  3. Декодирование
//  4. Генерация четырёх вариантов (всё-или-ничего)
func (p *Processor) Process(data []byte) (*Result, error) {
	// 1. Потолок размера — до какой-либо работы с содержимым
	if int64(len(data)) > p.maxFileSize {
		return nil, fmt.Errorf("%w: %d байт, максимум %d",
			ErrFileTooLarge, len(data), p.maxFileSize)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: пустой файл", ErrDecode)
	}

	// 2. MIME-тип определяется по содержимому, не по заголовку клиента
	mimeType := detectMimeType(data)
	if !allowedMimeTypes[mimeType] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mimeType)
	}

	// 3. Декодирование
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecode, err.Error())
	}

	bounds := src.Bounds()
	result := &Result{
		ImageID:  uuid.New().String(),
		MimeType: mimeType,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Variants: make([]Variant, 0, len(model.Sizes)),
	}

	// 4. Все четыре варианта создаются вместе: ошибка любого
	// проваливает файл целиком
	for _, size := range model.Sizes {
		v, err := renderVariant(src, size)
		if err != nil {
			return nil, fmt.Errorf("вариант %s: %w", size, err)
		}
		result.Variants = append(result.Variants, *v)
	}

	return result, nil
}

// renderVariant масштабирует изображение под tier и кодирует в JPEG.
// Уменьшение только: изображение меньше целевого размера не растягивается.
func renderVariant(src image.Image, size model.Size) (*Variant, error) {
	img := src

	maxDim := size.MaxDimension()
	bounds := src.Bounds()
	if maxDim > 0 && (bounds.Dx() > maxDim || bounds.Dy() > maxDim) {
		g := gift.New(gift.ResizeToFit(maxDim, maxDim, gift.LanczosResampling))
		dst := image.NewRGBA(g.Bounds(bounds))
		g.Draw(dst, src)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecode, err.Error())
	}

	b := img.Bounds()
	return &Variant{
		Size:   size,
		Data:   buf.Bytes(),
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}

// detectMimeType определяет MIME-тип по первым байтам содержимого.
func detectMimeType(data []byte) string {
	mimeType := http.DetectContentType(data)
	// Убираем параметры (charset и т.д.)
	if idx := strings.Index(mimeType, ";"); idx != -1 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	return mimeType
}
