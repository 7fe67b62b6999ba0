// Package imagecheck inspects photos before they are sent for classification
// and normalizes them to JPEG.
package imagecheck

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif" // register decoder
	"image/jpeg"
	_ "image/png" // register decoder
	"net/http"

	_ "golang.org/x/image/webp" // register decoder

	"github.com/pestalert/pestalert-go/internal/conf"
	"github.com/pestalert/pestalert-go/internal/errors"
	"github.com/pestalert/pestalert-go/internal/logger"
)

// Rejection reasons. Returned errors wrap one of these.
var (
	ErrEmpty       = errors.NewStd("image is empty")
	ErrTooSmall    = errors.NewStd("image payload too small")
	ErrTooLarge    = errors.NewStd("image payload too large")
	ErrUnsupported = errors.NewStd("unsupported image format")
	ErrCorrupt     = errors.NewStd("image cannot be decoded")
	ErrDimensions  = errors.NewStd("image dimensions out of range")
)

const (
	defaultMaxBytes    = 10 << 20
	defaultMinBytes    = 1 << 10
	defaultMinDim      = 32
	defaultMaxDim      = 8192
	defaultJPEGQuality = 85
)

var supportedTypes = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// Image is a validated photo ready for upload. Data is always JPEG.
type Image struct {
	Data           []byte
	OriginalFormat string
	Width          int
	Height         int
	Reencoded      bool
}

// Validator checks payload size, format and dimensions. Safe for concurrent use.
type Validator struct {
	minBytes, maxBytes int
	minDim, maxDim     int
	quality            int
	log                logger.Logger
}

// New creates a Validator; zero settings fall back to defaults.
func New(s conf.ImageSettings, log logger.Logger) *Validator {
	v := &Validator{
		minBytes: s.MinBytes,
		maxBytes: s.MaxBytes,
		minDim:   s.MinDimension,
		maxDim:   s.MaxDimension,
		quality:  s.JPEGQuality,
		log:      logger.OrDiscard(log).Module("imagecheck"),
	}
	if v.minBytes <= 0 {
		v.minBytes = defaultMinBytes
	}
	if v.maxBytes <= 0 {
		v.maxBytes = defaultMaxBytes
	}
	if v.minDim <= 0 {
		v.minDim = defaultMinDim
	}
	if v.maxDim <= 0 {
		v.maxDim = defaultMaxDim
	}
	if v.quality <= 0 || v.quality > 100 {
		v.quality = defaultJPEGQuality
	}
	return v
}

// Validate returns the normalized image or a validation error.
func (v *Validator) Validate(data []byte) (*Image, error) {
	switch n := len(data); {
	case n == 0:
		return nil, v.reject(ErrEmpty, 0)
	case n < v.minBytes:
		return nil, v.reject(fmt.Errorf("%w: %d bytes, minimum %d", ErrTooSmall, n, v.minBytes), n)
	case n > v.maxBytes:
		return nil, v.reject(fmt.Errorf("%w: %d bytes, maximum %d", ErrTooLarge, n, v.maxBytes), n)
	}

	mime := http.DetectContentType(data)
	format, ok := supportedTypes[mime]
	if !ok {
		return nil, v.reject(fmt.Errorf("%w: %s", ErrUnsupported, mime), len(data))
	}

	cfg, decodedFormat, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, v.reject(fmt.Errorf("%w: %w", ErrCorrupt, err), len(data))
	}
	if decodedFormat != format {
		return nil, v.reject(fmt.Errorf("%w: content sniffed as %s, decoded as %s", ErrCorrupt, format, decodedFormat), len(data))
	}
	if cfg.Width < v.minDim || cfg.Height < v.minDim || cfg.Width > v.maxDim || cfg.Height > v.maxDim {
		return nil, v.reject(fmt.Errorf("%w: %dx%d, allowed %d..%d", ErrDimensions, cfg.Width, cfg.Height, v.minDim, v.maxDim), len(data))
	}

	// DecodeConfig only reads the header; a damaged body shows up here.
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, v.reject(fmt.Errorf("%w: %w", ErrCorrupt, err), len(data))
	}

	img := &Image{
		Data:           data,
		OriginalFormat: format,
		Width:          cfg.Width,
		Height:         cfg.Height,
	}
	if format == "jpeg" {
		return img, nil
	}

	out, err := v.toJPEG(src)
	if err != nil {
		return nil, v.reject(fmt.Errorf("%w: %w", ErrCorrupt, err), len(data))
	}
	img.Data = out
	img.Reencoded = true
	v.log.Debug("image re-encoded",
		logger.String("from", format),
		logger.Int("bytes_in", len(data)),
		logger.Int("bytes_out", len(out)))
	return img, nil
}

func (v *Validator) toJPEG(src image.Image) ([]byte, error) {
	// Flatten transparency onto white so transparent areas do not turn black
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, image.White, image.Point{}, draw.Src)
	draw.Draw(dst, b, src, b.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: v.quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v *Validator) reject(err error, size int) error {
	v.log.Info("image rejected",
		logger.Error(err),
		logger.Int("bytes", size))
	return errors.New(err).
		Component("imagecheck").
		Category(errors.CategoryValidation).
		Context("size_bytes", size).
		Build()
}
