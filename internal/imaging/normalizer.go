// Package imaging turns arbitrary user photos into bounded JPEGs.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"math"

	_ "image/gif"
	_ "image/png"

	"backend-lacakair/internal/shared/logging"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxDimension = 800
	DefaultQuality      = 60
)

// DefaultMaxPixels bounds the decoded bitmap to about 200 MiB of RGBA.
const DefaultMaxPixels int64 = 50_000_000

// ErrTooManyPixels is wrapped in a DecodeError when the header declares more
// pixels than the normalizer will decode.
var ErrTooManyPixels = errors.New("image exceeds pixel budget")

// RawImage is a caller-supplied photo. Width and Height are the dimensions the
// source declared; zero means unknown. It is consumed once by Normalize.
type RawImage struct {
	URI    string
	Data   []byte
	Width  int
	Height int
}

// NormalizedImage is an encoded JPEG whose longer side is at most the
// configured maximum dimension.
type NormalizedImage struct {
	Data   []byte
	Width  int
	Height int
}

// Normalizer holds the fixed max dimension and JPEG quality.
type Normalizer struct {
	maxDimension int
	quality      int
	maxPixels    int64
	log          *slog.Logger
}

type Option func(*Normalizer)

// WithMaxPixels caps width*height of accepted sources. Non-positive values
// keep DefaultMaxPixels.
func WithMaxPixels(n int64) Option {
	return func(nz *Normalizer) {
		if n > 0 {
			nz.maxPixels = n
		}
	}
}

func NewNormalizer(maxDimension, quality int, log *slog.Logger, opts ...Option) *Normalizer {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	n := &Normalizer{
		maxDimension: maxDimension,
		quality:      quality,
		maxPixels:    DefaultMaxPixels,
		log:          logging.OrDefault(log),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Normalizer) MaxDimension() int { return n.maxDimension }
func (n *Normalizer) Quality() int      { return n.quality }
func (n *Normalizer) MaxPixels() int64  { return n.maxPixels }

func (n *Normalizer) Normalize(raw RawImage) (NormalizedImage, error) {
	return normalize(raw, n.maxDimension, n.quality, n.maxPixels, n.log)
}

// Normalize decodes raw, downsamples it so the longer side is at most
// maxDimension and re-encodes it as JPEG at quality. Sources above
// DefaultMaxPixels are rejected.
func Normalize(raw RawImage, maxDimension, quality int) (NormalizedImage, error) {
	return normalize(raw, maxDimension, quality, DefaultMaxPixels, slog.Default())
}

func normalize(raw RawImage, maxDimension, quality int, maxPixels int64, log *slog.Logger) (NormalizedImage, error) {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw.Data))
	if err != nil {
		return NormalizedImage{}, &DecodeError{URI: raw.URI, Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return NormalizedImage{}, &DecodeError{URI: raw.URI, Err: errors.New("empty image bounds")}
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > maxPixels {
		return NormalizedImage{}, &DecodeError{
			URI: raw.URI,
			Err: fmt.Errorf("%w: %dx%d is %d pixels, limit %d", ErrTooManyPixels, cfg.Width, cfg.Height, pixels, maxPixels),
		}
	}
	if raw.Width > 0 && raw.Height > 0 && (raw.Width != cfg.Width || raw.Height != cfg.Height) {
		log.Debug("declared size differs from decoded bounds",
			"uri", raw.URI,
			"declared_w", raw.Width, "declared_h", raw.Height,
			"decoded_w", cfg.Width, "decoded_h", cfg.Height)
	}

	sample := SampleSize(cfg.Width, cfg.Height, maxDimension)
	src, _, err := image.Decode(bytes.NewReader(raw.Data))
	if err != nil {
		return NormalizedImage{}, &DecodeError{URI: raw.URI, Err: err}
	}

	img := subsample(src, sample)
	src = nil

	outW, outH := OutputSize(cfg.Width, cfg.Height, maxDimension)
	if b := img.Bounds(); b.Dx() != outW || b.Dy() != outH {
		img = scale(img, outW, outH)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return NormalizedImage{}, &EncodeError{Err: err}
	}

	log.Debug("image normalized",
		"uri", raw.URI, "format", format,
		"src_w", cfg.Width, "src_h", cfg.Height,
		"sample", sample, "out_w", outW, "out_h", outH,
		"bytes", buf.Len())

	return NormalizedImage{Data: buf.Bytes(), Width: outW, Height: outH}, nil
}

// SampleSize returns the power-of-two decode divisor: doubled from 1 while
// half of the shorter side divided by it still reaches maxDimension.
func SampleSize(width, height, maxDimension int) int {
	if maxDimension <= 0 {
		return 1
	}
	half := min(width, height) / 2
	s := 1
	for half/s >= maxDimension {
		s *= 2
	}
	return s
}

// OutputSize returns the final dimensions for a width x height source.
// Sources already within maxDimension keep their size.
func OutputSize(width, height, maxDimension int) (int, int) {
	s := SampleSize(width, height, maxDimension)
	dw, dh := max(1, width/s), max(1, height/s)
	if max(dw, dh) <= maxDimension {
		return dw, dh
	}
	// The short side follows the source aspect so rounding never drifts
	// more than a pixel from it.
	if width >= height {
		return maxDimension, scaledSide(height, maxDimension, width)
	}
	return scaledSide(width, maxDimension, height), maxDimension
}

func scaledSide(side, target, longest int) int {
	v := int(math.Round(float64(side) * float64(target) / float64(longest)))
	return max(1, v)
}

func subsample(src image.Image, s int) image.Image {
	if s <= 1 {
		return src
	}
	b := src.Bounds()
	return scaleWith(draw.ApproxBiLinear, src, max(1, b.Dx()/s), max(1, b.Dy()/s))
}

func scale(src image.Image, w, h int) image.Image {
	return scaleWith(draw.CatmullRom, src, w, h)
}

func scaleWith(s draw.Scaler, src image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	s.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
