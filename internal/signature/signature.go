// Package signature validates hand-drawn signatures captured from a browser
// canvas and prepares them for embedding in the printed contract.
package signature

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg" // so photos pasted as PNG report ErrUnsupportedType
	"image/png"
	"strings"

	"vowpact/internal/config"
)

var (
	ErrNotDataURL      = errors.New("signature is not a data URL")
	ErrUnsupportedType = errors.New("signature must be a PNG image")
	ErrDecode          = errors.New("signature image could not be decoded")
	ErrTooLarge        = errors.New("signature image is too large")
	ErrTooSmall        = errors.New("signature image is too small")
	ErrBlank           = errors.New("signature is blank")
)

const pngMediaType = "image/png"

// Limits bounds an acceptable signature image.
type Limits struct {
	MaxBytes    int
	MinWidth    int
	MinHeight   int
	MaxWidth    int
	MaxHeight   int
	MinInkRatio float64 // fraction of pixels that must be drawn on
}

// DefaultLimits suit a typical signature pad.
var DefaultLimits = Limits{
	MaxBytes:    512 * 1024,
	MinWidth:    120,
	MinHeight:   40,
	MaxWidth:    4000,
	MaxHeight:   2000,
	MinInkRatio: 0.002,
}

// LimitsFromConfig converts the configured bounds.
func LimitsFromConfig(c config.SignatureConfig) Limits {
	return Limits{
		MaxBytes:    c.MaxBytes,
		MinWidth:    c.MinWidth,
		MinHeight:   c.MinHeight,
		MaxWidth:    c.MaxWidth,
		MaxHeight:   c.MaxHeight,
		MinInkRatio: c.MinInkRatio,
	}
}

// Image is a validated signature.
type Image struct {
	img      image.Image
	ink      image.Rectangle // bounding box of drawn pixels
	inkRatio float64
}

// Parse decodes and validates a data URL of the form
// "data:image/png;base64,<payload>".
func Parse(dataURL string, lim Limits) (*Image, error) {
	dataURL = strings.TrimSpace(dataURL)
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return nil, ErrNotDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, ErrNotDataURL
	}
	params := strings.Split(meta, ";")
	if !strings.EqualFold(strings.TrimSpace(params[0]), pngMediaType) {
		return nil, fmt.Errorf("%w: got %q", ErrUnsupportedType, params[0])
	}
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}
	if !isBase64 {
		return nil, fmt.Errorf("%w: payload must be base64", ErrNotDataURL)
	}

	// Decoded size is at most 3/4 of the encoded length.
	if lim.MaxBytes > 0 && base64.StdEncoding.DecodedLen(len(payload)) > lim.MaxBytes+3 {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, lim.MaxBytes)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if raw, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
	}
	if lim.MaxBytes > 0 && len(raw) > lim.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, len(raw), lim.MaxBytes)
	}
	return Decode(raw, lim)
}

// Decode validates raw PNG bytes.
func Decode(raw []byte, lim Limits) (*Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if format != "png" {
		return nil, fmt.Errorf("%w: got %s", ErrUnsupportedType, format)
	}
	if (lim.MaxWidth > 0 && cfg.Width > lim.MaxWidth) || (lim.MaxHeight > 0 && cfg.Height > lim.MaxHeight) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %dx%d", ErrTooLarge, cfg.Width, cfg.Height, lim.MaxWidth, lim.MaxHeight)
	}
	if cfg.Width < lim.MinWidth || cfg.Height < lim.MinHeight {
		return nil, fmt.Errorf("%w: %dx%d is below %dx%d", ErrTooSmall, cfg.Width, cfg.Height, lim.MinWidth, lim.MinHeight)
	}

	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	ink, ratio := measureInk(img)
	if ratio < lim.MinInkRatio || ink.Empty() {
		return nil, fmt.Errorf("%w: %.4f of pixels drawn", ErrBlank, ratio)
	}
	return &Image{img: img, ink: ink, inkRatio: ratio}, nil
}

// Bounds returns the full image bounds.
func (s *Image) Bounds() image.Rectangle { return s.img.Bounds() }

// InkBounds returns the bounding box of the drawn strokes.
func (s *Image) InkBounds() image.Rectangle { return s.ink }

// InkRatio returns the fraction of pixels that are drawn on.
func (s *Image) InkRatio() float64 { return s.inkRatio }

// Trim returns a copy cropped to the ink plus padding pixels on each side,
// clamped to the original bounds.
func (s *Image) Trim(padding int) *Image {
	if padding < 0 {
		padding = 0
	}
	r := s.ink.Inset(-padding).Intersect(s.img.Bounds())
	dst := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), s.img, r.Min, draw.Src)
	ink := s.ink.Sub(r.Min)
	area := float64(r.Dx() * r.Dy())
	drawn := s.inkRatio * float64(s.img.Bounds().Dx()*s.img.Bounds().Dy())
	return &Image{img: dst, ink: ink, inkRatio: drawn / area}
}

// PNG encodes the image.
func (s *Image) PNG() ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, s.img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DataURL returns the image as a base64 PNG data URL.
func (s *Image) DataURL() (string, error) {
	data, err := s.PNG()
	if err != nil {
		return "", err
	}
	return "data:" + pngMediaType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// measureInk finds pixels that differ from the background. Canvas exports
// are either transparent or filled with white, so a pixel counts as ink when
// it is mostly opaque and not near-white.
func measureInk(img image.Image) (image.Rectangle, float64) {
	b := img.Bounds()
	var ink image.Rectangle
	drawn := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if !isInk(img.At(x, y)) {
				continue
			}
			drawn++
			px := image.Rect(x, y, x+1, y+1)
			if ink.Empty() {
				ink = px
			} else {
				ink = ink.Union(px)
			}
		}
	}
	total := b.Dx() * b.Dy()
	if total == 0 {
		return ink, 0
	}
	return ink, float64(drawn) / float64(total)
}

func isInk(c color.Color) bool {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	if n.A < 64 {
		return false
	}
	// Near-white is paper, not ink.
	return int(n.R)+int(n.G)+int(n.B) < 3*230
}
