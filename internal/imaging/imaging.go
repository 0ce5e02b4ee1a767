// Package imaging renders detection overlays onto stored images and knows
// which image formats the service accepts.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp" // decode only; webp has no Go encoder

	"github.com/avolkov/thermalscan/pkg/models"
)

var supportedExts = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".webp": "image/webp",
}

// boxColor matches the overlay color used by the original detector tooling.
var boxColor = color.RGBA{R: 255, G: 140, B: 0, A: 255}

const borderWidth = 2

// SupportedFilename reports whether the filename extension is an accepted
// image format.
func SupportedFilename(name string) bool {
	_, ok := supportedExts[strings.ToLower(filepath.Ext(name))]
	return ok
}

// MIMEType returns the content type for a stored image filename. Unknown
// extensions fall back to JPEG, the dominant format for thermal exports.
func MIMEType(name string) string {
	if mt, ok := supportedExts[strings.ToLower(filepath.Ext(name))]; ok {
		return mt
	}
	return "image/jpeg"
}

// Annotate decodes the image, draws each detection box with a confidence
// label, and re-encodes in the source format. Returns an error for formats
// that cannot be re-encoded (webp); callers fall back to the raw input bytes.
func Annotate(data []byte, dets []models.Detection) ([]byte, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	bounds := src.Bounds()
	img := image.NewRGBA(bounds)
	draw.Draw(img, bounds, src, bounds.Min, draw.Src)

	for _, det := range dets {
		drawBox(img, det)
	}

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	case "png":
		err = png.Encode(&buf, img)
	case "tiff":
		err = tiff.Encode(&buf, img, nil)
	default:
		return nil, fmt.Errorf("no encoder for %s images", format)
	}
	if err != nil {
		return nil, fmt.Errorf("encoding %s image: %w", format, err)
	}
	return buf.Bytes(), nil
}

func drawBox(img *image.RGBA, det models.Detection) {
	b := img.Bounds()
	x1 := clamp(int(det.BBox[0]), b.Min.X, b.Max.X-1)
	y1 := clamp(int(det.BBox[1]), b.Min.Y, b.Max.Y-1)
	x2 := clamp(int(det.BBox[2]), b.Min.X, b.Max.X-1)
	y2 := clamp(int(det.BBox[3]), b.Min.Y, b.Max.Y-1)

	for w := 0; w < borderWidth; w++ {
		for x := x1; x <= x2; x++ {
			img.Set(x, clamp(y1+w, b.Min.Y, b.Max.Y-1), boxColor)
			img.Set(x, clamp(y2-w, b.Min.Y, b.Max.Y-1), boxColor)
		}
		for y := y1; y <= y2; y++ {
			img.Set(clamp(x1+w, b.Min.X, b.Max.X-1), y, boxColor)
			img.Set(clamp(x2-w, b.Min.X, b.Max.X-1), y, boxColor)
		}
	}

	label := fmt.Sprintf("%s %.2f", det.ClassName, det.Confidence)
	labelY := y1 - 4
	if labelY < b.Min.Y+basicfont.Face7x13.Height {
		labelY = y1 + basicfont.Face7x13.Height + 2
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(boxColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x1, labelY),
	}
	d.DrawString(label)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
