package ocr

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// maxSide caps page images before OCR; A4 at 300 DPI fits.
const maxSide = 3508

// Enhance applies grayscale, contrast, sharpening and gamma to a page image and
// re-encodes it as PNG. EXIF orientation is honoured.
func Enhance(data []byte) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	img := imaging.Grayscale(src)
	img = imaging.AdjustContrast(img, 30)
	img = imaging.Sharpen(img, 1.5)
	img = imaging.AdjustGamma(img, 1.2)
	if b := img.Bounds(); b.Dx() > maxSide || b.Dy() > maxSide {
		img = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}
