package llm

import (
	"encoding/base64"
	"fmt"

	"github.com/joseph-ayodele/invoice-trust/constants"
	"github.com/joseph-ayodele/invoice-trust/internal/extract"
)

// MaxVisionBytes caps the page image size sent to a vision model.
const MaxVisionBytes = constants.MaxVisionMBDefault << 20

// ImageMIME maps a page format ("png", "jpeg", ...) to its MIME type.
func ImageMIME(format string) string {
	switch format {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "", "png":
		return "image/png"
	case "tif", "tiff":
		return "image/tiff"
	}
	return "image/" + format
}

// CheckPage rejects pages that vision APIs cannot take.
func CheckPage(page extract.Page) error {
	if len(page.Data) == 0 {
		return fmt.Errorf("page %d: empty image", page.Number)
	}
	if len(page.Data) > MaxVisionBytes {
		return fmt.Errorf("page %d: image is %d bytes, over the %d MB vision limit", page.Number, len(page.Data), constants.MaxVisionMBDefault)
	}
	switch page.Format {
	case "heic", "heif":
		return fmt.Errorf("page %d: %s images must be converted before transcription", page.Number, page.Format)
	}
	return nil
}

// DataURL encodes a page image as a base64 data URL.
func DataURL(page extract.Page) string {
	return "data:" + ImageMIME(page.Format) + ";base64," + base64.StdEncoding.EncodeToString(page.Data)
}
