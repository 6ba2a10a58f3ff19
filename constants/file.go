package constants

import "strings"

// Document formats understood by the strategies.
const (
	PDF    = "PDF"
	IMAGE  = "IMAGE"
	TEXT   = "TEXT"
	HTML   = "HTML"
	OFFICE = "OFFICE"
)

// FileTypes holds every format a document can be classified as.
var FileTypes = []string{PDF, IMAGE, TEXT, HTML, OFFICE}

// AllowedExtensions holds the default allowed file extensions for invoice ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"tif":  {},
	"tiff": {},
	"heic": {},
	"heif": {},
	"txt":  {},
	"html": {},
	"htm":  {},
	"docx": {},
	"odt":  {},
	"rtf":  {},
}

var mimeByExt = map[string]string{
	"pdf":  "application/pdf",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"heic": "image/heic",
	"heif": "image/heif",
	"txt":  "text/plain",
	"html": "text/html",
	"htm":  "text/html",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"odt":  "application/vnd.oasis.opendocument.text",
	"rtf":  "application/rtf",
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat classifies an extension into one of FileTypes ("" when unknown).
func MapExtToFormat(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "jpg", "jpeg", "png", "tif", "tiff", "heic", "heif":
		return IMAGE
	case "txt":
		return TEXT
	case "html", "htm":
		return HTML
	case "docx", "odt", "rtf":
		return OFFICE
	default:
		return ""
	}
}

// MapMIMEToFormat classifies a MIME type into one of FileTypes ("" when unknown).
func MapMIMEToFormat(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch {
	case mime == "application/pdf":
		return PDF
	case strings.HasPrefix(mime, "image/"):
		return IMAGE
	case mime == "text/plain":
		return TEXT
	case mime == "text/html" || mime == "application/xhtml+xml":
		return HTML
	case mime == "application/rtf" || strings.Contains(mime, "opendocument") || strings.Contains(mime, "officedocument"):
		return OFFICE
	default:
		return ""
	}
}

// MIMEByExt returns the MIME type for a known extension, or application/octet-stream.
func MIMEByExt(ext string) string {
	if mt, ok := mimeByExt[NormalizeExt(ext)]; ok {
		return mt
	}
	return "application/octet-stream"
}

// IsHEICExt reports whether ext is one of the HEIC/HEIF family.
func IsHEICExt(ext string) bool {
	switch NormalizeExt(ext) {
	case "heic", "heif", "heics", "heifs":
		return true
	}
	return false
}

// MaxVisionMBDefault is the largest page image (in MB) sent to vision model APIs.
const MaxVisionMBDefault = 20
