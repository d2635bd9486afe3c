package constants

import "strings"

// Image sources as reported by the capture widgets.
const (
	SourceUpload = "upload"
	SourceCamera = "camera"
)

// AllowedImageTypes maps accepted MIME types to their canonical extension.
var AllowedImageTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
	"image/bmp":  "bmp",
	"image/tiff": "tiff",
	"image/heic": "heic",
	"image/heif": "heif",
}

// AllowedExtensions holds the accepted file extensions for uploads.
var AllowedExtensions = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"bmp":  "image/bmp",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"heic": "image/heic",
	"heif": "image/heif",
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// NormalizeMIME drops parameters and lowercases a content type.
func NormalizeMIME(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	mime = strings.ToLower(strings.TrimSpace(mime))
	if mime == "image/jpg" {
		return "image/jpeg"
	}
	return mime
}

func IsAllowedImageType(mime string) bool {
	_, ok := AllowedImageTypes[NormalizeMIME(mime)]
	return ok
}

func IsHEIC(mime string) bool {
	m := NormalizeMIME(mime)
	return m == "image/heic" || m == "image/heif"
}
