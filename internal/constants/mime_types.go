package constants

// MimeTypeToExtension maps MIME types to the file extension stored media
// files are written with. Unknown types fall back to DefaultExtension.
var MimeTypeToExtension = map[string]string{
	// Image formats
	"image/jpeg":    "jpeg",
	"image/png":     "png",
	"image/gif":     "gif",
	"image/svg+xml": "svg",
	"image/webp":    "webp",
	"image/tiff":    "tiff",
	"image/bmp":     "bmp",

	// Video formats
	"video/mp4":       "mp4",
	"video/mpeg":      "mpeg",
	"video/webm":      "webm",
	"video/quicktime": "mov",
	"video/x-msvideo": "avi",

	// Audio formats
	"audio/mpeg":  "mp3",
	"audio/wav":   "wav",
	"audio/aac":   "aac",
	"audio/ogg":   "ogg",
	"audio/midi":  "midi",
	"audio/x-m4a": "m4a",

	// Document formats
	"text/plain":         "txt",
	"text/html":          "html",
	"application/json":   "json",
	"application/pdf":    "pdf",
	"application/msword": "doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "docx",
	"application/vnd.ms-excel": "xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": "xlsx",
	"application/vnd.ms-powerpoint":                                     "ppt",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": "pptx",
	"application/zip":              "zip",
	"application/x-rar-compressed": "rar",
	"application/octet-stream":     "bin",
}

// DefaultMimeType is the fallback MIME type for payloads with no usable
// content type.
const DefaultMimeType = "application/octet-stream"

// DefaultExtension is used when a MIME type has no mapping.
const DefaultExtension = "bin"
