package mpbody

import (
	"mime"
	"path/filepath"
	"strings"
)

// DefaultContentType is used for blobs and for files whose extension is unknown.
const DefaultContentType = "application/octet-stream"

// extensionTypes is consulted before the platform MIME database so the
// common upload types do not depend on /etc/mime.types being present.
var extensionTypes = map[string]string{
	".bin":   DefaultContentType,
	".csv":   "text/csv",
	".gif":   "image/gif",
	".gz":    "application/gzip",
	".heic":  "image/heic",
	".htm":   "text/html",
	".html":  "text/html",
	".jpeg":  "image/jpeg",
	".jpg":   "image/jpeg",
	".json":  "application/json",
	".m4a":   "audio/mp4",
	".mov":   "video/quicktime",
	".mp3":   "audio/mpeg",
	".mp4":   "video/mp4",
	".pdf":   "application/pdf",
	".plist": "application/x-plist",
	".png":   "image/png",
	".svg":   "image/svg+xml",
	".tar":   "application/x-tar",
	".toml":  "application/toml",
	".txt":   "text/plain",
	".wav":   "audio/wav",
	".webp":  "image/webp",
	".xml":   "application/xml",
	".yaml":  "application/yaml",
	".yml":   "application/yaml",
	".zip":   "application/zip",
}

// ContentTypeByExtension infers a content type from the extension of name.
// It never returns an empty string.
func ContentTypeByExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return DefaultContentType
	}
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return DefaultContentType
}
