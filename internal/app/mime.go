package app

import (
	"log/slog"
	"mime"
)

// staticTypes are registered when the host's mime database lacks them, so
// /static responses keep a correct Content-Type on slim container images.
var staticTypes = map[string]string{
	".css":   "text/css; charset=utf-8",
	".js":    "text/javascript; charset=utf-8",
	".svg":   "image/svg+xml",
	".woff2": "font/woff2",
}

func init() {
	for ext, typ := range staticTypes {
		if mime.TypeByExtension(ext) != "" {
			continue
		}
		if err := mime.AddExtensionType(ext, typ); err != nil {
			slog.Warn("register static mime type", slog.String("ext", ext), slog.Any("error", err))
		}
	}
}
