// Package static embeds the dashboard's browser assets.
package static

import (
	"embed"
	"io/fs"
)

// StaticFS holds index.html, the stylesheet and the dashboard script.
//
//go:embed index.html css js
var StaticFS embed.FS

// GetFS returns the embedded filesystem.
func GetFS() fs.FS {
	return StaticFS
}

// ReadFile reads one embedded file.
func ReadFile(name string) ([]byte, error) {
	return StaticFS.ReadFile(name)
}
