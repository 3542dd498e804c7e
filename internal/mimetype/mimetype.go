// Package mimetype maps file names to content types.
package mimetype

import (
	"path/filepath"
	"strings"
)

// Default is returned for names with no known extension.
const Default = "application/octet-stream"

var byExtension = map[string]string{
	"html": "text/html",
	"txt":  "text/plain",
	"jpg":  "image/jpeg",
	"json": "application/json",
}

// TypeByName returns the content type for the extension of name. The
// extension is matched case-insensitively; dot files and names ending in a
// dot have no extension.
func TypeByName(name string) string {
	base := filepath.Base(name)
	dot := strings.LastIndexByte(base, '.')
	if dot <= 0 || dot == len(base)-1 {
		return Default
	}
	if t, ok := byExtension[strings.ToLower(base[dot+1:])]; ok {
		return t
	}
	return Default
}
