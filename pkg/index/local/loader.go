// Package local is an in-process live index over a watched folder. It loads
// files, splits them into token-bounded chunks, embeds them, keeps them in
// SQLite, and serves the same HTTP contract as the external vector store.
package local

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// EmptyFileMarker replaces the body of a file with no content.
const EmptyFileMarker = "[Empty file]"

// FileHeader is the line every indexed document and chunk starts with.
func FileHeader(path string) string {
	return fmt.Sprintf("# File: %s\n\n", path)
}

// LoadFile formats raw file bytes as an indexable document. It reports false
// for content that is not valid UTF-8, which is treated as binary and skipped.
func LoadFile(path string, data []byte) (string, bool) {
	if !utf8.Valid(data) {
		return "", false
	}
	content := string(data)
	if strings.TrimSpace(content) == "" {
		return FileHeader(path) + EmptyFileMarker, true
	}
	return FileHeader(path) + content, true
}

// skippedDirs are never descended into or indexed.
//
//nolint:gochecknoglobals // fixed lookup table
var skippedDirs = map[string]bool{
	".git": true,
}

// SkipPath reports whether path lies in a directory the index ignores.
func SkipPath(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if skippedDirs[part] {
			return true
		}
	}
	return false
}
