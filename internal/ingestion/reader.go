package ingestion

import (
	"bytes"
	"fmt"
	"os"
	"unicode/utf8"
)

// ReadFile reads a source file as text. Binary or non-UTF-8 content is
// a read error: the parsers only operate on decodable source.
func ReadFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if bytes.IndexByte(content, 0) >= 0 || !utf8.Valid(content) {
		return "", fmt.Errorf("reading %s: binary or non-UTF-8 content", path)
	}
	return string(content), nil
}
