// Package encoding converts LaTeX sources to UTF-8 for reflowing and back to
// their original charset for writing.
package encoding

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

const (
	// sniffLen is how much http.DetectContentType looks at.
	sniffLen = 512
	// nullCheckLen bounds the NUL-ratio scan.
	nullCheckLen = 1024
	// nullThreshold is the NUL ratio above which content counts as binary.
	nullThreshold = 0.15

	// UTF8 is the canonical name reported for UTF-8 input.
	UTF8 = "utf-8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Mime types that http.DetectContentType may report for text-like content.
var textMIMETypes = map[string]bool{
	"application/json":         true,
	"application/xml":          true,
	"application/javascript":   true,
	"application/octet-stream": true, // undecided; the NUL check settles it
	"application/postscript":   true, // .eps/.ps sources are plain text
	"application/pdf":          false,
}

// Decoded is a source document converted to UTF-8.
type Decoded struct {
	// Content is UTF-8 text without any byte order mark.
	Content []byte
	// Encoding is the canonical charset name of the source.
	Encoding string
	// Certain is false when the charset is a guess.
	Certain bool
	// BOM is true when the source started with a UTF-8 byte order mark.
	BOM bool
}

// EncodingHandler detects charsets, converts to and from UTF-8, and spots binary data.
type EncodingHandler interface {
	// DetectAndDecode converts content to UTF-8. Valid UTF-8 passes through
	// unchanged apart from BOM removal. Anything else is detected, or decoded
	// with the configured default charset when detection is uncertain.
	DetectAndDecode(content []byte) (Decoded, error)
	// Encode converts UTF-8 text back to the named charset and restores the
	// BOM when bom is true.
	Encode(utf8Content []byte, encodingName string, bom bool) ([]byte, error)
	// IsBinary reports whether content looks like binary data.
	IsBinary(content []byte) bool
}

type goCharsetEncodingHandler struct {
	defaultEncoding string
}

// NewGoCharsetEncodingHandler returns a handler backed by golang.org/x/net/html/charset.
// defaultEncoding is used for non-UTF-8 input whose charset cannot be detected
// with certainty; an unknown name is ignored.
func NewGoCharsetEncodingHandler(defaultEncoding string) EncodingHandler {
	return &goCharsetEncodingHandler{defaultEncoding: strings.TrimSpace(defaultEncoding)}
}

func (h *goCharsetEncodingHandler) DetectAndDecode(content []byte) (Decoded, error) {
	if bytes.HasPrefix(content, utf8BOM) {
		return Decoded{Content: content[len(utf8BOM):], Encoding: UTF8, Certain: true, BOM: true}, nil
	}
	if utf8.Valid(content) {
		return Decoded{Content: content, Encoding: UTF8, Certain: true}, nil
	}

	enc, name, certain := charset.DetermineEncoding(content, "text/plain")
	if !certain && h.defaultEncoding != "" {
		if fallback, fallbackName := charset.Lookup(h.defaultEncoding); fallback != nil {
			enc, name, certain = fallback, fallbackName, true
		}
	}
	if enc == nil {
		return Decoded{}, fmt.Errorf("no decoder for %q", name)
	}

	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(content), enc.NewDecoder()))
	if err != nil {
		return Decoded{}, fmt.Errorf("decoding from %s: %w", name, err)
	}
	return Decoded{Content: out, Encoding: name, Certain: certain}, nil
}

func (h *goCharsetEncodingHandler) Encode(utf8Content []byte, encodingName string, bom bool) ([]byte, error) {
	if encodingName == "" || strings.EqualFold(encodingName, UTF8) {
		if bom {
			return append(append(make([]byte, 0, len(utf8BOM)+len(utf8Content)), utf8BOM...), utf8Content...), nil
		}
		return utf8Content, nil
	}
	enc, name := charset.Lookup(encodingName)
	if enc == nil {
		return nil, fmt.Errorf("unknown encoding %q", encodingName)
	}
	out, _, err := transform.Bytes(enc.NewEncoder(), utf8Content)
	if err != nil {
		return nil, fmt.Errorf("encoding to %s: %w", name, err)
	}
	return out, nil
}

func isTextMIME(contentType string) bool {
	mimeType := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	if strings.HasPrefix(mimeType, "text/") || strings.HasSuffix(mimeType, "+xml") || strings.HasSuffix(mimeType, "+json") {
		return true
	}
	return textMIMETypes[mimeType]
}

func (h *goCharsetEncodingHandler) IsBinary(content []byte) bool {
	if len(content) == 0 {
		return false
	}
	if !isTextMIME(http.DetectContentType(content[:min(len(content), sniffLen)])) {
		return true
	}
	window := content[:min(len(content), nullCheckLen)]
	return float64(bytes.Count(window, []byte{0}))/float64(len(window)) > nullThreshold
}
