// Package language decides which discovered files are LaTeX sources.
package language

import (
	"path/filepath"
	"strings"

	"github.com/go-enry/go-enry/v2"
)

// TeX is the lowercased enry name for LaTeX and plain TeX sources.
const TeX = "tex"

// Unknown is returned when nothing identifies the file.
const Unknown = "unknown"

// LanguageDetector identifies the language of a file. Names are lowercase
// enry language names ("tex", "bibtex", "markdown"...).
type LanguageDetector interface {
	// DetectByPath identifies a file from its name alone. ok is false when the
	// name is ambiguous or unknown and content is needed.
	DetectByPath(filePath string) (lang string, ok bool)
	// Detect identifies a file from its content, using the path as a hint.
	// confidence is 1.0 for overrides, 0.8 for content matches and 0.5 for
	// name-based fallbacks.
	Detect(content []byte, filePath string) (lang string, confidence float64, err error)
	// Candidates lists the languages a file name could belong to. It is used
	// when DetectByPath is not sure, to decide whether reading content is worthwhile.
	Candidates(filePath string) []string
}

type goEnryDetector struct {
	overrides map[string]string // ".ext" -> language
}

// NewGoEnryDetector returns a detector backed by go-enry. overrides maps file
// extensions (with or without the dot) to language names and wins over enry.
func NewGoEnryDetector(overrides map[string]string) LanguageDetector {
	normalized := make(map[string]string, len(overrides))
	for ext, lang := range overrides {
		ext = strings.ToLower(strings.TrimSpace(ext))
		lang = strings.ToLower(strings.TrimSpace(lang))
		if ext == "" || ext == "." || lang == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[ext] = lang
	}
	return &goEnryDetector{overrides: normalized}
}

func usable(lang string) bool { return lang != "" && lang != "Text" }

func (d *goEnryDetector) DetectByPath(filePath string) (string, bool) {
	if lang, ok := d.overrides[strings.ToLower(filepath.Ext(filePath))]; ok {
		return lang, true
	}
	if lang, safe := enry.GetLanguageByExtension(filePath); safe && usable(lang) {
		return strings.ToLower(lang), true
	}
	if lang, safe := enry.GetLanguageByFilename(filePath); safe && usable(lang) {
		return strings.ToLower(lang), true
	}
	return "", false
}

func (d *goEnryDetector) Detect(content []byte, filePath string) (string, float64, error) {
	if lang, ok := d.overrides[strings.ToLower(filepath.Ext(filePath))]; ok {
		return lang, 1.0, nil
	}
	if len(content) == 0 {
		if lang, ok := d.DetectByPath(filePath); ok {
			return lang, 0.5, nil
		}
		return Unknown, 0, nil
	}
	if lang := enry.GetLanguage(filepath.Base(filePath), content); usable(lang) {
		return strings.ToLower(lang), 0.8, nil
	}
	if lang, ok := d.DetectByPath(filePath); ok {
		return lang, 0.5, nil
	}
	return Unknown, 0, nil
}

func (d *goEnryDetector) Candidates(filePath string) []string {
	if lang, ok := d.overrides[strings.ToLower(filepath.Ext(filePath))]; ok {
		return []string{lang}
	}
	langs := enry.GetLanguagesByExtension(filePath, nil, nil)
	if len(langs) == 0 {
		langs = enry.GetLanguagesByFilename(filePath, nil, nil)
	}
	out := make([]string, 0, len(langs))
	for _, l := range langs {
		out = append(out, strings.ToLower(l))
	}
	return out
}
