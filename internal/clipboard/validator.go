// Package clipboard pulls loadable URLs out of clipboard text.
package clipboard

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/surge-downloader/loader/internal/engine/types"
)

const maxURLLength = 2048

var clipboardReadAll = clipboard.ReadAll

// Validator accepts URLs the loaders can fetch.
type Validator struct {
	allowedSchemes map[string]bool
	maxURLs        int
}

func NewValidator() *Validator {
	return &Validator{
		allowedSchemes: map[string]bool{"http": true, "https": true},
		maxURLs:        64,
	}
}

// ExtractURL returns text as a normalized URL when it is exactly one
// loadable URL, or "" otherwise.
func (v *Validator) ExtractURL(text string) string {
	text = strings.TrimSpace(text)
	if strings.ContainsAny(text, "\n\r\t ") {
		return ""
	}
	return v.accept(text)
}

// ExtractURLs returns every loadable URL in text, one per whitespace
// separated field, deduplicated in order of appearance.
func (v *Validator) ExtractURLs(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, field := range strings.Fields(text) {
		u := v.accept(strings.Trim(field, `"'<>()[],;`))
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
		if v.maxURLs > 0 && len(out) == v.maxURLs {
			break
		}
	}
	return out
}

func (v *Validator) accept(text string) string {
	if text == "" || len(text) > maxURLLength {
		return ""
	}
	if !strings.HasPrefix(text, "http://") && !strings.HasPrefix(text, "https://") {
		return ""
	}
	if types.NewRequest(text).Validate() != nil {
		return ""
	}
	parsed, err := url.Parse(text)
	if err != nil || !v.allowedSchemes[parsed.Scheme] {
		return ""
	}
	return parsed.String()
}

// ReadURL returns the clipboard content if it is a single loadable URL.
func ReadURL() string {
	text, err := clipboardReadAll()
	if err != nil {
		return ""
	}
	return NewValidator().ExtractURL(text)
}

// ReadURLs returns every loadable URL on the clipboard.
func ReadURLs() ([]string, error) {
	text, err := clipboardReadAll()
	if err != nil {
		return nil, fmt.Errorf("read clipboard: %w", err)
	}
	urls := NewValidator().ExtractURLs(text)
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: clipboard holds no http(s) url", types.ErrInvalidRequest)
	}
	return urls, nil
}
