package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"

	"golang.org/x/text/language"
)

//go:embed locales/*.json
var locales embed.FS

var DefaultLang = "en"

// Bundle holds the UI translations and negotiates a language per request.
type Bundle struct {
	translations map[string]map[string]string
	matcher      language.Matcher
	langs        []string
}

// Load reads the embedded catalogs. The default language is listed first so
// the matcher falls back to it.
func Load() (*Bundle, error) {
	entries, err := locales.ReadDir("locales")
	if err != nil {
		return nil, err
	}

	b := &Bundle{translations: make(map[string]map[string]string)}
	langs := []string{DefaultLang}
	for _, entry := range entries {
		lang := strings.TrimSuffix(entry.Name(), ".json")
		data, err := locales.ReadFile(path.Join("locales", entry.Name()))
		if err != nil {
			return nil, err
		}
		var t map[string]string
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("locale %s: %w", lang, err)
		}
		b.translations[lang] = t
		if lang != DefaultLang {
			langs = append(langs, lang)
		}
	}
	if _, ok := b.translations[DefaultLang]; !ok {
		return nil, fmt.Errorf("missing default locale %q", DefaultLang)
	}

	tags := make([]language.Tag, 0, len(langs))
	for _, lang := range langs {
		tags = append(tags, language.Make(lang))
	}
	b.langs = langs
	b.matcher = language.NewMatcher(tags)
	return b, nil
}

func (b *Bundle) T(lang, key string) string {
	if t, ok := b.translations[lang]; ok {
		if val, ok := t[key]; ok {
			return val
		}
	}
	// Fallback to English
	if lang != DefaultLang {
		return b.T(DefaultLang, key)
	}
	return key
}

// DetectLanguage picks the best supported language from Accept-Language.
func (b *Bundle) DetectLanguage(r *http.Request) string {
	accept := r.Header.Get("Accept-Language")
	if accept == "" {
		return DefaultLang
	}
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return DefaultLang
	}
	_, index, confidence := b.matcher.Match(tags...)
	if confidence == language.No {
		return DefaultLang
	}
	return b.langs[index]
}
